package governance

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := newTestRegistry(nil)

	assert.True(t, r.Has("get_employee_info"))
	assert.False(t, r.Has("nope"))

	desc, err := r.Descriptor("terminate_employee")
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, desc.Risk)
	assert.True(t, desc.SideEffecting)
	assert.Equal(t, defaultToolTimeout, desc.Timeout)

	_, err = r.Descriptor("nope")
	assert.ErrorIs(t, err, ErrToolNotFound)

	names := make([]string, 0)
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"calculate_deductions", "calculate_department_payroll", "get_employee_info", "terminate_employee"}, names)

	sel := r.Select([]string{"terminate_employee", "ghost", "get_employee_info"})
	require.Len(t, sel, 2)
	assert.Equal(t, "terminate_employee", sel[0].Name)
}

func TestRegistry_RegisterRejectsInvalid(t *testing.T) {
	r := NewRegistry(nil)

	err := r.Register(ToolDescriptor{Name: "", Schema: employeeSchema(), Risk: RiskLow}, echoTool)
	assert.Error(t, err)

	err = r.Register(ToolDescriptor{Name: "x", Schema: employeeSchema(), Risk: "extreme"}, echoTool)
	assert.Error(t, err)

	err = r.Register(ToolDescriptor{Name: "x", Risk: RiskLow}, echoTool)
	assert.Error(t, err)

	err = r.Register(ToolDescriptor{Name: "x", Schema: employeeSchema(), Risk: RiskLow}, nil)
	assert.Error(t, err)

	require.NoError(t, r.Register(ToolDescriptor{Name: "x", Schema: employeeSchema(), Risk: RiskLow}, echoTool))
	err = r.Register(ToolDescriptor{Name: "x", Schema: employeeSchema(), Risk: RiskHigh}, echoTool)
	assert.ErrorIs(t, err, ErrToolAlreadyExists)

	desc, _ := r.Descriptor("x")
	assert.Equal(t, RiskLow, desc.Risk, "descriptor must not be replaced")
}

func TestRegistry_Execute(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(ToolDescriptor{Name: "echo", Schema: employeeSchema(), Risk: RiskLow}, echoTool))
	require.NoError(t, r.Register(ToolDescriptor{Name: "boom", Schema: employeeSchema(), Risk: RiskLow},
		func(context.Context, json.RawMessage) (json.RawMessage, error) {
			return nil, errors.New("ledger offline")
		}))
	require.NoError(t, r.Register(ToolDescriptor{Name: "slow", Schema: employeeSchema(), Risk: RiskLow, Timeout: 20 * time.Millisecond},
		func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			select {
			case <-time.After(time.Second):
				return json.RawMessage(`{}`), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}))

	ctx := context.Background()

	res := r.Execute(ctx, ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"employee_id":"E001"}`)})
	assert.False(t, res.Failed())
	assert.JSONEq(t, `{"employee_id":"E001"}`, string(res.Result))
	assert.Equal(t, "c1", res.ToolCallID)

	res = r.Execute(ctx, ToolCall{Name: "boom"})
	assert.True(t, res.Failed())
	assert.False(t, res.TimedOut)
	assert.Contains(t, res.Error, "ledger offline")

	res = r.Execute(ctx, ToolCall{Name: "slow"})
	assert.True(t, res.Failed())
	assert.True(t, res.TimedOut)

	res = r.Execute(ctx, ToolCall{Name: "ghost"})
	assert.Contains(t, res.Error, "tool not found")
}

func TestRegistry_ExecuteHonoursParentDeadline(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(ToolDescriptor{Name: "slow", Schema: employeeSchema(), Risk: RiskLow},
		func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := r.Execute(ctx, ToolCall{Name: "slow"})
	assert.True(t, res.TimedOut)
}
