package governance

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

func TestValidateArguments(t *testing.T) {
	schema := types.Object(
		types.Need("employee_id", types.String().Match(`^E\d{3}$`)),
		types.Field("period", types.OneOf("monthly", "annual")),
		types.Field("gross_pay", types.Number().Between(0, 1_000_000)),
		types.Field("tags", types.ArrayOf(types.String())),
		types.Field("note", types.String().Len(2, 5)),
	)

	tests := []struct {
		name    string
		args    string
		wantErr string
	}{
		{"valid minimal", `{"employee_id":"E007"}`, ""},
		{"valid full", `{"employee_id":"E007","period":"annual","gross_pay":1000.5,"tags":["a"],"note":"été"}`, ""},
		{"empty args means empty object", ``, "employee_id is required"},
		{"null required", `{"employee_id":null}`, "employee_id must not be null"},
		{"wrong type", `{"employee_id":7}`, "employee_id must be a string, got number"},
		{"pattern", `{"employee_id":"7"}`, `employee_id must match ^E\d{3}$`},
		{"enum", `{"employee_id":"E007","period":"weekly"}`, "period must be one of [monthly annual]"},
		{"maximum", `{"employee_id":"E007","gross_pay":1000001}`, "gross_pay must be <= 1000000, got 1000001"},
		{"minimum", `{"employee_id":"E007","gross_pay":-0.5}`, "gross_pay must be >= 0, got -0.5"},
		{"length counts characters", `{"employee_id":"E007","note":"éééééé"}`, "note must be at most 5 characters"},
		{"too short", `{"employee_id":"E007","note":"x"}`, "note must be at least 2 characters"},
		{"array item type", `{"employee_id":"E007","tags":[1]}`, "tags[0] must be a string, got number"},
		{"unknown argument", `{"employee_id":"E007","ssn":"123"}`, "ssn is not an accepted argument"},
		{"not an object", `[1,2]`, "arguments must be an object, got array"},
		{"bad json", `{"employee_id":`, "arguments are not valid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArguments(json.RawMessage(tt.args), schema)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateArguments_ReportsAllInPathOrder(t *testing.T) {
	schema := types.Object(
		types.Need("employee_id", types.String()),
		types.Field("gross_pay", types.Number()),
	)
	err := ValidateArguments(json.RawMessage(`{"zeta":1,"gross_pay":"a lot","alpha":true}`), schema)

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	paths := make([]string, len(se.Errors))
	for i, fe := range se.Errors {
		paths[i] = fe.Path
	}
	assert.Equal(t, []string{"employee_id", "alpha", "gross_pay", "zeta"}, paths)
}

func TestValidateArguments_IntegerAndBoolean(t *testing.T) {
	schema := types.Object(
		types.Field("count", types.Integer()),
		types.Field("dry_run", types.Boolean()),
	)

	assert.NoError(t, ValidateArguments(json.RawMessage(`{"count":3,"dry_run":true}`), schema))
	assert.ErrorContains(t, ValidateArguments(json.RawMessage(`{"count":3.5}`), schema), "count must be an integer, got 3.5")
	assert.ErrorContains(t, ValidateArguments(json.RawMessage(`{"count":"3"}`), schema), "count must be an integer, got string")
	assert.ErrorContains(t, ValidateArguments(json.RawMessage(`{"dry_run":"yes"}`), schema), "dry_run must be a boolean")
}

func TestValidateArguments_NumericEnum(t *testing.T) {
	schema := types.Object(types.Field("level", &types.Schema{Type: types.KindInteger, Enum: []any{1, 2, 3}}))
	assert.NoError(t, ValidateArguments(json.RawMessage(`{"level":2.0}`), schema))
	assert.Error(t, ValidateArguments(json.RawMessage(`{"level":4}`), schema))
	assert.Error(t, ValidateArguments(json.RawMessage(`{"level":"2"}`), schema))
}

func TestValidateArguments_NilSchema(t *testing.T) {
	assert.NoError(t, ValidateArguments(json.RawMessage(`not json`), nil))
}

func TestSchemaError_Message(t *testing.T) {
	err := &SchemaError{Errors: []FieldError{{Path: "a", Message: "is required"}, {Message: "must be an object, got array"}}}
	assert.Equal(t, "a is required; arguments must be an object, got array", err.Error())
	assert.Equal(t, "arguments rejected", (&SchemaError{}).Error())
}
