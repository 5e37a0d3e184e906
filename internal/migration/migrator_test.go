package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/FaresOuhachi/HR-Payroll-Agent/approval"
	"github.com/FaresOuhachi/HR-Payroll-Agent/checkpoint"
	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/database"
	"github.com/FaresOuhachi/HR-Payroll-Agent/payroll"
)

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{
		"postgres": Postgres, "postgresql": Postgres, "pg": Postgres, " POSTGRES ": Postgres,
		"mysql": MySQL, "mariadb": MySQL,
		"sqlite": SQLite, "sqlite3": SQLite,
	} {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDialect("oracle")
	assert.ErrorContains(t, err, `unsupported database type: "oracle"`)
}

func TestURLFor(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "postgres",
			cfg:  config.DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, Name: "payroll", User: "hr", Password: "s3cret", SSLMode: "disable"},
			want: "postgres://hr:s3cret@db:5432/payroll?sslmode=disable",
		},
		{
			name: "postgres requires tls by default",
			cfg:  config.DatabaseConfig{Driver: "pg", Host: "db", Port: 5432, Name: "payroll", User: "hr", Password: "pw"},
			want: "postgres://hr:pw@db:5432/payroll?sslmode=require",
		},
		{
			name: "mysql",
			cfg:  config.DatabaseConfig{Driver: "mariadb", Host: "db", Port: 3306, Name: "payroll", User: "hr", Password: "pw"},
			want: "hr:pw@tcp(db:3306)/payroll?parseTime=true&multiStatements=true",
		},
		{
			name: "sqlite file",
			cfg:  config.DatabaseConfig{Driver: "sqlite", Name: "/var/lib/payroll.db"},
			want: "file:/var/lib/payroll.db?mode=rwc&_foreign_keys=on",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got, err := URLFor(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmbeddedScripts(t *testing.T) {
	for _, d := range []Dialect{Postgres, MySQL, SQLite} {
		scripts, err := loadScripts(d)
		require.NoError(t, err, d)
		require.Len(t, scripts, 1, d)
		assert.Equal(t, Script{Version: 1, Name: "init_schema"}, scripts[0])
	}
}

func TestOpen_RejectsBadOptions(t *testing.T) {
	_, err := Open(Options{Dialect: SQLite})
	assert.ErrorContains(t, err, "database URL is required")

	_, err = Open(Options{Dialect: "oracle", URL: "oracle://nowhere"})
	assert.ErrorContains(t, err, "unsupported database type")

	_, err = OpenDatabase(config.DatabaseConfig{Driver: "oracle"}, nil)
	assert.ErrorContains(t, err, "invalid database type")
}

func openSQLite(t *testing.T) *Migrator {
	t.Helper()
	m, err := OpenURL("sqlite3", "file:"+filepath.Join(t.TempDir(), "m.db")+"?mode=rwc&_foreign_keys=on", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMigrator_SQLiteLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	m := openSQLite(t)
	ctx := context.Background()
	assert.Equal(t, SQLite, m.Dialect())

	v, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	sum, err := m.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 1, Pending: 1}, sum)

	require.NoError(t, m.Up(ctx))
	// 已是最新版本时不报错
	require.NoError(t, m.Up(ctx))

	plan, err := m.Plan(ctx)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.True(t, plan[0].Applied)
	assert.False(t, plan[0].Dirty)

	sum, err = m.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Version: 1, Total: 1, Applied: 1}, sum)

	require.NoError(t, m.Down(ctx))
	v, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, m.Goto(ctx, 1))
	require.NoError(t, m.Reset(ctx))
	require.NoError(t, m.Steps(ctx, 1))
	v, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestMigrator_CanceledContext(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	m := openSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Up(ctx)
	require.ErrorIs(t, err, context.Canceled)

	v, _, err := m.Version(context.Background())
	require.NoError(t, err)
	assert.Zero(t, v, "nothing applied")
}

func TestRunner_Output(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	m := openSQLite(t)
	ctx := context.Background()

	var out bytes.Buffer
	r := NewRunner(m, &out)
	run := func(cmd Command) string {
		t.Helper()
		out.Reset()
		require.NoError(t, r.Run(ctx, cmd))
		return out.String()
	}

	assert.Equal(t, "schema version: none\n", run(Command{Action: ActionVersion}))
	assert.Contains(t, run(Command{Action: ActionStatus}), "0 applied, 1 pending")
	assert.Equal(t, "up: schema version 1\n", run(Command{Action: ActionUp}))

	status := run(Command{Action: ActionStatus})
	assert.Regexp(t, `000001\s+init_schema\s+applied`, status)
	assert.Contains(t, status, "1 applied, 0 pending")

	assert.Equal(t, "dialect: sqlite\nversion: 1\napplied: 1/1\npending: 0\n", run(Command{Action: ActionInfo}))
	assert.Equal(t, "steps -1: schema version none\n", run(Command{Action: ActionSteps, N: -1}))

	err := r.Run(ctx, Command{Action: ActionGoto, N: -2})
	assert.ErrorContains(t, err, "must not be negative")
	err = r.Run(ctx, Command{Action: "sideways"})
	assert.ErrorContains(t, err, `unknown migrate action "sideways"`)
}

func TestAction(t *testing.T) {
	assert.True(t, ActionSteps.TakesNumber())
	assert.True(t, ActionForce.TakesNumber())
	assert.False(t, ActionUp.TakesNumber())
	assert.True(t, ActionInfo.Known())
	assert.False(t, Action("sideways").Known())
}

func TestDescribeVersion(t *testing.T) {
	assert.Equal(t, "none", describeVersion(0, false))
	assert.Equal(t, "3", describeVersion(3, false))
	assert.Equal(t, "3 (dirty)", describeVersion(3, true))
}

// The embedded schema has to accept what the GORM stores write.
func TestMigrator_SchemaMatchesStores(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dbCfg := config.DatabaseConfig{
		Driver: "sqlite",
		Name:   filepath.Join(t.TempDir(), "payroll.db"),
	}

	core, logs := observer.New(zap.InfoLevel)
	migrator, err := OpenDatabase(dbCfg, zap.New(core))
	require.NoError(t, err)

	ctx := context.Background()
	version, err := migrator.EnsureLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.Equal(t, 1, logs.FilterMessage("schema up to date").Len())

	// second run is a no-op
	again, err := migrator.EnsureLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, version, again)
	require.NoError(t, migrator.Close())

	db, err := database.Open(dbCfg, zap.NewNop())
	require.NoError(t, err)

	dir := payroll.NewGormDirectory(db, zap.NewNop())
	require.NoError(t, dir.Seed(ctx, payroll.DemoEmployees()))
	emp, err := dir.Get(ctx, "E007")
	require.NoError(t, err)
	assert.Equal(t, "Engineering", emp.Department)

	cps := checkpoint.NewGormStore(db, zap.NewNop())
	require.NoError(t, cps.Write(ctx, &checkpoint.Record{
		SessionID: "s-1",
		Seq:       0,
		Node:      "CLASSIFY",
		State:     json.RawMessage(`{"turn":1}`),
	}))
	latest, err := cps.ReadLatest(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "CLASSIFY", latest.Node)
	assert.JSONEq(t, `{"turn":1}`, string(latest.State))

	approvals := approval.NewGormStore(db, zap.NewNop())
	require.NoError(t, approvals.Create(ctx, &approval.Record{
		ID:        "apr-1",
		SessionID: "s-1",
		Seq:       1,
		ToolCall: governance.ToolCall{
			ID:        "call-1",
			Name:      "calculate_department_payroll",
			Arguments: json.RawMessage(`{"department":"Engineering"}`),
		},
		Requester: "alice",
		Status:    approval.StatusPending,
		CreatedAt: time.Now().UTC(),
	}))
	resolved, err := approvals.Resolve(ctx, "apr-1", approval.StatusApproved, "bob", "ok", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, resolved.Status)
	assert.Equal(t, "calculate_department_payroll", resolved.ToolCall.Name)
}
