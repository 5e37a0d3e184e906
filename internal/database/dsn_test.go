package database

import (
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
)

func TestDSN_Postgres(t *testing.T) {
	dsn, err := DSN(config.DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5432,
		User: "payroll", Password: "p@ss word", Name: "hr", SSLMode: "require",
	})
	require.NoError(t, err)

	pc, err := pgconn.ParseConfig(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db", pc.Host)
	assert.Equal(t, uint16(5432), pc.Port)
	assert.Equal(t, "payroll", pc.User)
	assert.Equal(t, "p@ss word", pc.Password)
	assert.Equal(t, "hr", pc.Database)
	assert.NotNil(t, pc.TLSConfig)
}

func TestDSN_MySQL(t *testing.T) {
	dsn, err := DSN(config.DatabaseConfig{
		Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "payroll",
	})
	require.NoError(t, err)
	assert.Equal(t, "u:p@tcp(db:3306)/payroll?parseTime=true", dsn)

	mc, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, mc.ParseTime)
}

func TestDSN_SQLiteAndErrors(t *testing.T) {
	dsn, err := DSN(config.DatabaseConfig{Driver: "sqlite", Name: "payroll.db"})
	require.NoError(t, err)
	assert.Equal(t, "payroll.db", dsn)

	_, err = DSN(config.DatabaseConfig{Driver: "sqlite"})
	assert.ErrorContains(t, err, "path not configured")

	_, err = DSN(config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, `unsupported database driver "oracle"`)
}
