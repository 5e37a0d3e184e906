package migration

import (
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"

	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
)

// 000001 建立 employees、graph_checkpoints、approvals 三张表，
// 列定义对应 payroll.Employee、checkpoint.Row 与 approval.Row。
//
//go:embed migrations
var scriptsFS embed.FS

// Dialect 数据库方言
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

type dialect struct {
	// database/sql 驱动名
	sqlDriver string
	// golang-migrate 数据库驱动
	wrap func(db *sql.DB, table string) (database.Driver, error)
}

var dialects = map[Dialect]dialect{
	Postgres: {
		sqlDriver: "postgres",
		wrap: func(db *sql.DB, table string) (database.Driver, error) {
			return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
		},
	},
	MySQL: {
		sqlDriver: "mysql",
		wrap: func(db *sql.DB, table string) (database.Driver, error) {
			return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
		},
	},
	SQLite: {
		// mattn/go-sqlite3；GORM 侧的 glebarez 驱动注册为 "sqlite"
		sqlDriver: "sqlite3",
		wrap: func(db *sql.DB, table string) (database.Driver, error) {
			return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: table})
		},
	},
}

// ParseDialect 解析方言名称，接受常见别名
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported database type: %q", s)
}

// dir 返回该方言在 scriptsFS 中的目录
func (d Dialect) dir() string {
	return "migrations/" + string(d)
}

// URLFor 把 database 配置段转换成 golang-migrate 使用的连接 URL。
// sqlite 的 Name 是数据库文件路径。
func URLFor(cfg config.DatabaseConfig) (Dialect, string, error) {
	d, err := ParseDialect(cfg.Driver)
	if err != nil {
		return "", "", err
	}
	hostPort := cfg.Host + ":" + strconv.Itoa(cfg.Port)

	switch d {
	case Postgres:
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "require"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     hostPort,
			Path:     "/" + cfg.Name,
			RawQuery: "sslmode=" + url.QueryEscape(sslMode),
		}
		return d, u.String(), nil
	case MySQL:
		return d, fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&multiStatements=true",
			cfg.User, cfg.Password, hostPort, cfg.Name), nil
	default:
		return d, "file:" + cfg.Name + "?mode=rwc&_foreign_keys=on", nil
	}
}
