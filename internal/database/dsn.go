package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
)

// DSN 生成驱动连接串。postgres 为 URL 形式并经 pgconn 解析校验；
// mysql 由驱动自己的 Config 格式化；sqlite 直接使用 Name 作为文件路径。
func DSN(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case "postgres":
		return postgresDSN(cfg)
	case "mysql":
		c := mysql.NewConfig()
		c.User = cfg.User
		c.Passwd = cfg.Password
		c.Net = "tcp"
		c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		c.DBName = cfg.Name
		c.ParseTime = true
		return c.FormatDSN(), nil
	case "sqlite":
		if cfg.Name == "" {
			return "", fmt.Errorf("sqlite database path not configured")
		}
		return cfg.Name, nil
	}
	return "", fmt.Errorf("unsupported database driver %q (postgres, mysql, sqlite)", cfg.Driver)
}

func postgresDSN(cfg config.DatabaseConfig) (string, error) {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	dsn := u.String()
	if _, err := pgconn.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("postgres dsn: %w", err)
	}
	return dsn, nil
}
