package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/migration"
)

// errMigrateUsage 子命令或参数错误，调用方打印帮助
var errMigrateUsage = errors.New("invalid migrate usage")

// migrateCommand 执行一个迁移子命令，输出写入 out
func migrateCommand(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: missing subcommand", errMigrateUsage)
	}
	sub, rest := args[0], args[1:]

	if sub == "help" || sub == "-h" || sub == "--help" {
		printMigrateUsage(out)
		return nil
	}

	action := migration.Action(sub)
	if !action.Known() {
		return fmt.Errorf("%w: unknown subcommand %q", errMigrateUsage, sub)
	}
	cmd := migration.Command{Action: action}
	// goto/force/steps 的第一个位置参数是数字
	if action.TakesNumber() {
		if len(rest) < 1 {
			return fmt.Errorf("%w: %s requires a number", errMigrateUsage, sub)
		}
		v, err := strconv.ParseInt(rest[0], 10, 32)
		if err != nil || (action == migration.ActionGoto && v < 0) {
			return fmt.Errorf("%w: invalid number %q", errMigrateUsage, rest[0])
		}
		cmd.N, rest = int(v), rest[1:]
	}

	fs := flag.NewFlagSet("migrate "+sub, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	all := fs.Bool("all", false, "Rollback all migrations (down only)")
	if err := fs.Parse(rest); err != nil {
		return fmt.Errorf("%w: %v", errMigrateUsage, err)
	}
	if action == migration.ActionDown && *all {
		cmd.Action = migration.ActionReset
	}

	m, err := createMigrator(*configPath, *dbType, *dbURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	return migration.NewRunner(m, out).Run(ctx, cmd)
}

// createMigrator 优先使用 --db-type/--db-url，否则从配置文件的 database 段构造
func createMigrator(configPath, dbType, dbURL string) (*migration.Migrator, error) {
	if dbType != "" && dbURL != "" {
		return migration.OpenURL(dbType, dbURL, zap.NewNop())
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	return migration.OpenDatabase(cfg.Database, logger)
}

func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Database Migration Commands

Usage:
  payrollagent migrate <subcommand> [args] [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration (--all for every migration)
  steps <n>   Apply n migrations, or roll back when n is negative
  status      Show migration status
  version     Show current migration version
  info        Show migration counters
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  reset       Rollback all migrations
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  payrollagent migrate up
  payrollagent migrate up --config /etc/payrollagent/config.yaml
  payrollagent migrate status --db-type sqlite --db-url "file:payroll.db?mode=rwc"
  payrollagent migrate goto 1
  payrollagent migrate reset`)
}
