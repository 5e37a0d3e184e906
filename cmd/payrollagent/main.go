// @title HR Payroll Agent API
// @version 1.0.0
// @description Durable execution graph for HR and payroll questions: classification,
// @description specialist routing, governed tool calls and human approval of high-impact actions.
// @description
// @description Sessions are checkpointed after every node and resume after restarts.
// @description Payroll actions above policy thresholds wait for an approver.
// @description Session events are streamed over SSE and WebSocket.

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT bearer token: "Bearer <token>"

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
)

// 构建时通过 -ldflags "-X main.Version=..." 注入
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, out io.Writer) error
}

func commands() []command {
	return []command{
		{"serve", "Start the API and metrics servers", serveCommand},
		{"migrate", "Manage database schema migrations", migrateCommand},
		{"health", "Probe a running server's /health or /ready endpoint", healthCommand},
		{"version", "Print build information", versionCommand},
	}
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run 执行一个子命令并返回进程退出码：0 成功，1 运行失败，2 用法错误
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		usage(stdout)
		return 0
	}

	for _, c := range commands() {
		if c.name != name {
			continue
		}
		err := c.run(ctx, args[1:], stdout)
		switch {
		case err == nil, errors.Is(err, flag.ErrHelp):
			return 0
		case errors.Is(err, errMigrateUsage):
			fmt.Fprintln(stderr, err)
			printMigrateUsage(stderr)
			return 2
		default:
			fmt.Fprintf(stderr, "%s: %v\n", name, err)
			return 1
		}
	}

	fmt.Fprintf(stderr, "unknown command %q\n\n", name)
	usage(stderr)
	return 2
}

func serveCommand(ctx context.Context, args []string, _ io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file; governance and router changes are applied live")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting payroll agent",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
		zap.String("store_backend", cfg.Store.Backend),
		zap.Bool("auth", cfg.Auth.Enabled),
	)

	srv := NewServer(cfg, *configPath, logger)
	if err := srv.Start(ctx); err != nil {
		_ = srv.Shutdown(context.Background())
		return fmt.Errorf("start server: %w", err)
	}
	if err := srv.WaitForShutdown(); err != nil {
		return err
	}
	logger.Info("payroll agent stopped")
	return nil
}

// loadConfig 默认值 → YAML → PAYROLL_ 环境变量，最后校验
func loadConfig(path string) (*config.Config, error) {
	opts := []config.Option{config.WithValidation()}
	if path != "" {
		opts = append(opts, config.WithFile(path))
	}
	return config.Load(opts...)
}

func versionCommand(_ context.Context, _ []string, out io.Writer) error {
	_, err := fmt.Fprintf(out, "payrollagent %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
	return err
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "payrollagent - HR/Payroll agent execution graph")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: payrollagent <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands() {
		fmt.Fprintf(w, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'payrollagent <command> -h' for command options.")
	fmt.Fprintln(w, "PAYROLL_* environment variables override the config file,")
	fmt.Fprintln(w, "e.g. PAYROLL_STORE_BACKEND=redis PAYROLL_AUTH_JWT_SECRET=...")
}
