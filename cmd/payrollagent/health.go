package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/FaresOuhachi/HR-Payroll-Agent/api/handlers"
)

// healthCommand 请求运行中服务的存活或就绪探针，非 200 返回错误。
// 就绪报告里的每个依赖逐行输出。
func healthCommand(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "server base URL")
	ready := fs.Bool("ready", false, "probe /ready (dependencies) instead of /health")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := "/health"
	if *ready {
		path = "/ready"
	}
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(*addr, "/")+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", path, err)
	}
	defer resp.Body.Close()

	var report handlers.HealthReport
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&report); err != nil {
		return fmt.Errorf("probe %s: status %d, unreadable body: %w", path, resp.StatusCode, err)
	}

	fmt.Fprintln(out, report.Status)
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		c := report.Checks[name]
		fmt.Fprintf(out, "  %-18s %s %dms %s\n", name, c.Status, c.LatencyMS, c.Error)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	return nil
}
