package migration

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
)

// Action migrate 子命令
type Action string

const (
	ActionUp      Action = "up"
	ActionDown    Action = "down"
	ActionReset   Action = "reset"
	ActionSteps   Action = "steps"
	ActionGoto    Action = "goto"
	ActionForce   Action = "force"
	ActionVersion Action = "version"
	ActionStatus  Action = "status"
	ActionInfo    Action = "info"
)

// TakesNumber 报告该子命令是否需要一个数字参数
func (a Action) TakesNumber() bool {
	return a == ActionSteps || a == ActionGoto || a == ActionForce
}

// Known 报告是否是受支持的子命令
func (a Action) Known() bool {
	switch a {
	case ActionUp, ActionDown, ActionReset, ActionSteps, ActionGoto,
		ActionForce, ActionVersion, ActionStatus, ActionInfo:
		return true
	}
	return false
}

// Command 一次 migrate 调用
type Command struct {
	Action Action
	// steps/goto/force 的参数
	N int
}

// Runner 执行 Command 并把结果以人类可读的形式写到 out
type Runner struct {
	m   *Migrator
	out io.Writer
}

func NewRunner(m *Migrator, out io.Writer) *Runner {
	return &Runner{m: m, out: out}
}

// Run 执行命令。变更类命令结束后打印新的 Schema 版本。
func (r *Runner) Run(ctx context.Context, cmd Command) error {
	var err error
	label := string(cmd.Action)

	switch cmd.Action {
	case ActionUp:
		err = r.m.Up(ctx)
	case ActionDown:
		err = r.m.Down(ctx)
	case ActionReset:
		err = r.m.Reset(ctx)
	case ActionSteps:
		err = r.m.Steps(ctx, cmd.N)
		label += " " + strconv.Itoa(cmd.N)
	case ActionGoto:
		if cmd.N < 0 {
			return fmt.Errorf("goto: version must not be negative, got %d", cmd.N)
		}
		err = r.m.Goto(ctx, uint(cmd.N))
		label += " " + strconv.Itoa(cmd.N)
	case ActionForce:
		err = r.m.Force(ctx, cmd.N)
		label += " " + strconv.Itoa(cmd.N)
	case ActionVersion:
		return r.version(ctx)
	case ActionStatus:
		return r.status(ctx)
	case ActionInfo:
		return r.info(ctx)
	default:
		return fmt.Errorf("unknown migrate action %q", cmd.Action)
	}
	if err != nil {
		return err
	}

	v, dirty, err := r.m.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s: schema version %s\n", label, describeVersion(v, dirty))
	return nil
}

func (r *Runner) version(ctx context.Context) error {
	v, dirty, err := r.m.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "schema version: %s\n", describeVersion(v, dirty))
	return nil
}

func (r *Runner) status(ctx context.Context) error {
	steps, err := r.m.Plan(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
	applied := 0
	for _, s := range steps {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		if s.Applied {
			applied++
		}
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%d applied, %d pending\n", applied, len(steps)-applied)
	return nil
}

func (r *Runner) info(ctx context.Context) error {
	sum, err := r.m.Summary(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "dialect: %s\n", r.m.Dialect())
	fmt.Fprintf(r.out, "version: %s\n", describeVersion(sum.Version, sum.Dirty))
	fmt.Fprintf(r.out, "applied: %d/%d\n", sum.Applied, sum.Total)
	fmt.Fprintf(r.out, "pending: %d\n", sum.Pending)
	return nil
}

func describeVersion(v uint, dirty bool) string {
	if v == 0 && !dirty {
		return "none"
	}
	s := strconv.FormatUint(uint64(v), 10)
	if dirty {
		s += " (dirty)"
	}
	return s
}
