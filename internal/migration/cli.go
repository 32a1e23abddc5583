package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
)

// CLI 把 Migrator 暴露为 `careerflow migrate` 的子命令，结果写到 output.
type CLI struct {
	migrator Migrator
	output   io.Writer
	commands map[string]command
}

type command struct {
	usage string
	nargs int
	run   func(ctx context.Context, args []string) error
}

func NewCLI(migrator Migrator) *CLI {
	c := &CLI{migrator: migrator, output: os.Stdout}
	c.commands = map[string]command{
		"up":      {usage: "up", run: c.up},
		"down":    {usage: "down", run: c.down},
		"reset":   {usage: "reset", run: c.reset},
		"steps":   {usage: "steps <n>", nargs: 1, run: c.steps},
		"goto":    {usage: "goto <version>", nargs: 1, run: c.gotoVersion},
		"force":   {usage: "force <version>", nargs: 1, run: c.force},
		"version": {usage: "version", run: c.version},
		"status":  {usage: "status", run: c.status},
		"info":    {usage: "info", run: c.info},
	}
	return c
}

// SetOutput 替换输出目标，测试中用于捕获输出.
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// Commands 返回按字母序排列的子命令用法.
func (c *CLI) Commands() []string {
	out := make([]string, 0, len(c.commands))
	for _, cmd := range c.commands {
		out = append(out, cmd.usage)
	}
	sort.Strings(out)
	return out
}

// Run 执行一个子命令. goto、force 与 steps 需要一个位置参数.
func (c *CLI) Run(ctx context.Context, name string, args []string) error {
	cmd, ok := c.commands[name]
	if !ok {
		return fmt.Errorf("unknown migrate subcommand: %s", name)
	}
	if len(args) < cmd.nargs {
		return fmt.Errorf("usage: migrate %s", cmd.usage)
	}
	return cmd.run(ctx, args)
}

// =============================================================================
// 🔧 子命令
// =============================================================================

func (c *CLI) up(ctx context.Context, _ []string) error {
	fmt.Fprintln(c.output, "Applying session and transcript schema...")
	if err := c.migrator.Up(ctx); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return c.printCurrent(ctx, "Schema up to date")
}

func (c *CLI) down(ctx context.Context, _ []string) error {
	if err := c.migrator.Down(ctx); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return c.printCurrent(ctx, "Rolled back one migration")
}

func (c *CLI) reset(ctx context.Context, _ []string) error {
	if err := c.migrator.DownAll(ctx); err != nil {
		return fmt.Errorf("migrate reset: %w", err)
	}
	fmt.Fprintln(c.output, "All migrations rolled back. Transcript tables dropped.")
	return nil
}

func (c *CLI) steps(ctx context.Context, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n == 0 {
		return fmt.Errorf("invalid step count: %s", args[0])
	}
	if err := c.migrator.Steps(ctx, n); err != nil {
		return fmt.Errorf("migrate steps %d: %w", n, err)
	}
	return c.printCurrent(ctx, fmt.Sprintf("Moved %+d step(s)", n))
}

func (c *CLI) gotoVersion(ctx context.Context, args []string) error {
	v, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid version number: %s", args[0])
	}
	if err := c.migrator.Goto(ctx, uint(v)); err != nil {
		return fmt.Errorf("migrate goto %d: %w", v, err)
	}
	return c.printCurrent(ctx, "Migrated")
}

func (c *CLI) force(ctx context.Context, args []string) error {
	v, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid version number: %s", args[0])
	}
	if err := c.migrator.Force(ctx, int(v)); err != nil {
		return fmt.Errorf("migrate force %d: %w", v, err)
	}
	fmt.Fprintf(c.output, "Version forced to %d. Dirty flag cleared.\n", v)
	return nil
}

func (c *CLI) version(ctx context.Context, _ []string) error {
	v, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	switch {
	case v == 0:
		fmt.Fprintln(c.output, "No migrations applied yet.")
	case dirty:
		fmt.Fprintf(c.output, "Current version: %d (dirty, run `migrate force %d` after fixing)\n", v, v)
	default:
		fmt.Fprintf(c.output, "Current version: %d\n", v)
	}
	return nil
}

func (c *CLI) status(ctx context.Context, _ []string) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations embedded for this database.")
		return nil
	}

	tw := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", s.Version, s.Name, stateLabel(s))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

func (c *CLI) info(ctx context.Context, _ []string) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("read info: %w", err)
	}
	tw := tabwriter.NewWriter(c.output, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "current\t%d\n", info.CurrentVersion)
	fmt.Fprintf(tw, "dirty\t%t\n", info.Dirty)
	fmt.Fprintf(tw, "total\t%d\n", info.TotalMigrations)
	fmt.Fprintf(tw, "applied\t%d\n", info.AppliedMigrations)
	fmt.Fprintf(tw, "pending\t%d\n", info.PendingMigrations)
	return tw.Flush()
}

func (c *CLI) printCurrent(ctx context.Context, prefix string) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "%s. Current version: %d\n", prefix, info.CurrentVersion)
	return nil
}

func stateLabel(s MigrationStatus) string {
	switch {
	case s.Dirty:
		return "dirty"
	case s.Applied:
		return "applied"
	default:
		return "pending"
	}
}
