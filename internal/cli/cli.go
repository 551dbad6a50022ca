// Package cli holds offline maintenance commands. They run on the same
// command core as the slash commands, with Invocation.Args as input and an
// *Env as data.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/internal/guard"
	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
	"github.com/TaomasSpace/clubhall-guard/internal/storage"
	"github.com/TaomasSpace/clubhall-guard/pkg/cmd"
)

var ErrUsage = errors.New("usage")

// Env is what a CLI command runs against.
type Env struct {
	Storage *storage.Storage
	Timers  scheduler.PersistencePort
	Out     io.Writer
	Now     func() time.Time
}

// Registry returns the CLI commands.
func Registry() *cmd.Registry {
	r := cmd.NewRegistry()
	r.Register(timersCommand{})
	r.Register(policiesCommand{})
	r.Register(dropCommand{})
	return r
}

// Run dispatches args[0] to a command in r.
func Run(ctx context.Context, r *cmd.Registry, env *Env, args []string) error {
	if len(args) == 0 {
		Usage(env.Out, r)
		return ErrUsage
	}
	c := r.Get(args[0])
	if c == nil {
		Usage(env.Out, r)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
	return c.Run(ctx, &cmd.Invocation{Args: args[1:], Data: env})
}

func Usage(w io.Writer, r *cmd.Registry) {
	fmt.Fprintln(w, "commands:")
	for _, c := range r.GetAll() {
		fmt.Fprintf(w, "  %-10s %s\n", c.Name(), c.Description())
	}
}

func envOf(inv *cmd.Invocation) (*Env, error) {
	env, ok := inv.Data.(*Env)
	if !ok || env == nil {
		return nil, errors.New("cli: missing environment")
	}
	return env, nil
}

type timersCommand struct{}

func (timersCommand) Name() string        { return "timers" }
func (timersCommand) Description() string { return "[guild] list persisted timers by deadline" }

func (timersCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	env, err := envOf(inv)
	if err != nil {
		return err
	}
	all, err := env.Timers.ListAllTimers(ctx)
	if err != nil {
		return err
	}

	var entries []scheduler.TimerEntry
	for _, e := range all {
		if len(inv.Args) > 0 && e.TenantID != inv.Args[0] {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Deadline.Before(entries[j].Deadline) })

	if len(entries) == 0 {
		fmt.Fprintln(env.Out, "no timers")
		return nil
	}
	now := env.Now()
	tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GUILD\tKIND\tTIMER\tDEADLINE\tDUE")
	for _, e := range entries {
		due := "overdue"
		if d := e.Deadline.Sub(now); d > 0 {
			due = "in " + command.FormatDuration(d.Truncate(time.Second))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.TenantID, e.Kind, e.TimerID, e.Deadline.UTC().Format(time.RFC3339), due)
	}
	return tw.Flush()
}

type policiesCommand struct{}

func (policiesCommand) Name() string        { return "policies" }
func (policiesCommand) Description() string { return "<guild> show effective antinuke policies" }

func (policiesCommand) Run(_ context.Context, inv *cmd.Invocation) error {
	env, err := envOf(inv)
	if err != nil {
		return err
	}
	if len(inv.Args) != 1 {
		return fmt.Errorf("%w: policies <guild>", ErrUsage)
	}
	guildID := inv.Args[0]

	policies, err := env.Storage.Policies(guildID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tENABLED\tTHRESHOLD\tPUNISHMENT")
	for _, cat := range guard.Categories() {
		p, ok := policies[cat]
		if !ok {
			fmt.Fprintf(tw, "%s\t-\t-\t-\n", cat)
			continue
		}
		punishment := string(p.Punishment)
		if p.Punishment == guard.PunishTimeout {
			punishment += " " + command.FormatDuration(p.TimeoutDuration)
		}
		fmt.Fprintf(tw, "%s\t%t\t%d\t%s\n", cat, p.Enabled, p.ThresholdCount, punishment)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	ex, err := env.Storage.GetExemptions(guildID)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "\nsafe users: %s\nsafe roles: %s\n", list(ex.SafeActorIDs), list(ex.SafeRoleIDs))
	return nil
}

type dropCommand struct{}

func (dropCommand) Name() string { return "drop" }
func (dropCommand) Description() string {
	return "<guild> <kind> <timer> delete a persisted timer while the bot is stopped"
}

func (dropCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	env, err := envOf(inv)
	if err != nil {
		return err
	}
	if len(inv.Args) != 3 {
		return fmt.Errorf("%w: drop <guild> <kind> <timer>", ErrUsage)
	}
	kind, err := scheduler.ParseKind(inv.Args[1])
	if err != nil {
		return err
	}
	if err := env.Timers.DeleteTimer(ctx, inv.Args[0], inv.Args[2], kind); err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "dropped %s\n", scheduler.Key{TenantID: inv.Args[0], TimerID: inv.Args[2], Kind: kind})
	return nil
}

func list(ids map[string]struct{}) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(slices.Sorted(maps.Keys(ids)), ", ")
}
