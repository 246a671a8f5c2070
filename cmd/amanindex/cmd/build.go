package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/index"
	"github.com/Aman-CERP/amanindex/internal/ui"
)

// buildKind describes one of the two build subcommands.
type buildKind struct {
	mode  index.Mode
	short string
	long  string
}

var (
	buildRebuild = buildKind{
		mode:  index.ModeRebuild,
		short: "Drop and rebuild scope indexes from scratch",
		long: `Rebuild deletes each scope's index and repopulates it with every document
its collector finds.

A scope already being built by another process is skipped with a warning.`,
	}
	buildUpdate = buildKind{
		mode:  index.ModeUpdate,
		short: "Apply changes since the last build to scope indexes",
		long: `Update applies the documents changed since each scope's last build,
deleting removed documents before adding new ones. A scope that was never
built is collected in full.

A scope already being built by another process is skipped with a warning.`,
	}
)

func newBuildCmd(opts *rootOptions, kind buildKind) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   string(kind.mode) + " [scope...]",
		Short: kind.short,
		Long:  kind.long,
		Example: fmt.Sprintf(`  # %[1]s one scope
  amanindex %[1]s code

  # %[1]s every configured scope in parallel
  amanindex %[1]s --all`, kind.mode),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return amerrors.ValidationError("name at least one scope or pass --all", nil)
			}
			if all && len(args) > 0 {
				return amerrors.ValidationError("--all cannot be combined with scope names", nil)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runBuild(ctx, cmd, opts, kind.mode, args, all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Build every configured scope")

	return cmd
}

// buildReport tallies per-scope outcomes of one command.
type buildReport struct {
	mu         sync.Mutex
	operations int
	failed     []string
	busy       []string
}

func runBuild(ctx context.Context, cmd *cobra.Command, opts *rootOptions, mode index.Mode, scopes []string, all bool) error {
	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(opts.colorDisabled())))

	report := &buildReport{}
	onSegment := func(scope string, segment, applied int) {
		report.mu.Lock()
		report.operations += applied
		report.mu.Unlock()
		renderer.UpdateProgress(ui.ProgressEvent{
			Scope:   scope,
			Mode:    string(mode),
			Stage:   ui.StageApplying,
			Segment: segment,
			Applied: applied,
		})
	}

	rt, err := openRuntime(ctx, opts, onSegment)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if !rt.orch.Enabled() {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No index provider configured (provider: none); nothing to do.")
		return nil
	}
	if all {
		scopes = rt.orch.Scopes()
		if len(scopes) == 0 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No scopes configured in "+rt.root)
			return nil
		}
	}

	build := rt.orch.Update
	if mode == index.ModeRebuild {
		build = rt.orch.Rebuild
	}

	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	start := time.Now()

	// Scopes are independent, so one failure must not cancel the others.
	var g errgroup.Group
	g.SetLimit(max(rt.cfg.Parallelism, 1))
	for _, scope := range scopes {
		g.Go(func() error {
			renderer.UpdateProgress(ui.ProgressEvent{Scope: scope, Mode: string(mode), Stage: ui.StageStarting})

			err := build(ctx, scope)

			report.mu.Lock()
			defer report.mu.Unlock()
			switch {
			case err == nil:
				renderer.UpdateProgress(ui.ProgressEvent{Scope: scope, Mode: string(mode), Stage: ui.StageComplete})
			case amerrors.IsBusy(err):
				report.busy = append(report.busy, scope)
				renderer.AddError(ui.ErrorEvent{Scope: scope, Err: err, IsWarn: true})
			default:
				report.failed = append(report.failed, scope)
				renderer.AddError(ui.ErrorEvent{Scope: scope, Err: err})
			}
			return nil
		})
	}
	_ = g.Wait()

	renderer.Complete(ui.CompletionStats{
		Scopes:     len(scopes),
		Operations: report.operations,
		Duration:   time.Since(start),
		Errors:     len(report.failed),
		Warnings:   len(report.busy),
	})

	if len(report.failed) > 0 {
		return amerrors.New(amerrors.ErrCodeIndexFailed,
			fmt.Sprintf("%s failed for %d of %d scopes", mode, len(report.failed), len(scopes)), nil).
			WithDetail("scopes", fmt.Sprint(report.failed)).
			WithSuggestion("Run with --debug for details; the log is under ~/.amanindex/logs/")
	}
	return nil
}
