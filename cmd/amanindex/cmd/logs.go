package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/logging"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	scope   string
	runID   string
	logFile string
}

func newLogsCmd(opts *rootOptions) *cobra.Command {
	lo := logsOptions{}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View amanindex logs",
		Long: `Show the last lines of the amanindex log, optionally filtered by level,
scope, build run or pattern. Use -f to follow new entries.

Every line a build logs carries its scope and a run_id, so one build's
history can be pulled out of interleaved parallel builds.`,
		Example: `  amanindex logs -n 100
  amanindex logs --scope products --level warn
  amanindex logs --run 3f2a -f`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, opts, lo)
		},
	}

	cmd.Flags().BoolVarP(&lo.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&lo.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&lo.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&lo.filter, "filter", "", "Only lines matching this regular expression")
	cmd.Flags().StringVar(&lo.scope, "scope", "", "Only lines for this scope")
	cmd.Flags().StringVar(&lo.runID, "run", "", "Only lines for the build run whose id starts with this")
	cmd.Flags().StringVar(&lo.logFile, "file", "", "Log file (default ~/.amanindex/logs/amanindex.log)")

	return cmd
}

func runLogs(cmd *cobra.Command, opts *rootOptions, lo logsOptions) error {
	path := lo.logFile
	if path == "" {
		path = logging.DefaultLogPath()
	}

	var pattern *regexp.Regexp
	if lo.filter != "" {
		p, err := regexp.Compile(lo.filter)
		if err != nil {
			return amerrors.ValidationError("invalid --filter pattern", err)
		}
		pattern = p
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   lo.level,
		Pattern: pattern,
		Scope:   lo.scope,
		RunID:   lo.runID,
		NoColor: opts.colorDisabled(),
	}, cmd.OutOrStdout())

	if _, err := os.Stat(path); err != nil {
		return amerrors.New(amerrors.ErrCodeFileNotFound, "no log file at "+path, err).
			WithSuggestion("Run a build first, or pass --file")
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Log file: %s\n---\n", path)

	entries, err := viewer.Tail(path, lo.lines)
	if err != nil {
		return amerrors.IOError("failed to read log file", err)
	}
	viewer.Print(entries)

	if !lo.follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return follow(ctx, cmd, viewer, path)
}

func follow(ctx context.Context, cmd *cobra.Command, viewer *logging.Viewer, path string) error {
	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() { errCh <- viewer.Follow(ctx, path, entries) }()

	for {
		select {
		case entry := <-entries:
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		}
	}
}
