// Package cmd provides the CLI commands for amanindex.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/logging"
	"github.com/Aman-CERP/amanindex/internal/profiling"
	"github.com/Aman-CERP/amanindex/internal/ui"
	"github.com/Aman-CERP/amanindex/pkg/version"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	dir     string
	debug   bool
	plain   bool
	noColor bool

	profile  profiling.Options
	profiler *profiling.Session

	logLevel       string
	loggingCleanup func()
}

func (o *rootOptions) colorDisabled() bool {
	return o.noColor || ui.DetectNoColor()
}

// NewRootCmd creates the root command for the amanindex CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "amanindex",
		Short: "Build and maintain local search indexes",
		Long: `amanindex builds named search indexes ("scopes") from the files in a
project and keeps them current.

Each scope is rebuilt from scratch or updated incrementally, guarded by a
per-scope lock so concurrent runs never build the same index twice, and
tracked by a status record that reports whether it is idle, building or
unavailable.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("amanindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "Project directory")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to stderr and ~/.amanindex/logs/")
	cmd.PersistentFlags().BoolVar(&opts.plain, "plain", false, "Plain line output instead of a progress spinner")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output (also NO_COLOR)")

	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")
	for _, name := range []string{"profile-cpu", "profile-mem", "profile-trace"} {
		_ = cmd.PersistentFlags().MarkHidden(name)
	}

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if err := opts.startLogging(os.Getenv("AMANINDEX_LOG_LEVEL")); err != nil {
			return err
		}
		return opts.startProfiling()
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		defer opts.stopLogging()
		return opts.stopProfiling()
	}

	cmd.AddCommand(newBuildCmd(opts, buildRebuild))
	cmd.AddCommand(newBuildCmd(opts, buildUpdate))
	cmd.AddCommand(newDeleteCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newScopesCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newLogsCmd(opts))
	cmd.AddCommand(newInitCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging sends structured logs to the rotating log file. With --debug
// they are mirrored to stderr at debug level and level is ignored.
func (o *rootOptions) startLogging(level string) error {
	cfg := logging.DefaultConfig()
	if level != "" {
		cfg.Level = level
	}
	if o.debug {
		cfg = logging.DebugConfig()
		cfg.WriteToStderr = true
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.loggingCleanup = cleanup
	o.logLevel = cfg.Level
	slog.SetDefault(logger)
	if o.debug {
		slog.Debug("debug_logging_enabled",
			slog.String("log_file", cfg.FilePath),
			slog.String("version", version.Version))
	}
	return nil
}

// applyLogLevel restarts logging at the configured level once the project
// config is known.
func (o *rootOptions) applyLogLevel(level string) error {
	if o.debug || level == "" || level == o.logLevel {
		return nil
	}
	o.stopLogging()
	return o.startLogging(level)
}

func (o *rootOptions) startProfiling() error {
	if !o.profile.Enabled() {
		return nil
	}
	session, err := profiling.Start(o.profile)
	if err != nil {
		return err
	}
	o.profiler = session
	slog.Debug("profiling_started",
		slog.String("cpu", o.profile.CPU),
		slog.String("heap", o.profile.Heap),
		slog.String("trace", o.profile.Trace))
	return nil
}

func (o *rootOptions) stopProfiling() error {
	if o.profiler == nil {
		return nil
	}
	err := o.profiler.Stop()
	o.profiler = nil
	return err
}

func (o *rootOptions) stopLogging() {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}

// Execute runs the root command and prints a formatted error on failure.
func Execute() error {
	return execute(NewRootCmd())
}

// execute runs root and reports a failure on its stderr. A command run
// with --json reports the error as a JSON object instead of text.
func execute(root *cobra.Command) error {
	executed, err := root.ExecuteC()
	if err == nil {
		return nil
	}

	w := root.ErrOrStderr()
	if executed != nil && jsonRequested(executed) {
		if data, jerr := amerrors.FormatJSON(err); jerr == nil {
			_, _ = fmt.Fprintln(w, string(data))
			return err
		}
	}
	_, _ = fmt.Fprintln(w, amerrors.FormatForCLI(err))
	return err
}

func jsonRequested(c *cobra.Command) bool {
	f := c.Flags().Lookup("json")
	return f != nil && f.Value.String() == "true"
}
