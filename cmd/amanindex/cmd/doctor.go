package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanindex/internal/config"
	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/preflight"
	"github.com/Aman-CERP/amanindex/internal/store"
)

// doctorReport is the JSON shape of 'amanindex doctor --json'.
type doctorReport struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this project can build its indexes",
		Long: `Doctor loads the project configuration and checks the data directory,
the open file limit, every scope root, the index provider and the status
backend. It exits non-zero when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			checker := preflight.New(
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose))

			results := runDoctor(ctx, checker, opts)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(doctorReport{Status: checker.SummaryStatus(results), Checks: results}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return amerrors.New(amerrors.ErrCodeConfigInvalid, "preflight checks failed", nil).
					WithSuggestion("Run 'amanindex doctor --verbose' for details")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for each check")

	return cmd
}

func runDoctor(ctx context.Context, checker *preflight.Checker, opts *rootOptions) []preflight.CheckResult {
	root, err := config.FindProjectRoot(opts.dir)
	if err != nil {
		return []preflight.CheckResult{{Name: "config", Status: preflight.StatusFail, Required: true, Message: err.Error()}}
	}
	cfg, err := config.Load(root)
	if err != nil {
		result := preflight.CheckResult{Name: "config", Status: preflight.StatusFail, Required: true, Message: err.Error()}
		if code := amerrors.GetCode(err); code != "" {
			result.Details = code
		}
		return []preflight.CheckResult{result}
	}

	dataDir := cfg.ResolveDataDir(root)
	results := []preflight.CheckResult{{
		Name:     "config",
		Status:   preflight.StatusPass,
		Required: true,
		Message:  fmt.Sprintf("%d scopes, environment %s", len(cfg.Scopes), cfg.Environment),
	}}
	if len(cfg.Scopes) == 0 {
		results[0].Status = preflight.StatusWarn
		results[0].Details = "Add scopes to " + config.ProjectConfigFile
	}

	target := preflight.Target{
		DataDir: dataDir,
		Checks: []preflight.Check{
			{Name: "provider", Required: true, Run: checkProvider(cfg, dataDir)},
			{Name: "status_backend", Required: true, Run: checkStatusBackend(cfg, dataDir)},
		},
	}
	for _, sc := range cfg.Scopes {
		sc = sc.WithDefaults()
		scopeRoot := sc.Root
		if !filepath.IsAbs(scopeRoot) {
			scopeRoot = filepath.Join(root, scopeRoot)
		}
		target.Scopes = append(target.Scopes, preflight.ScopeRoot{Name: sc.Name, Root: scopeRoot})
	}

	return append(results, checker.RunAll(ctx, target)...)
}

func checkProvider(cfg *config.Config, dataDir string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		dir := filepath.Join(dataDir, indexesDir)
		p, err := store.NewProvider(cfg.Provider, dir, cfg.StoreOpenTimeout)
		if err != nil {
			return "", err
		}
		if p == nil {
			return "disabled (provider: none)", nil
		}
		if err := p.Close(); err != nil {
			return "", err
		}
		return cfg.Provider + " at " + dir, nil
	}
}

func checkStatusBackend(cfg *config.Config, dataDir string) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		if _, err := newStatusBackend(ctx, cfg, dataDir); err != nil {
			return "", err
		}
		if cfg.Status.Backend == config.StatusBackendMinio {
			return fmt.Sprintf("minio bucket %s at %s", cfg.Status.Minio.Bucket, cfg.Status.Minio.Endpoint), nil
		}
		return "file at " + filepath.Join(dataDir, statusDir), nil
	}
}
