package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanindex/internal/config"
	"github.com/Aman-CERP/amanindex/internal/status"
	"github.com/Aman-CERP/amanindex/internal/ui"
)

// scopeView is one row of 'amanindex scopes'.
type scopeView struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Root    string   `json:"root"`
	Include []string `json:"include"`
	Key     string   `json:"key"`
}

func newScopesCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "scopes",
		Short: "List configured scopes",
		Long: `List every scope registered from the project configuration, with the
storage key that names its index, status record and lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			views := make([]scopeView, 0, rt.registry.Len())
			for _, name := range rt.orch.Scopes() {
				sc, _ := rt.cfg.Scope(name)
				views = append(views, newScopeView(rt.root, rt.cfg.Environment, sc.WithDefaults()))
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}
			if len(views) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No scopes configured. Run 'amanindex init' to create "+config.ProjectConfigFile+".")
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderScopes(views, opts.colorDisabled()))
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newScopeView(root, env string, sc config.ScopeConfig) scopeView {
	scopeRoot := sc.Root
	if filepath.IsAbs(scopeRoot) {
		if rel, err := filepath.Rel(root, scopeRoot); err == nil && !strings.HasPrefix(rel, "..") {
			scopeRoot = rel
		}
	}
	include := sc.Include
	if include == nil {
		include = []string{}
	}
	return scopeView{
		Name:    sc.Name,
		Type:    sc.Type,
		Root:    filepath.ToSlash(scopeRoot),
		Include: include,
		Key:     status.Key(sc.Name, env),
	}
}

func renderScopes(views []scopeView, noColor bool) string {
	styles := ui.GetStyles(noColor)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styles.Dim).
		Headers("SCOPE", "TYPE", "ROOT", "INCLUDE", "KEY").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, v := range views {
		include := strings.Join(v.Include, " ")
		if include == "" {
			include = "*"
		}
		t.Row(v.Name, v.Type, v.Root, include, v.Key)
	}
	return t.String()
}
