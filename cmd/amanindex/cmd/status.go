package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanindex/internal/status"
	"github.com/Aman-CERP/amanindex/internal/ui"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [scope...]",
		Short: "Show index status",
		Long: `Display the status of each scope's index:
  - idle, rebuilding, updating, or unavailable when no index exists
  - when the scope was last indexed
  - the live document count and field names

A scope stuck in rebuilding or updating for a long time was most likely
interrupted; the next build of that scope resets it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := openRuntime(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			scopes := args
			if len(scopes) == 0 {
				scopes = rt.orch.Scopes()
			}

			infos := make([]status.IndexInfo, 0, len(scopes))
			for _, scope := range scopes {
				info, err := rt.orch.IndexInfo(ctx, scope)
				if err != nil {
					return err
				}
				infos = append(infos, info)
			}

			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), opts.colorDisabled())
			if jsonOutput {
				return renderer.RenderJSON(infos)
			}
			return renderer.Render(infos)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
