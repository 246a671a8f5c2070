package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
)

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <scope>",
		Short: "Delete a scope's index",
		Long: `Delete removes a scope's index store. The scope's status record is kept,
so 'amanindex status' reports the scope as unavailable along with the time
it was last indexed. Deleting an index that does not exist does nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scope := args[0]

			rt, err := openRuntime(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if !rt.orch.Enabled() {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No index provider configured (provider: none); nothing to do.")
				return nil
			}

			err = rt.orch.DeleteIndex(ctx, scope)
			if amerrors.IsBusy(err) {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s is being built; try again later.\n", scope)
				return nil
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted index for %s\n", scope)
			return nil
		},
	}
}
