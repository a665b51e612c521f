package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/classic-hero/classichero/internal/merge"
)

func newMergeCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merges collected books into the served dataset",
		Long: `Backs up the served dataset, then folds collected_books.json into it.
In append mode books already present are skipped; in replace mode collected
books overwrite existing ones with the same id.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch merge.Mode(mode) {
			case "", merge.ModeAppend, merge.ModeReplace:
			default:
				return fmt.Errorf("--mode must be append or replace, got %q", mode)
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := appInstance.Merge(mode)
			if err != nil {
				return fmt.Errorf("merge: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged %d new books (%d skipped), dataset now has %d books\n",
				res.Added, len(res.Skipped), res.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "append or replace (default from config)")
	return cmd
}
