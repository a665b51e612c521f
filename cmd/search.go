package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/classic-hero/classichero/internal/dataset"
)

func newSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search AUTHOR",
		Short: "Lists Gutenberg books by an author",
		Long: `Queries the Gutendex catalog for books by AUTHOR and prints their metadata
as JSON, which helps pick book ids for the heroes configuration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			books, err := appInstance.Search(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			return dataset.Encode(cmd.OutOrStdout(), books)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of results")
	return cmd
}
