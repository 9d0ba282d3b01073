package fetch

import (
	"os"

	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/engine"
	"github.com/spf13/cobra"
)

// Command creates the fetch subcommand for one-shot media aggregation from
// the terminal.
func Command(settings *conf.Settings) *cobra.Command {
	var categories []string

	cmd := &cobra.Command{
		Use:   "fetch [character]",
		Short: "Aggregate media for one character and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return engine.FetchOnce(cmd.Context(), settings, args[0], categories, os.Stdout)
		},
	}

	cmd.Flags().StringSliceVar(&categories, "categories", nil,
		"Comma-separated media categories to fetch (default all)")

	return cmd
}
