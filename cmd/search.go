package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "search <party name>",
		Short: "Runs one crawl and prints the result as JSON",
		Long: `Runs discovery and enrichment for the given party name across every
configured source, writes the CSV export and prints the run summary. With
--records the full run, including every record, is printed instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withApp(cmd, func(app App) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				run, err := app.RunOnce(ctx, query)
				if err != nil {
					return fmt.Errorf("search %q: %w", query, err)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetEscapeHTML(false)
				enc.SetIndent("", "  ")
				if full {
					return enc.Encode(run)
				}
				return enc.Encode(run.Summary())
			})
		},
	}
	cmd.Flags().BoolVar(&full, "records", false, "print every record instead of the summary")
	return cmd
}
