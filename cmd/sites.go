package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/careermap/jobradar/internal/config"
)

// newSitesCmd creates the 'sites' subcommand, which lists every board
// the crawler knows about, builtin and configured.
func newSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List the known job boards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tENABLED\tBASE URL\tMAX PAGES\tDELAY\tDETAIL")
			for _, d := range cfg.Catalog() {
				detail := "-"
				if d.Detail != nil {
					detail = "yes"
				}
				fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%s\t%s\n",
					d.Name, d.Enabled, d.BaseURL, d.MaxPages, d.BaseDelay, detail)
			}
			return w.Flush()
		},
	}
}
