package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/arxiv-harvest/internal/auditlog"
	"github.com/JakeFAU/arxiv-harvest/internal/ledger"
)

// newStatusCmd creates the 'status' subcommand, which reports progress and
// recent run outcomes without touching the network.
func newStatusCmd() *cobra.Command {
	var runLimit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Shows harvest progress and recent run outcomes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			led, err := ledger.Load(cfg.Paths.ProgressFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Processed papers: %d\n", led.Len())

			audit, err := auditlog.Open(cfg.Paths.AuditDB)
			if err != nil {
				return err
			}
			defer audit.Close()

			summaries, err := audit.Summarize(runLimit)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No recorded runs.")
				return nil
			}

			for _, s := range summaries {
				fmt.Fprintf(out, "\nRun %s (%d papers):\n", s.RunID, s.Total)
				kinds := make([]string, 0, len(s.Counts))
				for kind := range s.Counts {
					kinds = append(kinds, kind)
				}
				sort.Strings(kinds)
				for _, kind := range kinds {
					fmt.Fprintf(out, "  %-25s %d\n", kind, s.Counts[kind])
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&runLimit, "runs", 5, "number of recent runs to show")
	return cmd
}
