package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dsifry/metarelay/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print per-repo cursors and counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			summary, err := st.StatusSummary(context.Background())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "REPO\tCURSOR\tCLAIMED\tDISPATCHED")
			for _, s := range summary {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", s.Repo, s.LastID, s.Claimed, s.Dispatched)
			}
			if len(summary) == 0 {
				fmt.Fprintln(w, "(no repos seen yet)\t\t\t")
			}
			return w.Flush()
		},
	}
}
