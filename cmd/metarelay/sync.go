package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run catch-up once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			d, _, closeAll, err := buildDaemon(cfg)
			if err != nil {
				return err
			}
			defer closeAll()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := d.Sync(ctx); err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			slog.Info("sync complete")
			return nil
		},
	}
}
