package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dsifry/metarelay/internal/cloud"
	"github.com/dsifry/metarelay/internal/config"
	"github.com/dsifry/metarelay/internal/daemon"
	"github.com/dsifry/metarelay/internal/dispatch"
	"github.com/dsifry/metarelay/internal/handler"
	"github.com/dsifry/metarelay/internal/journal"
	"github.com/dsifry/metarelay/internal/singleinstance"
	"github.com/dsifry/metarelay/internal/store"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the relay daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runStart(cfg)
		},
	}
}

func runStart(cfg config.Config) error {
	release, ok, err := singleinstance.AcquireLock(filepath.Dir(cfg.DBPath))
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: another metarelay instance is already running", errConfig)
	}
	defer release()

	d, st, closeAll, err := buildDaemon(cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	if vacuumed, err := st.VacuumIfNeeded(context.Background()); err != nil {
		slog.Warn("VACUUM check failed", "error", err)
	} else if vacuumed {
		slog.Info("database maintenance completed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("metarelay starting", "repos", len(cfg.Repos), "db", cfg.DBPath)
	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	slog.Info("metarelay stopped")
	return nil
}

// buildDaemon wires the store, cloud client, registry, dispatcher, and
// journals into a Daemon. The returned closer releases everything opened
// here.
func buildDaemon(cfg config.Config) (*daemon.Daemon, *store.Store, func(), error) {
	registry, err := handler.NewRegistry(cfg.Handlers)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", errConfig, err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	closers := []func(){func() { st.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	client := cloud.New(cfg.Cloud.URL, cfg.Cloud.Key.Value())
	dispatcher := dispatch.New(st, cfg.Concurrency)

	opts := []daemon.Option{}
	for _, repo := range cfg.Repos {
		if repo.Path == "" {
			continue
		}
		j, err := journal.Open(repo.Path)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("open journal for %s: %w", repo.Name, err)
		}
		closers = append(closers, func() { j.Close() })
		opts = append(opts, daemon.WithJournal(repo.Name, j))
	}

	return daemon.New(client, st, registry, dispatcher, cfg.Repos, opts...), st, closeAll, nil
}
