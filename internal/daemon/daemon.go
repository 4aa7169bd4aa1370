// Package daemon runs the relay: one worker per configured repo, each
// driving the catch-up/subscribe state machine against the cloud client and
// recording progress in the local event store.
package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/dsifry/metarelay/internal/cloud"
	"github.com/dsifry/metarelay/internal/config"
	"github.com/dsifry/metarelay/internal/event"
	"github.com/dsifry/metarelay/internal/handler"
	"github.com/dsifry/metarelay/internal/store"
)

// Store is what the daemon needs from the local event store.
type Store interface {
	GetCursor(ctx context.Context, repo string) (int64, bool, error)
	SetCursor(ctx context.Context, repo string, remoteID int64) error
	TryClaim(ctx context.Context, e *event.Event) (bool, error)
	CountClaimedInRange(ctx context.Context, repo string, afterID, beforeID int64) (int64, error)
}

// Runner executes one handler for one event and persists the result.
type Runner interface {
	Dispatch(ctx context.Context, e *event.Event, h *handler.Handler) (store.DispatchRecord, error)
}

// Journal is the per-repo event journal.
type Journal interface {
	Append(e *event.Event) error
}

// Daemon owns the repo workers. Workers share the store and the runner, plus
// the cloud client and the read-only handler registry; each worker keeps its
// own cursor.
type Daemon struct {
	cloud    cloud.Client
	store    Store
	registry *handler.Registry
	runner   Runner
	repos    []config.RepoConfig
	journals map[string]Journal
	logger   *slog.Logger
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Daemon) { d.logger = logger }
}

// WithJournal attaches an event journal for one repo.
func WithJournal(repo string, j Journal) Option {
	return func(d *Daemon) { d.journals[repo] = j }
}

// New creates a Daemon.
func New(cloudClient cloud.Client, st Store, registry *handler.Registry, runner Runner, repos []config.RepoConfig, opts ...Option) *Daemon {
	d := &Daemon{
		cloud:    cloudClient,
		store:    st,
		registry: registry,
		runner:   runner,
		repos:    repos,
		journals: make(map[string]Journal),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run starts one worker per repo and blocks until ctx is cancelled or a
// worker hits a fatal error. Cancellation is graceful: workers stop reading
// new events, in-flight dispatches run to completion under their own
// timeouts, and cursors are persisted before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	// Store, journal, and dispatch writes survive shutdown cancellation so an
	// event that started processing finishes with a consistent record.
	drainCtx := context.WithoutCancel(ctx)

	g, ctx := errgroup.WithContext(ctx)
	for _, repo := range d.repos {
		w := d.newWorker(repo, drainCtx)
		g.Go(func() error {
			return w.run(ctx)
		})
	}
	return g.Wait()
}

// Sync runs the catch-up phase once for every repo and returns. Used by the
// one-shot sync command.
func (d *Daemon) Sync(ctx context.Context) error {
	drainCtx := context.WithoutCancel(ctx)

	g, ctx := errgroup.WithContext(ctx)
	for _, repo := range d.repos {
		w := d.newWorker(repo, drainCtx)
		g.Go(func() error {
			if err := w.init(ctx); err != nil {
				return err
			}
			return w.catchUp(ctx)
		})
	}
	return g.Wait()
}

func (d *Daemon) newWorker(repo config.RepoConfig, drainCtx context.Context) *worker {
	return &worker{
		d:        d,
		repo:     repo,
		drainCtx: drainCtx,
		logger:   d.logger.With("repo", repo.Name),
	}
}

// newCloudBackoff builds the retry policy for transient cloud failures:
// initial 1 s, doubling, capped at 30 s, jittered, no overall deadline. Reset
// on success.
func newCloudBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	return bo
}
