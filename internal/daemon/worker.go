package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/dsifry/metarelay/internal/cloud"
	"github.com/dsifry/metarelay/internal/config"
	"github.com/dsifry/metarelay/internal/event"
	"github.com/dsifry/metarelay/internal/store"
)

// worker drives one repo through the relay state machine:
//
//	INIT → CATCHUP → SUBSCRIBING ↔ RECONNECTING → SHUTDOWN
//
// The worker exclusively owns its in-flight events between ingestion and
// cursor advance; the cursor it tracks in memory mirrors the persisted one.
type worker struct {
	d    *Daemon
	repo config.RepoConfig

	// drainCtx is not cancelled at shutdown; writes made while finishing the
	// current event go through it.
	drainCtx context.Context

	cursor int64
	logger *slog.Logger
}

// init loads the persisted cursor. A repo never seen before starts at 0.
func (w *worker) init(ctx context.Context) error {
	cursor, _, err := w.d.store.GetCursor(ctx, w.repo.Name)
	if err != nil {
		return err
	}
	w.cursor = cursor
	w.logger.Info("worker starting", "cursor", cursor)
	return nil
}

// run is the worker main loop. Returns nil on graceful shutdown, an error on
// fatal storage or cloud failures.
func (w *worker) run(ctx context.Context) error {
	if err := w.init(ctx); err != nil {
		return err
	}

	reconnect := newCloudBackoff()

	for {
		if ctx.Err() != nil {
			return nil
		}

		// CATCHUP
		if err := w.catchUp(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		// SUBSCRIBING
		events, errs, err := w.d.cloud.Subscribe(ctx, w.repo.Name)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !cloud.IsTransient(err) {
				return err
			}
			// RECONNECTING
			if !w.sleep(ctx, reconnect.NextBackOff()) {
				return nil
			}
			continue
		}

		err = w.consume(ctx, events, errs, reconnect)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !cloud.IsTransient(err) {
			return err
		}

		// RECONNECTING: the stream ended; back off, then fall back to
		// catch-up before resubscribing.
		w.logger.Info("live stream ended, falling back to catch-up")
		if !w.sleep(ctx, reconnect.NextBackOff()) {
			return nil
		}
	}
}

// catchUp pages through fetch_since until an empty page, dispatching each
// event and advancing the cursor as it goes.
func (w *worker) catchUp(ctx context.Context) error {
	for {
		page, err := w.fetchPage(ctx)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			w.logger.Debug("catch-up complete", "cursor", w.cursor)
			return nil
		}

		for i := range page {
			if err := w.processEvent(&page[i]); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// fetchPage retrieves one catch-up page, retrying transient failures with
// backoff. Fatal errors and cancellation end the retry loop immediately.
func (w *worker) fetchPage(ctx context.Context) ([]event.Event, error) {
	var page []event.Event

	op := func() error {
		events, err := w.d.cloud.FetchSince(ctx, w.repo.Name, w.cursor, cloud.DefaultFetchLimit)
		if err != nil {
			if cloud.IsTransient(err) {
				w.logger.Warn("catch-up fetch failed, retrying", "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		page = events
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(newCloudBackoff(), ctx)); err != nil {
		return nil, err
	}
	return page, nil
}

// consume drains the live stream until it closes or errors. Events at or
// below the cursor are accepted into the dedup log but not redispatched; a
// gap above the cursor triggers catch-up re-entry before the event is
// processed.
func (w *worker) consume(ctx context.Context, events <-chan event.Event, errs <-chan error, reconnect *backoff.ExponentialBackOff) error {
	w.logger.Info("live stream subscribed", "cursor", w.cursor)

	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := w.handleLive(ctx, &ev); err != nil {
				return err
			}
			reconnect.Reset()

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return err

		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func (w *worker) handleLive(ctx context.Context, ev *event.Event) error {
	if ev.RemoteID <= w.cursor {
		// Already covered by the cursor: record for dedup observability, do
		// not redispatch, do not touch the cursor.
		claimed, err := w.d.store.TryClaim(w.drainCtx, ev)
		if err != nil {
			return err
		}
		if claimed {
			w.logger.Debug("late event claimed without dispatch", "remote_id", ev.RemoteID)
		}
		return nil
	}

	if ev.RemoteID > w.cursor+1 {
		filled, err := w.gapFilled(ev.RemoteID)
		if err != nil {
			return err
		}
		if !filled {
			w.logger.Info("gap detected, re-entering catch-up",
				"cursor", w.cursor,
				"arrived", ev.RemoteID,
			)
			if err := w.catchUp(ctx); err != nil {
				return err
			}
		}
	}

	if ev.RemoteID <= w.cursor {
		// Catch-up already covered this event.
		_, err := w.d.store.TryClaim(w.drainCtx, ev)
		return err
	}
	return w.processEvent(ev)
}

// gapFilled reports whether every remote_id between the cursor and arrivedID
// is already claimed, i.e. the apparent gap is only out-of-order delivery.
func (w *worker) gapFilled(arrivedID int64) (bool, error) {
	want := arrivedID - w.cursor - 1
	claimed, err := w.d.store.CountClaimedInRange(w.drainCtx, w.repo.Name, w.cursor, arrivedID)
	if err != nil {
		return false, err
	}
	return claimed >= want, nil
}

// processEvent is the per-event dispatch procedure shared by catch-up and
// live subscription: claim, journal, match, dispatch all matches, advance
// cursor. It runs on drainCtx so shutdown lets the event finish.
func (w *worker) processEvent(ev *event.Event) error {
	claimed, err := w.d.store.TryClaim(w.drainCtx, ev)
	if err != nil {
		return err
	}

	if claimed {
		if j := w.d.journals[w.repo.Name]; j != nil {
			// Journal durability precedes cursor advance.
			if err := j.Append(ev); err != nil {
				return err
			}
		}

		handlers := w.d.registry.Match(ev)
		if len(handlers) > 0 {
			// All handlers for one event may run concurrently; the event
			// counts as dispatched once every handler has a record.
			g := new(errgroup.Group)
			for _, h := range handlers {
				g.Go(func() error {
					rec, err := w.d.runner.Dispatch(w.drainCtx, ev, h)
					if err != nil {
						return err
					}
					if rec.Outcome != store.OutcomeSuccess {
						w.logger.Warn("handler did not succeed",
							"handler", h.Name,
							"remote_id", ev.RemoteID,
							"outcome", rec.Outcome,
							"exit_status", rec.ExitStatus,
						)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
		}
		w.logger.Info("event dispatched",
			"remote_id", ev.RemoteID,
			"event_type", ev.Type,
			"action", ev.Action,
			"handlers", len(handlers),
		)
	} else {
		w.logger.Debug("dedup hit", "remote_id", ev.RemoteID, "delivery_id", ev.DeliveryID)
	}

	return w.advanceCursor(ev.RemoteID)
}

// advanceCursor persists the new high-water mark. Equal values are
// idempotent; a stale value here means another path already advanced past us,
// which is fine.
func (w *worker) advanceCursor(remoteID int64) error {
	if remoteID <= w.cursor {
		return nil
	}
	if err := w.d.store.SetCursor(w.drainCtx, w.repo.Name, remoteID); err != nil {
		if errors.Is(err, store.ErrStaleCursor) {
			w.logger.Warn("cursor already ahead", "remote_id", remoteID)
			return nil
		}
		return err
	}
	w.cursor = remoteID
	return nil
}

// sleep waits for d or cancellation. Returns false when ctx ended.
func (w *worker) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
