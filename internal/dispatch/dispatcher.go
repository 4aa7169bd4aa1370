// Package dispatch runs handler commands as subprocesses under a bounded
// worker pool, with per-dispatch timeouts and captured output. Execution
// failures are never errors for the caller; every launch produces exactly one
// DispatchRecord. The only error Dispatch can return is a storage failure
// while recording the result.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dsifry/metarelay/internal/event"
	"github.com/dsifry/metarelay/internal/handler"
	"github.com/dsifry/metarelay/internal/store"
)

// DefaultConcurrency is the worker pool size when the config does not set one.
const DefaultConcurrency = 4

// terminateGrace is how long a timed-out process gets between the polite
// signal and the hard kill.
const terminateGrace = 5 * time.Second

// Recorder persists dispatch results.
type Recorder interface {
	RecordDispatch(ctx context.Context, r store.DispatchRecord) error
}

// Dispatcher executes handler commands. The semaphore bounds how many
// subprocesses run at once across all repos; contention is resolved by the
// semaphore, FIFO not guaranteed.
type Dispatcher struct {
	recorder Recorder
	sem      *semaphore.Weighted
	logger   *slog.Logger
	grace    time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithGrace sets the SIGTERM-to-SIGKILL grace period (for testing).
func WithGrace(grace time.Duration) Option {
	return func(d *Dispatcher) { d.grace = grace }
}

// New creates a Dispatcher with the given concurrency limit.
func New(recorder Recorder, concurrency int, opts ...Option) *Dispatcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	d := &Dispatcher{
		recorder: recorder,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		logger:   slog.Default(),
		grace:    terminateGrace,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch expands the handler's command template against the event and runs
// it, waiting for a pool slot first. The returned record always exists and
// has already been persisted; the error return is non-nil only when
// persisting failed.
func (d *Dispatcher) Dispatch(ctx context.Context, e *event.Event, h *handler.Handler) (store.DispatchRecord, error) {
	rec := store.DispatchRecord{
		RemoteID:    e.RemoteID,
		HandlerName: h.Name,
		StartedAt:   time.Now(),
	}

	// Acquire may succeed on an already-done context; check first so a
	// cancelled dispatch is consistently recorded as skipped.
	err := ctx.Err()
	if err == nil {
		err = d.sem.Acquire(ctx, 1)
	}
	if err != nil {
		rec.Outcome = store.OutcomeSkipped
		rec.ExitStatus = -1
		rec.Stderr = "dispatch cancelled before launch: " + err.Error()
		rec.EndedAt = time.Now()
		return rec, d.record(rec)
	}

	cmdline := h.Command.Expand(e)
	rec.StartedAt = time.Now()
	d.run(ctx, cmdline, h.Timeout, &rec)
	rec.EndedAt = time.Now()

	d.sem.Release(1)

	d.logger.Debug("dispatched",
		"handler", h.Name,
		"remote_id", e.RemoteID,
		"outcome", rec.Outcome,
		"exit_status", rec.ExitStatus,
	)
	return rec, d.record(rec)
}

// record persists the result. Recording survives caller cancellation; losing
// a record would let a replay redispatch the handler.
func (d *Dispatcher) record(rec store.DispatchRecord) error {
	return d.recorder.RecordDispatch(context.Background(), rec)
}

// run executes cmdline and fills outcome, exit status, and captured output.
func (d *Dispatcher) run(ctx context.Context, cmdline string, timeout time.Duration, rec *store.DispatchRecord) {
	stdout := newCappedBuffer(MaxCaptureBytes)
	stderr := newCappedBuffer(MaxCaptureBytes)

	cmd := shellCommand(cmdline)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		rec.Outcome = store.OutcomeFailure
		rec.ExitStatus = -1
		rec.Stderr = "launch failed: " + err.Error()
		return
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false

	select {
	case waitErr = <-done:
	case <-timer.C:
		timedOut = true
		waitErr = d.reap(cmd, done)
	case <-ctx.Done():
		waitErr = d.reap(cmd, done)
	}

	rec.Stdout = stdout.String()
	rec.Stderr = stderr.String()
	rec.ExitStatus = cmd.ProcessState.ExitCode()

	switch {
	case timedOut:
		rec.Outcome = store.OutcomeTimeout
	case waitErr == nil:
		rec.Outcome = store.OutcomeSuccess
	default:
		rec.Outcome = store.OutcomeFailure
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) && rec.Stderr == "" {
			rec.Stderr = waitErr.Error()
		}
	}
}

// reap terminates the process: polite signal, bounded grace, then hard kill.
// Returns the wait error once the process is gone.
func (d *Dispatcher) reap(cmd *exec.Cmd, done <-chan error) error {
	terminate(cmd)
	select {
	case err := <-done:
		return err
	case <-time.After(d.grace):
		kill(cmd)
		return <-done
	}
}
