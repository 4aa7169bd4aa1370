package dispatch

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dsifry/metarelay/internal/event"
	"github.com/dsifry/metarelay/internal/handler"
	"github.com/dsifry/metarelay/internal/store"
)

// fakeRecorder captures dispatch records in memory.
type fakeRecorder struct {
	mu      sync.Mutex
	records []store.DispatchRecord
	err     error
}

func (f *fakeRecorder) RecordDispatch(ctx context.Context, r store.DispatchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, r)
	return nil
}

func (f *fakeRecorder) last(t *testing.T) store.DispatchRecord {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) == 0 {
		t.Fatal("no dispatch record written")
	}
	return f.records[len(f.records)-1]
}

func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test shell commands assume a POSIX sh")
	}
}

func compileHandler(t *testing.T, command string, timeoutSec int) *handler.Handler {
	t.Helper()
	r, err := handler.NewRegistry([]handler.Config{{
		Name:      "h",
		EventType: event.TypeCheckRun,
		Command:   command,
		Timeout:   timeoutSec,
	}})
	if err != nil {
		t.Fatalf("compile handler: %v", err)
	}
	return r.Handlers()[0]
}

func testEvent() *event.Event {
	return &event.Event{
		RemoteID:   7,
		Repo:       "o/r",
		Type:       event.TypeCheckRun,
		Action:     "completed",
		DeliveryID: "d7",
	}
}

func TestDispatch_Success(t *testing.T) {
	requirePOSIX(t)

	rec := &fakeRecorder{}
	d := New(rec, 2)

	got, err := d.Dispatch(context.Background(), testEvent(), compileHandler(t, "echo {{repo}}", 30))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got.Outcome != store.OutcomeSuccess {
		t.Errorf("outcome = %q, want success", got.Outcome)
	}
	if got.ExitStatus != 0 {
		t.Errorf("exit status = %d, want 0", got.ExitStatus)
	}
	if strings.TrimSpace(got.Stdout) != "o/r" {
		t.Errorf("stdout = %q, want o/r", got.Stdout)
	}
	if got.RemoteID != 7 || got.HandlerName != "h" {
		t.Errorf("record key = (%d, %s)", got.RemoteID, got.HandlerName)
	}

	stored := rec.last(t)
	if stored.Outcome != store.OutcomeSuccess {
		t.Errorf("stored outcome = %q, want success", stored.Outcome)
	}
}

func TestDispatch_Failure(t *testing.T) {
	requirePOSIX(t)

	rec := &fakeRecorder{}
	d := New(rec, 2)

	got, err := d.Dispatch(context.Background(), testEvent(), compileHandler(t, "echo oops >&2; exit 3", 30))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got.Outcome != store.OutcomeFailure {
		t.Errorf("outcome = %q, want failure", got.Outcome)
	}
	if got.ExitStatus != 3 {
		t.Errorf("exit status = %d, want 3", got.ExitStatus)
	}
	if !strings.Contains(got.Stderr, "oops") {
		t.Errorf("stderr = %q, want to contain oops", got.Stderr)
	}
}

func TestDispatch_Timeout(t *testing.T) {
	requirePOSIX(t)

	rec := &fakeRecorder{}
	d := New(rec, 2, WithGrace(200*time.Millisecond))

	start := time.Now()
	got, err := d.Dispatch(context.Background(), testEvent(), compileHandler(t, "sleep 5", 1))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got.Outcome != store.OutcomeTimeout {
		t.Errorf("outcome = %q, want timeout", got.Outcome)
	}
	if got.ExitStatus == 0 {
		t.Error("timed-out process should not report exit status 0")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("dispatch took %v, termination did not work", elapsed)
	}
}

func TestDispatch_LaunchFailure(t *testing.T) {
	requirePOSIX(t)

	rec := &fakeRecorder{}
	d := New(rec, 2)

	// The shell launches fine but the named executable does not exist, so the
	// shell exits non-zero with a diagnostic.
	got, err := d.Dispatch(context.Background(), testEvent(), compileHandler(t, "/nonexistent/program", 30))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got.Outcome != store.OutcomeFailure {
		t.Errorf("outcome = %q, want failure", got.Outcome)
	}
	if got.ExitStatus == 0 {
		t.Error("exit status should be non-zero")
	}
	if got.Stderr == "" {
		t.Error("stderr should carry a diagnostic")
	}
}

func TestDispatch_CancelledBeforeLaunch(t *testing.T) {
	rec := &fakeRecorder{}
	d := New(rec, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := d.Dispatch(ctx, testEvent(), compileHandler(t, "echo never", 30))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got.Outcome != store.OutcomeSkipped {
		t.Errorf("outcome = %q, want skipped", got.Outcome)
	}
	if rec.last(t).Outcome != store.OutcomeSkipped {
		t.Error("skipped dispatch must still be recorded")
	}
}

func TestDispatch_OutputTruncation(t *testing.T) {
	requirePOSIX(t)

	rec := &fakeRecorder{}
	d := New(rec, 2)

	// Emit ~1 MiB; capture caps at 64 KiB.
	got, err := d.Dispatch(context.Background(), testEvent(),
		compileHandler(t, `i=0; while [ $i -lt 16384 ]; do echo "0123456789012345678901234567890123456789012345678901234567890123"; i=$((i+1)); done`, 30))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got.Outcome != store.OutcomeSuccess {
		t.Errorf("outcome = %q, want success", got.Outcome)
	}
	if len(got.Stdout) > MaxCaptureBytes+len(truncationMarker) {
		t.Errorf("stdout length = %d, cap leaked", len(got.Stdout))
	}
	if !strings.HasSuffix(got.Stdout, truncationMarker) {
		t.Error("truncated stdout should end with the truncation marker")
	}
}

func TestCappedBuffer(t *testing.T) {
	b := newCappedBuffer(8)

	n, err := b.Write([]byte("12345"))
	if err != nil || n != 5 {
		t.Fatalf("Write = (%d, %v)", n, err)
	}
	n, err = b.Write([]byte("67890"))
	if err != nil || n != 5 {
		t.Fatalf("Write = (%d, %v)", n, err)
	}

	got := b.String()
	if got != "12345678"+truncationMarker {
		t.Errorf("String() = %q", got)
	}
}

func TestDispatch_ConcurrencyBound(t *testing.T) {
	requirePOSIX(t)

	rec := &fakeRecorder{}
	d := New(rec, 1)

	// With a pool of one, two 300 ms sleeps cannot overlap.
	h := compileHandler(t, "sleep 0.3", 30)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Dispatch(context.Background(), testEvent(), h); err != nil {
				t.Errorf("Dispatch: %v", err)
			}
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Errorf("dispatches overlapped, elapsed %v", elapsed)
	}
}
