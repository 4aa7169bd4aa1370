// Package journal writes the per-repo append-only event journal consumed by
// external subagents. One JSON object per line; the daemon never truncates or
// rewrites the file, rotation is the operator's concern.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dsifry/metarelay/internal/appinfo"
	"github.com/dsifry/metarelay/internal/event"
)

// Entry is one journal line. It carries the raw event fields plus the local
// ingestion timestamp.
type Entry struct {
	ID         int64           `json:"id"`
	Repo       string          `json:"repo"`
	EventType  string          `json:"event_type"`
	Action     string          `json:"action"`
	Ref        string          `json:"ref,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	Summary    string          `json:"summary"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	DeliveryID string          `json:"delivery_id"`
	CreatedAt  time.Time       `json:"created_at"`
	IngestedAt time.Time       `json:"ingested_at"`
}

// Writer appends events to {repoPath}/.metarelay/events.jsonl. Safe for
// concurrent use.
type Writer struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// Open creates the journal directory (0700) if absent and opens the journal
// file (0600) for appending.
func Open(repoPath string) (*Writer, error) {
	dir := filepath.Join(repoPath, appinfo.JournalDirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	path := filepath.Join(dir, appinfo.JournalFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &Writer{path: path, f: f}, nil
}

// Append writes one event as a JSON line and flushes it to disk. The flush
// must complete before the caller advances the repo cursor; a consumer that
// tails the journal never sees a cursor ahead of the file.
func (w *Writer) Append(e *event.Event) error {
	entry := Entry{
		ID:         e.RemoteID,
		Repo:       e.Repo,
		EventType:  e.Type,
		Action:     e.Action,
		Ref:        e.Ref,
		Actor:      e.Actor,
		Summary:    e.Summary,
		Payload:    e.Payload,
		DeliveryID: e.DeliveryID,
		CreatedAt:  e.CreatedAt,
		IngestedAt: time.Now().UTC(),
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.f.Write(line); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// Path returns the journal file path.
func (w *Writer) Path() string {
	return w.path
}

// Close closes the journal file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
