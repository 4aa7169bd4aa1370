package handler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dsifry/metarelay/internal/event"
)

func boolPtr(b bool) *bool { return &b }

func validConfigs() []Config {
	return []Config{
		{
			Name:      "notify-failures",
			EventType: event.TypeCheckRun,
			Action:    "completed",
			Command:   "notify {{repo}} {{payload.conclusion}}",
			Filters:   []string{`payload.conclusion == 'failure'`},
		},
		{
			Name:      "log-all-check-runs",
			EventType: event.TypeCheckRun,
			Command:   "log {{summary}}",
		},
		{
			Name:      "review-handler",
			EventType: event.TypePullRequestReview,
			Action:    "submitted",
			Command:   "review {{actor}}",
			Timeout:   10,
		},
	}
}

func TestNewRegistry_Valid(t *testing.T) {
	r, err := NewRegistry(validConfigs())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}

	hs := r.Handlers()
	if hs[0].Timeout != DefaultTimeout {
		t.Errorf("default timeout = %v, want %v", hs[0].Timeout, DefaultTimeout)
	}
	if hs[2].Timeout != 10*time.Second {
		t.Errorf("explicit timeout = %v, want 10s", hs[2].Timeout)
	}
	if !hs[0].Enabled {
		t.Error("handlers default to enabled")
	}
}

func TestNewRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing name", Config{EventType: event.TypePush, Command: "x"}},
		{"unknown event type", Config{Name: "h", EventType: "nonsense", Command: "x"}},
		{"missing command", Config{Name: "h", EventType: event.TypePush}},
		{"negative timeout", Config{Name: "h", EventType: event.TypePush, Command: "x", Timeout: -1}},
		{"bad filter", Config{Name: "h", EventType: event.TypePush, Command: "x", Filters: []string{"not a filter"}}},
		{"bad template", Config{Name: "h", EventType: event.TypePush, Command: "echo {{oops"}},
	}

	for _, tt := range tests {
		if _, err := NewRegistry([]Config{tt.cfg}); err == nil {
			t.Errorf("%s: NewRegistry should fail", tt.name)
		}
	}
}

func TestNewRegistry_DuplicateName(t *testing.T) {
	cfgs := []Config{
		{Name: "dup", EventType: event.TypePush, Command: "a"},
		{Name: "dup", EventType: event.TypePush, Command: "b"},
	}
	if _, err := NewRegistry(cfgs); err == nil {
		t.Error("duplicate handler name should fail")
	}
}

func TestMatch_TypeActionAndFilters(t *testing.T) {
	r, err := NewRegistry(validConfigs())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	failed := &event.Event{
		Type:    event.TypeCheckRun,
		Action:  "completed",
		Payload: json.RawMessage(`{"conclusion":"failure"}`),
	}
	matches := r.Match(failed)
	if len(matches) != 2 {
		t.Fatalf("Match = %d handlers, want 2", len(matches))
	}
	// Declaration order is dispatch order.
	if matches[0].Name != "notify-failures" || matches[1].Name != "log-all-check-runs" {
		t.Errorf("match order = %s, %s", matches[0].Name, matches[1].Name)
	}

	succeeded := &event.Event{
		Type:    event.TypeCheckRun,
		Action:  "completed",
		Payload: json.RawMessage(`{"conclusion":"success"}`),
	}
	matches = r.Match(succeeded)
	if len(matches) != 1 || matches[0].Name != "log-all-check-runs" {
		t.Errorf("filtered match = %v, want only log-all-check-runs", names(matches))
	}
}

func TestMatch_WildcardAction(t *testing.T) {
	r, err := NewRegistry([]Config{
		{Name: "wild", EventType: event.TypeCheckRun, Command: "x"},
		{Name: "exact", EventType: event.TypeCheckRun, Action: "created", Command: "x"},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	created := &event.Event{Type: event.TypeCheckRun, Action: "created"}
	if got := names(r.Match(created)); len(got) != 2 {
		t.Errorf("Match(created) = %v, want both", got)
	}

	completed := &event.Event{Type: event.TypeCheckRun, Action: "completed"}
	if got := names(r.Match(completed)); len(got) != 1 || got[0] != "wild" {
		t.Errorf("Match(completed) = %v, want only wild", got)
	}
}

func TestMatch_Disabled(t *testing.T) {
	r, err := NewRegistry([]Config{
		{Name: "off", EventType: event.TypePush, Command: "x", Enabled: boolPtr(false)},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if got := r.Match(&event.Event{Type: event.TypePush}); len(got) != 0 {
		t.Errorf("disabled handler matched: %v", names(got))
	}
}

func TestMatch_OtherType(t *testing.T) {
	r, err := NewRegistry(validConfigs())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if got := r.Match(&event.Event{Type: event.TypeRelease, Action: "published"}); len(got) != 0 {
		t.Errorf("unexpected match: %v", names(got))
	}
}

func names(hs []*Handler) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Name
	}
	return out
}
