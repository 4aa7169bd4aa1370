package event

import (
	"encoding/json"
	"testing"
	"time"
)

func testEvent() *Event {
	return &Event{
		RemoteID:   42,
		Repo:       "octo/widgets",
		Type:       TypeCheckRun,
		Action:     "completed",
		Ref:        "main",
		Actor:      "octocat",
		Summary:    "CI / build",
		Payload:    json.RawMessage(`{"conclusion":"failure","check_run":{"id":123,"name":"build","completed":true,"score":1.50},"labels":["a","b"],"empty":null}`),
		DeliveryID: "d-42",
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPathValue_FlatView(t *testing.T) {
	e := testEvent()

	tests := []struct {
		path string
		want string
	}{
		{"event_type", "check_run"},
		{"action", "completed"},
		{"ref", "main"},
		{"actor", "octocat"},
		{"summary", "CI / build"},
		{"repo", "octo/widgets"},
		{"nope", ""},
		{"remote_id", ""},
	}

	for _, tt := range tests {
		if got := e.PathValue(tt.path); got != tt.want {
			t.Errorf("PathValue(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestPathValue_Payload(t *testing.T) {
	e := testEvent()

	tests := []struct {
		path string
		want string
	}{
		{"payload.conclusion", "failure"},
		{"payload.check_run.name", "build"},
		{"payload.check_run.id", "123"},
		{"payload.check_run.score", "1.50"},
		{"payload.check_run.completed", "true"},
		{"payload.check_run.missing", ""},
		{"payload.missing.deeper", ""},
		{"payload.empty", ""},
		{"payload.labels", `["a","b"]`},
		{"payload.labels.x", ""},
	}

	for _, tt := range tests {
		if got := e.PathValue(tt.path); got != tt.want {
			t.Errorf("PathValue(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestPathValue_WholePayload(t *testing.T) {
	e := &Event{Payload: json.RawMessage(`{"a":1}`)}
	if got := e.PathValue("payload"); got != `{"a":1}` {
		t.Errorf("PathValue(payload) = %q", got)
	}
}

func TestPathValue_NoPayload(t *testing.T) {
	e := &Event{Type: TypePush}
	if got := e.PathValue("payload.anything"); got != "" {
		t.Errorf("PathValue on nil payload = %q, want empty", got)
	}
}
