package cloud

import (
	"testing"

	"github.com/dsifry/metarelay/internal/event"
)

func TestDecodeInsert(t *testing.T) {
	frame := []byte(`{
		"topic": "realtime:public:events:repo=eq.octo/widgets",
		"event": "INSERT",
		"payload": {
			"type": "INSERT",
			"record": {
				"id": 42,
				"repo": "octo/widgets",
				"event_type": "check_run",
				"action": "completed",
				"summary": "CI / build",
				"payload": {"conclusion": "failure"},
				"delivery_id": "d-42",
				"created_at": "2026-03-01T12:00:00Z"
			}
		},
		"ref": null
	}`)

	ev, ok, err := decodeInsert("octo/widgets", frame)
	if err != nil {
		t.Fatalf("decodeInsert: %v", err)
	}
	if !ok {
		t.Fatal("frame should decode to an event")
	}
	if ev.RemoteID != 42 || ev.Repo != "octo/widgets" || ev.Type != event.TypeCheckRun {
		t.Errorf("event = %+v", ev)
	}
	if ev.PathValue("payload.conclusion") != "failure" {
		t.Errorf("payload not carried through: %s", ev.Payload)
	}
}

func TestDecodeInsert_IgnoresOtherFrames(t *testing.T) {
	frames := [][]byte{
		[]byte(`{"topic":"phoenix","event":"phx_reply","payload":{"status":"ok"},"ref":"2"}`),
		[]byte(`{"topic":"realtime:public:events:repo=eq.octo/widgets","event":"phx_reply","payload":{},"ref":"1"}`),
		[]byte(`{"topic":"realtime:public:events:repo=eq.other/repo","event":"INSERT","payload":{"record":{"id":1}}}`),
	}

	for i, frame := range frames {
		_, ok, err := decodeInsert("octo/widgets", frame)
		if err != nil {
			t.Errorf("frame %d: unexpected error %v", i, err)
		}
		if ok {
			t.Errorf("frame %d should be ignored", i)
		}
	}
}

func TestDecodeInsert_Malformed(t *testing.T) {
	if _, _, err := decodeInsert("o/r", []byte("not json")); err == nil {
		t.Error("malformed frame should error")
	}
}
