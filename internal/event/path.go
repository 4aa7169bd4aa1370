package event

import (
	"encoding/json"
	"strconv"
	"strings"
)

// PathValue resolves a dotted path against the event and returns the string
// form of the value found there. Top-level segments address the flat view of
// the event (event_type, action, ref, actor, summary, repo); a path starting
// with "payload" traverses the JSON payload tree. A missing path resolves to
// the empty string.
func (e *Event) PathValue(path string) string {
	head, rest, nested := strings.Cut(path, ".")
	if nested && head != "payload" {
		// Flat-view fields are scalars; nothing lies below them.
		return ""
	}

	switch head {
	case "event_type":
		return e.Type
	case "action":
		return e.Action
	case "ref":
		return e.Ref
	case "actor":
		return e.Actor
	case "summary":
		return e.Summary
	case "repo":
		return e.Repo
	case "payload":
		return e.payloadValue(rest)
	default:
		return ""
	}
}

func (e *Event) payloadValue(path string) string {
	if len(e.Payload) == 0 {
		return ""
	}

	// UseNumber keeps numeric values in their literal form so the string
	// rendering matches what the webhook delivered.
	dec := json.NewDecoder(strings.NewReader(string(e.Payload)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return ""
	}

	if path != "" {
		for _, seg := range strings.Split(path, ".") {
			obj, ok := v.(map[string]any)
			if !ok {
				return ""
			}
			v, ok = obj[seg]
			if !ok {
				return ""
			}
		}
	}

	return stringify(v)
}

// stringify renders a decoded JSON value as a string. Scalars render as their
// literal text; objects and arrays render as compact JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
