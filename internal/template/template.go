// Package template implements {{path}} command templates. Placeholders use
// the same dotted-path semantics as the filter language; unresolved paths
// expand to the empty string and are never an error at expansion time. The
// expanded string is handed verbatim to the process launcher.
package template

import (
	"fmt"
	"strings"

	"github.com/dsifry/metarelay/internal/event"
)

// Template is a parsed command template.
type Template struct {
	source   string
	segments []segment
}

type segment struct {
	text   string
	isPath bool
}

// Parse parses a template string. An unterminated placeholder is a
// configuration error.
func Parse(input string) (*Template, error) {
	t := &Template{source: input}

	rest := input
	for {
		before, after, found := strings.Cut(rest, "{{")
		if before != "" {
			t.segments = append(t.segments, segment{text: before})
		}
		if !found {
			return t, nil
		}

		path, tail, closed := strings.Cut(after, "}}")
		if !closed {
			return nil, fmt.Errorf("parse template %q: unterminated placeholder", input)
		}
		t.segments = append(t.segments, segment{text: strings.TrimSpace(path), isPath: true})
		rest = tail
	}
}

// Expand resolves every placeholder against the event.
func (t *Template) Expand(e *event.Event) string {
	var b strings.Builder
	for _, s := range t.segments {
		if s.isPath {
			b.WriteString(e.PathValue(s.text))
		} else {
			b.WriteString(s.text)
		}
	}
	return b.String()
}

// Source returns the original template string.
func (t *Template) Source() string {
	return t.source
}
