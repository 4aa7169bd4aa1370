package handler

import (
	"fmt"

	"github.com/dsifry/metarelay/internal/event"
)

// Registry indexes compiled handlers by event type. Handlers with a wildcard
// action are kept alongside explicit-action handlers; declaration order is
// preserved and is the dispatch order.
type Registry struct {
	byType  map[string][]*Handler
	ordered []*Handler
}

// NewRegistry compiles and validates the handler configurations. Any invalid
// filter, template, duplicate name, or bad timeout fails here, never at match
// time.
func NewRegistry(configs []Config) (*Registry, error) {
	r := &Registry{byType: make(map[string][]*Handler)}

	seen := make(map[string]bool, len(configs))
	for _, c := range configs {
		h, err := compile(c)
		if err != nil {
			return nil, err
		}
		if seen[h.Name] {
			return nil, fmt.Errorf("duplicate handler name %q", h.Name)
		}
		seen[h.Name] = true

		r.ordered = append(r.ordered, h)
		r.byType[h.EventType] = append(r.byType[h.EventType], h)
	}

	return r, nil
}

// Match returns the enabled handlers whose selector and filters accept the
// event, in configuration declaration order.
func (r *Registry) Match(e *event.Event) []*Handler {
	var out []*Handler
	for _, h := range r.byType[e.Type] {
		if h.Enabled && h.matches(e) {
			out = append(out, h)
		}
	}
	return out
}

// Handlers returns all compiled handlers in declaration order.
func (r *Registry) Handlers() []*Handler {
	return r.ordered
}

// Len returns the number of configured handlers, enabled or not.
func (r *Registry) Len() int {
	return len(r.ordered)
}
