// Package handler provides handler configuration and the registry that
// matches events to handlers.
package handler

import (
	"fmt"
	"time"

	"github.com/dsifry/metarelay/internal/event"
	"github.com/dsifry/metarelay/internal/filter"
	"github.com/dsifry/metarelay/internal/template"
)

// DefaultTimeout applies when a handler does not set one.
const DefaultTimeout = 300 * time.Second

// Config is the static handler configuration as it appears in the config
// file. Loaded at daemon start; immutable for the daemon's lifetime.
type Config struct {
	Name      string   `yaml:"name"`
	EventType string   `yaml:"event_type"`
	Action    string   `yaml:"action"`
	Command   string   `yaml:"command"`
	Filters   []string `yaml:"filters"`
	Timeout   int      `yaml:"timeout"`
	Enabled   *bool    `yaml:"enabled"`
}

// Handler is a compiled handler: filters and command template are parsed,
// defaults are applied.
type Handler struct {
	Name      string
	EventType string
	Action    string // empty string matches any action
	Command   *template.Template
	Filters   []*filter.Expr
	Timeout   time.Duration
	Enabled   bool
}

func compile(c Config) (*Handler, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("handler has no name")
	}
	if !event.KnownTypes[c.EventType] {
		return nil, fmt.Errorf("handler %q: unknown event type %q", c.Name, c.EventType)
	}
	if c.Command == "" {
		return nil, fmt.Errorf("handler %q: command is required", c.Name)
	}
	if c.Timeout < 0 {
		return nil, fmt.Errorf("handler %q: timeout must be positive, got %d", c.Name, c.Timeout)
	}

	tmpl, err := template.Parse(c.Command)
	if err != nil {
		return nil, fmt.Errorf("handler %q: %w", c.Name, err)
	}

	h := &Handler{
		Name:      c.Name,
		EventType: c.EventType,
		Action:    c.Action,
		Command:   tmpl,
		Timeout:   DefaultTimeout,
		Enabled:   true,
	}
	if c.Timeout > 0 {
		h.Timeout = time.Duration(c.Timeout) * time.Second
	}
	if c.Enabled != nil {
		h.Enabled = *c.Enabled
	}

	for _, f := range c.Filters {
		expr, err := filter.Parse(f)
		if err != nil {
			return nil, fmt.Errorf("handler %q: %w", c.Name, err)
		}
		h.Filters = append(h.Filters, expr)
	}

	return h, nil
}

// matches reports whether the handler's (event_type, action) selector and
// every filter accept the event. The enabled flag is checked by the registry.
func (h *Handler) matches(e *event.Event) bool {
	if h.EventType != e.Type {
		return false
	}
	if h.Action != "" && h.Action != e.Action {
		return false
	}
	for _, f := range h.Filters {
		if !f.Eval(e) {
			return false
		}
	}
	return true
}
