// Package metrics records dialogue events: one per decided turn, one per
// escalation, one per completed call. Sinks are pluggable; the engine never
// blocks on them.
package metrics

import "time"

// Event is a single named measurement with free-form tags.
type Event struct {
	Name   string            `json:"name"`
	Time   time.Time         `json:"time"`
	Value  float64           `json:"value,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
	Fields map[string]any    `json:"fields,omitempty"`
}

type Observer interface {
	RecordEvent(ev Event)
}

// NoopObserver discards everything. It is the default when no sink is
// configured.
type NoopObserver struct{}

func (NoopObserver) RecordEvent(Event) {}
