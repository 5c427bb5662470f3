// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status values used by the tracer. HTTP captures may also store the status text.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrInvalidEntry is returned when an entry misses its category or operation.
var ErrInvalidEntry = errors.New("invalid trace entry")

// Entry is one recorded observation from the host application.
type Entry struct {
	ID         string            // uuid assigned at creation
	Timestamp  time.Time         // UTC start time
	Category   string            // e.g. "http", "service", "repository"
	Operation  string            // e.g. "GET /api/users"
	Status     string            // "ok", "error" or an HTTP status text
	Duration   time.Duration     // zero for point-in-time entries
	Message    string            // optional free text
	Attributes map[string]string // optional key/value details
}

// NewEntry returns an Entry with a fresh ID and the current UTC time.
func NewEntry(category, operation string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Category:  category,
		Operation: operation,
		Status:    StatusOK,
	}
}

// Validate reports whether the entry can be stored.
func (e Entry) Validate() error { //nolint:gocritic // hugeParam: entries travel by value through the queue
	switch {
	case strings.TrimSpace(e.Category) == "":
		return errors.Join(ErrInvalidEntry, errors.New("missing category"))
	case strings.TrimSpace(e.Operation) == "":
		return errors.Join(ErrInvalidEntry, errors.New("missing operation"))
	}
	return nil
}

// WithAttribute returns a copy of e with key set to value.
// The attribute map is copied so the receiver is never mutated.
func (e Entry) WithAttribute(key, value string) Entry { //nolint:gocritic // hugeParam: value semantics intended
	attrs := make(map[string]string, len(e.Attributes)+1)
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	attrs[key] = value
	e.Attributes = attrs
	return e
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry { //nolint:gocritic // hugeParam: value semantics intended
	if e.Attributes != nil {
		attrs := make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			attrs[k] = v
		}
		e.Attributes = attrs
	}
	return e
}
