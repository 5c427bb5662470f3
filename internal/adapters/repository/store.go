// Package repository defines the trace store interface with an in-memory
// ring implementation and a SQLite-backed one.
package repository

import (
	"context"

	"github.com/okian/lighttrace/internal/domain/model"
)

// Entry is the stored record type.
type Entry = model.Entry

// Store is the shared trace log. Implementations must be safe for
// concurrent Append, Entries and Reset.
type Store interface {
	// Append records e. Returns ErrInvalidEntry for entries failing validation.
	Append(ctx context.Context, e Entry) error

	// Entries returns a copy of the current entries in insertion order.
	Entries(ctx context.Context) ([]Entry, error)

	// Reset discards every entry. Concurrent readers observe either the
	// full pre-reset set or the empty post-reset set.
	Reset(ctx context.Context) error

	// Count returns the number of entries held.
	Count(ctx context.Context) int

	// Close releases resources. Appends after Close return ErrClosed.
	Close() error
}
