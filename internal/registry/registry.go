// Package registry holds the process-wide, append-only catalog of tools,
// resources, and prompts. Registration happens once at startup; after
// startup the registry is immutable and safe for concurrent read-only use
// from every session.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/arborist-labs/statmcp/internal/sanitize"
)

// ErrDuplicateName is returned by Register when the name is already taken.
var ErrDuplicateName = errors.New("registry: duplicate name")

// ErrNotFound is returned by Get when no entry matches.
var ErrNotFound = errors.New("registry: not found")

// ErrClosed is returned by Register after Close has been called.
var ErrClosed = errors.New("registry: registry closed for registration")

// AnnotateFunc lets a transport filter or decorate entries for a given
// caller without mutating registry state, e.g. hiding a tool a session's
// capabilities don't cover.
type AnnotateFunc[T any] func(entry T) (T, bool)

// Registrar is a generic, append-only, name-keyed catalog. It is built once
// at startup via Register and then read concurrently via Get/List.
type Registrar[T any] struct {
	entries []T
	index   map[string]int
	keyOf   func(T) string
	closed  bool
}

// NewRegistrar returns an empty Registrar. keyOf extracts the unique name
// (or URI) from an entry.
func NewRegistrar[T any](keyOf func(T) string) *Registrar[T] {
	return &Registrar[T]{
		index: make(map[string]int),
		keyOf: keyOf,
	}
}

// Register adds entry to the catalog. It fails fast on a duplicate key or
// if the registrar has already been closed for registration.
func (r *Registrar[T]) Register(entry T) error {
	if r.closed {
		return ErrClosed
	}
	key := r.keyOf(entry)
	if err := sanitize.ValidateName(key, "name"); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	if _, exists := r.index[key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, key)
	}
	r.index[key] = len(r.entries)
	r.entries = append(r.entries, entry)
	return nil
}

// Close freezes the registrar against further registration. Called once
// all built-in and catalog entries have been registered at startup.
func (r *Registrar[T]) Close() {
	r.closed = true
}

// Get returns the entry registered under key.
func (r *Registrar[T]) Get(key string) (T, error) {
	var zero T
	idx, ok := r.index[key]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return r.entries[idx], nil
}

// Len returns the number of registered entries.
func (r *Registrar[T]) Len() int {
	return len(r.entries)
}

// Page is a cursor-paginated slice of entries. Cursor is the decimal index
// of the next unread entry, or "" when the end has been reached.
type Page[T any] struct {
	Entries    []T
	NextCursor string
}

// defaultPageSize bounds a single list response when the caller does not
// otherwise constrain it.
const defaultPageSize = 50

// List returns entries starting at cursor (an opaque, previously-returned
// NextCursor, or "" for the first page), optionally filtered and
// annotated per-caller by annotate.
func (r *Registrar[T]) List(cursor string, annotate AnnotateFunc[T]) (Page[T], error) {
	start := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil || parsed < 0 {
			return Page[T]{}, fmt.Errorf("registry: invalid cursor %q", cursor)
		}
		start = parsed
	}
	if start > len(r.entries) {
		start = len(r.entries)
	}

	out := make([]T, 0, defaultPageSize)
	i := start
	for ; i < len(r.entries) && len(out) < defaultPageSize; i++ {
		entry := r.entries[i]
		if annotate != nil {
			var ok bool
			entry, ok = annotate(entry)
			if !ok {
				continue
			}
		}
		out = append(out, entry)
	}

	page := Page[T]{Entries: out}
	if i < len(r.entries) {
		page.NextCursor = strconv.Itoa(i)
	}
	return page, nil
}

// MarshalCursorResult wraps a Page into the {items, nextCursor} shape used
// by tools/list, resources/list, and prompts/list responses.
func MarshalCursorResult(itemsKey string, entries any, nextCursor string) (json.RawMessage, error) {
	payload := map[string]any{itemsKey: entries}
	if nextCursor != "" {
		payload["nextCursor"] = nextCursor
	}
	return json.Marshal(payload)
}
