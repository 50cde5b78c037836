// Package store provides a path-addressable document store. Documents are
// JSON values keyed by slash-separated paths (e.g. alerts/{patientId}/{id}),
// with ordered prefix scans for range queries.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document exists at the path.
var ErrNotFound = errors.New("store: not found")

// Entry is a single document returned by a prefix scan.
type Entry struct {
	Path  string
	Value []byte
}

// ListOptions controls a prefix scan.
type ListOptions struct {
	// Limit caps the number of entries returned. Zero means no limit.
	Limit int
	// Descending reverses the path ordering.
	Descending bool
}

// Store is a path-addressable JSON document store.
type Store interface {
	// Put marshals value as JSON and writes it at path, overwriting any
	// existing document.
	Put(ctx context.Context, path string, value any) error
	// Get reads the document at path into dest. Returns ErrNotFound if
	// the path does not exist.
	Get(ctx context.Context, path string, dest any) error
	// List returns all documents whose path starts with prefix, ordered
	// by path.
	List(ctx context.Context, prefix string, opts ListOptions) ([]Entry, error)
	// Delete removes the document at path. Deleting a missing path is
	// not an error.
	Delete(ctx context.Context, path string) error
	Close() error
}
