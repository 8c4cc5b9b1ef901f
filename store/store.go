// Package store defines the card document store and its persistence backends.
package store

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

var (
	// ErrNameRequired is returned when a store is constructed without a database name.
	ErrNameRequired = errors.New("database name is required")
	// ErrNotFound is returned when no document has the requested id.
	ErrNotFound = errors.New("document does not exist")
	// ErrDuplicateID is returned when an insert would reuse an id that is already stored.
	ErrDuplicateID = errors.New("document already exists")
	// ErrClosed is returned by Flush once the store has been closed.
	ErrClosed = errors.New("store is closed")
)

// Document is a record with a store-assigned integer "id" plus arbitrary fields.
type Document map[string]any

// ID returns the document's id and whether it holds an integral value.
func (d Document) ID() (int64, bool) {
	return parseID(d["id"])
}

// Store is the interface the HTTP layer depends on.
//
// Every method runs to completion before returning; no two operations
// interleave. Returned documents are copies and may be mutated freely.
type Store interface {
	// Insert assigns the next id to a copy of data and stores it.
	Insert(data map[string]any) (Document, error)

	// Select returns the document with the given id, or ErrNotFound.
	Select(id int64) (Document, error)

	// SelectAll returns every document ordered by id, highest first.
	SelectAll() ([]Document, error)

	// Delete removes a document. Returns true if it existed.
	Delete(id int64) (bool, error)

	// Count returns the number of stored documents.
	Count() int

	// Flush writes the current snapshot through the persister. Returns
	// ErrClosed after Close.
	Flush() error

	// Close flushes and releases the persister. The store must not be used afterwards.
	Close() error
}

// Persister loads and saves the full snapshot of one named database.
type Persister interface {
	// Load returns the last saved snapshot, or nothing if there is none yet.
	Load() ([]Document, error)

	// Save replaces the snapshot with docs.
	Save(docs []Document) error

	// Close releases any resources held by the persister.
	Close() error
}

// parseID normalizes the representations an id can take after JSON decoding
// or form parsing into an int64.
func parseID(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		// Integral values written with a fraction or exponent, e.g. 2.0.
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return parseID(f)
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// ParseID converts a path parameter into a document id.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("document with id %q: %w", s, ErrNotFound)
	}
	return id, nil
}
