package store

import (
	"fmt"
	"path/filepath"
)

// Backends lists the supported persistence backend names.
var Backends = []string{"json", "sqlite", "memory"}

// New creates the store for the named database using the given backend.
//
// Supported backends:
//
//	"json"   - snapshot in dataDir/.db_dump-<name>.json (default)
//	"sqlite" - snapshot in the SQLite database at dataDir/cards.db
//	"memory" - in-memory only (ephemeral, for testing)
func New(backend, dataDir, name string) (*MemoryStore, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	var p Persister
	switch backend {
	case "json", "":
		jp, err := NewJsonFilePersister(dataDir, name)
		if err != nil {
			return nil, err
		}
		p = jp
	case "sqlite":
		sp, err := NewSqlitePersister(filepath.Join(dataDir, "cards.db"), name)
		if err != nil {
			return nil, err
		}
		p = sp
	case "memory":
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, memory)", backend)
	}
	s, err := NewMemoryStore(name, p)
	if err != nil {
		if p != nil {
			p.Close()
		}
		return nil, err
	}
	return s, nil
}
