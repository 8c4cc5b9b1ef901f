package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// JsonFilePersister keeps the snapshot of one database as a JSON array in a
// single file, rewritten in full on every save.
//
// Layout:
//
//	dir/
//	  .db_dump-test.json   # database "test"
//	  .db_dump-notes.json  # database "notes"
type JsonFilePersister struct {
	path string
}

// SnapshotFile returns the snapshot file name for a database.
func SnapshotFile(name string) string {
	return ".db_dump-" + name + ".json"
}

func NewJsonFilePersister(dir, name string) (*JsonFilePersister, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &JsonFilePersister{path: filepath.Join(dir, SnapshotFile(name))}, nil
}

// Path returns the snapshot file path.
func (p *JsonFilePersister) Path() string {
	return p.path
}

func (p *JsonFilePersister) Load() ([]Document, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var docs []Document
	if err := dec.Decode(&docs); err != nil {
		return nil, fmt.Errorf("invalid snapshot %s: %w", p.path, err)
	}
	return docs, nil
}

func (p *JsonFilePersister) Save(docs []Document) error {
	if docs == nil {
		docs = []Document{}
	}
	b, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p.path, b, 0o644)
}

func (p *JsonFilePersister) Close() error {
	return nil
}
