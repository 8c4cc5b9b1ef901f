package store

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SqlitePersister keeps database snapshots in a single SQLite file. Several
// named databases can share one file.
//
// Tables:
//
//	snapshots(name, id, data)  PRIMARY KEY (name, id)
type SqlitePersister struct {
	db   *sql.DB
	name string
}

func NewSqlitePersister(dbPath, name string) (*SqlitePersister, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		name TEXT NOT NULL,
		id INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (name, id)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqlitePersister{db: db, name: name}, nil
}

func (s *SqlitePersister) Close() error {
	return s.db.Close()
}

func (s *SqlitePersister) Load() ([]Document, error) {
	rows, err := s.db.Query("SELECT id, data FROM snapshots WHERE name = ? ORDER BY id DESC", s.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		var doc Document
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid snapshot row %d: %w", id, err)
		}
		if doc == nil {
			doc = Document{}
		}
		doc["id"] = id
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SqlitePersister) Save(docs []Document) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM snapshots WHERE name = ?", s.name); err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO snapshots (name, id, data) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, doc := range docs {
		id, ok := doc.ID()
		if !ok {
			return fmt.Errorf("document has no integer id: %v", doc["id"])
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(s.name, id, string(b)); err != nil {
			return err
		}
	}
	return tx.Commit()
}
