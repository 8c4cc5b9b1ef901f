package store

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/tiendc/go-deepcopy"
)

// MemoryStore keeps one named database in memory and hands its snapshot to
// a Persister on Flush and Close. Safe for concurrent use.
type MemoryStore struct {
	name      string
	persister Persister

	mu     sync.Mutex
	docs   map[int64]Document
	nextID int64
	closed bool
}

// NewMemoryStore creates the store for the named database and loads the
// persisted snapshot, if any. A nil persister keeps everything in memory.
func NewMemoryStore(name string, p Persister) (*MemoryStore, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	m := &MemoryStore{
		name:      name,
		persister: p,
		docs:      make(map[int64]Document),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the database name.
func (m *MemoryStore) Name() string {
	return m.name
}

// copyDoc returns a deep copy of src so the store never aliases caller data.
func copyDoc(src map[string]any) (Document, error) {
	var dst Document
	if err := deepcopy.Copy(&dst, Document(src)); err != nil {
		return nil, fmt.Errorf("failed to copy document: %w", err)
	}
	if dst == nil {
		dst = Document{}
	}
	return dst, nil
}

func (m *MemoryStore) autoIncrementID() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *MemoryStore) Insert(data map[string]any) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := data["id"]; ok {
		if id, ok := parseID(v); ok {
			if _, exists := m.docs[id]; exists {
				return nil, fmt.Errorf("document with id %d: %w", id, ErrDuplicateID)
			}
		}
	}
	doc, err := copyDoc(data)
	if err != nil {
		return nil, err
	}
	id := m.autoIncrementID()
	if _, exists := m.docs[id]; exists {
		return nil, fmt.Errorf("document with id %d: %w", id, ErrDuplicateID)
	}
	doc["id"] = id
	m.docs[id] = doc
	return copyDoc(doc)
}

func (m *MemoryStore) Select(id int64) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document with id %d: %w", id, ErrNotFound)
	}
	return copyDoc(doc)
}

func (m *MemoryStore) SelectAll() ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toSlice()
}

func (m *MemoryStore) Delete(id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return false, nil
	}
	delete(m.docs, id)
	return true, nil
}

func (m *MemoryStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *MemoryStore) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.flush()
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	err := m.flush()
	if m.persister != nil {
		if cerr := m.persister.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// toSlice copies every document, sorted by id descending. Caller must hold mu.
func (m *MemoryStore) toSlice() ([]Document, error) {
	ids := make([]int64, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	slices.Reverse(ids)
	result := make([]Document, 0, len(ids))
	for _, id := range ids {
		doc, err := copyDoc(m.docs[id])
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	return result, nil
}

// flush saves the snapshot. Caller must hold mu.
func (m *MemoryStore) flush() error {
	if m.persister == nil {
		return nil
	}
	docs, err := m.toSlice()
	if err != nil {
		return err
	}
	if err := m.persister.Save(docs); err != nil {
		return fmt.Errorf("failed to save database %q: %w", m.name, err)
	}
	slog.Debug("Saved snapshot", "db", m.name, "documents", len(docs))
	return nil
}

// load populates the store from the persister and resumes the id counter
// after the highest persisted id.
func (m *MemoryStore) load() error {
	if m.persister == nil {
		return nil
	}
	docs, err := m.persister.Load()
	if err != nil {
		return fmt.Errorf("failed to load database %q: %w", m.name, err)
	}
	for i, doc := range docs {
		id, ok := doc.ID()
		if !ok {
			return fmt.Errorf("failed to load database %q: document %d has no integer id", m.name, i)
		}
		if _, dup := m.docs[id]; dup {
			return fmt.Errorf("failed to load database %q: document %d: id %d: %w", m.name, i, id, ErrDuplicateID)
		}
		doc["id"] = id
		m.docs[id] = doc
		m.nextID = max(m.nextID, id+1)
	}
	slog.Debug("Loaded snapshot", "db", m.name, "documents", len(docs), "next_id", m.nextID)
	return nil
}
