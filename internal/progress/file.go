package progress

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// fileDoc is the on-disk layout of the JSON progress file.
type fileDoc struct {
	Meta Meta                 `json:"meta"`
	Rows map[string]RowStatus `json:"rows"`
}

// FileStore persists progress as a single JSON document, rewritten through
// a temp file + rename on every record so a crash never leaves a truncated
// store behind.
type FileStore struct {
	path string
	meta Meta

	mu   sync.Mutex
	rows map[int]RowStatus
}

func NewFileStore(path string, meta Meta) (*FileStore, error) {
	s := &FileStore{path: path, meta: meta, rows: make(map[int]RowStatus)}
	if err := s.loadFile(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) loadFile() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil // first run
	}
	if err != nil {
		return &PersistenceError{Op: "read", Err: err}
	}
	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return &PersistenceError{Op: "parse", Err: err}
	}
	for k, st := range doc.Rows {
		id, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		s.rows[id] = normalize(st)
	}
	return nil
}

// Load returns a snapshot of all recorded rows.
func (s *FileStore) Load(ctx context.Context) (map[int]RowStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]RowStatus, len(s.rows))
	for id, st := range s.rows {
		out[id] = st
	}
	return out, nil
}

// Record updates one row and flushes the document. The write is atomic at
// file level; once Record returns nil the row survives a process restart.
func (s *FileStore) Record(ctx context.Context, rowID int, st RowStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[rowID] = normalize(st)
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	doc := fileDoc{Meta: s.meta, Rows: make(map[string]RowStatus, len(s.rows))}
	doc.Meta.UpdatedAt = time.Now().UTC()
	for id, st := range s.rows {
		doc.Rows[strconv.Itoa(id)] = st
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Err: err}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".progress-*.json")
	if err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "write", Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "rename", Err: err}
	}
	return nil
}

// Reset drops all records and removes the file.
func (s *FileStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[int]RowStatus)
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return &PersistenceError{Op: "reset", Err: err}
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
