// Package anchor persists the active-ticket anchor on the local filesystem.
package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type record struct {
	TicketID  string    `json:"ticketId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FileStore keeps anchors in a small JSON document mapping anchor key to
// ticket id, so several widgets can share one file under different keys.
type FileStore struct {
	path string
	key  string
	mu   sync.Mutex
}

// NewFileStore returns a store for key backed by the file at path. The file
// and its directory are created on first Save.
func NewFileStore(path, key string) *FileStore {
	return &FileStore{path: path, key: key}
}

// Load returns the anchored ticket id, or "" when none is stored.
func (s *FileStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return "", err
	}
	return doc[s.key].TicketID, nil
}

// Save anchors ticketID under the store's key.
func (s *FileStore) Save(_ context.Context, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	doc[s.key] = record{TicketID: ticketID, UpdatedAt: time.Now().UTC()}
	return s.write(doc)
}

// Clear removes the anchor. Clearing an absent anchor is not an error.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := doc[s.key]; !ok {
		return nil
	}
	delete(doc, s.key)
	return s.write(doc)
}

func (s *FileStore) read() (map[string]record, error) {
	doc := map[string]record{}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read anchor file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse anchor file %s: %w", s.path, err)
	}
	return doc, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (s *FileStore) write(doc map[string]record) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal anchors: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create anchor dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".anchor-*")
	if err != nil {
		return fmt.Errorf("create temp anchor file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write anchor file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close anchor file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace anchor file: %w", err)
	}
	return nil
}
