// Package tracking persists the filename -> indexed-state mapping that records
// what is currently in the remote index, and detects source changes against it.
package tracking

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Record is the tracked state of one source document.
type Record struct {
	ContentHash string   `json:"content_hash"`
	ChunkIDs    []string `json:"chunk_ids"`
	ChunksCount int      `json:"chunks_count"`
	UploadedAt  string   `json:"uploaded_at"`
	Source      string   `json:"source,omitempty"`
}

// fileData is the on-disk shape of the tracking file.
type fileData struct {
	Index       string            `json:"index"`
	Namespace   string            `json:"namespace"`
	LastUpdated string            `json:"last_updated"`
	Files       map[string]Record `json:"files"`
}

// Store is a filename-keyed view over a single JSON tracking file.
type Store struct {
	path string
	data fileData
}

// Open loads the tracking file at path, or initializes an empty store for the
// given index and namespace when the file does not exist.
func Open(path, index, namespace string) (*Store, error) {
	s := &Store{
		path: path,
		data: fileData{
			Index:     index,
			Namespace: namespace,
			Files:     map[string]Record{},
		},
	}

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tracking file: %w", err)
	}
	if err := json.Unmarshal(b, &s.data); err != nil {
		return nil, fmt.Errorf("parse tracking file: %w", err)
	}
	if s.data.Files == nil {
		s.data.Files = map[string]Record{}
	}
	return s, nil
}

// Get returns the record for a filename, if tracked.
func (s *Store) Get(filename string) (Record, bool) {
	r, ok := s.data.Files[filename]
	return r, ok
}

// Set adds or replaces the record for a filename. Entries for other filenames
// are untouched, so unchanged files carry forward verbatim on Save.
func (s *Store) Set(filename string, r Record) {
	s.data.Files[filename] = r
}

// Len returns the number of tracked files.
func (s *Store) Len() int {
	return len(s.data.Files)
}

// LastUpdated returns the timestamp of the last successful Save, or an empty
// string for a fresh store.
func (s *Store) LastUpdated() string {
	return s.data.LastUpdated
}

// Save rewrites the tracking file atomically (write to temp, rename), so a
// crash mid-write never leaves a corrupt store behind.
func (s *Store) Save() error {
	s.data.LastUpdated = time.Now().Format(time.RFC3339)

	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tracking file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write tracking file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace tracking file: %w", err)
	}
	return nil
}
