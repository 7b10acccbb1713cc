package tracking

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Changes partitions the current source files against the tracking store.
// Paths keep their original form; Hashes is keyed by base filename.
type Changes struct {
	New       []string
	Changed   []string
	Unchanged []string
	OrphanIDs []string          // chunk IDs of changed files' previous versions
	Hashes    map[string]string // filename -> freshly computed content hash
}

// FileHash returns the md5 hex digest of the whole file contents.
func FileHash(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", filepath.Base(path), err)
	}
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:]), nil
}

// DetectChanges classifies every given source file as new, changed or
// unchanged by comparing a fresh whole-file hash against the stored one.
// Chunk IDs recorded for a changed file's previous version are collected as
// orphans for deletion from the remote index.
func (s *Store) DetectChanges(paths []string) (Changes, error) {
	c := Changes{Hashes: map[string]string{}}

	for _, path := range paths {
		filename := filepath.Base(path)
		hash, err := FileHash(path)
		if err != nil {
			return Changes{}, err
		}
		c.Hashes[filename] = hash

		rec, tracked := s.Get(filename)
		switch {
		case !tracked:
			c.New = append(c.New, path)
		case rec.ContentHash != hash:
			c.Changed = append(c.Changed, path)
			c.OrphanIDs = append(c.OrphanIDs, rec.ChunkIDs...)
		default:
			c.Unchanged = append(c.Unchanged, path)
		}
	}
	return c, nil
}
