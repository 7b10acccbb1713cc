// Package archive owns the on-disk lifecycle of chunk artifacts: staged at
// chunk time, archived together with their source document after a confirmed
// upload. The archive step spans two file moves, so it runs under a
// write-ahead commit marker that makes an interrupted commit detectable and
// resumable on the next run.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Artifact statuses.
const (
	StatusStaging  = "staging"
	StatusArchived = "archived"
)

// ChunkEntry is one chunk inside an artifact, in ordinal order.
type ChunkEntry struct {
	ID         string `json:"id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// Artifact is the file-backed bundle of all chunks of one source document.
type Artifact struct {
	Filename    string       `json:"filename"`
	DocType     string       `json:"doc_type"`
	TotalChunks int          `json:"total_chunks"`
	CreatedAt   string       `json:"created_at"`
	Status      string       `json:"status"`
	ArchivedAt  string       `json:"archived_at,omitempty"`
	Chunks      []ChunkEntry `json:"chunks"`
}

// commitMarker is written before the archive moves begin and removed after
// they all complete.
type commitMarker struct {
	Filename   string `json:"filename"`
	SourcePath string `json:"source_path"`
	StartedAt  string `json:"started_at"`
}

// Manager owns the staging, archived-chunks and archived-source directories.
type Manager struct {
	stagingDir        string
	archiveDir        string
	archivedSourceDir string
}

// NewManager returns a manager over the three lifecycle directories.
func NewManager(stagingDir, archiveDir, archivedSourceDir string) *Manager {
	return &Manager{
		stagingDir:        stagingDir,
		archiveDir:        archiveDir,
		archivedSourceDir: archivedSourceDir,
	}
}

// EnsureDirs creates the lifecycle directories if missing.
func (m *Manager) EnsureDirs() error {
	for _, dir := range []string{m.stagingDir, m.archiveDir, m.archivedSourceDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// ArtifactName returns the deterministic artifact file name for a source
// filename, with path separators sanitized.
func ArtifactName(filename string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(filename) + ".json"
}

// StagingPath returns the staging artifact path for a source filename.
func (m *Manager) StagingPath(filename string) string {
	return filepath.Join(m.stagingDir, ArtifactName(filename))
}

// ArchivePath returns the archived artifact path for a source filename.
func (m *Manager) ArchivePath(filename string) string {
	return filepath.Join(m.archiveDir, ArtifactName(filename))
}

// Stage writes the artifact into the staging directory with status "staging".
// Re-running is safe: the artifact is rewritten in place. Chunks are stored in
// ordinal order.
func (m *Manager) Stage(a Artifact) (string, error) {
	a.Status = StatusStaging
	if a.CreatedAt == "" {
		a.CreatedAt = time.Now().Format(time.RFC3339)
	}
	sort.Slice(a.Chunks, func(i, j int) bool {
		return a.Chunks[i].ChunkIndex < a.Chunks[j].ChunkIndex
	})

	path := m.StagingPath(a.Filename)
	if err := writeJSON(path, a); err != nil {
		return "", fmt.Errorf("stage %s: %w", a.Filename, err)
	}
	return path, nil
}

// Commit archives a staged document: the staging artifact is rewritten with
// status "archived" into the archive directory and removed from staging, and
// the source document is moved to the archived-source directory. A marker
// file brackets the moves so Recover can finish an interrupted commit.
func (m *Manager) Commit(filename, sourcePath string) error {
	marker := commitMarker{
		Filename:   filename,
		SourcePath: sourcePath,
		StartedAt:  time.Now().Format(time.RFC3339),
	}
	if err := writeJSON(m.markerPath(filename), marker); err != nil {
		return fmt.Errorf("write commit marker for %s: %w", filename, err)
	}
	return m.finishCommit(marker)
}

// Recover scans for commit markers left by an interrupted run and completes
// their pending moves. It returns the filenames it recovered.
func (m *Manager) Recover() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(m.archiveDir, "*.commit"))
	if err != nil {
		return nil, err
	}

	var recovered []string
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return recovered, fmt.Errorf("read commit marker %s: %w", filepath.Base(path), err)
		}
		var marker commitMarker
		if err := json.Unmarshal(b, &marker); err != nil {
			return recovered, fmt.Errorf("parse commit marker %s: %w", filepath.Base(path), err)
		}
		if err := m.finishCommit(marker); err != nil {
			return recovered, err
		}
		recovered = append(recovered, marker.Filename)
	}
	return recovered, nil
}

// finishCommit performs the commit steps idempotently: each step checks
// whether a previous attempt already completed it.
func (m *Manager) finishCommit(marker commitMarker) error {
	stagingPath := m.StagingPath(marker.Filename)
	archivePath := m.ArchivePath(marker.Filename)

	a, err := ReadArtifact(stagingPath)
	switch {
	case err == nil:
		a.Status = StatusArchived
		a.ArchivedAt = time.Now().Format(time.RFC3339)
		if err := writeJSON(archivePath, a); err != nil {
			return fmt.Errorf("archive artifact for %s: %w", marker.Filename, err)
		}
		if err := os.Remove(stagingPath); err != nil {
			return fmt.Errorf("remove staging artifact for %s: %w", marker.Filename, err)
		}
	case os.IsNotExist(err):
		// Already moved by a previous attempt; the archived copy must exist.
		if _, statErr := os.Stat(archivePath); statErr != nil {
			return fmt.Errorf("artifact for %s missing from both staging and archive", marker.Filename)
		}
	default:
		return err
	}

	if marker.SourcePath != "" {
		dest := filepath.Join(m.archivedSourceDir, filepath.Base(marker.SourcePath))
		if err := os.Rename(marker.SourcePath, dest); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("archive source %s: %w", marker.Filename, err)
		}
	}

	if err := os.Remove(m.markerPath(marker.Filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove commit marker for %s: %w", marker.Filename, err)
	}
	return nil
}

func (m *Manager) markerPath(filename string) string {
	return m.ArchivePath(filename) + ".commit"
}

// ReadArtifact loads an artifact file.
func ReadArtifact(path string) (Artifact, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, err
	}
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return Artifact{}, fmt.Errorf("parse artifact %s: %w", filepath.Base(path), err)
	}
	return a, nil
}

// ListArchived returns the archived artifact paths, excluding the backup
// index summary and commit markers.
func (m *Manager) ListArchived() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(m.archiveDir, "*.json"))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range paths {
		if filepath.Base(p) == "_index.json" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// WriteArchived writes an artifact straight into the archive directory with
// status "archived". Used by the download-backup flow, which has no staging
// phase.
func (m *Manager) WriteArchived(a Artifact) error {
	a.Status = StatusArchived
	if a.CreatedAt == "" {
		a.CreatedAt = time.Now().Format(time.RFC3339)
	}
	sort.Slice(a.Chunks, func(i, j int) bool {
		return a.Chunks[i].ChunkIndex < a.Chunks[j].ChunkIndex
	})
	return writeJSON(m.ArchivePath(a.Filename), a)
}

// WriteArchiveJSON writes an arbitrary JSON document into the archive
// directory under the given name.
func (m *Manager) WriteArchiveJSON(name string, v any) error {
	return writeJSON(filepath.Join(m.archiveDir, name), v)
}

// writeJSON writes v atomically: marshal, write to temp, rename.
func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
