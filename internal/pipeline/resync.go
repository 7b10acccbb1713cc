package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/opryshko/docsync/internal/archive"
	"github.com/opryshko/docsync/internal/tracking"
)

// Resync rebuilds the tracking store from local archived artifacts, for
// initializing tracking after a download or recovering a lost tracking file.
// It never touches the remote index.
func (p *Pipeline) Resync(ctx context.Context) error {
	p.log.Section("RESYNC TRACKING FROM LOCAL CHUNKS")

	if _, err := os.Stat(p.cfg.ArchiveDir); os.IsNotExist(err) {
		return p.fail("archive dir %s does not exist; run download first", p.cfg.ArchiveDir)
	}

	paths, err := p.archive.ListArchived()
	if err != nil {
		return p.fail("list archived artifacts: %v", err)
	}
	p.log.Info("Found %d artifact files", len(paths))
	if len(paths) == 0 {
		p.log.Info("Nothing to resync")
		p.complete("No artifacts to resync")
		return nil
	}

	store, err := tracking.Open(p.cfg.TrackingFile, p.cfg.Index, p.cfg.Namespace)
	if err != nil {
		return p.fail("open tracking store: %v", err)
	}
	p.log.Info("Already tracked: %d files", store.Len())

	added, updated, skipped := 0, 0, 0
	for _, path := range paths {
		select {
		case <-ctx.Done():
			return p.fail("resync canceled: %v", ctx.Err())
		default:
		}

		a, err := archive.ReadArtifact(path)
		if err != nil {
			p.log.Error("%s: %v", filepath.Base(path), err)
			continue
		}
		filename := a.Filename
		if filename == "" {
			filename = strings.TrimSuffix(filepath.Base(path), ".json")
		}

		chunkIDs := make([]string, 0, len(a.Chunks))
		for _, c := range a.Chunks {
			chunkIDs = append(chunkIDs, c.ID)
		}

		rec := tracking.Record{
			ChunkIDs:    chunkIDs,
			ChunksCount: len(chunkIDs),
			UploadedAt:  artifactUploadTime(a),
		}

		// Hash the archived source when it survives; otherwise mark the
		// entry as reconstructed from chunks alone.
		sourcePath := filepath.Join(p.cfg.ArchivedSourceDir, filename)
		if _, err := os.Stat(sourcePath); err == nil {
			hash, err := tracking.FileHash(sourcePath)
			if err != nil {
				p.log.Error("%s: %v", filename, err)
				continue
			}
			rec.ContentHash = hash
			rec.Source = "archived_source_docs"
		} else {
			rec.ContentHash = "chunks_only_" + stem(path, 16)
			rec.Source = "chunks_only"
		}

		if existing, ok := store.Get(filename); ok {
			if sameIDSet(existing.ChunkIDs, chunkIDs) {
				p.log.Info("  [SKIP] %s - unchanged", filename)
				skipped++
				continue
			}
			p.log.Info("  [UPDATE] %s - %d chunks", filename, len(chunkIDs))
			updated++
		} else {
			p.log.Info("  [ADD] %s - %d chunks", filename, len(chunkIDs))
			added++
		}
		store.Set(filename, rec)
	}

	if err := store.Save(); err != nil {
		return p.fail("save tracking: %v", err)
	}

	p.log.Success("Resync done: %d added, %d updated, %d unchanged, %d tracked total",
		added, updated, skipped, store.Len())
	p.complete("")
	return nil
}

// artifactUploadTime picks the best available timestamp from an artifact.
func artifactUploadTime(a archive.Artifact) string {
	if a.ArchivedAt != "" {
		return a.ArchivedAt
	}
	return a.CreatedAt
}

// stem returns up to n leading characters of the file's base name without
// its extension.
func stem(path string, n int) string {
	s := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// sameIDSet compares two chunk-ID lists regardless of order.
func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}
