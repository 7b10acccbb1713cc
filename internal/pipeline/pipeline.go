// Package pipeline orchestrates the ingest run: change detection, chunking,
// staging, upload, archival and tracking, plus the download-backup and
// resync-tracking maintenance flows.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/opryshko/docsync/internal/archive"
	"github.com/opryshko/docsync/internal/chunker"
	"github.com/opryshko/docsync/internal/config"
	"github.com/opryshko/docsync/internal/identity"
	"github.com/opryshko/docsync/internal/index"
	"github.com/opryshko/docsync/internal/report"
	"github.com/opryshko/docsync/internal/tracking"
)

// Pipeline wires the components for one invocation. Runs are sequential;
// concurrent invocations against the same directories are not supported.
type Pipeline struct {
	cfg     config.Config
	client  index.Client
	log     *report.Logger
	archive *archive.Manager
}

// New builds a pipeline from explicit configuration.
func New(cfg config.Config, client index.Client, log *report.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		client:  client,
		log:     log,
		archive: archive.NewManager(cfg.StagingDir, cfg.ArchiveDir, cfg.ArchivedSourceDir),
	}
}

// document carries one pending source file through the run.
type document struct {
	filename   string
	sourcePath string
	docType    string
	hash       string
	records    []index.Record
	chunkIDs   []string
	uploaded   bool
}

// Ingest runs the full pipeline once. The report on p.log reflects the
// outcome whether or not an error is returned; the caller saves it.
func (p *Pipeline) Ingest(ctx context.Context) error {
	p.log.Section("DOCUMENT INGEST")
	p.log.Info("Index: %s", p.cfg.Index)
	p.log.Info("Namespace: %s", p.cfg.Namespace)

	if err := os.MkdirAll(p.cfg.SourceDir, 0o755); err != nil {
		return p.fail("create source dir: %v", err)
	}
	if err := p.archive.EnsureDirs(); err != nil {
		return p.fail("create lifecycle dirs: %v", err)
	}

	// Finish any archive commit a previous run left half-done.
	recovered, err := p.archive.Recover()
	if err != nil {
		return p.fail("recover interrupted commits: %v", err)
	}
	for _, name := range recovered {
		p.log.Warning("Recovered interrupted archive commit: %s", name)
	}

	store, err := tracking.Open(p.cfg.TrackingFile, p.cfg.Index, p.cfg.Namespace)
	if err != nil {
		return p.fail("open tracking store: %v", err)
	}
	if store.LastUpdated() != "" {
		p.log.Info("Tracking last updated: %s", store.LastUpdated())
		p.log.Info("Files tracked: %d", store.Len())
	}

	p.log.Subsection("Step 1: Connect to index")
	if err := p.client.Connect(ctx); err != nil {
		return p.fail("connect: %v", err)
	}
	stats, err := p.client.Stats(ctx)
	if err != nil {
		return p.fail("index stats: %v", err)
	}
	p.log.Success("Connected. Records in index: %d", stats.TotalVectors)

	p.log.Subsection("Step 2: Scan source documents")
	files, err := p.scanSources()
	if err != nil {
		return p.fail("scan sources: %v", err)
	}
	p.log.Info("Found %d files in %s", len(files), p.cfg.SourceDir)
	if len(files) == 0 {
		p.log.Info("No new documents to process")
		p.complete("No new files to process")
		return nil
	}

	p.log.Subsection("Step 3: Detect changes")
	changes, err := store.DetectChanges(files)
	if err != nil {
		return p.fail("detect changes: %v", err)
	}
	p.logChanges(changes)

	pending := append(append([]string{}, changes.New...), changes.Changed...)
	if len(pending) == 0 {
		p.log.Info("All files up to date, nothing to upload")
		p.complete("All files up to date")
		return nil
	}

	if len(changes.OrphanIDs) > 0 {
		p.log.Subsection("Step 4: Delete orphaned chunks")
		if err := p.deleteOrphans(ctx, changes.OrphanIDs); err != nil {
			return p.fail("delete orphans: %v", err)
		}
		p.log.Report.OrphansDeleted = len(changes.OrphanIDs)
	}

	p.log.Subsection("Step 5: Chunk documents (staging)")
	docs := p.stageAll(pending, changes.Hashes)
	total := 0
	for _, d := range docs {
		total += len(d.records)
	}
	p.log.Info("Total chunks to upload: %d", total)

	p.log.Subsection("Step 6: Upload to index")
	uploadErrors := p.uploadAll(ctx, docs)

	p.log.Subsection("Step 7: Verify upload")
	p.verify(ctx)

	p.log.Subsection("Step 8: Archive documents")
	p.archiveAll(docs, store)

	p.log.Subsection("Step 9: Update tracking")
	if err := store.Save(); err != nil {
		return p.fail("save tracking: %v", err)
	}
	p.log.Success("Tracking updated: %d files", store.Len())

	p.finalReport(docs)

	if uploadErrors > 0 || len(p.log.Report.Errors) > 0 {
		p.log.Report.Status = report.StatusPartial
	} else {
		p.log.Report.Status = report.StatusCompleted
	}
	return nil
}

// scanSources lists markdown documents in the source directory.
func (p *Pipeline) scanSources() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(p.cfg.SourceDir, "*.md"))
	if err != nil {
		return nil, err
	}
	files := paths[:0]
	for _, path := range paths {
		if filepath.Base(path) == "desktop.ini" {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

func (p *Pipeline) logChanges(c tracking.Changes) {
	for _, path := range c.New {
		p.log.Info("  [NEW] %s", filepath.Base(path))
	}
	for _, path := range c.Changed {
		p.log.Info("  [CHANGED] %s", filepath.Base(path))
	}
	for _, path := range c.Unchanged {
		p.log.Info("  [UNCHANGED] %s", filepath.Base(path))
	}
	p.log.Info("Summary: %d new, %d changed, %d unchanged", len(c.New), len(c.Changed), len(c.Unchanged))
	if len(c.OrphanIDs) > 0 {
		p.log.Warning("Orphaned chunks to delete: %d", len(c.OrphanIDs))
	}
}

// deleteOrphans removes stale chunk IDs before any new chunks are uploaded,
// so a changed file's old and new IDs never coexist in the index.
func (p *Pipeline) deleteOrphans(ctx context.Context, ids []string) error {
	p.log.Info("Deleting %d orphaned chunks...", len(ids))
	for start := 0; start < len(ids); start += p.cfg.DeleteBatchSize {
		end := start + p.cfg.DeleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := p.client.Delete(ctx, ids[start:end]); err != nil {
			return err
		}
		p.log.Info("  Deleted batch: %d IDs", end-start)
	}
	return nil
}

// stageAll chunks every pending file and writes its staging artifact. A
// failing document is reported and skipped; the rest of the batch proceeds.
func (p *Pipeline) stageAll(pending []string, hashes map[string]string) []*document {
	var docs []*document
	for _, path := range pending {
		filename := filepath.Base(path)
		p.log.Info("Processing: %s", filename)

		doc, err := p.stageOne(path, hashes[filename])
		if err != nil {
			p.log.Error("%s: %v", filename, err)
			p.log.AddFileReport(report.FileReport{Filename: filename, Status: "error"})
			continue
		}
		docs = append(docs, doc)
		p.log.Report.ChunksCreated += len(doc.records)
	}
	return docs
}

func (p *Pipeline) stageOne(path, hash string) (*document, error) {
	filename := filepath.Base(path)

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	text := string(b)

	chunks := chunker.Chunk(text, chunker.Options{
		ChunkSize: p.cfg.ChunkSize,
		MinSize:   p.cfg.MinChunkSize,
	})
	docType := identity.Categorize(filename)

	doc := &document{
		filename:   filename,
		sourcePath: path,
		docType:    docType,
		hash:       hash,
	}
	artifact := archive.Artifact{
		Filename:    filename,
		DocType:     docType,
		TotalChunks: len(chunks),
	}
	for i, chunk := range chunks {
		id := identity.ChunkID(filename, i, chunk)
		doc.chunkIDs = append(doc.chunkIDs, id)
		doc.records = append(doc.records, index.Record{
			ID:          id,
			Text:        chunk,
			Filename:    filename,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			DocType:     docType,
		})
		artifact.Chunks = append(artifact.Chunks, archive.ChunkEntry{
			ID:         id,
			ChunkIndex: i,
			Text:       chunk,
		})
	}

	if _, err := p.archive.Stage(artifact); err != nil {
		return nil, err
	}

	p.log.Info("  Type: %s", docType)
	p.log.Info("  Size: %d characters", utf8.RuneCountInString(text))
	p.log.Info("  Chunks: %d", len(chunks))
	return doc, nil
}

// uploadAll sends each document's records in fixed-size batches. A document
// is marked uploaded only when every one of its batches succeeded; failed
// documents stay staged and keep their old tracking entry so the next run
// retries them. Returns the number of failed batches.
func (p *Pipeline) uploadAll(ctx context.Context, docs []*document) int {
	failures := 0
	for _, doc := range docs {
		doc.uploaded = true
		for start := 0; start < len(doc.records); start += p.cfg.UpsertBatchSize {
			end := start + p.cfg.UpsertBatchSize
			if end > len(doc.records) {
				end = len(doc.records)
			}
			batch := doc.records[start:end]
			if err := p.client.Upsert(ctx, batch); err != nil {
				p.log.Error("%s: batch %d failed: %v", doc.filename, start/p.cfg.UpsertBatchSize+1, err)
				doc.uploaded = false
				failures++
				continue
			}
			p.log.Report.ChunksUploaded += len(batch)
		}
		if doc.uploaded {
			p.log.Info("  %s: %d chunks uploaded", doc.filename, len(doc.records))
		}
	}
	return failures
}

// verify waits out the indexing delay and logs a coarse record count. It
// checks aggregate size only, not per-ID presence.
func (p *Pipeline) verify(ctx context.Context) {
	if p.cfg.VerifyDelay > 0 {
		select {
		case <-time.After(p.cfg.VerifyDelay):
		case <-ctx.Done():
			p.log.Warning("Verification skipped: %v", ctx.Err())
			return
		}
	}
	stats, err := p.client.Stats(ctx)
	if err != nil {
		p.log.Warning("Verification query failed: %v", err)
		return
	}
	p.log.Info("Records in namespace: %d", stats.NamespaceVectors)
	p.log.Success("Verification passed")
}

// archiveAll commits every fully uploaded document and writes its fresh
// tracking record. Documents with failed uploads are left staged and their
// tracking entries untouched.
func (p *Pipeline) archiveAll(docs []*document, store *tracking.Store) {
	for _, doc := range docs {
		if !doc.uploaded {
			p.log.Warning("%s stays staged: upload incomplete, will retry next run", doc.filename)
			p.log.AddFileReport(report.FileReport{
				Filename:    doc.filename,
				ChunksCount: len(doc.chunkIDs),
				Status:      "upload_failed",
			})
			continue
		}

		p.log.Info("Archiving: %s", doc.filename)
		if err := p.archive.Commit(doc.filename, doc.sourcePath); err != nil {
			p.log.Error("%s: archive: %v", doc.filename, err)
			continue
		}

		store.Set(doc.filename, tracking.Record{
			ContentHash: doc.hash,
			ChunkIDs:    doc.chunkIDs,
			ChunksCount: len(doc.chunkIDs),
			UploadedAt:  time.Now().Format(time.RFC3339),
			Source:      "archived_source_docs",
		})
		p.log.AddFileReport(report.FileReport{
			Filename:    doc.filename,
			ChunksCount: len(doc.chunkIDs),
			Status:      "uploaded",
			ChunkIDs:    doc.chunkIDs,
			ContentHash: doc.hash,
		})
	}
}

func (p *Pipeline) finalReport(docs []*document) {
	p.log.Section("RUN SUMMARY")
	p.log.Info("Files processed: %d", len(docs))
	p.log.Info("Chunks created: %d", p.log.Report.ChunksCreated)
	p.log.Info("Chunks uploaded: %d", p.log.Report.ChunksUploaded)
	if p.log.Report.OrphansDeleted > 0 {
		p.log.Info("Orphans deleted: %d", p.log.Report.OrphansDeleted)
	}
	for _, fr := range p.log.Report.FilesProcessed {
		p.log.Info("  - %s: %d chunks (%s)", fr.Filename, fr.ChunksCount, fr.Status)
	}
	if n := len(p.log.Report.Errors); n > 0 {
		p.log.Info("Errors: %d", n)
	}
	if n := len(p.log.Report.Warnings); n > 0 {
		p.log.Info("Warnings: %d", n)
	}
}

// fail marks the run failed and returns the formatted error.
func (p *Pipeline) fail(format string, args ...any) error {
	p.log.Error(format, args...)
	p.log.Report.Status = report.StatusFailed
	return fmt.Errorf(format, args...)
}

func (p *Pipeline) complete(message string) {
	p.log.Report.Status = report.StatusCompleted
	p.log.Report.Message = message
}
