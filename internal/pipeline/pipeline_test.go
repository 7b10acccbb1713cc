package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/opryshko/docsync/internal/config"
	"github.com/opryshko/docsync/internal/index"
	"github.com/opryshko/docsync/internal/report"
	"github.com/opryshko/docsync/internal/tracking"
)

// fakeClient is an in-memory index collaborator with call counters.
type fakeClient struct {
	connectErr error
	upsertErr  error

	connects    int
	upsertCalls int
	deleted     []string
	records     map[string]index.Record
}

func newFakeClient() *fakeClient {
	return &fakeClient{records: map[string]index.Record{}}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.connects++
	return f.connectErr
}

func (f *fakeClient) Upsert(ctx context.Context, records []index.Record) error {
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return nil
}

func (f *fakeClient) Delete(ctx context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	for _, id := range ids {
		delete(f.records, id)
	}
	return nil
}

func (f *fakeClient) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for id := range f.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeClient) Fetch(ctx context.Context, ids []string) (map[string]index.Record, error) {
	out := map[string]index.Record{}
	for _, id := range ids {
		if r, ok := f.records[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (f *fakeClient) Stats(ctx context.Context) (index.Stats, error) {
	return index.Stats{TotalVectors: len(f.records), NamespaceVectors: len(f.records)}, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.VerifyDelay = 0
	return cfg
}

func newTestPipeline(t *testing.T, cfg config.Config, client index.Client) (*Pipeline, *report.Logger) {
	t.Helper()
	log := report.NewLogger(cfg.LogsDir)
	log.SetOutput(io.Discard)
	return New(cfg, client, log), log
}

// docBody returns document text guaranteed to produce at least one chunk.
func docBody(seed string) string {
	return strings.Repeat("This document is about "+seed+". ", 10)
}

func writeSource(t *testing.T, cfg config.Config, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(cfg.SourceDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfg.SourceDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func openTracking(t *testing.T, cfg config.Config) *tracking.Store {
	t.Helper()
	s, err := tracking.Open(cfg.TrackingFile, cfg.Index, cfg.Namespace)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestIngest_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	client := newFakeClient()
	ctx := context.Background()

	writeSource(t, cfg, "new.md", docBody("fresh material"))
	samePath := writeSource(t, cfg, "same.md", docBody("stable material"))
	writeSource(t, cfg, "changed.md", docBody("revised material"))

	sameHash, err := tracking.FileHash(samePath)
	if err != nil {
		t.Fatal(err)
	}
	sameRec := tracking.Record{
		ContentHash: sameHash,
		ChunkIDs:    []string{"s1"},
		ChunksCount: 1,
		UploadedAt:  "2026-01-01T00:00:00Z",
		Source:      "archived_source_docs",
	}
	seed := openTracking(t, cfg)
	seed.Set("same.md", sameRec)
	seed.Set("changed.md", tracking.Record{ContentHash: "stale", ChunkIDs: []string{"c1", "c2"}, ChunksCount: 2})
	if err := seed.Save(); err != nil {
		t.Fatal(err)
	}

	p, log := newTestPipeline(t, cfg, client)
	if err := p.Ingest(ctx); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// Exactly the stale file's old IDs were deleted, before uploads.
	sort.Strings(client.deleted)
	if !reflect.DeepEqual(client.deleted, []string{"c1", "c2"}) {
		t.Errorf("deleted = %v, want [c1 c2]", client.deleted)
	}

	// Only the new and changed files were chunked and uploaded.
	uploadedFiles := map[string]bool{}
	for _, r := range client.records {
		uploadedFiles[r.Filename] = true
	}
	if !uploadedFiles["new.md"] || !uploadedFiles["changed.md"] || uploadedFiles["same.md"] {
		t.Errorf("uploaded files = %v", uploadedFiles)
	}

	after := openTracking(t, cfg)
	if after.Len() != 3 {
		t.Errorf("tracked files = %d, want 3", after.Len())
	}

	// The unchanged file's entry is carried forward verbatim.
	got, ok := after.Get("same.md")
	if !ok || !reflect.DeepEqual(got, sameRec) {
		t.Errorf("same.md record = %+v, want %+v", got, sameRec)
	}

	// The changed file's entry points at the new chunk set.
	changedRec, ok := after.Get("changed.md")
	if !ok {
		t.Fatal("changed.md missing from tracking")
	}
	if changedRec.ContentHash == "stale" {
		t.Error("changed.md hash not refreshed")
	}
	for _, id := range changedRec.ChunkIDs {
		if id == "c1" || id == "c2" {
			t.Errorf("stale chunk ID %s survived in tracking", id)
		}
		if _, ok := client.records[id]; !ok {
			t.Errorf("tracked chunk ID %s not present in index", id)
		}
	}

	// Processed sources were archived; the unchanged one stays put.
	if _, err := os.Stat(filepath.Join(cfg.ArchivedSourceDir, "new.md")); err != nil {
		t.Errorf("new.md not archived: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.ArchivedSourceDir, "changed.md")); err != nil {
		t.Errorf("changed.md not archived: %v", err)
	}
	if _, err := os.Stat(samePath); err != nil {
		t.Errorf("same.md should remain in source dir: %v", err)
	}

	// Artifacts ended up archived, not staged.
	if _, err := os.Stat(filepath.Join(cfg.ArchiveDir, "new.md.json")); err != nil {
		t.Errorf("archived artifact missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.StagingDir, "new.md.json")); !os.IsNotExist(err) {
		t.Error("staging artifact should be gone after archive")
	}

	if log.Report.Status != report.StatusCompleted {
		t.Errorf("status = %q", log.Report.Status)
	}
	if log.Report.OrphansDeleted != 2 {
		t.Errorf("orphans_deleted = %d", log.Report.OrphansDeleted)
	}
	if log.Report.ChunksCreated == 0 || log.Report.ChunksUploaded != log.Report.ChunksCreated {
		t.Errorf("chunks created/uploaded = %d/%d", log.Report.ChunksCreated, log.Report.ChunksUploaded)
	}
}

func TestIngest_Idempotent(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	writeSource(t, cfg, "doc.md", docBody("some content"))

	first := newFakeClient()
	p1, _ := newTestPipeline(t, cfg, first)
	if err := p1.Ingest(ctx); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	// Re-drop the archived source unchanged and run again: its hash matches
	// the tracking entry, so nothing happens.
	archived := filepath.Join(cfg.ArchivedSourceDir, "doc.md")
	b, err := os.ReadFile(archived)
	if err != nil {
		t.Fatal(err)
	}
	writeSource(t, cfg, "doc.md", string(b))

	second := newFakeClient()
	p2, log := newTestPipeline(t, cfg, second)
	if err := p2.Ingest(ctx); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	if second.upsertCalls != 0 {
		t.Errorf("second run upserted %d batches, want 0", second.upsertCalls)
	}
	if len(second.deleted) != 0 {
		t.Errorf("second run deleted %v, want nothing", second.deleted)
	}
	if log.Report.ChunksCreated != 0 {
		t.Errorf("second run created %d chunks, want 0", log.Report.ChunksCreated)
	}
	if log.Report.Status != report.StatusCompleted || log.Report.Message != "All files up to date" {
		t.Errorf("status/message = %q/%q", log.Report.Status, log.Report.Message)
	}
}

func TestIngest_UploadFailureKeepsDocumentStaged(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	path := writeSource(t, cfg, "doc.md", docBody("flaky upload"))

	client := newFakeClient()
	client.upsertErr = errors.New("boom")
	p, log := newTestPipeline(t, cfg, client)
	if err := p.Ingest(ctx); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if log.Report.Status != report.StatusPartial {
		t.Errorf("status = %q, want partial", log.Report.Status)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("source must stay in place after failed upload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.StagingDir, "doc.md.json")); err != nil {
		t.Errorf("staging artifact must survive a failed upload: %v", err)
	}
	if _, ok := openTracking(t, cfg).Get("doc.md"); ok {
		t.Error("tracking must not record a document whose upload failed")
	}

	// The next run retries it as new and succeeds.
	retry := newFakeClient()
	p2, log2 := newTestPipeline(t, cfg, retry)
	if err := p2.Ingest(ctx); err != nil {
		t.Fatalf("retry ingest: %v", err)
	}
	if log2.Report.Status != report.StatusCompleted {
		t.Errorf("retry status = %q", log2.Report.Status)
	}
	if _, ok := openTracking(t, cfg).Get("doc.md"); !ok {
		t.Error("retry should record the document")
	}
}

func TestIngest_ConnectFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	path := writeSource(t, cfg, "doc.md", docBody("unreachable index"))

	client := newFakeClient()
	client.connectErr = errors.New("connection refused")
	p, log := newTestPipeline(t, cfg, client)

	if err := p.Ingest(context.Background()); err == nil {
		t.Fatal("expected error on connect failure")
	}
	if log.Report.Status != report.StatusFailed {
		t.Errorf("status = %q, want failed", log.Report.Status)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("no file may move when connect fails: %v", err)
	}
	if client.upsertCalls != 0 {
		t.Error("nothing may be uploaded when connect fails")
	}
}

func TestIngest_PreservesEntriesForAbsentFiles(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	oldRec := tracking.Record{ContentHash: "h-old", ChunkIDs: []string{"o1"}, ChunksCount: 1}
	seed := openTracking(t, cfg)
	seed.Set("previously-archived.md", oldRec)
	if err := seed.Save(); err != nil {
		t.Fatal(err)
	}

	writeSource(t, cfg, "doc.md", docBody("a new drop"))
	p, _ := newTestPipeline(t, cfg, newFakeClient())
	if err := p.Ingest(ctx); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, ok := openTracking(t, cfg).Get("previously-archived.md")
	if !ok {
		t.Fatal("entry for an absent file must survive the tracking rewrite")
	}
	if !reflect.DeepEqual(got, oldRec) {
		t.Errorf("absent file's entry mutated: %+v", got)
	}
}

func TestIngest_EmptySourceDir(t *testing.T) {
	cfg := testConfig(t)
	p, log := newTestPipeline(t, cfg, newFakeClient())
	if err := p.Ingest(context.Background()); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if log.Report.Status != report.StatusCompleted || log.Report.Message != "No new files to process" {
		t.Errorf("status/message = %q/%q", log.Report.Status, log.Report.Message)
	}
}

func TestDownload(t *testing.T) {
	cfg := testConfig(t)
	client := newFakeClient()
	client.records = map[string]index.Record{
		"a1": {ID: "a1", Text: "first part", Filename: "a.md", ChunkIndex: 0, TotalChunks: 2, DocType: "other"},
		"a2": {ID: "a2", Text: "second part", Filename: "a.md", ChunkIndex: 1, TotalChunks: 2, DocType: "other"},
		"b1": {ID: "b1", Text: "solo chunk", Filename: "b.md", ChunkIndex: 0, TotalChunks: 1, DocType: "contract"},
	}

	p, log := newTestPipeline(t, cfg, client)
	if err := p.Download(context.Background()); err != nil {
		t.Fatalf("download: %v", err)
	}
	if log.Report.Status != report.StatusCompleted {
		t.Errorf("status = %q", log.Report.Status)
	}

	for _, name := range []string{"a.md.json", "b.md.json", "_index.json"} {
		if _, err := os.Stat(filepath.Join(cfg.ArchiveDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestDownloadThenResync(t *testing.T) {
	cfg := testConfig(t)
	client := newFakeClient()
	client.records = map[string]index.Record{
		"a1": {ID: "a1", Text: "first part", Filename: "a.md", ChunkIndex: 0, TotalChunks: 2, DocType: "other"},
		"a2": {ID: "a2", Text: "second part", Filename: "a.md", ChunkIndex: 1, TotalChunks: 2, DocType: "other"},
	}

	p, _ := newTestPipeline(t, cfg, client)
	ctx := context.Background()
	if err := p.Download(ctx); err != nil {
		t.Fatalf("download: %v", err)
	}

	p2, _ := newTestPipeline(t, cfg, newFakeClient())
	if err := p2.Resync(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}

	rec, ok := openTracking(t, cfg).Get("a.md")
	if !ok {
		t.Fatal("a.md missing from tracking after resync")
	}
	sort.Strings(rec.ChunkIDs)
	if !reflect.DeepEqual(rec.ChunkIDs, []string{"a1", "a2"}) {
		t.Errorf("chunk ids = %v", rec.ChunkIDs)
	}
	if !strings.HasPrefix(rec.ContentHash, "chunks_only_") {
		t.Errorf("hash = %q, want chunks_only placeholder without an archived source", rec.ContentHash)
	}

	// Second resync leaves everything unchanged.
	p3, log3 := newTestPipeline(t, cfg, newFakeClient())
	if err := p3.Resync(ctx); err != nil {
		t.Fatalf("second resync: %v", err)
	}
	if len(log3.Report.Errors) != 0 {
		t.Errorf("second resync errors: %v", log3.Report.Errors)
	}
}
