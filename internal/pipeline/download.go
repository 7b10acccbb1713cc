package pipeline

import (
	"context"
	"sort"

	"github.com/opryshko/docsync/internal/archive"
	"github.com/opryshko/docsync/internal/index"
)

// indexSummary is the _index.json overview written next to downloaded
// artifacts.
type indexSummary struct {
	Index        string                 `json:"index"`
	Namespace    string                 `json:"namespace"`
	TotalRecords int                    `json:"total_records"`
	Files        map[string]fileSummary `json:"files"`
}

type fileSummary struct {
	ChunksCount int      `json:"chunks_count"`
	ChunkIDs    []string `json:"chunk_ids"`
}

// Download pulls every record from the remote namespace and writes a local
// backup: one archived artifact per source document plus an _index.json
// summary.
func (p *Pipeline) Download(ctx context.Context) error {
	p.log.Section("CHUNK DOWNLOADER")

	if err := p.archive.EnsureDirs(); err != nil {
		return p.fail("create lifecycle dirs: %v", err)
	}

	p.log.Subsection("Step 1: Connect to index")
	if err := p.client.Connect(ctx); err != nil {
		return p.fail("connect: %v", err)
	}
	stats, err := p.client.Stats(ctx)
	if err != nil {
		return p.fail("index stats: %v", err)
	}
	p.log.Info("Index: %s", p.cfg.Index)
	p.log.Info("Namespace: %s", p.cfg.Namespace)
	p.log.Info("Records: %d", stats.NamespaceVectors)

	if stats.NamespaceVectors == 0 {
		p.log.Info("Namespace is empty, nothing to download")
		p.complete("Namespace is empty")
		return nil
	}

	p.log.Subsection("Step 2: List record IDs")
	ids, err := p.client.ListIDs(ctx)
	if err != nil {
		return p.fail("list ids: %v", err)
	}
	p.log.Info("Total IDs: %d", len(ids))

	p.log.Subsection("Step 3: Fetch records")
	records := make(map[string]index.Record, len(ids))
	for start := 0; start < len(ids); start += p.cfg.FetchBatchSize {
		end := start + p.cfg.FetchBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := p.client.Fetch(ctx, ids[start:end])
		if err != nil {
			return p.fail("fetch records: %v", err)
		}
		for id, r := range batch {
			records[id] = r
		}
		p.log.Info("  Fetched: %d/%d", len(records), len(ids))
	}

	p.log.Subsection("Step 4: Save locally")
	byFile := map[string]*archive.Artifact{}
	for id, r := range records {
		a, ok := byFile[r.Filename]
		if !ok {
			a = &archive.Artifact{
				Filename:    r.Filename,
				DocType:     r.DocType,
				TotalChunks: r.TotalChunks,
			}
			byFile[r.Filename] = a
		}
		a.Chunks = append(a.Chunks, archive.ChunkEntry{
			ID:         id,
			ChunkIndex: r.ChunkIndex,
			Text:       r.Text,
		})
	}

	summary := indexSummary{
		Index:        p.cfg.Index,
		Namespace:    p.cfg.Namespace,
		TotalRecords: len(records),
		Files:        map[string]fileSummary{},
	}
	filenames := make([]string, 0, len(byFile))
	for filename := range byFile {
		filenames = append(filenames, filename)
	}
	sort.Strings(filenames)

	for _, filename := range filenames {
		a := byFile[filename]
		if err := p.archive.WriteArchived(*a); err != nil {
			return p.fail("write artifact for %s: %v", filename, err)
		}
		p.log.Info("  %s: %d chunks", filename, len(a.Chunks))

		sort.Slice(a.Chunks, func(i, j int) bool {
			return a.Chunks[i].ChunkIndex < a.Chunks[j].ChunkIndex
		})
		chunkIDs := make([]string, len(a.Chunks))
		for i, c := range a.Chunks {
			chunkIDs[i] = c.ID
		}
		summary.Files[filename] = fileSummary{
			ChunksCount: len(a.Chunks),
			ChunkIDs:    chunkIDs,
		}
	}

	if err := p.archive.WriteArchiveJSON("_index.json", summary); err != nil {
		return p.fail("write index summary: %v", err)
	}

	p.log.Success("Downloaded %d chunks across %d files", len(records), len(byFile))
	p.complete("")
	return nil
}
