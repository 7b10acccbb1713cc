// Package index talks to the remote vector index that stores chunk records.
// The pipeline only decides what to upsert and delete; everything behind this
// interface, including embedding, belongs to the remote service.
package index

import "context"

// Record is one chunk as the remote index stores it.
type Record struct {
	ID          string `json:"_id"`
	Text        string `json:"text"`
	Filename    string `json:"filename"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	DocType     string `json:"doc_type"`
}

// Stats is a coarse record count for the index and the working namespace.
type Stats struct {
	TotalVectors     int
	NamespaceVectors int
}

// Client is the external upsert/delete/list collaborator.
type Client interface {
	// Connect establishes the connection; the pipeline treats a failure
	// here as fatal, before any file is touched.
	Connect(ctx context.Context) error

	// Upsert writes one batch of records to the working namespace.
	Upsert(ctx context.Context, records []Record) error

	// Delete removes one batch of chunk IDs from the working namespace.
	Delete(ctx context.Context, ids []string) error

	// ListIDs returns every record ID in the working namespace.
	ListIDs(ctx context.Context) ([]string, error)

	// Fetch retrieves records by ID, keyed by ID in the result.
	Fetch(ctx context.Context, ids []string) (map[string]Record, error)

	// Stats returns aggregate record counts, used only as a coarse
	// post-upload sanity signal.
	Stats(ctx context.Context) (Stats, error)
}
