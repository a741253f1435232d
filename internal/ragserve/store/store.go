package store

import (
	"context"
	"errors"

	"github.com/kart-io/ragserve/internal/model"
)

// ErrFileNotFound is returned when a named blob does not exist in the
// document store.
var ErrFileNotFound = errors.New("file not found")

// ChunkDocument is one row of the search index: an embedded chunk of a
// source document plus the metadata needed to cite it.
type ChunkDocument struct {
	// ID is the deterministic chunk key, sanitized source name plus ordinal.
	ID         string
	Content    string
	ChunkID    string
	SourcePath string
	ChunkOrder int64
	// Metadata is serialized to JSON alongside the scalar columns so hits
	// can be rehydrated without a second lookup.
	Metadata  map[string]any
	Embedding []float32
}

// SearchHit is one fused retrieval result.
type SearchHit struct {
	Score   float64
	Content string
	// Metadata carries chunk_id, source_path and chunk_order.
	Metadata map[string]any
}

// DocumentStore holds uploaded documents and tracks which ones still await
// processing. Raw uploads live in one bucket and move to a second bucket
// once indexed.
type DocumentStore interface {
	// Upload stores a blob under the given name, replacing any previous
	// blob with the same name.
	Upload(ctx context.Context, name string, data []byte, contentType string) (*model.StoredFile, error)

	// ListRecent returns up to limit raw files, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.StoredFile, error)

	// ListUnprocessed returns the names of raw files awaiting processing.
	// A limit of zero means no limit.
	ListUnprocessed(ctx context.Context, limit int) ([]string, error)

	// Fetch reads the content of a raw file.
	Fetch(ctx context.Context, name string) ([]byte, error)

	// Move relocates a file from the raw bucket to the processed bucket.
	Move(ctx context.Context, name string) error
}

// SearchIndex stores embedded chunks and serves hybrid retrieval over them.
type SearchIndex interface {
	// EnsureCollection creates and loads the chunk collection. Idempotent.
	EnsureCollection(ctx context.Context) error

	// Upload indexes a batch of chunk documents.
	Upload(ctx context.Context, docs []ChunkDocument) error

	// HybridSearch fuses full-text and vector retrieval over the indexed
	// chunks and returns the topK hits, best first.
	HybridSearch(ctx context.Context, queryText string, queryVector []float32, topK int) ([]SearchHit, error)
}
