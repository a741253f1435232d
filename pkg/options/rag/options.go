// Package rag provides configuration options for the ingestion and
// retrieval pipelines.
package rag

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/ragserve/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// DefaultSystemPrompt instructs the chat model to stay inside the
// retrieved context.
const DefaultSystemPrompt = "You are a retrieval assistant. Answer only using the provided context."

// Options contains pipeline configuration.
type Options struct {
	// Collection is the name of the search index collection.
	Collection string `json:"collection" mapstructure:"collection"`

	// EmbeddingDim is the dimension of embedding vectors.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// ChunkSize is the size of text chunks in characters.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the overlap between adjacent chunks in characters.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// MaxDocumentsPerRun caps how many raw documents one ingestion job
	// picks up when the request does not carry an explicit limit.
	MaxDocumentsPerRun int `json:"max-documents-per-run" mapstructure:"max-documents-per-run"`

	// Workers is the size of the ingestion worker pool.
	Workers int `json:"workers" mapstructure:"workers"`

	// TopK is the default number of hits requested from the search index.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// SystemPrompt is the system prompt sent with every chat completion.
	SystemPrompt string `json:"system-prompt" mapstructure:"system-prompt"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Collection:         "rag_chunks",
		EmbeddingDim:       1536,
		ChunkSize:          1500,
		ChunkOverlap:       200,
		MaxDocumentsPerRun: 25,
		Workers:            2,
		TopK:               5,
		SystemPrompt:       DefaultSystemPrompt,
	}
}

// AddFlags adds flags for pipeline options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Collection, options.Join(prefixes...)+"rag.collection", o.Collection, "Search index collection name.")
	fs.IntVar(&o.EmbeddingDim, options.Join(prefixes...)+"rag.embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.IntVar(&o.ChunkSize, options.Join(prefixes...)+"rag.chunk-size", o.ChunkSize, "Size of text chunks.")
	fs.IntVar(&o.ChunkOverlap, options.Join(prefixes...)+"rag.chunk-overlap", o.ChunkOverlap, "Overlap between chunks.")
	fs.IntVar(&o.MaxDocumentsPerRun, options.Join(prefixes...)+"rag.max-documents-per-run", o.MaxDocumentsPerRun, "Maximum documents picked up by one ingestion run.")
	fs.IntVar(&o.Workers, options.Join(prefixes...)+"rag.workers", o.Workers, "Ingestion worker pool size.")
	fs.IntVar(&o.TopK, options.Join(prefixes...)+"rag.top-k", o.TopK, "Default number of results from similarity search.")
	fs.StringVar(&o.SystemPrompt, options.Join(prefixes...)+"rag.system-prompt", o.SystemPrompt, "System prompt for chat completions.")
}

// Validate validates the pipeline options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("collection is required"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("embedding-dim must be positive"))
	}
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk-overlap must be in [0, chunk-size)"))
	}
	if o.MaxDocumentsPerRun <= 0 {
		errs = append(errs, fmt.Errorf("max-documents-per-run must be positive"))
	}
	if o.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top-k must be positive"))
	}
	return errs
}

// Complete completes the pipeline options with defaults.
func (o *Options) Complete() error {
	if o.SystemPrompt == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	return nil
}
