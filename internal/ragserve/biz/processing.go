package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kart-io/logger"

	"github.com/kart-io/ragserve/internal/model"
	"github.com/kart-io/ragserve/internal/pkg/docutil"
	"github.com/kart-io/ragserve/internal/pkg/textutil"
	"github.com/kart-io/ragserve/internal/ragserve/store"
	"github.com/kart-io/ragserve/pkg/llm"
	"github.com/kart-io/ragserve/pkg/pool"
)

// ProcessingConfig tunes the document-processing pipeline.
type ProcessingConfig struct {
	// ChunkSize is the maximum chunk length in runes.
	ChunkSize int
	// ChunkOverlap is the number of runes shared between adjacent chunks.
	ChunkOverlap int
	// MaxDocumentsPerRun caps a job that was started without a limit.
	MaxDocumentsPerRun int
	// Workers is the number of jobs that may run concurrently.
	Workers int
}

// DefaultProcessingConfig returns the default pipeline configuration.
func DefaultProcessingConfig() *ProcessingConfig {
	return &ProcessingConfig{
		ChunkSize:          1500,
		ChunkOverlap:       200,
		MaxDocumentsPerRun: 25,
		Workers:            2,
	}
}

// ChunkRecord is one chunk of a source document prepared for indexing.
type ChunkRecord struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// ProcessingManager runs asynchronous ingestion jobs. Each job drains the
// raw document bucket: extract text, split into chunks, embed, index, move
// the blob to the processed bucket. Jobs are tracked in an in-memory
// registry guarded by a single mutex; the registry is never trimmed, so
// job status survives for the lifetime of the process.
type ProcessingManager struct {
	documents store.DocumentStore
	index     store.SearchIndex
	embedder  llm.EmbeddingProvider
	config    *ProcessingConfig

	mu   sync.Mutex
	jobs map[uuid.UUID]*model.Job

	workers *pool.Pool
}

// NewProcessingManager creates a processing manager with its worker pool.
func NewProcessingManager(
	documents store.DocumentStore,
	index store.SearchIndex,
	embedder llm.EmbeddingProvider,
	config *ProcessingConfig,
) (*ProcessingManager, error) {
	if config == nil {
		config = DefaultProcessingConfig()
	}

	workers, err := pool.New("processing", &pool.Config{
		Capacity:       config.Workers,
		ExpiryDuration: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create processing pool: %w", err)
	}

	return &ProcessingManager{
		documents: documents,
		index:     index,
		embedder:  embedder,
		config:    config,
		jobs:      make(map[uuid.UUID]*model.Job),
		workers:   workers,
	}, nil
}

// StartJob registers a queued job and schedules it on the worker pool. The
// optional limit caps how many documents the job may process; nil falls
// back to MaxDocumentsPerRun. The call returns as soon as the job is
// registered, even when every worker is busy; the job stays queued until a
// worker frees up. If the pool rejects the task the job is recorded as
// failed so status polls can see why nothing ran.
func (m *ProcessingManager) StartJob(limit *int) (uuid.UUID, error) {
	if limit != nil && *limit < 1 {
		return uuid.Nil, ErrInvalidLimit
	}

	jobID := uuid.New()

	m.mu.Lock()
	m.jobs[jobID] = model.NewJob(jobID)
	m.mu.Unlock()

	// Submit from a separate goroutine: a full pool blocks the submitter
	// until a worker frees up, and that wait must not reach the caller.
	go func() {
		if err := m.workers.Submit(func() { m.runJob(jobID, limit) }); err != nil {
			logger.Errorw("failed to schedule processing job",
				"job_id", jobID.String(),
				"error", err.Error(),
			)
			m.failJob(jobID, fmt.Errorf("failed to schedule job: %w", err))
		}
	}()

	logger.Infow("processing job scheduled", "job_id", jobID.String())
	return jobID, nil
}

// GetStatus returns a snapshot of the job, or ErrJobNotFound.
func (m *ProcessingManager) GetStatus(jobID uuid.UUID) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job.Clone(), nil
}

// Close releases the worker pool. Running jobs finish first.
func (m *ProcessingManager) Close() {
	m.workers.Release()
}

// runJob executes one ingestion job. Documents are handled sequentially;
// the first failing document fails the whole job and the remaining
// documents are left untouched for the next run.
func (m *ProcessingManager) runJob(jobID uuid.UUID, limit *int) {
	ctx := context.Background()

	m.setState(jobID, model.JobStateRunning)

	maxDocs := m.config.MaxDocumentsPerRun
	if limit != nil {
		maxDocs = *limit
	}

	names, err := m.documents.ListUnprocessed(ctx, maxDocs)
	if err != nil {
		m.failJob(jobID, fmt.Errorf("failed to list unprocessed documents: %w", err))
		return
	}

	m.updateStep(jobID, model.StepFilesDiscovered, len(names), len(names))
	m.updateStep(jobID, model.StepFilesProcessed, 0, len(names))

	totalChunks := 0
	totalEmbeddings := 0
	for i, name := range names {
		chunks, embeddings, err := m.processDocument(ctx, name)
		if err != nil {
			m.failJob(jobID, err)
			return
		}

		totalChunks += chunks
		totalEmbeddings += embeddings

		m.updateStep(jobID, model.StepFilesProcessed, i+1, len(names))
		// The final chunk count is unknown until the job ends, so the
		// cumulative counters report total == current.
		m.updateStep(jobID, model.StepChunksIndexed, totalChunks, totalChunks)
		m.updateStep(jobID, model.StepEmbeddingsCreated, totalEmbeddings, totalEmbeddings)
	}

	m.setState(jobID, model.JobStateCompleted)
	logger.Infow("processing job completed",
		"job_id", jobID.String(),
		"files", len(names),
		"chunks", totalChunks,
	)
}

// processDocument ingests one raw document end to end and reports how many
// chunks and embeddings it produced.
func (m *ProcessingManager) processDocument(ctx context.Context, name string) (int, int, error) {
	data, err := m.documents.Fetch(ctx, name)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch %q: %w", name, err)
	}

	text, err := docutil.ExtractText(name, data)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to extract text from %q: %w", name, err)
	}

	chunks := textutil.SplitIntoChunks(text, m.config.ChunkSize, m.config.ChunkOverlap)
	records := buildChunkRecords(name, chunks)

	contents := make([]string, len(records))
	for i, r := range records {
		contents[i] = r.Content
	}

	vectors, err := m.embedder.Embed(ctx, contents)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to embed chunks of %q: %w", name, err)
	}
	if len(vectors) != len(records) {
		return 0, 0, fmt.Errorf("embedding count mismatch for %q: %d vectors for %d chunks",
			name, len(vectors), len(records))
	}

	docs := make([]store.ChunkDocument, len(records))
	for i, r := range records {
		docs[i] = store.ChunkDocument{
			ID:         r.ID,
			Content:    r.Content,
			ChunkID:    r.ID,
			SourcePath: name,
			ChunkOrder: int64(i),
			Metadata:   r.Metadata,
			Embedding:  vectors[i],
		}
	}

	if err := m.index.Upload(ctx, docs); err != nil {
		return 0, 0, fmt.Errorf("failed to index chunks of %q: %w", name, err)
	}

	if err := m.documents.Move(ctx, name); err != nil {
		return 0, 0, err
	}

	return len(records), len(vectors), nil
}

// buildChunkRecords assigns each chunk its deterministic ID, the sanitized
// source name plus the chunk ordinal, and the metadata stored with it.
func buildChunkRecords(sourceName string, chunks []string) []ChunkRecord {
	records := make([]ChunkRecord, 0, len(chunks))
	for order, chunk := range chunks {
		chunkID := textutil.ChunkID(sourceName, order)
		records = append(records, ChunkRecord{
			ID:      chunkID,
			Content: chunk,
			Metadata: map[string]any{
				"chunk_id":    chunkID,
				"source_path": sourceName,
				"chunk_order": order,
			},
		})
	}
	return records
}

func (m *ProcessingManager) setState(jobID uuid.UUID, state model.JobState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		job.State = state
		job.UpdatedAt = time.Now()
	}
}

func (m *ProcessingManager) failJob(jobID uuid.UUID, err error) {
	logger.Errorw("processing job failed", "job_id", jobID.String(), "error", err.Error())

	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		job.State = model.JobStateFailed
		job.Errors = append(job.Errors, err.Error())
		job.UpdatedAt = time.Now()
	}
}

func (m *ProcessingManager) updateStep(jobID uuid.UUID, name string, current, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return
	}
	if step := job.Step(name); step != nil {
		step.Current = current
		step.Total = total
		job.UpdatedAt = time.Now()
	}
}
