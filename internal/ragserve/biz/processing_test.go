package biz

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/ragserve/internal/model"
	"github.com/kart-io/ragserve/internal/ragserve/store"
)

type fakeDocumentStore struct {
	files    map[string][]byte
	order    []string
	moved    []string
	fetchErr map[string]error

	// fetchGate, when set, parks every Fetch until the channel is closed.
	fetchGate chan struct{}
}

var _ store.DocumentStore = (*fakeDocumentStore)(nil)

func newFakeDocumentStore(files map[string][]byte, order []string) *fakeDocumentStore {
	return &fakeDocumentStore{
		files:    files,
		order:    order,
		fetchErr: map[string]error{},
	}
}

func (f *fakeDocumentStore) Upload(_ context.Context, name string, data []byte, _ string) (*model.StoredFile, error) {
	f.files[name] = data
	f.order = append(f.order, name)
	return &model.StoredFile{Name: name, SizeBytes: int64(len(data))}, nil
}

func (f *fakeDocumentStore) ListRecent(_ context.Context, limit int) ([]model.StoredFile, error) {
	var out []model.StoredFile
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		name := f.order[i]
		out = append(out, model.StoredFile{Name: name, SizeBytes: int64(len(f.files[name]))})
	}
	return out, nil
}

func (f *fakeDocumentStore) ListUnprocessed(_ context.Context, limit int) ([]string, error) {
	names := append([]string(nil), f.order...)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (f *fakeDocumentStore) Fetch(_ context.Context, name string) ([]byte, error) {
	if f.fetchGate != nil {
		<-f.fetchGate
	}
	if err := f.fetchErr[name]; err != nil {
		return nil, err
	}
	data, ok := f.files[name]
	if !ok {
		return nil, store.ErrFileNotFound
	}
	return data, nil
}

func (f *fakeDocumentStore) Move(_ context.Context, name string) error {
	f.moved = append(f.moved, name)
	return nil
}

type fakeSearchIndex struct {
	uploaded  []store.ChunkDocument
	hits      []store.SearchHit
	uploadErr error
	searchErr error
}

var _ store.SearchIndex = (*fakeSearchIndex)(nil)

func (f *fakeSearchIndex) EnsureCollection(context.Context) error { return nil }

func (f *fakeSearchIndex) Upload(_ context.Context, docs []store.ChunkDocument) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploaded = append(f.uploaded, docs...)
	return nil
}

func (f *fakeSearchIndex) HybridSearch(context.Context, string, []float32, int) ([]store.SearchHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

type fakeEmbedder struct {
	dim      int
	err      error
	mismatch bool
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.mismatch {
		n++
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) Name() string { return "fake" }

func newTestManager(t *testing.T, docs *fakeDocumentStore, index *fakeSearchIndex, embedder *fakeEmbedder) *ProcessingManager {
	t.Helper()
	m, err := NewProcessingManager(docs, index, embedder, DefaultProcessingConfig())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func waitForJob(t *testing.T, m *ProcessingManager, id uuid.UUID) *model.Job {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := m.GetStatus(id)
		if err != nil {
			return false
		}
		return job.State == model.JobStateCompleted || job.State == model.JobStateFailed
	}, 5*time.Second, 10*time.Millisecond)

	job, err := m.GetStatus(id)
	require.NoError(t, err)
	return job
}

func stepByName(t *testing.T, job *model.Job, name string) model.Step {
	t.Helper()
	step := job.Step(name)
	require.NotNil(t, step, "missing step %s", name)
	return *step
}

func TestStartJobInvalidLimit(t *testing.T) {
	m := newTestManager(t, newFakeDocumentStore(nil, nil), &fakeSearchIndex{}, &fakeEmbedder{dim: 4})

	zero := 0
	_, err := m.StartJob(&zero)
	assert.ErrorIs(t, err, ErrInvalidLimit)

	negative := -3
	_, err = m.StartJob(&negative)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestGetStatusUnknownJob(t *testing.T) {
	m := newTestManager(t, newFakeDocumentStore(nil, nil), &fakeSearchIndex{}, &fakeEmbedder{dim: 4})

	_, err := m.GetStatus(uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunJobProcessesAllDocuments(t *testing.T) {
	docs := newFakeDocumentStore(map[string][]byte{
		"report.txt": []byte("the quarterly report text"),
		"notes.md":   []byte("some markdown notes"),
	}, []string{"report.txt", "notes.md"})
	index := &fakeSearchIndex{}
	m := newTestManager(t, docs, index, &fakeEmbedder{dim: 4})

	id, err := m.StartJob(nil)
	require.NoError(t, err)

	job := waitForJob(t, m, id)
	assert.Equal(t, model.JobStateCompleted, job.State)
	assert.Empty(t, job.Errors)

	discovered := stepByName(t, job, model.StepFilesDiscovered)
	assert.Equal(t, 2, discovered.Current)
	assert.Equal(t, 2, discovered.Total)

	processed := stepByName(t, job, model.StepFilesProcessed)
	assert.Equal(t, 2, processed.Current)
	assert.Equal(t, 2, processed.Total)

	// Short documents produce one chunk each; the cumulative counters
	// report total == current.
	chunks := stepByName(t, job, model.StepChunksIndexed)
	assert.Equal(t, 2, chunks.Current)
	assert.Equal(t, 2, chunks.Total)

	embeddings := stepByName(t, job, model.StepEmbeddingsCreated)
	assert.Equal(t, 2, embeddings.Current)
	assert.Equal(t, 2, embeddings.Total)

	assert.Equal(t, []string{"report.txt", "notes.md"}, docs.moved)
	require.Len(t, index.uploaded, 2)
	assert.Equal(t, "report-txt-0", index.uploaded[0].ID)
	assert.Equal(t, "report.txt", index.uploaded[0].SourcePath)
	assert.Equal(t, int64(0), index.uploaded[0].ChunkOrder)
	assert.Equal(t, "notes-md-0", index.uploaded[1].ID)
}

func TestRunJobRespectsLimit(t *testing.T) {
	docs := newFakeDocumentStore(map[string][]byte{
		"a.txt": []byte("a"),
		"b.txt": []byte("b"),
		"c.txt": []byte("c"),
	}, []string{"a.txt", "b.txt", "c.txt"})
	m := newTestManager(t, docs, &fakeSearchIndex{}, &fakeEmbedder{dim: 4})

	limit := 2
	id, err := m.StartJob(&limit)
	require.NoError(t, err)

	job := waitForJob(t, m, id)
	assert.Equal(t, model.JobStateCompleted, job.State)

	discovered := stepByName(t, job, model.StepFilesDiscovered)
	assert.Equal(t, 2, discovered.Total)
	assert.Equal(t, []string{"a.txt", "b.txt"}, docs.moved)
}

func TestRunJobFailureAbortsRemainingDocuments(t *testing.T) {
	docs := newFakeDocumentStore(map[string][]byte{
		"ok.txt":     []byte("fine"),
		"broken.txt": []byte("unreachable"),
		"later.txt":  []byte("never touched"),
	}, []string{"ok.txt", "broken.txt", "later.txt"})
	docs.fetchErr["broken.txt"] = errors.New("blob storage unavailable")

	index := &fakeSearchIndex{}
	m := newTestManager(t, docs, index, &fakeEmbedder{dim: 4})

	id, err := m.StartJob(nil)
	require.NoError(t, err)

	job := waitForJob(t, m, id)
	assert.Equal(t, model.JobStateFailed, job.State)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0], "broken.txt")
	assert.Contains(t, job.Errors[0], "blob storage unavailable")

	// The first document completed, the failing one stopped the job.
	assert.Equal(t, []string{"ok.txt"}, docs.moved)
	processed := stepByName(t, job, model.StepFilesProcessed)
	assert.Equal(t, 1, processed.Current)
	assert.Equal(t, 3, processed.Total)
}

func TestRunJobEmptyDocumentIndexesNoChunks(t *testing.T) {
	docs := newFakeDocumentStore(map[string][]byte{
		"blank.txt": []byte("   \n\t  "),
	}, []string{"blank.txt"})
	index := &fakeSearchIndex{}
	m := newTestManager(t, docs, index, &fakeEmbedder{dim: 4})

	id, err := m.StartJob(nil)
	require.NoError(t, err)

	job := waitForJob(t, m, id)
	assert.Equal(t, model.JobStateCompleted, job.State)
	assert.Empty(t, index.uploaded)

	chunks := stepByName(t, job, model.StepChunksIndexed)
	assert.Equal(t, 0, chunks.Current)
	assert.Equal(t, 0, chunks.Total)

	// The blank document still moves to the processed bucket.
	assert.Equal(t, []string{"blank.txt"}, docs.moved)
}

func TestStartJobReturnsWhileWorkersBusy(t *testing.T) {
	docs := newFakeDocumentStore(map[string][]byte{
		"slow.txt": []byte("a document that takes a while"),
	}, []string{"slow.txt"})
	docs.fetchGate = make(chan struct{})

	m, err := NewProcessingManager(docs, &fakeSearchIndex{}, &fakeEmbedder{dim: 4}, &ProcessingConfig{
		ChunkSize:          1500,
		ChunkOverlap:       200,
		MaxDocumentsPerRun: 25,
		Workers:            1,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	first, err := m.StartJob(nil)
	require.NoError(t, err)

	// Wait until the only worker is parked inside Fetch.
	require.Eventually(t, func() bool {
		job, err := m.GetStatus(first)
		return err == nil && job.State == model.JobStateRunning
	}, 5*time.Second, 10*time.Millisecond)

	started := make(chan uuid.UUID, 1)
	go func() {
		id, _ := m.StartJob(nil)
		started <- id
	}()

	var second uuid.UUID
	select {
	case second = <-started:
	case <-time.After(2 * time.Second):
		close(docs.fetchGate)
		t.Fatal("StartJob did not return while the worker pool was busy")
	}

	// The second job is registered and queued, not yet running.
	job, err := m.GetStatus(second)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateQueued, job.State)

	close(docs.fetchGate)
	assert.Equal(t, model.JobStateCompleted, waitForJob(t, m, first).State)
	assert.Equal(t, model.JobStateCompleted, waitForJob(t, m, second).State)
}

func TestRunJobEmbeddingCountMismatch(t *testing.T) {
	docs := newFakeDocumentStore(map[string][]byte{
		"doc.txt": []byte("content"),
	}, []string{"doc.txt"})
	m := newTestManager(t, docs, &fakeSearchIndex{}, &fakeEmbedder{dim: 4, mismatch: true})

	id, err := m.StartJob(nil)
	require.NoError(t, err)

	job := waitForJob(t, m, id)
	assert.Equal(t, model.JobStateFailed, job.State)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0], "embedding count mismatch")
	assert.Empty(t, docs.moved)
}

func TestBuildChunkRecords(t *testing.T) {
	records := buildChunkRecords("annual report.pdf", []string{"first", "second"})
	require.Len(t, records, 2)

	assert.Equal(t, "annual-report-pdf-0", records[0].ID)
	assert.Equal(t, "first", records[0].Content)
	assert.Equal(t, "annual-report-pdf-0", records[0].Metadata["chunk_id"])
	assert.Equal(t, "annual report.pdf", records[0].Metadata["source_path"])
	assert.Equal(t, 0, records[0].Metadata["chunk_order"])

	assert.Equal(t, "annual-report-pdf-1", records[1].ID)
	assert.Equal(t, 1, records[1].Metadata["chunk_order"])
}

func TestNewJobSeedsAllSteps(t *testing.T) {
	job := model.NewJob(uuid.New())

	assert.Equal(t, model.JobStateQueued, job.State)
	require.Len(t, job.Steps, 4)
	for _, name := range []string{
		model.StepFilesDiscovered,
		model.StepFilesProcessed,
		model.StepChunksIndexed,
		model.StepEmbeddingsCreated,
	} {
		step := stepByName(t, job, name)
		assert.Equal(t, 0, step.Current, fmt.Sprintf("step %s current", name))
		assert.Equal(t, 0, step.Total, fmt.Sprintf("step %s total", name))
	}
}
