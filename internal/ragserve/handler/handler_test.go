package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/ragserve/internal/model"
	"github.com/kart-io/ragserve/internal/ragserve/biz"
	"github.com/kart-io/ragserve/internal/ragserve/handler"
	"github.com/kart-io/ragserve/internal/ragserve/router"
	"github.com/kart-io/ragserve/internal/ragserve/store"
	"github.com/kart-io/ragserve/pkg/component/storage"
	"github.com/kart-io/ragserve/pkg/llm"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fakeDocumentStore struct {
	files []model.StoredFile
}

func (f *fakeDocumentStore) Upload(_ context.Context, name string, data []byte, _ string) (*model.StoredFile, error) {
	stored := model.StoredFile{
		Name:       name,
		SizeBytes:  int64(len(data)),
		UploadedAt: time.Now().UTC(),
		Bucket:     "raw-documents",
	}
	f.files = append(f.files, stored)
	return &stored, nil
}

func (f *fakeDocumentStore) ListRecent(_ context.Context, limit int) ([]model.StoredFile, error) {
	if limit > len(f.files) {
		limit = len(f.files)
	}
	return f.files[:limit], nil
}

func (f *fakeDocumentStore) ListUnprocessed(_ context.Context, _ int) ([]string, error) {
	names := make([]string, 0, len(f.files))
	for _, file := range f.files {
		names = append(names, file.Name)
	}
	return names, nil
}

func (f *fakeDocumentStore) Fetch(_ context.Context, _ string) ([]byte, error) {
	return []byte("content"), nil
}

func (f *fakeDocumentStore) Move(_ context.Context, _ string) error {
	return nil
}

type fakeSearchIndex struct {
	hits []store.SearchHit
}

func (f *fakeSearchIndex) EnsureCollection(_ context.Context) error { return nil }

func (f *fakeSearchIndex) Upload(_ context.Context, _ []store.ChunkDocument) error { return nil }

func (f *fakeSearchIndex) HybridSearch(_ context.Context, _ string, _ []float32, _ int) ([]store.SearchHit, error) {
	return f.hits, nil
}

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) Name() string { return "fake" }

type fakeChat struct {
	answer string
}

func (f *fakeChat) Chat(_ context.Context, _ []llm.Message) (string, error) {
	return f.answer, nil
}

func (f *fakeChat) Generate(_ context.Context, _ string, _ string) (string, error) {
	return f.answer, nil
}

func (f *fakeChat) Name() string { return "fake" }

func newTestRouter(t *testing.T, docs *fakeDocumentStore, hits []store.SearchHit) http.Handler {
	t.Helper()

	index := &fakeSearchIndex{hits: hits}
	manager, err := biz.NewProcessingManager(docs, index, &fakeEmbedder{}, nil)
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	engine := biz.NewEngine(index, &fakeEmbedder{}, &fakeChat{answer: "the answer"}, nil, &biz.EngineConfig{
		SystemPrompt: "answer from context",
	})

	return router.New("test", &router.Handlers{
		Files:      handler.NewFileHandler(docs),
		Processing: handler.NewProcessingHandler(manager),
		Chat:       handler.NewChatHandler(engine),
		Health:     handler.NewHealthHandler("test", storage.NewManager()),
	})
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestUploadStoresFiles(t *testing.T) {
	docs := &fakeDocumentStore{}
	h := newTestRouter(t, docs, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"a.txt", "b.pdf"} {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("hello"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	var uploaded []model.FileUploadResponse
	require.NoError(t, json.Unmarshal(env.Data, &uploaded))
	require.Len(t, uploaded, 2)
	assert.Equal(t, "a.txt", uploaded[0].BlobName)
	assert.Equal(t, "raw-documents", uploaded[0].Bucket)
	assert.Equal(t, int64(5), uploaded[0].SizeBytes)
}

func TestUploadNoFiles(t *testing.T) {
	h := newTestRouter(t, &fakeDocumentStore{}, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no files here"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecentFiles(t *testing.T) {
	docs := &fakeDocumentStore{files: []model.StoredFile{
		{Name: "a.txt", SizeBytes: 3, UploadedAt: time.Now().UTC(), Bucket: "raw-documents"},
		{Name: "b.txt", SizeBytes: 7, UploadedAt: time.Now().UTC(), Bucket: "raw-documents"},
	}}
	h := newTestRouter(t, docs, nil)

	w := doJSON(t, h, http.MethodGet, "/api/files/recent?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	var records []model.FileRecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "a.txt", records[0].Name)
	assert.Equal(t, "pending", records[0].Status)
}

func TestRecentFilesInvalidLimit(t *testing.T) {
	h := newTestRouter(t, &fakeDocumentStore{}, nil)

	for _, limit := range []string{"abc", "0", "-2"} {
		w := doJSON(t, h, http.MethodGet, "/api/files/recent?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
	}
}

func TestProcessingStartReturnsJobSnapshot(t *testing.T) {
	h := newTestRouter(t, &fakeDocumentStore{}, nil)

	w := doJSON(t, h, http.MethodPost, "/api/processing/start", "")
	require.Equal(t, http.StatusCreated, w.Code)

	env := decodeEnvelope(t, w)
	var job model.Job
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Len(t, job.Steps, 4)
}

func TestProcessingStartInvalidLimit(t *testing.T) {
	h := newTestRouter(t, &fakeDocumentStore{}, nil)

	w := doJSON(t, h, http.MethodPost, "/api/processing/start", `{"limit": 0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessingStatusNotFound(t *testing.T) {
	h := newTestRouter(t, &fakeDocumentStore{}, nil)

	w := doJSON(t, h, http.MethodGet, "/api/processing/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcessingStatusInvalidID(t *testing.T) {
	h := newTestRouter(t, &fakeDocumentStore{}, nil)

	w := doJSON(t, h, http.MethodGet, "/api/processing/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatCompletions(t *testing.T) {
	hits := []store.SearchHit{
		{Score: 0.9, Content: "relevant passage", Metadata: map[string]any{
			"chunk_id": "guide-pdf-0", "source_path": "guide.pdf", "chunk_order": int64(0),
		}},
	}
	h := newTestRouter(t, &fakeDocumentStore{}, hits)

	w := doJSON(t, h, http.MethodPost, "/api/chat/completions", `{"question": "what does the guide say?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	var resp model.ChatResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "the answer", resp.Answer)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "guide-pdf-0", resp.Citations[0].ChunkID)
	assert.InDelta(t, 0.9, resp.Confidence, 1e-9)
}

func TestChatMissingQuestion(t *testing.T) {
	h := newTestRouter(t, &fakeDocumentStore{}, nil)

	w := doJSON(t, h, http.MethodPost, "/api/chat/completions", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatTopKOutOfRange(t *testing.T) {
	h := newTestRouter(t, &fakeDocumentStore{}, nil)

	w := doJSON(t, h, http.MethodPost, "/api/chat/completions", `{"question": "q", "top_k": 21}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthCheck(t *testing.T) {
	h := newTestRouter(t, &fakeDocumentStore{}, nil)

	w := doJSON(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["environment"])
}
