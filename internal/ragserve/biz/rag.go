package biz

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/ragserve/internal/model"
	"github.com/kart-io/ragserve/internal/pkg/textutil"
	"github.com/kart-io/ragserve/internal/ragserve/store"
	"github.com/kart-io/ragserve/pkg/llm"
)

const (
	// minScoreThreshold is the floor of the dynamic citation threshold.
	minScoreThreshold = 0.2
	// thresholdRatio scales the top score into the dynamic threshold.
	thresholdRatio = 0.6
	// maxPrimaryCitations stops collection early once enough citations
	// from the primary document have been gathered.
	maxPrimaryCitations = 4
	// snippetLen bounds citation snippets.
	snippetLen = 400

	maxTopK = 20
)

// EngineConfig tunes the retrieval and answer pipeline.
type EngineConfig struct {
	// SystemPrompt constrains the model to the retrieved context.
	SystemPrompt string
}

// Engine answers questions by retrieving indexed chunks, ranking them into
// citations and asking the chat model to answer from that context only.
type Engine struct {
	index    store.SearchIndex
	embedder llm.EmbeddingProvider
	chat     llm.ChatProvider
	cache    *AnswerCache
	config   *EngineConfig
}

// NewEngine creates an answer engine. The cache may be nil.
func NewEngine(
	index store.SearchIndex,
	embedder llm.EmbeddingProvider,
	chat llm.ChatProvider,
	cache *AnswerCache,
	config *EngineConfig,
) *Engine {
	return &Engine{
		index:    index,
		embedder: embedder,
		chat:     chat,
		cache:    cache,
		config:   config,
	}
}

// Answer runs the full question pipeline: embed the question, hybrid
// search, rank hits into citations, then generate the answer from the
// cited context. History is carried through for API compatibility but does
// not influence retrieval. Collaborator failures propagate to the caller.
func (e *Engine) Answer(ctx context.Context, question string, history []model.ChatHistoryItem, topK int) (*model.ChatResponse, error) {
	if topK < 1 || topK > maxTopK {
		return nil, ErrInvalidTopK
	}
	_ = history

	if e.cache != nil {
		if cached, err := e.cache.Get(ctx, question); err == nil && cached != nil {
			return cached, nil
		}
	}

	vector, err := e.embedder.EmbedSingle(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	hits, err := e.index.HybridSearch(ctx, question, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	contextChunks, citations := rankHits(hits)

	contextText := strings.Join(contextChunks, "\n---\n")
	citationLines := make([]string, len(citations))
	for i, c := range citations {
		citationLines[i] = fmt.Sprintf("chunk: %s source: %s score:%.3f", c.ChunkID, c.SourceDocument, c.Score)
	}

	prompt := fmt.Sprintf("Context:\n%s\nCitations:\n%s\nQuestion:%s",
		contextText, strings.Join(citationLines, "\n"), question)

	start := time.Now()
	answer, err := e.chat.Generate(ctx, prompt, e.config.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	latency := float64(time.Since(start).Microseconds()) / 1000.0

	topScore := 0.0
	for _, c := range citations {
		if c.Score > topScore {
			topScore = c.Score
		}
	}

	resp := &model.ChatResponse{
		Answer:     answer,
		Citations:  citations,
		LatencyMS:  latency,
		Confidence: math.Min(1.0, topScore),
	}

	if e.cache != nil {
		// Cache failures never fail the request.
		_ = e.cache.Set(ctx, question, resp)
	}

	logger.Infow("answered question",
		"citations", len(citations),
		"confidence", resp.Confidence,
		"latency_ms", resp.LatencyMS,
	)
	return resp, nil
}

// rankHits turns raw search hits into the context chunks and citations fed
// to the model.
//
// Ranking policy: hits are ordered by descending score. The best hit fixes
// the primary document and a dynamic threshold of max(0.2, top*0.6). A hit
// is kept if it comes from the primary document or clears the threshold.
// Collection stops early once four citations exist and the latest one is
// from the primary document. If nothing qualifies the single best hit is
// kept anyway so the model always sees some context when hits exist.
func rankHits(hits []store.SearchHit) ([]string, []model.Citation) {
	if len(hits) == 0 {
		return nil, []model.Citation{}
	}

	ranked := make([]store.SearchHit, len(hits))
	copy(ranked, hits)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	top := ranked[0]
	primaryDoc := metaString(top.Metadata, "source_path", "unknown")
	threshold := math.Max(minScoreThreshold, top.Score*thresholdRatio)

	var contextChunks []string
	citations := []model.Citation{}
	for _, hit := range ranked {
		sameDoc := metaString(hit.Metadata, "source_path", "") == primaryDoc
		if !sameDoc && hit.Score < threshold {
			continue
		}
		contextChunks = append(contextChunks, hit.Content)
		citations = append(citations, citationFor(hit))
		if sameDoc && len(citations) >= maxPrimaryCitations {
			break
		}
	}

	if len(citations) == 0 {
		contextChunks = append(contextChunks, top.Content)
		citations = append(citations, citationFor(top))
	}

	return contextChunks, citations
}

func citationFor(hit store.SearchHit) model.Citation {
	return model.Citation{
		ChunkID:        metaString(hit.Metadata, "chunk_id", "unknown"),
		SourceDocument: metaString(hit.Metadata, "source_path", "unknown"),
		Score:          hit.Score,
		Snippet:        textutil.TruncateString(hit.Content, snippetLen),
	}
}

func metaString(meta map[string]any, key, fallback string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return fallback
}
