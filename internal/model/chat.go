package model

// ChatHistoryItem is one prior turn of the conversation, passed through to
// the answer pipeline but not used for retrieval.
type ChatHistoryItem struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// Citation points at one indexed chunk that supported the answer.
type Citation struct {
	ChunkID        string  `json:"chunk_id"`
	SourceDocument string  `json:"source_document"`
	Score          float64 `json:"score"`
	Snippet        string  `json:"snippet"`
}

// ChatResponse is the answer to one question, with the supporting citations
// in ranking order.
type ChatResponse struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	LatencyMS float64    `json:"latency_ms"`
	// Confidence is the highest citation score clamped to [0,1], zero when
	// nothing was retrieved.
	Confidence float64 `json:"confidence"`
}
