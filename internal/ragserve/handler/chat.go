package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/ragserve/internal/model"
	"github.com/kart-io/ragserve/internal/ragserve/biz"
)

const (
	defaultTopK = 5
	chatTimeout = 60 * time.Second
)

// ChatHandler serves question answering requests.
type ChatHandler struct {
	engine *biz.Engine
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(engine *biz.Engine) *ChatHandler {
	return &ChatHandler{engine: engine}
}

// ChatRequest is the body of a chat completion request.
type ChatRequest struct {
	Question string                  `json:"question" binding:"required"`
	History  []model.ChatHistoryItem `json:"history"`
	TopK     int                     `json:"top_k" binding:"omitempty,gte=1,lte=20"`
}

// Completions answers a question from the indexed documents.
func (h *ChatHandler) Completions(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}
	if req.TopK == 0 {
		req.TopK = defaultTopK
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), chatTimeout)
	defer cancel()

	resp, err := h.engine.Answer(ctx, req.Question, req.History, req.TopK)
	if err != nil {
		if errors.Is(err, biz.ErrInvalidTopK) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
			return
		}
		if ctx.Err() == context.DeadlineExceeded {
			c.JSON(http.StatusRequestTimeout, ErrorResponse{
				Code:    408,
				Message: "the question took too long to answer, please try again",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, success(resp))
}
