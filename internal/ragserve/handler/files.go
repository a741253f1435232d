package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/ragserve/internal/model"
	"github.com/kart-io/ragserve/internal/pkg/docutil"
	"github.com/kart-io/ragserve/internal/ragserve/store"
)

const defaultRecentLimit = 10

// FileHandler serves document upload and listing requests.
type FileHandler struct {
	documents store.DocumentStore
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(documents store.DocumentStore) *FileHandler {
	return &FileHandler{documents: documents}
}

// Upload accepts one or more multipart files and stores them in the raw
// document bucket.
func (h *FileHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "no files provided"})
		return
	}

	responses := make([]model.FileUploadResponse, 0, len(files))
	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
			return
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
			return
		}

		stored, err := h.documents.Upload(
			c.Request.Context(),
			fileHeader.Filename,
			data,
			docutil.GuessMIMEType(fileHeader.Filename),
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
			return
		}

		responses = append(responses, model.FileUploadResponse{
			BlobName:     stored.Name,
			OriginalName: fileHeader.Filename,
			SizeBytes:    stored.SizeBytes,
			Bucket:       stored.Bucket,
		})
	}

	c.JSON(http.StatusOK, success(responses))
}

// Recent lists the most recently uploaded raw files.
func (h *FileHandler) Recent(c *gin.Context) {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	files, err := h.documents.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	records := make([]model.FileRecord, 0, len(files))
	for _, f := range files {
		records = append(records, model.FileRecord{
			Name:       f.Name,
			SizeBytes:  f.SizeBytes,
			UploadedAt: f.UploadedAt,
			Bucket:     f.Bucket,
			Status:     "pending",
		})
	}

	c.JSON(http.StatusOK, success(records))
}
