package docutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/ragserve/internal/pkg/docutil"
)

func TestGuessMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		expected string
	}{
		{"pdf", "report.pdf", "application/pdf"},
		{"pdf uppercase", "REPORT.PDF", "application/pdf"},
		{"markdown", "notes.md", "text/markdown"},
		{"text", "readme.txt", "text/plain"},
		{"no extension", "LICENSE", "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, docutil.GuessMIMEType(tt.file))
		})
	}
}

func TestExtractTextPlain(t *testing.T) {
	text, err := docutil.ExtractText("notes.txt", []byte("hello world"))
	assert.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestExtractTextInvalidUTF8(t *testing.T) {
	text, err := docutil.ExtractText("raw.bin", []byte{'o', 'k', 0xff, 0xfe, '!'})
	assert.NoError(t, err)
	assert.True(t, len(text) > 0)
	assert.Contains(t, text, "ok")
	assert.Contains(t, text, "!")
}

func TestExtractTextBadPDF(t *testing.T) {
	_, err := docutil.ExtractText("broken.pdf", []byte("not a pdf"))
	assert.Error(t, err)
}
