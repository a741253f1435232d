// Package docutil extracts plain text from uploaded document blobs.
package docutil

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// GuessMIMEType returns a content type based on the file name suffix.
func GuessMIMEType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown"
	default:
		return "text/plain"
	}
}

// ExtractText converts raw document bytes into plain text. PDF content is
// extracted page by page and joined with newlines; everything else is decoded
// as UTF-8 with invalid sequences replaced.
func ExtractText(name string, data []byte) (string, error) {
	if strings.EqualFold(path.Ext(name), ".pdf") {
		return extractPDF(data)
	}
	return decodeLossy(data), nil
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// unparseable page, keep the rest of the document
			continue
		}
		pages = append(pages, text)
	}

	return strings.Join(pages, "\n"), nil
}

// decodeLossy interprets data as UTF-8, replacing invalid byte sequences
// with the Unicode replacement character.
func decodeLossy(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}
