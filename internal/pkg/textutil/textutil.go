// Package textutil provides text processing helpers for the ingestion pipeline.
package textutil

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// chunk IDs must stay within the search index key alphabet
var unsafeIDChars = regexp.MustCompile(`[^0-9A-Za-z_\-=]`)

// SanitizeID replaces every character outside [0-9A-Za-z_-=] with '-'
// so a source name can be used as a search index document key.
func SanitizeID(name string) string {
	return unsafeIDChars.ReplaceAllString(name, "-")
}

// ChunkID builds the deterministic ID of a chunk from its source name and
// ordinal. The same (name, order) pair always yields the same ID.
func ChunkID(sourceName string, order int) string {
	return fmt.Sprintf("%s-%d", SanitizeID(sourceName), order)
}

// TruncateString truncates a string to at most maxLen Unicode characters.
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// SplitIntoChunks splits text into overlapping chunks.
// chunkSize is the size of each chunk in Unicode characters, overlap is the
// number of characters shared between adjacent chunks. Consecutive chunks
// advance by chunkSize-overlap, so concatenating them reconstructs the
// original text with no gaps. Text that is empty after trimming whitespace
// yields no chunks.
func SplitIntoChunks(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 || strings.TrimSpace(text) == "" {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}

	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	step := chunkSize - overlap

	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks
}
