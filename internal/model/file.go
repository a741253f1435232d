package model

import "time"

// StoredFile describes one document blob held in the document store.
type StoredFile struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
	Bucket     string    `json:"bucket"`
}

// FileUploadResponse is returned for each file accepted by the upload
// endpoint.
type FileUploadResponse struct {
	BlobName     string `json:"blob_name"`
	OriginalName string `json:"original_name"`
	SizeBytes    int64  `json:"size_bytes"`
	Bucket       string `json:"bucket"`
}

// FileRecord is one entry of the recent-files listing.
type FileRecord struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
	Bucket     string    `json:"bucket"`
	Status     string    `json:"status"`
}
