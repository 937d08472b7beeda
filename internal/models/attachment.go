package models

import "time"

// Attachment is a file owned by exactly one protocol. The content lives in
// blob storage; the record only carries metadata and the storage path.
type Attachment struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	SizeBytes   int64     `json:"size_bytes"`
	MimeType    string    `json:"mime_type"`
	StoragePath string    `json:"storage_path"`
	UploadedBy  string    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
