package model

import "time"

// FileRecord mirrors the `files` table. StorageName is the opaque key of
// the blob in the backing store and is regenerated on every content
// replacement.
type FileRecord struct {
	ID           uint64    `json:"id"`
	OwnerID      string    `json:"-"`
	OriginalName string    `json:"original_name"`
	StorageName  string    `json:"-"`
	Extension    string    `json:"extension"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// FilePage is one page of an owner's files.
type FilePage struct {
	Records    []FileRecord
	Page       int
	PageSize   int
	TotalCount int64
}
