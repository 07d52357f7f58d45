package models

// FileModel records an uploaded media file stored on disk (and optionally
// mirrored to S3-compatible object storage).
type FileModel struct {
	Base
	Name         string `json:"name"          gorm:"uniqueIndex;not null"` // stored filename
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	Path         string `json:"-"` // absolute path on disk
	MirrorURL    string `json:"mirror_url,omitempty"`
}

func (FileModel) TableName() string { return "files" }
