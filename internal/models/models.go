package models

import "time"

// UploadedObject is the durable result of a finished upload.
type UploadedObject struct {
	FileID       string `json:"file_id"`
	Key          string `json:"key"`
	URL          string `json:"url"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
}

// UploadLog is the audit record written for every completed upload.
type UploadLog struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	FileType   string    `json:"fileType"`
	FileSize   int64     `json:"fileSize"`
	FilePath   string    `json:"filePath"`
	URL        string    `json:"url"`
	UploadedBy string    `json:"uploadedBy"`
	IPAddress  string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UploadLogQuery filters and pages the upload log listing.
type UploadLogQuery struct {
	FileName  string
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// UploadLogPage is one page of upload log records.
type UploadLogPage struct {
	Logs       []*UploadLog `json:"logs"`
	Count      int          `json:"count"`
	TotalCount int          `json:"totalCount"`
	Page       int          `json:"page"`
	TotalPages int          `json:"totalPages"`
	SortBy     string       `json:"sortBy"`
	SortOrder  string       `json:"sortOrder"`
}
