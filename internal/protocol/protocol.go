// Package protocol defines the HTTP contract shared by the chunk uploader and
// the upload session manager: header names, the Content-Range codec, error
// codes and the JSON response body.
package protocol

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Request headers
const (
	HeaderContentRange = "Content-Range"
	HeaderFileID       = "X-File-Id"
	HeaderFileName     = "X-File-Name"
	HeaderFileSize     = "X-File-Size"
	HeaderStoragePath  = "X-Storage-Path"
	HeaderChunkSHA256  = "X-Chunk-Sha256"
)

// QueryFileID is the query parameter carrying the session identifier on status
// and cancellation requests.
const QueryFileID = "fileId"

// FormFileField is the multipart field holding the small-file payload.
const FormFileField = "file"

// Error codes returned in Response.Code
const (
	CodeValidation      = "validation_failed"
	CodeTooLarge        = "too_large"
	CodeOutOfOrder      = "out_of_order"
	CodeSessionNotFound = "session_not_found"
	CodeSessionExists   = "session_exists"
	CodeStorage         = "storage_error"
	CodeUseChunks       = "use_chunks"
)

var (
	ErrInvalidRange = errors.New("invalid Content-Range header")

	contentRangeRe = regexp.MustCompile(`^bytes (\d+)-(\d+)/(\d+)$`)
)

// ByteRange is an inclusive byte range of a file of Total bytes.
type ByteRange struct {
	Start int64
	End   int64
	Total int64
}

// Len returns the number of bytes covered by the range.
func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

func (r ByteRange) String() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Total)
}

// ParseContentRange parses "bytes {start}-{end}/{total}".
func ParseContentRange(s string) (ByteRange, error) {
	m := contentRangeRe.FindStringSubmatch(s)
	if m == nil {
		return ByteRange{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}

	var vals [3]int64
	for i := range vals {
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return ByteRange{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
		}
		vals[i] = n
	}

	r := ByteRange{Start: vals[0], End: vals[1], Total: vals[2]}
	if r.End < r.Start || r.End >= r.Total {
		return ByteRange{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	return r, nil
}

// Response is the JSON body of every upload endpoint.
type Response struct {
	Success bool   `json:"success"`
	FileID  string `json:"fileId,omitempty"`

	Received int64 `json:"received"`
	Total    int64 `json:"total"`
	Progress int   `json:"progress"`
	Complete bool  `json:"complete"`

	URL          string     `json:"url,omitempty"`
	FileName     string     `json:"fileName,omitempty"`
	OriginalName string     `json:"originalName,omitempty"`
	Size         int64      `json:"size,omitempty"`
	Type         string     `json:"type,omitempty"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`

	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`

	// Out-of-order details
	Expected *int64 `json:"expected,omitempty"`
	Offset   *int64 `json:"offset,omitempty"`

	// Small-file path rejections for oversized payloads
	ShouldUseChunks      bool  `json:"shouldUseChunks,omitempty"`
	RecommendedChunkSize int64 `json:"recommendedChunkSize,omitempty"`
}

// Percent returns round(received/total*100), clamped to [0,100].
func Percent(received, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int((received*100 + total/2) / total)
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}
