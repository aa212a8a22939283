package client

import (
	"fmt"

	"github.com/maneesh/docvault/internal/protocol"
)

// UploadError is a rejection returned by the upload service. Error returns
// the server's message unchanged.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string

	// Set on out-of-order rejections
	Expected *int64
	Offset   *int64
}

func (e *UploadError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("upload failed with status %d", e.StatusCode)
}

// SessionLost reports whether the server no longer knows the session, so the
// whole upload has to start over with a new file id.
func (e *UploadError) SessionLost() bool {
	return e.Code == protocol.CodeSessionNotFound
}

func newUploadError(status int, body *protocol.Response) *UploadError {
	msg := body.Error
	if msg == "" {
		msg = body.Message
	}
	return &UploadError{
		StatusCode: status,
		Code:       body.Code,
		Message:    msg,
		Expected:   body.Expected,
		Offset:     body.Offset,
	}
}
