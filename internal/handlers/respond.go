package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"

	"github.com/getsentry/sentry-go"
	"github.com/maneesh/docvault/internal/logger"
	"github.com/maneesh/docvault/internal/models"
	"github.com/maneesh/docvault/internal/protocol"
	"github.com/maneesh/docvault/internal/session"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("docvault-handlers")

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn().Err(err).Msg("failed to encode response")
	}
}

func rejection(status int, code, msg string) (int, *protocol.Response) {
	return status, &protocol.Response{Success: false, Error: msg, Code: code}
}

// errorResponse maps a manager error onto an HTTP status and body. Only
// messages of *session.Error reach the client.
func errorResponse(err error, recommendedChunk int64) (int, *protocol.Response) {
	var e *session.Error
	if !errors.As(err, &e) {
		return rejection(http.StatusInternalServerError, protocol.CodeStorage, "internal server error")
	}

	switch e.Kind {
	case session.KindValidation:
		return rejection(http.StatusBadRequest, protocol.CodeValidation, e.Message)
	case session.KindTooLarge:
		return rejection(http.StatusRequestEntityTooLarge, protocol.CodeTooLarge, e.Message)
	case session.KindOutOfOrder:
		status, body := rejection(http.StatusConflict, protocol.CodeOutOfOrder, e.Message)
		expected, offset := e.Expected, e.Received
		body.Expected = &expected
		body.Offset = &offset
		return status, body
	case session.KindNotFound:
		return rejection(http.StatusNotFound, protocol.CodeSessionNotFound, e.Message)
	case session.KindConflict:
		return rejection(http.StatusConflict, protocol.CodeSessionExists, e.Message)
	case session.KindUseChunks:
		status, body := rejection(http.StatusBadRequest, protocol.CodeUseChunks, e.Message)
		body.ShouldUseChunks = true
		body.RecommendedChunkSize = recommendedChunk
		return status, body
	default:
		return rejection(http.StatusInternalServerError, protocol.CodeStorage, e.Message)
	}
}

// writeError logs and reports err, then writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, err error, recommendedChunk int64) {
	status, body := errorResponse(err, recommendedChunk)
	log := logger.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("upload request failed")
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.CaptureException(err)
		}
	} else {
		log.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("upload request rejected")
	}
	writeJSON(w, status, body)
}

// completedResponse renders a finished upload. Chunked and direct uploads
// share it so both paths answer with the same shape.
func completedResponse(obj *models.UploadedObject) *protocol.Response {
	return &protocol.Response{
		Success:      true,
		FileID:       obj.FileID,
		Received:     obj.Size,
		Total:        obj.Size,
		Progress:     100,
		Complete:     true,
		URL:          obj.URL,
		FileName:     path.Base(obj.Key),
		OriginalName: obj.OriginalName,
		Size:         obj.Size,
		Type:         obj.ContentType,
		Message:      "upload complete",
	}
}
