package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/maneesh/docvault/internal/logger"
	"github.com/maneesh/docvault/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FileHandler streams stored objects back to clients, so upload URLs resolve
// even when the bucket is not publicly reachable.
type FileHandler struct {
	backend storage.Backend
}

// NewFileHandler creates a new file handler
func NewFileHandler(backend storage.Backend) *FileHandler {
	return &FileHandler{backend: backend}
}

// ServeHTTP handles GET /files/{key}
func (fh *FileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "read_file",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	key := strings.TrimPrefix(path.Clean("/"+mux.Vars(r)["key"]), "/")
	if key == "" {
		http.Error(w, "missing object key in path", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("key", key))

	body, stat, err := fh.backend.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("key", key).Msg("failed to read object")
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	span.SetAttributes(attribute.Int64("file_size", stat.Size))

	contentType := stat.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(stat.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", path.Base(key)))
	if !stat.LastModified.IsZero() {
		w.Header().Set("Last-Modified", stat.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, body); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("object stream interrupted")
	}
}
