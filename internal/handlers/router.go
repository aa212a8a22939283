package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/maneesh/docvault/internal/logger"
	"github.com/maneesh/docvault/internal/session"
	"github.com/maneesh/docvault/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Dependencies are the collaborators the HTTP surface is built from.
// UploadLogs may be nil, which disables the upload log endpoints.
type Dependencies struct {
	Sessions   *session.Manager
	Backend    storage.Backend
	UploadLogs storage.UploadLogStore
}

// NewRouter wires every route of the upload service.
func NewRouter(deps Dependencies) *mux.Router {
	uploads := NewUploadHandler(deps.Sessions, deps.UploadLogs)
	files := NewFileHandler(deps.Backend)

	router := mux.NewRouter()
	router.Use(requestLogger)

	// Health check endpoint (no tracing needed)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	router.Handle("/upload", otelhttp.NewHandler(http.HandlerFunc(uploads.Post), "POST /upload")).Methods(http.MethodPost)
	router.Handle("/upload", otelhttp.NewHandler(http.HandlerFunc(uploads.Status), "GET /upload")).Methods(http.MethodGet)
	router.Handle("/upload", otelhttp.NewHandler(http.HandlerFunc(uploads.Cancel), "DELETE /upload")).Methods(http.MethodDelete)
	router.Handle("/files/{key:.+}", otelhttp.NewHandler(files, "GET /files/{key}")).Methods(http.MethodGet, http.MethodHead)

	if deps.UploadLogs != nil {
		router.Handle("/upload-logs", otelhttp.NewHandler(NewUploadLogHandler(deps.UploadLogs), "GET /upload-logs")).Methods(http.MethodGet)
	}
	return router
}

// requestLogger attaches a request-scoped logger carrying a request id.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		l := logger.With().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(logger.WithLogger(r.Context(), &l)))
	})
}
