package handlers

import (
	"net/http"
	"strconv"

	"github.com/maneesh/docvault/internal/logger"
	"github.com/maneesh/docvault/internal/models"
	"github.com/maneesh/docvault/internal/storage"
)

// UploadLogHandler lists recorded uploads.
type UploadLogHandler struct {
	store storage.UploadLogStore
}

func NewUploadLogHandler(store storage.UploadLogStore) *UploadLogHandler {
	return &UploadLogHandler{store: store}
}

// ServeHTTP handles GET /upload-logs?fileName=&page=&limit=&sortBy=&sortOrder=
func (lh *UploadLogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "list_upload_logs")
	defer span.End()

	q := r.URL.Query()
	query := models.UploadLogQuery{
		FileName:  q.Get("fileName"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	query.Page, _ = strconv.Atoi(q.Get("page"))
	query.Limit, _ = strconv.Atoi(q.Get("limit"))

	page, err := lh.store.ListUploadLogs(ctx, query)
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("failed to list upload logs")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "failed to fetch upload logs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    page,
	})
}
