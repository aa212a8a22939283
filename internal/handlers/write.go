package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maneesh/docvault/internal/logger"
	"github.com/maneesh/docvault/internal/models"
	"github.com/maneesh/docvault/internal/protocol"
	"github.com/maneesh/docvault/internal/session"
	"github.com/maneesh/docvault/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// multipartMemory is how much of a small-file form is buffered in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

// UploadHandler serves the resumable upload endpoint.
type UploadHandler struct {
	sessions   *session.Manager
	uploadLogs storage.UploadLogStore
}

// NewUploadHandler creates a new upload handler. uploadLogs may be nil.
func NewUploadHandler(sessions *session.Manager, uploadLogs storage.UploadLogStore) *UploadHandler {
	return &UploadHandler{
		sessions:   sessions,
		uploadLogs: uploadLogs,
	}
}

// Post handles POST /upload. Requests with a Content-Range header are chunks
// of a resumable upload, anything else is a single multipart file.
func (uh *UploadHandler) Post(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(protocol.HeaderContentRange) != "" {
		uh.acceptChunk(w, r)
		return
	}
	uh.putDirect(w, r)
}

func (uh *UploadHandler) acceptChunk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	opts := uh.sessions.Options()

	sizeHeader := r.Header.Get(protocol.HeaderFileSize)
	if sizeHeader == "" {
		writeJSON(w, http.StatusBadRequest, &protocol.Response{
			Error: protocol.HeaderFileSize + " header is required",
			Code:  protocol.CodeValidation,
		})
		return
	}
	declared, err := strconv.ParseInt(sizeHeader, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &protocol.Response{
			Error: "invalid " + protocol.HeaderFileSize + " header",
			Code:  protocol.CodeValidation,
		})
		return
	}

	res, err := uh.sessions.AcceptChunk(ctx, session.ChunkRequest{
		SessionID:    r.Header.Get(protocol.HeaderFileID),
		FileName:     headerFileName(r),
		DeclaredSize: declared,
		ContentRange: r.Header.Get(protocol.HeaderContentRange),
		StoragePath:  r.Header.Get(protocol.HeaderStoragePath),
		Checksum:     r.Header.Get(protocol.HeaderChunkSHA256),
		Body:         http.MaxBytesReader(w, r.Body, opts.MaxChunkSize+1),
	})
	if err != nil {
		writeError(w, r, err, opts.MaxChunkSize)
		return
	}

	if res.Complete {
		uh.recordUpload(r, res.Object)
		writeJSON(w, http.StatusOK, completedResponse(res.Object))
		return
	}
	writeJSON(w, http.StatusOK, &protocol.Response{
		Success:  true,
		FileID:   res.SessionID,
		Received: res.Received,
		Total:    res.Total,
		Progress: protocol.Percent(res.Received, res.Total),
		Message:  "chunk accepted",
	})
}

func (uh *UploadHandler) putDirect(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "direct_upload", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	r = r.WithContext(ctx)
	opts := uh.sessions.Options()

	r.Body = http.MaxBytesReader(w, r.Body, opts.SmallFileThreshold+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, errUseChunks, opts.MaxChunkSize)
			return
		}
		writeJSON(w, http.StatusBadRequest, &protocol.Response{
			Error: "no file uploaded",
			Code:  protocol.CodeValidation,
		})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(protocol.FormFileField)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &protocol.Response{
			Error: "no file uploaded",
			Code:  protocol.CodeValidation,
		})
		return
	}
	defer file.Close()

	span.SetAttributes(
		attribute.String("file_name", header.Filename),
		attribute.Int64("file_size", header.Size),
	)

	res, err := uh.sessions.PutDirect(ctx, session.DirectRequest{
		FileName:    header.Filename,
		Size:        header.Size,
		StoragePath: r.Header.Get(protocol.HeaderStoragePath),
		Body:        file,
	})
	if err != nil {
		span.RecordError(err)
		writeError(w, r, err, opts.MaxChunkSize)
		return
	}

	uh.recordUpload(r, res.Object)
	writeJSON(w, http.StatusOK, completedResponse(res.Object))
}

// errUseChunks answers a multipart body that overruns the small-file limit
// before the manager gets to see it.
var errUseChunks = &session.Error{
	Kind:    session.KindUseChunks,
	Message: "file exceeds the single request limit, use chunked upload",
}

// Status handles GET /upload?fileId=...
func (uh *UploadHandler) Status(w http.ResponseWriter, r *http.Request) {
	opts := uh.sessions.Options()
	st, err := uh.sessions.Status(r.Context(), r.URL.Query().Get(protocol.QueryFileID))
	if err != nil {
		writeError(w, r, err, opts.MaxChunkSize)
		return
	}

	if st.Complete {
		writeJSON(w, http.StatusOK, completedResponse(st.Object))
		return
	}
	lastActivity := st.LastActivity.UTC()
	writeJSON(w, http.StatusOK, &protocol.Response{
		Success:      true,
		FileID:       st.SessionID,
		Received:     st.Received,
		Total:        st.Total,
		Progress:     protocol.Percent(st.Received, st.Total),
		OriginalName: st.OriginalName,
		LastActivity: &lastActivity,
	})
}

// Cancel handles DELETE /upload?fileId=...
func (uh *UploadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	opts := uh.sessions.Options()
	id := r.URL.Query().Get(protocol.QueryFileID)
	if err := uh.sessions.Cancel(r.Context(), id); err != nil {
		writeError(w, r, err, opts.MaxChunkSize)
		return
	}
	writeJSON(w, http.StatusOK, &protocol.Response{
		Success: true,
		FileID:  id,
		Message: "upload cancelled",
	})
}

// recordUpload writes the upload log entry for a finished upload. Failures
// are logged and never fail the request.
func (uh *UploadHandler) recordUpload(r *http.Request, obj *models.UploadedObject) {
	if uh.uploadLogs == nil || obj == nil {
		return
	}
	ctx, span := tracer.Start(r.Context(), "record_upload_log")
	defer span.End()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	entry := &models.UploadLog{
		ID:        uuid.NewString(),
		FileName:  obj.OriginalName,
		FileType:  obj.ContentType,
		FileSize:  obj.Size,
		FilePath:  obj.Key,
		URL:       obj.URL,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		CreatedAt: time.Now().UTC(),
	}
	if err := uh.uploadLogs.CreateUploadLog(ctx, entry); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Str("file_id", obj.FileID).Msg("failed to record upload log")
	}
}

func headerFileName(r *http.Request) string {
	raw := r.Header.Get(protocol.HeaderFileName)
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
