package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/maneesh/docvault/internal/models"
	"github.com/maneesh/docvault/internal/protocol"
	"github.com/maneesh/docvault/internal/session"
	"github.com/maneesh/docvault/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	backend  *storage.MemoryBackend
	sessions *session.Manager
	logs     *storage.MemoryUploadLogStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	backend := storage.NewMemoryBackend("/files")
	opts := session.DefaultOptions()
	opts.MaxChunkSize = 16
	opts.SmallFileThreshold = 32
	opts.MaxFileSize = 1 << 10
	sessions := session.NewManager(backend, storage.NewMemoryCompletionCache(time.Hour), opts)
	logs := storage.NewMemoryUploadLogStore()

	srv := httptest.NewServer(NewRouter(Dependencies{
		Sessions:   sessions,
		Backend:    backend,
		UploadLogs: logs,
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, backend: backend, sessions: sessions, logs: logs}
}

func (ts *testServer) postChunk(t *testing.T, id, name string, data []byte, start, total int64) (int, protocol.Response) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/upload", bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set(protocol.HeaderContentRange, fmt.Sprintf("bytes %d-%d/%d", start, start+int64(len(data))-1, total))
	req.Header.Set(protocol.HeaderFileID, id)
	req.Header.Set(protocol.HeaderFileName, name)
	req.Header.Set(protocol.HeaderFileSize, strconv.FormatInt(total, 10))
	return do(t, req)
}

func (ts *testServer) postForm(t *testing.T, name string, data []byte) (int, protocol.Response) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(protocol.FormFileField, name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (int, protocol.Response) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body protocol.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func payload(n int) []byte {
	return bytes.Repeat([]byte("docvault"), n/8+1)[:n]
}

func TestChunkedUploadOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	data := payload(40)

	status, body := ts.postChunk(t, "http-1", "contract.pdf", data[:16], 0, 40)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)
	assert.Equal(t, int64(16), body.Received)
	assert.Equal(t, 40, body.Progress)
	assert.False(t, body.Complete)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/upload?fileId=http-1", nil)
	status, st := do(t, req)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(16), st.Received)
	assert.Equal(t, "contract.pdf", st.OriginalName)
	assert.NotNil(t, st.LastActivity)

	_, body = ts.postChunk(t, "http-1", "contract.pdf", data[16:32], 16, 40)
	assert.Equal(t, int64(32), body.Received)

	status, body = ts.postChunk(t, "http-1", "contract.pdf", data[32:], 32, 40)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, body.Complete)
	assert.Equal(t, 100, body.Progress)
	assert.True(t, strings.HasPrefix(body.URL, "/files/uploads/"))
	assert.True(t, strings.HasSuffix(body.URL, ".pdf"))
	assert.NotContains(t, body.URL, "http-1")
	assert.Equal(t, path.Base(body.URL), body.FileName)
	assert.Equal(t, "contract.pdf", body.OriginalName)
	assert.Equal(t, int64(40), body.Size)
	assert.Equal(t, "application/pdf", body.Type)

	resp, err := http.Get(ts.URL + body.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, data, got)

	status, st = do(t, mustRequest(t, http.MethodGet, ts.URL+"/upload?fileId=http-1"))
	require.Equal(t, http.StatusOK, status)
	assert.True(t, st.Complete)
	assert.Equal(t, body.URL, st.URL)

	page, err := ts.logs.ListUploadLogs(t.Context(), models.UploadLogQuery{})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalCount)
	assert.Equal(t, "contract.pdf", page.Logs[0].FileName)
	assert.Equal(t, "127.0.0.1", page.Logs[0].IPAddress)
}

func mustRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	return req
}

func TestChunkRejections(t *testing.T) {
	ts := newTestServer(t)
	data := payload(48)

	status, body := ts.postChunk(t, "rej-1", "payload.exe", data[:16], 0, 48)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, protocol.CodeValidation, body.Code)
	assert.Equal(t, "file type not allowed: .exe", body.Error)
	assert.False(t, body.Success)

	status, body = ts.postChunk(t, "rej-2", "a.txt", data[16:32], 16, 48)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, protocol.CodeOutOfOrder, body.Code)
	require.NotNil(t, body.Expected)
	require.NotNil(t, body.Offset)
	assert.Equal(t, int64(0), *body.Expected)
	assert.Equal(t, int64(16), *body.Offset)

	status, body = ts.postChunk(t, "rej-3", "a.txt", payload(17), 0, 48)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, protocol.CodeTooLarge, body.Code)

	status, _ = ts.postChunk(t, "rej-4", "a.txt", data[:16], 0, 48)
	require.Equal(t, http.StatusOK, status)
	status, body = ts.postChunk(t, "rej-4", "b.txt", data[:16], 0, 48)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, protocol.CodeSessionExists, body.Code)

	req := mustRequest(t, http.MethodPost, ts.URL+"/upload")
	req.Header.Set(protocol.HeaderContentRange, "bytes 0-15/48")
	req.Header.Set(protocol.HeaderFileName, "a.txt")
	status, body = do(t, req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body.Error, protocol.HeaderFileSize)

	assert.Equal(t, 1, ts.backend.OpenChannels())
}

func TestStatusAndCancel(t *testing.T) {
	ts := newTestServer(t)

	status, body := do(t, mustRequest(t, http.MethodGet, ts.URL+"/upload?fileId=unknown"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, protocol.CodeSessionNotFound, body.Code)

	status, body = do(t, mustRequest(t, http.MethodDelete, ts.URL+"/upload?fileId=unknown"))
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)

	status, _ = ts.postChunk(t, "cancel-me", "a.txt", payload(16), 0, 32)
	require.Equal(t, http.StatusOK, status)

	for i := 0; i < 2; i++ {
		status, body = do(t, mustRequest(t, http.MethodDelete, ts.URL+"/upload?fileId=cancel-me"))
		assert.Equal(t, http.StatusOK, status)
		assert.True(t, body.Success)
	}
	assert.Equal(t, 0, ts.backend.OpenChannels())

	status, body = ts.postChunk(t, "cancel-me", "a.txt", payload(16), 16, 32)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, protocol.CodeSessionNotFound, body.Code)
}

func TestDirectUploadMatchesChunkedShape(t *testing.T) {
	ts := newTestServer(t)
	data := payload(32)

	status, direct := ts.postForm(t, "scan.pdf", data)
	require.Equal(t, http.StatusOK, status)

	ts.postChunk(t, "shape", "scan.pdf", data[:16], 0, 32)
	status, chunked := ts.postChunk(t, "shape", "scan.pdf", data[16:], 16, 32)
	require.Equal(t, http.StatusOK, status)

	for _, body := range []protocol.Response{direct, chunked} {
		assert.True(t, body.Success)
		assert.True(t, body.Complete)
		assert.NotEmpty(t, body.URL)
		assert.Equal(t, int64(32), body.Size)
		assert.Equal(t, "scan.pdf", body.OriginalName)
		assert.Equal(t, "application/pdf", body.Type)
	}

	status, body := ts.postForm(t, "big.bin", payload(33))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, protocol.CodeUseChunks, body.Code)
	assert.True(t, body.ShouldUseChunks)
	assert.Equal(t, int64(16), body.RecommendedChunkSize)

	status, body = ts.postForm(t, "run.sh", payload(4))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, protocol.CodeValidation, body.Code)
}

func TestStorageFailureIsServerError(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.AppendHook = func(key string, p []byte) error { return errors.New("disk full") }

	status, body := ts.postChunk(t, "broken", "a.txt", payload(16), 0, 32)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, protocol.CodeStorage, body.Code)
	assert.NotContains(t, body.Error, "disk full")
	assert.Equal(t, 0, ts.sessions.ActiveSessions())
}

func TestFilesNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/files/uploads/missing.pdf")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadLogsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.postForm(t, "one.txt", payload(4))
	ts.postForm(t, "two.txt", payload(8))

	resp, err := http.Get(ts.URL + "/upload-logs?fileName=two&limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool                 `json:"success"`
		Data    models.UploadLogPage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	require.Len(t, body.Data.Logs, 1)
	assert.Equal(t, "two.txt", body.Data.Logs[0].FileName)
	assert.Equal(t, int64(8), body.Data.Logs[0].FileSize)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}
