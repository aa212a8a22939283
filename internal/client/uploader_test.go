package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maneesh/docvault/internal/chunker"
	"github.com/maneesh/docvault/internal/handlers"
	"github.com/maneesh/docvault/internal/protocol"
	"github.com/maneesh/docvault/internal/session"
	"github.com/maneesh/docvault/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploadServer struct {
	*httptest.Server
	sessions *session.Manager
	chunks   atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func newUploadServer(t *testing.T) *uploadServer {
	t.Helper()
	backend := storage.NewMemoryBackend("/files")
	sessions := session.NewManager(backend, storage.NewMemoryCompletionCache(time.Hour), session.DefaultOptions())
	router := handlers.NewRouter(handlers.Dependencies{Sessions: sessions, Backend: backend})

	us := &uploadServer{sessions: sessions}
	us.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Header.Get(protocol.HeaderContentRange) != "" {
			us.chunks.Add(1)
			if us.inFlight.Add(1) > 1 {
				us.overlap.Store(true)
			}
			defer us.inFlight.Add(-1)
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(us.Close)
	return us
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func (us *uploadServer) fetch(t *testing.T, url string) []byte {
	t.Helper()
	resp, err := http.Get(us.URL + url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}

func TestUploadTwentyMiBInTenChunks(t *testing.T) {
	us := newUploadServer(t)
	data := payload(20 << 20)

	var progress []int
	u := New(us.URL+"/upload", WithChecksums(true))
	url, err := u.UploadFile(context.Background(), NewMemoryFile("dataset.csv", data), func(p int) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.Equal(t, int32(10), us.chunks.Load())
	assert.False(t, us.overlap.Load(), "chunks must be sent one at a time")
	require.Len(t, progress, 10)
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, progress)

	assert.Equal(t, data, us.fetch(t, url))
	assert.Equal(t, 0, us.sessions.ActiveSessions())
}

func TestProgressIsMonotonic(t *testing.T) {
	us := newUploadServer(t)

	var progress []int
	u := New(us.URL+"/upload", WithChunkSize(3000))
	_, err := u.UploadFile(context.Background(), NewMemoryFile("notes.txt", payload(10007)), func(p int) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	assert.Equal(t, 100, progress[len(progress)-1])
}

func TestProgressAcrossLargePlan(t *testing.T) {
	const total = int64(900 << 20)
	ranges := chunker.Plan(total, chunker.DefaultChunkSize)
	require.Len(t, ranges, 450)

	var progress []int
	reporter := &progressReporter{fn: func(p int) { progress = append(progress, p) }, last: -1}
	for _, r := range ranges {
		reporter.report(protocol.Percent(r.End, total))
	}
	reporter.finish()
	require.Len(t, progress, 450)

	tests := []struct {
		chunk int
		want  int
	}{
		{chunk: 0, want: 0},
		{chunk: 111, want: 25},
		{chunk: 224, want: 50},
		{chunk: 336, want: 75},
		{chunk: 449, want: 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, progress[tt.chunk], "chunk %d", tt.chunk)
	}
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
}

func TestBlockedFileSurfacesServerMessage(t *testing.T) {
	us := newUploadServer(t)

	u := New(us.URL + "/upload")
	_, err := u.UploadFile(context.Background(), NewMemoryFile("payload.exe", payload(4<<20)), nil)
	require.Error(t, err)
	assert.Equal(t, "file type not allowed: .exe", err.Error())

	var uerr *UploadError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, http.StatusBadRequest, uerr.StatusCode)
	assert.Equal(t, protocol.CodeValidation, uerr.Code)

	assert.Equal(t, int32(1), us.chunks.Load())
	assert.Equal(t, 0, us.sessions.ActiveSessions())
}

func TestDirectAndChunkedUploadsAgree(t *testing.T) {
	us := newUploadServer(t)
	data := payload(5 << 20)
	ctx := context.Background()

	direct := New(us.URL+"/upload", WithDirectThreshold(10<<20))
	directURL, err := direct.UploadFile(ctx, NewMemoryFile("scan.pdf", data), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(0), us.chunks.Load())

	chunked := New(us.URL + "/upload")
	chunkedURL, err := chunked.UploadFile(ctx, NewMemoryFile("scan.pdf", data), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), us.chunks.Load())

	assert.NotEqual(t, directURL, chunkedURL)
	assert.Len(t, us.fetch(t, directURL), len(data))
	assert.Len(t, us.fetch(t, chunkedURL), len(data))
}

func TestEmptyFileUsesDirectPath(t *testing.T) {
	us := newUploadServer(t)

	var progress []int
	url, err := New(us.URL+"/upload").UploadFile(context.Background(), NewMemoryFile("empty.txt", nil), func(p int) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	assert.Equal(t, []int{100}, progress)
	assert.Equal(t, int32(0), us.chunks.Load())
}

func TestUploadFileFallsBackToStatus(t *testing.T) {
	var mu sync.Mutex
	var statusQueries int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPost:
			io.Copy(io.Discard, r.Body)
			json.NewEncoder(w).Encode(protocol.Response{Success: true, FileID: r.Header.Get(protocol.HeaderFileID)})
		case http.MethodGet:
			mu.Lock()
			statusQueries++
			mu.Unlock()
			json.NewEncoder(w).Encode(protocol.Response{
				Success:  true,
				FileID:   r.URL.Query().Get(protocol.QueryFileID),
				Complete: true,
				URL:      "https://cdn.example.com/uploads/x.bin",
			})
		}
	}))
	defer srv.Close()

	var progress []int
	url, err := New(srv.URL+"/upload", WithChunkSize(4)).UploadFile(context.Background(), NewMemoryFile("x.bin", payload(10)), func(p int) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/uploads/x.bin", url)
	assert.Equal(t, 1, statusQueries)
	assert.Equal(t, 100, progress[len(progress)-1])
}

func TestUploadFileFailsWithoutCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.Copy(io.Discard, r.Body)
		json.NewEncoder(w).Encode(protocol.Response{Success: true, Received: 8, Total: 10})
	}))
	defer srv.Close()

	_, err := New(srv.URL, WithChunkSize(4)).UploadFile(context.Background(), NewMemoryFile("x.bin", payload(10)), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not complete")
}

func TestUploadErrorKeepsOffsets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected, offset := int64(0), int64(4)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(protocol.Response{
			Error:    "chunk out of order",
			Code:     protocol.CodeOutOfOrder,
			Expected: &expected,
			Offset:   &offset,
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL, WithChunkSize(4)).UploadFile(context.Background(), NewMemoryFile("x.bin", payload(10)), nil)
	var uerr *UploadError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "chunk out of order", uerr.Error())
	require.NotNil(t, uerr.Expected)
	assert.Equal(t, int64(0), *uerr.Expected)
	assert.Equal(t, int64(4), *uerr.Offset)
	assert.False(t, uerr.SessionLost())
}

func TestStatusAndCancel(t *testing.T) {
	us := newUploadServer(t)
	ctx := context.Background()
	u := New(us.URL + "/upload")

	require.NoError(t, u.Cancel(ctx, "not-there"))

	_, err := u.Status(ctx, "not-there")
	var uerr *UploadError
	require.True(t, errors.As(err, &uerr))
	assert.True(t, uerr.SessionLost())
	assert.Equal(t, http.StatusNotFound, uerr.StatusCode)
}

func TestNetworkFailureAbortsUpload(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(addr+"/upload", WithChunkSize(4)).UploadFile(context.Background(), NewMemoryFile("x.bin", payload(10)), nil)
	require.Error(t, err)
}

func TestOpenFile(t *testing.T) {
	path := t.TempDir() + "/report.txt"
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, "report.txt", f.Name())
	assert.Equal(t, int64(11), f.Size())

	buf := make([]byte, 5)
	_, err = f.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf))

	_, err = OpenFile(t.TempDir())
	assert.Error(t, err)
}
