package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/maneesh/docvault/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectURL(t *testing.T) {
	assert.Equal(t, "http://h/b/uploads/a.pdf", objectURL("http://h/b/", "uploads/a.pdf"))
	assert.Equal(t, "/files/docs/my%20file.pdf", objectURL("/files", "docs/my file.pdf"))
}

func TestMemoryBackendChannelLifecycle(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend("/files")

	ch, err := b.OpenChannel(ctx, ObjectInfo{Key: "uploads/x.bin", ContentType: "application/octet-stream", Size: 6})
	require.NoError(t, err)
	assert.Equal(t, 1, b.OpenChannels())

	require.NoError(t, ch.Append(ctx, []byte("abc")))
	require.NoError(t, ch.Append(ctx, []byte("def")))

	_, ok := b.Object("uploads/x.bin")
	assert.False(t, ok, "object must not be visible before commit")

	url, err := ch.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/files/uploads/x.bin", url)
	assert.Equal(t, 0, b.OpenChannels())

	data, ok := b.Object("uploads/x.bin")
	require.True(t, ok)
	assert.Equal(t, "abcdef", string(data))

	rc, stat, err := b.Get(ctx, "uploads/x.bin")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(6), stat.Size)
	assert.Equal(t, "application/octet-stream", stat.ContentType)

	require.NoError(t, b.Delete(ctx, "uploads/x.bin"))
	_, _, err = b.Get(ctx, "uploads/x.bin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackendAbortDiscards(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend("/files")

	ch, err := b.OpenChannel(ctx, ObjectInfo{Key: "k", Size: 3})
	require.NoError(t, err)
	require.NoError(t, ch.Append(ctx, []byte("abc")))
	require.NoError(t, ch.Abort(ctx))
	require.NoError(t, ch.Abort(ctx))

	assert.Equal(t, 0, b.OpenChannels())
	_, ok := b.Object("k")
	assert.False(t, ok)
	_, err = ch.Commit(ctx)
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestMemoryBackendHooks(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend("/files")
	boom := errors.New("disk full")
	b.AppendHook = func(key string, p []byte) error { return boom }

	ch, err := b.OpenChannel(ctx, ObjectInfo{Key: "k", Size: 3})
	require.NoError(t, err)
	assert.ErrorIs(t, ch.Append(ctx, []byte("abc")), boom)
}

func TestMemoryBackendPut(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend("http://localhost:8080/files")

	url, err := b.Put(ctx, ObjectInfo{Key: "a/b.txt", ContentType: "text/plain", Size: 5}, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/a/b.txt", url)

	rc, _, err := b.Get(ctx, "a/b.txt")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "hello", string(data))
}

func TestMemoryCompletionCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCompletionCache(time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.SetCompleted(ctx, &models.UploadedObject{FileID: "f1", URL: "u1", Size: 10}))

	got, err := c.GetCompleted(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.URL)

	now = now.Add(2 * time.Minute)
	got, err = c.GetCompleted(ctx, "f1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	return s, client
}

func TestRedisCompletionCache(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()
	cache := NewRedisCompletionCache(client, 10*time.Minute)
	require.NoError(t, cache.Ping(ctx))

	got, err := cache.GetCompleted(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	obj := &models.UploadedObject{
		FileID:       "abc",
		Key:          "uploads/abc.pdf",
		URL:          "http://minio/docvault/uploads/abc.pdf",
		OriginalName: "report.pdf",
		ContentType:  "application/pdf",
		Size:         42,
	}
	require.NoError(t, cache.SetCompleted(ctx, obj))

	got, err = cache.GetCompleted(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, obj, got)
	assert.Equal(t, 10*time.Minute, mr.TTL("upload:completed:abc"))

	mr.FastForward(11 * time.Minute)
	got, err = cache.GetCompleted(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryUploadLogStoreListing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUploadLogStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"contract.pdf", "invoice.pdf", "photo.png"} {
		require.NoError(t, s.CreateUploadLog(ctx, &models.UploadLog{
			ID:        name,
			FileName:  name,
			FileSize:  int64(100 * (i + 1)),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	page, err := s.ListUploadLogs(ctx, models.UploadLogQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, "photo.png", page.Logs[0].FileName, "default is newest first")
	assert.Equal(t, "createdAt", page.SortBy)
	assert.Equal(t, "desc", page.SortOrder)

	page, err = s.ListUploadLogs(ctx, models.UploadLogQuery{FileName: ".pdf", SortBy: "fileSize", SortOrder: "ASC"})
	require.NoError(t, err)
	require.Equal(t, 2, page.Count)
	assert.Equal(t, "contract.pdf", page.Logs[0].FileName)

	page, err = s.ListUploadLogs(ctx, models.UploadLogQuery{Limit: 2, Page: 2, SortBy: "bogus"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, "createdAt", page.SortBy)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%\_off\\`, escapeLike(`50%_off\`))
}
