package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

type memObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryBackend keeps objects in process memory. It backs local development
// and tests; URLs point at the service's own /files endpoint.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string]memObject
	baseURL string
	open    int

	// Test hooks, consulted on every append and commit when set.
	AppendHook func(key string, p []byte) error
	CommitHook func(key string) error
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend(baseURL string) *MemoryBackend {
	return &MemoryBackend{
		objects: make(map[string]memObject),
		baseURL: baseURL,
	}
}

func (m *MemoryBackend) URL(key string) string {
	return objectURL(m.baseURL, key)
}

// OpenChannels returns the number of channels neither committed nor aborted.
func (m *MemoryBackend) OpenChannels() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open
}

// Object returns a copy of a committed object's bytes.
func (m *MemoryBackend) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

func (m *MemoryBackend) OpenChannel(ctx context.Context, info ObjectInfo) (Channel, error) {
	m.mu.Lock()
	m.open++
	m.mu.Unlock()
	return &memChannel{backend: m, info: info}, nil
}

func (m *MemoryBackend) Put(ctx context.Context, info ObjectInfo, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read data: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[info.Key] = memObject{data: data, contentType: info.ContentType, modified: time.Now()}
	return m.URL(info.Key), nil
}

func (m *MemoryBackend) Get(ctx context.Context, key string) (io.ReadCloser, ObjectStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ObjectStat{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), ObjectStat{
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: obj.modified,
	}, nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryBackend) release() {
	m.mu.Lock()
	m.open--
	m.mu.Unlock()
}

type memChannel struct {
	mu      sync.Mutex
	backend *MemoryBackend
	info    ObjectInfo
	buf     bytes.Buffer

	closed  bool
	aborted bool
}

func (c *memChannel) Append(ctx context.Context, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if hook := c.backend.AppendHook; hook != nil {
		if err := hook(c.info.Key, p); err != nil {
			return err
		}
	}
	c.buf.Write(p)
	return nil
}

func (c *memChannel) Commit(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrChannelClosed
	}
	c.closed = true
	defer c.backend.release()

	if hook := c.backend.CommitHook; hook != nil {
		if err := hook(c.info.Key); err != nil {
			return "", err
		}
	}
	return c.backend.Put(ctx, c.info, &c.buf)
}

func (c *memChannel) Abort(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.aborted {
		return nil
	}
	if c.closed {
		return ErrChannelClosed
	}
	c.closed = true
	c.aborted = true
	c.buf.Reset()
	c.backend.release()
	return nil
}
