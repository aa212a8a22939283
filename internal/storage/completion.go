package storage

import (
	"context"
	"sync"
	"time"

	"github.com/maneesh/docvault/internal/models"
)

// CompletionCache remembers finished uploads for a while so a status query
// arriving after finalize still reports the durable URL.
type CompletionCache interface {
	SetCompleted(ctx context.Context, obj *models.UploadedObject) error
	GetCompleted(ctx context.Context, fileID string) (*models.UploadedObject, error)
}

// MemoryCompletionCache is the single-process CompletionCache.
type MemoryCompletionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memCompletion
}

type memCompletion struct {
	obj     models.UploadedObject
	expires time.Time
}

func NewMemoryCompletionCache(ttl time.Duration) *MemoryCompletionCache {
	return &MemoryCompletionCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memCompletion),
	}
}

func (c *MemoryCompletionCache) SetCompleted(ctx context.Context, obj *models.UploadedObject) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, id)
		}
	}
	c.entries[obj.FileID] = memCompletion{obj: *obj, expires: now.Add(c.ttl)}
	return nil
}

// GetCompleted returns nil, nil on a miss.
func (c *MemoryCompletionCache) GetCompleted(ctx context.Context, fileID string) (*models.UploadedObject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fileID]
	if !ok || c.now().After(e.expires) {
		return nil, nil
	}
	obj := e.obj
	return &obj, nil
}
