package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maneesh/docvault/internal/storage"
)

// Session is the server-side bookkeeping of one upload attempt. Everything
// except the atomics is guarded by mu, which also serialises chunks of the
// same session.
type Session struct {
	mu sync.Mutex

	ID              string
	OriginalName    string
	Extension       string
	MimeType        string
	DestinationPath string
	TotalSize       int64
	CreatedAt       time.Time

	bytesReceived atomic.Int64
	lastActivity  atomic.Int64

	channel storage.Channel
	closed  bool

	// interrupt is cancelled when the session is cancelled while a chunk
	// holds mu. Storage calls of that chunk observe it and the chunk tears
	// the session down.
	interrupt     context.Context
	stopInterrupt context.CancelFunc
	cancelled     atomic.Bool
}

func newSession(id string, now time.Time) *Session {
	s := &Session{ID: id, CreatedAt: now}
	s.interrupt, s.stopInterrupt = context.WithCancel(context.Background())
	s.touch(now)
	return s
}

func (s *Session) BytesReceived() int64 {
	return s.bytesReceived.Load()
}

func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// requestCancel flags the session for teardown and interrupts its pending
// storage call. It does not take mu.
func (s *Session) requestCancel() {
	s.cancelled.Store(true)
	s.stopInterrupt()
}

func (s *Session) cancelRequested() bool {
	return s.cancelled.Load()
}

func (s *Session) touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

func (s *Session) idleLongerThan(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivity()) > timeout
}

// Table holds the live sessions. An external store with TTL support can
// replace the in-memory table for multi-process deployments.
type Table interface {
	Get(id string) (*Session, bool)
	// PutIfAbsent stores s unless a session with the same ID is present.
	PutIfAbsent(s *Session) bool
	// Remove deletes id only while it still maps to s.
	Remove(id string, s *Session)
	Sessions() []*Session
	Len() int
}

type memoryTable struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryTable returns the process-local session table.
func NewMemoryTable() Table {
	return &memoryTable{sessions: make(map[string]*Session)}
}

func (t *memoryTable) Get(id string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	return s, ok
}

func (t *memoryTable) PutIfAbsent(s *Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[s.ID]; exists {
		return false
	}
	t.sessions[s.ID] = s
	return true
}

func (t *memoryTable) Remove(id string, s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.sessions[id]; ok && cur == s {
		delete(t.sessions, id)
	}
}

func (t *memoryTable) Sessions() []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

func (t *memoryTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
