// Package storage adapts object stores to the resumable-write capability the
// upload pipeline needs, and hosts the auxiliary stores (completion cache,
// upload log) backing the HTTP service.
package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("docvault-storage")

var (
	ErrNotFound      = errors.New("object not found")
	ErrChannelClosed = errors.New("write channel already closed")
	ErrAborted       = errors.New("write channel aborted")
)

// ObjectInfo describes an object about to be written.
type ObjectInfo struct {
	Key         string
	ContentType string
	Size        int64
}

// ObjectStat describes a stored object.
type ObjectStat struct {
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Channel is an open resumable write to a single object. Bytes are appended in
// order and the object becomes visible only after Commit. A channel is closed
// exactly once, by Commit or Abort.
type Channel interface {
	// Append blocks while the backend applies backpressure. It returns when the
	// bytes were handed to the backend or ctx is done.
	Append(ctx context.Context, p []byte) error
	// Commit finalizes the object and returns its durable URL.
	Commit(ctx context.Context) (string, error)
	// Abort discards everything written so far.
	Abort(ctx context.Context) error
}

// Backend is a durable blob store with resumable-write semantics.
type Backend interface {
	OpenChannel(ctx context.Context, info ObjectInfo) (Channel, error)
	// Put writes a whole object in one call and returns its durable URL.
	Put(ctx context.Context, info ObjectInfo, r io.Reader) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectStat, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// objectURL joins a base URL and an object key, escaping each key segment.
func objectURL(base string, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.Join(segments, "/")
}
