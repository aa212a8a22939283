package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// pipeChannel streams appended bytes into a single long-running upload call
// through an io.Pipe. A write returns only once the uploader consumed it, which
// is how the backend's backpressure reaches the caller.
type pipeChannel struct {
	mu      sync.Mutex
	pw      *io.PipeWriter
	cancel  context.CancelFunc
	done    chan struct{}
	putErr  error
	url     string
	onAbort func(ctx context.Context) error

	closed  bool
	aborted bool
}

func newPipeChannel(url string, put func(ctx context.Context, r io.Reader) error, onAbort func(ctx context.Context) error) *pipeChannel {
	// The upload outlives the request that opened it.
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()

	c := &pipeChannel{
		pw:      pw,
		cancel:  cancel,
		done:    make(chan struct{}),
		url:     url,
		onAbort: onAbort,
	}

	go func() {
		defer close(c.done)
		err := put(ctx, pr)
		c.putErr = err
		if err != nil {
			pr.CloseWithError(err)
			return
		}
		pr.Close()
	}()

	return c
}

func (c *pipeChannel) Append(ctx context.Context, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}

	written := make(chan error, 1)
	go func() {
		_, err := c.pw.Write(p)
		written <- err
	}()

	select {
	case err := <-written:
		if err != nil {
			return fmt.Errorf("append to stream: %w", err)
		}
		return nil
	case <-ctx.Done():
		// A partially consumed write leaves the stream in an unknown state.
		c.abortLocked(context.Background())
		<-written
		return fmt.Errorf("append to stream: %w", ctx.Err())
	}
}

func (c *pipeChannel) Commit(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrChannelClosed
	}
	c.closed = true
	c.pw.Close()

	select {
	case <-c.done:
		if c.putErr != nil {
			return "", fmt.Errorf("finalize stream: %w", c.putErr)
		}
		return c.url, nil
	case <-ctx.Done():
		c.cancel()
		<-c.done
		return "", fmt.Errorf("finalize stream: %w", ctx.Err())
	}
}

func (c *pipeChannel) Abort(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.aborted {
		return nil
	}
	if c.closed {
		return ErrChannelClosed
	}
	return c.abortLocked(ctx)
}

func (c *pipeChannel) abortLocked(ctx context.Context) error {
	c.closed = true
	c.aborted = true
	c.cancel()
	c.pw.CloseWithError(ErrAborted)

	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if c.onAbort != nil {
		return c.onAbort(ctx)
	}
	return nil
}
