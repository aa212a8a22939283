// Package client sends files to the upload service as a strictly ordered
// sequence of chunk requests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/maneesh/docvault/internal/chunker"
	"github.com/maneesh/docvault/internal/logger"
	"github.com/maneesh/docvault/internal/protocol"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseSize = 1 << 20

// ProgressFunc receives the percentage of bytes acknowledged by the server.
type ProgressFunc func(percent int)

// Uploader drives the chunked upload protocol against one endpoint. Chunks are
// sent one at a time and the next chunk is never sent before the previous
// response arrived. A failed chunk fails the whole upload; callers retry by
// starting a new upload, which uses a new file id.
type Uploader struct {
	endpoint   string
	httpClient *retryablehttp.Client

	chunkSize       int64
	directThreshold int64
	storagePath     string
	checksums       bool
	newID           func() string
}

type Option func(*Uploader)

// WithChunkSize sets the chunk size. It must not exceed the server's maximum.
func WithChunkSize(n int64) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.chunkSize = n
		}
	}
}

// WithDirectThreshold sends files of at most n bytes in a single multipart
// request. Zero disables the bypass for non-empty files.
func WithDirectThreshold(n int64) Option {
	return func(u *Uploader) { u.directThreshold = n }
}

func WithStoragePath(p string) Option {
	return func(u *Uploader) { u.storagePath = p }
}

// WithChecksums attaches a SHA-256 digest to every chunk.
func WithChecksums(enabled bool) Option {
	return func(u *Uploader) { u.checksums = enabled }
}

// WithRetries retries a chunk up to n times on transport errors. Responses
// from the server are never retried.
func WithRetries(n int) Option {
	return func(u *Uploader) { u.httpClient.RetryMax = n }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(u *Uploader) { u.httpClient.HTTPClient = hc }
}

// New returns an Uploader for endpoint, the URL of the service's /upload route.
func New(endpoint string, opts ...Option) *Uploader {
	hc := retryablehttp.NewClient()
	hc.Logger = logger.RetryableHTTPAdapter{}
	hc.RetryMax = 0
	hc.CheckRetry = retryTransportErrors
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	hc.HTTPClient.Transport = otelhttp.NewTransport(hc.HTTPClient.Transport)

	u := &Uploader{
		endpoint:   endpoint,
		httpClient: hc,
		chunkSize:  chunker.DefaultChunkSize,
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

// retryTransportErrors retries only requests that never produced a response.
func retryTransportErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// UploadFile uploads f and returns the durable URL of the stored object.
// onProgress may be nil.
func (u *Uploader) UploadFile(ctx context.Context, f FileHandle, onProgress ProgressFunc) (string, error) {
	progress := &progressReporter{fn: onProgress, last: -1}
	total := f.Size()
	if total < 0 {
		return "", fmt.Errorf("invalid file size %d", total)
	}
	if total == 0 || total <= u.directThreshold {
		return u.uploadDirect(ctx, f, progress)
	}

	id := u.newID()
	log := logger.With().Str("file_id", id).Str("file_name", f.Name()).Logger()
	log.Debug().Int64("total", total).Int64("chunk_size", u.chunkSize).Msg("starting chunked upload")

	for _, r := range chunker.Plan(total, u.chunkSize) {
		data, err := chunker.ReadChunk(f, r)
		if err != nil {
			return "", err
		}

		resp, err := u.sendChunk(ctx, id, f.Name(), total, r, data)
		if err != nil {
			log.Debug().Err(err).Int("chunk", r.Index).Msg("chunk rejected")
			return "", err
		}
		progress.report(protocol.Percent(r.End, total))

		if resp.Complete {
			if resp.URL == "" {
				return "", fmt.Errorf("upload %s completed without a url", id)
			}
			progress.finish()
			log.Debug().Str("url", resp.URL).Msg("upload completed")
			return resp.URL, nil
		}
	}

	st, err := u.Status(ctx, id)
	if err != nil {
		return "", fmt.Errorf("upload %s did not complete: %w", id, err)
	}
	if !st.Complete || st.URL == "" {
		return "", fmt.Errorf("upload %s did not complete: server has %d of %d bytes", id, st.Received, st.Total)
	}
	progress.finish()
	return st.URL, nil
}

func (u *Uploader) sendChunk(ctx context.Context, id, name string, total int64, r chunker.Range, data []byte) (*protocol.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, data)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(protocol.HeaderContentRange, r.ContentRange(total))
	req.Header.Set(protocol.HeaderFileID, id)
	req.Header.Set(protocol.HeaderFileName, url.PathEscape(name))
	req.Header.Set(protocol.HeaderFileSize, strconv.FormatInt(total, 10))
	if u.storagePath != "" {
		req.Header.Set(protocol.HeaderStoragePath, u.storagePath)
	}
	if u.checksums {
		req.Header.Set(protocol.HeaderChunkSHA256, chunker.ComputeHash(data))
	}
	return u.do(req)
}

func (u *Uploader) uploadDirect(ctx context.Context, f FileHandle, progress *progressReporter) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(protocol.FormFileField, f.Name())
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, io.NewSectionReader(f, 0, f.Size())); err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body.Bytes())
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.storagePath != "" {
		req.Header.Set(protocol.HeaderStoragePath, u.storagePath)
	}

	resp, err := u.do(req)
	if err != nil {
		return "", err
	}
	if !resp.Complete || resp.URL == "" {
		return "", errors.New("upload completed without a url")
	}
	progress.finish()
	return resp.URL, nil
}

// Status queries the progress of an upload.
func (u *Uploader) Status(ctx context.Context, id string) (*protocol.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.sessionURL(id), nil)
	if err != nil {
		return nil, err
	}
	return u.do(req)
}

// Cancel asks the server to drop an upload. Unknown ids are not an error.
func (u *Uploader) Cancel(ctx context.Context, id string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodDelete, u.sessionURL(id), nil)
	if err != nil {
		return err
	}
	_, err = u.do(req)
	return err
}

func (u *Uploader) sessionURL(id string) string {
	sep := "?"
	if strings.Contains(u.endpoint, "?") {
		sep = "&"
	}
	return u.endpoint + sep + url.Values{protocol.QueryFileID: {id}}.Encode()
}

func (u *Uploader) do(req *retryablehttp.Request) (*protocol.Response, error) {
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body protocol.Response
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body)
	if resp.StatusCode >= http.StatusBadRequest || (decodeErr == nil && !body.Success) {
		return nil, newUploadError(resp.StatusCode, &body)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return &body, nil
}

// progressReporter forwards progress to the callback without ever going
// backwards.
type progressReporter struct {
	fn   ProgressFunc
	last int
}

func (p *progressReporter) report(percent int) {
	if p.fn == nil || percent < p.last {
		return
	}
	p.last = percent
	p.fn(percent)
}

func (p *progressReporter) finish() {
	if p.last < 100 {
		p.report(100)
	}
}
