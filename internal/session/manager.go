// Package session implements the server side of the resumable upload
// protocol: one live session per file id, strictly ordered appends into a
// storage channel, finalize on the last byte and expiry of idle sessions.
package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/maneesh/docvault/internal/chunker"
	"github.com/maneesh/docvault/internal/logger"
	"github.com/maneesh/docvault/internal/metrics"
	"github.com/maneesh/docvault/internal/models"
	"github.com/maneesh/docvault/internal/protocol"
	"github.com/maneesh/docvault/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("docvault-session")

// Session end causes, used as metric labels.
const (
	causeExpired   = "expired"
	causeCancelled = "cancelled"
	causeStorage   = "storage_error"
	causeShutdown  = "shutdown"
)

const abortTimeout = 30 * time.Second

// DefaultBlockedExtensions lists executable and script-like extensions that are never accepted.
var DefaultBlockedExtensions = []string{
	".exe", ".bat", ".cmd", ".com", ".msi", ".sh", ".vbs", ".ps1", ".psm1", ".psd1",
	".msh", ".jar", ".jnlp", ".scr", ".dll", ".reg", ".htaccess", ".php", ".phtml",
	".asp", ".aspx", ".cgi", ".pl", ".js",
}

type Options struct {
	MaxFileSize        int64
	MaxChunkSize       int64
	SmallFileThreshold int64
	BlockedExtensions  []string
	DefaultStoragePath string

	// SessionTimeout is the inactivity window after which a session expires.
	// It also bounds every storage call made on behalf of a chunk.
	SessionTimeout time.Duration
	SweepInterval  time.Duration
	// TombstoneTTL is how long an ended session id keeps answering
	// session-not-found instead of out-of-order.
	TombstoneTTL time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxFileSize:        25 << 30,
		MaxChunkSize:       5 << 20,
		SmallFileThreshold: 10 << 20,
		BlockedExtensions:  DefaultBlockedExtensions,
		DefaultStoragePath: "uploads",
		SessionTimeout:     30 * time.Minute,
		SweepInterval:      time.Minute,
	}
}

type Option func(*Manager)

// WithTable replaces the in-memory session table.
func WithTable(t Table) Option {
	return func(m *Manager) { m.table = t }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// Manager owns the session table and bridges accepted chunks into storage
// channels.
type Manager struct {
	opts        Options
	backend     storage.Backend
	completions storage.CompletionCache
	table       Table
	blocked     map[string]struct{}

	now   func() time.Time
	newID func() string

	lastSweep atomic.Int64

	endedMu sync.Mutex
	ended   map[string]time.Time
}

func NewManager(backend storage.Backend, completions storage.CompletionCache, opts Options, options ...Option) *Manager {
	defaults := DefaultOptions()
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaults.MaxFileSize
	}
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = defaults.MaxChunkSize
	}
	if opts.SmallFileThreshold < 0 {
		opts.SmallFileThreshold = 0
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = defaults.SessionTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaults.SweepInterval
	}
	if opts.TombstoneTTL <= 0 {
		opts.TombstoneTTL = 2 * opts.SessionTimeout
	}
	opts.DefaultStoragePath = strings.Trim(opts.DefaultStoragePath, "/")
	if opts.DefaultStoragePath == "" {
		opts.DefaultStoragePath = defaults.DefaultStoragePath
	}

	m := &Manager{
		opts:        opts,
		backend:     backend,
		completions: completions,
		table:       NewMemoryTable(),
		blocked:     make(map[string]struct{}, len(opts.BlockedExtensions)),
		now:         time.Now,
		newID:       uuid.NewString,
		ended:       make(map[string]time.Time),
	}
	for _, ext := range opts.BlockedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		m.blocked[ext] = struct{}{}
	}
	if m.completions == nil {
		m.completions = storage.NewMemoryCompletionCache(storage.DefaultCompletionTTL)
	}
	for _, o := range options {
		o(m)
	}
	m.lastSweep.Store(m.now().UnixNano())
	return m
}

func (m *Manager) Options() Options {
	return m.opts
}

// ChunkRequest is one byte range of an upload as received from the client.
type ChunkRequest struct {
	SessionID    string
	FileName     string
	DeclaredSize int64
	ContentRange string
	StoragePath  string
	// Checksum is an optional hex SHA-256 of the chunk body.
	Checksum string
	Body     io.Reader
}

type AcceptResult struct {
	SessionID string
	Received  int64
	Total     int64
	Complete  bool
	// Object is set once the upload is finalized.
	Object *models.UploadedObject
}

type StatusResult struct {
	SessionID    string
	OriginalName string
	Received     int64
	Total        int64
	Complete     bool
	LastActivity time.Time
	Object       *models.UploadedObject
}

// AcceptChunk validates a chunk and appends it to its session's storage
// channel, opening the session on offset 0 and finalizing it on the last
// byte. Rejections are returned as *Error and never change session state.
func (m *Manager) AcceptChunk(ctx context.Context, req ChunkRequest) (res *AcceptResult, err error) {
	ctx, span := tracer.Start(ctx, "accept_chunk", trace.WithAttributes(
		attribute.String("file_id", req.SessionID),
		attribute.String("content_range", req.ContentRange),
	))
	defer func() {
		if err != nil {
			metrics.Rejections.WithLabelValues(KindOf(err).String()).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	m.maybeSweep(ctx)

	meta, rerr := m.checkFileName(req.FileName)
	if rerr != nil {
		return nil, rerr
	}
	if rerr := m.checkTotalSize(req.DeclaredSize); rerr != nil {
		return nil, rerr
	}
	rng, perr := protocol.ParseContentRange(req.ContentRange)
	if perr != nil {
		return nil, &Error{Kind: KindValidation, Message: "invalid content range", Err: perr}
	}
	if rng.Total != req.DeclaredSize {
		return nil, reject(KindValidation, "content range total %d does not match declared file size %d", rng.Total, req.DeclaredSize)
	}
	if rng.Len() > m.opts.MaxChunkSize {
		return nil, reject(KindTooLarge, "chunk too large, maximum chunk size is %d bytes", m.opts.MaxChunkSize)
	}

	data, rerr := readChunk(req.Body, rng.Len())
	if rerr != nil {
		return nil, rerr
	}
	if req.Checksum != "" && !chunker.VerifyChunkHash(data, strings.ToLower(req.Checksum)) {
		return nil, reject(KindValidation, "chunk checksum mismatch")
	}

	id := req.SessionID
	if id == "" {
		if rng.Start != 0 {
			return nil, reject(KindValidation, "file id required for chunks after the first")
		}
		id = m.newID()
	} else if rerr := checkSessionID(id); rerr != nil {
		return nil, rerr
	}
	span.SetAttributes(attribute.String("file_id", id), attribute.Int64("file_size", rng.Total))

	var s *Session
	if rng.Start == 0 {
		s, err = m.openSession(ctx, id, meta, req.StoragePath, rng.Total)
		if err != nil {
			return nil, err
		}
	} else {
		s, err = m.lockSession(ctx, id, rng.Start)
		if err != nil {
			return nil, err
		}
	}
	defer func() {
		if !s.closed && s.cancelRequested() {
			m.endLocked(ctx, s, causeCancelled)
		}
		s.mu.Unlock()
	}()

	if s.TotalSize != rng.Total {
		return nil, reject(KindValidation, "content range total %d does not match session size %d", rng.Total, s.TotalSize)
	}
	if got := s.BytesReceived(); rng.Start != got {
		return nil, &Error{
			Kind:     KindOutOfOrder,
			Message:  "chunk out of order",
			Expected: got,
			Received: rng.Start,
		}
	}

	return m.appendLocked(ctx, s, data)
}

// readChunk reads exactly n bytes and rejects bodies of any other length.
func readChunk(body io.Reader, n int64) ([]byte, *Error) {
	if body == nil {
		return nil, reject(KindValidation, "empty chunk body")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(body, buf); err != nil {
		return nil, reject(KindValidation, "chunk body shorter than content range")
	}
	var extra [1]byte
	if k, _ := body.Read(extra[:]); k > 0 {
		return nil, reject(KindValidation, "chunk body longer than content range")
	}
	return buf, nil
}

// openSession creates a locked session for id and opens its storage channel.
// Ids of ended sessions are not reused while their tombstone lives, and the
// object key is minted here so a client id never names a stored object.
func (m *Manager) openSession(ctx context.Context, id string, meta fileMeta, folder string, total int64) (*Session, error) {
	if m.wasEnded(id) {
		return nil, errSessionNotFound()
	}

	s := newSession(id, m.now())
	s.OriginalName = meta.originalName
	s.Extension = meta.extension
	s.MimeType = meta.mimeType
	s.DestinationPath = m.objectKey(folder, m.newID(), meta.extension)
	s.TotalSize = total
	s.mu.Lock()

	if rerr := m.insert(ctx, s); rerr != nil {
		s.mu.Unlock()
		s.stopInterrupt()
		return nil, rerr
	}
	metrics.ActiveSessions.Inc()

	openCtx, cancel := m.storageContext(ctx, s)
	defer cancel()
	ch, err := m.backend.OpenChannel(openCtx, storage.ObjectInfo{
		Key:         s.DestinationPath,
		ContentType: s.MimeType,
		Size:        total,
	})
	if err != nil {
		if s.cancelRequested() {
			m.endLocked(ctx, s, causeCancelled)
			s.mu.Unlock()
			return nil, errSessionNotFound()
		}
		m.endLocked(ctx, s, causeStorage)
		s.mu.Unlock()
		return nil, storageFailure("failed to open storage channel", err)
	}
	s.channel = ch
	if s.cancelRequested() {
		m.endLocked(ctx, s, causeCancelled)
		s.mu.Unlock()
		return nil, errSessionNotFound()
	}

	logger.Ctx(ctx).Info().
		Str("file_id", id).
		Str("key", s.DestinationPath).
		Int64("total", total).
		Msg("upload session opened")
	return s, nil
}

// insert stores s in the table. A live session holding the id is a
// conflict. An idle one is expired on the spot, which leaves the id
// tombstoned like any other ended session.
func (m *Manager) insert(ctx context.Context, s *Session) *Error {
	for attempt := 0; attempt < 3; attempt++ {
		if m.table.PutIfAbsent(s) {
			// The previous owner may have ended between the tombstone check
			// and the insert.
			if m.wasEnded(s.ID) {
				m.table.Remove(s.ID, s)
				return errSessionNotFound()
			}
			return nil
		}
		existing, ok := m.table.Get(s.ID)
		if !ok {
			continue
		}
		if !existing.mu.TryLock() {
			return reject(KindConflict, "upload %s is already in progress", s.ID)
		}
		if !existing.closed && !existing.cancelRequested() && !existing.idleLongerThan(m.now(), m.opts.SessionTimeout) {
			existing.mu.Unlock()
			return reject(KindConflict, "upload %s is already in progress", s.ID)
		}
		cause := causeExpired
		if existing.cancelRequested() {
			cause = causeCancelled
		}
		m.endLocked(ctx, existing, cause)
		existing.mu.Unlock()
		return errSessionNotFound()
	}
	return reject(KindConflict, "upload %s is already in progress", s.ID)
}

// lockSession returns the live session for a non-initial chunk, locked.
func (m *Manager) lockSession(ctx context.Context, id string, start int64) (*Session, error) {
	s, ok := m.table.Get(id)
	if !ok {
		if m.wasEnded(id) {
			return nil, errSessionNotFound()
		}
		return nil, &Error{
			Kind:     KindOutOfOrder,
			Message:  "chunk out of order",
			Expected: 0,
			Received: start,
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errSessionNotFound()
	}
	if s.cancelRequested() {
		m.endLocked(ctx, s, causeCancelled)
		s.mu.Unlock()
		return nil, errSessionNotFound()
	}
	if s.idleLongerThan(m.now(), m.opts.SessionTimeout) {
		m.endLocked(ctx, s, causeExpired)
		s.mu.Unlock()
		return nil, errSessionNotFound()
	}
	return s, nil
}

func (m *Manager) appendLocked(ctx context.Context, s *Session, data []byte) (*AcceptResult, error) {
	appendCtx, cancel := m.storageContext(ctx, s)
	started := time.Now()
	err := s.channel.Append(appendCtx, data)
	cancel()
	metrics.ChunkDuration.Observe(time.Since(started).Seconds())
	if s.cancelRequested() {
		m.endLocked(ctx, s, causeCancelled)
		return nil, errSessionNotFound()
	}
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("file_id", s.ID).Msg("append failed, tearing down session")
		m.endLocked(ctx, s, causeStorage)
		return nil, storageFailure("failed to write chunk", err)
	}

	received := s.bytesReceived.Add(int64(len(data)))
	s.touch(m.now())
	metrics.ChunksAccepted.Inc()
	metrics.BytesReceived.Add(float64(len(data)))

	res := &AcceptResult{
		SessionID: s.ID,
		Received:  received,
		Total:     s.TotalSize,
	}
	if received < s.TotalSize {
		return res, nil
	}

	obj, err := m.finalizeLocked(ctx, s)
	if err != nil {
		return nil, err
	}
	res.Complete = true
	res.Object = obj
	return res, nil
}

func (m *Manager) finalizeLocked(ctx context.Context, s *Session) (*models.UploadedObject, error) {
	ctx, span := tracer.Start(ctx, "finalize_upload", trace.WithAttributes(
		attribute.String("file_id", s.ID),
		attribute.String("key", s.DestinationPath),
	))
	defer span.End()

	commitCtx, cancel := m.storageContext(ctx, s)
	url, err := s.channel.Commit(commitCtx)
	cancel()
	if err != nil && s.cancelRequested() {
		m.endLocked(ctx, s, causeCancelled)
		return nil, errSessionNotFound()
	}
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("file_id", s.ID).Msg("commit failed, tearing down session")
		m.endLocked(ctx, s, causeStorage)
		return nil, storageFailure("failed to finalize upload", err)
	}

	s.closed = true
	s.stopInterrupt()
	m.markEnded(s.ID)
	m.table.Remove(s.ID, s)
	metrics.ActiveSessions.Dec()
	metrics.Completed.WithLabelValues(metrics.PathChunked).Inc()

	obj := &models.UploadedObject{
		FileID:       s.ID,
		Key:          s.DestinationPath,
		URL:          url,
		OriginalName: s.OriginalName,
		ContentType:  s.MimeType,
		Size:         s.TotalSize,
	}
	m.rememberCompleted(ctx, obj)

	logger.Ctx(ctx).Info().
		Str("file_id", s.ID).
		Str("url", url).
		Int64("size", s.TotalSize).
		Dur("elapsed", m.now().Sub(s.CreatedAt)).
		Msg("upload completed")
	return obj, nil
}

func (m *Manager) rememberCompleted(ctx context.Context, obj *models.UploadedObject) {
	if err := m.completions.SetCompleted(ctx, obj); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("file_id", obj.FileID).Msg("failed to cache completed upload")
	}
}

// endLocked aborts the session's channel and removes it. s.mu must be held.
func (m *Manager) endLocked(ctx context.Context, s *Session, cause string) {
	if s.closed {
		return
	}
	s.closed = true
	m.markEnded(s.ID)
	m.table.Remove(s.ID, s)
	metrics.ActiveSessions.Dec()
	metrics.SessionsEnded.WithLabelValues(cause).Inc()

	defer s.stopInterrupt()
	if s.channel == nil {
		return
	}
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if err := s.channel.Abort(abortCtx); err != nil && !errors.Is(err, storage.ErrChannelClosed) {
		logger.Ctx(ctx).Warn().Err(err).Str("file_id", s.ID).Msg("failed to abort storage channel")
	}
	logger.Ctx(ctx).Info().Str("file_id", s.ID).Str("cause", cause).Msg("upload session ended")
}

// storageContext bounds a storage call by the inactivity timeout. It is
// detached from request cancellation so a dropped connection cannot leave a
// channel half-written, but a cancel of the session interrupts it.
func (m *Manager) storageContext(ctx context.Context, s *Session) (context.Context, context.CancelFunc) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.SessionTimeout)
	stop := context.AfterFunc(s.interrupt, cancel)
	return sctx, func() {
		stop()
		cancel()
	}
}

// Status reports the progress of a live session, or the result of one that
// completed recently.
func (m *Manager) Status(ctx context.Context, id string) (*StatusResult, error) {
	if rerr := checkSessionID(id); rerr != nil {
		return nil, rerr
	}

	if s, ok := m.table.Get(id); ok {
		if s.cancelRequested() {
			return nil, errSessionNotFound()
		}
		if !s.idleLongerThan(m.now(), m.opts.SessionTimeout) {
			return &StatusResult{
				SessionID:    s.ID,
				OriginalName: s.OriginalName,
				Received:     s.BytesReceived(),
				Total:        s.TotalSize,
				LastActivity: s.LastActivity(),
			}, nil
		}
		if s.mu.TryLock() {
			m.endLocked(ctx, s, causeExpired)
			s.mu.Unlock()
		}
		return nil, errSessionNotFound()
	}

	obj, err := m.completions.GetCompleted(ctx, id)
	if err != nil {
		return nil, storageFailure("failed to read upload status", err)
	}
	if obj == nil {
		return nil, errSessionNotFound()
	}
	return &StatusResult{
		SessionID:    obj.FileID,
		OriginalName: obj.OriginalName,
		Received:     obj.Size,
		Total:        obj.Size,
		Complete:     true,
		Object:       obj,
	}, nil
}

// Cancel aborts and removes a session. Cancelling an unknown session is not
// an error. It never waits for a chunk in flight: a busy session is flagged,
// its storage call interrupted and the chunk tears it down.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	if rerr := checkSessionID(id); rerr != nil {
		return rerr
	}
	s, ok := m.table.Get(id)
	if !ok {
		return nil
	}
	m.abandon(ctx, s, causeCancelled)
	return nil
}

// Shutdown aborts every live session and returns how many it ended or
// flagged. Called once the HTTP server stopped taking chunks.
func (m *Manager) Shutdown(ctx context.Context) int {
	sessions := m.table.Sessions()
	for _, s := range sessions {
		m.abandon(ctx, s, causeShutdown)
	}
	if len(sessions) > 0 {
		logger.Info().Int("sessions", len(sessions)).Msg("aborted live upload sessions")
	}
	return len(sessions)
}

func (m *Manager) abandon(ctx context.Context, s *Session, cause string) {
	if s.mu.TryLock() {
		m.endLocked(ctx, s, cause)
		s.mu.Unlock()
		return
	}
	s.requestCancel()
	logger.Ctx(ctx).Info().Str("file_id", s.ID).Str("cause", cause).Msg("upload session busy, interrupting chunk")
}

// SweepExpired evicts idle sessions and cancelled sessions nobody tore down
// yet. It returns how many were evicted. Sessions busy with a chunk are
// skipped.
func (m *Manager) SweepExpired(ctx context.Context) int {
	now := m.now()
	m.lastSweep.Store(now.UnixNano())

	evicted := 0
	for _, s := range m.table.Sessions() {
		if !s.cancelRequested() && !s.idleLongerThan(now, m.opts.SessionTimeout) {
			continue
		}
		if !s.mu.TryLock() {
			continue
		}
		switch {
		case s.closed:
		case s.cancelRequested():
			m.endLocked(ctx, s, causeCancelled)
			evicted++
		case s.idleLongerThan(now, m.opts.SessionTimeout):
			m.endLocked(ctx, s, causeExpired)
			evicted++
		}
		s.mu.Unlock()
	}
	m.pruneEnded(now)
	return evicted
}

func (m *Manager) maybeSweep(ctx context.Context) {
	last := time.Unix(0, m.lastSweep.Load())
	if m.now().Sub(last) < m.opts.SweepInterval {
		return
	}
	if n := m.SweepExpired(ctx); n > 0 {
		logger.Ctx(ctx).Info().Int("evicted", n).Msg("expired upload sessions swept")
	}
}

// Run sweeps expired sessions every SweepInterval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.SweepExpired(ctx); n > 0 {
				logger.Info().Int("evicted", n).Int("active", m.table.Len()).Msg("expired upload sessions swept")
			}
		}
	}
}

// ActiveSessions returns the number of live sessions.
func (m *Manager) ActiveSessions() int {
	return m.table.Len()
}

func (m *Manager) markEnded(id string) {
	m.endedMu.Lock()
	m.ended[id] = m.now()
	m.endedMu.Unlock()
}

func (m *Manager) wasEnded(id string) bool {
	m.endedMu.Lock()
	defer m.endedMu.Unlock()
	at, ok := m.ended[id]
	return ok && m.now().Sub(at) <= m.opts.TombstoneTTL
}

func (m *Manager) pruneEnded(now time.Time) {
	m.endedMu.Lock()
	defer m.endedMu.Unlock()
	for id, at := range m.ended {
		if now.Sub(at) > m.opts.TombstoneTTL {
			delete(m.ended, id)
		}
	}
}

// DirectRequest is a whole small file sent in one request.
type DirectRequest struct {
	FileName    string
	Size        int64
	StoragePath string
	Body        io.Reader
}

// PutDirect writes a small file to storage in one call without a session.
// The result has the same shape as a finalized chunked upload.
func (m *Manager) PutDirect(ctx context.Context, req DirectRequest) (res *AcceptResult, err error) {
	ctx, span := tracer.Start(ctx, "put_direct", trace.WithAttributes(
		attribute.String("file_name", req.FileName),
		attribute.Int64("file_size", req.Size),
	))
	defer func() {
		if err != nil {
			metrics.Rejections.WithLabelValues(KindOf(err).String()).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	meta, rerr := m.checkFileName(req.FileName)
	if rerr != nil {
		return nil, rerr
	}
	if req.Size < 0 {
		return nil, reject(KindValidation, "file size must not be negative")
	}
	if req.Size > m.opts.MaxFileSize {
		return nil, m.checkTotalSize(req.Size)
	}
	if req.Size > m.opts.SmallFileThreshold {
		return nil, reject(KindUseChunks, "file exceeds the single request limit, use chunked upload")
	}
	if req.Body == nil {
		req.Body = bytes.NewReader(nil)
	}

	id := m.newID()
	key := m.objectKey(req.StoragePath, id, meta.extension)
	url, perr := m.backend.Put(ctx, storage.ObjectInfo{
		Key:         key,
		ContentType: meta.mimeType,
		Size:        req.Size,
	}, io.LimitReader(req.Body, req.Size))
	if perr != nil {
		logger.Ctx(ctx).Error().Err(perr).Str("key", key).Msg("direct upload failed")
		return nil, storageFailure("failed to store file", perr)
	}

	metrics.BytesReceived.Add(float64(req.Size))
	metrics.Completed.WithLabelValues(metrics.PathDirect).Inc()

	obj := &models.UploadedObject{
		FileID:       id,
		Key:          key,
		URL:          url,
		OriginalName: meta.originalName,
		ContentType:  meta.mimeType,
		Size:         req.Size,
	}
	m.rememberCompleted(ctx, obj)

	logger.Ctx(ctx).Info().Str("file_id", id).Str("url", url).Int64("size", req.Size).Msg("direct upload completed")
	return &AcceptResult{
		SessionID: id,
		Received:  req.Size,
		Total:     req.Size,
		Complete:  true,
		Object:    obj,
	}, nil
}
