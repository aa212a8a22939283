package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/maneesh/docvault/internal/config"
	"github.com/maneesh/docvault/internal/handlers"
	"github.com/maneesh/docvault/internal/logger"
	"github.com/maneesh/docvault/internal/metrics"
	"github.com/maneesh/docvault/internal/session"
	"github.com/maneesh/docvault/internal/storage"
	"github.com/maneesh/docvault/internal/tracing"
)

func main() {
	logger.Info().Msg("Starting docvault upload service...")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Info().Str("service", cfg.ServiceName).Str("port", cfg.ServicePort).Str("backend", cfg.StorageBackend).Msg("configuration loaded")

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, ServerName: cfg.ServiceName}); err != nil {
			logger.Warn().Err(err).Msg("sentry init failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.JaegerEndpoint, cfg.TracingEnabled)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Warn().Err(err).Msg("error shutting down tracer")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage backend")
	}

	completions, closeCompletions, err := newCompletionCache(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize completion cache")
	}
	defer closeCompletions()

	uploadLogs, closeUploadLogs, err := newUploadLogStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize upload log store")
	}
	defer closeUploadLogs()

	sessions := session.NewManager(backend, completions, session.Options{
		MaxFileSize:        cfg.MaxFileSize,
		MaxChunkSize:       cfg.MaxChunkSize,
		SmallFileThreshold: cfg.SmallFileThreshold,
		BlockedExtensions:  cfg.BlockedExtensions,
		DefaultStoragePath: cfg.DefaultStoragePath,
		SessionTimeout:     cfg.SessionTimeout,
		SweepInterval:      cfg.SweepInterval,
	})
	go sessions.Run(ctx)

	router := handlers.NewRouter(handlers.Dependencies{
		Sessions:   sessions,
		Backend:    backend,
		UploadLogs: uploadLogs,
	})
	handler := sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(router)

	// Chunk requests may block on storage backpressure for up to the
	// session timeout, so no write timeout is set.
	srv := &http.Server{
		Addr:              ":" + cfg.ServicePort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	debugSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.MetricsPort).Msg("debug server listening")
		if err := debugSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("debug server failed")
		}
	}()
	go func() {
		logger.Info().Str("port", cfg.ServicePort).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()
	metrics.SetReady()

	<-ctx.Done()
	metrics.SetNotReady()
	logger.Info().Int("active_sessions", sessions.ActiveSessions()).Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}
	// Sessions do not survive a restart. Release their storage channels.
	sessions.Shutdown(shutdownCtx)
	debugSrv.Shutdown(shutdownCtx)

	logger.Info().Msg("server exited")
}

func newBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case config.BackendMinio:
		logger.Info().Str("endpoint", cfg.MinIOEndpoint).Str("bucket", cfg.MinIOBucketName).Msg("connecting to MinIO...")
		return storage.NewMinioBackend(
			cfg.MinIOEndpoint,
			cfg.MinIOAccessKey,
			cfg.MinIOSecretKey,
			cfg.MinIOBucketName,
			cfg.MinIOUseSSL,
			cfg.PublicBaseURL,
		)
	case config.BackendS3:
		logger.Info().Str("region", cfg.S3Region).Str("bucket", cfg.S3Bucket).Msg("connecting to S3...")
		return storage.NewS3Backend(ctx, storage.S3Options{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.PublicBaseURL,
		})
	case config.BackendMemory:
		logger.Warn().Msg("using in-memory storage, uploads are lost on restart")
		base := cfg.PublicBaseURL
		if base == "" {
			base = fmt.Sprintf("http://localhost:%s/files", cfg.ServicePort)
		}
		return storage.NewMemoryBackend(base), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newCompletionCache(cfg *config.Config) (storage.CompletionCache, func(), error) {
	if !cfg.RedisEnabled {
		return storage.NewMemoryCompletionCache(cfg.CompletionTTL), func() {}, nil
	}

	logger.Info().Str("addr", cfg.GetRedisAddr()).Msg("connecting to Redis...")
	client, err := storage.NewRedisClient(cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	return storage.NewRedisCompletionCache(client, cfg.CompletionTTL), func() { client.Close() }, nil
}

func newUploadLogStore(ctx context.Context, cfg *config.Config) (storage.UploadLogStore, func(), error) {
	if !cfg.UploadLogEnabled {
		return storage.NewMemoryUploadLogStore(), func() {}, nil
	}

	logger.Info().Str("host", cfg.TiDBHost).Str("database", cfg.TiDBDatabase).Msg("connecting to TiDB...")
	client, err := storage.NewTiDBClient(cfg.GetDSN())
	if err != nil {
		return nil, nil, err
	}
	if err := client.EnsureSchema(ctx); err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, func() { client.Close() }, nil
}
