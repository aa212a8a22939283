package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/maneesh/docvault/internal/session"
	"github.com/spf13/viper"
)

// Storage backend identifiers
const (
	BackendMinio  = "minio"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServicePort string
	ServiceName string
	MetricsPort string

	// Upload limits
	MaxFileSize        int64
	MaxChunkSize       int64
	SmallFileThreshold int64
	BlockedExtensions  []string
	DefaultStoragePath string
	SessionTimeout     time.Duration
	SweepInterval      time.Duration
	CompletionTTL      time.Duration

	// Storage backend
	StorageBackend string
	PublicBaseURL  string

	// MinIO configuration
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucketName string
	MinIOUseSSL     bool

	// S3 configuration
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	// TiDB / MySQL upload log
	UploadLogEnabled bool
	TiDBHost         string
	TiDBPort         string
	TiDBUser         string
	TiDBPassword     string
	TiDBDatabase     string

	// Redis completion cache
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Tracing and error reporting
	TracingEnabled bool
	JaegerEndpoint string
	SentryDSN      string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_PORT", "8080")
	v.SetDefault("SERVICE_NAME", "docvault-upload")
	v.SetDefault("METRICS_PORT", "8090")

	v.SetDefault("MAX_FILE_SIZE", "25GiB")
	v.SetDefault("MAX_CHUNK_SIZE", "5MiB")
	v.SetDefault("SMALL_FILE_THRESHOLD", "10MiB")
	v.SetDefault("BLOCKED_EXTENSIONS", session.DefaultBlockedExtensions)
	v.SetDefault("DEFAULT_STORAGE_PATH", "uploads")
	v.SetDefault("SESSION_TIMEOUT", 30*time.Minute)
	v.SetDefault("SWEEP_INTERVAL", time.Minute)
	v.SetDefault("COMPLETION_TTL", time.Hour)

	v.SetDefault("STORAGE_BACKEND", BackendMinio)
	v.SetDefault("PUBLIC_BASE_URL", "")

	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_BUCKET_NAME", "docvault")
	v.SetDefault("MINIO_USE_SSL", false)

	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_BUCKET", "docvault")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")

	v.SetDefault("UPLOAD_LOG_ENABLED", true)
	v.SetDefault("TIDB_HOST", "localhost")
	v.SetDefault("TIDB_PORT", "4000")
	v.SetDefault("TIDB_USER", "root")
	v.SetDefault("TIDB_PASSWORD", "")
	v.SetDefault("TIDB_DATABASE", "docvault")

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("TRACING_ENABLED", true)
	v.SetDefault("JAEGER_ENDPOINT", "localhost:4318")
	v.SetDefault("SENTRY_DSN", "")
}

// LoadConfig loads configuration from environment variables (and an optional
// CONFIG_FILE) with sensible defaults.
func LoadConfig() (*Config, error) {
	return Load(viper.New())
}

// Load resolves the configuration from v. Environment variables override the
// config file, which overrides defaults.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	maxFile, err := sizeValue(v, "MAX_FILE_SIZE")
	if err != nil {
		return nil, err
	}
	maxChunk, err := sizeValue(v, "MAX_CHUNK_SIZE")
	if err != nil {
		return nil, err
	}
	smallFile, err := sizeValue(v, "SMALL_FILE_THRESHOLD")
	if err != nil {
		return nil, err
	}

	config := &Config{
		ServicePort: v.GetString("SERVICE_PORT"),
		ServiceName: v.GetString("SERVICE_NAME"),
		MetricsPort: v.GetString("METRICS_PORT"),

		MaxFileSize:        maxFile,
		MaxChunkSize:       maxChunk,
		SmallFileThreshold: smallFile,
		BlockedExtensions:  normalizeExtensions(v.GetStringSlice("BLOCKED_EXTENSIONS")),
		DefaultStoragePath: v.GetString("DEFAULT_STORAGE_PATH"),
		SessionTimeout:     v.GetDuration("SESSION_TIMEOUT"),
		SweepInterval:      v.GetDuration("SWEEP_INTERVAL"),
		CompletionTTL:      v.GetDuration("COMPLETION_TTL"),

		StorageBackend: strings.ToLower(v.GetString("STORAGE_BACKEND")),
		PublicBaseURL:  strings.TrimSuffix(v.GetString("PUBLIC_BASE_URL"), "/"),

		MinIOEndpoint:   v.GetString("MINIO_ENDPOINT"),
		MinIOAccessKey:  v.GetString("MINIO_ACCESS_KEY"),
		MinIOSecretKey:  v.GetString("MINIO_SECRET_KEY"),
		MinIOBucketName: v.GetString("MINIO_BUCKET_NAME"),
		MinIOUseSSL:     v.GetBool("MINIO_USE_SSL"),

		S3Endpoint:  v.GetString("S3_ENDPOINT"),
		S3Region:    v.GetString("S3_REGION"),
		S3Bucket:    v.GetString("S3_BUCKET"),
		S3AccessKey: v.GetString("S3_ACCESS_KEY"),
		S3SecretKey: v.GetString("S3_SECRET_KEY"),

		UploadLogEnabled: v.GetBool("UPLOAD_LOG_ENABLED"),
		TiDBHost:         v.GetString("TIDB_HOST"),
		TiDBPort:         v.GetString("TIDB_PORT"),
		TiDBUser:         v.GetString("TIDB_USER"),
		TiDBPassword:     v.GetString("TIDB_PASSWORD"),
		TiDBDatabase:     v.GetString("TIDB_DATABASE"),

		RedisEnabled:  v.GetBool("REDIS_ENABLED"),
		RedisHost:     v.GetString("REDIS_HOST"),
		RedisPort:     v.GetString("REDIS_PORT"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		TracingEnabled: v.GetBool("TRACING_ENABLED"),
		JaegerEndpoint: v.GetString("JAEGER_ENDPOINT"),
		SentryDSN:      v.GetString("SENTRY_DSN"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the cross-field constraints of the configuration.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMinio, BackendS3, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("MAX_CHUNK_SIZE must be positive")
	}
	if c.MaxFileSize < c.MaxChunkSize {
		return fmt.Errorf("MAX_FILE_SIZE (%s) is smaller than MAX_CHUNK_SIZE (%s)",
			humanize.IBytes(uint64(c.MaxFileSize)), humanize.IBytes(uint64(c.MaxChunkSize)))
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be positive")
	}
	return nil
}

// GetDSN returns the TiDB connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.TiDBUser,
		c.TiDBPassword,
		c.TiDBHost,
		c.TiDBPort,
		c.TiDBDatabase,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// sizeValue accepts either a plain byte count or a humanized size ("5MiB", "25 GB").
func sizeValue(v *viper.Viper, key string) (int64, error) {
	raw := strings.TrimSpace(v.GetString(key))
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return int64(n), nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		// env values arrive as one space or comma separated string
		for _, part := range strings.FieldsFunc(e, func(r rune) bool { return r == ',' || r == ' ' }) {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if !strings.HasPrefix(part, ".") {
				part = "." + part
			}
			out = append(out, part)
		}
	}
	return out
}
