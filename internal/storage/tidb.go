package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/maneesh/docvault/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// UploadLogStore records completed uploads for auditing
type UploadLogStore interface {
	CreateUploadLog(ctx context.Context, log *models.UploadLog) error
	ListUploadLogs(ctx context.Context, q models.UploadLogQuery) (*models.UploadLogPage, error)
}

const uploadLogSchema = `CREATE TABLE IF NOT EXISTS upload_logs (
	id          VARCHAR(36)  NOT NULL PRIMARY KEY,
	file_name   VARCHAR(512) NOT NULL,
	file_type   VARCHAR(255),
	file_size   BIGINT,
	file_path   VARCHAR(1024),
	url         TEXT,
	uploaded_by VARCHAR(255),
	ip_address  VARCHAR(64),
	user_agent  VARCHAR(512),
	created_at  DATETIME(3)  NOT NULL,
	INDEX idx_upload_logs_created_at (created_at)
)`

// uploadLogSortColumns whitelists sortable fields
var uploadLogSortColumns = map[string]string{
	"fileName":  "file_name",
	"fileSize":  "file_size",
	"fileType":  "file_type",
	"createdAt": "created_at",
}

// Upload log listing defaults
const (
	DefaultUploadLogLimit = 150
	MaxUploadLogLimit     = 1000
)

// NormalizeUploadLogQuery fills defaults and clamps paging and sorting.
func NormalizeUploadLogQuery(q models.UploadLogQuery) models.UploadLogQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultUploadLogLimit
	}
	if q.Limit > MaxUploadLogLimit {
		q.Limit = MaxUploadLogLimit
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if _, ok := uploadLogSortColumns[q.SortBy]; !ok {
		q.SortBy = "createdAt"
	}
	if strings.ToLower(q.SortOrder) == "asc" {
		q.SortOrder = "asc"
	} else {
		q.SortOrder = "desc"
	}
	return q
}

// TiDBClient stores upload logs in TiDB (or MySQL)
type TiDBClient struct {
	db *sql.DB
}

// NewTiDBClient initializes a new TiDB client
func NewTiDBClient(dsn string) (*TiDBClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &TiDBClient{db: db}, nil
}

// Close closes the database connection
func (tc *TiDBClient) Close() error {
	return tc.db.Close()
}

// EnsureSchema creates the upload_logs table when missing
func (tc *TiDBClient) EnsureSchema(ctx context.Context) error {
	if _, err := tc.db.ExecContext(ctx, uploadLogSchema); err != nil {
		return fmt.Errorf("failed to create upload_logs table: %w", err)
	}
	return nil
}

// CreateUploadLog inserts an upload log with tracing
func (tc *TiDBClient) CreateUploadLog(ctx context.Context, log *models.UploadLog) error {
	ctx, span := tracer.Start(ctx, "tidb.create_upload_log",
		trace.WithAttributes(
			attribute.String("upload_log_id", log.ID),
			attribute.String("file_name", log.FileName),
			attribute.Int64("file_size", log.FileSize),
		),
	)
	defer span.End()

	query := `INSERT INTO upload_logs
			  (id, file_name, file_type, file_size, file_path, url, uploaded_by, ip_address, user_agent, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tc.db.ExecContext(ctx, query,
		log.ID, log.FileName, log.FileType, log.FileSize, log.FilePath, log.URL,
		log.UploadedBy, log.IPAddress, log.UserAgent, log.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert upload log: %w", err)
	}

	return nil
}

// ListUploadLogs returns one page of upload logs ordered by the requested field
func (tc *TiDBClient) ListUploadLogs(ctx context.Context, q models.UploadLogQuery) (*models.UploadLogPage, error) {
	q = NormalizeUploadLogQuery(q)

	ctx, span := tracer.Start(ctx, "tidb.list_upload_logs",
		trace.WithAttributes(
			attribute.String("file_name_filter", q.FileName),
			attribute.Int("page", q.Page),
			attribute.Int("limit", q.Limit),
		),
	)
	defer span.End()

	where := ""
	args := []any{}
	if q.FileName != "" {
		where = " WHERE file_name LIKE ?"
		args = append(args, "%"+escapeLike(q.FileName)+"%")
	}

	var total int
	if err := tc.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM upload_logs"+where, args...).Scan(&total); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count upload logs: %w", err)
	}

	// Column and direction come from the whitelist above, never from input.
	query := fmt.Sprintf(`SELECT id, file_name, COALESCE(file_type, ''), COALESCE(file_size, 0),
			  COALESCE(file_path, ''), COALESCE(url, ''), COALESCE(uploaded_by, ''),
			  COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at
			  FROM upload_logs%s ORDER BY %s %s LIMIT ? OFFSET ?`,
		where, uploadLogSortColumns[q.SortBy], strings.ToUpper(q.SortOrder))

	rows, err := tc.db.QueryContext(ctx, query, append(args, q.Limit, (q.Page-1)*q.Limit)...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query upload logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.UploadLog{}
	for rows.Next() {
		var l models.UploadLog
		if err := rows.Scan(&l.ID, &l.FileName, &l.FileType, &l.FileSize, &l.FilePath, &l.URL,
			&l.UploadedBy, &l.IPAddress, &l.UserAgent, &l.CreatedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan upload log: %w", err)
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating upload logs: %w", err)
	}

	span.SetAttributes(attribute.Int("log_count", len(logs)))
	return newUploadLogPage(logs, total, q), nil
}

func newUploadLogPage(logs []*models.UploadLog, total int, q models.UploadLogQuery) *models.UploadLogPage {
	return &models.UploadLogPage{
		Logs:       logs,
		Count:      len(logs),
		TotalCount: total,
		Page:       q.Page,
		TotalPages: (total + q.Limit - 1) / q.Limit,
		SortBy:     q.SortBy,
		SortOrder:  q.SortOrder,
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
