package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/maneesh/docvault/internal/models"
)

// MemoryUploadLogStore keeps upload logs in process memory.
type MemoryUploadLogStore struct {
	mu   sync.RWMutex
	logs []*models.UploadLog
}

func NewMemoryUploadLogStore() *MemoryUploadLogStore {
	return &MemoryUploadLogStore{}
}

func (s *MemoryUploadLogStore) CreateUploadLog(ctx context.Context, log *models.UploadLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := *log
	s.logs = append(s.logs, &l)
	return nil
}

func (s *MemoryUploadLogStore) ListUploadLogs(ctx context.Context, q models.UploadLogQuery) (*models.UploadLogPage, error) {
	q = NormalizeUploadLogQuery(q)

	s.mu.RLock()
	matched := make([]*models.UploadLog, 0, len(s.logs))
	for _, l := range s.logs {
		if q.FileName == "" || strings.Contains(l.FileName, q.FileName) {
			matched = append(matched, l)
		}
	}
	s.mu.RUnlock()

	less := func(a, b *models.UploadLog) bool {
		switch q.SortBy {
		case "fileName":
			return a.FileName < b.FileName
		case "fileSize":
			return a.FileSize < b.FileSize
		case "fileType":
			return a.FileType < b.FileType
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if q.SortOrder == "asc" {
			return less(matched[i], matched[j])
		}
		return less(matched[j], matched[i])
	})

	total := len(matched)
	start := (q.Page - 1) * q.Limit
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return newUploadLogPage(matched[start:end], total, q), nil
}
