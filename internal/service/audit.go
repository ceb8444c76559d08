package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/pkg/logger"
)

// AuditRepo is the durable sink for request audit entries. Redis and Postgres
// implementations exist; either may be nil in development.
type AuditRepo interface {
	Insert(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, tenantID string, limit int, from, to *time.Time) ([]*model.AuditLog, error)
}

// AuditService records request/response pairs off the hot path. Entries flow
// through a buffered channel into a daily JSONL file and the configured repo;
// when the channel is full the entry is dropped rather than blocking request
// handling. A ring buffer keeps recent entries queryable even without a repo.
type AuditService struct {
	logChan chan *model.AuditLog
	logFile *os.File
	buffer  *auditBuffer
	repo    AuditRepo
	done    chan struct{}
}

func NewAuditService(logDir string, repo AuditRepo) (*AuditService, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}

	filename := filepath.Join(logDir, "audit-"+time.Now().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	svc := &AuditService{
		logChan: make(chan *model.AuditLog, 1000),
		logFile: f,
		buffer:  newAuditBuffer(1000),
		repo:    repo,
		done:    make(chan struct{}),
	}
	go svc.processLogs()
	return svc, nil
}

func (s *AuditService) Log(entry *model.AuditLog) {
	if s.buffer != nil {
		s.buffer.Add(entry)
	}
	select {
	case s.logChan <- entry:
	default:
		// Full buffer: drop rather than stall request handling.
		logger.Warn("audit buffer full, dropping entry", "path", entry.Path)
	}
}

// List prefers the durable repo and falls back to the in-memory ring.
func (s *AuditService) List(ctx context.Context, tenantID string, limit int, from, to *time.Time) ([]*model.AuditLog, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, tenantID, limit, from, to)
		if err == nil {
			return records, nil
		}
		logger.Warn("audit repo list failed, serving from memory", "error", err.Error())
	}
	if s.buffer == nil {
		return nil, nil
	}
	return s.buffer.List(tenantID, limit), nil
}

func (s *AuditService) processLogs() {
	defer close(s.done)
	encoder := json.NewEncoder(s.logFile)
	for entry := range s.logChan {
		if s.repo != nil {
			if err := s.repo.Insert(context.Background(), entry); err != nil {
				logger.Error("audit repo insert failed", "error", err.Error())
			}
		}
		if err := encoder.Encode(entry); err != nil {
			logger.Error("audit file write failed", "error", err.Error())
		}
	}
}

// Close drains buffered entries before closing the file.
func (s *AuditService) Close() {
	close(s.logChan)
	<-s.done
	s.logFile.Close()
}

type auditBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.AuditLog
	nextIndex int
}

func newAuditBuffer(maxSize int) *auditBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &auditBuffer{
		maxSize: maxSize,
		records: make([]*model.AuditLog, 0, maxSize),
	}
}

func (b *auditBuffer) Add(entry *model.AuditLog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, entry)
		return
	}
	b.records[b.nextIndex] = entry
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

// List walks the ring newest-first.
func (b *auditBuffer) List(tenantID string, limit int) []*model.AuditLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]*model.AuditLog, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		entry := b.records[idx]
		if entry == nil {
			continue
		}
		if tenantID != "" && entry.TenantID != tenantID {
			continue
		}
		results = append(results, entry)
		if len(results) >= limit {
			break
		}
	}
	return results
}
