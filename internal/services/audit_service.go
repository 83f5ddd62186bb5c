package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/crewdeckhq/crewdeck/internal/auditctx"
	"github.com/crewdeckhq/crewdeck/internal/models"
)

// AuditEntry captures a single audit event to persist.
type AuditEntry struct {
	Actor    string
	Action   string
	Resource string
	Result   string
	Metadata map[string]any
}

// AuditService persists and retrieves audit log entries.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db}, nil
}

// Log stores an audit entry, marshalling metadata into JSON form.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit service: action is required")
	}
	if strings.TrimSpace(entry.Result) == "" {
		return errors.New("audit service: result is required")
	}

	if strings.TrimSpace(entry.Actor) == "" {
		if actor, ok := auditctx.FromContext(ctx); ok {
			entry.Actor = actor.Identity
		}
	}

	payload := ""
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		payload = string(encoded)
	}

	log := models.AuditLog{
		Actor:    strings.TrimSpace(entry.Actor),
		Action:   strings.TrimSpace(entry.Action),
		Resource: strings.TrimSpace(entry.Resource),
		Result:   strings.TrimSpace(entry.Result),
		Metadata: payload,
	}

	return s.db.WithContext(ctx).Create(&log).Error
}

// ListRecent returns the most recent audit logs, newest first.
func (s *AuditService) ListRecent(ctx context.Context, limit int) ([]models.AuditLog, error) {
	ctx = ensureContext(ctx)

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var logs []models.AuditLog
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("audit service: list logs: %w", err)
	}

	return logs, nil
}

// CleanupOlderThan removes audit logs older than the supplied retention window (in days).
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}

	return result.RowsAffected, nil
}
