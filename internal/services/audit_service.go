package services

import (
	"context"
	"log/slog"

	"github.com/jzupan/clubmgr/internal/models"
)

// AuditRepository defines the persistence interface for audit entries
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditEntry) (*models.AuditEntry, error)
}

// AuditRecorder is the write-side surface other services depend on.
type AuditRecorder interface {
	Record(ctx context.Context, username *string, kind, description, address string)
}

// AuditService handles audit logging with dual-write pattern (slog + database).
// Recording is best effort: a failed database write is logged and swallowed so
// an audit outage can never abort the operation being audited.
type AuditService struct {
	repo   AuditRepository
	logger *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo AuditRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
	}
}

// Record appends an audit entry.
func (s *AuditService) Record(ctx context.Context, username *string, kind, description, address string) {
	entry := &models.AuditEntry{
		Username:    username,
		Address:     address,
		Kind:        kind,
		Description: description,
	}

	// Dual-write: immediate slog output
	name := ""
	if username != nil {
		name = *username
	}
	s.logger.InfoContext(ctx, "audit event",
		slog.String("kind", kind),
		slog.String("username", name),
		slog.String("address", address),
		slog.String("description", description),
	)

	if _, err := s.repo.Create(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit entry",
			slog.String("kind", kind),
			slog.Any("error", err),
		)
	}
}
