package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jzupan/clubmgr/internal/database"
	"github.com/jzupan/clubmgr/internal/models"
)

// AuditLogRepository handles audit log data access
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

const auditColumns = `id, occurred_at, username, address, kind, description`

func scanAuditRow(row rowScanner) (*models.AuditEntry, error) {
	var entry models.AuditEntry

	err := row.Scan(
		&entry.ID, &entry.OccurredAt, &entry.Username,
		&entry.Address, &entry.Kind, &entry.Description,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &entry, nil
}

func scanAuditRows(rows pgx.Rows) ([]*models.AuditEntry, error) {
	defer rows.Close()

	entries := make([]*models.AuditEntry, 0)

	for rows.Next() {
		entry, err := scanAuditRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return entries, nil
}

// Create appends a new audit entry
func (r *AuditLogRepository) Create(ctx context.Context, entry *models.AuditEntry) (*models.AuditEntry, error) {
	entry.OccurredAt = time.Now()

	query := `
		INSERT INTO audit_log (occurred_at, username, address, kind, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + auditColumns

	result, err := scanAuditRow(r.pool.QueryRow(ctx, query,
		entry.OccurredAt, entry.Username, entry.Address, entry.Kind, entry.Description,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create audit entry: %w", err)
	}

	return result, nil
}

// GetByKind retrieves audit entries of one kind, newest first
func (r *AuditLogRepository) GetByKind(ctx context.Context, kind string, limit, offset int) ([]*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_log
		WHERE kind = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, kind, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}

	return scanAuditRows(rows)
}

// GetByUsername retrieves audit entries naming the given username, newest first
func (r *AuditLogRepository) GetByUsername(ctx context.Context, username string, limit, offset int) ([]*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_log
		WHERE username = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, username, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}

	return scanAuditRows(rows)
}

// OldestBefore returns the timestamp range of entries older than the cutoff.
// Used by the maintenance purge to report what a deletion would cover.
func (r *AuditLogRepository) OldestBefore(ctx context.Context, cutoff time.Time) (oldest, newest *time.Time, err error) {
	query := `
		SELECT MIN(occurred_at), MAX(occurred_at)
		FROM audit_log
		WHERE occurred_at < $1
	`

	err = r.pool.QueryRow(ctx, query, cutoff).Scan(&oldest, &newest)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query audit range: %w", err)
	}
	return oldest, newest, nil
}

// CountBefore counts entries older than the cutoff
func (r *AuditLogRepository) CountBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM audit_log WHERE occurred_at < $1`

	var count int64
	if err := r.pool.QueryRow(ctx, query, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}

// ListBefore streams entries older than the cutoff, oldest first
func (r *AuditLogRepository) ListBefore(ctx context.Context, cutoff time.Time, limit, offset int) ([]*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_log
		WHERE occurred_at < $1
		ORDER BY occurred_at
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, cutoff, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}

	return scanAuditRows(rows)
}

// DeleteBefore removes entries older than the cutoff and reports how many
func (r *AuditLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM audit_log WHERE occurred_at < $1`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit entries: %w", err)
	}
	return result.RowsAffected(), nil
}
