package repositories

import (
	"context"
	"time"

	"github.com/jzupan/clubmgr/internal/database"
)

// LoginAttemptRepository handles database operations for the failure throttle
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordFailure inserts a failed attempt for the address at the given time
func (r *LoginAttemptRepository) RecordFailure(ctx context.Context, address string, at time.Time) error {
	query := `INSERT INTO login_attempts (address, attempted_at) VALUES ($1, $2)`

	_, err := r.db.Pool.Exec(ctx, query, address, at)
	return err
}

// CountSince returns the number of recorded failures for an address at or
// after the cutoff
func (r *LoginAttemptRepository) CountSince(ctx context.Context, address string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE address = $1 AND attempted_at >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, address, since).Scan(&count)
	return count, err
}

// DeleteBefore removes attempts older than the cutoff for every address
func (r *LoginAttemptRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM login_attempts WHERE attempted_at < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
