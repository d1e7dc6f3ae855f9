package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jzupan/clubmgr/internal/database"
	"github.com/jzupan/clubmgr/internal/models"
)

// TrustedDeviceRepository handles persistence of remember-device grants
type TrustedDeviceRepository struct {
	pool *pgxpool.Pool
}

// NewTrustedDeviceRepository creates a new TrustedDeviceRepository
func NewTrustedDeviceRepository(db *database.DB) *TrustedDeviceRepository {
	return &TrustedDeviceRepository{pool: db.Pool}
}

const trustedDeviceColumns = `id, user_id, token_hash, user_agent, created_at, expires_at`

func scanTrustedDeviceRow(scanner rowScanner) (*models.TrustedDevice, error) {
	var device models.TrustedDevice

	err := scanner.Scan(
		&device.ID, &device.UserID, &device.TokenHash,
		&device.UserAgent, &device.CreatedAt, &device.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &device, nil
}

// Create stores a new grant. TokenHash must already be the SHA-256 hex of the
// raw token.
func (r *TrustedDeviceRepository) Create(ctx context.Context, device *models.TrustedDevice) (*models.TrustedDevice, error) {
	device.ID = uuid.New().String()
	device.CreatedAt = time.Now()

	query := `
		INSERT INTO trusted_devices (id, user_id, token_hash, user_agent, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + trustedDeviceColumns

	return scanTrustedDeviceRow(r.pool.QueryRow(ctx, query,
		device.ID, device.UserID, device.TokenHash,
		device.UserAgent, device.CreatedAt, device.ExpiresAt,
	))
}

// GetByUserAndHash finds an unexpired grant for the user with the given token
// hash. Returns models.ErrNotFound when there is no live match.
func (r *TrustedDeviceRepository) GetByUserAndHash(ctx context.Context, userID, tokenHash string) (*models.TrustedDevice, error) {
	query := `
		SELECT ` + trustedDeviceColumns + `
		FROM trusted_devices
		WHERE user_id = $1 AND token_hash = $2 AND expires_at > NOW()
	`

	return scanTrustedDeviceRow(r.pool.QueryRow(ctx, query, userID, tokenHash))
}

// DeleteExpired removes grants past their expiry
func (r *TrustedDeviceRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM trusted_devices WHERE expires_at <= NOW()`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
