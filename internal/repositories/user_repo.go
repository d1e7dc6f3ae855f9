package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jzupan/clubmgr/internal/database"
	"github.com/jzupan/clubmgr/internal/models"
)

type UserRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db, pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, username, password_hash, role, display_name, active, totp_secret, totp_enabled, created_at`

// scanUserRow populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Role,
		&user.DisplayName, &user.Active, &user.TOTPSecret, &user.TOTPEnabled,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

// scanUserRows iterates through rows and scans each into User models
func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// GetByUsername matches the username exactly; lookups are case-sensitive.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, username))
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY username LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	return scanUserRows(rows)
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()

	if user.Role == "" {
		user.Role = models.RoleReader
	}

	query := `
		INSERT INTO users (id, username, password_hash, role, display_name, active, totp_secret, totp_enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Username, user.PasswordHash, user.Role,
		user.DisplayName, user.Active, user.TOTPSecret, user.TOTPEnabled,
		user.CreatedAt,
	))
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1 WHERE id = $2`

	result, err := r.pool.Exec(ctx, query, passwordHash, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// UpdateTOTP sets the shared secret and enabled flag together so an account
// can never be enabled without a secret.
func (r *UserRepository) UpdateTOTP(ctx context.Context, id, secret string, enabled bool) error {
	query := `UPDATE users SET totp_secret = $1, totp_enabled = $2 WHERE id = $3`

	result, err := r.pool.Exec(ctx, query, secret, enabled, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *UserRepository) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	query := `UPDATE users SET display_name = $1 WHERE id = $2`

	result, err := r.pool.Exec(ctx, query, displayName, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// DisableTOTP clears the second factor and revokes every trusted-device grant
// for the user in one transaction. A grant must never outlive the factor it
// bypasses. Returns the number of grants revoked.
func (r *UserRepository) DisableTOTP(ctx context.Context, id string) (int64, error) {
	var revoked int64

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `UPDATE users SET totp_secret = '', totp_enabled = FALSE WHERE id = $1`, id)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrNotFound
		}

		devices, err := tx.Exec(ctx, `DELETE FROM trusted_devices WHERE user_id = $1`, id)
		if err != nil {
			return database.MapPostgresError(err)
		}
		revoked = devices.RowsAffected()
		return nil
	})

	return revoked, err
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE users SET active = $1 WHERE id = $2`

	result, err := r.pool.Exec(ctx, query, active, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
