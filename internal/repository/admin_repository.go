package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrAdminNotFound      = errors.New("admin not found")
	ErrAdminAlreadyExists = errors.New("admin with this username already exists")
)

// AdminRepository defines the interface for admin account data access
type AdminRepository interface {
	Create(ctx context.Context, admin *domain.Admin) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Admin, error)
	FindByUsername(ctx context.Context, username string) (*domain.Admin, error)
	Update(ctx context.Context, admin *domain.Admin) error
	RecordFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil, now time.Time) (*domain.Admin, error)
	ResetFailures(ctx context.Context, id uuid.UUID, now time.Time) error
}

type adminRepository struct {
	db *sql.DB
}

// NewAdminRepository creates a new instance of AdminRepository
func NewAdminRepository(db *sql.DB) AdminRepository {
	return &adminRepository{db: db}
}

const adminColumns = `id, username, email, active, must_change_password, failed_attempts,
	locked_until, created_at, updated_at`

func scanAdmin(row rowScanner) (*domain.Admin, error) {
	a := &domain.Admin{}
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.Active,
		&a.MustChangePassword,
		&a.FailedAttempts,
		&a.LockedUntil,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

// Create inserts a new admin account
func (r *adminRepository) Create(ctx context.Context, admin *domain.Admin) error {
	query := `INSERT INTO admins (` + adminColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		admin.ID,
		admin.Username,
		admin.Email,
		admin.Active,
		admin.MustChangePassword,
		admin.FailedAttempts,
		admin.LockedUntil,
		admin.CreatedAt,
		admin.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAdminAlreadyExists
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}

	return nil
}

// FindByID retrieves an admin by ID
func (r *adminRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Admin, error) {
	admin, err := scanAdmin(r.db.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to find admin by ID: %w", err)
	}
	return admin, nil
}

// FindByUsername retrieves an admin by username
func (r *adminRepository) FindByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	admin, err := scanAdmin(r.db.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE username = $1`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to find admin by username: %w", err)
	}
	return admin, nil
}

// Update writes the account fields of an admin. Failed attempts and lockout
// are only changed by RecordFailure and ResetFailures.
func (r *adminRepository) Update(ctx context.Context, admin *domain.Admin) error {
	query := `
		UPDATE admins
		SET email = $2, active = $3, must_change_password = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		admin.ID,
		admin.Email,
		admin.Active,
		admin.MustChangePassword,
		admin.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update admin: %w", err)
	}

	return expectOne(result, ErrAdminNotFound)
}

// RecordFailure counts a failed login in a single statement. The attempt
// that reaches maxAttempts sets locked_until and starts the count again.
func (r *adminRepository) RecordFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil, now time.Time) (*domain.Admin, error) {
	query := `
		UPDATE admins
		SET failed_attempts = CASE WHEN failed_attempts + 1 >= $2 THEN 0 ELSE failed_attempts + 1 END,
		    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		    updated_at = $4
		WHERE id = $1
		RETURNING ` + adminColumns

	admin, err := scanAdmin(r.db.QueryRowContext(ctx, query, id, maxAttempts, lockUntil, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to record failed attempt: %w", err)
	}

	return admin, nil
}

// ResetFailures clears the failed attempt count and any lockout
func (r *adminRepository) ResetFailures(ctx context.Context, id uuid.UUID, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE admins SET failed_attempts = 0, locked_until = NULL, updated_at = $2 WHERE id = $1`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("failed to reset failed attempts: %w", err)
	}

	return expectOne(result, ErrAdminNotFound)
}
