package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialExists   = errors.New("credential with this email already exists")
)

// Credential is an identity provider account
type Credential struct {
	UID          uuid.UUID
	Email        string
	PasswordHash string
	Disabled     bool
	LastSignIn   *time.Time
	CreatedAt    time.Time
}

// CredentialRepository defines the interface for identity credential data access
type CredentialRepository interface {
	Create(ctx context.Context, cred *Credential) error
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	TouchSignIn(ctx context.Context, uid uuid.UUID, at time.Time) error
	UpdatePassword(ctx context.Context, uid uuid.UUID, hash string) error
	SetDisabled(ctx context.Context, uid uuid.UUID, disabled bool) error
}

type credentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new instance of CredentialRepository
func NewCredentialRepository(db *sql.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

// Create inserts a new credential
func (r *credentialRepository) Create(ctx context.Context, cred *Credential) error {
	query := `
		INSERT INTO identity_credentials (uid, email, password_hash, disabled, last_sign_in, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		cred.UID,
		cred.Email,
		cred.PasswordHash,
		cred.Disabled,
		cred.LastSignIn,
		cred.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrCredentialExists
		}
		return fmt.Errorf("failed to create credential: %w", err)
	}

	return nil
}

// FindByEmail retrieves a credential by email
func (r *credentialRepository) FindByEmail(ctx context.Context, email string) (*Credential, error) {
	query := `
		SELECT uid, email, password_hash, disabled, last_sign_in, created_at
		FROM identity_credentials
		WHERE email = $1
	`

	c := &Credential{}
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&c.UID,
		&c.Email,
		&c.PasswordHash,
		&c.Disabled,
		&c.LastSignIn,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to find credential by email: %w", err)
	}

	return c, nil
}

// TouchSignIn records a successful sign in
func (r *credentialRepository) TouchSignIn(ctx context.Context, uid uuid.UUID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE identity_credentials SET last_sign_in = $2 WHERE uid = $1`, uid, at)
	if err != nil {
		return fmt.Errorf("failed to record sign in: %w", err)
	}

	return expectOne(result, ErrCredentialNotFound)
}

// UpdatePassword replaces the stored password hash
func (r *credentialRepository) UpdatePassword(ctx context.Context, uid uuid.UUID, hash string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE identity_credentials SET password_hash = $2 WHERE uid = $1`, uid, hash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return expectOne(result, ErrCredentialNotFound)
}

// SetDisabled enables or disables a credential
func (r *credentialRepository) SetDisabled(ctx context.Context, uid uuid.UUID, disabled bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE identity_credentials SET disabled = $2 WHERE uid = $1`, uid, disabled)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}

	return expectOne(result, ErrCredentialNotFound)
}
