package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository defines the interface for admin session data access
type SessionRepository interface {
	Create(ctx context.Context, session *domain.AdminSession) error
	FindByToken(ctx context.Context, token string) (*domain.AdminSession, error)
	MarkDeleted(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new instance of SessionRepository
func NewSessionRepository(db *sql.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// Create stores a new session
func (r *sessionRepository) Create(ctx context.Context, session *domain.AdminSession) error {
	query := `
		INSERT INTO admin_sessions (token, admin_id, email, username, expires_at, created_at, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.Token,
		session.AdminID,
		session.Email,
		session.Username,
		session.ExpiresAt,
		session.CreatedAt,
		session.Deleted,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// FindByToken retrieves a session that has not been deleted
func (r *sessionRepository) FindByToken(ctx context.Context, token string) (*domain.AdminSession, error) {
	query := `
		SELECT token, admin_id, email, username, expires_at, created_at, deleted
		FROM admin_sessions
		WHERE token = $1 AND NOT deleted
	`

	s := &domain.AdminSession{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&s.Token,
		&s.AdminID,
		&s.Email,
		&s.Username,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.Deleted,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return s, nil
}

// MarkDeleted invalidates a session while keeping the record
func (r *sessionRepository) MarkDeleted(ctx context.Context, token string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE admin_sessions SET deleted = TRUE WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return expectOne(result, ErrSessionNotFound)
}

// DeleteExpired removes sessions that expired before now
func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	return result.RowsAffected()
}
