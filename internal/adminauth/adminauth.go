package adminauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/identity"
	"storefront/internal/kv"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrAccountLocked      = errors.New("account is locked")
	ErrDeactivated        = errors.New("account is deactivated")
	ErrInvalidSession     = errors.New("invalid session")
	ErrExpired            = errors.New("session expired")
	ErrNoSession          = errors.New("no session")
	ErrMustChangePassword = errors.New("password change required")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Service implements admin login, session verification and logout. The
// session token lives in the client store; the session record mirrors it
// server side.
type Service struct {
	admins   repository.AdminRepository
	sessions repository.SessionRepository
	provider identity.Provider
	cfg      config.SessionConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new admin session Service
func NewService(
	admins repository.AdminRepository,
	sessions repository.SessionRepository,
	provider identity.Provider,
	cfg config.SessionConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		admins:   admins,
		sessions: sessions,
		provider: provider,
		cfg:      cfg,
		logger:   logger.Named("adminauth"),
		now:      time.Now,
	}
}

// Email maps a username to the identity provider email
func (s *Service) Email(username string) string {
	return strings.ToLower(username) + "@" + s.cfg.AdminEmailDomain
}

// newToken returns an opaque random session token
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Login verifies the credentials of username and stores a new session token
// in store. Accounts with a pending password change get ErrMustChangePassword
// and no session.
func (s *Service) Login(ctx context.Context, store kv.Store, username, password string) (*domain.AdminSession, error) {
	admin, err := s.admins.FindByUsername(ctx, strings.ToLower(username))
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}

	now := s.now()
	if admin.Locked(now) {
		return nil, fmt.Errorf("%w until %s", ErrAccountLocked, admin.LockedUntil.Format(time.RFC3339))
	}
	if !admin.Active {
		return nil, ErrDeactivated
	}

	principal, err := s.provider.SignIn(ctx, s.Email(admin.Username), password)
	if err != nil {
		var authErr *identity.AuthError
		if !errors.As(err, &authErr) {
			return nil, fmt.Errorf("failed to sign in: %w", err)
		}
		if authErr.Code == identity.CodeUserDisabled {
			return nil, ErrDeactivated
		}
		return nil, s.recordFailure(ctx, admin, now)
	}

	if admin.FailedAttempts > 0 || admin.LockedUntil != nil {
		if err := s.admins.ResetFailures(ctx, admin.ID, now); err != nil {
			return nil, err
		}
	}

	if admin.MustChangePassword {
		if err := s.provider.SignOut(ctx, principal.UID); err != nil {
			s.logger.Warn("Identity sign out failed", zap.Error(err))
		}
		return nil, ErrMustChangePassword
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	session := &domain.AdminSession{
		Token:     token,
		AdminID:   admin.ID,
		Email:     principal.Email,
		Username:  admin.Username,
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	if err := store.Set(ctx, kv.KeyAdminSessionToken, session.Token); err != nil {
		return nil, fmt.Errorf("failed to store session token: %w", err)
	}

	s.logger.Info("Admin logged in",
		zap.String("admin_id", admin.ID.String()),
		zap.String("username", admin.Username),
	)
	return session, nil
}

func (s *Service) recordFailure(ctx context.Context, admin *domain.Admin, now time.Time) error {
	updated, err := s.admins.RecordFailure(ctx, admin.ID, s.cfg.MaxFailedAttempts, now.Add(s.cfg.LockoutDuration), now)
	if err != nil {
		return err
	}

	if updated.Locked(now) {
		s.logger.Warn("Admin account locked",
			zap.String("username", updated.Username),
			zap.Time("locked_until", *updated.LockedUntil),
		)
	}
	return ErrInvalidCredentials
}

// Authenticate checks a token presented by the caller against the token held
// in store and then verifies the session. A wrong token leaves the held one
// in place.
func (s *Service) Authenticate(ctx context.Context, store kv.Store, presented string) (*domain.AdminSession, error) {
	if presented == "" {
		return nil, ErrNoSession
	}

	held, err := store.Get(ctx, kv.KeyAdminSessionToken)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("failed to read session token: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(held), []byte(presented)) != 1 {
		return nil, ErrInvalidSession
	}

	return s.VerifySession(ctx, store)
}

// VerifySession returns the session whose token is held in store. An
// unknown or expired token is removed from store.
func (s *Service) VerifySession(ctx context.Context, store kv.Store) (*domain.AdminSession, error) {
	token, err := store.Get(ctx, kv.KeyAdminSessionToken)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session token: %w", err)
	}

	session, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			s.forget(ctx, store)
			return nil, ErrInvalidSession
		}
		return nil, err
	}

	if session.Expired(s.now()) {
		if err := s.sessions.MarkDeleted(ctx, token); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			s.logger.Warn("Failed to delete expired session", zap.Error(err))
		}
		s.forget(ctx, store)
		return nil, ErrExpired
	}

	admin, err := s.admins.FindByID(ctx, session.AdminID)
	if err != nil && !errors.Is(err, repository.ErrAdminNotFound) {
		return nil, err
	}
	if admin == nil || !admin.Active {
		if err := s.Logout(ctx, store); err != nil {
			s.logger.Warn("Failed to log out deactivated admin", zap.Error(err))
		}
		return nil, ErrDeactivated
	}

	return session, nil
}

// Logout deletes the session record, signs out of the identity provider and
// clears the local token. Logging out without a session is a no-op.
func (s *Service) Logout(ctx context.Context, store kv.Store) error {
	token, err := store.Get(ctx, kv.KeyAdminSessionToken)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to read session token: %w", err)
	}

	if session, err := s.sessions.FindByToken(ctx, token); err == nil {
		if err := s.sessions.MarkDeleted(ctx, token); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			return err
		}
		if err := s.provider.SignOut(ctx, session.AdminID); err != nil {
			s.logger.Warn("Identity sign out failed", zap.Error(err))
		}
		s.logger.Info("Admin logged out", zap.String("username", session.Username))
	} else if !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}

	return store.Remove(ctx, kv.KeyAdminSessionToken)
}

func (s *Service) forget(ctx context.Context, store kv.Store) {
	if err := store.Remove(ctx, kv.KeyAdminSessionToken); err != nil {
		s.logger.Warn("Failed to remove session token", zap.Error(err))
	}
}

// CreateAdmin registers an identity for username and creates the admin
// account linked to it.
func (s *Service) CreateAdmin(ctx context.Context, username, password string, mustChangePassword bool) (*domain.Admin, error) {
	principal, err := s.provider.Register(ctx, s.Email(username), password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	admin := &domain.Admin{
		ID:                 principal.UID,
		Username:           strings.ToLower(username),
		Email:              principal.Email,
		Active:             true,
		MustChangePassword: mustChangePassword,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		return nil, err
	}

	s.logger.Info("Admin created", zap.String("username", admin.Username))
	return admin, nil
}

// ChangePassword replaces the password after checking the current one and
// clears the pending change flag.
func (s *Service) ChangePassword(ctx context.Context, username, current, next string) error {
	admin, err := s.admins.FindByUsername(ctx, strings.ToLower(username))
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}

	now := s.now()
	if admin.Locked(now) {
		return ErrAccountLocked
	}
	if !admin.Active {
		return ErrDeactivated
	}

	principal, err := s.provider.SignIn(ctx, s.Email(admin.Username), current)
	if err != nil {
		if identity.IsCode(err, identity.CodeInvalidCredential) || identity.IsCode(err, identity.CodeUserNotFound) {
			return s.recordFailure(ctx, admin, now)
		}
		return err
	}
	if err := s.provider.UpdatePassword(ctx, principal.UID, next); err != nil {
		return err
	}

	admin.MustChangePassword = false
	admin.UpdatedAt = now
	if err := s.admins.Update(ctx, admin); err != nil {
		return err
	}
	return s.admins.ResetFailures(ctx, admin.ID, now)
}

// SetActive activates or deactivates an admin. Sessions of a deactivated
// admin fail their next verification.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Admin, error) {
	admin, err := s.admins.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	admin.Active = active
	admin.UpdatedAt = s.now()
	if err := s.admins.Update(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}

// CleanupExpired deletes session records that expired before now
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now())
}

// RunCleanup deletes expired session records every interval until ctx is
// done
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.CleanupExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Error("Session cleanup failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				s.logger.Info("Expired sessions removed", zap.Int64("count", n))
			}
		}
	}
}

// Bootstrap creates the admin username unless it already exists. The
// account must change its password on first login.
func (s *Service) Bootstrap(ctx context.Context, username, password string) (bool, error) {
	_, err := s.admins.FindByUsername(ctx, strings.ToLower(username))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrAdminNotFound) {
		return false, fmt.Errorf("failed to look up admin: %w", err)
	}

	if _, err := s.CreateAdmin(ctx, username, password, true); err != nil {
		return false, fmt.Errorf("failed to bootstrap admin: %w", err)
	}
	return true, nil
}
