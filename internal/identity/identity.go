package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor for password hashes
const BcryptCost = 10

// Error codes returned in AuthError
const (
	CodeInvalidCredential = "auth/invalid-credential"
	CodeUserDisabled      = "auth/user-disabled"
	CodeUserNotFound      = "auth/user-not-found"
	CodeEmailInUse        = "auth/email-already-in-use"
	CodeWeakPassword      = "auth/weak-password"
)

const minPasswordLength = 8

// AuthError is a rejected identity operation
type AuthError struct {
	Code string
}

func (e *AuthError) Error() string {
	return "identity: " + e.Code
}

// IsCode reports whether err is an AuthError with the given code
func IsCode(err error, code string) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Code == code
}

// Principal is an authenticated identity
type Principal struct {
	UID   uuid.UUID
	Email string
}

// Provider verifies credentials
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Principal, error)
	SignOut(ctx context.Context, uid uuid.UUID) error
	Register(ctx context.Context, email, password string) (*Principal, error)
	UpdatePassword(ctx context.Context, uid uuid.UUID, password string) error
}

type localProvider struct {
	credentials repository.CredentialRepository
	logger      *zap.Logger
	now         func() time.Time
}

// NewLocalProvider creates a Provider backed by bcrypt hashes in the credential store
func NewLocalProvider(credentials repository.CredentialRepository, logger *zap.Logger) Provider {
	return &localProvider{
		credentials: credentials,
		logger:      logger.Named("identity"),
		now:         time.Now,
	}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignIn checks the password for email
func (p *localProvider) SignIn(ctx context.Context, email, password string) (*Principal, error) {
	cred, err := p.credentials.FindByEmail(ctx, normalize(email))
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, &AuthError{Code: CodeUserNotFound}
		}
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, &AuthError{Code: CodeInvalidCredential}
	}

	if cred.Disabled {
		return nil, &AuthError{Code: CodeUserDisabled}
	}

	if err := p.credentials.TouchSignIn(ctx, cred.UID, p.now()); err != nil {
		p.logger.Warn("Failed to record sign in", zap.String("uid", cred.UID.String()), zap.Error(err))
	}

	return &Principal{UID: cred.UID, Email: cred.Email}, nil
}

// SignOut ends the identity session. Local identities keep no server state
// beyond the admin session, so this only records the event.
func (p *localProvider) SignOut(_ context.Context, uid uuid.UUID) error {
	p.logger.Debug("Signed out", zap.String("uid", uid.String()))
	return nil
}

// Register creates a new identity with a hashed password
func (p *localProvider) Register(ctx context.Context, email, password string) (*Principal, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	cred := &repository.Credential{
		UID:          uuid.New(),
		Email:        normalize(email),
		PasswordHash: hash,
		CreatedAt:    p.now(),
	}

	if err := p.credentials.Create(ctx, cred); err != nil {
		if errors.Is(err, repository.ErrCredentialExists) {
			return nil, &AuthError{Code: CodeEmailInUse}
		}
		return nil, err
	}

	return &Principal{UID: cred.UID, Email: cred.Email}, nil
}

// UpdatePassword replaces the password of uid
func (p *localProvider) UpdatePassword(ctx context.Context, uid uuid.UUID, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	if err := p.credentials.UpdatePassword(ctx, uid, hash); err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return &AuthError{Code: CodeUserNotFound}
		}
		return err
	}
	return nil
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", &AuthError{Code: CodeWeakPassword}
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}
