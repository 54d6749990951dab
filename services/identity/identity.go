// Package identitysvc is the email/password identity provider backing
// session resolution. It owns provider accounts (credentials, lockout,
// disabled flag) and exposes one ClientProvider per client context.
package identitysvc

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/session"
)

// provider-level password baseline; the registration form enforces the
// stricter application policy on top
const minPasswordLen = 6

var (
	// errors
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
)

type (
	// Account is a provider account row. PasswordHash never leaves this package.
	Account struct {
		ID             string    `json:"id" db:"id"`
		Email          string    `json:"email" db:"email"`
		DisplayName    string    `json:"display_name" db:"display_name"`
		PasswordHash   []byte    `json:"-" db:"password_hash"`
		IsDisabled     bool      `json:"is_disabled" db:"is_disabled"`
		FailedAttempts int       `json:"-" db:"failed_attempts"`
		LockedUntil    time.Time `json:"-" db:"locked_until"`
		CreatedAt      time.Time `json:"created_at" db:"created_at"` // UTC
		UpdatedAt      time.Time `json:"updated_at" db:"updated_at"` // UTC
		LastLogin      time.Time `json:"last_login" db:"last_login"` // UTC
	}

	// GetFilter filters single-account lookups; exactly one field should be set.
	GetFilter struct {
		ID    string
		Email string
	}

	Repository interface {
		CreateAccount(ctx context.Context, acct Account, exec ...core.DBExecutor) (Account, error)
		GetAccount(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Account, error)
		UpdateDisplayName(ctx context.Context, id, name string, exec ...core.DBExecutor) error
		UpdatePassword(ctx context.Context, id string, hash []byte, exec ...core.DBExecutor) error
		SetDisabled(ctx context.Context, id string, disabled bool, exec ...core.DBExecutor) error
		// SetLockout overwrites the failed-attempt counter and lockout deadline.
		SetLockout(ctx context.Context, id string, attempts int, lockedUntil time.Time, exec ...core.DBExecutor) error
		SetLastLogin(ctx context.Context, id string, t time.Time, exec ...core.DBExecutor) error
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	secretKey = conf.SecretKey
	passwordResetTimeoutDelta = conf.PasswordResetTimeoutDelta
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

func (svc *Service) CreateAccount(ctx context.Context, email, password, displayName string) (session.Account, error) {
	email = core.CleanString(email, true /* lower */)
	if _, err := mail.ParseAddress(email); err != nil {
		return session.Account{}, session.NewProviderError(session.CodeInvalidEmail, "invalid email address")
	}
	if len(password) < minPasswordLen {
		return session.Account{}, session.NewProviderError(session.CodeWeakPassword, "password is too weak")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return session.Account{}, errors.Wrap(err, "hashing password")
	}

	now := time.Now().UTC()
	acct := Account{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  core.CleanString(displayName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLogin:    now,
	}
	if acct, err = svc.repo.CreateAccount(ctx, acct); err != nil {
		if errors.Cause(err) == ErrEmailTaken {
			return session.Account{}, session.NewProviderError(session.CodeDuplicateEmail, err.Error())
		}
		return session.Account{}, session.NewProviderError(session.CodeUnavailable, err.Error())
	}
	return providerAccount(acct), nil
}

func (svc *Service) Authenticate(ctx context.Context, email, password string) (session.Account, error) {
	email = core.CleanString(email, true /* lower */)

	acct, err := svc.repo.GetAccount(ctx, GetFilter{Email: email})
	if err != nil {
		if errors.Cause(err) == ErrAccountNotFound {
			return session.Account{}, session.NewProviderError(session.CodeInvalidCredentials, "invalid credentials")
		}
		return session.Account{}, session.NewProviderError(session.CodeUnavailable, err.Error())
	}

	if acct.IsDisabled {
		return session.Account{}, session.NewProviderError(session.CodeAccountDisabled, "account disabled")
	}

	now := time.Now().UTC()
	if acct.LockedUntil.After(now) {
		return session.Account{}, session.NewProviderError(session.CodeTooManyAttempts, "too many sign-in attempts")
	}

	if err = bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		svc.recordFailedAttempt(ctx, acct, now)
		return session.Account{}, session.NewProviderError(session.CodeInvalidCredentials, "invalid credentials")
	}

	if acct.FailedAttempts > 0 || !acct.LockedUntil.IsZero() {
		if err = svc.repo.SetLockout(ctx, acct.ID, 0, time.Time{}); err != nil {
			svc.logger.Error("resetting lockout: "+err.Error(), err)
		}
	}
	if err = svc.repo.SetLastLogin(ctx, acct.ID, now); err != nil {
		svc.logger.Error("setting lastLogin: "+err.Error(), err)
	}
	return providerAccount(acct), nil
}

func (svc *Service) recordFailedAttempt(ctx context.Context, acct Account, now time.Time) {
	attempts := acct.FailedAttempts + 1
	lockedUntil := acct.LockedUntil
	if attempts >= svc.conf.Auth.MaxLoginAttempts {
		lockedUntil = now.Add(svc.conf.Auth.LockoutPeriod)
		attempts = 0
	}
	if err := svc.repo.SetLockout(ctx, acct.ID, attempts, lockedUntil); err != nil {
		svc.logger.Error("recording failed attempt: "+err.Error(), err)
	}
}

func (svc *Service) GetByID(ctx context.Context, id string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) UpdateDisplayName(ctx context.Context, id, name string) error {
	return svc.repo.UpdateDisplayName(ctx, id, core.CleanString(name))
}

// SetDisabled exists for ops tooling; a disabled account fails sign-in with
// CodeAccountDisabled until re-enabled.
func (svc *Service) SetDisabled(ctx context.Context, email string, disabled bool) error {
	acct, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return svc.repo.SetDisabled(ctx, acct.ID, disabled)
}

func providerAccount(acct Account) session.Account {
	return session.Account{
		ID:          acct.ID,
		Email:       acct.Email,
		DisplayName: acct.DisplayName,
	}
}
