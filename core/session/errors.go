package session

import "github.com/pkg/errors"

// Domain errors, independent of whatever codes the identity provider raises.
// Every message is short enough for inline display beside the form that
// triggered it.
var (
	ErrDuplicateEmail     = errors.New("a user with this email already exists")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password is too weak")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrTooManyAttempts    = errors.New("too many sign-in attempts, try again later")
	ErrAccessDenied       = errors.New("access denied")
	ErrDriverNotFound     = errors.New("driver not found")
	ErrProvisioningFailed = errors.New("could not set up driver sign-in")
	ErrIncorrectPassword  = errors.New("current password is incorrect")
	ErrNotAuthenticated   = errors.New("user not authenticated")
	ErrNotDriver          = errors.New("driver session required")
	ErrNotFound           = errors.New("profile not found")
)

// ProviderCode classifies identity-provider failures so the resolver can map
// them to domain errors (and branch on the recoverable ones).
type ProviderCode int

const (
	CodeUnknown ProviderCode = iota
	CodeDuplicateEmail
	CodeInvalidEmail
	CodeWeakPassword
	CodeInvalidCredentials
	CodeAccountDisabled
	CodeTooManyAttempts
	CodeUnavailable
)

type ProviderError struct {
	Code ProviderCode
	Msg  string
}

func NewProviderError(code ProviderCode, msg string) *ProviderError {
	return &ProviderError{Code: code, Msg: msg}
}

func (e *ProviderError) Error() string { return e.Msg }

// ProviderCodeOf extracts the ProviderCode from err, or CodeUnknown.
func ProviderCodeOf(err error) ProviderCode {
	if perr, ok := errors.Cause(err).(*ProviderError); ok {
		return perr.Code
	}
	return CodeUnknown
}

// mapProviderErr converts an identity-provider failure into its domain error.
func mapProviderErr(err error) error {
	switch ProviderCodeOf(err) {
	case CodeDuplicateEmail:
		return ErrDuplicateEmail
	case CodeInvalidEmail:
		return ErrInvalidEmail
	case CodeWeakPassword:
		return ErrWeakPassword
	case CodeInvalidCredentials:
		return ErrInvalidCredentials
	case CodeAccountDisabled:
		return ErrAccountDisabled
	case CodeTooManyAttempts:
		return ErrTooManyAttempts
	default:
		return err
	}
}
