package identitysvc

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/safiri/core"
)

var (
	salt    = []byte("safiri.services.identity.token")
	NowFunc = time.Now // mockable

	// set by NewService
	secretKey                 []byte
	passwordResetTimeoutDelta time.Duration

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeAccountID base64 encodes given account ID for use in reset URLs.
func EncodeAccountID(acct Account) string {
	return base64.RawURLEncoding.EncodeToString([]byte(acct.ID))
}

func decodeAccountID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// MakeToken generates a password reset token for a given account. The token
// embeds the account's password hash and last login so it self-invalidates
// once used.
func MakeToken(acct Account) (string, error) {
	return makeTokenWithTimestamp(acct, numDaysSince2001(NowFunc()))
}

// verifyToken checks that a password reset token for a given account is valid.
func verifyToken(acct Account, token string) error {
	if token == "" {
		return errInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidToken
	}
	tsB32 := parts[0]

	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(tsB32)
	if err != nil {
		return errInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	newToken, err := makeTokenWithTimestamp(acct, ts)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return errInvalidToken
	}

	// check that the timestamp is within limit
	if (numDaysSince2001(time.Now()) - ts) > int(passwordResetTimeoutDelta/(24*time.Hour)) {
		return errTokenExpired
	}
	return nil
}

func makeTokenWithTimestamp(acct Account, ts int) (string, error) {
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.Itoa(ts)))
	sig, err := sign(hashValue(acct, ts))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", tsB32, sig), nil
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func sign(val []byte) (string, error) {
	key := sha256.Sum256(append(salt, secretKey...))
	h := hmac.New(sha256.New, key[:])
	if _, err := h.Write(val); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

func hashValue(acct Account, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(acct.ID)
	val.Write(acct.PasswordHash)
	if !acct.LastLogin.IsZero() {
		val.WriteString(acct.LastLogin.String())
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}

// Password reset flow

// ResetPasswordInput carries the reset form payload; UID and Token come from
// the emailed link.
type ResetPasswordInput struct {
	UID      string `json:"uid" validate:"required"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

// RequestPasswordReset emails a reset link to the account's address. Unknown
// emails return ErrAccountNotFound; callers typically hide that from the
// requester.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	acct, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	go svc.sendPasswordResetMail(acct)
	return nil
}

func (svc *Service) sendPasswordResetMail(acct Account) {
	token, err := MakeToken(acct)
	if err != nil {
		svc.logger.Error("generating reset token: "+err.Error(), err)
		return
	}
	url := fmt.Sprintf("%s/reset-password?uid=%s&token=%s", svc.conf.FrontendBaseURL, EncodeAccountID(acct), token)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: acct.DisplayName, Address: acct.Email}},
		Subject:      "Password Reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			Name string
			URL  string
		}{Name: acct.DisplayName, URL: url},
		BodyStr: fmt.Sprintf("Hi %s,\n\nFollow this link to reset your password: %s", acct.DisplayName, url),
	})
}

// ResetPassword verifies the emailed token and rewrites the password.
func (svc *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	id, err := decodeAccountID(in.UID)
	if err != nil {
		return errInvalidToken
	}
	acct, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrAccountNotFound {
			return errInvalidToken
		}
		return err
	}
	if err = verifyToken(acct, in.Token); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return svc.repo.UpdatePassword(ctx, acct.ID, hash)
}
