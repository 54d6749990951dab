package session

import (
	"context"

	"github.com/pkg/errors"
)

// ErrKeyNotFound is returned by ClientStore.Get for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// ClientStore is a JSON key/value store scoped per client context (the
// server-side equivalent of one browser's local storage). Values are opaque
// JSON blobs; keys are fixed per concern.
type ClientStore interface {
	Get(ctx context.Context, clientID, key string) ([]byte, error)
	Set(ctx context.Context, clientID, key string, value []byte) error
	Delete(ctx context.Context, clientID, key string) error
}

// Fixed client-store keys.
const (
	guestRecordKey = "safiri-guest-session"

	credentialsKeyPrefix = "safiri-"
	credentialsKeySuffix = "-credentials"
)

// Surface identifies a login surface with its own remembered credentials.
// There is deliberately no admin surface: admin credentials are never
// remembered.
type Surface string

const (
	SurfaceStudent Surface = "student"
	SurfaceDriver  Surface = "driver"
)

func (s Surface) valid() bool { return s == SurfaceStudent || s == SurfaceDriver }

func credentialsKey(s Surface) string {
	return credentialsKeyPrefix + string(s) + credentialsKeySuffix
}

// RememberedCredential holds the minimal fields needed to re-populate a login
// form. Storage is opt-in and plaintext; it is cleared on explicit sign-out
// or an explicit "clear saved" action.
type RememberedCredential struct {
	Email    string `json:"email,omitempty"`     // student surface
	DriverID string `json:"driver_id,omitempty"` // driver surface
	Password string `json:"password"`
}
