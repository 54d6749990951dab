package session

import "context"

// Account is the identity provider's view of a signed-in principal.
type Account struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type EventKind int

const (
	EventSignedIn EventKind = iota
	EventSignedOut
)

// Event is an auth-state change emitted by the identity provider.
// Account is set for EventSignedIn only.
type Event struct {
	Kind    EventKind
	Account *Account
}

// Provider is the external identity capability the resolver reconciles
// against. Implementations represent one client context's provider session
// (its current account plus an auth-state event stream); failures carry a
// *ProviderError so the resolver can map them to domain errors.
type Provider interface {
	// CreateAccount registers a new email/password account. On success the
	// provider session is signed in as the new account and an EventSignedIn
	// is emitted.
	CreateAccount(ctx context.Context, email, password, displayName string) (Account, error)
	SignIn(ctx context.Context, email, password string) (Account, error)
	SignOut(ctx context.Context) error
	// CurrentAccount returns the signed-in account, or nil.
	CurrentAccount() *Account
	UpdateDisplayName(ctx context.Context, accountID, name string) error
	// Subscribe registers fn on the auth-state event stream and returns an
	// unsubscribe func. Events are delivered synchronously, in order.
	Subscribe(fn func(Event)) (unsubscribe func())
}
