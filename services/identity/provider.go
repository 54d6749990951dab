package identitysvc

import (
	"context"
	"sync"

	"github.com/trezcool/safiri/core/session"
)

// ClientProvider is one client context's provider session: the signed-in
// account plus a synchronous auth-state event stream.
type ClientProvider struct {
	svc *Service

	mu      sync.Mutex
	current *session.Account
	subs    map[int]func(session.Event)
	nextSub int
}

var _ session.Provider = (*ClientProvider)(nil)

func NewClientProvider(svc *Service) *ClientProvider {
	return &ClientProvider{
		svc:  svc,
		subs: make(map[int]func(session.Event)),
	}
}

func (p *ClientProvider) CreateAccount(ctx context.Context, email, password, displayName string) (session.Account, error) {
	acct, err := p.svc.CreateAccount(ctx, email, password, displayName)
	if err != nil {
		return session.Account{}, err
	}
	p.setCurrent(&acct)
	p.emit(session.Event{Kind: session.EventSignedIn, Account: &acct})
	return acct, nil
}

func (p *ClientProvider) SignIn(ctx context.Context, email, password string) (session.Account, error) {
	acct, err := p.svc.Authenticate(ctx, email, password)
	if err != nil {
		return session.Account{}, err
	}
	p.setCurrent(&acct)
	p.emit(session.Event{Kind: session.EventSignedIn, Account: &acct})
	return acct, nil
}

// SignOut clears the provider session. A no-op (no event) when nothing is
// signed in.
func (p *ClientProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	hadSession := p.current != nil
	p.current = nil
	p.mu.Unlock()

	if hadSession {
		p.emit(session.Event{Kind: session.EventSignedOut})
	}
	return nil
}

func (p *ClientProvider) CurrentAccount() *session.Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	acct := *p.current
	return &acct
}

func (p *ClientProvider) UpdateDisplayName(ctx context.Context, accountID, name string) error {
	if err := p.svc.UpdateDisplayName(ctx, accountID, name); err != nil {
		return err
	}
	p.mu.Lock()
	if p.current != nil && p.current.ID == accountID {
		p.current.DisplayName = name
	}
	p.mu.Unlock()
	return nil
}

func (p *ClientProvider) Subscribe(fn func(session.Event)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

func (p *ClientProvider) setCurrent(acct *session.Account) {
	p.mu.Lock()
	p.current = acct
	p.mu.Unlock()
}

func (p *ClientProvider) emit(evt session.Event) {
	p.mu.Lock()
	fns := make([]func(session.Event), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(evt)
	}
}
