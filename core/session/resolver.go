package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/admin"
	"github.com/trezcool/safiri/core/driver"
	"github.com/trezcool/safiri/core/user"
)

type (
	// Resolver produces exactly one authoritative Session for a client
	// context, reconciling the identity-provider auth-state event stream, a
	// persisted guest record and explicit user actions.
	Resolver interface {
		// Start performs the one-shot optimistic guest restore and subscribes
		// to the provider's auth-state events.
		Start(ctx context.Context) error
		Close()

		State() State
		// Current returns the active Session, if any.
		Current() (Session, bool)
		// IsLoading reports whether a resolution pass is in flight; consumers
		// should treat the Session as unresolved until it returns false.
		IsLoading() bool
		// OnChange registers fn to be called after every settled transition.
		OnChange(fn func(State, *Session)) (unsubscribe func())

		SignUp(ctx context.Context, in SignUpInput) (user.User, error)
		SignIn(ctx context.Context, email, password string, remember bool) (Session, error)
		AdminSignIn(ctx context.Context, email, password string) (Session, error)
		DriverSignIn(ctx context.Context, driverID, password string, remember bool) (Session, error)
		ContinueAsGuest(ctx context.Context) (Session, error)
		SignOut(ctx context.Context) error

		UpdateUserProfile(ctx context.Context, up user.UpdateProfile) (Session, error)
		UpdateDriverProfile(ctx context.Context, ud driver.UpdateDriver) (Session, error)
		ChangeDriverPassword(ctx context.Context, current, next string) error

		SaveCredentials(ctx context.Context, surface Surface, cred RememberedCredential) error
		LoadCredentials(ctx context.Context, surface Surface) (RememberedCredential, error)
		ClearCredentials(ctx context.Context, surface Surface) error
		HasRememberedCredentials(ctx context.Context, surface Surface) (bool, error)
	}

	Deps struct {
		Users    user.Service
		Drivers  driver.Service
		Admins   admin.Service
		Store    ClientStore
		Provider Provider
		Validate *validator.Validate
		Logger   core.Logger
	}

	resolver struct {
		clientID string
		users    user.Service
		drivers  driver.Service
		admins   admin.Service
		store    ClientStore
		provider Provider
		validate *validator.Validate
		logger   core.Logger

		mu           sync.Mutex
		state        State
		current      *Session
		loading      bool
		suspended    bool  // auth events ignored while an operation manages provider accounts itself
		restored     bool  // initial guest restore ran (or the event stream took over)
		resolveErr   error // outcome of the last listener-driven resolution pass
		listeners    map[int]func(State, *Session)
		nextListener int
		unsub        func()
	}
)

var _ Resolver = (*resolver)(nil)

func NewResolver(clientID string, deps Deps) Resolver {
	return &resolver{
		clientID:  clientID,
		users:     deps.Users,
		drivers:   deps.Drivers,
		admins:    deps.Admins,
		store:     deps.Store,
		provider:  deps.Provider,
		validate:  deps.Validate,
		logger:    deps.Logger,
		state:     Unresolved,
		listeners: make(map[int]func(State, *Session)),
	}
}

func (r *resolver) Start(ctx context.Context) error {
	// optimistic local restore: runs at most once, before (and never after)
	// the event stream takes over
	r.mu.Lock()
	restore := !r.restored
	r.restored = true
	r.mu.Unlock()

	if restore {
		if rec, err := r.loadGuestRecord(ctx); err == nil {
			r.setSession(StateGuest, &rec)
		} else if errors.Cause(err) != ErrKeyNotFound {
			r.logger.Error(fmt.Sprintf("restoring guest record: %v", err), err)
		}
	}

	r.unsub = r.provider.Subscribe(r.handleEvent)

	// reconcile immediately when the provider already holds a session
	if acct := r.provider.CurrentAccount(); acct != nil {
		r.handleEvent(Event{Kind: EventSignedIn, Account: acct})
	}
	return nil
}

func (r *resolver) Close() {
	if r.unsub != nil {
		r.unsub()
	}
}

func (r *resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *resolver) Current() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Session{}, false
	}
	return *r.current, true
}

func (r *resolver) IsLoading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

func (r *resolver) OnChange(fn func(State, *Session)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextListener
	r.nextListener++
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// Auth-state event handling

func (r *resolver) handleEvent(evt Event) {
	r.mu.Lock()
	if r.suspended {
		r.mu.Unlock()
		return
	}
	r.restored = true // the event stream takes over from the optimistic restore
	r.mu.Unlock()

	ctx := context.Background()
	switch evt.Kind {
	case EventSignedIn:
		r.resolveAccount(ctx, *evt.Account)
	case EventSignedOut:
		r.resolveSignedOut(ctx)
	}
}

// resolveAccount turns a provider sign-in into an Authenticated Session. The
// guest record is cleared first so a concurrent guest-restore cannot
// re-assert guest state after authentication succeeds.
func (r *resolver) resolveAccount(ctx context.Context, acct Account) {
	if err := r.store.Delete(ctx, r.clientID, guestRecordKey); err != nil {
		r.logger.Error(fmt.Sprintf("clearing guest record: %v", err), err)
	}

	r.setLoading(true)
	sess, err := r.lookupSession(ctx, acct)
	r.setLoading(false)

	if err != nil {
		r.logger.Error(fmt.Sprintf("resolving account %s: %v", acct.ID, err), err)
		r.mu.Lock()
		r.resolveErr = err
		r.mu.Unlock()
		r.setSession(StateSignedOut, nil)
		return
	}

	r.mu.Lock()
	r.resolveErr = nil
	r.mu.Unlock()
	r.setSession(StateAuthenticated, &sess)
}

// lookupSession fetches the profile document for a provider account and
// builds a Session with the role it carries. Drivers without a profile
// document (interrupted provisioning) and pre-provisioned admins are resolved
// from their own collections.
func (r *resolver) lookupSession(ctx context.Context, acct Account) (Session, error) {
	usr, err := r.users.GetByID(ctx, acct.ID)
	switch errors.Cause(err) {
	case nil:
		sess := Session{
			ID:    usr.ID,
			Email: usr.Email,
			Name:  usr.Name,
			Role:  usr.Role,
		}
		switch usr.Role {
		case user.RoleStudent:
			sess.Student = &StudentInfo{
				StudentID:  usr.StudentID,
				Department: usr.Department,
				Level:      usr.Level,
			}
		case user.RoleDriver:
			if drv, derr := r.drivers.GetByID(ctx, acct.ID); derr == nil {
				sess.Driver = driverInfo(drv)
			}
		}
		return sess, nil
	case user.ErrNotFound:
	default:
		return Session{}, errors.Wrap(err, "fetching profile")
	}

	if drv, derr := r.drivers.GetByID(ctx, acct.ID); derr == nil {
		return driverSession(drv), nil
	} else if errors.Cause(derr) != driver.ErrNotFound {
		return Session{}, errors.Wrap(derr, "fetching driver")
	}

	if adm, aerr := r.admins.GetByEmail(ctx, acct.Email); aerr == nil {
		return adminSession(acct, adm), nil
	} else if errors.Cause(aerr) != admin.ErrNotFound {
		return Session{}, errors.Wrap(aerr, "fetching admin")
	}

	return Session{}, ErrNotFound
}

func (r *resolver) resolveSignedOut(ctx context.Context) {
	if rec, err := r.loadGuestRecord(ctx); err == nil {
		r.setSession(StateGuest, &rec)
		return
	} else if errors.Cause(err) != ErrKeyNotFound {
		r.logger.Error(fmt.Sprintf("restoring guest record: %v", err), err)
	}
	r.setSession(StateSignedOut, nil)
}

// Operations

// SignUpInput contains information needed to register a new student account.
type SignUpInput struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	StudentID       string `json:"student_id" validate:"omitempty,alphanum_"`
	Department      string `json:"department"`
	Level           string `json:"level"`
}

func (in *SignUpInput) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	in.Email = core.CleanString(in.Email, true /* lower */)
	in.StudentID = core.CleanString(in.StudentID, true /* lower */)
	in.Department = core.CleanString(in.Department)
	return validate.Struct(in)
}

// SignUp creates an identity-provider account and its profile document, then
// signs the new account back out: registration does not imply login.
func (r *resolver) SignUp(ctx context.Context, in SignUpInput) (user.User, error) {
	if err := in.Validate(r.validate); err != nil {
		return user.User{}, err
	}

	r.setSuspended(true)
	defer r.setSuspended(false)

	acct, err := r.provider.CreateAccount(ctx, in.Email, in.Password, in.Name)
	if err != nil {
		return user.User{}, mapProviderErr(err)
	}

	np := user.NewProfile{
		ID:         acct.ID,
		Name:       in.Name,
		Email:      in.Email,
		Role:       user.RoleStudent,
		StudentID:  in.StudentID,
		Department: in.Department,
		Level:      in.Level,
	}
	usr, err := r.users.Create(ctx, np)
	if err != nil {
		_ = r.provider.SignOut(ctx)
		return user.User{}, errors.Wrap(err, "creating profile")
	}

	if err = r.provider.SignOut(ctx); err != nil {
		r.logger.Error(fmt.Sprintf("signing out after registration: %v", err), err)
	}
	return usr, nil
}

func (r *resolver) SignIn(ctx context.Context, email, password string, remember bool) (Session, error) {
	email = core.CleanString(email, true /* lower */)

	if _, err := r.provider.SignIn(ctx, email, password); err != nil {
		return Session{}, mapProviderErr(err)
	}

	// the auth-state listener performed the transition; surface its outcome
	r.mu.Lock()
	rerr := r.resolveErr
	cur := r.current
	st := r.state
	r.mu.Unlock()

	if rerr != nil {
		return Session{}, rerr
	}
	if st != StateAuthenticated || cur == nil {
		return Session{}, ErrNotFound
	}

	if remember {
		if err := r.SaveCredentials(ctx, SurfaceStudent, RememberedCredential{Email: email, Password: password}); err != nil {
			r.logger.Error(fmt.Sprintf("remembering credentials: %v", err), err)
		}
	} else if err := r.ClearCredentials(ctx, SurfaceStudent); err != nil {
		// unchecking remember-me revokes any previously saved credentials
		r.logger.Error(fmt.Sprintf("clearing remembered credentials: %v", err), err)
	}
	return *cur, nil
}

// AdminSignIn verifies the email against the AdminAccount set after a
// successful provider sign-in; a valid non-admin credential is signed back
// out so it can never grant an admin Session.
func (r *resolver) AdminSignIn(ctx context.Context, email, password string) (Session, error) {
	email = core.CleanString(email, true /* lower */)

	r.setSuspended(true)
	defer r.setSuspended(false)

	acct, err := r.provider.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, mapProviderErr(err)
	}

	adm, err := r.admins.GetByEmail(ctx, email)
	if err != nil {
		_ = r.provider.SignOut(ctx)
		if errors.Cause(err) == admin.ErrNotFound {
			return Session{}, ErrAccessDenied
		}
		return Session{}, errors.Wrap(err, "checking admin account")
	}

	if err = r.store.Delete(ctx, r.clientID, guestRecordKey); err != nil {
		r.logger.Error(fmt.Sprintf("clearing guest record: %v", err), err)
	}

	sess := adminSession(acct, adm)
	r.setSession(StateAuthenticated, &sess)
	return sess, nil
}

// DriverSignIn authenticates against the DriverAccount store, lazily
// provisioning an identity-provider account on first sign-in.
func (r *resolver) DriverSignIn(ctx context.Context, driverID, password string, remember bool) (Session, error) {
	driverID = core.CleanString(driverID, true /* lower */)

	drv, err := r.drivers.Authenticate(ctx, driverID, password)
	if err != nil {
		switch errors.Cause(err) {
		case driver.ErrNotFound:
			return Session{}, ErrDriverNotFound
		case driver.ErrInvalidCredentials:
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, errors.Wrap(err, "authenticating driver")
	}

	r.setSuspended(true)
	defer r.setSuspended(false)

	if !drv.IsProvisioned() {
		acct, cerr := r.provider.CreateAccount(ctx, drv.Email, password, drv.Name)
		if cerr != nil {
			if ProviderCodeOf(cerr) != CodeDuplicateEmail {
				r.logger.Error(fmt.Sprintf("provisioning driver %s: %v", drv.DriverID, cerr), cerr)
				return Session{}, ErrProvisioningFailed
			}
			// a previous partially-failed provisioning left the account
			// behind; sign in with it instead
			if acct, cerr = r.provider.SignIn(ctx, drv.Email, password); cerr != nil {
				r.logger.Error(fmt.Sprintf("provisioning driver %s: %v", drv.DriverID, cerr), cerr)
				return Session{}, ErrProvisioningFailed
			}
		}
		if drv, err = r.drivers.ProvisionIdentity(ctx, drv, acct.ID); err != nil {
			_ = r.provider.SignOut(ctx)
			r.logger.Error(fmt.Sprintf("provisioning driver %s: %v", driverID, err), err)
			return Session{}, ErrProvisioningFailed
		}
	} else if _, serr := r.provider.SignIn(ctx, drv.Email, password); serr != nil {
		// the DriverAccount is the source of truth for driver identity; grant
		// the session keyed on its stored ID when the provider is unreachable
		// or inconsistent
		r.logger.Warn(fmt.Sprintf("provider sign-in for driver %s failed, using stored identity: %v", drv.DriverID, serr), serr)
	}

	if err = r.store.Delete(ctx, r.clientID, guestRecordKey); err != nil {
		r.logger.Error(fmt.Sprintf("clearing guest record: %v", err), err)
	}

	sess := driverSession(drv)
	r.setSession(StateAuthenticated, &sess)

	if remember {
		if err = r.SaveCredentials(ctx, SurfaceDriver, RememberedCredential{DriverID: driverID, Password: password}); err != nil {
			r.logger.Error(fmt.Sprintf("remembering credentials: %v", err), err)
		}
	} else if err = r.ClearCredentials(ctx, SurfaceDriver); err != nil {
		// unchecking remember-me revokes any previously saved credentials
		r.logger.Error(fmt.Sprintf("clearing remembered credentials: %v", err), err)
	}
	return sess, nil
}

// ContinueAsGuest creates a fresh guest record regardless of prior state.
func (r *resolver) ContinueAsGuest(ctx context.Context) (Session, error) {
	sess := newGuestSession()
	data, err := json.Marshal(sess)
	if err != nil {
		return Session{}, errors.Wrap(err, "marshalling guest record")
	}
	if err = r.store.Set(ctx, r.clientID, guestRecordKey, data); err != nil {
		return Session{}, errors.Wrap(err, "persisting guest record")
	}
	r.setSession(StateGuest, &sess)
	return sess, nil
}

func (r *resolver) SignOut(ctx context.Context) error {
	r.mu.Lock()
	departing := r.current
	r.mu.Unlock()

	// delete the guest record before the provider emits its signed-out event
	// so the restore branch cannot re-assert guest state
	if err := r.store.Delete(ctx, r.clientID, guestRecordKey); err != nil {
		r.logger.Error(fmt.Sprintf("clearing guest record: %v", err), err)
	}

	if departing != nil {
		var surface Surface
		switch {
		case departing.IsStudent():
			surface = SurfaceStudent
		case departing.IsDriver():
			surface = SurfaceDriver
		}
		if surface != "" {
			if err := r.ClearCredentials(ctx, surface); err != nil {
				r.logger.Error(fmt.Sprintf("clearing remembered credentials: %v", err), err)
			}
		}
	}

	if err := r.provider.SignOut(ctx); err != nil {
		r.logger.Error(fmt.Sprintf("provider sign-out: %v", err), err)
	}

	// the listener lands here too when a provider session existed; setting it
	// explicitly also covers guest-only and already-signed-out contexts
	r.setSession(StateSignedOut, nil)
	return nil
}

func (r *resolver) UpdateUserProfile(ctx context.Context, up user.UpdateProfile) (Session, error) {
	r.mu.Lock()
	cur := r.current
	st := r.state
	r.mu.Unlock()

	if st != StateAuthenticated || cur == nil {
		return Session{}, ErrNotAuthenticated
	}

	orig, err := r.users.GetByID(ctx, cur.ID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Session{}, ErrNotFound
		}
		return Session{}, errors.Wrap(err, "fetching profile")
	}
	if err = up.Validate(orig, r.validate, r.users); err != nil {
		return Session{}, err
	}

	usr, err := r.users.Update(ctx, cur.ID, up)
	if err != nil {
		return Session{}, errors.Wrap(err, "updating profile")
	}

	sess := *cur
	sess.Email = usr.Email
	sess.Name = usr.Name
	if sess.IsStudent() {
		sess.Student = &StudentInfo{
			StudentID:  usr.StudentID,
			Department: usr.Department,
			Level:      usr.Level,
		}
	}
	r.setSession(StateAuthenticated, &sess)
	return sess, nil
}

func (r *resolver) UpdateDriverProfile(ctx context.Context, ud driver.UpdateDriver) (Session, error) {
	r.mu.Lock()
	cur := r.current
	st := r.state
	r.mu.Unlock()

	if st != StateAuthenticated || cur == nil {
		return Session{}, ErrNotAuthenticated
	}
	if !cur.IsDriver() {
		return Session{}, ErrNotDriver
	}

	orig, err := r.drivers.GetByID(ctx, cur.ID)
	if err != nil {
		if errors.Cause(err) == driver.ErrNotFound {
			return Session{}, ErrDriverNotFound
		}
		return Session{}, errors.Wrap(err, "fetching driver")
	}
	if err = ud.Validate(orig, r.validate, r.drivers); err != nil {
		return Session{}, err
	}

	drv, err := r.drivers.Update(ctx, cur.ID, ud)
	if err != nil {
		return Session{}, errors.Wrap(err, "updating driver")
	}

	if drv.Name != orig.Name && drv.IsProvisioned() {
		if derr := r.provider.UpdateDisplayName(ctx, drv.ID, drv.Name); derr != nil {
			r.logger.Error(fmt.Sprintf("updating provider display name: %v", derr), derr)
		}
	}

	sess := driverSession(drv)
	r.setSession(StateAuthenticated, &sess)
	return sess, nil
}

// ChangeDriverPassword rewrites the DriverAccount password. The identity
// provider's password is intentionally left alone: the provider account is a
// secondary artifact of the driverID/password pair, which is the system of
// record.
func (r *resolver) ChangeDriverPassword(ctx context.Context, current, next string) error {
	r.mu.Lock()
	cur := r.current
	st := r.state
	r.mu.Unlock()

	if st != StateAuthenticated || cur == nil {
		return ErrNotAuthenticated
	}
	if !cur.IsDriver() {
		return ErrNotDriver
	}

	if err := r.drivers.ChangePassword(ctx, cur.Email, current, next); err != nil {
		switch errors.Cause(err) {
		case driver.ErrIncorrectPassword:
			return ErrIncorrectPassword
		case driver.ErrNotFound:
			return ErrDriverNotFound
		}
		return errors.Wrap(err, "changing driver password")
	}
	return nil
}

// Remembered credentials

func (r *resolver) SaveCredentials(ctx context.Context, surface Surface, cred RememberedCredential) error {
	if !surface.valid() {
		return errors.Errorf("unknown login surface %q", surface)
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return errors.Wrap(err, "marshalling credentials")
	}
	return r.store.Set(ctx, r.clientID, credentialsKey(surface), data)
}

func (r *resolver) LoadCredentials(ctx context.Context, surface Surface) (RememberedCredential, error) {
	if !surface.valid() {
		return RememberedCredential{}, errors.Errorf("unknown login surface %q", surface)
	}
	data, err := r.store.Get(ctx, r.clientID, credentialsKey(surface))
	if err != nil {
		return RememberedCredential{}, err
	}
	var cred RememberedCredential
	if err = json.Unmarshal(data, &cred); err != nil {
		return RememberedCredential{}, errors.Wrap(err, "unmarshalling credentials")
	}
	return cred, nil
}

func (r *resolver) ClearCredentials(ctx context.Context, surface Surface) error {
	if !surface.valid() {
		return errors.Errorf("unknown login surface %q", surface)
	}
	return r.store.Delete(ctx, r.clientID, credentialsKey(surface))
}

func (r *resolver) HasRememberedCredentials(ctx context.Context, surface Surface) (bool, error) {
	if _, err := r.LoadCredentials(ctx, surface); err != nil {
		if errors.Cause(err) == ErrKeyNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// internals

func (r *resolver) loadGuestRecord(ctx context.Context) (Session, error) {
	data, err := r.store.Get(ctx, r.clientID, guestRecordKey)
	if err != nil {
		return Session{}, err
	}
	var sess Session
	if err = json.Unmarshal(data, &sess); err != nil {
		return Session{}, errors.Wrap(err, "unmarshalling guest record")
	}
	return sess, nil
}

func (r *resolver) setSession(st State, sess *Session) {
	r.mu.Lock()
	r.state = st
	r.current = sess
	fns := make([]func(State, *Session), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(st, sess)
	}
}

func (r *resolver) setLoading(v bool) {
	r.mu.Lock()
	r.loading = v
	r.mu.Unlock()
}

func (r *resolver) setSuspended(v bool) {
	r.mu.Lock()
	r.suspended = v
	r.mu.Unlock()
}

func driverSession(drv driver.Driver) Session {
	return Session{
		ID:     drv.ID,
		Email:  drv.Email,
		Name:   drv.Name,
		Role:   user.RoleDriver,
		Driver: driverInfo(drv),
	}
}

func driverInfo(drv driver.Driver) *DriverInfo {
	return &DriverInfo{
		DriverID:  drv.DriverID,
		Phone:     drv.Phone,
		ShuttleID: drv.ShuttleID,
		RouteID:   drv.RouteID,
	}
}

func adminSession(acct Account, adm admin.Admin) Session {
	name := adm.Name
	if name == "" {
		name = acct.DisplayName
	}
	return Session{
		ID:    acct.ID,
		Email: adm.Email,
		Name:  name,
		Role:  user.RoleAdmin,
	}
}
