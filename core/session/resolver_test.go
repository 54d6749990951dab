package session_test

import (
	"context"
	"log"
	"net/mail"
	"os"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/admin"
	"github.com/trezcool/safiri/core/driver"
	"github.com/trezcool/safiri/core/session"
	"github.com/trezcool/safiri/core/user"
	emailsvc "github.com/trezcool/safiri/services/email"
	identitysvc "github.com/trezcool/safiri/services/identity"
	logsvc "github.com/trezcool/safiri/services/logger"
	"github.com/trezcool/safiri/storage/clientstore"
	inmemdb "github.com/trezcool/safiri/storage/database/inmem"
)

var ctx = context.Background()

type testEnv struct {
	conf     *core.Config
	db       *inmemdb.DB
	store    session.ClientStore
	users    user.Service
	drivers  driver.Service
	admins   admin.Service
	idSvc    *identitysvc.Service
	provider *identitysvc.ClientProvider
	validate *validator.Validate
	logger   core.Logger
}

func newTestEnv() *testEnv {
	conf := &core.Config{
		TestMode:                  true,
		AppName:                   "Safiri",
		SecretKey:                 []byte("secret"),
		WorkDir:                   "../..", // repo root, for the common-passwords asset
		DefaultFromEmail:          mail.Address{Name: "Safiri", Address: "noreply@safiri.test"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}
	conf.Auth.MaxLoginAttempts = 3
	conf.Auth.LockoutPeriod = 10 * time.Minute

	enLoc := en.New()
	uni := ut.New(enLoc, enLoc)
	trans, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, trans)
	user.InitValidators(validate, trans)
	driver.InitValidators(validate, trans)
	session.InitValidators(validate, trans, conf.WorkDir)

	logger := logsvc.NewConsoleLogger(log.New(os.Stdout, "TEST : ", 0))
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	users := user.NewService(usrRepo)
	drivers := driver.NewService(inmemdb.NewFakeDB(), inmemdb.NewDriverRepository(db), usrRepo, driver.NewBcryptHasher(), mailSvc, conf)
	admins := admin.NewService(inmemdb.NewAdminRepository(db))
	idSvc := identitysvc.NewService(inmemdb.NewAccountRepository(db), mailSvc, logger, conf)

	return &testEnv{
		conf:     conf,
		db:       db,
		store:    clientstore.NewInmemStore(),
		users:    users,
		drivers:  drivers,
		admins:   admins,
		idSvc:    idSvc,
		provider: identitysvc.NewClientProvider(idSvc),
		validate: validate,
		logger:   logger,
	}
}

func (env *testEnv) newResolver(t *testing.T, clientID string) session.Resolver {
	t.Helper()
	res := session.NewResolver(clientID, session.Deps{
		Users:    env.users,
		Drivers:  env.drivers,
		Admins:   env.admins,
		Store:    env.store,
		Provider: env.provider,
		Validate: env.validate,
		Logger:   env.logger,
	})
	if err := res.Start(ctx); err != nil {
		t.Fatalf("Start(): %v", err)
	}
	t.Cleanup(res.Close)
	return res
}

func (env *testEnv) signUpStudent(t *testing.T, res session.Resolver, name, email, password string) user.User {
	t.Helper()
	usr, err := res.SignUp(ctx, session.SignUpInput{
		Name:            name,
		Email:           email,
		Password:        password,
		PasswordConfirm: password,
		StudentID:       "st001",
		Department:      "Engineering",
		Level:           "L3",
	})
	if err != nil {
		t.Fatalf("SignUp(): %v", err)
	}
	return usr
}

func (env *testEnv) createDriver(t *testing.T, driverID, email, password string) driver.Driver {
	t.Helper()
	drv, err := env.drivers.Create(ctx, driver.NewDriver{
		DriverID: driverID,
		Name:     "Test Driver",
		Email:    email,
		Phone:    "+254700000000",
		Password: password,
	})
	if err != nil {
		t.Fatalf("drivers.Create(): %v", err)
	}
	return drv
}

func (env *testEnv) createAdmin(t *testing.T, name, email, password string) {
	t.Helper()
	if _, err := env.idSvc.CreateAccount(ctx, email, password, name); err != nil {
		t.Fatalf("CreateAccount(): %v", err)
	}
	if _, err := inmemdb.NewAdminRepository(env.db).CreateAdmin(ctx, admin.Admin{
		Email:     email,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("CreateAdmin(): %v", err)
	}
}

const strongPwd = "s3cur3-Pass!"

func TestResolverStartsUnresolvedWithoutRecord(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")

	if got := res.State(); got != session.Unresolved {
		t.Errorf("State() = %v, want unresolved", got)
	}
	if _, ok := res.Current(); ok {
		t.Error("Current() returned a session, want none")
	}
}

func TestContinueAsGuestPersistsAcrossResolvers(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")

	sess, err := res.ContinueAsGuest(ctx)
	if err != nil {
		t.Fatalf("ContinueAsGuest(): %v", err)
	}
	if res.State() != session.StateGuest {
		t.Errorf("State() = %v, want guest", res.State())
	}
	if !sess.IsGuest() {
		t.Errorf("Role = %q, want guest", sess.Role)
	}

	// a new resolver for the same client restores the same guest record
	res2 := env.newResolver(t, "client-1")
	if res2.State() != session.StateGuest {
		t.Fatalf("State() = %v, want guest", res2.State())
	}
	restored, ok := res2.Current()
	if !ok {
		t.Fatal("Current() returned no session")
	}
	if restored.ID != sess.ID {
		t.Errorf("restored ID = %q, want %q", restored.ID, sess.ID)
	}

	// a different client context sees nothing
	res3 := env.newResolver(t, "client-2")
	if res3.State() != session.Unresolved {
		t.Errorf("State() = %v, want unresolved", res3.State())
	}
}

func TestSignUpDoesNotChangeSessionState(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	guest, _ := res.ContinueAsGuest(ctx)

	usr := env.signUpStudent(t, res, "Jane Doe", "jane@uni.test", strongPwd)
	if !usr.IsStudent() {
		t.Errorf("Role = %q, want student", usr.Role)
	}
	if usr.ID == "" {
		t.Error("profile ID not set")
	}

	// registration signs the new account back out; the guest session survives
	if res.State() != session.StateGuest {
		t.Errorf("State() = %v, want guest", res.State())
	}
	cur, _ := res.Current()
	if cur.ID != guest.ID {
		t.Errorf("Current().ID = %q, want guest %q", cur.ID, guest.ID)
	}
	if acct := env.provider.CurrentAccount(); acct != nil {
		t.Errorf("provider still signed in as %q", acct.Email)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.signUpStudent(t, res, "Jane Doe", "jane@uni.test", strongPwd)

	_, err := res.SignUp(ctx, session.SignUpInput{
		Name:            "Jane Again",
		Email:           "jane@uni.test",
		Password:        strongPwd,
		PasswordConfirm: strongPwd,
	})
	if err != session.ErrDuplicateEmail {
		t.Errorf("SignUp() error = %v, want %v", err, session.ErrDuplicateEmail)
	}
}

func TestSignUpPasswordPolicy(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")

	tests := []struct {
		name string
		pwd  string
	}{
		{name: "too short", pwd: "aB1!"},
		{name: "whitespace", pwd: "aB1! aB1!"},
		{name: "all numeric", pwd: "123456789"},
		{name: "no complexity", pwd: "abcdefghij"},
		{name: "similar to email", pwd: "jane@uni.test1"},
		{name: "too common", pwd: "P@ssw0rd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := res.SignUp(ctx, session.SignUpInput{
				Name:            "Jane Doe",
				Email:           "jane@uni.test",
				Password:        tt.pwd,
				PasswordConfirm: tt.pwd,
			})
			if err == nil {
				t.Errorf("SignUp() accepted password %q", tt.pwd)
			}
		})
	}
}

func TestSignInResolvesStudentSession(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	res.ContinueAsGuest(ctx)
	env.signUpStudent(t, res, "Jane Doe", "jane@uni.test", strongPwd)

	sess, err := res.SignIn(ctx, "jane@uni.test", strongPwd, false)
	if err != nil {
		t.Fatalf("SignIn(): %v", err)
	}
	if res.State() != session.StateAuthenticated {
		t.Errorf("State() = %v, want authenticated", res.State())
	}
	if !sess.IsStudent() {
		t.Errorf("Role = %q, want student", sess.Role)
	}
	if sess.Student == nil || sess.Student.StudentID != "st001" {
		t.Errorf("Student info = %+v, want student_id st001", sess.Student)
	}
	if sess.Driver != nil {
		t.Error("student session carries driver info")
	}

	// the authenticated transition cleared the guest record
	res2 := env.newResolver(t, "client-1")
	if res2.State() == session.StateGuest {
		t.Error("guest record survived an authenticated transition")
	}
}

func TestSignInInvalidCredentials(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.signUpStudent(t, res, "Jane Doe", "jane@uni.test", strongPwd)

	if _, err := res.SignIn(ctx, "jane@uni.test", "wrong-pass", false); err != session.ErrInvalidCredentials {
		t.Errorf("SignIn() error = %v, want %v", err, session.ErrInvalidCredentials)
	}
	if _, err := res.SignIn(ctx, "nobody@uni.test", strongPwd, false); err != session.ErrInvalidCredentials {
		t.Errorf("SignIn() error = %v, want %v", err, session.ErrInvalidCredentials)
	}
}

func TestSignInLockoutAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.signUpStudent(t, res, "Jane Doe", "jane@uni.test", strongPwd)

	for i := 0; i < env.conf.Auth.MaxLoginAttempts; i++ {
		if _, err := res.SignIn(ctx, "jane@uni.test", "wrong-pass", false); err != session.ErrInvalidCredentials {
			t.Fatalf("attempt %d: error = %v, want %v", i+1, err, session.ErrInvalidCredentials)
		}
	}
	// even the correct password is rejected while locked out
	if _, err := res.SignIn(ctx, "jane@uni.test", strongPwd, false); err != session.ErrTooManyAttempts {
		t.Errorf("SignIn() error = %v, want %v", err, session.ErrTooManyAttempts)
	}
}

func TestSignInDisabledAccount(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.signUpStudent(t, res, "Jane Doe", "jane@uni.test", strongPwd)

	if err := env.idSvc.SetDisabled(ctx, "jane@uni.test", true); err != nil {
		t.Fatalf("SetDisabled(): %v", err)
	}
	if _, err := res.SignIn(ctx, "jane@uni.test", strongPwd, false); err != session.ErrAccountDisabled {
		t.Errorf("SignIn() error = %v, want %v", err, session.ErrAccountDisabled)
	}
}

func TestSignInRemembersCredentials(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.signUpStudent(t, res, "Jane Doe", "jane@uni.test", strongPwd)

	if _, err := res.SignIn(ctx, "jane@uni.test", strongPwd, true); err != nil {
		t.Fatalf("SignIn(): %v", err)
	}

	ok, err := res.HasRememberedCredentials(ctx, session.SurfaceStudent)
	if err != nil || !ok {
		t.Fatalf("HasRememberedCredentials() = %v, %v; want true", ok, err)
	}
	cred, err := res.LoadCredentials(ctx, session.SurfaceStudent)
	if err != nil {
		t.Fatalf("LoadCredentials(): %v", err)
	}
	if cred.Email != "jane@uni.test" || cred.Password != strongPwd {
		t.Errorf("LoadCredentials() = %+v", cred)
	}

	// the driver surface is untouched
	if ok, _ = res.HasRememberedCredentials(ctx, session.SurfaceDriver); ok {
		t.Error("driver surface has credentials")
	}
}

func TestSignInWithoutRememberClearsSavedCredentials(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.signUpStudent(t, res, "Jane Doe", "jane@uni.test", strongPwd)

	if _, err := res.SignIn(ctx, "jane@uni.test", strongPwd, true); err != nil {
		t.Fatalf("SignIn(): %v", err)
	}
	if ok, err := res.HasRememberedCredentials(ctx, session.SurfaceStudent); err != nil || !ok {
		t.Fatalf("HasRememberedCredentials() = %v, %v; want true", ok, err)
	}

	// unchecking remember-me on the next sign-in revokes the saved credentials
	if _, err := res.SignIn(ctx, "jane@uni.test", strongPwd, false); err != nil {
		t.Fatalf("SignIn(): %v", err)
	}
	if ok, err := res.HasRememberedCredentials(ctx, session.SurfaceStudent); err != nil || ok {
		t.Errorf("HasRememberedCredentials() = %v, %v; want false", ok, err)
	}
}

func TestDriverSignInWithoutRememberClearsSavedCredentials(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.createDriver(t, "drv-7", "drv7@uni.test", "busdriver1")

	if _, err := res.DriverSignIn(ctx, "drv-7", "busdriver1", true); err != nil {
		t.Fatalf("DriverSignIn(): %v", err)
	}
	if ok, err := res.HasRememberedCredentials(ctx, session.SurfaceDriver); err != nil || !ok {
		t.Fatalf("HasRememberedCredentials() = %v, %v; want true", ok, err)
	}

	if _, err := res.DriverSignIn(ctx, "drv-7", "busdriver1", false); err != nil {
		t.Fatalf("DriverSignIn(): %v", err)
	}
	if ok, err := res.HasRememberedCredentials(ctx, session.SurfaceDriver); err != nil || ok {
		t.Errorf("HasRememberedCredentials() = %v, %v; want false", ok, err)
	}
}

func TestAdminSignIn(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.createAdmin(t, "Ops Admin", "ops@uni.test", strongPwd)

	sess, err := res.AdminSignIn(ctx, "ops@uni.test", strongPwd)
	if err != nil {
		t.Fatalf("AdminSignIn(): %v", err)
	}
	if !sess.IsAdmin() {
		t.Errorf("Role = %q, want admin", sess.Role)
	}
	if res.State() != session.StateAuthenticated {
		t.Errorf("State() = %v, want authenticated", res.State())
	}

	// admin credentials are never remembered
	if ok, _ := res.HasRememberedCredentials(ctx, session.SurfaceStudent); ok {
		t.Error("student surface has credentials after admin sign-in")
	}
	if ok, _ := res.HasRememberedCredentials(ctx, session.SurfaceDriver); ok {
		t.Error("driver surface has credentials after admin sign-in")
	}
}

func TestAdminSignInRejectsNonAdmins(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	res.ContinueAsGuest(ctx)
	env.signUpStudent(t, res, "Jane Doe", "jane@uni.test", strongPwd)

	if _, err := res.AdminSignIn(ctx, "jane@uni.test", strongPwd); err != session.ErrAccessDenied {
		t.Fatalf("AdminSignIn() error = %v, want %v", err, session.ErrAccessDenied)
	}
	// the valid credential was signed back out and the prior state kept
	if acct := env.provider.CurrentAccount(); acct != nil {
		t.Errorf("provider still signed in as %q", acct.Email)
	}
	if res.State() != session.StateGuest {
		t.Errorf("State() = %v, want guest", res.State())
	}
}

// First driver sign-in: authenticate against the DriverAccount, provision a
// provider account, migrate the synthetic ID and write the profile document.
func TestDriverSignInProvisionsOnFirstUse(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	created := env.createDriver(t, "drv-7", "driver7@uni.test", "busdriver1")

	if created.IsProvisioned() {
		t.Fatalf("new driver already provisioned: %q", created.ID)
	}

	sess, err := res.DriverSignIn(ctx, "drv-7", "busdriver1", true)
	if err != nil {
		t.Fatalf("DriverSignIn(): %v", err)
	}
	if !sess.IsDriver() {
		t.Errorf("Role = %q, want driver", sess.Role)
	}
	if sess.Driver == nil || sess.Driver.DriverID != "drv-7" {
		t.Errorf("Driver info = %+v, want driver_id drv-7", sess.Driver)
	}

	// the DriverAccount now carries the provider-assigned ID
	drv, err := env.drivers.GetByDriverID(ctx, "drv-7")
	if err != nil {
		t.Fatalf("GetByDriverID(): %v", err)
	}
	if !drv.IsProvisioned() {
		t.Errorf("driver not provisioned, ID = %q", drv.ID)
	}
	acct := env.provider.CurrentAccount()
	if acct == nil {
		t.Fatal("provider has no session")
	}
	if drv.ID != acct.ID {
		t.Errorf("driver ID = %q, provider account ID = %q", drv.ID, acct.ID)
	}

	// the profile document exists with the driver role
	prof, err := env.users.GetByID(ctx, drv.ID)
	if err != nil {
		t.Fatalf("users.GetByID(): %v", err)
	}
	if !prof.IsDriver() {
		t.Errorf("profile role = %q, want driver", prof.Role)
	}

	// remembered on the driver surface
	cred, err := res.LoadCredentials(ctx, session.SurfaceDriver)
	if err != nil {
		t.Fatalf("LoadCredentials(): %v", err)
	}
	if cred.DriverID != "drv-7" || cred.Password != "busdriver1" {
		t.Errorf("LoadCredentials() = %+v", cred)
	}
}

// A second sign-in must not provision again: same account, stable session.
func TestDriverSignInIsIdempotent(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.createDriver(t, "drv-7", "driver7@uni.test", "busdriver1")

	first, err := res.DriverSignIn(ctx, "drv-7", "busdriver1", false)
	if err != nil {
		t.Fatalf("first DriverSignIn(): %v", err)
	}
	if err = res.SignOut(ctx); err != nil {
		t.Fatalf("SignOut(): %v", err)
	}

	second, err := res.DriverSignIn(ctx, "drv-7", "busdriver1", false)
	if err != nil {
		t.Fatalf("second DriverSignIn(): %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("session IDs differ across sign-ins: %q vs %q", first.ID, second.ID)
	}
}

func TestDriverSignInErrors(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.createDriver(t, "drv-7", "driver7@uni.test", "busdriver1")

	if _, err := res.DriverSignIn(ctx, "unknown", "busdriver1", false); err != session.ErrDriverNotFound {
		t.Errorf("DriverSignIn() error = %v, want %v", err, session.ErrDriverNotFound)
	}
	if _, err := res.DriverSignIn(ctx, "drv-7", "wrong-pass", false); err != session.ErrInvalidCredentials {
		t.Errorf("DriverSignIn() error = %v, want %v", err, session.ErrInvalidCredentials)
	}
}

// A provider account left behind by a partially-failed provisioning is picked
// up by signing in instead of erroring on the duplicate email.
func TestDriverSignInRecoversFromPartialProvisioning(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.createDriver(t, "drv-7", "driver7@uni.test", "busdriver1")

	// simulate the leftover account of an interrupted first sign-in
	leftover, err := env.idSvc.CreateAccount(ctx, "driver7@uni.test", "busdriver1", "Test Driver")
	if err != nil {
		t.Fatalf("CreateAccount(): %v", err)
	}

	sess, err := res.DriverSignIn(ctx, "drv-7", "busdriver1", false)
	if err != nil {
		t.Fatalf("DriverSignIn(): %v", err)
	}
	if sess.ID != leftover.ID {
		t.Errorf("session ID = %q, want leftover account %q", sess.ID, leftover.ID)
	}
	drv, _ := env.drivers.GetByDriverID(ctx, "drv-7")
	if drv.ID != leftover.ID {
		t.Errorf("driver ID = %q, want %q", drv.ID, leftover.ID)
	}
}

// failingProvider errors on every account operation; used to verify the
// DriverAccount fallback when the provider is unreachable.
type failingProvider struct{}

var _ session.Provider = (*failingProvider)(nil)

func (failingProvider) CreateAccount(context.Context, string, string, string) (session.Account, error) {
	return session.Account{}, session.NewProviderError(session.CodeUnavailable, "provider unavailable")
}
func (failingProvider) SignIn(context.Context, string, string) (session.Account, error) {
	return session.Account{}, session.NewProviderError(session.CodeUnavailable, "provider unavailable")
}
func (failingProvider) SignOut(context.Context) error       { return nil }
func (failingProvider) CurrentAccount() *session.Account    { return nil }
func (failingProvider) Subscribe(func(session.Event)) func() { return func() {} }
func (failingProvider) UpdateDisplayName(context.Context, string, string) error {
	return session.NewProviderError(session.CodeUnavailable, "provider unavailable")
}

func TestDriverSignInFallsBackWhenProviderDown(t *testing.T) {
	env := newTestEnv()
	created := env.createDriver(t, "drv-7", "driver7@uni.test", "busdriver1")

	// already provisioned: the stored identity is authoritative
	drv, err := env.drivers.ProvisionIdentity(ctx, created, "acct-1")
	if err != nil {
		t.Fatalf("ProvisionIdentity(): %v", err)
	}

	res := session.NewResolver("client-1", session.Deps{
		Users:    env.users,
		Drivers:  env.drivers,
		Admins:   env.admins,
		Store:    env.store,
		Provider: failingProvider{},
		Validate: env.validate,
		Logger:   env.logger,
	})
	if err = res.Start(ctx); err != nil {
		t.Fatalf("Start(): %v", err)
	}
	defer res.Close()

	sess, err := res.DriverSignIn(ctx, "drv-7", "busdriver1", false)
	if err != nil {
		t.Fatalf("DriverSignIn(): %v", err)
	}
	if sess.ID != drv.ID {
		t.Errorf("session ID = %q, want stored %q", sess.ID, drv.ID)
	}
	if res.State() != session.StateAuthenticated {
		t.Errorf("State() = %v, want authenticated", res.State())
	}

	// an unprovisioned driver cannot be provisioned while the provider is down
	env.createDriver(t, "drv-8", "driver8@uni.test", "busdriver2")
	if _, err = res.DriverSignIn(ctx, "drv-8", "busdriver2", false); err != session.ErrProvisioningFailed {
		t.Errorf("DriverSignIn() error = %v, want %v", err, session.ErrProvisioningFailed)
	}
}

func TestSignOutClearsDepartingRoleOnly(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.signUpStudent(t, res, "Jane Doe", "jane@uni.test", strongPwd)

	// pre-existing driver credentials on the same client
	if err := res.SaveCredentials(ctx, session.SurfaceDriver, session.RememberedCredential{DriverID: "drv-7", Password: "busdriver1"}); err != nil {
		t.Fatalf("SaveCredentials(): %v", err)
	}

	if _, err := res.SignIn(ctx, "jane@uni.test", strongPwd, true); err != nil {
		t.Fatalf("SignIn(): %v", err)
	}
	if err := res.SignOut(ctx); err != nil {
		t.Fatalf("SignOut(): %v", err)
	}

	if res.State() != session.StateSignedOut {
		t.Errorf("State() = %v, want signed-out", res.State())
	}
	if _, ok := res.Current(); ok {
		t.Error("Current() returned a session after sign-out")
	}
	if ok, _ := res.HasRememberedCredentials(ctx, session.SurfaceStudent); ok {
		t.Error("student credentials survived sign-out")
	}
	if ok, _ := res.HasRememberedCredentials(ctx, session.SurfaceDriver); !ok {
		t.Error("driver credentials were cleared by a student sign-out")
	}
}

func TestSignOutFromGuest(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	res.ContinueAsGuest(ctx)

	if err := res.SignOut(ctx); err != nil {
		t.Fatalf("SignOut(): %v", err)
	}
	if res.State() != session.StateSignedOut {
		t.Errorf("State() = %v, want signed-out", res.State())
	}
	// the guest record is gone for good
	res2 := env.newResolver(t, "client-1")
	if res2.State() == session.StateGuest {
		t.Error("guest record survived sign-out")
	}
}

func TestContinueAsGuestFromAnyState(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.signUpStudent(t, res, "Jane Doe", "jane@uni.test", strongPwd)
	if _, err := res.SignIn(ctx, "jane@uni.test", strongPwd, false); err != nil {
		t.Fatalf("SignIn(): %v", err)
	}

	sess, err := res.ContinueAsGuest(ctx)
	if err != nil {
		t.Fatalf("ContinueAsGuest(): %v", err)
	}
	if res.State() != session.StateGuest {
		t.Errorf("State() = %v, want guest", res.State())
	}
	if !sess.IsGuest() {
		t.Errorf("Role = %q, want guest", sess.Role)
	}
}

func TestUpdateUserProfile(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")

	if _, err := res.UpdateUserProfile(ctx, user.UpdateProfile{Department: "Science"}); err != session.ErrNotAuthenticated {
		t.Errorf("UpdateUserProfile() error = %v, want %v", err, session.ErrNotAuthenticated)
	}

	env.signUpStudent(t, res, "Jane Doe", "jane@uni.test", strongPwd)
	if _, err := res.SignIn(ctx, "jane@uni.test", strongPwd, false); err != nil {
		t.Fatalf("SignIn(): %v", err)
	}

	sess, err := res.UpdateUserProfile(ctx, user.UpdateProfile{Department: "Science"})
	if err != nil {
		t.Fatalf("UpdateUserProfile(): %v", err)
	}
	if sess.Student == nil || sess.Student.Department != "Science" {
		t.Errorf("Student info = %+v, want department Science", sess.Student)
	}
	// untouched fields kept their values
	if sess.Student.StudentID != "st001" {
		t.Errorf("StudentID = %q, want st001", sess.Student.StudentID)
	}
}

func TestUpdateDriverProfile(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.createDriver(t, "drv-7", "driver7@uni.test", "busdriver1")

	// student sessions may not touch driver accounts
	env.signUpStudent(t, res, "Jane Doe", "jane@uni.test", strongPwd)
	if _, err := res.SignIn(ctx, "jane@uni.test", strongPwd, false); err != nil {
		t.Fatalf("SignIn(): %v", err)
	}
	if _, err := res.UpdateDriverProfile(ctx, driver.UpdateDriver{Name: "New Name"}); err != session.ErrNotDriver {
		t.Errorf("UpdateDriverProfile() error = %v, want %v", err, session.ErrNotDriver)
	}

	if _, err := res.DriverSignIn(ctx, "drv-7", "busdriver1", false); err != nil {
		t.Fatalf("DriverSignIn(): %v", err)
	}
	sess, err := res.UpdateDriverProfile(ctx, driver.UpdateDriver{Name: "Renamed Driver", Phone: "+254711111111"})
	if err != nil {
		t.Fatalf("UpdateDriverProfile(): %v", err)
	}
	if sess.Name != "Renamed Driver" {
		t.Errorf("Name = %q, want Renamed Driver", sess.Name)
	}
	if sess.Driver == nil || sess.Driver.Phone != "+254711111111" {
		t.Errorf("Driver info = %+v", sess.Driver)
	}
	// the display name change propagated to the provider account
	if acct := env.provider.CurrentAccount(); acct == nil || acct.DisplayName != "Renamed Driver" {
		t.Errorf("provider account = %+v, want display name Renamed Driver", acct)
	}
}

func TestChangeDriverPassword(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.createDriver(t, "drv-7", "driver7@uni.test", "busdriver1")

	if err := res.ChangeDriverPassword(ctx, "busdriver1", "newpass99"); err != session.ErrNotAuthenticated {
		t.Errorf("ChangeDriverPassword() error = %v, want %v", err, session.ErrNotAuthenticated)
	}

	if _, err := res.DriverSignIn(ctx, "drv-7", "busdriver1", false); err != nil {
		t.Fatalf("DriverSignIn(): %v", err)
	}

	if err := res.ChangeDriverPassword(ctx, "wrong-current", "newpass99"); err != session.ErrIncorrectPassword {
		t.Errorf("ChangeDriverPassword() error = %v, want %v", err, session.ErrIncorrectPassword)
	}
	if err := res.ChangeDriverPassword(ctx, "busdriver1", "newpass99"); err != nil {
		t.Fatalf("ChangeDriverPassword(): %v", err)
	}

	// the new password is live against the DriverAccount store
	if _, err := env.drivers.Authenticate(ctx, "drv-7", "newpass99"); err != nil {
		t.Errorf("Authenticate() with new password: %v", err)
	}
	if _, err := env.drivers.Authenticate(ctx, "drv-7", "busdriver1"); err != driver.ErrInvalidCredentials {
		t.Errorf("Authenticate() with old password error = %v, want %v", err, driver.ErrInvalidCredentials)
	}
}

func TestClearCredentials(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")

	if err := res.SaveCredentials(ctx, session.SurfaceStudent, session.RememberedCredential{Email: "jane@uni.test", Password: "pwd"}); err != nil {
		t.Fatalf("SaveCredentials(): %v", err)
	}
	if err := res.ClearCredentials(ctx, session.SurfaceStudent); err != nil {
		t.Fatalf("ClearCredentials(): %v", err)
	}
	if ok, _ := res.HasRememberedCredentials(ctx, session.SurfaceStudent); ok {
		t.Error("credentials survived ClearCredentials")
	}

	if err := res.SaveCredentials(ctx, "backoffice", session.RememberedCredential{}); err == nil {
		t.Error("SaveCredentials() accepted an unknown surface")
	}
}

func TestOnChangeNotifiesTransitions(t *testing.T) {
	env := newTestEnv()
	res := env.newResolver(t, "client-1")
	env.signUpStudent(t, res, "Jane Doe", "jane@uni.test", strongPwd)

	var states []session.State
	unsub := res.OnChange(func(st session.State, _ *session.Session) {
		states = append(states, st)
	})

	if _, err := res.SignIn(ctx, "jane@uni.test", strongPwd, false); err != nil {
		t.Fatalf("SignIn(): %v", err)
	}
	if err := res.SignOut(ctx); err != nil {
		t.Fatalf("SignOut(): %v", err)
	}
	unsub()
	res.ContinueAsGuest(ctx)

	if len(states) < 2 {
		t.Fatalf("got %d transitions, want at least 2", len(states))
	}
	if states[0] != session.StateAuthenticated {
		t.Errorf("first transition = %v, want authenticated", states[0])
	}
	if last := states[len(states)-1]; last != session.StateSignedOut {
		t.Errorf("last transition = %v, want signed-out", last)
	}
	for _, st := range states {
		if st == session.StateGuest {
			t.Error("listener fired after unsubscribe")
		}
	}
}
