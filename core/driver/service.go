package driver

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/user"
)

var (
	// errors
	ErrNotFound           = errors.New("driver not found")
	ErrDriverIDExists     = errors.New("a driver with this driver ID already exists")
	ErrEmailExists        = errors.New("a driver with this email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrIncorrectPassword  = errors.New("current password is incorrect")
)

type (
	// GetFilter filters single-driver lookups; exactly one field should be set.
	GetFilter struct {
		ID       string
		DriverID string
		Email    string
	}

	Repository interface {
		CheckUniqueness(ctx context.Context, driverID, email string, excludedDrivers []Driver, exec ...core.DBExecutor) error
		CreateDriver(ctx context.Context, drv Driver, exec ...core.DBExecutor) (Driver, error)
		GetDriver(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Driver, error)
		// QueryDrivers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Driver.Name, Driver.DriverID or Driver.Email.
		QueryDrivers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Driver, error)
		UpdateDriver(ctx context.Context, drv Driver, exec ...core.DBExecutor) (Driver, error)
		// MigrateDriverPK rewrites a DriverAccount's ID in place (synthetic -> provider-assigned).
		MigrateDriverPK(ctx context.Context, oldID, newID string, exec ...core.DBExecutor) error
		UpdatePassword(ctx context.Context, id string, hash []byte, exec ...core.DBExecutor) error
		// AssignDriver overwrites the shuttle/route assignment; empty values clear it.
		AssignDriver(ctx context.Context, id, shuttleID, routeID string, exec ...core.DBExecutor) (Driver, error)
		SetLastLogin(ctx context.Context, id string, t time.Time, exec ...core.DBExecutor) error
		DeleteDriversByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		CheckUniqueness(driverID, email string, exclDrivers ...Driver) error
		Create(ctx context.Context, nd NewDriver) (Driver, error)
		GetByID(ctx context.Context, id string) (Driver, error)
		GetByDriverID(ctx context.Context, driverID string) (Driver, error)
		GetByEmail(ctx context.Context, email string) (Driver, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Driver, error)
		Update(ctx context.Context, id string, ud UpdateDriver) (Driver, error)
		Delete(ctx context.Context, ids ...string) error

		// Authenticate verifies a driverID/password pair against the
		// DriverAccount store; the identity provider plays no part in it.
		Authenticate(ctx context.Context, driverID, password string) (Driver, error)
		// ProvisionIdentity migrates a synthetic DriverAccount ID to the
		// provider-assigned accountID and writes the matching profile document,
		// atomically. It is idempotent: re-running with the same accountID is a no-op.
		ProvisionIdentity(ctx context.Context, drv Driver, accountID string) (Driver, error)
		ChangePassword(ctx context.Context, email, current, next string) error
		SetStatus(ctx context.Context, id, status string) (Driver, error)
		Assign(ctx context.Context, id, shuttleID, routeID string) (Driver, error)
	}

	service struct {
		db       core.DB
		repo     Repository
		profiles user.Repository
		hasher   Hasher
		mailSvc  core.EmailService
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, profiles user.Repository, hasher Hasher, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		db:       db,
		repo:     repo,
		profiles: profiles,
		hasher:   hasher,
		mailSvc:  mailSvc,
		conf:     conf,
	}
}

func (svc *service) CheckUniqueness(driverID, email string, exclDrivers ...Driver) error {
	if err := svc.repo.CheckUniqueness(context.Background(), driverID, email, exclDrivers); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrDriverIDExists:
			field = "driver_id"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nd NewDriver) (Driver, error) {
	now := time.Now().UTC()
	drv := Driver{
		ID:        PendingIDPrefix + uuid.New().String(),
		DriverID:  nd.DriverID,
		Name:      nd.Name,
		Email:     nd.Email,
		Phone:     nd.Phone,
		Status:    StatusOffDuty,
		CreatedAt: now,
		UpdatedAt: now,
	}
	drv.SetActive(true)

	hash, err := svc.hasher.Hash(nd.Password)
	if err != nil {
		return Driver{}, errors.Wrap(err, "hashing driver password")
	}
	drv.PasswordHash = hash

	drv, err = svc.repo.CreateDriver(ctx, drv)
	if err != nil {
		return Driver{}, err
	}
	svc.sendWelcomeMail(drv)
	return drv, nil
}

func (svc *service) sendWelcomeMail(drv Driver) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: drv.Name, Address: drv.Email}},
		Subject:      "Welcome to " + svc.conf.AppName,
		TemplateName: "driver_welcome",
		TemplateData: drv,
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\nA driver account has been created for you. Sign in to the driver portal with your driver ID %q "+
				"and the temporary password provided by your administrator, then change it right away.",
			drv.Name, drv.DriverID,
		),
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (Driver, error) {
	return svc.repo.GetDriver(ctx, GetFilter{ID: id})
}

func (svc *service) GetByDriverID(ctx context.Context, driverID string) (Driver, error) {
	return svc.repo.GetDriver(ctx, GetFilter{DriverID: core.CleanString(driverID, true /* lower */)})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (Driver, error) {
	return svc.repo.GetDriver(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Driver, error) {
	return svc.repo.QueryDrivers(ctx, filter, ordering)
}

// Update merge-writes ud into the DriverAccount. When the account is already
// provisioned and name/email changed, the matching profile document is updated
// in the same transaction so the two stay consistent.
func (svc *service) Update(ctx context.Context, id string, ud UpdateDriver) (Driver, error) {
	orig, err := svc.repo.GetDriver(ctx, GetFilter{ID: id})
	if err != nil {
		return Driver{}, err
	}

	drv := Driver{
		ID:        id,
		Name:      ud.Name,
		Email:     ud.Email,
		Phone:     ud.Phone,
		IsActive:  ud.IsActive,
		UpdatedAt: time.Now().UTC(),
	}

	propagate := orig.IsProvisioned() && (drv.Name != orig.Name || drv.Email != orig.Email)
	if !propagate {
		return svc.repo.UpdateDriver(ctx, drv)
	}

	var updated Driver
	err = core.AtomicFn(ctx, svc.db, func(tx core.DBTransactor) error {
		var txErr error
		if updated, txErr = svc.repo.UpdateDriver(ctx, drv, tx); txErr != nil {
			return txErr
		}
		_, txErr = svc.profiles.UpdateUser(ctx, user.User{
			ID:        id,
			Name:      updated.Name,
			Email:     updated.Email,
			UpdatedAt: updated.UpdatedAt,
		}, tx)
		if errors.Cause(txErr) == user.ErrNotFound {
			return nil // profile not written yet; provisioning retry will create it
		}
		return txErr
	})
	if err != nil {
		return Driver{}, err
	}
	return updated, nil
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteDriversByID(ctx, ids)
	return err
}

func (svc *service) Authenticate(ctx context.Context, driverID, password string) (Driver, error) {
	drv, err := svc.GetByDriverID(ctx, driverID)
	if err != nil {
		return Driver{}, err
	}
	if !drv.Active() {
		return Driver{}, ErrNotFound
	}
	if err = svc.hasher.Compare(drv.PasswordHash, password); err != nil {
		return Driver{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err = svc.repo.SetLastLogin(ctx, drv.ID, now); err != nil {
		return Driver{}, errors.Wrap(err, "setting lastLogin")
	}
	drv.LastLogin = now
	return drv, nil
}

func (svc *service) ProvisionIdentity(ctx context.Context, drv Driver, accountID string) (Driver, error) {
	if drv.ID == accountID {
		return drv, nil
	}

	err := core.AtomicFn(ctx, svc.db, func(tx core.DBTransactor) error {
		if err := svc.repo.MigrateDriverPK(ctx, drv.ID, accountID, tx); err != nil {
			return errors.Wrap(err, "migrating driver ID")
		}

		// a previous partially-failed provisioning may have left the profile behind
		if _, err := svc.profiles.GetUser(ctx, user.GetFilter{ID: accountID}, tx); err == nil {
			return nil
		} else if errors.Cause(err) != user.ErrNotFound {
			return errors.Wrap(err, "checking driver profile")
		}

		now := time.Now().UTC()
		profile := user.User{
			ID:        accountID,
			Name:      drv.Name,
			Email:     drv.Email,
			Role:      user.RoleDriver,
			CreatedAt: now,
			UpdatedAt: now,
		}
		profile.SetActive(true)
		_, err := svc.profiles.CreateUser(ctx, profile, tx)
		return errors.Wrap(err, "creating driver profile")
	})
	if err != nil {
		return Driver{}, err
	}

	drv.ID = accountID
	return drv, nil
}

func (svc *service) ChangePassword(ctx context.Context, email, current, next string) error {
	drv, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err = svc.hasher.Compare(drv.PasswordHash, current); err != nil {
		return ErrIncorrectPassword
	}

	hash, err := svc.hasher.Hash(next)
	if err != nil {
		return errors.Wrap(err, "hashing driver password")
	}
	return svc.repo.UpdatePassword(ctx, drv.ID, hash)
}

func (svc *service) SetStatus(ctx context.Context, id, status string) (Driver, error) {
	return svc.repo.UpdateDriver(ctx, Driver{ID: id, Status: status, UpdatedAt: time.Now().UTC()})
}

func (svc *service) Assign(ctx context.Context, id, shuttleID, routeID string) (Driver, error) {
	return svc.repo.AssignDriver(ctx, id, shuttleID, routeID)
}
