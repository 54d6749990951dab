package driver

import (
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/safiri/core"
)

// PendingIDPrefix marks a DriverAccount created by an admin that has not yet
// been backed by an identity-provider account. The prefix is replaced by the
// provider-assigned ID the first time the driver successfully signs in.
const PendingIDPrefix = "pending-"

// Operational statuses
const (
	StatusAvailable = "available"
	StatusOnRoute   = "on_route"
	StatusOffDuty   = "off_duty"
)

var AllStatuses = []string{StatusAvailable, StatusOnRoute, StatusOffDuty}

// Driver is a DriverAccount keyed by a human-chosen DriverID.
// Its password, not the identity provider's, is the system of record for
// driver authentication.
type Driver struct {
	ID           string    `json:"id"` // identity-provider account ID, or PendingIDPrefix-ed placeholder
	DriverID     string    `json:"driver_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash []byte    `json:"-"`
	IsActive     *bool     `json:"is_active"`
	Status       string    `json:"status"`
	ShuttleID    string    `json:"shuttle_id,omitempty"`
	RouteID      string    `json:"route_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (d *Driver) SetActive(active bool) { d.IsActive = &active }

func (d *Driver) Active() bool { return d.IsActive != nil && *d.IsActive }

// IsProvisioned reports whether this account is already backed by an
// identity-provider account.
func (d *Driver) IsProvisioned() bool { return !strings.HasPrefix(d.ID, PendingIDPrefix) }

// NewDriver contains information needed by an admin to create a DriverAccount.
type NewDriver struct {
	DriverID string `json:"driver_id" validate:"required,driverid"`
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" validate:"required,min=6"`
}

func (nd *NewDriver) Validate(validate *validator.Validate, svc Service) error {
	nd.DriverID = core.CleanString(nd.DriverID, true /* lower */)
	nd.Name = core.CleanString(nd.Name)
	nd.Email = core.CleanString(nd.Email, true /* lower */)
	nd.Phone = core.CleanString(nd.Phone)

	if err := validate.Struct(nd); err != nil {
		return err
	}
	return svc.CheckUniqueness(nd.DriverID, nd.Email)
}

// UpdateDriver defines what information may be provided to modify an existing
// DriverAccount. Zero-valued fields keep the original values.
type UpdateDriver struct {
	Name     string `json:"name"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone"`
	IsActive *bool  `json:"is_active"`
}

func (ud *UpdateDriver) Validate(origDrv Driver, validate *validator.Validate, svc Service) error {
	if name := core.CleanString(ud.Name); name != "" {
		ud.Name = name
	} else {
		ud.Name = origDrv.Name
	}

	if email := core.CleanString(ud.Email, true /* lower */); email != "" {
		ud.Email = email
	} else {
		ud.Email = origDrv.Email
	}

	if ud.Phone == "" {
		ud.Phone = origDrv.Phone
	}

	if err := validate.Struct(ud); err != nil {
		return err
	}
	return svc.CheckUniqueness(origDrv.DriverID, ud.Email, origDrv)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Status   string `query:"status"`
	IsActive *bool  `query:"is_active"`
	RouteID  string `query:"route_id"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Status == "" && qf.IsActive == nil && qf.RouteID == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

var (
	driverIDTag   = "driverid"
	driverIDText  = "only alphanumeric characters, dashes and underscores are allowed"
	statusTag     = "driverstatus"
	statusText    = "invalid status"
	driverIDChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"
)

// InitValidators registers the driver package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(driverIDTag, driverIDValidation)
	core.RegisterCustomTranslation(validate, translator, driverIDTag, driverIDText)

	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
}

func driverIDValidation(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if id == "" {
		return false
	}
	for _, c := range id {
		if !strings.ContainsRune(driverIDChars, c) {
			return false
		}
	}
	return true
}

func statusValidation(fl validator.FieldLevel) bool {
	status := fl.Field().String()
	for _, s := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}
