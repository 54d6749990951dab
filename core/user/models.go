package user

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/safiri/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleDriver  = "driver"
	RoleAdmin   = "admin"
	RoleGuest   = "guest" // session-only; never persisted as a profile
)

var AllRoles = []string{RoleStudent, RoleDriver, RoleAdmin}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

var Roles = []Role{
	{Name: "Student", Value: RoleStudent},
	{Name: "Driver", Value: RoleDriver},
	{Name: "Admin", Value: RoleAdmin},
}

// User is a profile document keyed by the identity-provider-assigned account ID.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	StudentID  string    `json:"student_id,omitempty"`
	Department string    `json:"department,omitempty"`
	Level      string    `json:"level,omitempty"`
	IsActive   *bool     `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

func (u *User) SetActive(active bool) { u.IsActive = &active }

func (u *User) Active() bool { return u.IsActive != nil && *u.IsActive }

func (u *User) IsStudent() bool { return u.Role == RoleStudent }
func (u *User) IsDriver() bool  { return u.Role == RoleDriver }
func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }

// NewProfile contains information needed to create a new profile document.
// The ID is assigned by the identity provider, never generated here.
type NewProfile struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Role       string `json:"role" validate:"required,profilerole"`
	StudentID  string `json:"student_id" validate:"omitempty,alphanum_"`
	Department string `json:"department"`
	Level      string `json:"level"`
}

func (np *NewProfile) Validate(validate *validator.Validate, svc Service) error {
	np.Name = core.CleanString(np.Name)
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.StudentID = core.CleanString(np.StudentID, true /* lower */)
	np.Department = core.CleanString(np.Department)

	if err := validate.Struct(np); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(np.Email)
}

// UpdateProfile defines what information may be provided to modify an existing profile.
// Zero-valued fields keep the original document's values (merge-write semantics).
type UpdateProfile struct {
	Name       string `json:"name"`
	Email      string `json:"email" validate:"omitempty,email"`
	StudentID  string `json:"student_id" validate:"omitempty,alphanum_"`
	Department string `json:"department"`
	Level      string `json:"level"`
	IsActive   *bool  `json:"is_active"`
}

func (up *UpdateProfile) Validate(origUsr User, validate *validator.Validate, svc Service) error {
	if name := core.CleanString(up.Name); name != "" {
		up.Name = name
	} else {
		up.Name = origUsr.Name
	}

	if email := core.CleanString(up.Email, true /* lower */); email != "" {
		up.Email = email
	} else {
		up.Email = origUsr.Email
	}

	if sid := core.CleanString(up.StudentID, true /* lower */); sid != "" {
		up.StudentID = sid
	} else {
		up.StudentID = origUsr.StudentID
	}
	if up.Department == "" {
		up.Department = origUsr.Department
	}
	if up.Level == "" {
		up.Level = origUsr.Level
	}

	if err := validate.Struct(up); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(up.Email, origUsr)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Role        string    `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}

var (
	profileRoleTag  = "profilerole"
	profileRoleText = "invalid role"
)

// InitValidators registers the user package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(profileRoleTag, profileRoleValidation)
	core.RegisterCustomTranslation(validate, translator, profileRoleTag, profileRoleText)
}

// profileRoleValidation checks that the provided role is a known profile role.
func profileRoleValidation(fl validator.FieldLevel) bool {
	role := fl.Field().String()
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}
