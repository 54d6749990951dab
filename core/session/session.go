package session

import (
	"strconv"
	"time"

	"github.com/trezcool/safiri/core/user"
)

// State is the resolver's resolution state. Exactly one state is active after
// each action settles.
type State int

const (
	Unresolved State = iota // before the first resolution pass
	StateGuest
	StateAuthenticated
	StateSignedOut
)

func (s State) String() string {
	switch s {
	case StateGuest:
		return "guest"
	case StateAuthenticated:
		return "authenticated"
	case StateSignedOut:
		return "signed-out"
	default:
		return "unresolved"
	}
}

// GuestIDPrefix marks synthetic guest session IDs.
const GuestIDPrefix = "guest-"

type (
	// Session is the resolved identity for one client context. Role-specific
	// fields live in their own variant struct rather than a shared field bag.
	Session struct {
		ID      string       `json:"id"`
		Email   string       `json:"email,omitempty"`
		Name    string       `json:"name,omitempty"`
		Role    string       `json:"role"` // user.RoleStudent|RoleGuest|RoleDriver|RoleAdmin
		Student *StudentInfo `json:"student,omitempty"`
		Driver  *DriverInfo  `json:"driver,omitempty"`
	}

	StudentInfo struct {
		StudentID  string `json:"student_id,omitempty"`
		Department string `json:"department,omitempty"`
		Level      string `json:"level,omitempty"`
	}

	DriverInfo struct {
		DriverID  string `json:"driver_id"`
		Phone     string `json:"phone,omitempty"`
		ShuttleID string `json:"shuttle_id,omitempty"`
		RouteID   string `json:"route_id,omitempty"`
	}
)

func (s *Session) IsGuest() bool   { return s.Role == user.RoleGuest }
func (s *Session) IsStudent() bool { return s.Role == user.RoleStudent }
func (s *Session) IsDriver() bool  { return s.Role == user.RoleDriver }
func (s *Session) IsAdmin() bool   { return s.Role == user.RoleAdmin }

func newGuestSession() Session {
	return Session{
		ID:   GuestIDPrefix + strconv.FormatInt(time.Now().UnixMilli(), 10),
		Name: "Guest",
		Role: user.RoleGuest,
	}
}
