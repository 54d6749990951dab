package fleet

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/safiri/core"
)

type (
	// Shuttle is a vehicle in the university fleet.
	Shuttle struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Plate     string    `json:"plate"`
		Capacity  int       `json:"capacity"`
		IsActive  *bool     `json:"is_active"`
		RouteID   string    `json:"route_id,omitempty"`
		CreatedAt time.Time `json:"created_at"` // UTC
		UpdatedAt time.Time `json:"updated_at"` // UTC
	}

	// Stop is a named location shuttles stop at.
	Stop struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Latitude  float64   `json:"latitude"`
		Longitude float64   `json:"longitude"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}

	// Route is an ordered sequence of stops.
	Route struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description,omitempty"`
		IsActive    *bool     `json:"is_active"`
		Stops       []Stop    `json:"stops,omitempty"` // in sequence order; populated on demand
		CreatedAt   time.Time `json:"created_at"`      // UTC
		UpdatedAt   time.Time `json:"updated_at"`      // UTC
	}

	// Schedule is a recurring departure on a route.
	Schedule struct {
		ID        string    `json:"id"`
		RouteID   string    `json:"route_id"`
		Weekdays  []string  `json:"weekdays"`  // mon..sun
		Departure string    `json:"departure"` // HH:MM, 24h
		IsActive  *bool     `json:"is_active"`
		CreatedAt time.Time `json:"created_at"` // UTC
		UpdatedAt time.Time `json:"updated_at"` // UTC
	}

	// TimetableEntry is the public read model: a schedule joined with its route.
	TimetableEntry struct {
		Schedule Schedule `json:"schedule"`
		Route    Route    `json:"route"`
	}
)

func (s *Shuttle) SetActive(active bool)  { s.IsActive = &active }
func (r *Route) SetActive(active bool)    { r.IsActive = &active }
func (s *Schedule) SetActive(active bool) { s.IsActive = &active }

var Weekdays = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

type (
	NewShuttle struct {
		Name     string `json:"name" validate:"required"`
		Plate    string `json:"plate" validate:"required"`
		Capacity int    `json:"capacity" validate:"required,gt=0"`
		RouteID  string `json:"route_id"`
	}

	UpdateShuttle struct {
		Name     string `json:"name"`
		Plate    string `json:"plate"`
		Capacity int    `json:"capacity" validate:"omitempty,gt=0"`
		RouteID  string `json:"route_id"`
		IsActive *bool  `json:"is_active"`
	}

	NewStop struct {
		Name      string  `json:"name" validate:"required"`
		Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
		Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	}

	NewRoute struct {
		Name        string   `json:"name" validate:"required"`
		Description string   `json:"description"`
		StopIDs     []string `json:"stop_ids"` // in sequence order
	}

	UpdateRoute struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		StopIDs     []string `json:"stop_ids"`
		IsActive    *bool    `json:"is_active"`
	}

	NewSchedule struct {
		RouteID   string   `json:"route_id" validate:"required"`
		Weekdays  []string `json:"weekdays" validate:"required,weekdays"`
		Departure string   `json:"departure" validate:"required,departure"`
	}

	UpdateSchedule struct {
		Weekdays  []string `json:"weekdays" validate:"omitempty,weekdays"`
		Departure string   `json:"departure" validate:"omitempty,departure"`
		IsActive  *bool    `json:"is_active"`
	}
)

func (ns *NewShuttle) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Plate = core.CleanString(ns.Plate, true /* lower */)
	return validate.Struct(ns)
}

func (us *UpdateShuttle) Validate(orig Shuttle, validate *validator.Validate) error {
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = orig.Name
	}
	if plate := core.CleanString(us.Plate, true /* lower */); plate != "" {
		us.Plate = plate
	} else {
		us.Plate = orig.Plate
	}
	if us.Capacity == 0 {
		us.Capacity = orig.Capacity
	}
	return validate.Struct(us)
}

func (ns *NewStop) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}

func (nr *NewRoute) Validate(validate *validator.Validate) error {
	nr.Name = core.CleanString(nr.Name)
	nr.Description = core.CleanString(nr.Description)
	return validate.Struct(nr)
}

func (ur *UpdateRoute) Validate(orig Route, validate *validator.Validate) error {
	if name := core.CleanString(ur.Name); name != "" {
		ur.Name = name
	} else {
		ur.Name = orig.Name
	}
	if ur.Description == "" {
		ur.Description = orig.Description
	}
	return validate.Struct(ur)
}

func (ns *NewSchedule) Validate(validate *validator.Validate) error {
	for i, d := range ns.Weekdays {
		ns.Weekdays[i] = core.CleanString(d, true /* lower */)
	}
	return validate.Struct(ns)
}

func (us *UpdateSchedule) Validate(orig Schedule, validate *validator.Validate) error {
	if us.Weekdays == nil {
		us.Weekdays = orig.Weekdays
	} else {
		for i, d := range us.Weekdays {
			us.Weekdays[i] = core.CleanString(d, true /* lower */)
		}
	}
	if us.Departure == "" {
		us.Departure = orig.Departure
	}
	return validate.Struct(us)
}

var (
	weekdaysTag  = "weekdays"
	weekdaysText = "invalid weekdays"

	departureTag  = "departure"
	departureText = "departure must be a 24h HH:MM time"
)

// InitValidators registers the fleet package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(weekdaysTag, weekdaysValidation)
	core.RegisterCustomTranslation(validate, translator, weekdaysTag, weekdaysText)

	_ = validate.RegisterValidation(departureTag, departureValidation)
	core.RegisterCustomTranslation(validate, translator, departureTag, departureText)
}

// weekdaysValidation checks that all provided weekdays are valid and distinct.
func weekdaysValidation(fl validator.FieldLevel) bool {
	days, ok := fl.Field().Interface().([]string)
	if !ok || len(days) == 0 {
		return false
	}
	seen := make(map[string]bool, len(days))
	for _, d := range days {
		if seen[d] {
			return false
		}
		seen[d] = true

		var known bool
		for _, w := range Weekdays {
			if w == d {
				known = true
				break
			}
		}
		if !known {
			return false
		}
	}
	return true
}

func departureValidation(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}
