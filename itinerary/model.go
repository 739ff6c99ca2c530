package itinerary

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"tripplanner/places"
)

// Role is one of the six fixed parts of a day.
type Role string

const (
	RoleBreakfast Role = "breakfast"
	RoleMorning   Role = "morning"
	RoleLunch     Role = "lunch"
	RoleAfternoon Role = "afternoon"
	RoleDinner    Role = "dinner"
	RoleEvening   Role = "evening"
)

// Roles lists the slots in the order a day is lived.
var Roles = []Role{RoleBreakfast, RoleMorning, RoleLunch, RoleAfternoon, RoleDinner, RoleEvening}

func (r Role) Valid() bool {
	for _, role := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsMeal reports whether the slot must be filled by an eatery.
func (r Role) IsMeal() bool {
	return r == RoleBreakfast || r == RoleLunch || r == RoleDinner
}

// Label is the human heading used in narratives.
func (r Role) Label() string {
	switch r {
	case RoleBreakfast:
		return "Breakfast"
	case RoleMorning:
		return "Morning activity"
	case RoleLunch:
		return "Lunch"
	case RoleAfternoon:
		return "Afternoon activity"
	case RoleDinner:
		return "Dinner"
	case RoleEvening:
		return "Evening stroll / entertainment"
	}
	if r == "" {
		return "Stop"
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}

// Stop is one venue in a day. Lat and Lng are nil when the venue could not
// be located.
type Stop struct {
	ID      string   `json:"id"`
	Role    Role     `json:"role,omitempty"`
	Name    string   `json:"name"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Address string   `json:"address,omitempty"`
}

func NewStop(role Role, c places.Candidate) Stop {
	lat, lng := c.Location.Lat, c.Location.Lng
	return Stop{
		ID:      uuid.NewString(),
		Role:    role,
		Name:    c.Name,
		Lat:     &lat,
		Lng:     &lng,
		Address: c.Address,
	}
}

// UnlocatedStop keeps a slot filled when its venue could not be resolved.
func UnlocatedStop(role Role, name string) Stop {
	return Stop{ID: uuid.NewString(), Role: role, Name: name}
}

func (s Stop) Located() bool {
	return s.Lat != nil && s.Lng != nil
}

func (s Stop) Location() (places.LatLng, bool) {
	if !s.Located() {
		return places.LatLng{}, false
	}
	return places.LatLng{Lat: *s.Lat, Lng: *s.Lng}, true
}

// StopRef identifies a stop for replacement: by ID when set, otherwise by index.
type StopRef struct {
	ID    string `json:"stopId,omitempty"`
	Index int    `json:"index"`
}

// ErrStopNotFound is returned when a StopRef matches nothing in the day.
var ErrStopNotFound = errors.New("stop not found")

// Day is one calendar date of a trip.
type Day struct {
	ID        string    `json:"id,omitempty"`
	TripID    string    `json:"tripId,omitempty"`
	Number    int       `json:"number"`
	Date      time.Time `json:"date"`
	Stops     []Stop    `json:"stops"`
	Narrative string    `json:"narrative"`
}

// IndexOf resolves ref against the day's stops.
func (d *Day) IndexOf(ref StopRef) (int, error) {
	if ref.ID != "" {
		for i, stop := range d.Stops {
			if stop.ID == ref.ID {
				return i, nil
			}
		}
		return -1, ErrStopNotFound
	}
	if ref.Index < 0 || ref.Index >= len(d.Stops) {
		return -1, ErrStopNotFound
	}
	return ref.Index, nil
}

// Trip is the root of a multi-day itinerary.
type Trip struct {
	ID          string         `json:"id,omitempty"`
	Destination string         `json:"destination"`
	StartDate   time.Time      `json:"startDate"`
	EndDate     time.Time      `json:"endDate"`
	Budget      float64        `json:"budget"`
	Travelers   int            `json:"travelers"`
	Interests   string         `json:"interests,omitempty"`
	Extras      string         `json:"extras,omitempty"`
	Location    *places.LatLng `json:"location,omitempty"`
	Timezone    string         `json:"timezone,omitempty"`
	Overview    string         `json:"overview,omitempty"`
	Days        []*Day         `json:"days"`
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TotalDays counts calendar dates from start to end inclusive.
func (t *Trip) TotalDays() int {
	return int(dateOnly(t.EndDate).Sub(dateOnly(t.StartDate)).Hours()/24) + 1
}

// DateOf returns the calendar date of the given 1-based day number.
func (t *Trip) DateOf(number int) time.Time {
	return dateOnly(t.StartDate).AddDate(0, 0, number-1)
}

// DailyBudget spreads the trip budget evenly over its days.
func (t *Trip) DailyBudget() float64 {
	if t.Budget <= 0 {
		return 0
	}
	return t.Budget / float64(t.TotalDays())
}

func (t *Trip) Day(number int) (*Day, bool) {
	for _, day := range t.Days {
		if day.Number == number {
			return day, true
		}
	}
	return nil, false
}

func (t *Trip) Validate() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Destination, validation.Required, validation.Length(1, 200)),
		validation.Field(&t.StartDate, validation.Required),
		validation.Field(&t.EndDate, validation.Required, validation.By(func(any) error {
			if dateOnly(t.EndDate).Before(dateOnly(t.StartDate)) {
				return errors.New("must not be before the start date")
			}
			return nil
		})),
		validation.Field(&t.Budget, validation.Min(0.0)),
		validation.Field(&t.Travelers, validation.Min(0)),
	)
}

// Weather is the forecast summary handed to narrative composition.
type Weather struct {
	Available  bool
	Conditions string
	TempMin    float64
	TempMax    float64
	// Note explains why a forecast is unavailable, when known.
	Note string
}
