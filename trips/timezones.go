package trips

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/ringsaturn/tzf"

	"tripplanner/itinerary"
	"tripplanner/places"
)

// Timezones resolves coordinates to IANA zone names offline.
type Timezones struct {
	finder tzf.F
}

var _ itinerary.ZoneLocator = (*Timezones)(nil)

func NewTimezones() (*Timezones, error) {
	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone data: %w", err)
	}
	return &Timezones{finder: finder}, nil
}

func (z *Timezones) Zone(at places.LatLng) string {
	return z.finder.GetTimezoneName(at.Lng, at.Lat)
}

// tripLocation returns the trip's zone, falling back to UTC.
func tripLocation(trip *itinerary.Trip) *time.Location {
	if trip.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(trip.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
