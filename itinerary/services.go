package itinerary

import (
	"context"
	"time"

	"tripplanner/places"
)

// SuggestionMode selects what a day-plan suggestion carries.
type SuggestionMode string

const (
	// SuggestCategories asks for one venue type per role.
	SuggestCategories SuggestionMode = "categories"
	// SuggestNames asks for a free list of real venue names.
	SuggestNames SuggestionMode = "names"
)

// SuggestionRequest carries the constraints for one suggestion call.
type SuggestionRequest struct {
	Mode    SuggestionMode
	Roles   []Role
	Tier    places.Tier
	Visited []string
	// MaxPlaces bounds a names-mode list.
	MaxPlaces int
}

// Suggestion is one entry of a generated day plan. Category is set in
// categories mode, Name in names mode.
type Suggestion struct {
	Role     Role   `json:"role,omitempty"`
	Category string `json:"category,omitempty"`
	Name     string `json:"place,omitempty"`
}

// Generator is the generative text service.
type Generator interface {
	Overview(ctx context.Context, trip *Trip) (string, error)
	SuggestDayPlan(ctx context.Context, trip *Trip, dayNumber int, req SuggestionRequest) ([]Suggestion, error)
	SuggestReplacement(ctx context.Context, trip *Trip, dayNumber int, visited []string, note string) (string, error)
	ComposeNarrative(ctx context.Context, trip *Trip, day *Day, stops []Stop, weather Weather) (string, error)
}

// GeoServices groups geocoding, travel cost and weather lookups.
type GeoServices interface {
	Geocode(ctx context.Context, address string) (places.LatLng, error)
	// DistanceMatrix returns meters between every pair; unreachable pairs are +Inf.
	DistanceMatrix(ctx context.Context, points []places.LatLng) ([][]float64, error)
	Forecast(ctx context.Context, date time.Time, at places.LatLng) (Weather, error)
}

// ZoneLocator maps coordinates to an IANA timezone name.
type ZoneLocator interface {
	Zone(at places.LatLng) string
}

// Repository persists trips and days.
type Repository interface {
	SaveTrip(ctx context.Context, trip *Trip) error
	SaveDay(ctx context.Context, trip *Trip, day *Day) error
}
