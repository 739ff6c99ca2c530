package places

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// ErrNotFound is returned when no search result passes the acceptance criteria.
var ErrNotFound = errors.New("no matching place found")

const StatusOperational = "OPERATIONAL"

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l LatLng) String() string {
	return strconv.FormatFloat(l.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(l.Lng, 'f', -1, 64)
}

func (l LatLng) point() orb.Point {
	return orb.Point{l.Lng, l.Lat}
}

// DistanceKm is the geodesic distance between two coordinates.
func DistanceKm(a, b LatLng) float64 {
	return geo.Distance(a.point(), b.point()) / 1000
}

// Candidate is one place-search result.
type Candidate struct {
	PlaceID        string  `json:"placeId,omitempty"`
	Name           string  `json:"name"`
	Address        string  `json:"address,omitempty"`
	Location       LatLng  `json:"location"`
	Rating         float64 `json:"rating,omitempty"`
	PriceLevel     *int    `json:"priceLevel,omitempty"`
	BusinessStatus string  `json:"businessStatus,omitempty"`
}

func (c Candidate) Operational() bool {
	return c.BusinessStatus == StatusOperational
}

// Tier is a set of acceptance thresholds. A RadiusMeters of zero or less
// disables the distance gate; a nil MaxPriceLevel disables the price gate.
type Tier struct {
	Name          string  `yaml:"name" json:"name"`
	RadiusMeters  int     `yaml:"radius_meters" json:"radiusMeters"`
	MinRating     float64 `yaml:"min_rating" json:"minRating"`
	MaxPriceLevel *int    `yaml:"max_price_level" json:"maxPriceLevel,omitempty"`
}

func (t Tier) String() string {
	price := "any"
	if t.MaxPriceLevel != nil {
		price = strconv.Itoa(*t.MaxPriceLevel)
	}
	return fmt.Sprintf("%s(radius=%dm rating>=%.1f price<=%s)", t.Name, t.RadiusMeters, t.MinRating, price)
}

// Unconstrained accepts any operating place regardless of distance, rating or price.
var Unconstrained = Tier{Name: "unconstrained"}

func PriceLevel(n int) *int {
	return &n
}

// DefaultTiers are tried strict first.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "strict", RadiusMeters: 25_000, MinRating: 3.8, MaxPriceLevel: PriceLevel(3)},
		{Name: "relaxed", RadiusMeters: 35_000, MinRating: 3.5, MaxPriceLevel: PriceLevel(4)},
		{Name: "permissive", RadiusMeters: 50_000, MinRating: 0},
	}
}

// Accept is the venue-acceptance predicate shared by every resolution path.
func Accept(c Candidate, anchor LatLng, tier Tier) bool {
	if tier.RadiusMeters > 0 && DistanceKm(anchor, c.Location) > float64(tier.RadiusMeters)/1000 {
		return false
	}
	if !c.Operational() {
		return false
	}
	if c.Rating < tier.MinRating {
		return false
	}
	if tier.MaxPriceLevel != nil && c.PriceLevel != nil && *c.PriceLevel > *tier.MaxPriceLevel {
		return false
	}
	return true
}

// Searcher is a text search against a place-search service.
type Searcher interface {
	Search(ctx context.Context, query string, anchor LatLng, radiusMeters int) ([]Candidate, error)
}
