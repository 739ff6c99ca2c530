package itinerary

import (
	"context"
	"log/slog"
	"time"

	"tripplanner/places"
)

// Planner produces the narrative and stops of one day.
type Planner struct {
	policy   DayPlanningPolicy
	geo      GeoServices
	composer *Composer
	verifier *Verifier
	logger   *slog.Logger
}

func NewPlanner(policy DayPlanningPolicy, geo GeoServices, composer *Composer, verifier *Verifier, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{policy: policy, geo: geo, composer: composer, verifier: verifier, logger: logger}
}

func (p *Planner) Policy() DayPlanningPolicy { return p.policy }

// PlanDay selects stops against visited and narrates them. A soft failure
// returns the failure text with no stops and a nil error; only cancellation
// is returned as an error. visited is not modified.
func (p *Planner) PlanDay(ctx context.Context, trip *Trip, day *Day, visited *VisitedRegistry) (string, []Stop, error) {
	if trip.Location == nil {
		return destinationNotLocated(trip.Destination), nil, nil
	}

	selection, err := p.policy.SelectStops(ctx, trip, day, *trip.Location, visited)
	if err != nil {
		return "", nil, err
	}
	if selection.Failed() {
		p.logger.WarnContext(ctx, "Day planning failed", "tripId", trip.ID, "day", day.Number,
			"policy", p.policy.Name(), "reason", selection.Failure)
		return selection.Failure, nil, nil
	}

	narrative, err := p.Narrate(ctx, trip, day, selection.Stops)
	if err != nil {
		return "", nil, err
	}
	return narrative, selection.Stops, nil
}

// Narrate composes and verifies the narrative for an already chosen stop list.
func (p *Planner) Narrate(ctx context.Context, trip *Trip, day *Day, stops []Stop) (string, error) {
	var anchor places.LatLng
	if trip.Location != nil {
		anchor = *trip.Location
	}

	weather := p.forecast(ctx, trip, day.Date, anchor)
	text, err := p.composer.Compose(ctx, trip, day, stops, weather)
	if err != nil {
		return "", err
	}
	return p.verifier.Verify(ctx, text, anchor, trip.Destination)
}

func (p *Planner) forecast(ctx context.Context, trip *Trip, date time.Time, at places.LatLng) Weather {
	if trip.Location == nil {
		return Weather{Note: weatherUnavailable}
	}
	weather, err := p.geo.Forecast(ctx, date, at)
	if err != nil {
		p.logger.WarnContext(ctx, "Weather lookup failed", "tripId", trip.ID, "date", date.Format(time.DateOnly), "error", err)
		return Weather{Note: weatherUnavailable}
	}
	return weather
}
