package itinerary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const overviewUnavailable = "Overview unavailable."

var (
	ErrDayNotFound   = errors.New("day not found")
	ErrNoReplacement = errors.New("no replacement venue found")
)

func destinationNotLocated(destination string) string {
	return fmt.Sprintf("Could not locate destination %q.", destination)
}

type Options struct {
	// ReplacementAttempts bounds how many suggestions a replacement may try
	// before giving up on collisions with visited venues.
	ReplacementAttempts int
	Zones               ZoneLocator
	Logger              *slog.Logger
}

// Orchestrator plans whole trips day by day and replaces single stops.
type Orchestrator struct {
	planner   *Planner
	generator Generator
	geo       GeoServices
	resolver  PlaceResolver
	repo      Repository
	zones     ZoneLocator
	attempts  int
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewOrchestrator(planner *Planner, generator Generator, geo GeoServices, resolver PlaceResolver, repo Repository, opts Options) *Orchestrator {
	if opts.ReplacementAttempts <= 0 {
		opts.ReplacementAttempts = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		planner:   planner,
		generator: generator,
		geo:       geo,
		resolver:  resolver,
		repo:      repo,
		zones:     opts.Zones,
		attempts:  opts.ReplacementAttempts,
		logger:    opts.Logger,
		tracer:    otel.Tracer("tripplanner/itinerary"),
	}
}

// PlanTrip locates the destination, writes the overview and plans every day
// in date order. Each day sees the venues of all earlier days, so no venue
// repeats across the trip. Per-day failures are recorded as the day's
// narrative; the returned error is reserved for invalid input, persistence
// failures and cancellation.
func (o *Orchestrator) PlanTrip(ctx context.Context, trip *Trip) (*Trip, error) {
	ctx, span := o.tracer.Start(ctx, "itinerary.PlanTrip", trace.WithAttributes(
		attribute.String("trip.id", trip.ID),
		attribute.String("trip.destination", trip.Destination),
		attribute.String("planner.policy", o.planner.Policy().Name()),
	))
	defer span.End()

	if err := trip.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid trip")
		return nil, fmt.Errorf("invalid trip: %w", err)
	}
	span.SetAttributes(attribute.Int("trip.days", trip.TotalDays()))

	o.locate(ctx, trip)
	o.overview(ctx, trip)

	if err := o.repo.SaveTrip(ctx, trip); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save trip")
		return trip, fmt.Errorf("save trip: %w", err)
	}

	visited := NewVisitedRegistry()
	days := make([]*Day, 0, trip.TotalDays())
	for n := 1; n <= trip.TotalDays(); n++ {
		day, err := o.planDay(ctx, trip, n, visited)
		if err != nil {
			trip.Days = days
			span.RecordError(err)
			span.SetStatus(codes.Error, "plan day")
			return trip, err
		}
		days = append(days, day)
	}
	trip.Days = days

	o.logger.InfoContext(ctx, "Trip planned", "tripId", trip.ID, "days", len(days), "venues", visited.Len())
	return trip, nil
}

func (o *Orchestrator) planDay(ctx context.Context, trip *Trip, number int, visited *VisitedRegistry) (*Day, error) {
	ctx, span := o.tracer.Start(ctx, "itinerary.PlanDay", trace.WithAttributes(attribute.Int("day.number", number)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	day, ok := trip.Day(number)
	if !ok {
		day = &Day{TripID: trip.ID, Number: number}
	}
	day.Date = trip.DateOf(number)

	narrative, stops, err := o.planner.PlanDay(ctx, trip, day, visited)
	if err != nil {
		return nil, err
	}
	day.Narrative = narrative
	day.Stops = stops
	visited.AddStops(stops)
	span.SetAttributes(attribute.Int("day.stops", len(stops)))

	if err := o.repo.SaveDay(ctx, trip, day); err != nil {
		return nil, fmt.Errorf("save day %d: %w", number, err)
	}
	return day, nil
}

func (o *Orchestrator) locate(ctx context.Context, trip *Trip) {
	at, err := o.geo.Geocode(ctx, trip.Destination)
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to geocode destination", "tripId", trip.ID, "destination", trip.Destination, "error", err)
		trip.Location = nil
		return
	}
	trip.Location = &at
	if o.zones != nil {
		trip.Timezone = o.zones.Zone(at)
	}
}

func (o *Orchestrator) overview(ctx context.Context, trip *Trip) {
	text, err := o.generator.Overview(ctx, trip)
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to generate overview", "tripId", trip.ID, "error", err)
		trip.Overview = overviewUnavailable
		return
	}
	trip.Overview = text
}
