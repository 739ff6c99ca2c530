package itinerary

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tripplanner/places"
)

// ReplaceStop swaps one stop of a planned day for a fresh venue that is not
// used anywhere else in the trip. The new stop takes the same position and
// role, and the day's narrative is rebuilt. On failure the day is left as it
// was.
func (o *Orchestrator) ReplaceStop(ctx context.Context, trip *Trip, dayNumber int, ref StopRef, note string) (*Day, error) {
	ctx, span := o.tracer.Start(ctx, "itinerary.ReplaceStop", trace.WithAttributes(
		attribute.String("trip.id", trip.ID),
		attribute.Int("day.number", dayNumber),
	))
	defer span.End()

	day, ok := trip.Day(dayNumber)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrDayNotFound, dayNumber)
	}
	index, err := day.IndexOf(ref)
	if err != nil {
		return day, err
	}
	original := day.Stops[index]

	visited := RebuildRegistry(trip.Days, dayNumber, index)
	replacement, err := o.pickReplacement(ctx, trip, day, original, visited, note)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pick replacement")
		return day, err
	}

	stops := slices.Clone(day.Stops)
	stops = slices.Delete(stops, index, index+1)
	stops = slices.Insert(stops, index, replacement)

	narrative, err := o.planner.Narrate(ctx, trip, day, stops)
	if err != nil {
		return day, err
	}
	day.Stops = stops
	day.Narrative = narrative

	if err := o.repo.SaveDay(ctx, trip, day); err != nil {
		return day, fmt.Errorf("save day %d: %w", dayNumber, err)
	}

	o.logger.InfoContext(ctx, "Stop replaced", "tripId", trip.ID, "day", dayNumber, "index", index,
		"from", original.Name, "to", replacement.Name)
	return day, nil
}

func (o *Orchestrator) pickReplacement(ctx context.Context, trip *Trip, day *Day, original Stop, visited *VisitedRegistry, note string) (Stop, error) {
	taken := NewVisitedRegistry(visited.Names()...)
	same := func(name string) bool { return NameKey(name) == NameKey(original.Name) }

	var lastErr error
	for attempt := 1; attempt <= o.attempts; attempt++ {
		name, err := o.generator.SuggestReplacement(ctx, trip, day.Number, taken.Names(), note)
		if err != nil {
			if ctx.Err() != nil {
				return Stop{}, ctx.Err()
			}
			o.logger.WarnContext(ctx, "Replacement suggestion failed", "tripId", trip.ID, "day", day.Number, "attempt", attempt, "error", err)
			lastErr = err
			continue
		}

		name = strings.TrimSpace(name)
		if name == "" || same(name) || !taken.Add(name) {
			o.logger.DebugContext(ctx, "Replacement collides with a visited venue", "name", name, "attempt", attempt)
			continue
		}

		if trip.Location == nil {
			return UnlocatedStop(original.Role, name), nil
		}
		candidate, err := o.resolver.Resolve(ctx, name, *trip.Location, trip.Destination, places.Unconstrained)
		if err != nil {
			if ctx.Err() != nil {
				return Stop{}, ctx.Err()
			}
			if !errors.Is(err, places.ErrNotFound) {
				o.logger.WarnContext(ctx, "Replacement lookup failed", "name", name, "error", err)
			}
			return UnlocatedStop(original.Role, name), nil
		}
		if same(candidate.Name) || (NameKey(candidate.Name) != NameKey(name) && !taken.Add(candidate.Name)) {
			o.logger.DebugContext(ctx, "Resolved replacement collides with a visited venue", "name", candidate.Name, "attempt", attempt)
			continue
		}
		return NewStop(original.Role, candidate), nil
	}

	if lastErr != nil {
		return Stop{}, fmt.Errorf("%w after %d attempts: %w", ErrNoReplacement, o.attempts, lastErr)
	}
	return Stop{}, fmt.Errorf("%w after %d attempts", ErrNoReplacement, o.attempts)
}
