package itinerary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"tripplanner/places"
)

// PlaceMarker prefixes every venue name in a narrative so it can be
// verified afterwards.
const PlaceMarker = "📍"

const weatherUnavailable = "Weather unavailable"

// markerName extracts the venue named on a marker line.
func markerName(line string) (string, bool) {
	_, after, found := strings.Cut(line, PlaceMarker)
	if !found {
		return "", false
	}
	name := strings.Trim(after, " \t*_")
	return name, name != ""
}

// MarkerNames lists the venue names marked in text, in order.
func MarkerNames(text string) []string {
	var names []string
	for _, line := range strings.Split(text, "\n") {
		if name, ok := markerName(line); ok {
			names = append(names, name)
		}
	}
	return names
}

// markersMatch reports whether text marks exactly stops, in order.
func markersMatch(text string, stops []Stop) bool {
	names := MarkerNames(text)
	if len(names) != len(stops) {
		return false
	}
	for i, name := range names {
		if NameKey(name) != NameKey(stops[i].Name) {
			return false
		}
	}
	return true
}

// WeatherSummary renders a forecast for prompts and fallback narratives.
func WeatherSummary(w Weather) string {
	if !w.Available {
		if w.Note != "" {
			return w.Note
		}
		return weatherUnavailable
	}
	conditions := w.Conditions
	if conditions == "" {
		conditions = "Forecast"
	}
	return fmt.Sprintf("%s, %.0f°C to %.0f°C", conditions, w.TempMin, w.TempMax)
}

// FallbackNarrative builds a plain narrative listing stops in order. It is
// used when generated text does not name the chosen venues exactly.
func FallbackNarrative(day *Day, stops []Stop, weather Weather) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Day %d - %s\n", day.Number, day.Date.Format("Monday, 2 January 2006"))
	fmt.Fprintf(&b, "Weather: %s\n", WeatherSummary(weather))
	for _, stop := range stops {
		fmt.Fprintf(&b, "\n%s: %s %s", stop.Role.Label(), PlaceMarker, stop.Name)
	}
	return b.String()
}

// Composer turns a day's stops into prose that names each stop once.
type Composer struct {
	generator Generator
	logger    *slog.Logger
}

func NewComposer(generator Generator, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{generator: generator, logger: logger}
}

// Compose asks the generator for a narrative and falls back to a
// deterministic one when the reply fails or names other venues.
func (c *Composer) Compose(ctx context.Context, trip *Trip, day *Day, stops []Stop, weather Weather) (string, error) {
	text, err := c.generator.ComposeNarrative(ctx, trip, day, stops, weather)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.WarnContext(ctx, "Narrative generation failed", "tripId", trip.ID, "day", day.Number, "error", err)
	case !markersMatch(text, stops):
		c.logger.WarnContext(ctx, "Narrative names other venues than the chosen stops",
			"tripId", trip.ID, "day", day.Number, "want", len(stops), "got", len(MarkerNames(text)))
	default:
		return text, nil
	}
	return FallbackNarrative(day, stops, weather), nil
}

// MapsLink returns a Google Maps search link for address.
func MapsLink(address string) string {
	return "https://www.google.com/maps/search/?" + url.Values{
		"api":   {"1"},
		"query": {address},
	}.Encode()
}

func notFoundWarning(name string) string {
	return fmt.Sprintf("⚠️ [WARNING] Could not find '%s' on Google Places.", name)
}

// Verifier annotates every marked venue with its looked-up address, or a
// warning when the lookup finds nothing.
type Verifier struct {
	resolver PlaceResolver
	logger   *slog.Logger
}

func NewVerifier(resolver PlaceResolver, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{resolver: resolver, logger: logger}
}

func (v *Verifier) Verify(ctx context.Context, text string, anchor places.LatLng, destination string) (string, error) {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, line)
		name, ok := markerName(line)
		if !ok {
			continue
		}

		candidate, err := v.resolver.Lookup(ctx, name, anchor, destination)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if !errors.Is(err, places.ErrNotFound) {
				v.logger.WarnContext(ctx, "Place lookup failed", "name", name, "error", err)
			}
			out = append(out, notFoundWarning(name))
			continue
		}

		address := candidate.Address
		if address == "" {
			address = "Address not found"
		}
		out = append(out,
			fmt.Sprintf("(verified address: %s)", address),
			fmt.Sprintf("[View on Google Maps](%s)", MapsLink(address)),
		)
	}
	return strings.Join(out, "\n"), nil
}
