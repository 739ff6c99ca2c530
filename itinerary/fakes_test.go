package itinerary

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"tripplanner/places"
)

var paris = places.LatLng{Lat: 48.8566, Lng: 2.3522}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTrip(start, end string) *Trip {
	return &Trip{
		ID:          "trip1",
		Destination: "Paris",
		StartDate:   date(start),
		EndDate:     date(end),
		Budget:      900,
		Travelers:   2,
	}
}

// fakeGenerator answers day plans from a script keyed by tier name, or by
// day number in names mode.
type fakeGenerator struct {
	mu sync.Mutex

	categories   map[string][]Suggestion
	names        map[int][][]Suggestion
	replacements []string
	overview     string
	overviewErr  error
	suggestErr   error
	narrate      func(day *Day, stops []Stop) (string, error)

	tiers            []string
	nameCalls        int
	replacementCalls int
	replaceVisited   [][]string
	replaceNotes     []string
	weathers         []Weather
}

func (g *fakeGenerator) Overview(context.Context, *Trip) (string, error) {
	if g.overviewErr != nil {
		return "", g.overviewErr
	}
	return g.overview, nil
}

func (g *fakeGenerator) SuggestDayPlan(_ context.Context, _ *Trip, dayNumber int, req SuggestionRequest) ([]Suggestion, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if req.Mode == SuggestNames {
		attempt := g.nameCalls
		g.nameCalls++
		if g.suggestErr != nil {
			return nil, g.suggestErr
		}
		script := g.names[dayNumber]
		if attempt >= len(script) {
			return nil, nil
		}
		return script[attempt], nil
	}
	g.tiers = append(g.tiers, req.Tier.Name)
	if g.suggestErr != nil {
		return nil, g.suggestErr
	}
	return g.categories[req.Tier.Name], nil
}

func (g *fakeGenerator) SuggestReplacement(_ context.Context, _ *Trip, _ int, visited []string, note string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replaceVisited = append(g.replaceVisited, visited)
	g.replaceNotes = append(g.replaceNotes, note)
	if g.replacementCalls >= len(g.replacements) {
		g.replacementCalls++
		return "", errors.New("no more replacements")
	}
	name := g.replacements[g.replacementCalls]
	g.replacementCalls++
	return name, nil
}

func (g *fakeGenerator) ComposeNarrative(_ context.Context, _ *Trip, day *Day, stops []Stop, weather Weather) (string, error) {
	g.mu.Lock()
	g.weathers = append(g.weathers, weather)
	g.mu.Unlock()

	if g.narrate != nil {
		return g.narrate(day, stops)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "A lovely day %d.", day.Number)
	for _, stop := range stops {
		fmt.Fprintf(&b, "\nVisit %s %s", PlaceMarker, stop.Name)
	}
	return b.String(), nil
}

// allRoles builds a categories reply with one category per role.
func allRoles(prefix string) []Suggestion {
	out := make([]Suggestion, 0, len(Roles))
	for _, role := range Roles {
		out = append(out, Suggestion{Role: role, Category: prefix + " " + string(role)})
	}
	return out
}

// fakeResolver resolves "text@tier" keys first, then plain text.
type fakeResolver struct {
	mu       sync.Mutex
	resolved map[string]places.Candidate
	lookups  map[string]places.Candidate
	err      error
	calls    []string
}

func (r *fakeResolver) Resolve(_ context.Context, text string, _ places.LatLng, _ string, tier places.Tier) (places.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, text+"@"+tier.Name)
	if r.err != nil {
		return places.Candidate{}, r.err
	}
	if c, ok := r.resolved[text+"@"+tier.Name]; ok {
		return c, nil
	}
	if c, ok := r.resolved[text]; ok {
		return c, nil
	}
	return places.Candidate{}, places.ErrNotFound
}

func (r *fakeResolver) Lookup(_ context.Context, name string, _ places.LatLng, _ string) (places.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.lookups[name]; ok {
		return c, nil
	}
	return places.Candidate{}, places.ErrNotFound
}

func (r *fakeResolver) callsFor(text string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, call := range r.calls {
		if strings.HasPrefix(call, text+"@") {
			out = append(out, call)
		}
	}
	return out
}

func venue(name string, lat, lng float64) places.Candidate {
	return places.Candidate{
		Name:           name,
		Address:        name + " address",
		Location:       places.LatLng{Lat: lat, Lng: lng},
		Rating:         4.5,
		BusinessStatus: places.StatusOperational,
	}
}

type fakeGeo struct {
	location    places.LatLng
	geocodeErr  error
	matrixErr   error
	forecastErr error
	matrix      func(points []places.LatLng) [][]float64
}

func (g *fakeGeo) Geocode(context.Context, string) (places.LatLng, error) {
	if g.geocodeErr != nil {
		return places.LatLng{}, g.geocodeErr
	}
	return g.location, nil
}

func (g *fakeGeo) DistanceMatrix(_ context.Context, points []places.LatLng) ([][]float64, error) {
	if g.matrixErr != nil {
		return nil, g.matrixErr
	}
	if g.matrix != nil {
		return g.matrix(points), nil
	}
	out := make([][]float64, len(points))
	for i := range points {
		out[i] = make([]float64, len(points))
		for j := range points {
			out[i][j] = places.DistanceKm(points[i], points[j]) * 1000
		}
	}
	return out, nil
}

func (g *fakeGeo) Forecast(context.Context, time.Time, places.LatLng) (Weather, error) {
	if g.forecastErr != nil {
		return Weather{}, g.forecastErr
	}
	return Weather{Available: true, Conditions: "Sunny", TempMin: 12, TempMax: 21}, nil
}

var inf = math.Inf(1)

type memRepo struct {
	mu    sync.Mutex
	trips int
	days  []int
	err   error
}

func (r *memRepo) SaveTrip(context.Context, *Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trips++
	return r.err
}

func (r *memRepo) SaveDay(_ context.Context, _ *Trip, day *Day) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.days = append(r.days, day.Number)
	return r.err
}

func stopNames(stops []Stop) []string {
	out := make([]string, len(stops))
	for i, s := range stops {
		out[i] = s.Name
	}
	return out
}
