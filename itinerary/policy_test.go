package itinerary

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tripplanner/places"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// roleVenues maps "c <role>" to a distinct venue per role.
func roleVenues() map[string]places.Candidate {
	out := make(map[string]places.Candidate, len(Roles))
	for i, role := range Roles {
		out["c "+string(role)] = venue("Venue "+string(role), 48.85+float64(i)*0.001, 2.35)
	}
	return out
}

func sameEveryTier() map[string][]Suggestion {
	return map[string][]Suggestion{
		"strict":     allRoles("c"),
		"relaxed":    allRoles("c"),
		"permissive": allRoles("c"),
	}
}

func TestRoleSlotTieredPolicy_FirstTierSuffices(t *testing.T) {
	gen := &fakeGenerator{categories: sameEveryTier()}
	res := &fakeResolver{resolved: roleVenues()}
	policy := NewRoleSlotTieredPolicy(gen, res, nil, 0, nil)

	trip := newTrip("2025-06-01", "2025-06-01")
	sel, err := policy.SelectStops(context.Background(), trip, &Day{Number: 1}, paris, NewVisitedRegistry())
	require.NoError(t, err)

	assert.False(t, sel.Failed())
	require.Len(t, sel.Stops, 6)
	assert.Equal(t, []string{"strict"}, gen.tiers)
	for i, role := range Roles {
		assert.Equal(t, role, sel.Stops[i].Role)
		assert.Equal(t, "Venue "+string(role), sel.Stops[i].Name)
		assert.True(t, sel.Stops[i].Located())
		assert.NotEmpty(t, sel.Stops[i].ID)
	}
}

func TestRoleSlotTieredPolicy_EscalatesForMissingRole(t *testing.T) {
	resolved := roleVenues()
	delete(resolved, "c dinner")
	resolved["c dinner@permissive"] = venue("Late Bistro", 48.86, 2.34)

	gen := &fakeGenerator{categories: sameEveryTier()}
	res := &fakeResolver{resolved: resolved}
	policy := NewRoleSlotTieredPolicy(gen, res, nil, 2, nil)

	trip := newTrip("2025-06-01", "2025-06-01")
	sel, err := policy.SelectStops(context.Background(), trip, &Day{Number: 1}, paris, NewVisitedRegistry())
	require.NoError(t, err)

	require.Len(t, sel.Stops, 6)
	assert.Equal(t, []string{"strict", "relaxed", "permissive"}, gen.tiers)
	assert.Equal(t, []string{"c dinner@strict", "c dinner@relaxed", "c dinner@permissive"}, res.callsFor("c dinner"))
	assert.Equal(t, RoleDinner, sel.Stops[4].Role)
	assert.Equal(t, "Late Bistro", sel.Stops[4].Name)
}

func TestRoleSlotTieredPolicy_AllTiersFail(t *testing.T) {
	resolved := roleVenues()
	delete(resolved, "c lunch")

	gen := &fakeGenerator{categories: sameEveryTier()}
	policy := NewRoleSlotTieredPolicy(gen, &fakeResolver{resolved: resolved}, nil, 0, nil)

	trip := newTrip("2025-06-01", "2025-06-01")
	sel, err := policy.SelectStops(context.Background(), trip, &Day{Number: 1}, paris, NewVisitedRegistry())
	require.NoError(t, err)

	assert.True(t, sel.Failed())
	assert.Equal(t, "Could not find valid places for roles: lunch", sel.Failure)
	assert.Empty(t, sel.Stops)
	assert.Equal(t, []Role{RoleLunch}, sel.Missing)
	assert.Len(t, gen.tiers, 3)
}

func TestRoleSlotTieredPolicy_RejectsVisitedVenueIgnoringCase(t *testing.T) {
	resolved := roleVenues()
	resolved["c morning@strict"] = venue("eiffel tower", 48.8584, 2.2945)
	resolved["c morning@relaxed"] = venue("Musée d'Orsay", 48.86, 2.3265)

	gen := &fakeGenerator{categories: sameEveryTier()}
	policy := NewRoleSlotTieredPolicy(gen, &fakeResolver{resolved: resolved}, nil, 0, nil)

	visited := NewVisitedRegistry("Eiffel Tower")
	trip := newTrip("2025-06-01", "2025-06-02")
	sel, err := policy.SelectStops(context.Background(), trip, &Day{Number: 2}, paris, visited)
	require.NoError(t, err)

	require.Len(t, sel.Stops, 6)
	assert.Equal(t, []string{"strict", "relaxed"}, gen.tiers)
	assert.Equal(t, "Musée d'Orsay", sel.Stops[1].Name)
	assert.Equal(t, 1, visited.Len(), "policy must not write to the registry")
}

func TestRoleSlotTieredPolicy_RejectsRepeatWithinDay(t *testing.T) {
	resolved := roleVenues()
	resolved["c dinner"] = resolved["c lunch"]

	gen := &fakeGenerator{categories: sameEveryTier()}
	policy := NewRoleSlotTieredPolicy(gen, &fakeResolver{resolved: resolved}, nil, 0, nil)

	sel, err := policy.SelectStops(context.Background(), newTrip("2025-06-01", "2025-06-01"), &Day{Number: 1}, paris, NewVisitedRegistry())
	require.NoError(t, err)
	assert.Equal(t, "Could not find valid places for roles: dinner", sel.Failure)
}

func TestRoleSlotTieredPolicy_SuggestionFailureMarksAllRolesMissing(t *testing.T) {
	gen := &fakeGenerator{suggestErr: errors.New("model overloaded")}
	policy := NewRoleSlotTieredPolicy(gen, &fakeResolver{}, nil, 0, nil)

	sel, err := policy.SelectStops(context.Background(), newTrip("2025-06-01", "2025-06-01"), &Day{Number: 1}, paris, NewVisitedRegistry())
	require.NoError(t, err)
	assert.Equal(t, "Could not find valid places for roles: breakfast, morning, lunch, afternoon, dinner, evening", sel.Failure)
	assert.Len(t, gen.tiers, 3)
}

func TestRoleSlotTieredPolicy_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &fakeGenerator{categories: sameEveryTier()}
	policy := NewRoleSlotTieredPolicy(gen, &fakeResolver{resolved: roleVenues()}, nil, 0, nil)

	_, err := policy.SelectStops(ctx, newTrip("2025-06-01", "2025-06-01"), &Day{Number: 1}, paris, NewVisitedRegistry())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, gen.tiers)
}

func names(list ...string) []Suggestion {
	out := make([]Suggestion, len(list))
	for i, name := range list {
		out[i] = Suggestion{Name: name}
	}
	return out
}

func TestFreeFormRetryPolicy_RetriesUntilNonEmptyAndOrders(t *testing.T) {
	gen := &fakeGenerator{names: map[int][][]Suggestion{
		1: {
			nil,
			names("  "),
			names("Louvre", "Eiffel Tower", "Notre-Dame", "louvre"),
		},
	}}
	res := &fakeResolver{resolved: map[string]places.Candidate{
		"Louvre":       venue("Louvre", 48.8606, 2.3376),
		"Eiffel Tower": venue("Eiffel Tower", 48.8584, 2.2945),
		"Notre-Dame":   venue("Notre-Dame", 48.8530, 2.3499),
	}}
	policy := NewFreeFormRetryPolicy(gen, res, NewSequencer(&fakeGeo{}), FreeFormOptions{}, nil)

	sel, err := policy.SelectStops(context.Background(), newTrip("2025-06-01", "2025-06-01"), &Day{Number: 1}, paris, NewVisitedRegistry())
	require.NoError(t, err)
	require.False(t, sel.Failed(), sel.Failure)

	assert.Equal(t, 3, gen.nameCalls)
	// Louvre first, then the closer Notre-Dame, then the Eiffel Tower
	assert.Equal(t, []string{"Louvre", "Notre-Dame", "Eiffel Tower"}, stopNames(sel.Stops))
}

func TestFreeFormRetryPolicy_GivesUpAfterAttempts(t *testing.T) {
	gen := &fakeGenerator{}
	policy := NewFreeFormRetryPolicy(gen, &fakeResolver{}, NewSequencer(&fakeGeo{}), FreeFormOptions{}, nil)

	sel, err := policy.SelectStops(context.Background(), newTrip("2025-06-01", "2025-06-01"), &Day{Number: 1}, paris, NewVisitedRegistry())
	require.NoError(t, err)
	assert.Equal(t, "Could not find places for this day after 5 attempts.", sel.Failure)
	assert.Equal(t, 5, gen.nameCalls)
}

func TestFreeFormRetryPolicy_TooFewLocated(t *testing.T) {
	gen := &fakeGenerator{names: map[int][][]Suggestion{1: {names("Louvre", "Nowhere", "Eiffel Tower")}}}
	res := &fakeResolver{resolved: map[string]places.Candidate{
		"Louvre":       venue("Louvre", 48.8606, 2.3376),
		"Eiffel Tower": venue("Eiffel Tower", 48.8584, 2.2945),
	}}
	policy := NewFreeFormRetryPolicy(gen, res, NewSequencer(&fakeGeo{}), FreeFormOptions{}, nil)

	sel, err := policy.SelectStops(context.Background(), newTrip("2025-06-01", "2025-06-01"), &Day{Number: 1}, paris, NewVisitedRegistry("Notre-Dame"))
	require.NoError(t, err)
	assert.Equal(t, "Could not locate enough places: found 2 of the 3 required.", sel.Failure)
}

func TestFreeFormRetryPolicy_MatrixFailure(t *testing.T) {
	gen := &fakeGenerator{names: map[int][][]Suggestion{1: {names("A", "B", "C")}}}
	res := &fakeResolver{resolved: map[string]places.Candidate{
		"A": venue("A", 48.85, 2.35),
		"B": venue("B", 48.86, 2.35),
		"C": venue("C", 48.87, 2.35),
	}}
	geo := &fakeGeo{matrixErr: errors.New("REQUEST_DENIED")}
	policy := NewFreeFormRetryPolicy(gen, res, NewSequencer(geo), FreeFormOptions{}, nil)

	sel, err := policy.SelectStops(context.Background(), newTrip("2025-06-01", "2025-06-01"), &Day{Number: 1}, paris, NewVisitedRegistry())
	require.NoError(t, err)
	assert.Equal(t, "Could not compute distances between the places.", sel.Failure)
}
