package itinerary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"tripplanner/places"
)

const defaultConcurrency = 6

// PlaceResolver turns suggestions into validated places.
type PlaceResolver interface {
	Resolve(ctx context.Context, text string, anchor places.LatLng, contextText string, tier places.Tier) (places.Candidate, error)
	Lookup(ctx context.Context, name string, anchor places.LatLng, contextText string) (places.Candidate, error)
}

// Selection is the outcome of choosing one day's stops. A non-empty Failure
// means the day failed softly and carries no stops.
type Selection struct {
	Stops   []Stop
	Missing []Role
	Failure string
}

func (s Selection) Failed() bool {
	return s.Failure != ""
}

// DayPlanningPolicy chooses the ordered stops of one day. The registry is
// read only; the caller records the chosen names once the day is done.
// The error is reserved for cancellation.
type DayPlanningPolicy interface {
	Name() string
	SelectStops(ctx context.Context, trip *Trip, day *Day, anchor places.LatLng, visited *VisitedRegistry) (Selection, error)
}

// MissingRolesMessage is the narrative of a day whose roles could not all be filled.
func MissingRolesMessage(missing []Role) string {
	return "Could not find valid places for roles: " + strings.Join(lo.Map(missing, func(r Role, _ int) string {
		return string(r)
	}), ", ")
}

// resolveAll resolves every text concurrently. A nil entry means no match
// or a failed search; failures are logged here.
func resolveAll(ctx context.Context, resolver PlaceResolver, logger *slog.Logger, texts []string, anchor places.LatLng, contextText string, tier places.Tier, limit int) ([]*places.Candidate, error) {
	results := make([]*places.Candidate, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		g.Go(func() error {
			candidate, err := resolver.Resolve(gctx, text, anchor, contextText, tier)
			switch {
			case err == nil:
				results[i] = &candidate
			case errors.Is(err, places.ErrNotFound):
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				logger.ErrorContext(gctx, "Place resolution failed", "text", text, "tier", tier.Name, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RoleSlotTieredPolicy fills the six role slots, escalating through
// increasingly permissive tiers until every role has a venue.
type RoleSlotTieredPolicy struct {
	generator   Generator
	resolver    PlaceResolver
	tiers       []places.Tier
	concurrency int
	logger      *slog.Logger
}

func NewRoleSlotTieredPolicy(generator Generator, resolver PlaceResolver, tiers []places.Tier, concurrency int, logger *slog.Logger) *RoleSlotTieredPolicy {
	if len(tiers) == 0 {
		tiers = places.DefaultTiers()
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleSlotTieredPolicy{
		generator:   generator,
		resolver:    resolver,
		tiers:       tiers,
		concurrency: concurrency,
		logger:      logger,
	}
}

func (p *RoleSlotTieredPolicy) Name() string { return "role_slot_tiered" }

func (p *RoleSlotTieredPolicy) SelectStops(ctx context.Context, trip *Trip, day *Day, anchor places.LatLng, visited *VisitedRegistry) (Selection, error) {
	var missing []Role
	for _, tier := range p.tiers {
		if err := ctx.Err(); err != nil {
			return Selection{}, err
		}

		stops, tierMissing, err := p.tryTier(ctx, trip, day, anchor, tier, visited)
		if err != nil {
			return Selection{}, err
		}
		if len(tierMissing) == 0 {
			p.logger.InfoContext(ctx, "Day resolved", "tripId", trip.ID, "day", day.Number, "tier", tier.Name)
			return Selection{Stops: stops}, nil
		}

		missing = tierMissing
		p.logger.WarnContext(ctx, "Roles missing, escalating tier",
			"tripId", trip.ID, "day", day.Number, "tier", tier.Name, "missing", missing)
	}

	return Selection{Missing: missing, Failure: MissingRolesMessage(missing)}, nil
}

// tryTier runs one full suggestion batch under tier. Partial matches are
// never carried into the next tier.
func (p *RoleSlotTieredPolicy) tryTier(ctx context.Context, trip *Trip, day *Day, anchor places.LatLng, tier places.Tier, visited *VisitedRegistry) ([]Stop, []Role, error) {
	suggestions, err := p.generator.SuggestDayPlan(ctx, trip, day.Number, SuggestionRequest{
		Mode:  SuggestCategories,
		Roles: Roles,
		Tier:  tier,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		p.logger.WarnContext(ctx, "Day plan suggestion failed", "tripId", trip.ID, "day", day.Number, "tier", tier.Name, "error", err)
		return nil, append([]Role(nil), Roles...), nil
	}

	byRole := make(map[Role]Suggestion, len(suggestions))
	for _, s := range suggestions {
		if _, dup := byRole[s.Role]; !dup {
			byRole[s.Role] = s
		}
	}
	categories := lo.Map(Roles, func(role Role, _ int) string {
		return byRole[role].Category
	})

	resolved, err := resolveAll(ctx, p.resolver, p.logger, categories, anchor, trip.Destination, tier, p.concurrency)
	if err != nil {
		return nil, nil, err
	}

	var stops []Stop
	var missing []Role
	today := NewVisitedRegistry()
	for i, role := range Roles {
		candidate := resolved[i]
		if candidate == nil {
			missing = append(missing, role)
			continue
		}
		if visited.Contains(candidate.Name) || !today.Add(candidate.Name) {
			p.logger.DebugContext(ctx, "Rejected duplicate venue", "day", day.Number, "role", role, "name", candidate.Name)
			missing = append(missing, role)
			continue
		}
		stops = append(stops, NewStop(role, *candidate))
	}
	return stops, missing, nil
}

// FreeFormRetryPolicy is the legacy planner: a free list of three to six
// venue names, regenerated until non-empty, then ordered by travel distance.
type FreeFormRetryPolicy struct {
	generator   Generator
	resolver    PlaceResolver
	sequencer   *Sequencer
	tier        places.Tier
	maxAttempts int
	minStops    int
	maxStops    int
	concurrency int
	logger      *slog.Logger
}

type FreeFormOptions struct {
	Tier        places.Tier
	MaxAttempts int
	MinStops    int
	MaxStops    int
	Concurrency int
}

func NewFreeFormRetryPolicy(generator Generator, resolver PlaceResolver, sequencer *Sequencer, opts FreeFormOptions, logger *slog.Logger) *FreeFormRetryPolicy {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.MinStops <= 0 {
		opts.MinStops = 3
	}
	if opts.MaxStops < opts.MinStops {
		opts.MaxStops = 6
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FreeFormRetryPolicy{
		generator:   generator,
		resolver:    resolver,
		sequencer:   sequencer,
		tier:        opts.Tier,
		maxAttempts: opts.MaxAttempts,
		minStops:    opts.MinStops,
		maxStops:    opts.MaxStops,
		concurrency: opts.Concurrency,
		logger:      logger,
	}
}

func (p *FreeFormRetryPolicy) Name() string { return "free_form_retry" }

func (p *FreeFormRetryPolicy) SelectStops(ctx context.Context, trip *Trip, day *Day, anchor places.LatLng, visited *VisitedRegistry) (Selection, error) {
	names, err := p.suggest(ctx, trip, day, visited)
	if err != nil {
		return Selection{}, err
	}
	if len(names) == 0 {
		return Selection{Failure: fmt.Sprintf("Could not find places for this day after %d attempts.", p.maxAttempts)}, nil
	}

	today := NewVisitedRegistry()
	fresh := lo.Filter(names, func(name string, _ int) bool {
		return !visited.Contains(name) && today.Add(name)
	})
	if len(fresh) == 0 {
		return Selection{Failure: "All suggested places were already visited or duplicated."}, nil
	}
	if len(fresh) > p.maxStops {
		fresh = fresh[:p.maxStops]
	}

	resolved, err := resolveAll(ctx, p.resolver, p.logger, fresh, anchor, trip.Destination, p.tier, p.concurrency)
	if err != nil {
		return Selection{}, err
	}

	var stops []Stop
	located := NewVisitedRegistry()
	for _, candidate := range resolved {
		if candidate == nil || visited.Contains(candidate.Name) || !located.Add(candidate.Name) {
			continue
		}
		stops = append(stops, NewStop("", *candidate))
	}
	if len(stops) < p.minStops {
		return Selection{Failure: fmt.Sprintf("Could not locate enough places: found %d of the %d required.", len(stops), p.minStops)}, nil
	}

	ordered, err := p.sequencer.Order(ctx, stops)
	if err != nil {
		if ctx.Err() != nil {
			return Selection{}, ctx.Err()
		}
		p.logger.WarnContext(ctx, "Distance matrix unavailable", "tripId", trip.ID, "day", day.Number, "error", err)
		return Selection{Failure: "Could not compute distances between the places."}, nil
	}
	return Selection{Stops: ordered}, nil
}

func (p *FreeFormRetryPolicy) suggest(ctx context.Context, trip *Trip, day *Day, visited *VisitedRegistry) ([]string, error) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		suggestions, err := p.generator.SuggestDayPlan(ctx, trip, day.Number, SuggestionRequest{
			Mode:      SuggestNames,
			Tier:      p.tier,
			Visited:   visited.Names(),
			MaxPlaces: p.maxStops,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.WarnContext(ctx, "Free-form suggestion failed", "day", day.Number, "attempt", attempt, "error", err)
			continue
		}

		names := lo.FilterMap(suggestions, func(s Suggestion, _ int) (string, bool) {
			name := strings.TrimSpace(s.Name)
			return name, name != ""
		})
		if len(names) > 0 {
			return names, nil
		}
	}
	return nil, nil
}
