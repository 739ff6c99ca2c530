package places

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// lookupRadiusMeters biases existence lookups that carry no tier.
const lookupRadiusMeters = 50_000

// Resolver turns a category or a venue name into a validated place.
type Resolver struct {
	searcher Searcher
	logger   *slog.Logger
}

func NewResolver(searcher Searcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{searcher: searcher, logger: logger}
}

func searchQuery(text, contextText string) string {
	text = strings.TrimSpace(text)
	contextText = strings.TrimSpace(contextText)
	if contextText == "" {
		return text
	}
	return fmt.Sprintf("%s in %s", text, contextText)
}

// Resolve returns the first search result, in relevance order, that passes
// Accept under tier. It returns ErrNotFound when none does.
func (r *Resolver) Resolve(ctx context.Context, text string, anchor LatLng, contextText string, tier Tier) (Candidate, error) {
	query := searchQuery(text, contextText)
	radius := tier.RadiusMeters
	if radius <= 0 {
		radius = lookupRadiusMeters
	}

	results, err := r.searcher.Search(ctx, query, anchor, radius)
	if err != nil {
		return Candidate{}, fmt.Errorf("search %q: %w", query, err)
	}

	for _, candidate := range results {
		if Accept(candidate, anchor, tier) {
			return candidate, nil
		}
	}

	r.logger.DebugContext(ctx, "No candidate passed criteria",
		"query", query, "tier", tier.String(), "results", len(results))
	return Candidate{}, ErrNotFound
}

// Lookup confirms that a named place exists, without applying any tier.
func (r *Resolver) Lookup(ctx context.Context, name string, anchor LatLng, contextText string) (Candidate, error) {
	query := searchQuery(name, contextText)
	results, err := r.searcher.Search(ctx, query, anchor, lookupRadiusMeters)
	if err != nil {
		return Candidate{}, fmt.Errorf("lookup %q: %w", query, err)
	}
	if len(results) == 0 {
		return Candidate{}, ErrNotFound
	}
	return results[0], nil
}
