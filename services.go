package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/time/rate"

	"tripplanner/config"
	"tripplanner/google"
	"tripplanner/itinerary"
	"tripplanner/llm"
	"tripplanner/places"
	"tripplanner/resilient"
	"tripplanner/routes"
	"tripplanner/store"
	"tripplanner/trips"
)

// services holds everything the HTTP routes and CLI commands share. It is
// filled once the PocketBase app has bootstrapped.
type services struct {
	store        *store.Store
	orchestrator *itinerary.Orchestrator
	assistant    *llm.Service
	closers      []func() error
}

func (s *services) init(ctx context.Context, app core.App, cfg *config.Config) error {
	logger := app.Logger()

	if cfg.Google.APIKey == "" {
		logger.Warn("GOOGLEMAPS_KEY is not set; place lookups will fail")
	}

	googleCaller := &resilient.Caller{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     resilient.ExponentialBackoff(cfg.Retry.BackoffUnit),
		Limiter:     rate.NewLimiter(rate.Limit(cfg.Google.RequestsPerSecond), cfg.Google.Burst),
		Logger:      logger,
	}
	maps := google.New(cfg.Google.APIKey,
		google.WithCaller(googleCaller),
		google.WithLanguage(cfg.Google.Language),
	)

	cache, err := s.candidateStore(cfg, logger)
	if err != nil {
		return err
	}
	resolver := places.NewResolver(places.NewCachedSearcher(maps, cache, logger), logger)

	completer, err := newCompleter(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	llmCaller := &resilient.Caller{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     resilient.ExponentialBackoff(cfg.Retry.BackoffUnit),
		Logger:      logger,
	}
	generator := llm.NewService(completer, llmCaller, logger)

	zones, err := trips.NewTimezones()
	if err != nil {
		return err
	}

	policy := newPolicy(cfg.Planner, generator, resolver, maps, logger)
	planner := itinerary.NewPlanner(policy, maps,
		itinerary.NewComposer(generator, logger),
		itinerary.NewVerifier(resolver, logger),
		logger,
	)

	s.store = store.New(app)
	s.assistant = generator
	s.orchestrator = itinerary.NewOrchestrator(planner, generator, maps, resolver, s.store, itinerary.Options{
		ReplacementAttempts: cfg.Planner.ReplacementAttempts,
		Zones:               zones,
		Logger:              logger,
	})

	logger.Info("Itinerary planner ready", "policy", policy.Name(), "llm", cfg.LLM.Provider, "redis", cfg.Cache.RedisURL != "")
	return nil
}

func (s *services) candidateStore(cfg *config.Config, logger *slog.Logger) (places.CandidateStore, error) {
	if cfg.Cache.RedisURL == "" {
		return places.NewMemoryStore(cfg.Cache.TTL, cfg.Cache.TTL*2), nil
	}
	redisStore, err := places.NewRedisStore(cfg.Cache.RedisURL, cfg.Cache.TTL, logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, redisStore.Close)
	return redisStore, nil
}

func newCompleter(ctx context.Context, cfg config.LLM) (llm.Completer, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is not configured")
		}
		return llm.NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.Model)
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is not configured")
		}
		return llm.NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.Model), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

func newPolicy(cfg config.Planner, generator itinerary.Generator, resolver itinerary.PlaceResolver, geo itinerary.GeoServices, logger *slog.Logger) itinerary.DayPlanningPolicy {
	if cfg.Policy == config.PolicyFreeFormRetry {
		return itinerary.NewFreeFormRetryPolicy(generator, resolver, itinerary.NewSequencer(geo), itinerary.FreeFormOptions{
			Tier:        cfg.Tiers[len(cfg.Tiers)-1],
			MaxAttempts: cfg.FreeForm.MaxAttempts,
			MinStops:    cfg.FreeForm.MinStops,
			MaxStops:    cfg.FreeForm.MaxStops,
			Concurrency: cfg.Concurrency,
		}, logger)
	}
	return itinerary.NewRoleSlotTieredPolicy(generator, resolver, cfg.Tiers, cfg.Concurrency, logger)
}

func (s *services) ready() bool {
	return s.orchestrator != nil
}

func (s *services) handlers() *routes.Handlers {
	return &routes.Handlers{Planner: s.orchestrator, Trips: s.store, Assistant: s.assistant}
}

func (s *services) Close() error {
	var errs []error
	for _, closeFn := range s.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}
