package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"tripplanner/places"
)

const (
	PolicyRoleSlotTiered = "role_slot_tiered"
	PolicyFreeFormRetry  = "free_form_retry"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Planner Planner `yaml:"planner"`
	Google  Google  `yaml:"google"`
	LLM     LLM     `yaml:"llm"`
	Cache   Cache   `yaml:"cache"`
	Retry   Retry   `yaml:"retry"`
}

type Planner struct {
	Policy              string        `yaml:"policy"`
	Concurrency         int           `yaml:"concurrency"`
	ReplacementAttempts int           `yaml:"replacement_attempts"`
	Tiers               []places.Tier `yaml:"tiers"`
	FreeForm            FreeForm      `yaml:"free_form"`
}

type FreeForm struct {
	MaxAttempts int `yaml:"max_attempts"`
	MinStops    int `yaml:"min_stops"`
	MaxStops    int `yaml:"max_stops"`
}

type Google struct {
	APIKey            string  `yaml:"api_key"`
	Language          string  `yaml:"language"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type LLM struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	OpenAIAPIKey string `yaml:"openai_api_key"`
	GeminiAPIKey string `yaml:"gemini_api_key"`
}

type Cache struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffUnit time.Duration `yaml:"backoff_unit"`
}

// Default returns the settings the planner runs with when nothing is configured.
func Default() *Config {
	return &Config{
		Planner: Planner{
			Policy:              PolicyRoleSlotTiered,
			Concurrency:         6,
			ReplacementAttempts: 3,
			Tiers:               places.DefaultTiers(),
			FreeForm:            FreeForm{MaxAttempts: 5, MinStops: 3, MaxStops: 6},
		},
		Google: Google{Language: "en", RequestsPerSecond: 10, Burst: 10},
		LLM:    LLM{Provider: ProviderOpenAI},
		Cache:  Cache{TTL: 6 * time.Hour},
		Retry:  Retry{MaxAttempts: 3, BackoffUnit: time.Second},
	}
}

// Load reads the optional YAML file at path over the defaults, then a .env
// file in the working directory, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&c.LLM.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.LLM.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.Google.APIKey, "GOOGLEMAPS_KEY")
	setString(&c.Planner.Policy, "PLANNER_POLICY")
	setString(&c.Cache.RedisURL, "REDIS_URL")

	if v := strings.TrimSpace(getenv("PLANNER_CONCURRENCY")); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("PLANNER_CONCURRENCY: %w", err)
		}
		c.Planner.Concurrency = n
	}
	if v := strings.TrimSpace(getenv("GOOGLE_RPS")); v != "" {
		rps, err := cast.ToFloat64E(v)
		if err != nil {
			return fmt.Errorf("GOOGLE_RPS: %w", err)
		}
		c.Google.RequestsPerSecond = rps
	}
	return nil
}

func (c *Config) Validate() error {
	return validation.Errors{
		"planner": validation.ValidateStruct(&c.Planner,
			validation.Field(&c.Planner.Policy, validation.Required, validation.In(PolicyRoleSlotTiered, PolicyFreeFormRetry)),
			validation.Field(&c.Planner.Concurrency, validation.Min(1), validation.Max(32)),
			validation.Field(&c.Planner.ReplacementAttempts, validation.Min(1)),
			validation.Field(&c.Planner.Tiers, validation.Required, validation.Each(validation.By(validTier))),
		),
		"freeForm": validation.ValidateStruct(&c.Planner.FreeForm,
			validation.Field(&c.Planner.FreeForm.MaxAttempts, validation.Min(1)),
			validation.Field(&c.Planner.FreeForm.MinStops, validation.Min(1)),
			validation.Field(&c.Planner.FreeForm.MaxStops, validation.Min(c.Planner.FreeForm.MinStops)),
		),
		"google": validation.ValidateStruct(&c.Google,
			validation.Field(&c.Google.RequestsPerSecond, validation.Min(0.01)),
			validation.Field(&c.Google.Burst, validation.Min(1)),
		),
		"llm": validation.ValidateStruct(&c.LLM,
			validation.Field(&c.LLM.Provider, validation.Required, validation.In(ProviderOpenAI, ProviderGemini)),
		),
		"retry": validation.ValidateStruct(&c.Retry,
			validation.Field(&c.Retry.MaxAttempts, validation.Min(1)),
			validation.Field(&c.Retry.BackoffUnit, validation.Min(time.Duration(0))),
		),
	}.Filter()
}

func validTier(value any) error {
	tier, _ := value.(places.Tier)
	return validation.ValidateStruct(&tier,
		validation.Field(&tier.Name, validation.Required),
		validation.Field(&tier.MinRating, validation.Min(0.0), validation.Max(5.0)),
	)
}
