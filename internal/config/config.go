package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lox/booking-search/internal/cache"
	"github.com/lox/booking-search/internal/materializer"
	"github.com/lox/booking-search/internal/messages"
	"github.com/lox/booking-search/internal/query"
	"github.com/lox/booking-search/internal/rates"
	"github.com/lox/booking-search/internal/relax"
	"github.com/lox/booking-search/internal/search"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variables overriding the file, highest precedence
const (
	EnvThreshold = "BOOKING_SEARCH_THRESHOLD"
	EnvLanguage  = "BOOKING_SEARCH_LANGUAGE"
)

// Config is the engine configuration
type Config struct {
	Search     SearchConfig   `yaml:"search"`
	Paging     PagingConfig   `yaml:"paging"`
	Rates      RatesConfig    `yaml:"rates"`
	Relaxation relax.Policy   `yaml:"relaxation"`
	Messages   MessagesConfig `yaml:"messages"`
}

// SearchConfig configures the relaxation loop and the safety guard
type SearchConfig struct {
	// Threshold is the minimum match count that stops relaxation
	Threshold           int  `yaml:"threshold"`
	RejectEmptyRequests bool `yaml:"reject_empty_requests"`
	MaxUnitsPerProperty int  `yaml:"max_units_per_property"`
	// GuardMaxResults caps results when no significant filter is set
	GuardMaxResults int `yaml:"guard_max_results"`
	// PriceWindowDays is how far ahead scheduled prices are averaged without travel dates
	PriceWindowDays int `yaml:"price_window_days"`
}

type PagingConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

// RatesConfig configures the exchange rate cache
type RatesConfig struct {
	AbsoluteTTL   time.Duration `yaml:"absolute_ttl"`
	SlidingTTL    time.Duration `yaml:"sliding_ttl"`
	RetryAttempts uint          `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	CacheSize     int           `yaml:"cache_size"`
}

type MessagesConfig struct {
	Language string `yaml:"language"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			Threshold:           search.DefaultThreshold,
			RejectEmptyRequests: true,
			MaxUnitsPerProperty: materializer.DefaultMaxUnitsPerProperty,
			GuardMaxResults:     query.DefaultGuardMaxResults,
			PriceWindowDays:     query.DefaultPriceWindowDays,
		},
		Paging: PagingConfig{
			DefaultPageSize: query.DefaultPageSize,
			MaxPageSize:     query.DefaultMaxPageSize,
		},
		Rates: RatesConfig{
			AbsoluteTTL:   rates.DefaultAbsoluteTTL,
			SlidingTTL:    rates.DefaultSlidingTTL,
			RetryAttempts: rates.DefaultRetryAttempts,
			RetryDelay:    rates.DefaultRetryDelay,
			CacheSize:     cache.DefaultMemorySize,
		},
		Relaxation: relax.DefaultPolicy(),
		Messages:   MessagesConfig{Language: messages.English},
	}
}

// Load reads a YAML file over the defaults. An empty path or a missing file
// yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := strings.TrimSpace(os.Getenv(EnvThreshold)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvThreshold, err)
		}
		c.Search.Threshold = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvLanguage)); v != "" {
		c.Messages.Language = v
	}
	return nil
}

// Validate checks every value is usable
func (c *Config) Validate() error {
	if c.Search.Threshold < 1 {
		return fmt.Errorf("%w: search.threshold must be at least 1", ErrInvalidConfig)
	}
	if c.Search.MaxUnitsPerProperty < 1 {
		return fmt.Errorf("%w: search.max_units_per_property must be at least 1", ErrInvalidConfig)
	}
	if c.Search.GuardMaxResults < 1 {
		return fmt.Errorf("%w: search.guard_max_results must be at least 1", ErrInvalidConfig)
	}
	if c.Search.PriceWindowDays < 1 {
		return fmt.Errorf("%w: search.price_window_days must be at least 1", ErrInvalidConfig)
	}
	if c.Paging.DefaultPageSize < 1 || c.Paging.MaxPageSize < c.Paging.DefaultPageSize {
		return fmt.Errorf("%w: paging needs 1 <= default_page_size <= max_page_size", ErrInvalidConfig)
	}
	if c.Rates.AbsoluteTTL < 0 || c.Rates.SlidingTTL < 0 {
		return fmt.Errorf("%w: rates ttl must not be negative", ErrInvalidConfig)
	}
	if c.Rates.RetryAttempts == 0 {
		return fmt.Errorf("%w: rates.retry_attempts must be greater than 0", ErrInvalidConfig)
	}
	if c.Rates.CacheSize < 1 {
		return fmt.Errorf("%w: rates.cache_size must be at least 1", ErrInvalidConfig)
	}
	if err := c.Relaxation.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Messages.Language) {
	case messages.English, messages.Arabic:
	default:
		return fmt.Errorf("%w: unsupported message language %q", ErrInvalidConfig, c.Messages.Language)
	}
	return nil
}

// QueryOptions returns the query builder options
func (c *Config) QueryOptions() query.Options {
	return query.Options{
		DefaultPageSize: c.Paging.DefaultPageSize,
		MaxPageSize:     c.Paging.MaxPageSize,
		GuardMaxResults: c.Search.GuardMaxResults,
		PriceWindowDays: c.Search.PriceWindowDays,
	}
}

// RatesOptions returns the exchange rate provider options
func (c *Config) RatesOptions() rates.Options {
	return rates.Options{
		AbsoluteTTL:   c.Rates.AbsoluteTTL,
		SlidingTTL:    c.Rates.SlidingTTL,
		RetryAttempts: c.Rates.RetryAttempts,
		RetryDelay:    c.Rates.RetryDelay,
	}
}

// EngineOptions returns the search engine options
func (c *Config) EngineOptions() []search.Option {
	return []search.Option{
		search.WithThreshold(c.Search.Threshold),
		search.WithRejectEmptyRequests(c.Search.RejectEmptyRequests),
		search.WithMaxUnitsPerProperty(c.Search.MaxUnitsPerProperty),
		search.WithQueryOptions(c.QueryOptions()),
		search.WithPolicy(c.Relaxation),
		search.WithLanguage(strings.ToLower(c.Messages.Language)),
	}
}

// YAML encodes the configuration in the format read by Load
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

// WriteYAML writes the configuration to a file
func (c *Config) WriteYAML(path string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
