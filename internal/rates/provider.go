package rates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
	"github.com/lox/booking-search/internal/cache"
	"github.com/lox/booking-search/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/singleflight"
)

// FallbackCurrency is used when no default currency can be resolved
const FallbackCurrency = "YER"

const (
	DefaultAbsoluteTTL   = 30 * time.Minute
	DefaultSlidingTTL    = 15 * time.Minute
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 100 * time.Millisecond
)

// Store reads the currency table
type Store interface {
	Currencies(ctx context.Context) ([]types.Currency, error)
}

// Options configures a Provider
type Options struct {
	AbsoluteTTL   time.Duration
	SlidingTTL    time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
}

func (o Options) withDefaults() Options {
	if o.AbsoluteTTL <= 0 {
		o.AbsoluteTTL = DefaultAbsoluteTTL
	}
	if o.SlidingTTL <= 0 {
		o.SlidingTTL = DefaultSlidingTTL
	}
	if o.RetryAttempts == 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

// Provider resolves exchange rate tables relative to a search currency
type Provider struct {
	store  Store
	cache  cache.Provider
	logger *log.Logger
	opts   Options
	group  singleflight.Group
}

// NewProvider creates a rate provider backed by a store and a cache
func NewProvider(store Store, c cache.Provider, logger *log.Logger, opts Options) *Provider {
	return &Provider{
		store:  store,
		cache:  c,
		logger: logger,
		opts:   opts.withDefaults(),
	}
}

// CacheKey is the cache key of the rate table for a search currency
func CacheKey(searchCurrency string) string {
	return "rates:" + normalize(searchCurrency)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func fallback() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{FallbackCurrency: decimal.NewFromInt(1)}
}

// GetRates returns units of each currency per one unit of the search currency.
// An empty search currency resolves to the system default. The result is never
// empty and failures are logged, not returned.
func (p *Provider) GetRates(ctx context.Context, searchCurrency string) map[string]decimal.Decimal {
	key := CacheKey(searchCurrency)

	if cached, ok, err := p.cache.Get(ctx, key); err != nil {
		p.logger.Warn("Failed to read exchange rates from cache", "key", key, "error", err)
	} else if ok {
		if table, ok := cached.(map[string]decimal.Decimal); ok && len(table) > 0 {
			return maps.Clone(table)
		}
	}

	v, _, _ := p.group.Do(key, func() (interface{}, error) {
		table, cacheable := p.load(ctx, normalize(searchCurrency))
		if cacheable {
			if err := p.cache.Set(ctx, key, table, cache.EntryOptions{
				Absolute: p.opts.AbsoluteTTL,
				Sliding:  p.opts.SlidingTTL,
			}); err != nil {
				p.logger.Warn("Failed to store exchange rates in cache", "key", key, "error", err)
			}
		}
		return table, nil
	})

	return maps.Clone(v.(map[string]decimal.Decimal))
}

// load builds the table from the store; failures yield an uncached fallback
func (p *Provider) load(ctx context.Context, searchCurrency string) (map[string]decimal.Decimal, bool) {
	start := time.Now()

	var currencies []types.Currency
	err := retry.Do(
		func() error {
			var err error
			currencies, err = p.store.Currencies(ctx)
			if err != nil {
				return fmt.Errorf("failed to load currencies: %w", err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.opts.RetryAttempts),
		retry.Delay(p.opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("Retrying currency lookup", "attempt", n+1, "max_attempts", p.opts.RetryAttempts, "error", err)
		}),
	)
	if err != nil {
		p.logger.Error("Failed to load exchange rates, using fallback", "currency", searchCurrency, "fallback", FallbackCurrency, "error", err)
		return fallback(), false
	}

	var def *types.Currency
	for i := range currencies {
		if currencies[i].IsDefault {
			def = &currencies[i]
			break
		}
	}

	if searchCurrency == "" {
		if def == nil {
			p.logger.Warn("No default currency configured, using fallback", "fallback", FallbackCurrency)
			return fallback(), true
		}
		searchCurrency = normalize(def.Code)
	}

	table := relativeTo(currencies, searchCurrency, def)
	if len(table) == 0 && def != nil {
		p.logger.Warn("No exchange rate for search currency, using default currency", "currency", searchCurrency, "default", def.Code)
		table = relativeTo(currencies, normalize(def.Code), def)
	}
	if len(table) == 0 {
		p.logger.Warn("No usable exchange rates, using fallback", "currency", searchCurrency, "fallback", FallbackCurrency)
		return fallback(), true
	}

	p.logger.Debug("Loaded exchange rates", "currency", searchCurrency, "currencies", len(table), "duration", time.Since(start))
	return table, true
}

// relativeTo expresses every known rate per one unit of base.
// It returns nil when base has no usable rate.
func relativeTo(currencies []types.Currency, base string, def *types.Currency) map[string]decimal.Decimal {
	value := func(c types.Currency) decimal.Decimal {
		if c.ExchangeRate.Sign() > 0 {
			return c.ExchangeRate
		}
		// the default currency is worth itself
		if def != nil && normalize(c.Code) == normalize(def.Code) {
			return decimal.NewFromInt(1)
		}
		return decimal.Zero
	}

	var baseValue decimal.Decimal
	for _, c := range currencies {
		if normalize(c.Code) == base {
			baseValue = value(c)
			break
		}
	}
	if baseValue.Sign() <= 0 {
		return nil
	}

	table := make(map[string]decimal.Decimal, len(currencies))
	for _, c := range currencies {
		v := value(c)
		if v.Sign() <= 0 {
			continue
		}
		table[normalize(c.Code)] = baseValue.Div(v)
	}
	table[base] = decimal.NewFromInt(1)
	return table
}

// Convert converts an amount between two currencies of a rate table
func Convert(amount decimal.Decimal, from, to string, rates map[string]decimal.Decimal) (decimal.Decimal, error) {
	fromRate, ok := rates[normalize(from)]
	if !ok || fromRate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("no exchange rate for %s", from)
	}
	toRate, ok := rates[normalize(to)]
	if !ok || toRate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("no exchange rate for %s", to)
	}
	return amount.Div(fromRate).Mul(toRate), nil
}
