package rates

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/booking-search/internal/cache"
	"github.com/lox/booking-search/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	currencies []types.Currency
	err        error
	calls      atomic.Int32
	delay      time.Duration
}

func (s *fakeStore) Currencies(ctx context.Context) ([]types.Currency, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.currencies, nil
}

func yemenCurrencies() []types.Currency {
	return []types.Currency{
		{Code: "YER", IsDefault: true, ExchangeRate: decimal.NewFromInt(1)},
		{Code: "USD", ExchangeRate: decimal.NewFromInt(530)},
		{Code: "SAR", ExchangeRate: decimal.NewFromInt(140)},
		{Code: "EUR"},
	}
}

func newTestProvider(t *testing.T, store Store) *Provider {
	t.Helper()
	c, err := cache.NewMemory(16)
	require.NoError(t, err)
	return NewProvider(store, c, log.New(io.Discard), Options{RetryAttempts: 2, RetryDelay: time.Millisecond})
}

func assertRate(t *testing.T, want string, rates map[string]decimal.Decimal, code string) {
	t.Helper()
	got, ok := rates[code]
	require.True(t, ok, "missing rate for %s", code)
	assert.Equal(t, want, got.StringFixed(4), "rate for %s", code)
}

func TestGetRatesRelativeToSearchCurrency(t *testing.T) {
	p := newTestProvider(t, &fakeStore{currencies: yemenCurrencies()})

	rates := p.GetRates(context.Background(), "usd")
	assert.Len(t, rates, 3, "currencies without a rate are skipped")
	assertRate(t, "1.0000", rates, "USD")
	assertRate(t, "530.0000", rates, "YER")
	assertRate(t, "3.7857", rates, "SAR")
}

func TestGetRatesEmptyCurrencyUsesDefault(t *testing.T) {
	p := newTestProvider(t, &fakeStore{currencies: yemenCurrencies()})

	rates := p.GetRates(context.Background(), "")
	assertRate(t, "1.0000", rates, "YER")
	assertRate(t, "0.0019", rates, "USD")
}

func TestGetRatesWithoutDefault(t *testing.T) {
	p := newTestProvider(t, &fakeStore{currencies: []types.Currency{{Code: "USD", ExchangeRate: decimal.NewFromInt(1)}}})

	rates := p.GetRates(context.Background(), "")
	assert.Equal(t, map[string]decimal.Decimal{"YER": decimal.NewFromInt(1)}, rates)
}

func TestGetRatesUnknownCurrencyDegradesToDefault(t *testing.T) {
	p := newTestProvider(t, &fakeStore{currencies: yemenCurrencies()})

	rates := p.GetRates(context.Background(), "GBP")
	_, ok := rates["GBP"]
	assert.False(t, ok)
	assertRate(t, "1.0000", rates, "YER")
	assertRate(t, "0.0019", rates, "USD")
}

func TestGetRatesStoreFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("database is locked")}
	p := newTestProvider(t, store)

	rates := p.GetRates(context.Background(), "USD")
	assert.Equal(t, map[string]decimal.Decimal{"YER": decimal.NewFromInt(1)}, rates)
	assert.Equal(t, int32(2), store.calls.Load(), "lookup is retried")

	// failures are not cached
	store.err = nil
	store.currencies = yemenCurrencies()
	rates = p.GetRates(context.Background(), "USD")
	assertRate(t, "530.0000", rates, "YER")
}

func TestGetRatesNeverEmpty(t *testing.T) {
	stores := map[string]*fakeStore{
		"no currencies":   {},
		"no usable rates": {currencies: []types.Currency{{Code: "USD"}, {Code: "SAR"}}},
		"failure":         {err: errors.New("boom")},
		"normal":          {currencies: yemenCurrencies()},
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			p := newTestProvider(t, store)
			for _, currency := range []string{"", "USD", "YER", "XXX"} {
				assert.NotEmpty(t, p.GetRates(context.Background(), currency), "currency %q", currency)
			}
		})
	}
}

func TestGetRatesIsCached(t *testing.T) {
	store := &fakeStore{currencies: yemenCurrencies()}
	p := newTestProvider(t, store)

	first := p.GetRates(context.Background(), "USD")
	first["USD"] = decimal.NewFromInt(99)

	second := p.GetRates(context.Background(), "USD")
	assertRate(t, "1.0000", second, "USD")
	assert.Equal(t, int32(1), store.calls.Load())

	p.GetRates(context.Background(), "SAR")
	assert.Equal(t, int32(2), store.calls.Load(), "each search currency has its own entry")
}

func TestGetRatesCoalescesConcurrentMisses(t *testing.T) {
	store := &fakeStore{currencies: yemenCurrencies(), delay: 50 * time.Millisecond}
	p := newTestProvider(t, store)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rates := p.GetRates(context.Background(), "USD")
			assert.Len(t, rates, 3)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, store.calls.Load(), int32(2))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "rates:USD", CacheKey(" usd "))
	assert.Equal(t, "rates:", CacheKey(""))
}

func TestConvert(t *testing.T) {
	rates := map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"YER": decimal.NewFromInt(530),
	}

	got, err := Convert(decimal.NewFromInt(50), "USD", "YER", rates)
	require.NoError(t, err)
	assert.Equal(t, "26500", got.String())

	got, err = Convert(decimal.NewFromInt(26500), "yer", "usd", rates)
	require.NoError(t, err)
	assert.Equal(t, "50.00", got.StringFixed(2))

	_, err = Convert(decimal.NewFromInt(1), "GBP", "USD", rates)
	assert.Error(t, err)
}
