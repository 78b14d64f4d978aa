package search

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/booking-search/internal/cache"
	"github.com/lox/booking-search/internal/db"
	"github.com/lox/booking-search/internal/messages"
	"github.com/lox/booking-search/internal/query"
	"github.com/lox/booking-search/internal/rates"
	"github.com/lox/booking-search/internal/relax"
	"github.com/lox/booking-search/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore answers counts in call order, one entry per level tried
type fakeStore struct {
	mu      sync.Mutex
	counts  []int
	errs    []error
	queries []*query.Query
	loads   int
}

func (s *fakeStore) next(q *query.Query) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.queries)
	s.queries = append(s.queries, q)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return 0, err
	}
	if i < len(s.counts) {
		return s.counts[i], nil
	}
	return 0, nil
}

func (s *fakeStore) CountUnits(ctx context.Context, q *query.Query) (int, error) {
	return s.next(q)
}

func (s *fakeStore) CountProperties(ctx context.Context, q *query.Query) (int, error) {
	return s.next(q)
}

func (s *fakeStore) FindUnits(ctx context.Context, q *query.Query) ([]types.UnitRow, error) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	return []types.UnitRow{
		{UnitID: "u1", PropertyID: "p1", Name: "Double Room", Currency: q.Currency},
		{UnitID: "u2", PropertyID: "p1", Name: "Family Suite", Currency: q.Currency},
	}, nil
}

func (s *fakeStore) FindPropertyGroups(ctx context.Context, q *query.Query) ([]types.PropertyRow, error) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	return []types.PropertyRow{{PropertyID: "p1", Name: "Sea View Hotel", City: "Aden", MatchedUnits: 2}}, nil
}

func (s *fakeStore) FindGroupUnits(ctx context.Context, q *query.Query, propertyIDs []string, perProperty int) ([]types.UnitRow, error) {
	return []types.UnitRow{{UnitID: "u1", PropertyID: "p1"}, {UnitID: "u2", PropertyID: "p1"}}, nil
}

func (s *fakeStore) PropertyImages(ctx context.Context, propertyIDs []string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (s *fakeStore) PropertyAmenities(ctx context.Context, propertyIDs []string) (map[string][]types.Amenity, error) {
	return map[string][]types.Amenity{}, nil
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

type fakeRates struct {
	mu         sync.Mutex
	currencies []string
}

func (r *fakeRates) GetRates(ctx context.Context, searchCurrency string) map[string]decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currencies = append(r.currencies, searchCurrency)
	return map[string]decimal.Decimal{"USD": decimal.NewFromInt(1), "YER": decimal.NewFromInt(530)}
}

type failingGenerator struct{}

func (failingGenerator) Explain(ctx context.Context, req messages.Request) (types.Explanation, error) {
	return types.Explanation{}, errors.New("model overloaded")
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func mustDate(s string) time.Time {
	t, err := time.Parse(types.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func adenRequest() types.SearchRequest {
	return types.SearchRequest{City: "Aden", MinPrice: dec("50"), MaxPrice: dec("100"), Currency: "USD"}
}

func newTestEngine(store Store, opts ...Option) (*Engine, *fakeRates) {
	r := &fakeRates{}
	return NewEngine(store, r, log.New(io.Discard), opts...), r
}

func TestSearchRejectsEmptyRequest(t *testing.T) {
	store := &fakeStore{}
	engine, r := newTestEngine(store)

	result, err := engine.SearchUnits(context.Background(), types.SearchRequest{PageSize: 10, SortBy: types.SortRating})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalCount)
	assert.NotEmpty(t, result.SuggestedActions)
	assert.NotEmpty(t, result.Message)
	assert.True(t, result.Success)
	assert.NotNil(t, result.Items)
	assert.Empty(t, result.Items)
	assert.Equal(t, 0, store.calls(), "no store call")
	assert.Empty(t, r.currencies)
}

func TestSearchEmptyRequestAllowed(t *testing.T) {
	store := &fakeStore{counts: []int{3}}
	engine, _ := newTestEngine(store, WithRejectEmptyRequests(false))

	result, err := engine.SearchUnits(context.Background(), types.SearchRequest{})
	require.NoError(t, err)
	require.Equal(t, 5, store.calls())
	assert.True(t, store.queries[0].Guarded, "unfiltered search is limited to featured properties")
	assert.Equal(t, types.AlternativeSuggestions, result.RelaxationLevel)
}

func TestSearchAcceptsExactLevel(t *testing.T) {
	store := &fakeStore{counts: []int{7}}
	engine, _ := newTestEngine(store)

	result, err := engine.SearchUnits(context.Background(), adenRequest())
	require.NoError(t, err)
	assert.Equal(t, types.Exact, result.RelaxationLevel)
	assert.False(t, result.WasRelaxed)
	assert.Empty(t, result.RelaxedFilters)
	assert.Equal(t, 7, result.TotalCount)
	assert.Equal(t, 1, result.TotalPages)
	assert.Equal(t, 20, result.PageSize)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, "USD", result.Items[0].Currency)
	assert.Equal(t, 1, store.calls())
	assert.Contains(t, result.Message, "Found 7 results")
}

func TestSearchRelaxesToMinor(t *testing.T) {
	store := &fakeStore{counts: []int{2, 6}}
	engine, r := newTestEngine(store, WithThreshold(5))

	result, err := engine.SearchUnits(context.Background(), adenRequest())
	require.NoError(t, err)
	assert.Equal(t, types.MinorRelaxation, result.RelaxationLevel)
	assert.True(t, result.WasRelaxed)
	assert.Equal(t, 6, result.TotalCount)
	assert.GreaterOrEqual(t, result.SearchTimeMs, int64(0))
	assert.True(t, result.Success)
	require.NotEmpty(t, result.RelaxedFilters)
	assert.True(t, strings.HasPrefix(result.RelaxedFilters[0], "price range widened"), result.RelaxedFilters[0])

	assert.Equal(t, "42.5", result.AppliedFilters.MinPrice.String())
	assert.Equal(t, "115", result.AppliedFilters.MaxPrice.String())
	assert.Equal(t, 2, store.calls())
	assert.Equal(t, 1, store.loads, "only the accepted level is loaded")
	assert.Len(t, r.currencies, 2, "rates are fetched again when price bounds change")
}

func TestSearchAcceptsTerminalBestEffort(t *testing.T) {
	store := &fakeStore{counts: []int{0, 0, 1, 1, 2}}
	engine, _ := newTestEngine(store)

	result, err := engine.SearchUnits(context.Background(), adenRequest())
	require.NoError(t, err)
	assert.Equal(t, types.AlternativeSuggestions, result.RelaxationLevel)
	assert.Equal(t, 2, result.TotalCount)
	assert.Nil(t, result.AppliedFilters.MinPrice, "alternatives drop the price")
	assert.Equal(t, 5, store.calls())
}

func TestSearchNoResultsAtAnyLevel(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(store)

	result, err := engine.SearchUnits(context.Background(), adenRequest())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.TotalCount)
	assert.Equal(t, types.AlternativeSuggestions, result.RelaxationLevel)
	assert.NotEmpty(t, result.SuggestedActions)
	assert.Empty(t, result.Items)
	assert.Equal(t, 5, store.calls())
	assert.Equal(t, 0, store.loads)
}

func TestSearchFailureAtEveryLevel(t *testing.T) {
	boom := errors.New("unable to open database file")
	store := &fakeStore{errs: []error{boom, boom, boom, boom, boom}}
	engine, _ := newTestEngine(store)

	result, err := engine.SearchUnits(context.Background(), adenRequest())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, failureMessage, result.ErrorMessage)
	assert.NotContains(t, result.ErrorMessage, "database file")
	assert.NotEmpty(t, result.Message)
	assert.Equal(t, 5, store.calls())
}

func TestSearchLevelErrorAdvances(t *testing.T) {
	store := &fakeStore{counts: []int{0, 6}, errs: []error{errors.New("database is locked")}}
	engine, _ := newTestEngine(store)

	result, err := engine.SearchUnits(context.Background(), adenRequest())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, types.MinorRelaxation, result.RelaxationLevel)
}

func TestSearchInvalidDynamicFilterIsALevelError(t *testing.T) {
	store := &fakeStore{counts: []int{6}}
	engine, _ := newTestEngine(store)

	req := adenRequest()
	req.DynamicFields = map[string]string{"floor": "9..1"}
	result, err := engine.SearchUnits(context.Background(), req)
	require.NoError(t, err)
	// Exact through Moderate keep the bad filter, Major drops it
	assert.Equal(t, types.MajorRelaxation, result.RelaxationLevel)
	assert.Equal(t, 1, store.calls())
}

func TestSearchSkipsDisabledLevels(t *testing.T) {
	policy := relax.DefaultPolicy()
	policy.Minor.Enabled = false
	policy.Moderate.Enabled = false
	policy.Alternatives.Enabled = false

	store := &fakeStore{counts: []int{0, 1}}
	engine, _ := newTestEngine(store, WithPolicy(policy))

	result, err := engine.SearchUnits(context.Background(), adenRequest())
	require.NoError(t, err)
	assert.Equal(t, types.MajorRelaxation, result.RelaxationLevel, "last enabled level accepts any match")
	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, 2, store.calls())
}

func TestSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine, _ := newTestEngine(&fakeStore{counts: []int{10}})
	result, err := engine.SearchUnits(ctx, adenRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestSearchGeneratorFailureFallsBackToTemplate(t *testing.T) {
	store := &fakeStore{counts: []int{8}}
	engine, _ := newTestEngine(store, WithGenerator(failingGenerator{}))

	result, err := engine.SearchUnits(context.Background(), adenRequest())
	require.NoError(t, err)
	assert.Equal(t, messages.Template(messages.Request{Reason: messages.ReasonResults, Count: 8}).Message, result.Message)
}

func TestSearchArabicMessages(t *testing.T) {
	engine, _ := newTestEngine(&fakeStore{}, WithLanguage("ar"))

	result, err := engine.SearchUnits(context.Background(), types.SearchRequest{})
	require.NoError(t, err)
	assert.Equal(t, messages.Template(messages.Request{Reason: messages.ReasonNoCriteria, Language: "ar"}).Message, result.Message)
}

func TestSearchPropertiesWithUnits(t *testing.T) {
	store := &fakeStore{counts: []int{1, 5}}
	engine, _ := newTestEngine(store)

	result, err := engine.SearchPropertiesWithUnits(context.Background(), adenRequest())
	require.NoError(t, err)
	assert.Equal(t, types.MinorRelaxation, result.RelaxationLevel)
	assert.Equal(t, 5, result.TotalCount)
	require.Len(t, result.Properties, 1)
	assert.Len(t, result.Properties[0].MatchedUnits, 2)
	assert.Equal(t, "USD", result.Properties[0].Currency)
}

func TestSearchAvailabilityFollowsOriginalDates(t *testing.T) {
	store := &fakeStore{counts: []int{0, 6}}
	engine, _ := newTestEngine(store)

	req := adenRequest()
	checkIn, checkOut := mustDate("2024-06-01"), mustDate("2024-06-04")
	req.CheckIn, req.CheckOut = &checkIn, &checkOut

	_, err := engine.SearchUnits(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, store.calls())
	assert.Equal(t, query.AvailabilityFilter(req), store.queries[1].Available)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, totalPages(0, 20))
	assert.Equal(t, 1, totalPages(20, 20))
	assert.Equal(t, 2, totalPages(21, 20))
	assert.Equal(t, 0, totalPages(5, 0))
}

func TestRateKey(t *testing.T) {
	req := adenRequest()
	assert.Equal(t, rateKey(req), rateKey(req.Clone()))

	lower := req.Clone()
	lower.Currency = " usd"
	assert.Equal(t, rateKey(req), rateKey(lower))

	widened := req.Clone()
	widened.MaxPrice = dec("115")
	assert.NotEqual(t, rateKey(req), rateKey(widened))
}

func setupTestDB(t *testing.T) (*db.DB, func()) {
	tempDir, err := os.MkdirTemp("", "booking-search-test-*")
	require.NoError(t, err)

	dbConn, err := db.New(tempDir, log.New(io.Discard))
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create database: %v", err)
	}
	return dbConn, func() {
		dbConn.Close()
		os.RemoveAll(tempDir)
	}
}

func TestSearchAgainstDatabase(t *testing.T) {
	dbConn, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, dbConn.UpsertCurrency(ctx, types.Currency{Code: "YER", IsDefault: true, ExchangeRate: decimal.NewFromInt(1)}))
	require.NoError(t, dbConn.UpsertCurrency(ctx, types.Currency{Code: "USD", ExchangeRate: decimal.NewFromInt(530)}))
	require.NoError(t, dbConn.UpsertPropertyType(ctx, "hotel", "Hotel"))
	require.NoError(t, dbConn.UpsertUnitType(ctx, "room", "Room"))
	require.NoError(t, dbConn.UpsertProperty(ctx, types.Property{
		ID: "p1", Name: "Sea View Hotel", City: "Aden", PropertyTypeID: "hotel",
		StarRating: 4, AverageRating: 4.5, Latitude: 12.7855, Longitude: 45.0187, IsApproved: true,
		CreatedAt: mustDate("2023-01-10"),
	}))
	for _, u := range []types.Unit{
		{ID: "u1", PropertyID: "p1", UnitTypeID: "room", Name: "Single", MaxCapacity: 1, BasePrice: dec("45"), BaseCurrency: "USD", IsActive: true},
		{ID: "u2", PropertyID: "p1", UnitTypeID: "room", Name: "Double", MaxCapacity: 2, BasePrice: dec("31800"), BaseCurrency: "YER", IsActive: true},
		{ID: "u3", PropertyID: "p1", UnitTypeID: "room", Name: "Family", MaxCapacity: 4, BasePrice: dec("112"), BaseCurrency: "USD", IsActive: true},
	} {
		require.NoError(t, dbConn.UpsertUnit(ctx, u))
	}

	memCache, err := cache.NewMemory(16)
	require.NoError(t, err)
	provider := rates.NewProvider(dbConn, memCache, log.New(io.Discard), rates.Options{})
	engine := NewEngine(dbConn, provider, log.New(io.Discard), WithThreshold(2))

	units, err := engine.SearchUnits(ctx, adenRequest())
	require.NoError(t, err)
	assert.True(t, units.Success)
	assert.Equal(t, types.MinorRelaxation, units.RelaxationLevel)
	assert.Equal(t, 3, units.TotalCount)
	require.Len(t, units.Items, 3)
	for _, item := range units.Items {
		assert.Equal(t, "USD", item.Currency)
		if item.UnitID == "u2" {
			require.NotNil(t, item.Price)
			assert.Equal(t, "60.00", item.Price.StringFixed(2), "YER price converted into USD")
		}
	}

	properties, err := engine.SearchPropertiesWithUnits(ctx, adenRequest())
	require.NoError(t, err)
	assert.Equal(t, types.AlternativeSuggestions, properties.RelaxationLevel, "a single property never reaches the threshold")
	require.Len(t, properties.Properties, 1)
	assert.Equal(t, 3, properties.Properties[0].TotalMatchedUnits)
	assert.Equal(t, 95.0, properties.Properties[0].RelevanceScore)
}

func seedLadderCatalog(t *testing.T, dbConn *db.DB) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, dbConn.UpsertCurrency(ctx, types.Currency{Code: "YER", IsDefault: true, ExchangeRate: decimal.NewFromInt(1)}))
	require.NoError(t, dbConn.UpsertCurrency(ctx, types.Currency{Code: "USD", ExchangeRate: decimal.NewFromInt(530)}))
	require.NoError(t, dbConn.UpsertPropertyType(ctx, "hotel", "Hotel"))
	require.NoError(t, dbConn.UpsertPropertyType(ctx, "apartment", "Apartment"))
	require.NoError(t, dbConn.UpsertUnitType(ctx, "room", "Room"))
	require.NoError(t, dbConn.UpsertUnitType(ctx, "suite", "Suite"))

	for _, p := range []types.Property{
		{ID: "p1", Name: "Sea View Hotel", City: "Aden", PropertyTypeID: "hotel", StarRating: 4, AverageRating: 4.5,
			Latitude: 12.7855, Longitude: 45.0187, IsApproved: true, CreatedAt: mustDate("2023-01-10")},
		{ID: "p2", Name: "Crater Apartments", City: "Aden", PropertyTypeID: "apartment", StarRating: 3, AverageRating: 3.8,
			Latitude: 12.7800, Longitude: 45.0400, IsApproved: true, CreatedAt: mustDate("2024-03-01")},
		{ID: "p3", Name: "Old City Inn", City: "Sanaa", PropertyTypeID: "hotel", StarRating: 3, AverageRating: 4.0,
			Latitude: 15.3694, Longitude: 44.1910, IsApproved: true, CreatedAt: mustDate("2022-05-05")},
	} {
		require.NoError(t, dbConn.UpsertProperty(ctx, p))
	}
	for _, u := range []types.Unit{
		{ID: "uz", PropertyID: "p1", UnitTypeID: "room", Name: "Garden Room", MaxCapacity: 2, IsActive: true},
		{ID: "u1", PropertyID: "p1", UnitTypeID: "room", Name: "Double Room", MaxCapacity: 2, BasePrice: dec("60"), BaseCurrency: "USD", IsActive: true},
		{ID: "u2", PropertyID: "p1", UnitTypeID: "suite", Name: "Family Suite", MaxCapacity: 4, BasePrice: dec("120"), BaseCurrency: "USD", IsActive: true},
		{ID: "u3", PropertyID: "p2", UnitTypeID: "room", Name: "Two Bedroom Apartment", MaxCapacity: 5, BasePrice: dec("20000"), BaseCurrency: "YER", IsActive: true},
		{ID: "u4", PropertyID: "p3", UnitTypeID: "room", Name: "Tower Room", MaxCapacity: 2, BasePrice: dec("45"), BaseCurrency: "USD", IsActive: true},
	} {
		require.NoError(t, dbConn.UpsertUnit(ctx, u))
	}

	var days []types.ScheduleDay
	for _, day := range []string{"2024-06-01", "2024-06-02", "2024-06-03", "2024-06-04"} {
		days = append(days, types.ScheduleDay{UnitID: "uz", Date: mustDate(day), Status: types.StatusBlocked, Price: dec("80"), Currency: "USD"})
	}
	days = append(days, types.ScheduleDay{UnitID: "u1", Date: mustDate("2024-06-03"), Status: types.StatusBlocked})
	require.NoError(t, dbConn.SetSchedules(ctx, days))
}

func TestRelaxationLadderNeverLosesMatches(t *testing.T) {
	dbConn, cleanup := setupTestDB(t)
	defer cleanup()
	seedLadderCatalog(t, dbConn)
	ctx := context.Background()

	usdRates := map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"YER": decimal.NewFromInt(530),
	}
	builder := query.NewBuilder(query.Options{Now: func() time.Time { return mustDate("2024-06-01") }})
	checkIn, checkOut := mustDate("2024-06-01"), mustDate("2024-06-05")

	requests := map[string]types.SearchRequest{
		"dates and price only": {CheckIn: &checkIn, CheckOut: &checkOut, MinPrice: dec("50"), MaxPrice: dec("100"), Currency: "USD"},
		"city price and rating": {City: "Aden", MinPrice: dec("50"), MaxPrice: dec("100"), Currency: "USD", MinRating: floatPtr(4.8)},
		"type near a point": {
			PropertyTypeID: "hotel", UnitTypeID: "suite", CheckIn: &checkIn, CheckOut: &checkOut,
			Latitude: floatPtr(12.78), Longitude: floatPtr(45.03), RadiusKm: floatPtr(1),
		},
		"guests and features": {City: "Aden", GuestsCount: intPtr(3), DynamicFields: map[string]string{"view": "sea"}},
	}

	for name, original := range requests {
		t.Run(name, func(t *testing.T) {
			prev := -1
			for _, level := range types.RelaxationLevels {
				relaxed, _ := relax.Relax(original, level, relax.DefaultPolicy())
				q, err := builder.Build(relaxed, usdRates)
				require.NoError(t, err)
				count, err := dbConn.CountUnits(ctx, q)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, count, prev, "level %s matched fewer units", level)
				prev = count
			}
		})
	}
}

func TestPropertyMismatchesCoverUnitsBeyondTheCap(t *testing.T) {
	dbConn, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, dbConn.UpsertCurrency(ctx, types.Currency{Code: "USD", IsDefault: true, ExchangeRate: decimal.NewFromInt(1)}))
	require.NoError(t, dbConn.UpsertProperty(ctx, types.Property{ID: "p1", Name: "Sea View Hotel", City: "Aden", IsApproved: true}))
	for _, id := range []string{"r1", "r2", "r3", "r4", "r5"} {
		require.NoError(t, dbConn.UpsertUnit(ctx, types.Unit{
			ID: id, PropertyID: "p1", UnitTypeID: "room", Name: "Room " + id, MaxCapacity: 2,
			BasePrice: dec("40"), BaseCurrency: "USD", IsActive: true,
		}))
	}
	require.NoError(t, dbConn.UpsertUnit(ctx, types.Unit{
		ID: "s1", PropertyID: "p1", UnitTypeID: "suite", Name: "Suite", MaxCapacity: 4,
		BasePrice: dec("200"), BaseCurrency: "USD", IsActive: true,
	}))

	memCache, err := cache.NewMemory(16)
	require.NoError(t, err)
	provider := rates.NewProvider(dbConn, memCache, log.New(io.Discard), rates.Options{})
	engine := NewEngine(dbConn, provider, log.New(io.Discard), WithMaxUnitsPerProperty(5))

	result, err := engine.SearchPropertiesWithUnits(ctx, types.SearchRequest{City: "Aden", UnitTypeID: "suite"})
	require.NoError(t, err)
	assert.Equal(t, types.AlternativeSuggestions, result.RelaxationLevel)
	require.Len(t, result.Properties, 1)

	group := result.Properties[0]
	assert.Equal(t, 6, group.TotalMatchedUnits)
	require.Len(t, group.MatchedUnits, 5)
	for _, u := range group.MatchedUnits {
		assert.Equal(t, "room", u.UnitTypeID)
	}
	assert.Empty(t, group.Mismatches, "the suite matched even though it was not returned")
}
