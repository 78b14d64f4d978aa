package query

import (
	"testing"
	"time"

	"github.com/lox/booking-search/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var usdRates = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"YER": decimal.NewFromInt(530),
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func floatPtr(f float64) *float64 { return &f }

func datePtr(s string) *time.Time {
	t, err := time.Parse(types.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestParseDynamicFilter(t *testing.T) {
	testCases := []struct {
		name  string
		field string
		raw   string
		kind  MatchKind
		value string
		min   *float64
		max   *float64
	}{
		{name: "exact", field: "view", raw: " sea ", kind: MatchExact, value: "sea"},
		{name: "contains", field: "view", raw: "~city", kind: MatchContains, value: "city"},
		{name: "prefix", field: "view", raw: "^ sea", kind: MatchPrefix, value: "sea"},
		{name: "range", field: "floor", raw: "2..8", kind: MatchRange, min: floatPtr(2), max: floatPtr(8)},
		{name: "open lower bound", field: "floor", raw: "..2", kind: MatchRange, max: floatPtr(2)},
		{name: "open upper bound", field: "floor", raw: "3.5..", kind: MatchRange, min: floatPtr(3.5)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := ParseDynamicFilter(tc.field, tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.field, f.Field)
			assert.Equal(t, tc.kind, f.Kind)
			assert.Equal(t, tc.value, f.Value)
			assert.Equal(t, tc.min, f.Min)
			assert.Equal(t, tc.max, f.Max)
		})
	}
}

func TestParseDynamicFilterErrors(t *testing.T) {
	testCases := []struct {
		name  string
		field string
		raw   string
	}{
		{name: "empty field", field: " ", raw: "sea"},
		{name: "empty value", field: "view", raw: ""},
		{name: "empty contains", field: "view", raw: "~"},
		{name: "bad numbers", field: "floor", raw: "a..b"},
		{name: "no bounds", field: "floor", raw: ".."},
		{name: "inverted", field: "floor", raw: "8..2"},
		{name: "not a number", field: "floor", raw: "1..NaN"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDynamicFilter(tc.field, tc.raw)
			assert.ErrorIs(t, err, ErrInvalidDynamicFilter)
		})
	}
}

func TestParseNumber(t *testing.T) {
	for _, s := range []string{"4", " 4.5 ", "-2", "1e3"} {
		_, ok := ParseNumber(s)
		assert.True(t, ok, s)
	}
	for _, s := range []string{"", "x9", "4th", "NaN", "Inf", "1 2"} {
		_, ok := ParseNumber(s)
		assert.False(t, ok, s)
	}
}

func TestDynamicRangeFragment(t *testing.T) {
	f, err := ParseDynamicFilter("floor", "2..")
	require.NoError(t, err)

	frag := f.Fragment()
	assert.Contains(t, frag.SQL, "parse_number(fv.value) IS NOT NULL")
	assert.Equal(t, []any{"floor", 2.0}, frag.Args)
}

func TestStayWindows(t *testing.T) {
	assert.Nil(t, StayWindows(types.SearchRequest{}))

	req := types.SearchRequest{CheckIn: datePtr("2024-06-02"), CheckOut: datePtr("2024-06-04")}
	assert.Equal(t, []StayWindow{{From: "2024-06-02", To: "2024-06-04"}}, StayWindows(req))

	req.DateFlexibilityDays = 1
	assert.Equal(t, []StayWindow{
		{From: "2024-06-01", To: "2024-06-03"},
		{From: "2024-06-02", To: "2024-06-04"},
		{From: "2024-06-03", To: "2024-06-05"},
	}, StayWindows(req))
}

func TestMatchExpression(t *testing.T) {
	assert.Equal(t, `"Sea"* "view"*`, MatchExpression("Sea view!"))
	assert.Equal(t, `"al"* "mukalla"*`, MatchExpression(`al-"mukalla"`))
	assert.Empty(t, MatchExpression("  ?! "))
}

func TestPriceBounds(t *testing.T) {
	rates := map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"YER": decimal.NewFromInt(530),
		"XXX": decimal.Zero,
	}
	bounds := PriceBounds(types.SearchRequest{MinPrice: dec("50"), MaxPrice: dec("100")}, rates)
	require.Len(t, bounds, 2, "non-positive rates are skipped")
	assert.Equal(t, 26500.0, *bounds["YER"].Min)
	assert.Equal(t, 53000.0, *bounds["YER"].Max)
	assert.Equal(t, 100.0, *bounds["USD"].Max)

	open := PriceBounds(types.SearchRequest{MaxPrice: dec("100")}, rates)
	assert.Nil(t, open["USD"].Min)
}

func TestSearchCurrency(t *testing.T) {
	assert.Equal(t, "YER", SearchCurrency(types.SearchRequest{Currency: " yer"}, usdRates))
	assert.Equal(t, "USD", SearchCurrency(types.SearchRequest{Currency: "EUR"}, usdRates), "unknown currency falls back to the unit rate")
	assert.Equal(t, "USD", SearchCurrency(types.SearchRequest{}, usdRates))
	assert.Equal(t, "EUR", SearchCurrency(types.SearchRequest{Currency: "eur"}, nil))
}

func TestBuildPaging(t *testing.T) {
	testCases := []struct {
		name     string
		opts     Options
		req      types.SearchRequest
		size     int
		offset   int
		limit    int
		guarded  bool
		capTotal int
	}{
		{name: "defaults", req: types.SearchRequest{City: "Aden"}, size: 20, limit: 20, capTotal: 35},
		{name: "page size capped", req: types.SearchRequest{City: "Aden", PageSize: 500, PageNumber: 2}, size: 100, offset: 100, limit: 100, capTotal: 35},
		{name: "guard caps page size", req: types.SearchRequest{MinRating: floatPtr(4), PageSize: 50}, size: 20, limit: 20, guarded: true, capTotal: 20},
		{name: "guard window ends mid page", opts: Options{GuardMaxResults: 10}, req: types.SearchRequest{SearchTerm: "sea", PageSize: 4, PageNumber: 3},
			size: 4, offset: 8, limit: 2, guarded: true, capTotal: 10},
		{name: "offset beyond guard window", req: types.SearchRequest{MinRating: floatPtr(4), PageNumber: 3},
			size: 20, offset: 40, limit: 0, guarded: true, capTotal: 20},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := NewBuilder(tc.opts).Build(tc.req, usdRates)
			require.NoError(t, err)
			assert.Equal(t, tc.size, q.PageSize)
			assert.Equal(t, tc.offset, q.Offset)
			assert.Equal(t, tc.limit, q.Limit)
			assert.Equal(t, tc.guarded, q.Guarded)
			assert.Equal(t, tc.capTotal, q.CapTotal(35))
		})
	}
}

func TestBuildGuardRestrictsToFeatured(t *testing.T) {
	q, err := NewBuilder(Options{}).Build(types.SearchRequest{MinRating: floatPtr(4)}, usdRates)
	require.NoError(t, err)
	assert.Contains(t, q.Where().SQL, "p.is_featured = 1")

	q, err = NewBuilder(Options{}).Build(types.SearchRequest{City: "Aden"}, usdRates)
	require.NoError(t, err)
	assert.NotContains(t, q.Where().SQL, "p.is_featured = 1")
}

func TestBuildDistanceSortNeedsPoint(t *testing.T) {
	b := NewBuilder(Options{})

	q, err := b.Build(types.SearchRequest{City: "Aden", SortBy: types.SortDistance}, usdRates)
	require.NoError(t, err)
	assert.Equal(t, types.SortDefault, q.Sort)
	assert.Equal(t, "is_featured DESC, average_rating DESC, unit_id ASC", q.OrderBy("unit_id"))

	q, err = b.Build(types.SearchRequest{City: "Aden", SortBy: types.SortDistance, Latitude: floatPtr(12.8), Longitude: floatPtr(45)}, usdRates)
	require.NoError(t, err)
	assert.Equal(t, "distance IS NULL, distance ASC, unit_id ASC", q.OrderBy("unit_id"))
}

func TestBuildRejectsInvalidDynamicFilter(t *testing.T) {
	_, err := NewBuilder(Options{}).Build(types.SearchRequest{City: "Aden", DynamicFields: map[string]string{"floor": "x..y"}}, usdRates)
	assert.ErrorIs(t, err, ErrInvalidDynamicFilter)
}
