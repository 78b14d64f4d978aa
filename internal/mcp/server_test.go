package mcp

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/lox/booking-search/internal/db"
	"github.com/lox/booking-search/internal/types"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	last types.SearchRequest
	err  error
}

func (f *fakeSearcher) SearchUnits(ctx context.Context, req types.SearchRequest) (*types.SearchResult, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	price := decimal.RequireFromString("60")
	return &types.SearchResult{
		SearchMeta: types.SearchMeta{
			TotalCount:       1,
			PageNumber:       1,
			PageSize:         20,
			TotalPages:       1,
			RelaxationLevel:  types.MinorRelaxation,
			WasRelaxed:       true,
			RelaxedFilters:   []string{"price widened to 42.50-115.00 USD"},
			Message:          "Found 1 result after slightly adjusting your search.",
			SuggestedActions: []string{"Widen your price range"},
			Success:          true,
		},
		Items: []types.UnitItem{{
			UnitID: "u1", UnitName: "Double Room", PropertyName: "Sea View Hotel", City: "Aden",
			Price: &price, Currency: "USD", MaxCapacity: 2, StarRating: 4, AverageRating: 4.5,
			IsAvailable: true, Amenities: []types.Amenity{{ID: "wifi", Name: "Wi-Fi"}},
		}},
	}, nil
}

func (f *fakeSearcher) SearchPropertiesWithUnits(ctx context.Context, req types.SearchRequest) (*types.PropertyWithUnitsSearchResult, error) {
	f.last = req
	return &types.PropertyWithUnitsSearchResult{
		SearchMeta: types.SearchMeta{
			TotalCount: 1, PageNumber: 1, TotalPages: 1,
			RelaxationLevel: types.Exact,
			Success:         true,
		},
		Properties: []types.PropertyGroupResult{{
			PropertyID: "p1", Name: "Sea View Hotel", City: "Aden", Currency: "USD",
			TotalMatchedUnits: 1,
			MatchedUnits:      []types.UnitItem{{UnitID: "u1", UnitName: "Double Room", Currency: "USD", MaxCapacity: 2}},
			Mismatches:        []types.Mismatch{{Field: "price", Expected: "any-50.00", Actual: "60.00-110.00"}},
		}},
	}, nil
}

type fakeStats struct{}

func (fakeStats) Stats(ctx context.Context) (*db.Stats, error) {
	return &db.Stats{
		Tables:       []db.TableCount{{Table: "units", Rows: 42}},
		Indexes:      []string{"idx_units_property"},
		ScheduleFrom: "2025-06-01",
		ScheduleTo:   "2025-08-29",
		Migrations:   2,
	}, nil
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func newTestServer(searcher *fakeSearcher) *Server {
	return New(searcher, fakeStats{}, log.New(io.Discard))
}

func TestParseSearchRequest(t *testing.T) {
	req, err := parseSearchRequest(map[string]interface{}{
		"city":      "Aden",
		"check_in":  "2025-06-01",
		"check_out": "2025-06-03",
		"min_price": 50.0,
		"max_price": "100",
		"currency":  "usd",
		"stars":     "4",
		"guests":    float64(2),
		"amenities": "wifi, pool,",
		"fields":    "view=~sea,floor=2..5",
		"latitude":  12.78,
		"longitude": "45.01",
		"radius_km": 3,
		"sort":      "distance",
		"page":      "2",
	})
	require.NoError(t, err)

	assert.Equal(t, "Aden", req.City)
	assert.Equal(t, "USD", req.Currency)
	assert.Equal(t, 2, req.Nights())
	assert.Equal(t, "50", req.MinPrice.String())
	assert.Equal(t, "100", req.MaxPrice.String())
	assert.Equal(t, 4, *req.StarRating)
	assert.Equal(t, 2, *req.GuestsCount)
	assert.Equal(t, []string{"wifi", "pool"}, req.AmenityIDs)
	assert.Equal(t, map[string]string{"view": "~sea", "floor": "2..5"}, req.DynamicFields)
	assert.True(t, req.HasGeo())
	assert.Equal(t, types.SortDistance, req.SortBy)
	assert.Equal(t, 2, req.PageNumber)
}

func TestParseSearchRequestDefaults(t *testing.T) {
	req, err := parseSearchRequest(map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "YER", req.Currency)
	assert.False(t, req.HasAnyCriteria())
	assert.Nil(t, req.DynamicFields)
	assert.Nil(t, req.AmenityIDs)
}

func TestParseSearchRequestObjectFields(t *testing.T) {
	req, err := parseSearchRequest(map[string]interface{}{
		"fields":    map[string]interface{}{"view": "sea"},
		"amenities": []interface{}{"wifi", "ac"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"view": "sea"}, req.DynamicFields)
	assert.Equal(t, []string{"wifi", "ac"}, req.AmenityIDs)
}

func TestParseSearchRequestInvalid(t *testing.T) {
	testCases := map[string]map[string]interface{}{
		"date":      {"check_in": "June 1st"},
		"price":     {"min_price": "cheap"},
		"negative":  {"max_price": -10.0},
		"stars":     {"stars": "four"},
		"type":      {"guests": true},
		"latitude":  {"latitude": "north"},
		"fields":    {"fields": "view"},
		"field obj": {"fields": map[string]interface{}{"floor": 3.0}},
	}
	for name, args := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := parseSearchRequest(args)
			assert.Error(t, err)
		})
	}
}

func TestSearchUnitsHandler(t *testing.T) {
	searcher := &fakeSearcher{}
	result, err := newTestServer(searcher).searchUnitsHandler(context.Background(), callRequest(map[string]interface{}{
		"city":      "Aden",
		"max_price": "50",
		"currency":  "USD",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Aden", searcher.last.City)

	text := resultText(t, result)
	assert.Contains(t, text, "Relaxation level: minor")
	assert.Contains(t, text, "Results: 1 (page 1 of 1)")
	assert.Contains(t, text, "Relaxed: price widened to 42.50-115.00 USD")
	assert.Contains(t, text, "Suggestion: Widen your price range")
	assert.Contains(t, text, "u1: Double Room at Sea View Hotel, Aden")
	assert.Contains(t, text, "Price: 60.00 USD")
	assert.Contains(t, text, "Amenities: Wi-Fi")
}

func TestSearchUnitsHandlerErrors(t *testing.T) {
	s := newTestServer(&fakeSearcher{err: context.Canceled})
	_, err := s.searchUnitsHandler(context.Background(), callRequest(map[string]interface{}{"city": "Aden"}))
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = s.searchUnitsHandler(context.Background(), callRequest(map[string]interface{}{"check_in": "soon"}))
	assert.Error(t, err)
}

func TestSearchPropertiesHandler(t *testing.T) {
	result, err := newTestServer(&fakeSearcher{}).searchPropertiesHandler(context.Background(), callRequest(map[string]interface{}{"city": "Aden"}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Relaxation level: exact")
	assert.Contains(t, text, "p1: Sea View Hotel, Aden")
	assert.Contains(t, text, "Price: unknown - unknown USD")
	assert.Contains(t, text, "- u1: Double Room, unknown USD, capacity 2")
	assert.Contains(t, text, "Differs on price: wanted any-50.00, has 60.00-110.00")
}

func TestIndexStatsHandler(t *testing.T) {
	result, err := newTestServer(&fakeSearcher{}).indexStatsHandler(context.Background(), callRequest(nil))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "units: 42 rows")
	assert.Contains(t, text, "Indexes: idx_units_property")
	assert.Contains(t, text, "Schedule: 2025-06-01 to 2025-08-29")
	assert.Contains(t, text, "Migrations: 2")
}

func TestMCPServerBuilds(t *testing.T) {
	assert.NotNil(t, newTestServer(&fakeSearcher{}).MCPServer())
}
