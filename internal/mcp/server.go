package mcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/booking-search/internal/db"
	"github.com/lox/booking-search/internal/types"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"
)

// Searcher runs relaxed searches
type Searcher interface {
	SearchUnits(ctx context.Context, req types.SearchRequest) (*types.SearchResult, error)
	SearchPropertiesWithUnits(ctx context.Context, req types.SearchRequest) (*types.PropertyWithUnitsSearchResult, error)
}

// StatsReader reports the contents of the store
type StatsReader interface {
	Stats(ctx context.Context) (*db.Stats, error)
}

type Server struct {
	engine Searcher
	stats  StatsReader
	logger *log.Logger
}

func New(engine Searcher, stats StatsReader, logger *log.Logger) *Server {
	return &Server{
		engine: engine,
		stats:  stats,
		logger: logger,
	}
}

// searchParams are the request arguments shared by both search tools
func searchParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("city", mcp.Description("City to search in")),
		mcp.WithString("property_type", mcp.Description("Property type ID (hotel, apartment, chalet, villa)")),
		mcp.WithString("unit_type", mcp.Description("Unit type ID (room, suite, apartment, chalet, villa)")),
		mcp.WithString("check_in", mcp.Description("Check-in date, YYYY-MM-DD")),
		mcp.WithString("check_out", mcp.Description("Check-out date, YYYY-MM-DD")),
		mcp.WithString("min_price", mcp.Description("Minimum nightly price")),
		mcp.WithString("max_price", mcp.Description("Maximum nightly price")),
		mcp.WithString("currency", mcp.Description("Currency code of the price bounds and results (default: YER)")),
		mcp.WithString("min_rating", mcp.Description("Minimum average guest rating (0-5)")),
		mcp.WithString("stars", mcp.Description("Minimum star rating (1-5)")),
		mcp.WithString("guests", mcp.Description("Number of guests")),
		mcp.WithString("amenities", mcp.Description("Comma separated amenity IDs that must all be present")),
		mcp.WithString("fields", mcp.Description("Comma separated dynamic field filters, name=value. Values may be ~contains, ^prefix or min..max")),
		mcp.WithString("text", mcp.Description("Free-text search term")),
		mcp.WithString("latitude", mcp.Description("Latitude of the reference point")),
		mcp.WithString("longitude", mcp.Description("Longitude of the reference point")),
		mcp.WithString("radius_km", mcp.Description("Search radius in km around the reference point")),
		mcp.WithString("sort", mcp.Description("Sort order: distance, price_asc, price_desc, rating, newest, popularity")),
		mcp.WithString("page", mcp.Description("Page number (default: 1)")),
		mcp.WithString("page_size", mcp.Description("Results per page")),
	}
}

// MCPServer builds the MCP server with every tool registered
func (s *Server) MCPServer() *server.MCPServer {
	mcpServer := server.NewMCPServer(
		"Booking Search",
		"1.0.0",
	)

	mcpServer.AddTool(mcp.NewTool("search_units",
		append([]mcp.ToolOption{
			mcp.WithDescription("Search bookable units. The search is relaxed step by step when too few units match, and the response says which filters were relaxed."),
		}, searchParams()...)...,
	), s.searchUnitsHandler)

	mcpServer.AddTool(mcp.NewTool("search_properties",
		append([]mcp.ToolOption{
			mcp.WithDescription("Search properties with their matching units, relaxing the search like search_units. Each property lists how it differs from the original request."),
		}, searchParams()...)...,
	), s.searchPropertiesHandler)

	mcpServer.AddTool(mcp.NewTool("index_stats",
		mcp.WithDescription("Show row counts, indexes and the scheduled date span of the booking store"),
	), s.indexStatsHandler)

	return mcpServer
}

// Run serves the tools over stdio
func (s *Server) Run() error {
	if err := server.ServeStdio(s.MCPServer()); err != nil {
		return err
	}
	return nil
}

func (s *Server) searchUnitsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := parseSearchRequest(request.Params.Arguments)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.SearchUnits(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search units: %w", err)
	}
	s.logger.Debug("Searched units", "level", res.RelaxationLevel, "total", res.TotalCount)

	var b strings.Builder
	writeMeta(&b, res.SearchMeta)
	for _, item := range res.Items {
		fmt.Fprintf(&b, "%s: %s at %s, %s\n", item.UnitID, item.UnitName, item.PropertyName, item.City)
		fmt.Fprintf(&b, "  Price: %s %s\n", formatPrice(item.Price), item.Currency)
		fmt.Fprintf(&b, "  Capacity: %d, Stars: %d, Rating: %.1f\n", item.MaxCapacity, item.StarRating, item.AverageRating)
		if item.DistanceKm != nil {
			fmt.Fprintf(&b, "  Distance: %.1f km\n", *item.DistanceKm)
		}
		fmt.Fprintf(&b, "  Available: %t\n", item.IsAvailable)
		if len(item.Amenities) > 0 {
			fmt.Fprintf(&b, "  Amenities: %s\n", amenityNames(item.Amenities))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) searchPropertiesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := parseSearchRequest(request.Params.Arguments)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.SearchPropertiesWithUnits(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search properties: %w", err)
	}
	s.logger.Debug("Searched properties", "level", res.RelaxationLevel, "total", res.TotalCount)

	var b strings.Builder
	writeMeta(&b, res.SearchMeta)
	for _, p := range res.Properties {
		fmt.Fprintf(&b, "%s: %s, %s\n", p.PropertyID, p.Name, p.City)
		fmt.Fprintf(&b, "  Price: %s - %s %s\n", formatPrice(p.MinPrice), formatPrice(p.MaxPrice), p.Currency)
		fmt.Fprintf(&b, "  Stars: %d, Rating: %.1f, Matching units: %d\n", p.StarRating, p.AverageRating, p.TotalMatchedUnits)
		for _, u := range p.MatchedUnits {
			fmt.Fprintf(&b, "  - %s: %s, %s %s, capacity %d, available %t\n", u.UnitID, u.UnitName, formatPrice(u.Price), u.Currency, u.MaxCapacity, u.IsAvailable)
		}
		for _, m := range p.Mismatches {
			fmt.Fprintf(&b, "  Differs on %s: wanted %s, has %s\n", m.Field, m.Expected, m.Actual)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) indexStatsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	var b strings.Builder
	for _, t := range stats.Tables {
		fmt.Fprintf(&b, "%s: %d rows\n", t.Table, t.Rows)
	}
	fmt.Fprintf(&b, "Indexes: %s\n", strings.Join(stats.Indexes, ", "))
	if stats.ScheduleFrom != "" {
		fmt.Fprintf(&b, "Schedule: %s to %s\n", stats.ScheduleFrom, stats.ScheduleTo)
	}
	fmt.Fprintf(&b, "Migrations: %d\n", stats.Migrations)
	fmt.Fprintf(&b, "Size: %d bytes\n", stats.SizeBytes)
	return mcp.NewToolResultText(b.String()), nil
}

func writeMeta(b *strings.Builder, meta types.SearchMeta) {
	if !meta.Success {
		fmt.Fprintf(b, "Search failed: %s\n", meta.ErrorMessage)
	}
	fmt.Fprintf(b, "Relaxation level: %s\n", meta.RelaxationLevel)
	fmt.Fprintf(b, "Results: %d (page %d of %d)\n", meta.TotalCount, meta.PageNumber, meta.TotalPages)
	for _, note := range meta.RelaxedFilters {
		fmt.Fprintf(b, "Relaxed: %s\n", note)
	}
	if meta.Message != "" {
		fmt.Fprintf(b, "Message: %s\n", meta.Message)
	}
	for _, action := range meta.SuggestedActions {
		fmt.Fprintf(b, "Suggestion: %s\n", action)
	}
	b.WriteString("\n")
}

func formatPrice(p *decimal.Decimal) string {
	if p == nil {
		return "unknown"
	}
	return p.StringFixed(2)
}

func amenityNames(amenities []types.Amenity) string {
	names := make([]string, 0, len(amenities))
	for _, a := range amenities {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// parseSearchRequest reads the tool arguments. Numbers may arrive as JSON numbers or strings.
func parseSearchRequest(args map[string]interface{}) (types.SearchRequest, error) {
	req := types.SearchRequest{
		City:           stringArg(args, "city"),
		PropertyTypeID: stringArg(args, "property_type"),
		UnitTypeID:     stringArg(args, "unit_type"),
		Currency:       strings.ToUpper(stringArg(args, "currency")),
		SearchTerm:     stringArg(args, "text"),
		SortBy:         types.ParseSortKey(stringArg(args, "sort")),
	}
	if req.Currency == "" {
		req.Currency = "YER"
	}

	var err error
	if req.CheckIn, err = dateArg(args, "check_in"); err != nil {
		return req, err
	}
	if req.CheckOut, err = dateArg(args, "check_out"); err != nil {
		return req, err
	}
	if req.MinPrice, err = decimalArg(args, "min_price"); err != nil {
		return req, err
	}
	if req.MaxPrice, err = decimalArg(args, "max_price"); err != nil {
		return req, err
	}
	if req.MinRating, err = floatArg(args, "min_rating"); err != nil {
		return req, err
	}
	if req.StarRating, err = intArg(args, "stars"); err != nil {
		return req, err
	}
	if req.GuestsCount, err = intArg(args, "guests"); err != nil {
		return req, err
	}
	if req.Latitude, err = floatArg(args, "latitude"); err != nil {
		return req, err
	}
	if req.Longitude, err = floatArg(args, "longitude"); err != nil {
		return req, err
	}
	if req.RadiusKm, err = floatArg(args, "radius_km"); err != nil {
		return req, err
	}

	page, err := intArg(args, "page")
	if err != nil {
		return req, err
	}
	if page != nil {
		req.PageNumber = *page
	}
	pageSize, err := intArg(args, "page_size")
	if err != nil {
		return req, err
	}
	if pageSize != nil {
		req.PageSize = *pageSize
	}

	req.AmenityIDs = listArg(args, "amenities")
	if req.DynamicFields, err = fieldsArg(args, "fields"); err != nil {
		return req, err
	}
	return req, nil
}

func stringArg(args map[string]interface{}, name string) string {
	switch v := args[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

func intArg(args map[string]interface{}, name string) (*int, error) {
	var n int
	switch v := args[name].(type) {
	case nil:
		return nil, nil
	case int:
		n = v
	case float64:
		n = int(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var err error
		n, err = strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%s must be a valid integer: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("%s must be a number or string", name)
	}
	return &n, nil
}

func floatArg(args map[string]interface{}, name string) (*float64, error) {
	var f float64
	switch v := args[name].(type) {
	case nil:
		return nil, nil
	case int:
		f = float64(v)
	case float64:
		f = v
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var err error
		f, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a valid number: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("%s must be a number or string", name)
	}
	return &f, nil
}

func decimalArg(args map[string]interface{}, name string) (*decimal.Decimal, error) {
	switch args[name].(type) {
	case nil, string, int, float64:
	default:
		return nil, fmt.Errorf("%s must be a number or string", name)
	}
	s := stringArg(args, name)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%s must be a valid amount: %w", name, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%s must not be negative", name)
	}
	return &d, nil
}

func dateArg(args map[string]interface{}, name string) (*time.Time, error) {
	s := stringArg(args, name)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(types.DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%s must be a date in YYYY-MM-DD format: %w", name, err)
	}
	return &t, nil
}

func listArg(args map[string]interface{}, name string) []string {
	var parts []string
	switch v := args[name].(type) {
	case string:
		parts = strings.Split(v, ",")
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fieldsArg(args map[string]interface{}, name string) (map[string]string, error) {
	fields := map[string]string{}
	switch v := args[name].(type) {
	case nil:
	case map[string]interface{}:
		for k, val := range v {
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("%s.%s must be a string", name, k)
			}
			fields[k] = s
		}
	case string:
		for _, pair := range listArg(args, name) {
			k, val, ok := strings.Cut(pair, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return nil, fmt.Errorf("%s entry %q must be name=value", name, pair)
			}
			fields[strings.TrimSpace(k)] = strings.TrimSpace(val)
		}
	default:
		return nil, errors.New(name + " must be a string or object")
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}
