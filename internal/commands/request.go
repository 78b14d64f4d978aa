package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/lox/booking-search/internal/types"
	"github.com/shopspring/decimal"
)

// RequestFlags contains flag definitions for a search request. Zero values leave a criterion unset.
type RequestFlags struct {
	City         string            `help:"City to search in"`
	PropertyType string            `help:"Property type ID"`
	UnitType     string            `help:"Unit type ID"`
	CheckIn      string            `help:"Check-in date (YYYY-MM-DD)"`
	CheckOut     string            `help:"Check-out date (YYYY-MM-DD)"`
	MinPrice     string            `help:"Minimum nightly price"`
	MaxPrice     string            `help:"Maximum nightly price"`
	Currency     string            `help:"Currency of the price bounds and results" default:"YER"`
	MinRating    float64           `help:"Minimum average rating"`
	Stars        int               `help:"Exact star rating"`
	Guests       int               `help:"Number of guests"`
	Adults       int               `help:"Number of adults, used when --guests is not set"`
	Children     int               `help:"Number of children, used when --guests is not set"`
	Amenity      []string          `help:"Required amenity IDs" sep:","`
	Field        map[string]string `help:"Dynamic field filters (name=value, ~contains, ^prefix, min..max)"`
	Text         string            `help:"Free-text search term"`
	Lat          float64           `help:"Latitude of the reference point"`
	Lng          float64           `help:"Longitude of the reference point"`
	Radius       float64           `help:"Search radius in km around --lat/--lng"`
	Sort         string            `help:"Sort order (distance, price_asc, price_desc, rating, newest, popularity)"`
	Page         int               `help:"Page number" default:"1"`
	PageSize     int               `help:"Results per page"`
}

// SearchRequest converts the flags into a search request
func (f RequestFlags) SearchRequest() (types.SearchRequest, error) {
	req := types.SearchRequest{
		City:           strings.TrimSpace(f.City),
		PropertyTypeID: f.PropertyType,
		UnitTypeID:     f.UnitType,
		Currency:       strings.ToUpper(strings.TrimSpace(f.Currency)),
		AdultsCount:    f.Adults,
		ChildrenCount:  f.Children,
		AmenityIDs:     f.Amenity,
		SearchTerm:     f.Text,
		SortBy:         types.ParseSortKey(f.Sort),
		PageNumber:     f.Page,
		PageSize:       f.PageSize,
	}
	if len(f.Field) > 0 {
		req.DynamicFields = f.Field
	}

	var err error
	if req.CheckIn, err = ParseDate(f.CheckIn); err != nil {
		return req, fmt.Errorf("invalid check-in: %w", err)
	}
	if req.CheckOut, err = ParseDate(f.CheckOut); err != nil {
		return req, fmt.Errorf("invalid check-out: %w", err)
	}
	if req.MinPrice, err = ParsePrice(f.MinPrice); err != nil {
		return req, fmt.Errorf("invalid min price: %w", err)
	}
	if req.MaxPrice, err = ParsePrice(f.MaxPrice); err != nil {
		return req, fmt.Errorf("invalid max price: %w", err)
	}

	if f.MinRating > 0 {
		req.MinRating = &f.MinRating
	}
	if f.Stars > 0 {
		req.StarRating = &f.Stars
	}
	if f.Guests > 0 {
		req.GuestsCount = &f.Guests
	}
	if f.Radius > 0 {
		req.Latitude, req.Longitude, req.RadiusKm = &f.Lat, &f.Lng, &f.Radius
	}
	return req, nil
}

// ParseDate parses a calendar date, an empty string is no date
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(types.DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ParsePrice parses a decimal amount, an empty string is no bound
func ParsePrice(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("price %s is negative", s)
	}
	return &d, nil
}
