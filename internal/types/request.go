package types

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// DateLayout is the layout used for calendar dates across the store and requests
const DateLayout = "2006-01-02"

// SortKey selects the ordering of search results
type SortKey string

const (
	SortDefault    SortKey = ""
	SortDistance   SortKey = "distance"
	SortPriceAsc   SortKey = "price_asc"
	SortPriceDesc  SortKey = "price_desc"
	SortRating     SortKey = "rating"
	SortNewest     SortKey = "newest"
	SortPopularity SortKey = "popularity"
)

// ParseSortKey maps user input to a SortKey, unknown values fall back to the default order
func ParseSortKey(s string) SortKey {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case SortDistance:
		return SortDistance
	case SortPriceAsc, "price":
		return SortPriceAsc
	case SortPriceDesc:
		return SortPriceDesc
	case SortRating:
		return SortRating
	case SortNewest:
		return SortNewest
	case SortPopularity:
		return SortPopularity
	default:
		return SortDefault
	}
}

// SearchRequest holds every criterion a caller can send to the search engine.
// Optional criteria are pointers or zero values; zero means "not filtered".
type SearchRequest struct {
	City           string `json:"city,omitempty"`
	PropertyTypeID string `json:"property_type_id,omitempty"`
	UnitTypeID     string `json:"unit_type_id,omitempty"`

	CheckIn  *time.Time `json:"check_in,omitempty"`
	CheckOut *time.Time `json:"check_out,omitempty"`

	MinPrice *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice *decimal.Decimal `json:"max_price,omitempty"`
	Currency string           `json:"currency,omitempty"`

	MinRating  *float64 `json:"min_rating,omitempty"`
	StarRating *int     `json:"star_rating,omitempty"`

	GuestsCount   *int `json:"guests_count,omitempty"`
	AdultsCount   int  `json:"adults_count,omitempty"`
	ChildrenCount int  `json:"children_count,omitempty"`

	AmenityIDs    []string          `json:"amenity_ids,omitempty"`
	DynamicFields map[string]string `json:"dynamic_fields,omitempty"`
	SearchTerm    string            `json:"search_term,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	RadiusKm  *float64 `json:"radius_km,omitempty"`

	SortBy     SortKey `json:"sort_by,omitempty"`
	PageNumber int     `json:"page_number,omitempty"`
	PageSize   int     `json:"page_size,omitempty"`

	// DateFlexibilityDays lets the stay start up to N days before or after CheckIn.
	// Only the relaxation engine sets it.
	DateFlexibilityDays int `json:"date_flexibility_days,omitempty"`
}

// Clone returns a deep copy of the request
func (r SearchRequest) Clone() SearchRequest {
	c := r
	c.CheckIn = clonePtr(r.CheckIn)
	c.CheckOut = clonePtr(r.CheckOut)
	c.MinPrice = clonePtr(r.MinPrice)
	c.MaxPrice = clonePtr(r.MaxPrice)
	c.MinRating = clonePtr(r.MinRating)
	c.StarRating = clonePtr(r.StarRating)
	c.GuestsCount = clonePtr(r.GuestsCount)
	c.Latitude = clonePtr(r.Latitude)
	c.Longitude = clonePtr(r.Longitude)
	c.RadiusKm = clonePtr(r.RadiusKm)
	c.AmenityIDs = slices.Clone(r.AmenityIDs)
	if r.DynamicFields != nil {
		c.DynamicFields = maps.Clone(r.DynamicFields)
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// HasDateRange reports whether both check-in and check-out are set and ordered
func (r SearchRequest) HasDateRange() bool {
	return r.CheckIn != nil && r.CheckOut != nil && r.CheckOut.After(*r.CheckIn)
}

// HasPriceBound reports whether a minimum or maximum price is set
func (r SearchRequest) HasPriceBound() bool {
	return r.MinPrice != nil || r.MaxPrice != nil
}

// HasGeo reports whether a point and a positive radius are both set
func (r SearchRequest) HasGeo() bool {
	return r.HasPoint() && r.RadiusKm != nil && *r.RadiusKm > 0
}

// HasPoint reports whether a reference point is set
func (r SearchRequest) HasPoint() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// EffectiveGuests returns GuestsCount when set, otherwise adults plus children
func (r SearchRequest) EffectiveGuests() int {
	if r.GuestsCount != nil {
		return *r.GuestsCount
	}
	return r.AdultsCount + r.ChildrenCount
}

// HasSignificantFilter reports whether the request narrows the search enough
// to skip the featured-only safety guard.
func (r SearchRequest) HasSignificantFilter() bool {
	return strings.TrimSpace(r.City) != "" ||
		r.UnitTypeID != "" ||
		r.PropertyTypeID != "" ||
		r.HasDateRange() ||
		r.HasPriceBound() ||
		r.HasGeo()
}

// HasAnyCriteria reports whether at least one filter is set.
// Paging, sorting and currency are not criteria.
func (r SearchRequest) HasAnyCriteria() bool {
	return r.HasSignificantFilter() ||
		r.CheckIn != nil || r.CheckOut != nil ||
		r.MinRating != nil || r.StarRating != nil ||
		r.EffectiveGuests() > 0 ||
		len(r.AmenityIDs) > 0 ||
		len(r.DynamicFields) > 0 ||
		strings.TrimSpace(r.SearchTerm) != "" ||
		r.HasPoint()
}

// Nights returns the number of nights between check-in and check-out
func (r SearchRequest) Nights() int {
	if !r.HasDateRange() {
		return 0
	}
	return int(math.Round(r.CheckOut.Sub(*r.CheckIn).Hours() / 24))
}
