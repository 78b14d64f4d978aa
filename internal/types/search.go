package types

import "github.com/shopspring/decimal"

// ScheduleStatus is the per-day state of a unit in the daily schedule
type ScheduleStatus string

const (
	StatusAvailable   ScheduleStatus = "Available"
	StatusBooked      ScheduleStatus = "Booked"
	StatusBlocked     ScheduleStatus = "Blocked"
	StatusMaintenance ScheduleStatus = "Maintenance"
	StatusHold        ScheduleStatus = "Hold"
)

// UnitRow is one matching unit as projected by the store.
// Price is already converted into the search currency.
type UnitRow struct {
	UnitID            string
	PropertyID        string
	UnitTypeID        string
	Name              string
	MaxCapacity       int
	PricingMethod     string
	Price             *decimal.Decimal
	Currency          string
	AvailableOriginal bool
	DistanceKm        *float64

	PropertyName   string
	PropertyTypeID string
	City           string
	Address        string
	StarRating     int
	AverageRating  float64
	IsFeatured     bool
	Latitude       float64
	Longitude      float64
}

// PropertyRow is the per-property aggregate of matching units
type PropertyRow struct {
	PropertyID     string
	Name           string
	PropertyTypeID string
	City           string
	Address        string
	StarRating     int
	AverageRating  float64
	IsFeatured     bool
	Latitude       float64
	Longitude      float64
	DistanceKm     *float64
	MinPrice       *decimal.Decimal
	MaxPrice       *decimal.Decimal
	MatchedUnits   int
	Coverage       UnitCoverage
}

// UnitCoverage summarises every matching unit of a property, not only the
// capped page of units returned with it
type UnitCoverage struct {
	UnitTypeIDs      []string
	MaxCapacity      int
	HasAvailableUnit bool
}

// Amenity is a named facility attached to a property
type Amenity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UnitItem is a flat, user-facing unit search result
type UnitItem struct {
	UnitID         string           `json:"unit_id"`
	UnitName       string           `json:"unit_name"`
	UnitTypeID     string           `json:"unit_type_id,omitempty"`
	PropertyID     string           `json:"property_id"`
	PropertyName   string           `json:"property_name"`
	City           string           `json:"city"`
	Address        string           `json:"address,omitempty"`
	MaxCapacity    int              `json:"max_capacity"`
	PricingMethod  string           `json:"pricing_method,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Currency       string           `json:"currency"`
	StarRating     int              `json:"star_rating"`
	AverageRating  float64          `json:"average_rating"`
	IsFeatured     bool             `json:"is_featured"`
	DistanceKm     *float64         `json:"distance_km,omitempty"`
	MainImage      string           `json:"main_image,omitempty"`
	Amenities      []Amenity        `json:"amenities,omitempty"`
	RelevanceScore float64          `json:"relevance_score"`
	IsAvailable    bool             `json:"is_available"`
}

// Mismatch is one original criterion a returned property does not strictly satisfy
type Mismatch struct {
	Field       string `json:"field"`
	Expected    string `json:"expected"`
	Actual      string `json:"actual"`
	Description string `json:"description"`
}

// PropertyGroupResult aggregates matching units by property
type PropertyGroupResult struct {
	PropertyID        string           `json:"property_id"`
	Name              string           `json:"name"`
	PropertyTypeID    string           `json:"property_type_id,omitempty"`
	City              string           `json:"city"`
	Address           string           `json:"address,omitempty"`
	StarRating        int              `json:"star_rating"`
	AverageRating     float64          `json:"average_rating"`
	IsFeatured        bool             `json:"is_featured"`
	Latitude          float64          `json:"latitude"`
	Longitude         float64          `json:"longitude"`
	DistanceKm        *float64         `json:"distance_km,omitempty"`
	MinPrice          *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice          *decimal.Decimal `json:"max_price,omitempty"`
	Currency          string           `json:"currency"`
	MainImage         string           `json:"main_image,omitempty"`
	Amenities         []Amenity        `json:"amenities,omitempty"`
	MatchedUnits      []UnitItem       `json:"matched_units"`
	TotalMatchedUnits int              `json:"total_matched_units"`
	RelevanceScore    float64          `json:"relevance_score"`
	Mismatches        []Mismatch       `json:"mismatches,omitempty"`
	Coverage          UnitCoverage     `json:"-"`
}

// SearchMeta is shared by unit and property search results
type SearchMeta struct {
	TotalCount       int             `json:"total_count"`
	PageNumber       int             `json:"page_number"`
	PageSize         int             `json:"page_size"`
	TotalPages       int             `json:"total_pages"`
	AppliedFilters   SearchRequest   `json:"applied_filters"`
	RelaxationLevel  RelaxationLevel `json:"relaxation_level"`
	WasRelaxed       bool            `json:"was_relaxed"`
	RelaxedFilters   []string        `json:"relaxed_filters,omitempty"`
	Message          string          `json:"message,omitempty"`
	SuggestedActions []string        `json:"suggested_actions,omitempty"`
	SearchTimeMs     int64           `json:"search_time_ms"`
	Success          bool            `json:"success"`
	ErrorMessage     string          `json:"error_message,omitempty"`
}

// SearchResult is the result of a single-unit search
type SearchResult struct {
	SearchMeta
	Items []UnitItem `json:"items"`
}

// PropertyWithUnitsSearchResult is the result of a property-grouped search
type PropertyWithUnitsSearchResult struct {
	SearchMeta
	Properties []PropertyGroupResult `json:"properties"`
}

// Explanation is the user-facing text describing a search outcome
type Explanation struct {
	Message          string   `json:"message"`
	SuggestedActions []string `json:"suggested_actions"`
}
