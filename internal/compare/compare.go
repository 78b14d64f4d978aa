package compare

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lox/booking-search/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// Field names used in mismatches
const (
	FieldCity         = "city"
	FieldPropertyType = "property_type"
	FieldUnitType     = "unit_type"
	FieldPrice        = "price"
	FieldStarRating   = "star_rating"
	FieldRating       = "rating"
	FieldCapacity     = "capacity"
	FieldAmenities    = "amenities"
	FieldDistance     = "distance"
	FieldAvailability = "availability"
)

// Service computes the mismatch list of a property group against a request
type Service struct{}

// NewService creates a comparison service
func NewService() *Service {
	return &Service{}
}

// Compare lists every criterion of the request the property does not strictly satisfy.
// Unit type, capacity and availability are judged on the coverage of every
// matched unit, price on the group's price range.
func (s *Service) Compare(original types.SearchRequest, group types.PropertyGroupResult) []types.Mismatch {
	var mismatches []types.Mismatch
	add := func(field, expected, actual, description string) {
		mismatches = append(mismatches, types.Mismatch{
			Field:       field,
			Expected:    expected,
			Actual:      actual,
			Description: description,
		})
	}

	if city := strings.TrimSpace(original.City); city != "" && !strings.EqualFold(city, group.City) {
		add(FieldCity, city, group.City, fmt.Sprintf("located in %s instead of %s", group.City, city))
	}

	if original.PropertyTypeID != "" && original.PropertyTypeID != group.PropertyTypeID {
		add(FieldPropertyType, original.PropertyTypeID, group.PropertyTypeID, "different property type")
	}

	coverage := group.Coverage
	if original.UnitTypeID != "" && !slices.Contains(coverage.UnitTypeIDs, original.UnitTypeID) {
		add(FieldUnitType, original.UnitTypeID, strings.Join(coverage.UnitTypeIDs, ","), "no unit of the requested type")
	}

	if original.HasPriceBound() && !priceWithin(group, original.MinPrice, original.MaxPrice) {
		add(FieldPrice, formatRange(original.MinPrice, original.MaxPrice), formatRange(group.MinPrice, group.MaxPrice),
			"price outside the requested range")
	}

	if original.StarRating != nil && *original.StarRating > 0 && group.StarRating < *original.StarRating {
		add(FieldStarRating, strconv.Itoa(*original.StarRating), strconv.Itoa(group.StarRating),
			fmt.Sprintf("%d stars instead of %d or more", group.StarRating, *original.StarRating))
	}

	if original.MinRating != nil && group.AverageRating < *original.MinRating {
		add(FieldRating, formatFloat(*original.MinRating), formatFloat(group.AverageRating), "rated below the requested minimum")
	}

	if guests := original.EffectiveGuests(); guests > 0 && coverage.MaxCapacity < guests {
		add(FieldCapacity, strconv.Itoa(guests), strconv.Itoa(coverage.MaxCapacity),
			fmt.Sprintf("no unit fits %d guests", guests))
	}

	if missing := missingAmenities(original.AmenityIDs, group.Amenities); len(missing) > 0 {
		add(FieldAmenities, strings.Join(original.AmenityIDs, ","), strings.Join(amenityIDs(group.Amenities), ","),
			"missing "+strings.Join(missing, ", "))
	}

	if original.HasGeo() && group.DistanceKm != nil && *group.DistanceKm > *original.RadiusKm {
		add(FieldDistance, formatFloat(*original.RadiusKm)+" km", formatFloat(*group.DistanceKm)+" km", "farther than the requested radius")
	}

	if original.HasDateRange() && !coverage.HasAvailableUnit {
		add(FieldAvailability,
			original.CheckIn.Format(types.DateLayout)+"/"+original.CheckOut.Format(types.DateLayout),
			"unavailable", "not available for the requested dates")
	}

	return mismatches
}

// priceWithin reports whether the group's price range overlaps the requested one
func priceWithin(group types.PropertyGroupResult, min, max *decimal.Decimal) bool {
	if group.MinPrice == nil && group.MaxPrice == nil {
		return false
	}
	lo, hi := group.MinPrice, group.MaxPrice
	if lo == nil {
		lo = hi
	}
	if hi == nil {
		hi = lo
	}
	if min != nil && hi.LessThan(*min) {
		return false
	}
	if max != nil && lo.GreaterThan(*max) {
		return false
	}
	return true
}

func missingAmenities(required []string, have []types.Amenity) []string {
	var missing []string
	for _, id := range required {
		if !slices.ContainsFunc(have, func(a types.Amenity) bool { return a.ID == id }) && !slices.Contains(missing, id) {
			missing = append(missing, id)
		}
	}
	return missing
}

func amenityIDs(amenities []types.Amenity) []string {
	ids := make([]string, 0, len(amenities))
	for _, a := range amenities {
		ids = append(ids, a.ID)
	}
	return ids
}

func formatRange(min, max *decimal.Decimal) string {
	format := func(d *decimal.Decimal) string {
		if d == nil {
			return "any"
		}
		return d.StringFixed(2)
	}
	return format(min) + "-" + format(max)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
