package relax

import (
	"fmt"
	"math"
	"strconv"

	"github.com/lox/booking-search/internal/types"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Relax derives the request for a level from the original request and
// describes each relaxed filter. The original is never modified.
//
// Drops are replayed level by level from Minor, so every filter dropped at a
// lower level is dropped at this one too. A filter is kept when dropping it
// would remove the last significant filter, so the featured-only guard never
// narrows a relaxed search, and dates are kept while a price bound remains.
func Relax(original types.SearchRequest, level types.RelaxationLevel, policy Policy) (types.SearchRequest, []string) {
	relaxed := original.Clone()
	if level == types.Exact || !level.Valid() {
		return relaxed, nil
	}

	policy = policy.Normalize()
	var notes []string

	for _, step := range types.RelaxationLevels[1 : level+1] {
		lp := policy.Level(step)
		for _, f := range Filters {
			if !lp.Drops(f) {
				continue
			}
			candidate := relaxed.Clone()
			note, changed := drop(&candidate, f)
			if !changed {
				continue
			}
			if original.HasSignificantFilter() && !candidate.HasSignificantFilter() {
				continue
			}
			if f == FilterDates && candidate.HasPriceBound() {
				continue
			}
			relaxed = candidate
			notes = append(notes, note)
		}
	}

	lp := policy.Level(level)
	if note, ok := widenPrice(&relaxed, lp.PriceTolerancePercent); ok {
		notes = append(notes, note)
	}
	if note, ok := widenDates(&relaxed, lp.DateFlexibilityDays); ok {
		notes = append(notes, note)
	}
	if note, ok := widenRadius(&relaxed, lp.RadiusMultiplier); ok {
		notes = append(notes, note)
	}

	return relaxed, notes
}

// drop clears one filter group, reporting whether anything was set
func drop(r *types.SearchRequest, f Filter) (string, bool) {
	switch f {
	case FilterRatings:
		if r.MinRating == nil && r.StarRating == nil {
			return "", false
		}
		r.MinRating, r.StarRating = nil, nil
		return "rating requirements removed", true
	case FilterAmenities:
		if len(r.AmenityIDs) == 0 {
			return "", false
		}
		r.AmenityIDs = nil
		return "amenity requirements removed", true
	case FilterDynamicFields:
		if len(r.DynamicFields) == 0 {
			return "", false
		}
		r.DynamicFields = nil
		return "unit feature filters removed", true
	case FilterSearchTerm:
		if r.SearchTerm == "" {
			return "", false
		}
		term := r.SearchTerm
		r.SearchTerm = ""
		return fmt.Sprintf("search term %q removed", term), true
	case FilterCapacity:
		if r.EffectiveGuests() == 0 {
			return "", false
		}
		r.GuestsCount, r.AdultsCount, r.ChildrenCount = nil, 0, 0
		return "guest count requirement removed", true
	case FilterUnitType:
		if r.UnitTypeID == "" {
			return "", false
		}
		r.UnitTypeID = ""
		return "unit type filter removed", true
	case FilterPropertyType:
		if r.PropertyTypeID == "" {
			return "", false
		}
		r.PropertyTypeID = ""
		return "property type filter removed", true
	case FilterDates:
		if r.CheckIn == nil && r.CheckOut == nil {
			return "", false
		}
		r.CheckIn, r.CheckOut, r.DateFlexibilityDays = nil, nil, 0
		return "travel dates removed", true
	case FilterGeo:
		if r.RadiusKm == nil {
			return "", false
		}
		r.RadiusKm = nil
		return "distance limit removed", true
	case FilterPrice:
		if !r.HasPriceBound() {
			return "", false
		}
		r.MinPrice, r.MaxPrice = nil, nil
		return "price range removed", true
	}
	return "", false
}

func widenPrice(r *types.SearchRequest, percent float64) (string, bool) {
	if !r.HasPriceBound() || percent <= 0 {
		return "", false
	}
	tolerance := decimal.NewFromFloat(percent).Div(hundred)

	before := priceRange(r)
	if r.MinPrice != nil {
		v := r.MinPrice.Mul(one.Sub(tolerance))
		if v.Sign() < 0 {
			v = decimal.Zero
		}
		v = v.Round(2)
		r.MinPrice = &v
	}
	if r.MaxPrice != nil {
		v := r.MaxPrice.Mul(one.Add(tolerance)).Round(2)
		r.MaxPrice = &v
	}
	return fmt.Sprintf("price range widened by ±%s%% (%s → %s)", formatFloat(percent), before, priceRange(r)), true
}

func priceRange(r *types.SearchRequest) string {
	format := func(d *decimal.Decimal) string {
		if d == nil {
			return "any"
		}
		return d.StringFixed(2)
	}
	s := format(r.MinPrice) + "–" + format(r.MaxPrice)
	if r.Currency != "" {
		s += " " + r.Currency
	}
	return s
}

func widenDates(r *types.SearchRequest, days int) (string, bool) {
	if !r.HasDateRange() || days <= 0 {
		return "", false
	}
	r.DateFlexibilityDays = days
	return fmt.Sprintf("dates made flexible by ±%d days", days), true
}

func widenRadius(r *types.SearchRequest, multiplier float64) (string, bool) {
	if !r.HasGeo() || multiplier <= 1 {
		return "", false
	}
	before := *r.RadiusKm
	after := before * multiplier
	r.RadiusKm = &after
	return fmt.Sprintf("search radius expanded from %s km to %s km", formatFloat(before), formatFloat(after)), true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}
