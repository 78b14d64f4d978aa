package query

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/lox/booking-search/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// PriceBound is a price range expressed in one currency
type PriceBound struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// PriceBounds converts the request bounds into every currency of the rate table.
// The result is keyed by currency code.
func PriceBounds(req types.SearchRequest, rates map[string]decimal.Decimal) map[string]PriceBound {
	bounds := make(map[string]PriceBound, len(rates))
	for code, rate := range rates {
		if rate.Sign() <= 0 {
			continue
		}
		var b PriceBound
		if req.MinPrice != nil {
			v := req.MinPrice.Mul(rate).InexactFloat64()
			b.Min = &v
		}
		if req.MaxPrice != nil {
			v := req.MaxPrice.Mul(rate).InexactFloat64()
			b.Max = &v
		}
		bounds[code] = b
	}
	return bounds
}

const basePriceInRange = `EXISTS (
	SELECT 1 FROM json_each(?) b
	WHERE b.key = u.base_currency AND u.base_price IS NOT NULL
	  AND (json_extract(b.value, '$.min') IS NULL OR u.base_price >= json_extract(b.value, '$.min'))
	  AND (json_extract(b.value, '$.max') IS NULL OR u.base_price <= json_extract(b.value, '$.max'))
)`

// priceFilter matches units whose scheduled price falls inside the bounds for any currency.
// Units without priced schedule rows are tested on their base price.
func priceFilter(req types.SearchRequest, rates map[string]decimal.Decimal) (Fragment, error) {
	data, err := json.Marshal(PriceBounds(req, rates))
	if err != nil {
		return Fragment{}, fmt.Errorf("failed to encode price bounds: %w", err)
	}
	bounds := string(data)

	if !req.HasDateRange() {
		return Fragment{
			SQL: `EXISTS (
				SELECT 1 FROM daily_schedules ds JOIN json_each(?) b ON b.key = ds.currency
				WHERE ds.unit_id = u.id AND ds.status = 'Available' AND ds.price IS NOT NULL
				  AND (json_extract(b.value, '$.min') IS NULL OR ds.price >= json_extract(b.value, '$.min'))
				  AND (json_extract(b.value, '$.max') IS NULL OR ds.price <= json_extract(b.value, '$.max'))
			) OR (
				NOT EXISTS (SELECT 1 FROM daily_schedules ds WHERE ds.unit_id = u.id AND ds.price IS NOT NULL)
				AND ` + basePriceInRange + `
			)`,
			Args: []any{bounds, bounds},
		}, nil
	}

	from := req.CheckIn.Format(types.DateLayout)
	to := req.CheckOut.Format(types.DateLayout)
	return Fragment{
		SQL: `EXISTS (
			SELECT ds.currency FROM daily_schedules ds JOIN json_each(?) b ON b.key = ds.currency
			WHERE ds.unit_id = u.id AND ds.price IS NOT NULL AND ds.date >= ? AND ds.date < ?
			GROUP BY ds.currency
			HAVING (MAX(json_extract(b.value, '$.min')) IS NULL OR AVG(ds.price) >= MAX(json_extract(b.value, '$.min')))
			   AND (MAX(json_extract(b.value, '$.max')) IS NULL OR AVG(ds.price) <= MAX(json_extract(b.value, '$.max')))
		) OR (
			NOT EXISTS (
				SELECT 1 FROM daily_schedules ds
				WHERE ds.unit_id = u.id AND ds.price IS NOT NULL AND ds.date >= ? AND ds.date < ?
			)
			AND ` + basePriceInRange + `
		)`,
		Args: []any{bounds, from, to, from, to, bounds},
	}, nil
}

// StayWindow is one candidate stay, To is exclusive
type StayWindow struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StayWindows lists the candidate [from, to) stays for a request.
// Without date flexibility this is just the requested stay.
func StayWindows(req types.SearchRequest) []StayWindow {
	if !req.HasDateRange() {
		return nil
	}
	nights := req.Nights()
	flex := req.DateFlexibilityDays
	if flex < 0 {
		flex = 0
	}
	windows := make([]StayWindow, 0, 2*flex+1)
	for offset := -flex; offset <= flex; offset++ {
		start := req.CheckIn.AddDate(0, 0, offset)
		windows = append(windows, StayWindow{
			From: start.Format(types.DateLayout),
			To:   start.AddDate(0, 0, nights).Format(types.DateLayout),
		})
	}
	return windows
}

// AvailabilityFilter excludes units with any blocking schedule row in the stay.
// Days without a schedule row count as available.
func AvailabilityFilter(req types.SearchRequest) Fragment {
	if !req.HasDateRange() {
		return Fragment{SQL: "1 = 1"}
	}
	if req.DateFlexibilityDays <= 0 {
		return Fragment{
			SQL: `NOT EXISTS (
				SELECT 1 FROM daily_schedules ds
				WHERE ds.unit_id = u.id AND ds.date >= ? AND ds.date < ? AND ds.status <> 'Available'
			)`,
			Args: []any{req.CheckIn.Format(types.DateLayout), req.CheckOut.Format(types.DateLayout)},
		}
	}

	// json.Marshal cannot fail on a slice of string pairs
	data, _ := json.Marshal(StayWindows(req))
	return Fragment{
		SQL: `EXISTS (
			SELECT 1 FROM json_each(?) w
			WHERE NOT EXISTS (
				SELECT 1 FROM daily_schedules ds
				WHERE ds.unit_id = u.id AND ds.status <> 'Available'
				  AND ds.date >= json_extract(w.value, '$.from') AND ds.date < json_extract(w.value, '$.to')
			)
		)`,
		Args: []any{string(data)},
	}
}

func addAmenityFilter(qb *queryBuilder, amenityIDs []string) {
	ids := make([]string, 0, len(amenityIDs))
	for _, id := range amenityIDs {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}
	data, _ := json.Marshal(ids)
	qb.add(`(
		SELECT COUNT(DISTINCT pa.amenity_id) FROM property_amenities pa
		WHERE pa.property_id = p.id AND pa.amenity_id IN (SELECT value FROM json_each(?))
	) = ?`, string(data), len(ids))
}

// MatchExpression turns free text into an FTS5 prefix query, one quoted term per word
func MatchExpression(term string) string {
	words := strings.FieldsFunc(term, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, `"`+w+`"*`)
	}
	return strings.Join(parts, " ")
}

func addTextFilter(qb *queryBuilder, term string) {
	expr := MatchExpression(term)
	if expr == "" {
		return
	}
	qb.add("p.rowid IN (SELECT rowid FROM properties_fts WHERE properties_fts MATCH ?)", expr)
}
