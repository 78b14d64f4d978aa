package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lox/booking-search/internal/types"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize        = 20
	DefaultMaxPageSize     = 100
	DefaultGuardMaxResults = 20
	DefaultPriceWindowDays = 30
)

// Options tunes the limits applied by the builder
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	// GuardMaxResults caps the result window of requests without a significant filter
	GuardMaxResults int
	// PriceWindowDays is the averaging window used for prices when no dates are given
	PriceWindowDays int
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DefaultPageSize <= 0 {
		o.DefaultPageSize = DefaultPageSize
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = DefaultMaxPageSize
	}
	if o.GuardMaxResults <= 0 {
		o.GuardMaxResults = DefaultGuardMaxResults
	}
	if o.PriceWindowDays <= 0 {
		o.PriceWindowDays = DefaultPriceWindowDays
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Fragment is a piece of SQL with its positional arguments in textual order
type Fragment struct {
	SQL  string
	Args []any
}

// Empty reports whether the fragment carries no SQL
func (f Fragment) Empty() bool {
	return f.SQL == ""
}

// Query is a composable unit search over `units u JOIN properties p`.
// The store renders it; every fragment uses plain `?` placeholders.
type Query struct {
	Conditions []Fragment
	// Price yields the unit price in the search currency
	Price Fragment
	// Distance yields the distance to the request point in km, NULL without a point
	Distance Fragment
	// Available is projected per unit as a 0/1 flag. It defaults to the request's
	// own stay and may be replaced with the stay of another request.
	Available Fragment
	Sort      types.SortKey

	Currency   string
	PageNumber int
	PageSize   int
	Limit      int
	Offset     int

	// Guarded is set when the featured-only safety guard applied
	Guarded bool
	// MaxWindow caps how many results may ever be returned, 0 means unlimited
	MaxWindow int
}

// Where joins all conditions with AND
func (q *Query) Where() Fragment {
	if len(q.Conditions) == 0 {
		return Fragment{SQL: "1 = 1"}
	}
	parts := make([]string, 0, len(q.Conditions))
	var args []any
	for _, c := range q.Conditions {
		parts = append(parts, "("+c.SQL+")")
		args = append(args, c.Args...)
	}
	return Fragment{SQL: strings.Join(parts, " AND "), Args: args}
}

// CapTotal applies the guard window to a raw match count
func (q *Query) CapTotal(total int) int {
	if q.MaxWindow > 0 && total > q.MaxWindow {
		return q.MaxWindow
	}
	return total
}

// Builder translates search requests into queries
type Builder struct {
	opts Options
}

// NewBuilder creates a builder with the given options, zero values take defaults
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts.withDefaults()}
}

// queryBuilder accumulates conditions for one request
type queryBuilder struct {
	conditions []Fragment
	err        error
}

func (qb *queryBuilder) add(sql string, args ...any) {
	qb.conditions = append(qb.conditions, Fragment{SQL: sql, Args: args})
}

func (qb *queryBuilder) addFloatFilter(column string, min *float64, max *float64) {
	if min != nil {
		qb.add(column+" >= ?", *min)
	}
	if max != nil {
		qb.add(column+" <= ?", *max)
	}
}

// Build creates the query for a request using a rate table relative to the search currency
func (b *Builder) Build(req types.SearchRequest, rates map[string]decimal.Decimal) (*Query, error) {
	currency := SearchCurrency(req, rates)
	if len(rates) == 0 {
		rates = map[string]decimal.Decimal{currency: decimal.NewFromInt(1)}
	}
	ratesJSON, err := ratesObject(rates)
	if err != nil {
		return nil, err
	}

	qb := &queryBuilder{}

	// Only approved properties with active units are searchable
	qb.add("p.is_approved = 1 AND u.is_active = 1")

	q := &Query{
		Currency: currency,
		Sort:     req.SortBy,
	}

	if !req.HasSignificantFilter() {
		qb.add("p.is_featured = 1")
		q.Guarded = true
		q.MaxWindow = b.opts.GuardMaxResults
	}

	if city := strings.TrimSpace(req.City); city != "" {
		qb.add("p.city = ? COLLATE NOCASE", city)
	}
	if req.PropertyTypeID != "" {
		qb.add("p.property_type_id = ?", req.PropertyTypeID)
	}
	if req.UnitTypeID != "" {
		qb.add("u.unit_type_id = ?", req.UnitTypeID)
	}
	if req.StarRating != nil && *req.StarRating > 0 {
		qb.add("p.star_rating >= ?", *req.StarRating)
	}
	qb.addFloatFilter("p.average_rating", req.MinRating, nil)

	if guests := req.EffectiveGuests(); guests > 0 {
		qb.add("u.max_capacity >= ?", guests)
	}

	addAmenityFilter(qb, req.AmenityIDs)
	addDynamicFieldFilters(qb, req.DynamicFields)
	addTextFilter(qb, req.SearchTerm)

	if req.HasGeo() {
		qb.add("haversine_km(?, ?, p.latitude, p.longitude) <= ?", *req.Latitude, *req.Longitude, *req.RadiusKm)
	}

	if req.HasDateRange() {
		qb.conditions = append(qb.conditions, AvailabilityFilter(req))
	}

	if req.HasPriceBound() {
		price, err := priceFilter(req, rates)
		if err != nil {
			return nil, err
		}
		qb.conditions = append(qb.conditions, price)
	}

	if qb.err != nil {
		return nil, qb.err
	}

	q.Conditions = qb.conditions
	q.Price = b.priceExpr(req, ratesJSON)
	q.Available = AvailabilityFilter(req)
	if req.HasPoint() {
		q.Distance = Fragment{SQL: "haversine_km(?, ?, p.latitude, p.longitude)", Args: []any{*req.Latitude, *req.Longitude}}
	} else {
		q.Distance = Fragment{SQL: "NULL"}
		if q.Sort == types.SortDistance {
			q.Sort = types.SortDefault
		}
	}

	b.applyPaging(q, req)
	return q, nil
}

func (b *Builder) applyPaging(q *Query, req types.SearchRequest) {
	page := req.PageNumber
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size < 1 {
		size = b.opts.DefaultPageSize
	}
	if size > b.opts.MaxPageSize {
		size = b.opts.MaxPageSize
	}
	if q.Guarded && size > b.opts.GuardMaxResults {
		size = b.opts.GuardMaxResults
	}

	q.PageNumber = page
	q.PageSize = size
	q.Offset = (page - 1) * size
	q.Limit = size

	if q.MaxWindow > 0 {
		remaining := q.MaxWindow - q.Offset
		if remaining < 0 {
			remaining = 0
		}
		if q.Limit > remaining {
			q.Limit = remaining
		}
	}
}

// SearchCurrency picks the currency prices are expressed in for a request
func SearchCurrency(req types.SearchRequest, rates map[string]decimal.Decimal) string {
	requested := strings.ToUpper(strings.TrimSpace(req.Currency))
	if _, ok := rates[requested]; ok && requested != "" {
		return requested
	}

	one := decimal.NewFromInt(1)
	codes := make([]string, 0, len(rates))
	for code := range rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		if rates[code].Equal(one) {
			return code
		}
	}
	if requested != "" {
		return requested
	}
	if len(codes) > 0 {
		return codes[0]
	}
	return ""
}

func ratesObject(rates map[string]decimal.Decimal) (string, error) {
	values := make(map[string]float64, len(rates))
	for code, rate := range rates {
		values[code] = rate.InexactFloat64()
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode exchange rates: %w", err)
	}
	return string(data), nil
}

// priceExpr averages scheduled prices in the search currency over the date window,
// or over the next PriceWindowDays when no window is given, falling back to the base price.
func (b *Builder) priceExpr(req types.SearchRequest, ratesJSON string) Fragment {
	from, to := b.priceWindow(req)
	return Fragment{
		SQL: `COALESCE(
			(SELECT AVG(ds.price / json_extract(?, '$.' || ds.currency))
			 FROM daily_schedules ds
			 WHERE ds.unit_id = u.id AND ds.price IS NOT NULL AND ds.date >= ? AND ds.date < ?),
			u.base_price / json_extract(?, '$.' || u.base_currency)
		)`,
		Args: []any{ratesJSON, from, to, ratesJSON},
	}
}

func (b *Builder) priceWindow(req types.SearchRequest) (string, string) {
	if req.HasDateRange() {
		return req.CheckIn.Format(types.DateLayout), req.CheckOut.Format(types.DateLayout)
	}
	today := b.opts.Now().UTC()
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return start.Format(types.DateLayout), start.AddDate(0, 0, b.opts.PriceWindowDays).Format(types.DateLayout)
}
