package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lox/booking-search/internal/query"
	"github.com/lox/booking-search/internal/types"
	"github.com/shopspring/decimal"
)

const searchFrom = "units u JOIN properties p ON p.id = u.property_id"

// unitProjection selects one row per matching unit, exposing the columns OrderBy relies on
func unitProjection(q *query.Query, extraWhere ...query.Fragment) (string, []any) {
	available := q.Available
	if available.Empty() {
		available = query.Fragment{SQL: "1 = 1"}
	}
	where := q.Where()
	whereSQL := where.SQL
	whereArgs := where.Args
	for _, f := range extraWhere {
		whereSQL += " AND (" + f.SQL + ")"
		whereArgs = append(whereArgs, f.Args...)
	}

	sqlText := `
		SELECT u.id AS unit_id, u.property_id AS property_id, u.unit_type_id AS unit_type_id,
			u.name AS unit_name, u.max_capacity AS max_capacity, u.pricing_method AS pricing_method,
			` + q.Price.SQL + ` AS price,
			CASE WHEN (` + available.SQL + `) THEN 1 ELSE 0 END AS available,
			` + q.Distance.SQL + ` AS distance,
			p.name AS property_name, p.property_type_id AS property_type_id, p.city AS city, p.address AS address,
			p.star_rating AS star_rating, p.average_rating AS average_rating, p.is_featured AS is_featured,
			p.latitude AS latitude, p.longitude AS longitude,
			p.created_at AS created_at, p.bookings_count AS bookings_count, p.views_count AS views_count
		FROM ` + searchFrom + `
		WHERE ` + whereSQL

	args := make([]any, 0, len(q.Price.Args)+len(available.Args)+len(q.Distance.Args)+len(whereArgs))
	args = append(args, q.Price.Args...)
	args = append(args, available.Args...)
	args = append(args, q.Distance.Args...)
	args = append(args, whereArgs...)
	return sqlText, args
}

const unitColumns = `unit_id, property_id, unit_type_id, unit_name, max_capacity, pricing_method,
	price, available, distance, property_name, property_type_id, city, address,
	star_rating, average_rating, is_featured, latitude, longitude`

// CountUnits counts the units matching a query
func (d *DB) CountUnits(ctx context.Context, q *query.Query) (int, error) {
	where := q.Where()
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+searchFrom+` WHERE `+where.SQL, where.Args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count units: %w", err)
	}
	return count, nil
}

// FindUnits returns one page of units matching a query
func (d *DB) FindUnits(ctx context.Context, q *query.Query) ([]types.UnitRow, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	inner, args := unitProjection(q)
	sqlText := `SELECT ` + unitColumns + ` FROM (` + inner + `) ORDER BY ` + q.OrderBy("property_id", "unit_id") + ` LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	rows, err := d.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	return scanUnitRows(rows, q.Currency)
}

// FindGroupUnits returns up to perProperty matching units for each of the given properties,
// cheapest first.
func (d *DB) FindGroupUnits(ctx context.Context, q *query.Query, propertyIDs []string, perProperty int) ([]types.UnitRow, error) {
	if len(propertyIDs) == 0 || perProperty <= 0 {
		return nil, nil
	}
	ids, err := json.Marshal(propertyIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode property ids: %w", err)
	}

	inner, args := unitProjection(q, query.Fragment{
		SQL:  "u.property_id IN (SELECT value FROM json_each(?))",
		Args: []any{string(ids)},
	})
	sqlText := `
		SELECT ` + unitColumns + ` FROM (
			SELECT m.*, ROW_NUMBER() OVER (
				PARTITION BY m.property_id
				ORDER BY m.price IS NULL, m.price ASC, m.unit_id ASC
			) AS rn
			FROM (` + inner + `) m
		)
		WHERE rn <= ?
		ORDER BY property_id, rn`
	args = append(args, perProperty)

	rows, err := d.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query property units: %w", err)
	}
	defer rows.Close()

	return scanUnitRows(rows, q.Currency)
}

func scanUnitRows(rows *sql.Rows, currency string) ([]types.UnitRow, error) {
	var result []types.UnitRow
	for rows.Next() {
		var r types.UnitRow
		var price, distance, lat, lng sql.NullFloat64
		var available, featured int
		if err := rows.Scan(
			&r.UnitID, &r.PropertyID, &r.UnitTypeID, &r.Name, &r.MaxCapacity, &r.PricingMethod,
			&price, &available, &distance, &r.PropertyName, &r.PropertyTypeID, &r.City, &r.Address,
			&r.StarRating, &r.AverageRating, &featured, &lat, &lng,
		); err != nil {
			return nil, fmt.Errorf("failed to scan unit row: %w", err)
		}
		r.Price = nullDecimal(price)
		r.Currency = currency
		r.AvailableOriginal = available == 1
		r.DistanceKm = nullFloat(distance)
		r.IsFeatured = featured == 1
		r.Latitude = lat.Float64
		r.Longitude = lng.Float64
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unit rows: %w", err)
	}
	return result, nil
}

// CountProperties counts the distinct properties owning at least one matching unit
func (d *DB) CountProperties(ctx context.Context, q *query.Query) (int, error) {
	where := q.Where()
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT u.property_id) FROM `+searchFrom+` WHERE `+where.SQL, where.Args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count properties: %w", err)
	}
	return count, nil
}

// FindPropertyGroups returns one page of properties with their matching unit aggregates.
// Prices and coverage are computed over every matching unit of the property.
func (d *DB) FindPropertyGroups(ctx context.Context, q *query.Query) ([]types.PropertyRow, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	inner, args := unitProjection(q)
	sqlText := `
		SELECT property_id, property_name, property_type_id, city, address, star_rating, average_rating,
			is_featured, latitude, longitude, distance, price, max_price, matched_units,
			unit_types, max_capacity, any_available
		FROM (
			SELECT property_id, property_name, property_type_id, city, address, star_rating, average_rating,
				is_featured, latitude, longitude, created_at, bookings_count, views_count,
				MIN(distance) AS distance,
				MIN(price) AS price,
				MAX(price) AS max_price,
				COUNT(*) AS matched_units,
				json_group_array(DISTINCT unit_type_id) AS unit_types,
				MAX(max_capacity) AS max_capacity,
				MAX(available) AS any_available
			FROM (` + inner + `)
			GROUP BY property_id
		)
		ORDER BY ` + q.OrderBy("property_id") + `
		LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	rows, err := d.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query property groups: %w", err)
	}
	defer rows.Close()

	var result []types.PropertyRow
	for rows.Next() {
		var r types.PropertyRow
		var distance, lat, lng, minPrice, maxPrice sql.NullFloat64
		var featured, anyAvailable int
		var unitTypes string
		if err := rows.Scan(
			&r.PropertyID, &r.Name, &r.PropertyTypeID, &r.City, &r.Address, &r.StarRating, &r.AverageRating,
			&featured, &lat, &lng, &distance, &minPrice, &maxPrice, &r.MatchedUnits,
			&unitTypes, &r.Coverage.MaxCapacity, &anyAvailable,
		); err != nil {
			return nil, fmt.Errorf("failed to scan property row: %w", err)
		}
		if r.Coverage.UnitTypeIDs, err = decodeUnitTypes(unitTypes); err != nil {
			return nil, err
		}
		r.Coverage.HasAvailableUnit = anyAvailable == 1
		r.IsFeatured = featured == 1
		r.Latitude = lat.Float64
		r.Longitude = lng.Float64
		r.DistanceKm = nullFloat(distance)
		r.MinPrice = nullDecimal(minPrice)
		r.MaxPrice = nullDecimal(maxPrice)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate property rows: %w", err)
	}
	return result, nil
}

func decodeUnitTypes(data string) ([]string, error) {
	var all []string
	if err := json.Unmarshal([]byte(data), &all); err != nil {
		return nil, fmt.Errorf("failed to decode unit types: %w", err)
	}
	ids := make([]string, 0, len(all))
	for _, id := range all {
		if id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// PropertyImages returns the main image url per property.
// Properties without an image flagged as main get their first image by display order.
func (d *DB) PropertyImages(ctx context.Context, propertyIDs []string) (map[string]string, error) {
	images := make(map[string]string, len(propertyIDs))
	if len(propertyIDs) == 0 {
		return images, nil
	}
	ids, err := json.Marshal(propertyIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode property ids: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT property_id, url FROM property_images
		WHERE property_id IN (SELECT value FROM json_each(?))
		ORDER BY property_id, is_main DESC, display_order ASC, id ASC
	`, string(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query property images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var propertyID, url string
		if err := rows.Scan(&propertyID, &url); err != nil {
			return nil, fmt.Errorf("failed to scan property image: %w", err)
		}
		if _, ok := images[propertyID]; !ok {
			images[propertyID] = url
		}
	}
	return images, rows.Err()
}

// PropertyAmenities returns the amenities of each property ordered by name
func (d *DB) PropertyAmenities(ctx context.Context, propertyIDs []string) (map[string][]types.Amenity, error) {
	amenities := make(map[string][]types.Amenity, len(propertyIDs))
	if len(propertyIDs) == 0 {
		return amenities, nil
	}
	ids, err := json.Marshal(propertyIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode property ids: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT pa.property_id, a.id, a.name
		FROM property_amenities pa JOIN amenities a ON a.id = pa.amenity_id
		WHERE pa.property_id IN (SELECT value FROM json_each(?))
		ORDER BY pa.property_id, a.name
	`, string(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query property amenities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var propertyID string
		var a types.Amenity
		if err := rows.Scan(&propertyID, &a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("failed to scan amenity: %w", err)
		}
		amenities[propertyID] = append(amenities[propertyID], a)
	}
	return amenities, rows.Err()
}

// Currencies returns every known currency, the default first
func (d *DB) Currencies(ctx context.Context) ([]types.Currency, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT code, name, is_default, exchange_rate FROM currencies
		ORDER BY is_default DESC, code ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query currencies: %w", err)
	}
	defer rows.Close()

	var result []types.Currency
	for rows.Next() {
		var c types.Currency
		var isDefault int
		var rate sql.NullFloat64
		if err := rows.Scan(&c.Code, &c.Name, &isDefault, &rate); err != nil {
			return nil, fmt.Errorf("failed to scan currency: %w", err)
		}
		c.Code = strings.ToUpper(c.Code)
		c.IsDefault = isDefault == 1
		if rate.Valid {
			c.ExchangeRate = decimal.NewFromFloat(rate.Float64)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate currencies: %w", err)
	}
	return result, nil
}

func nullDecimal(v sql.NullFloat64) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := decimal.NewFromFloat(v.Float64).Round(2)
	return &d
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
