package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lox/booking-search/internal/types"
	"github.com/shopspring/decimal"
)

// Write helpers used by the seeder and by tests to build catalogs.
// Searching never writes.

// UpsertCurrency stores a currency. Marking it default clears the previous default.
func (d *DB) UpsertCurrency(ctx context.Context, c types.Currency) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if c.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE currencies SET is_default = 0 WHERE is_default = 1 AND code <> ?`, strings.ToUpper(c.Code)); err != nil {
			return fmt.Errorf("failed to clear default currency: %w", err)
		}
	}

	var rate sql.NullFloat64
	if !c.ExchangeRate.IsZero() {
		rate = sql.NullFloat64{Float64: c.ExchangeRate.InexactFloat64(), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO currencies (code, name, is_default, exchange_rate) VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			is_default = excluded.is_default,
			exchange_rate = excluded.exchange_rate
	`, strings.ToUpper(c.Code), c.Name, boolInt(c.IsDefault), rate)
	if err != nil {
		return fmt.Errorf("failed to store currency %s: %w", c.Code, err)
	}
	return tx.Commit()
}

// UpsertPropertyType stores a property type
func (d *DB) UpsertPropertyType(ctx context.Context, id, name string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO property_types (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, id, name)
	if err != nil {
		return fmt.Errorf("failed to store property type: %w", err)
	}
	return nil
}

// UpsertUnitType stores a unit type
func (d *DB) UpsertUnitType(ctx context.Context, id, name string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO unit_types (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, id, name)
	if err != nil {
		return fmt.Errorf("failed to store unit type: %w", err)
	}
	return nil
}

// UpsertProperty stores a property. The full-text index follows through triggers.
func (d *DB) UpsertProperty(ctx context.Context, p types.Property) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	d.logger.Debug("Storing property", "id", p.ID, "name", p.Name, "city", p.City)

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO properties (
			id, name, city, address, property_type_id, description,
			star_rating, average_rating, latitude, longitude,
			is_approved, is_featured, bookings_count, views_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			city = excluded.city,
			address = excluded.address,
			property_type_id = excluded.property_type_id,
			description = excluded.description,
			star_rating = excluded.star_rating,
			average_rating = excluded.average_rating,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			is_approved = excluded.is_approved,
			is_featured = excluded.is_featured,
			bookings_count = excluded.bookings_count,
			views_count = excluded.views_count,
			created_at = excluded.created_at
	`,
		p.ID, p.Name, p.City, p.Address, p.PropertyTypeID, p.Description,
		p.StarRating, p.AverageRating, p.Latitude, p.Longitude,
		boolInt(p.IsApproved), boolInt(p.IsFeatured), p.BookingsCount, p.ViewsCount,
		createdAt.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("failed to store property %s: %w", p.ID, err)
	}
	return nil
}

// UpsertUnit stores a unit
func (d *DB) UpsertUnit(ctx context.Context, u types.Unit) error {
	pricingMethod := u.PricingMethod
	if pricingMethod == "" {
		pricingMethod = "Daily"
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO units (
			id, property_id, unit_type_id, name, max_capacity, pricing_method,
			base_price, base_currency, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			property_id = excluded.property_id,
			unit_type_id = excluded.unit_type_id,
			name = excluded.name,
			max_capacity = excluded.max_capacity,
			pricing_method = excluded.pricing_method,
			base_price = excluded.base_price,
			base_currency = excluded.base_currency,
			is_active = excluded.is_active
	`,
		u.ID, u.PropertyID, u.UnitTypeID, u.Name, u.MaxCapacity, pricingMethod,
		decimalArg(u.BasePrice), nullString(strings.ToUpper(u.BaseCurrency)), boolInt(u.IsActive),
	)
	if err != nil {
		return fmt.Errorf("failed to store unit %s: %w", u.ID, err)
	}
	return nil
}

// SetSchedule stores the schedule of a unit for one date
func (d *DB) SetSchedule(ctx context.Context, day types.ScheduleDay) error {
	status := day.Status
	if status == "" {
		status = types.StatusAvailable
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO daily_schedules (unit_id, date, status, price, currency) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(unit_id, date) DO UPDATE SET
			status = excluded.status,
			price = excluded.price,
			currency = excluded.currency
	`, day.UnitID, day.Date.Format(types.DateLayout), string(status), decimalArg(day.Price), nullString(strings.ToUpper(day.Currency)))
	if err != nil {
		return fmt.Errorf("failed to store schedule for unit %s: %w", day.UnitID, err)
	}
	return nil
}

// SetSchedules stores many schedule days in one transaction
func (d *DB) SetSchedules(ctx context.Context, days []types.ScheduleDay) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_schedules (unit_id, date, status, price, currency) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(unit_id, date) DO UPDATE SET
			status = excluded.status,
			price = excluded.price,
			currency = excluded.currency
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare schedule insert: %w", err)
	}
	defer stmt.Close()

	for _, day := range days {
		status := day.Status
		if status == "" {
			status = types.StatusAvailable
		}
		if _, err := stmt.ExecContext(ctx, day.UnitID, day.Date.Format(types.DateLayout), string(status), decimalArg(day.Price), nullString(strings.ToUpper(day.Currency))); err != nil {
			return fmt.Errorf("failed to store schedule for unit %s: %w", day.UnitID, err)
		}
	}
	return tx.Commit()
}

// SetFieldValue stores a dynamic attribute value of a unit
func (d *DB) SetFieldValue(ctx context.Context, unitID, field, value string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO unit_field_values (unit_id, field_name, value) VALUES (?, ?, ?)
		ON CONFLICT(unit_id, field_name) DO UPDATE SET value = excluded.value
	`, unitID, field, value)
	if err != nil {
		return fmt.Errorf("failed to store field %s for unit %s: %w", field, unitID, err)
	}
	return nil
}

// UpsertAmenity stores an amenity
func (d *DB) UpsertAmenity(ctx context.Context, a types.Amenity) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO amenities (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, a.ID, a.Name)
	if err != nil {
		return fmt.Errorf("failed to store amenity %s: %w", a.ID, err)
	}
	return nil
}

// AddPropertyAmenity links an amenity to a property
func (d *DB) AddPropertyAmenity(ctx context.Context, propertyID, amenityID string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO property_amenities (property_id, amenity_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, propertyID, amenityID)
	if err != nil {
		return fmt.Errorf("failed to link amenity %s to property %s: %w", amenityID, propertyID, err)
	}
	return nil
}

// AddPropertyImage attaches an image to a property
func (d *DB) AddPropertyImage(ctx context.Context, propertyID, url string, isMain bool, displayOrder int) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO property_images (property_id, url, is_main, display_order) VALUES (?, ?, ?, ?)
	`, propertyID, url, boolInt(isMain), displayOrder)
	if err != nil {
		return fmt.Errorf("failed to store image for property %s: %w", propertyID, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func decimalArg(v *decimal.Decimal) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v.InexactFloat64(), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
