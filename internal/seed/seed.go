// Package seed generates a deterministic demo catalogue for the search store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/booking-search/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPropertiesPerCity = 12
	DefaultDays              = 90
	DefaultConcurrency       = 4
)

// Store is the write side of the relational store used by the seeder
type Store interface {
	UpsertCurrency(ctx context.Context, c types.Currency) error
	UpsertPropertyType(ctx context.Context, id, name string) error
	UpsertUnitType(ctx context.Context, id, name string) error
	UpsertAmenity(ctx context.Context, a types.Amenity) error
	UpsertProperty(ctx context.Context, p types.Property) error
	UpsertUnit(ctx context.Context, u types.Unit) error
	SetSchedules(ctx context.Context, days []types.ScheduleDay) error
	SetFieldValue(ctx context.Context, unitID, field, value string) error
	AddPropertyAmenity(ctx context.Context, propertyID, amenityID string) error
	AddPropertyImage(ctx context.Context, propertyID, url string, isMain bool, displayOrder int) error
}

// Options configures the generated dataset
type Options struct {
	Seed              uint64
	PropertiesPerCity int
	Days              int
	// Start is the first scheduled date, defaults to today
	Start       time.Time
	Concurrency int
	Progress    bool
}

func (o Options) withDefaults() Options {
	if o.PropertiesPerCity <= 0 {
		o.PropertiesPerCity = DefaultPropertiesPerCity
	}
	if o.Days <= 0 {
		o.Days = DefaultDays
	}
	if o.Start.IsZero() {
		now := time.Now().UTC()
		o.Start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

type city struct {
	name     string
	lat, lng float64
}

var (
	cities = []city{
		{"Aden", 12.7855, 45.0187},
		{"Sanaa", 15.3694, 44.1910},
		{"Mukalla", 14.5425, 49.1242},
		{"Taiz", 13.5795, 44.0209},
	}

	currencies = []types.Currency{
		{Code: "YER", Name: "Yemeni Rial", IsDefault: true, ExchangeRate: decimal.NewFromInt(1)},
		{Code: "USD", Name: "US Dollar", ExchangeRate: decimal.NewFromInt(530)},
		{Code: "SAR", Name: "Saudi Riyal", ExchangeRate: decimal.NewFromInt(141)},
	}

	propertyTypes = []struct{ id, name, unitType string }{
		{"hotel", "Hotel", "room"},
		{"apartment", "Apartment", "apartment"},
		{"chalet", "Chalet", "chalet"},
		{"villa", "Villa", "villa"},
	}

	unitTypes = map[string]string{
		"room":      "Room",
		"suite":     "Suite",
		"apartment": "Apartment",
		"chalet":    "Chalet",
		"villa":     "Villa",
	}

	amenities = []types.Amenity{
		{ID: "wifi", Name: "Wi-Fi"},
		{ID: "pool", Name: "Swimming pool"},
		{ID: "parking", Name: "Parking"},
		{ID: "breakfast", Name: "Breakfast"},
		{ID: "ac", Name: "Air conditioning"},
		{ID: "kitchen", Name: "Kitchen"},
	}

	views = []string{"sea", "city", "garden", "mountain"}
)

// PropertyPlan is one generated property with everything attached to it
type PropertyPlan struct {
	Property  types.Property
	Units     []types.Unit
	Schedules []types.ScheduleDay
	Fields    map[string]map[string]string
	Amenities []string
	Images    []string
}

// Summary counts what was written
type Summary struct {
	Properties   int `json:"properties"`
	Units        int `json:"units"`
	ScheduleDays int `json:"schedule_days"`
}

// Plan generates the dataset. The same options always produce the same plans.
func Plan(opts Options) []PropertyPlan {
	opts = opts.withDefaults()
	total := opts.PropertiesPerCity * len(cities)
	plans := make([]PropertyPlan, 0, total)
	for i := 0; i < total; i++ {
		plans = append(plans, planProperty(opts, i))
	}
	return plans
}

func planProperty(opts Options, index int) PropertyPlan {
	r := rand.New(rand.NewPCG(opts.Seed, uint64(index)))
	c := cities[index%len(cities)]
	pt := propertyTypes[r.IntN(len(propertyTypes))]
	pid := fmt.Sprintf("p%03d", index+1)

	property := types.Property{
		ID:             pid,
		Name:           fmt.Sprintf("%s %s %d", c.name, pt.name, index/len(cities)+1),
		City:           c.name,
		Address:        fmt.Sprintf("%d Main Street, %s", r.IntN(200)+1, c.name),
		PropertyTypeID: pt.id,
		Description:    fmt.Sprintf("A %s in %s", pt.id, c.name),
		StarRating:     r.IntN(5) + 1,
		AverageRating:  float64(25+r.IntN(26)) / 10,
		Latitude:       c.lat + (r.Float64()-0.5)/10,
		Longitude:      c.lng + (r.Float64()-0.5)/10,
		IsApproved:     r.IntN(10) != 0,
		IsFeatured:     r.IntN(5) == 0,
		BookingsCount:  r.IntN(500),
		ViewsCount:     r.IntN(5000),
		CreatedAt:      opts.Start.AddDate(0, 0, -r.IntN(700)),
	}

	plan := PropertyPlan{Property: property, Fields: map[string]map[string]string{}}

	for _, a := range amenities {
		if r.IntN(2) == 0 {
			plan.Amenities = append(plan.Amenities, a.ID)
		}
	}
	for n := range r.IntN(3) + 1 {
		plan.Images = append(plan.Images, fmt.Sprintf("https://images.example.com/%s/%d.jpg", pid, n+1))
	}

	for u := range r.IntN(4) + 1 {
		unitType := pt.unitType
		if pt.id == "hotel" && r.IntN(3) == 0 {
			unitType = "suite"
		}
		price, currency := basePrice(r)
		unit := types.Unit{
			ID:            fmt.Sprintf("%s-u%d", pid, u+1),
			PropertyID:    pid,
			UnitTypeID:    unitType,
			Name:          fmt.Sprintf("%s %d", unitTypes[unitType], u+1),
			MaxCapacity:   r.IntN(6) + 1,
			PricingMethod: "Daily",
			BasePrice:     &price,
			BaseCurrency:  currency,
			IsActive:      r.IntN(12) != 0,
		}
		plan.Units = append(plan.Units, unit)
		plan.Fields[unit.ID] = map[string]string{
			"view":  views[r.IntN(len(views))],
			"floor": strconv.Itoa(r.IntN(12) + 1),
		}
		plan.Schedules = append(plan.Schedules, schedule(r, opts, unit)...)
	}
	return plan
}

func basePrice(r *rand.Rand) (decimal.Decimal, string) {
	switch r.IntN(3) {
	case 0:
		return decimal.NewFromInt(int64(30+r.IntN(60)) * 500), "YER"
	case 1:
		return decimal.NewFromInt(int64(25 + r.IntN(126))), "USD"
	default:
		return decimal.NewFromInt(int64(10+r.IntN(41)) * 10), "SAR"
	}
}

// schedule marks most days available, weekends priced higher, some days left at the base price
func schedule(r *rand.Rand, opts Options, unit types.Unit) []types.ScheduleDay {
	days := make([]types.ScheduleDay, 0, opts.Days)
	weekend := decimal.NewFromFloat(1.2)
	for d := range opts.Days {
		date := opts.Start.AddDate(0, 0, d)
		day := types.ScheduleDay{UnitID: unit.ID, Date: date, Status: types.StatusAvailable}

		switch n := r.IntN(100); {
		case n < 12:
			day.Status = types.StatusBooked
		case n < 15:
			day.Status = types.StatusMaintenance
		case n < 17:
			day.Status = types.StatusHold
		}

		if r.IntN(4) != 0 {
			price := *unit.BasePrice
			if wd := date.Weekday(); wd == time.Thursday || wd == time.Friday {
				price = price.Mul(weekend).Round(0)
			}
			day.Price = &price
			day.Currency = unit.BaseCurrency
		}
		days = append(days, day)
	}
	return days
}

// Seeder writes the generated dataset into a store
type Seeder struct {
	store  Store
	logger *log.Logger
	opts   Options
}

func New(store Store, logger *log.Logger, opts Options) *Seeder {
	return &Seeder{store: store, logger: logger, opts: opts.withDefaults()}
}

// Seed writes reference data, then the properties concurrently
func (s *Seeder) Seed(ctx context.Context) (Summary, error) {
	if err := s.seedReference(ctx); err != nil {
		return Summary{}, err
	}

	plans := Plan(s.opts)

	var progress Progress
	if !s.opts.Progress {
		progress = NewNoopProgress()
	} else {
		progress = NewBarProgress(len(plans), "Seeding properties")
	}
	defer progress.Close()

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for _, plan := range plans {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			if err := s.writePlan(gCtx, plan); err != nil {
				return err
			}
			if err := progress.Add(1); err != nil {
				return fmt.Errorf("error updating progress: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Info("Seeding interrupted")
		}
		return Summary{}, err
	}

	var summary Summary
	for _, plan := range plans {
		summary.Properties++
		summary.Units += len(plan.Units)
		summary.ScheduleDays += len(plan.Schedules)
	}
	s.logger.Info("Seeded catalogue", "properties", summary.Properties, "units", summary.Units, "schedule_days", summary.ScheduleDays)
	return summary, nil
}

func (s *Seeder) seedReference(ctx context.Context) error {
	for _, c := range currencies {
		if err := s.store.UpsertCurrency(ctx, c); err != nil {
			return err
		}
	}
	for _, pt := range propertyTypes {
		if err := s.store.UpsertPropertyType(ctx, pt.id, pt.name); err != nil {
			return err
		}
	}
	for id, name := range unitTypes {
		if err := s.store.UpsertUnitType(ctx, id, name); err != nil {
			return err
		}
	}
	for _, a := range amenities {
		if err := s.store.UpsertAmenity(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) writePlan(ctx context.Context, plan PropertyPlan) error {
	pid := plan.Property.ID
	if err := s.store.UpsertProperty(ctx, plan.Property); err != nil {
		return err
	}
	for _, amenityID := range plan.Amenities {
		if err := s.store.AddPropertyAmenity(ctx, pid, amenityID); err != nil {
			return err
		}
	}
	for i, url := range plan.Images {
		if err := s.store.AddPropertyImage(ctx, pid, url, i == 0, i); err != nil {
			return err
		}
	}
	for _, unit := range plan.Units {
		if err := s.store.UpsertUnit(ctx, unit); err != nil {
			return err
		}
		for field, value := range plan.Fields[unit.ID] {
			if err := s.store.SetFieldValue(ctx, unit.ID, field, value); err != nil {
				return err
			}
		}
	}
	if err := s.store.SetSchedules(ctx, plan.Schedules); err != nil {
		return err
	}
	s.logger.Debug("Seeded property", "property", pid, "units", len(plan.Units))
	return nil
}
