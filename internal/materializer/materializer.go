package materializer

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/lox/booking-search/internal/query"
	"github.com/lox/booking-search/internal/types"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxUnitsPerProperty caps how many matched units a property group carries
const DefaultMaxUnitsPerProperty = 5

// Store is the read side the materializer pages through
type Store interface {
	FindUnits(ctx context.Context, q *query.Query) ([]types.UnitRow, error)
	FindPropertyGroups(ctx context.Context, q *query.Query) ([]types.PropertyRow, error)
	FindGroupUnits(ctx context.Context, q *query.Query, propertyIDs []string, perProperty int) ([]types.UnitRow, error)
	PropertyImages(ctx context.Context, propertyIDs []string) (map[string]string, error)
	PropertyAmenities(ctx context.Context, propertyIDs []string) (map[string][]types.Amenity, error)
}

// Comparer lists the criteria of the original request a property misses
type Comparer interface {
	Compare(original types.SearchRequest, group types.PropertyGroupResult) []types.Mismatch
}

// Materializer turns a page of store rows into user-facing results
type Materializer struct {
	store               Store
	comparer            Comparer
	logger              *log.Logger
	maxUnitsPerProperty int
}

// New creates a materializer. maxUnitsPerProperty <= 0 takes the default.
func New(store Store, comparer Comparer, logger *log.Logger, maxUnitsPerProperty int) *Materializer {
	if maxUnitsPerProperty <= 0 {
		maxUnitsPerProperty = DefaultMaxUnitsPerProperty
	}
	return &Materializer{
		store:               store,
		comparer:            comparer,
		logger:              logger,
		maxUnitsPerProperty: maxUnitsPerProperty,
	}
}

// Relevance scores a property on its featured flag and rating
func Relevance(featured bool, averageRating float64) float64 {
	score := 50 + 10*averageRating
	if featured {
		score += 15
	}
	return score
}

// Units loads one page of units for q
func (m *Materializer) Units(ctx context.Context, q *query.Query) ([]types.UnitItem, error) {
	rows, err := m.store.FindUnits(ctx, q)
	if err != nil {
		return nil, err
	}
	items := make([]types.UnitItem, 0, len(rows))
	if len(rows) == 0 {
		return items, nil
	}

	ids := propertyIDs(rows)
	images, amenities, err := m.sideData(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		items = append(items, unitItem(r, images[r.PropertyID], amenities[r.PropertyID]))
	}
	return items, nil
}

// Properties loads one page of property groups for q, each with its cheapest
// matched units and the mismatches against the original request.
func (m *Materializer) Properties(ctx context.Context, q *query.Query, original types.SearchRequest) ([]types.PropertyGroupResult, error) {
	rows, err := m.store.FindPropertyGroups(ctx, q)
	if err != nil {
		return nil, err
	}
	groups := make([]types.PropertyGroupResult, 0, len(rows))
	if len(rows) == 0 {
		return groups, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.PropertyID)
	}

	var (
		unitRows  []types.UnitRow
		images    map[string]string
		amenities map[string][]types.Amenity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		unitRows, err = m.store.FindGroupUnits(gctx, q, ids, m.maxUnitsPerProperty)
		return err
	})
	g.Go(func() error {
		var err error
		images, amenities, err = m.sideData(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byProperty := make(map[string][]types.UnitItem, len(rows))
	for _, r := range unitRows {
		item := unitItem(r, images[r.PropertyID], nil)
		byProperty[r.PropertyID] = append(byProperty[r.PropertyID], item)
	}

	for _, r := range rows {
		group := types.PropertyGroupResult{
			PropertyID:        r.PropertyID,
			Name:              r.Name,
			PropertyTypeID:    r.PropertyTypeID,
			City:              r.City,
			Address:           r.Address,
			StarRating:        r.StarRating,
			AverageRating:     r.AverageRating,
			IsFeatured:        r.IsFeatured,
			Latitude:          r.Latitude,
			Longitude:         r.Longitude,
			DistanceKm:        r.DistanceKm,
			MinPrice:          r.MinPrice,
			MaxPrice:          r.MaxPrice,
			Currency:          q.Currency,
			MainImage:         images[r.PropertyID],
			Amenities:         amenities[r.PropertyID],
			MatchedUnits:      byProperty[r.PropertyID],
			TotalMatchedUnits: r.MatchedUnits,
			RelevanceScore:    Relevance(r.IsFeatured, r.AverageRating),
			Coverage:          r.Coverage,
		}
		if group.MatchedUnits == nil {
			group.MatchedUnits = []types.UnitItem{}
		}
		// distance belongs to the property, units share it
		for i := range group.MatchedUnits {
			group.MatchedUnits[i].DistanceKm = r.DistanceKm
		}
		if m.comparer != nil {
			group.Mismatches = m.comparer.Compare(original, group)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// sideData loads images and amenities for a page concurrently. Failures only
// cost the decoration, except cancellation.
func (m *Materializer) sideData(ctx context.Context, ids []string) (map[string]string, map[string][]types.Amenity, error) {
	var (
		images    map[string]string
		amenities map[string][]types.Amenity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		images, err = m.store.PropertyImages(gctx, ids)
		return m.sideDataError("images", err)
	})
	g.Go(func() error {
		var err error
		amenities, err = m.store.PropertyAmenities(gctx, ids)
		return m.sideDataError("amenities", err)
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return images, amenities, nil
}

func (m *Materializer) sideDataError(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to load property %s: %w", what, err)
	}
	m.logger.Warn("Failed to load property side data", "data", what, "error", err)
	return nil
}

func unitItem(r types.UnitRow, image string, amenities []types.Amenity) types.UnitItem {
	return types.UnitItem{
		UnitID:         r.UnitID,
		UnitName:       r.Name,
		UnitTypeID:     r.UnitTypeID,
		PropertyID:     r.PropertyID,
		PropertyName:   r.PropertyName,
		City:           r.City,
		Address:        r.Address,
		MaxCapacity:    r.MaxCapacity,
		PricingMethod:  r.PricingMethod,
		Price:          r.Price,
		Currency:       r.Currency,
		StarRating:     r.StarRating,
		AverageRating:  r.AverageRating,
		IsFeatured:     r.IsFeatured,
		DistanceKm:     r.DistanceKm,
		MainImage:      image,
		Amenities:      amenities,
		RelevanceScore: Relevance(r.IsFeatured, r.AverageRating),
		IsAvailable:    r.AvailableOriginal,
	}
}

func propertyIDs(rows []types.UnitRow) []string {
	seen := make(map[string]bool, len(rows))
	var ids []string
	for _, r := range rows {
		if !seen[r.PropertyID] {
			seen[r.PropertyID] = true
			ids = append(ids, r.PropertyID)
		}
	}
	return ids
}
