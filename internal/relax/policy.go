package relax

import (
	"errors"
	"fmt"

	"github.com/lox/booking-search/internal/types"
	"golang.org/x/exp/slices"
)

// ErrInvalidPolicy is returned by Validate
var ErrInvalidPolicy = errors.New("invalid relaxation policy")

// Filter names a group of request criteria a level may drop
type Filter string

const (
	FilterRatings       Filter = "ratings"
	FilterAmenities     Filter = "amenities"
	FilterDynamicFields Filter = "dynamic_fields"
	FilterUnitType      Filter = "unit_type"
	FilterPropertyType  Filter = "property_type"
	FilterSearchTerm    Filter = "search_term"
	FilterCapacity      Filter = "capacity"
	FilterPrice         Filter = "price"
	FilterDates         Filter = "dates"
	FilterGeo           Filter = "geo"
)

// Filters lists every droppable filter in the order drops are applied.
// Significant filters come last so the guard check sees the final request.
// Price goes before dates: without dates a price bound is tested on any
// available day instead of the stay average, which can match fewer units.
var Filters = []Filter{
	FilterRatings,
	FilterAmenities,
	FilterDynamicFields,
	FilterSearchTerm,
	FilterCapacity,
	FilterUnitType,
	FilterPropertyType,
	FilterGeo,
	FilterPrice,
	FilterDates,
}

// LevelPolicy is how far one level loosens a request
type LevelPolicy struct {
	Enabled               bool     `yaml:"enabled"`
	PriceTolerancePercent float64  `yaml:"price_tolerance_percent"`
	DateFlexibilityDays   int      `yaml:"date_flexibility_days"`
	RadiusMultiplier      float64  `yaml:"radius_multiplier"`
	Drop                  []Filter `yaml:"drop,omitempty"`
}

// Drops reports whether the level drops a filter
func (l LevelPolicy) Drops(f Filter) bool {
	return slices.Contains(l.Drop, f)
}

// Policy configures every level above Exact
type Policy struct {
	Minor        LevelPolicy `yaml:"minor"`
	Moderate     LevelPolicy `yaml:"moderate"`
	Major        LevelPolicy `yaml:"major"`
	Alternatives LevelPolicy `yaml:"alternatives"`
}

// DefaultPolicy returns the stock relaxation ladder
func DefaultPolicy() Policy {
	return Policy{
		Minor: LevelPolicy{
			Enabled:               true,
			PriceTolerancePercent: 15,
			DateFlexibilityDays:   3,
			RadiusMultiplier:      1.3,
		},
		Moderate: LevelPolicy{
			Enabled:               true,
			PriceTolerancePercent: 30,
			DateFlexibilityDays:   7,
			RadiusMultiplier:      1.6,
			Drop:                  []Filter{FilterRatings},
		},
		Major: LevelPolicy{
			Enabled:               true,
			PriceTolerancePercent: 50,
			DateFlexibilityDays:   14,
			RadiusMultiplier:      2.0,
			Drop:                  []Filter{FilterRatings, FilterAmenities, FilterDynamicFields, FilterUnitType, FilterSearchTerm},
		},
		Alternatives: LevelPolicy{
			Enabled:               true,
			PriceTolerancePercent: 100,
			DateFlexibilityDays:   30,
			RadiusMultiplier:      3.0,
			Drop: []Filter{
				FilterRatings, FilterAmenities, FilterDynamicFields, FilterUnitType, FilterSearchTerm,
				FilterPrice, FilterDates, FilterPropertyType,
			},
		},
	}
}

// Level returns the policy of a level; Exact changes nothing
func (p Policy) Level(level types.RelaxationLevel) LevelPolicy {
	switch level {
	case types.MinorRelaxation:
		return p.Minor
	case types.ModerateRelaxation:
		return p.Moderate
	case types.MajorRelaxation:
		return p.Major
	case types.AlternativeSuggestions:
		return p.Alternatives
	default:
		return LevelPolicy{Enabled: true}
	}
}

func (p *Policy) levelRef(level types.RelaxationLevel) *LevelPolicy {
	switch level {
	case types.MinorRelaxation:
		return &p.Minor
	case types.ModerateRelaxation:
		return &p.Moderate
	case types.MajorRelaxation:
		return &p.Major
	case types.AlternativeSuggestions:
		return &p.Alternatives
	default:
		return nil
	}
}

// Enabled reports whether a level may run. Exact always runs.
func (p Policy) Enabled(level types.RelaxationLevel) bool {
	if level == types.Exact {
		return true
	}
	return level.Valid() && p.Level(level).Enabled
}

// Normalize makes levels cumulative: each level loosens at least as much as
// every lower level, enabled or not.
func (p Policy) Normalize() Policy {
	out := p
	var acc LevelPolicy
	for _, level := range types.RelaxationLevels[1:] {
		ref := out.levelRef(level)
		cur := *ref

		if cur.PriceTolerancePercent < acc.PriceTolerancePercent {
			cur.PriceTolerancePercent = acc.PriceTolerancePercent
		}
		if cur.DateFlexibilityDays < acc.DateFlexibilityDays {
			cur.DateFlexibilityDays = acc.DateFlexibilityDays
		}
		if cur.RadiusMultiplier < acc.RadiusMultiplier {
			cur.RadiusMultiplier = acc.RadiusMultiplier
		}
		drops := slices.Clone(acc.Drop)
		for _, f := range cur.Drop {
			if !slices.Contains(drops, f) {
				drops = append(drops, f)
			}
		}
		cur.Drop = drops

		*ref = cur
		acc = cur
	}
	return out
}

// Validate checks the knobs are in range
func (p Policy) Validate() error {
	for _, level := range types.RelaxationLevels[1:] {
		l := p.Level(level)
		if l.PriceTolerancePercent < 0 || l.PriceTolerancePercent > 100 {
			return fmt.Errorf("%w: %s price tolerance %.1f%% outside 0-100", ErrInvalidPolicy, level, l.PriceTolerancePercent)
		}
		if l.DateFlexibilityDays < 0 {
			return fmt.Errorf("%w: %s date flexibility must not be negative", ErrInvalidPolicy, level)
		}
		if l.RadiusMultiplier != 0 && l.RadiusMultiplier < 1 {
			return fmt.Errorf("%w: %s radius multiplier %.2f shrinks the radius", ErrInvalidPolicy, level, l.RadiusMultiplier)
		}
		for _, f := range l.Drop {
			if !slices.Contains(Filters, f) {
				return fmt.Errorf("%w: %s drops unknown filter %q", ErrInvalidPolicy, level, f)
			}
		}
	}
	return nil
}

// NextLevel returns the next enabled level after current, or current itself
// when no further level is enabled.
func NextLevel(current types.RelaxationLevel, policy Policy) types.RelaxationLevel {
	for level := current + 1; level <= types.AlternativeSuggestions; level++ {
		if policy.Enabled(level) {
			return level
		}
	}
	return current
}
