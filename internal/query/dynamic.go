package query

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

// ErrInvalidDynamicFilter is returned when a dynamic field filter cannot be parsed
var ErrInvalidDynamicFilter = errors.New("invalid dynamic field filter")

// MatchKind tells how a dynamic field value is compared
type MatchKind int

const (
	MatchExact MatchKind = iota
	MatchContains
	MatchPrefix
	MatchRange
)

// DynamicFilter is a parsed dynamic field criterion
type DynamicFilter struct {
	Field string
	Kind  MatchKind
	Value string
	Min   *float64
	Max   *float64
}

// ParseDynamicFilter parses a filter value.
// "~x" is a contains match, "^x" a prefix match, "a..b" a numeric range with
// either side optional, anything else an exact case-insensitive match.
func ParseDynamicFilter(field, raw string) (DynamicFilter, error) {
	f := DynamicFilter{Field: strings.TrimSpace(field)}
	value := strings.TrimSpace(raw)
	if f.Field == "" {
		return f, fmt.Errorf("%w: empty field name", ErrInvalidDynamicFilter)
	}

	switch {
	case strings.HasPrefix(value, "~"):
		f.Kind = MatchContains
		f.Value = strings.TrimSpace(value[1:])
	case strings.HasPrefix(value, "^"):
		f.Kind = MatchPrefix
		f.Value = strings.TrimSpace(value[1:])
	case strings.Contains(value, ".."):
		f.Kind = MatchRange
		lo, hi, _ := strings.Cut(value, "..")
		var err error
		if f.Min, err = parseBound(lo); err != nil {
			return f, fmt.Errorf("%w: field %q: %v", ErrInvalidDynamicFilter, f.Field, err)
		}
		if f.Max, err = parseBound(hi); err != nil {
			return f, fmt.Errorf("%w: field %q: %v", ErrInvalidDynamicFilter, f.Field, err)
		}
		if f.Min == nil && f.Max == nil {
			return f, fmt.Errorf("%w: field %q: range has no bounds", ErrInvalidDynamicFilter, f.Field)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return f, fmt.Errorf("%w: field %q: min greater than max", ErrInvalidDynamicFilter, f.Field)
		}
		return f, nil
	default:
		f.Kind = MatchExact
		f.Value = value
	}

	if f.Value == "" {
		return f, fmt.Errorf("%w: field %q: empty value", ErrInvalidDynamicFilter, f.Field)
	}
	return f, nil
}

func parseBound(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, ok := ParseNumber(s)
	if !ok {
		return nil, fmt.Errorf("bad number %q", s)
	}
	return &v, nil
}

// ParseNumber parses a whole value as a finite decimal number, surrounding
// space allowed. Range filters only match values it accepts.
func ParseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Fragment renders the filter as a predicate over `u`
func (f DynamicFilter) Fragment() Fragment {
	const base = "EXISTS (SELECT 1 FROM unit_field_values fv WHERE fv.unit_id = u.id AND fv.field_name = ? COLLATE NOCASE AND "
	switch f.Kind {
	case MatchContains:
		return Fragment{SQL: base + `fv.value LIKE ? ESCAPE '\')`, Args: []any{f.Field, "%" + escapeLike(f.Value) + "%"}}
	case MatchPrefix:
		return Fragment{SQL: base + `fv.value LIKE ? ESCAPE '\')`, Args: []any{f.Field, escapeLike(f.Value) + "%"}}
	case MatchRange:
		conds := []string{"parse_number(fv.value) IS NOT NULL"}
		args := []any{f.Field}
		if f.Min != nil {
			conds = append(conds, "parse_number(fv.value) >= ?")
			args = append(args, *f.Min)
		}
		if f.Max != nil {
			conds = append(conds, "parse_number(fv.value) <= ?")
			args = append(args, *f.Max)
		}
		return Fragment{SQL: base + "(" + strings.Join(conds, ") AND (") + "))", Args: args}
	default:
		return Fragment{SQL: base + "fv.value = ? COLLATE NOCASE)", Args: []any{f.Field, f.Value}}
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func addDynamicFieldFilters(qb *queryBuilder, fields map[string]string) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		f, err := ParseDynamicFilter(name, fields[name])
		if err != nil {
			if qb.err == nil {
				qb.err = err
			}
			continue
		}
		qb.conditions = append(qb.conditions, f.Fragment())
	}
}
