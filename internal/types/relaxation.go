package types

import (
	"fmt"
	"strings"
)

// RelaxationLevel is a named degree of loosening applied to a search request
type RelaxationLevel int

const (
	Exact RelaxationLevel = iota
	MinorRelaxation
	ModerateRelaxation
	MajorRelaxation
	AlternativeSuggestions
)

// RelaxationLevels lists every level in ladder order
var RelaxationLevels = []RelaxationLevel{
	Exact,
	MinorRelaxation,
	ModerateRelaxation,
	MajorRelaxation,
	AlternativeSuggestions,
}

func (l RelaxationLevel) String() string {
	switch l {
	case Exact:
		return "exact"
	case MinorRelaxation:
		return "minor"
	case ModerateRelaxation:
		return "moderate"
	case MajorRelaxation:
		return "major"
	case AlternativeSuggestions:
		return "alternatives"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// IsTerminal reports whether the level is the last rung of the ladder
func (l RelaxationLevel) IsTerminal() bool {
	return l == AlternativeSuggestions
}

// Valid reports whether the level is one of the defined levels
func (l RelaxationLevel) Valid() bool {
	return l >= Exact && l <= AlternativeSuggestions
}

// ParseRelaxationLevel accepts the names returned by String
func ParseRelaxationLevel(s string) (RelaxationLevel, error) {
	for _, l := range RelaxationLevels {
		if strings.EqualFold(strings.TrimSpace(s), l.String()) {
			return l, nil
		}
	}
	return Exact, fmt.Errorf("unknown relaxation level %q", s)
}

// MarshalText encodes the level as its name, used by JSON and YAML
func (l RelaxationLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name
func (l *RelaxationLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseRelaxationLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
