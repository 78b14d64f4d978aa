package messages

import (
	"context"
	"strings"

	"github.com/lox/booking-search/internal/types"
)

// Reason is why a search outcome needs explaining
type Reason string

const (
	ReasonResults    Reason = "results"
	ReasonNoCriteria Reason = "no_criteria"
	ReasonNoResults  Reason = "no_results"
	ReasonFailure    Reason = "failure"
)

// Supported languages
const (
	English = "en"
	Arabic  = "ar"
)

// Request describes a search outcome to explain
type Request struct {
	Reason         Reason
	Level          types.RelaxationLevel
	Count          int
	RelaxedFilters []string
	Language       string
}

// Generator produces the user-facing message and suggested actions for a search outcome
type Generator interface {
	Explain(ctx context.Context, req Request) (types.Explanation, error)
}

// NormalizeLanguage maps a language tag such as "ar-YE" to a supported language, defaulting to English
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	if lang == Arabic {
		return Arabic
	}
	return English
}

func languageName(lang string) string {
	if NormalizeLanguage(lang) == Arabic {
		return "Arabic"
	}
	return "English"
}
