package messages

import (
	"context"
	"fmt"

	"github.com/lox/booking-search/internal/types"
	"golang.org/x/exp/slices"
)

type catalog struct {
	noCriteria       string
	noCriteriaAction []string
	found            map[types.RelaxationLevel]string
	foundOne         string
	relaxedAction    []string
	alternatives     []string
	noResults        string
	noResultsAction  []string
	failure          string
	failureAction    []string
}

var catalogs = map[string]catalog{
	English: {
		noCriteria: "Please provide at least one search criterion, such as a city, travel dates or a price range.",
		noCriteriaAction: []string{
			"Choose a city",
			"Add check-in and check-out dates",
			"Set a price range",
			"Select a property type",
		},
		found: map[types.RelaxationLevel]string{
			types.Exact:                  "Found %s matching your search.",
			types.MinorRelaxation:        "No exact matches were found, so we slightly adjusted your search and found %s.",
			types.ModerateRelaxation:     "We relaxed some of your criteria and found %s.",
			types.MajorRelaxation:        "We broadened your search considerably and found %s.",
			types.AlternativeSuggestions: "No close matches were found. Here are %s you may like instead.",
		},
		foundOne:      "1 result",
		relaxedAction: []string{"Review the adjusted filters", "Refine your search to get closer matches"},
		alternatives:  []string{"Try different travel dates", "Adjust your budget"},
		noResults:     "We could not find any properties, even after relaxing your search.",
		noResultsAction: []string{
			"Try different travel dates",
			"Increase your budget",
			"Search in a nearby city",
			"Remove some amenity requirements",
		},
		failure:       "Something went wrong while searching. Please try again in a moment.",
		failureAction: []string{"Try again"},
	},
	Arabic: {
		noCriteria: "يرجى تحديد معيار بحث واحد على الأقل، مثل المدينة أو تواريخ السفر أو نطاق السعر.",
		noCriteriaAction: []string{
			"اختر مدينة",
			"أضف تاريخ الوصول والمغادرة",
			"حدد نطاق السعر",
			"اختر نوع العقار",
		},
		found: map[types.RelaxationLevel]string{
			types.Exact:                  "تم العثور على %s مطابقة لبحثك.",
			types.MinorRelaxation:        "لم نجد نتائج مطابقة تماماً، لذا عدّلنا بحثك قليلاً ووجدنا %s.",
			types.ModerateRelaxation:     "خففنا بعض معايير البحث ووجدنا %s.",
			types.MajorRelaxation:        "وسّعنا نطاق بحثك بشكل كبير ووجدنا %s.",
			types.AlternativeSuggestions: "لم نجد نتائج قريبة من طلبك. إليك %s قد تناسبك.",
		},
		foundOne:      "نتيجة واحدة",
		relaxedAction: []string{"راجع المعايير المعدلة", "حسّن بحثك للحصول على نتائج أقرب"},
		alternatives:  []string{"جرّب تواريخ سفر مختلفة", "عدّل ميزانيتك"},
		noResults:     "لم نتمكن من العثور على أي عقار حتى بعد تخفيف معايير البحث.",
		noResultsAction: []string{
			"جرّب تواريخ سفر مختلفة",
			"زد ميزانيتك",
			"ابحث في مدينة قريبة",
			"أزل بعض متطلبات المرافق",
		},
		failure:       "حدث خطأ أثناء البحث. يرجى المحاولة مرة أخرى بعد قليل.",
		failureAction: []string{"حاول مرة أخرى"},
	},
}

// TemplateGenerator explains outcomes from built-in English and Arabic texts. It never fails.
type TemplateGenerator struct{}

// NewTemplateGenerator creates a template generator
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

func (g *TemplateGenerator) Explain(ctx context.Context, req Request) (types.Explanation, error) {
	return Template(req), nil
}

// Template returns the built-in explanation for an outcome
func Template(req Request) types.Explanation {
	lang := NormalizeLanguage(req.Language)
	c := catalogs[lang]

	switch req.Reason {
	case ReasonNoCriteria:
		return explanation(c.noCriteria, c.noCriteriaAction)
	case ReasonFailure:
		return explanation(c.failure, c.failureAction)
	case ReasonNoResults:
		return explanation(c.noResults, c.noResultsAction)
	}

	if req.Count <= 0 {
		return explanation(c.noResults, c.noResultsAction)
	}

	format, ok := c.found[req.Level]
	if !ok {
		format = c.found[types.Exact]
	}

	var actions []string
	switch {
	case req.Level == types.AlternativeSuggestions:
		actions = append(slices.Clone(c.relaxedAction), c.alternatives...)
	case req.Level != types.Exact:
		actions = c.relaxedAction
	}
	return explanation(fmt.Sprintf(format, countText(lang, req.Count)), actions)
}

func countText(lang string, n int) string {
	if n == 1 {
		return catalogs[lang].foundOne
	}
	if lang == Arabic {
		return fmt.Sprintf("%d نتيجة", n)
	}
	return fmt.Sprintf("%d results", n)
}

func explanation(message string, actions []string) types.Explanation {
	out := slices.Clone(actions)
	if out == nil {
		out = []string{}
	}
	return types.Explanation{Message: message, SuggestedActions: out}
}
