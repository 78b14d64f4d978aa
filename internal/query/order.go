package query

import (
	"strings"

	"github.com/lox/booking-search/internal/types"
)

// OrderBy renders the ORDER BY terms over the projected columns of a search.
// The projection must expose is_featured, average_rating, star_rating,
// created_at, bookings_count, views_count, price and distance; idColumns are
// appended as a deterministic tiebreak.
func (q *Query) OrderBy(idColumns ...string) string {
	var terms []string
	switch q.Sort {
	case types.SortDistance:
		terms = []string{"distance IS NULL", "distance ASC"}
	case types.SortPriceAsc:
		terms = []string{"price IS NULL", "price ASC"}
	case types.SortPriceDesc:
		terms = []string{"price IS NULL", "price DESC"}
	case types.SortRating:
		terms = []string{"average_rating DESC", "star_rating DESC"}
	case types.SortNewest:
		terms = []string{"created_at DESC"}
	case types.SortPopularity:
		terms = []string{"bookings_count DESC", "views_count DESC"}
	default:
		terms = []string{"is_featured DESC", "average_rating DESC"}
	}
	for _, id := range idColumns {
		terms = append(terms, id+" ASC")
	}
	return strings.Join(terms, ", ")
}
