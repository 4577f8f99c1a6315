package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/rs/zerolog/log"
)

// DefaultAllowableMissedProfit is the missed gross profit a row may reach
// on a date before that date becomes its refill date.
const DefaultAllowableMissedProfit = 5.0

// RefillDates walks the dates from the furthest to the nearest and assigns a
// row the date whenever its value on that date exceeds allowable. A date
// that does not exceed leaves the earlier assignment in place, so the result
// is the nearest exceeding date, or nil when no date exceeds.
func RefillDates[K comparable](m DateMatrix[K], allowable float64) []*time.Time {
	out := make([]*time.Time, len(m.Keys))
	for j := len(m.Dates) - 1; j >= 0; j-- {
		for i, row := range m.Values {
			if row[j] > allowable {
				date := m.Dates[j]
				out[i] = &date
			}
		}
	}
	return out
}

// RelativeDayLabel names a forecast date by its distance from today.
func RelativeDayLabel(date, today time.Time) string {
	days := int(math.Round(Day(date).Sub(Day(today)).Hours() / 24))
	return fmt.Sprintf("Missed gross profit in +%d days", days)
}

// RelativeDayLabels labels every date of a matrix.
func RelativeDayLabels(dates []time.Time, today time.Time) []string {
	labels := make([]string, len(dates))
	for i, d := range dates {
		labels[i] = RelativeDayLabel(d, today)
	}
	return labels
}

// BuildPriceLookup turns raw gross profit entries into a lookup. Missing,
// non-finite and negative values become 0 with a warning. Later entries for
// the same product win. The second result counts the coerced entries.
func BuildPriceLookup(entries []domain.PriceEntry) (map[int64]float64, int) {
	lookup := make(map[int64]float64, len(entries))
	invalid := 0
	for _, e := range entries {
		switch {
		case e.GrossProfit == nil || math.IsNaN(*e.GrossProfit) || math.IsInf(*e.GrossProfit, 0):
			log.Warn().Int64("product_id", e.ProductID).Msg("gross profit is not numeric, setting it to 0")
			lookup[e.ProductID] = 0
			invalid++
		case *e.GrossProfit < 0:
			log.Warn().Int64("product_id", e.ProductID).Float64("gross_profit", *e.GrossProfit).
				Msg("gross profit is negative, setting it to 0")
			lookup[e.ProductID] = 0
			invalid++
		default:
			lookup[e.ProductID] = *e.GrossProfit
		}
	}
	return lookup, invalid
}
