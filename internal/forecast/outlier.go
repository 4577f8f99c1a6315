package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// ProjectionDays is how far ahead the baseline projection reaches.
const ProjectionDays = 7

// BaselineLoader delivers historical average sales per day.
type BaselineLoader interface {
	LoadBaseline(ctx context.Context) ([]domain.BaselineSales, error)
}

// BaselineLoaderFunc adapts a function to BaselineLoader.
type BaselineLoaderFunc func(ctx context.Context) ([]domain.BaselineSales, error)

func (f BaselineLoaderFunc) LoadBaseline(ctx context.Context) ([]domain.BaselineSales, error) {
	return f(ctx)
}

// CorrectionReport summarises one correction pass.
type CorrectionReport struct {
	// Rows counts every row of the forecast.
	Rows int
	// Compared counts the rows that had a baseline.
	Compared  int
	Corrected int
	StdDev    float64
	// Ratio is Corrected over Rows, so rows without a baseline count in
	// the denominator.
	Ratio   float64
	Flagged []SalesKey
}

// OutlierCorrector replaces forecast rows whose daily rate strays too far
// from the historical baseline with a projection of that baseline.
type OutlierCorrector struct {
	// StdDevs is the threshold multiplier; zero or less means 1.
	StdDevs float64
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewOutlierCorrector(stdDevs float64) *OutlierCorrector {
	return &OutlierCorrector{StdDevs: stdDevs, Now: time.Now}
}

// Correct compares the forecast's average daily rate over lookaheadDays with
// the baseline rate. Dates are matched by calendar day, so an hourly
// forecast is judged on the last bucket of each day. Rows whose difference
// exceeds StdDevs sample standard deviations get the baseline projection
// written over every projected date present in the forecast. Rows without a
// baseline are never touched. The input is not modified.
func (c *OutlierCorrector) Correct(ctx context.Context, sales CumulativeSales, lookaheadDays int, loader BaselineLoader) (CumulativeSales, CorrectionReport, error) {
	report := CorrectionReport{Rows: sales.Len()}
	if lookaheadDays <= 0 {
		return CumulativeSales{}, report, fmt.Errorf("%w: lookahead days must be positive, got %d", ErrPrecondition, lookaheadDays)
	}

	today := Day(c.now())
	target := today.AddDate(0, 0, 1+lookaheadDays)
	cols := sales.DayColumns(target)
	if len(cols) == 0 {
		return CumulativeSales{}, report, fmt.Errorf("%w: %s", ErrLookaheadUnavailable, target.Format("2006-01-02"))
	}
	// cumulative values, so the last bucket of the day holds the day's total
	col := cols[len(cols)-1]

	rows, err := loader.LoadBaseline(ctx)
	if err != nil {
		return CumulativeSales{}, report, fmt.Errorf("load baseline: %w", err)
	}
	baseline := averageBaseline(rows)

	var keys []SalesKey
	var diffs []float64
	for i, key := range sales.Keys {
		rate, ok := baseline[key]
		if !ok {
			continue
		}
		predicted := sales.Values[i][col] / float64(lookaheadDays)
		keys = append(keys, key)
		diffs = append(diffs, predicted-rate)
	}
	report.Compared = len(diffs)

	out := sales.Clone()
	if len(diffs) < 2 {
		log.Info().Int("compared", report.Compared).Msg("not enough baseline overlap to judge outliers")
		return out, report, nil
	}

	multiplier := c.StdDevs
	if multiplier <= 0 {
		multiplier = 1
	}
	report.StdDev = stat.StdDev(diffs, nil)
	limit := multiplier * report.StdDev

	rowOf := out.RowIndex()
	for k, key := range keys {
		if math.Abs(diffs[k]) <= limit {
			continue
		}
		report.Flagged = append(report.Flagged, key)
		row := out.Values[rowOf[key]]
		for day := 1; day <= ProjectionDays; day++ {
			for _, j := range out.DayColumns(today.AddDate(0, 0, day)) {
				row[j] = math.RoundToEven(baseline[key] * float64(day))
			}
		}
	}
	report.Corrected = len(report.Flagged)
	if report.Rows > 0 {
		report.Ratio = float64(report.Corrected) / float64(report.Rows)
	}

	log.Info().
		Int("rows", report.Rows).
		Int("compared", report.Compared).
		Int("corrected", report.Corrected).
		Float64("std_dev", report.StdDev).
		Float64("ratio", report.Ratio).
		Msg("outlier products found and adjusted")

	return out, report, nil
}

func (c *OutlierCorrector) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// averageBaseline collapses weekday-keyed rows into one rate per key and
// drops rows without a usable rate.
func averageBaseline(rows []domain.BaselineSales) map[SalesKey]float64 {
	sums := make(map[SalesKey]float64)
	counts := make(map[SalesKey]int)
	for _, r := range rows {
		if math.IsNaN(r.AvgPerDay) || math.IsInf(r.AvgPerDay, 0) {
			continue
		}
		key := SalesKey{Location: r.Location, ProductID: r.ProductID}
		sums[key] += r.AvgPerDay
		counts[key]++
	}

	out := make(map[SalesKey]float64, len(sums))
	for key, sum := range sums {
		out[key] = sum / float64(counts[key])
	}
	return out
}
