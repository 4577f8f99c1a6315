package model

import (
	"fmt"
	"sort"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/andresuchdata/vendcast/internal/forecast"
	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// DefaultRidge keeps the normal equations solvable when a one-hot column
// never fires in the training data.
const DefaultRidge = 1e-3

// WeatherFeatures are imputed with the training median and robust scaled.
var WeatherFeatures = []string{"tavg", "prcp"}

const weekdays = 7

type robustScaler struct {
	name   string
	median float64
	scale  float64
}

func fitScaler(name string, values []any) robustScaler {
	var data stats.Float64Data
	for _, v := range values {
		if domain.IsMissing(v) {
			continue
		}
		if f, ok := toFloat(v); ok {
			data = append(data, f)
		}
	}

	s := robustScaler{name: name, scale: 1}
	if len(data) == 0 {
		return s
	}
	s.median, _ = stats.Median(data)
	q1, err1 := stats.Percentile(data, 25)
	q3, err3 := stats.Percentile(data, 75)
	if err1 == nil && err3 == nil && q3-q1 > 0 {
		s.scale = q3 - q1
	}
	return s
}

func (s robustScaler) transform(v any) float64 {
	f, ok := toFloat(v)
	if !ok || domain.IsMissing(v) {
		f = s.median
	}
	return (f - s.median) / s.scale
}

// Linear is a ridge regression over an intercept, a one-hot weekday, a
// one-hot location and the robust-scaled weather features. One coefficient
// column is fitted per product.
type Linear struct {
	lambda    float64
	locations map[string]int
	scalers   []robustScaler
	beta      *mat.Dense
	columns   []int64
}

func NewLinear(lambda float64) *Linear {
	if lambda <= 0 {
		lambda = DefaultRidge
	}
	return &Linear{lambda: lambda}
}

func (l *Linear) Name() string { return "linear" }

func (l *Linear) Columns() []int64 { return l.columns }

func (l *Linear) Fit(x forecast.FeatureMatrix, y forecast.TargetMatrix) error {
	if x.Len() == 0 || len(y.Columns) == 0 {
		return fmt.Errorf("linear: no training data")
	}
	if x.Len() != y.Len() {
		return fmt.Errorf("linear: X has %d rows, Y has %d", x.Len(), y.Len())
	}

	var locs []string
	seen := make(map[string]bool)
	for _, k := range x.Index {
		if !seen[k.Location] {
			seen[k.Location] = true
			locs = append(locs, k.Location)
		}
	}
	sort.Strings(locs)
	l.locations = make(map[string]int, len(locs))
	for i, loc := range locs {
		l.locations[loc] = i
	}

	l.scalers = l.scalers[:0]
	for _, name := range WeatherFeatures {
		values, _ := x.Column(name)
		l.scalers = append(l.scalers, fitScaler(name, values))
	}

	design := l.design(x)
	_, p := design.Dims()

	var xtx mat.Dense
	xtx.Mul(design.T(), design)
	for i := 0; i < p; i++ {
		xtx.Set(i, i, xtx.At(i, i)+l.lambda)
	}
	var xty mat.Dense
	xty.Mul(design.T(), y.Dense())

	var beta mat.Dense
	if err := beta.Solve(&xtx, &xty); err != nil {
		return fmt.Errorf("linear: solve normal equations: %w", err)
	}

	l.beta = &beta
	l.columns = append([]int64(nil), y.Columns...)

	log.Info().
		Int("rows", x.Len()).
		Int("features", p).
		Int("products", len(l.columns)).
		Float64("lambda", l.lambda).
		Msg("linear model trained")
	return nil
}

func (l *Linear) Predict(x forecast.FeatureMatrix) (*mat.Dense, error) {
	if l.beta == nil {
		return nil, ErrNotFitted
	}
	if x.Len() == 0 {
		return nil, nil
	}

	var out mat.Dense
	out.Mul(l.design(x), l.beta)

	log.Info().Int("rows", x.Len()).Msg("linear model predicted")
	return &out, nil
}

func (l *Linear) design(x forecast.FeatureMatrix) *mat.Dense {
	p := 1 + weekdays + len(l.locations) + len(l.scalers)
	d := mat.NewDense(x.Len(), p, nil)

	weekday, hasWeekday := x.Column("weekday")
	weather := make([][]any, len(l.scalers))
	for j, s := range l.scalers {
		weather[j], _ = x.Column(s.name)
	}

	for i, key := range x.Index {
		d.Set(i, 0, 1)
		if hasWeekday {
			if wd, ok := toFloat(weekday[i]); ok && wd >= 0 && wd < weekdays {
				d.Set(i, 1+int(wd), 1)
			}
		}
		if loc, ok := l.locations[key.Location]; ok {
			d.Set(i, 1+weekdays+loc, 1)
		}
		for j, s := range l.scalers {
			var v any
			if weather[j] != nil {
				v = weather[j][i]
			}
			d.Set(i, 1+weekdays+len(l.locations)+j, s.transform(v))
		}
	}
	return d
}
