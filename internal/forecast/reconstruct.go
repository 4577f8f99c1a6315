package forecast

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ClampedPrediction is predictor output with every non-positive value set
// to zero. Only ClampNegative produces a usable one.
type ClampedPrediction struct {
	values  [][]float64
	cols    int
	clamped bool
}

// Dims returns the shape of the prediction.
func (p ClampedPrediction) Dims() (int, int) { return len(p.values), p.cols }

// ClampNegative zeroes every value that is not strictly positive, NaN
// included. It must run before Build.
func ClampNegative(raw mat.Matrix) ClampedPrediction {
	if raw == nil {
		return ClampedPrediction{clamped: true}
	}
	if d, ok := raw.(*mat.Dense); ok && d == nil {
		return ClampedPrediction{clamped: true}
	}

	r, c := raw.Dims()
	values := make([][]float64, r)
	zeroed := 0
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			v := raw.At(i, j)
			if v <= 0 || math.IsNaN(v) {
				if v != 0 {
					zeroed++
				}
				v = 0
			}
			row[j] = v
		}
		values[i] = row
	}

	log.Debug().Int("rows", r).Int("cols", c).Int("zeroed", zeroed).Msg("clamped prediction")
	return ClampedPrediction{values: values, cols: c, clamped: true}
}

// LabeledPrediction is a clamped prediction with the prediction-time row
// index and the training-time product columns attached.
type LabeledPrediction struct {
	Index   []RowKey
	Columns []int64
	Values  [][]float64
	built   bool
}

// Build attaches labels to a clamped prediction. The labels must match the
// prediction's shape exactly.
func Build(p ClampedPrediction, rowIndex []RowKey, columns []int64) (LabeledPrediction, error) {
	if !p.clamped {
		return LabeledPrediction{}, fmt.Errorf("%w: prediction was not clamped before build", ErrPrecondition)
	}

	r, c := p.Dims()
	if r != len(rowIndex) || (r > 0 && c != len(columns)) {
		return LabeledPrediction{}, fmt.Errorf("%w: prediction is %dx%d, labels are %dx%d",
			ErrShapeMismatch, r, c, len(rowIndex), len(columns))
	}

	values := make([][]float64, r)
	for i, row := range p.values {
		values[i] = append([]float64(nil), row...)
	}

	return LabeledPrediction{
		Index:   append([]RowKey(nil), rowIndex...),
		Columns: append([]int64(nil), columns...),
		Values:  values,
		built:   true,
	}, nil
}

// ToCumulative pivots the bucket dimension into columns, keys rows by
// (Location, ProductId), takes the running sum along the dates and rounds
// half to even. A (bucket, Location) pair missing from the index adds 0.
func ToCumulative(p LabeledPrediction) (CumulativeSales, error) {
	if !p.built {
		return CumulativeSales{}, fmt.Errorf("%w: prediction has no labels attached", ErrPrecondition)
	}

	daily := make(map[RowKey][]float64, len(p.Index))
	var dates []time.Time
	var locations []string
	for i, key := range p.Index {
		if _, dup := daily[key]; dup {
			return CumulativeSales{}, fmt.Errorf("%w: %s at %s", ErrDuplicateKey, key.Location, key.Bucket.Format(time.RFC3339))
		}
		daily[key] = p.Values[i]
		if !slices.ContainsFunc(dates, key.Bucket.Equal) {
			dates = append(dates, key.Bucket)
		}
		if !slices.Contains(locations, key.Location) {
			locations = append(locations, key.Location)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	sort.Strings(locations)

	products := append([]int64(nil), p.Columns...)
	slices.Sort(products)
	col := make(map[int64]int, len(p.Columns))
	for j, id := range p.Columns {
		col[id] = j
	}

	out := CumulativeSales{Dates: dates}
	for _, loc := range locations {
		for _, id := range products {
			row := make([]float64, len(dates))
			for d, date := range dates {
				if values, ok := daily[RowKey{Bucket: date, Location: loc}]; ok {
					row[d] = values[col[id]]
				}
			}
			floats.CumSum(row, row)
			for d := range row {
				row[d] = math.RoundToEven(row[d])
			}
			out.Keys = append(out.Keys, SalesKey{Location: loc, ProductID: id})
			out.Values = append(out.Values, row)
		}
	}

	log.Info().
		Int("rows", out.Len()).
		Int("dates", len(dates)).
		Msg("prediction transformed to cumulative sales")

	return out, nil
}

// CollapseToDays keeps the last column of every calendar day and dates it
// at midnight. Sales are cumulative, so that column is the total through
// the end of the day. A daily forecast comes back unchanged.
func CollapseToDays(sales CumulativeSales) CumulativeSales {
	var keep []int
	var dates []time.Time
	for i, date := range sales.Dates {
		d := Day(date)
		if n := len(dates); n > 0 && dates[n-1].Equal(d) {
			keep[n-1] = i
			continue
		}
		keep = append(keep, i)
		dates = append(dates, d)
	}

	out := CumulativeSales{
		Keys:   append([]SalesKey(nil), sales.Keys...),
		Dates:  dates,
		Values: make([][]float64, len(sales.Values)),
	}
	for r, row := range sales.Values {
		collapsed := make([]float64, len(keep))
		for k, j := range keep {
			collapsed[k] = row[j]
		}
		out.Values[r] = collapsed
	}
	return out
}
