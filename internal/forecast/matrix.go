package forecast

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// RowKey identifies one encoded observation: a time bucket at a location.
type RowKey struct {
	Bucket   time.Time
	Location string
}

// SalesKey identifies one forecast row.
type SalesKey struct {
	Location  string
	ProductID int64
}

// FeatureMatrix is the covariate side (X) of an encoded transaction set.
type FeatureMatrix struct {
	Index   []RowKey
	Columns []string
	Values  [][]any
}

func (m FeatureMatrix) Len() int { return len(m.Index) }

// Column returns the values of the named column, one per row.
func (m FeatureMatrix) Column(name string) ([]any, bool) {
	j := -1
	for i, c := range m.Columns {
		if c == name {
			j = i
			break
		}
	}
	if j < 0 {
		return nil, false
	}
	out := make([]any, len(m.Values))
	for i, row := range m.Values {
		out[i] = row[j]
	}
	return out, true
}

// TargetMatrix is the per-product count side (Y) of an encoded transaction
// set. It shares its index with the FeatureMatrix it was encoded with.
type TargetMatrix struct {
	Index   []RowKey
	Columns []int64
	Values  [][]float64
}

func (m TargetMatrix) Len() int { return len(m.Index) }

// Total is the sum of every count in the matrix.
func (m TargetMatrix) Total() float64 {
	var sum float64
	for _, row := range m.Values {
		for _, v := range row {
			sum += v
		}
	}
	return sum
}

// Dense returns the counts as a gonum matrix, or nil when the matrix has no
// rows or no columns.
func (m TargetMatrix) Dense() *mat.Dense {
	if len(m.Values) == 0 || len(m.Columns) == 0 {
		return nil
	}
	d := mat.NewDense(len(m.Values), len(m.Columns), nil)
	for i, row := range m.Values {
		d.SetRow(i, row)
	}
	return d
}

// DateMatrix holds one value per key and date. Dates are ascending.
type DateMatrix[K comparable] struct {
	Keys   []K
	Dates  []time.Time
	Values [][]float64
}

// CumulativeSales is the reconstructed forecast: cumulative units sold per
// (Location, ProductId) through each forecast date.
type CumulativeSales = DateMatrix[SalesKey]

func (m DateMatrix[K]) Len() int { return len(m.Keys) }

// DayColumns returns the columns whose date falls on the calendar day of d,
// in date order. Hourly forecasts carry several columns per day.
func (m DateMatrix[K]) DayColumns(d time.Time) []int {
	want := Day(d)
	var cols []int
	for i, date := range m.Dates {
		if Day(date).Equal(want) {
			cols = append(cols, i)
		}
	}
	return cols
}

// RowIndex maps every key to its row.
func (m DateMatrix[K]) RowIndex() map[K]int {
	idx := make(map[K]int, len(m.Keys))
	for i, k := range m.Keys {
		idx[k] = i
	}
	return idx
}

// Row returns the values of k.
func (m DateMatrix[K]) Row(k K) ([]float64, bool) {
	for i, key := range m.Keys {
		if key == k {
			return m.Values[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so stages never share backing arrays.
func (m DateMatrix[K]) Clone() DateMatrix[K] {
	out := DateMatrix[K]{
		Keys:   append([]K(nil), m.Keys...),
		Dates:  append([]time.Time(nil), m.Dates...),
		Values: make([][]float64, len(m.Values)),
	}
	for i, row := range m.Values {
		out.Values[i] = append([]float64(nil), row...)
	}
	return out
}

// Day returns the calendar day of t as UTC midnight. Forecast dates are
// compared as calendar days regardless of the zone they were recorded in.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
