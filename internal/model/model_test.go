package model

import (
	"testing"
	"time"

	"github.com/andresuchdata/vendcast/internal/forecast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// two weeks of history where location A sells 4 units of product 1 on
// Mondays and 1 unit otherwise; location B sells 2 of product 2 every day
func history() (forecast.FeatureMatrix, forecast.TargetMatrix) {
	var x forecast.FeatureMatrix
	var y forecast.TargetMatrix
	x.Columns = []string{"prcp", "tavg", "weekday"}
	y.Columns = []int64{1, 2}
	for d := 0; d < 14; d++ {
		wd := d % 7
		for _, loc := range []string{"A", "B"} {
			key := forecast.RowKey{Bucket: day(d), Location: loc}
			x.Index = append(x.Index, key)
			y.Index = append(y.Index, key)
			x.Values = append(x.Values, []any{0.0, 10.0 + float64(d), wd})
			if loc == "A" {
				units := 1.0
				if wd == 0 {
					units = 4
				}
				y.Values = append(y.Values, []float64{units, 0})
			} else {
				y.Values = append(y.Values, []float64{0, 2})
			}
		}
	}
	return x, y
}

func future() forecast.FeatureMatrix {
	return forecast.FeatureMatrix{
		Index:   []forecast.RowKey{{Bucket: day(14), Location: "A"}, {Bucket: day(15), Location: "A"}, {Bucket: day(14), Location: "B"}},
		Columns: []string{"prcp", "tavg", "weekday"},
		Values:  [][]any{{nil, nil, 0}, {nil, 20.0, 1}, {0.0, 11.0, 0}},
	}
}

func TestLinearPredictor(t *testing.T) {
	x, y := history()
	p, err := New("linear")
	require.NoError(t, err)
	require.NoError(t, p.Fit(x, y))
	assert.Equal(t, []int64{1, 2}, p.Columns())

	pred, err := p.Predict(future())
	require.NoError(t, err)
	r, c := pred.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)

	assert.Greater(t, pred.At(0, 0), pred.At(1, 0), "monday sells more at A")
	assert.Greater(t, pred.At(2, 1), pred.At(0, 1), "B sells product 2")
}

func TestMeanPredictor(t *testing.T) {
	x, y := history()
	p, err := New("mean")
	require.NoError(t, err)
	require.NoError(t, p.Fit(x, y))

	fx := future()
	fx.Index = append(fx.Index, forecast.RowKey{Bucket: day(14), Location: "Z"})
	fx.Values = append(fx.Values, []any{nil, nil, 0})

	pred, err := p.Predict(fx)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 0}, pred.RawRowView(0))
	assert.Equal(t, []float64{1, 0}, pred.RawRowView(1))
	assert.Equal(t, []float64{0, 2}, pred.RawRowView(2))
	// unknown location falls back to the overall mean
	assert.InDeltaSlice(t, []float64{(4*2 + 12) / 28.0, 1}, pred.RawRowView(3), 1e-9)
}

func TestPredictorErrors(t *testing.T) {
	_, err := New("forest")
	assert.Error(t, err)

	for _, name := range []string{"linear", "mean"} {
		p, err := New(name)
		require.NoError(t, err)
		_, err = p.Predict(future())
		assert.ErrorIs(t, err, ErrNotFitted, name)
		assert.Error(t, p.Fit(forecast.FeatureMatrix{}, forecast.TargetMatrix{}), name)
	}

	x, y := history()
	p := NewLinear(0)
	require.NoError(t, p.Fit(x, y))
	pred, err := p.Predict(forecast.FeatureMatrix{})
	require.NoError(t, err)
	assert.Nil(t, pred)
}
