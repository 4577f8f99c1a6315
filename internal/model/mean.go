package model

import (
	"fmt"
	"time"

	"github.com/andresuchdata/vendcast/internal/forecast"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

type slot struct {
	location string
	weekday  time.Weekday
}

// Mean predicts the historical mean count per (location, weekday), falling
// back to the location mean and then the overall mean.
type Mean struct {
	bySlot     map[slot][]float64
	byLocation map[string][]float64
	overall    []float64
	columns    []int64
}

func NewMean() *Mean { return &Mean{} }

func (m *Mean) Name() string { return "mean" }

func (m *Mean) Columns() []int64 { return m.columns }

func (m *Mean) Fit(x forecast.FeatureMatrix, y forecast.TargetMatrix) error {
	if y.Len() == 0 || len(y.Columns) == 0 {
		return fmt.Errorf("mean: no training data")
	}

	slots := make(map[slot][][]float64)
	locations := make(map[string][][]float64)
	for i, key := range y.Index {
		s := slot{location: key.Location, weekday: key.Bucket.Weekday()}
		slots[s] = append(slots[s], y.Values[i])
		locations[key.Location] = append(locations[key.Location], y.Values[i])
	}

	m.bySlot = make(map[slot][]float64, len(slots))
	for s, rows := range slots {
		m.bySlot[s] = columnMeans(rows, len(y.Columns))
	}
	m.byLocation = make(map[string][]float64, len(locations))
	for loc, rows := range locations {
		m.byLocation[loc] = columnMeans(rows, len(y.Columns))
	}
	m.overall = columnMeans(y.Values, len(y.Columns))
	m.columns = append([]int64(nil), y.Columns...)

	log.Info().Int("rows", y.Len()).Int("slots", len(m.bySlot)).Msg("mean model trained")
	return nil
}

func (m *Mean) Predict(x forecast.FeatureMatrix) (*mat.Dense, error) {
	if m.columns == nil {
		return nil, ErrNotFitted
	}
	if x.Len() == 0 {
		return nil, nil
	}

	out := mat.NewDense(x.Len(), len(m.columns), nil)
	for i, key := range x.Index {
		row, ok := m.bySlot[slot{location: key.Location, weekday: key.Bucket.Weekday()}]
		if !ok {
			row, ok = m.byLocation[key.Location]
		}
		if !ok {
			row = m.overall
		}
		out.SetRow(i, row)
	}
	return out, nil
}

func columnMeans(rows [][]float64, cols int) []float64 {
	means := make([]float64, cols)
	col := make([]float64, len(rows))
	for j := 0; j < cols; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		means[j] = stat.Mean(col, nil)
	}
	return means
}
