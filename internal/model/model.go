package model

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/andresuchdata/vendcast/internal/forecast"
	"gonum.org/v1/gonum/mat"
)

// ErrNotFitted is returned by Predict before Fit succeeded.
var ErrNotFitted = errors.New("predictor has not been fitted")

// Predictor learns Y from X at training time and produces raw, possibly
// negative, predictions for new X. Output columns follow the training Y.
type Predictor interface {
	Name() string
	Fit(x forecast.FeatureMatrix, y forecast.TargetMatrix) error
	Predict(x forecast.FeatureMatrix) (*mat.Dense, error)
	Columns() []int64
}

// New returns the predictor registered under name.
func New(name string) (Predictor, error) {
	switch name {
	case "", "linear":
		return NewLinear(DefaultRidge), nil
	case "mean":
		return NewMean(), nil
	}
	return nil, fmt.Errorf("unknown predictor %q", name)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}
