package pipeline

import (
	"fmt"
	"time"
)

// Stage names one step of a forecast run.
type Stage string

const (
	StageClean       Stage = "clean"
	StageEnrich      Stage = "enrich"
	StageEncode      Stage = "encode"
	StagePredict     Stage = "predict"
	StageReconstruct Stage = "reconstruct"
	StageCorrect     Stage = "correct"
	StageTranslate   Stage = "translate"
	StageSink        Stage = "sink"
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageClean, StageEnrich, StageEncode, StagePredict,
	StageReconstruct, StageCorrect, StageTranslate, StageSink,
}

// Optional reports whether the stage may be skipped by configuration.
func (s Stage) Optional() bool {
	switch s {
	case StageClean, StageEnrich, StageCorrect:
		return true
	}
	return false
}

// ParseSkipStages validates configured stage names. Only optional stages
// can be skipped.
func ParseSkipStages(names []string) (map[Stage]bool, error) {
	skip := make(map[Stage]bool, len(names))
	for _, name := range names {
		s := Stage(name)
		known := false
		for _, st := range Stages {
			if st == s {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown stage %q", name)
		}
		if !s.Optional() {
			return nil, fmt.Errorf("stage %q cannot be skipped", name)
		}
		skip[s] = true
	}
	return skip, nil
}

// RunStatus represents the current state of a forecast run
type RunStatus string

const (
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// ForecastRun tracks a single execution of the forecast pipeline
type ForecastRun struct {
	ID                 string     `json:"id" db:"id"`
	Status             RunStatus  `json:"status" db:"status"`
	Stage              Stage      `json:"stage" db:"stage"`
	Predictor          string     `json:"predictor" db:"predictor"`
	TransactionRows    int        `json:"transaction_rows" db:"transaction_rows"`
	PredictionRows     int        `json:"prediction_rows" db:"prediction_rows"`
	ForecastRows       int        `json:"forecast_rows" db:"forecast_rows"`
	CorrectedRows      int        `json:"corrected_rows" db:"corrected_rows"`
	CorrectedRatio     float64    `json:"corrected_ratio" db:"corrected_ratio"`
	ProductAdviceRows  int        `json:"product_advice_rows" db:"product_advice_rows"`
	LocationAdviceRows int        `json:"location_advice_rows" db:"location_advice_rows"`
	StartedAt          time.Time  `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ErrorMessage       string     `json:"error_message,omitempty" db:"error_message"`
}
