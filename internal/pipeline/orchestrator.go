package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/vendcast/internal/config"
	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/andresuchdata/vendcast/internal/forecast"
	"github.com/andresuchdata/vendcast/internal/metrics"
	"github.com/andresuchdata/vendcast/internal/model"
	"github.com/andresuchdata/vendcast/internal/prepare"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TransactionSource delivers the historical sales the predictor learns from.
type TransactionSource interface {
	LoadTransactions(ctx context.Context) ([]domain.Transaction, error)
}

// AuxiliarySource delivers everything around the sales history: machines,
// stock, prices and the baseline used for outlier correction.
type AuxiliarySource interface {
	prepare.PredictionSource
	forecast.AuxiliarySource
	forecast.BaselineLoader
}

// AdviceSink persists the two advice tables of a run.
type AdviceSink interface {
	ReplaceAdvice(ctx context.Context, products, locations domain.RefillAdviceTable) error
}

// RunStore records forecast runs.
type RunStore interface {
	CreateRun(ctx context.Context, run *ForecastRun) error
	UpdateRun(ctx context.Context, run *ForecastRun) error
}

// CacheInvalidator drops cached advice once new tables are written.
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Exporter publishes a copy of the advice tables outside the database.
type Exporter interface {
	Export(ctx context.Context, runID string, products, locations domain.RefillAdviceTable) ([]string, error)
}

// Driver runs the forecast stages in order, each consuming the full output
// of the previous one.
type Driver struct {
	cfg          config.ForecastConfig
	weatherProps []string
	weatherDelay time.Duration

	transactions TransactionSource
	aux          AuxiliarySource
	weather      prepare.WeatherClient
	predictor    model.Predictor
	sink         AdviceSink
	runs         RunStore
	cache        CacheInvalidator
	exporter     Exporter

	skip map[Stage]bool
	now  func() time.Time
}

// Option customises a Driver.
type Option func(*Driver)

// WithWeather enables weather enrichment with the given client.
func WithWeather(client prepare.WeatherClient, cfg config.WeatherConfig) Option {
	return func(d *Driver) {
		d.weather = client
		d.weatherProps = cfg.Properties
		d.weatherDelay = cfg.RequestDelay
	}
}

// WithRunStore records every run in store.
func WithRunStore(store RunStore) Option {
	return func(d *Driver) { d.runs = store }
}

// WithCache invalidates cached advice after the sink stage.
func WithCache(c CacheInvalidator) Option {
	return func(d *Driver) { d.cache = c }
}

// WithExporter exports the advice tables after the sink stage.
func WithExporter(e Exporter) Option {
	return func(d *Driver) { d.exporter = e }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// NewDriver validates the forecast settings and wires the stages.
func NewDriver(cfg config.ForecastConfig, transactions TransactionSource, aux AuxiliarySource, predictor model.Predictor, sink AdviceSink, opts ...Option) (*Driver, error) {
	skip, err := ParseSkipStages(cfg.SkipStages)
	if err != nil {
		return nil, err
	}
	if _, err := forecast.ParseGranularity(cfg.Granularity); err != nil {
		return nil, err
	}
	if cfg.DaysOfPrediction <= 0 {
		return nil, fmt.Errorf("days of prediction must be positive, got %d", cfg.DaysOfPrediction)
	}
	if cfg.LookaheadDays <= 0 || cfg.LookaheadDays > cfg.DaysOfPrediction {
		return nil, fmt.Errorf("lookahead days must be within 1..%d, got %d", cfg.DaysOfPrediction, cfg.LookaheadDays)
	}

	d := &Driver{
		cfg:          cfg,
		transactions: transactions,
		aux:          aux,
		predictor:    predictor,
		sink:         sink,
		skip:         skip,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run executes one forecast run. The returned run is populated even when
// the run failed.
func (d *Driver) Run(ctx context.Context) (*ForecastRun, error) {
	run := &ForecastRun{
		ID:        uuid.New().String(),
		Status:    StatusProcessing,
		Predictor: d.predictor.Name(),
		StartedAt: d.now(),
	}
	if d.runs != nil {
		if err := d.runs.CreateRun(ctx, run); err != nil {
			return run, err
		}
	}

	logger := log.With().Str("run_id", run.ID).Logger()
	logger.Info().Str("predictor", run.Predictor).Msg("forecast run started")

	err := d.execute(ctx, run)

	completed := d.now()
	run.CompletedAt = &completed
	if err != nil {
		run.Status = StatusFailed
		run.ErrorMessage = err.Error()
		logger.Error().Err(err).Str("stage", string(run.Stage)).Msg("forecast run failed")
	} else {
		run.Status = StatusCompleted
		logger.Info().
			Int("forecast_rows", run.ForecastRows).
			Float64("corrected_ratio", run.CorrectedRatio).
			Dur("elapsed", completed.Sub(run.StartedAt)).
			Msg("forecast run completed")
	}

	metrics.ForecastRunsTotal.WithLabelValues(string(run.Status)).Inc()
	metrics.ForecastRunDuration.Observe(completed.Sub(run.StartedAt).Seconds())
	if err == nil {
		metrics.ForecastCorrectedRatio.Set(run.CorrectedRatio)
		metrics.RefillAdviceRows.WithLabelValues("products").Set(float64(run.ProductAdviceRows))
		metrics.RefillAdviceRows.WithLabelValues("locations").Set(float64(run.LocationAdviceRows))
	}

	if d.runs != nil {
		// the run may have failed because ctx ended; still record it
		if uerr := d.runs.UpdateRun(context.WithoutCancel(ctx), run); uerr != nil {
			logger.Warn().Err(uerr).Msg("failed to record forecast run")
		}
	}
	return run, err
}

func (d *Driver) execute(ctx context.Context, run *ForecastRun) error {
	now := d.now()
	g, _ := forecast.ParseGranularity(d.cfg.Granularity)

	history, err := d.transactions.LoadTransactions(ctx)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	run.TransactionRows = len(history)

	if d.enter(run, StageClean) {
		if history, err = d.clean(ctx, history); err != nil {
			return err
		}
	}

	future, err := prepare.GeneratePredictionTransactions(ctx, d.aux, d.cfg.DaysOfPrediction, now)
	if err != nil {
		return fmt.Errorf("generate prediction rows: %w", err)
	}
	run.PredictionRows = len(future)

	// enrichment runs over both sets at once so weather is fetched for
	// the whole date span in one pass
	if d.enter(run, StageEnrich) {
		if history, future, err = d.enrich(ctx, history, future); err != nil {
			return err
		}
	}

	d.enter(run, StageEncode)
	x, y, err := forecast.FrequencyEncode(history, g)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	xFuture, _, err := forecast.FrequencyEncode(future, g)
	if err != nil {
		return fmt.Errorf("encode prediction rows: %w", err)
	}

	d.enter(run, StagePredict)
	if err := d.predictor.Fit(x, y); err != nil {
		return fmt.Errorf("fit %s: %w", d.predictor.Name(), err)
	}
	raw, err := d.predictor.Predict(xFuture)
	if err != nil {
		return fmt.Errorf("predict %s: %w", d.predictor.Name(), err)
	}

	d.enter(run, StageReconstruct)
	labeled, err := forecast.Build(forecast.ClampNegative(raw), xFuture.Index, d.predictor.Columns())
	if err != nil {
		return err
	}
	sales, err := forecast.ToCumulative(labeled)
	if err != nil {
		return err
	}
	if g == forecast.Hourly {
		// advice is given per day
		sales = forecast.CollapseToDays(sales)
	}
	run.ForecastRows = sales.Len()

	if d.enter(run, StageCorrect) {
		corrector := forecast.NewOutlierCorrector(d.cfg.OutlierStdDevs)
		corrector.Now = d.now
		var report forecast.CorrectionReport
		sales, report, err = corrector.Correct(ctx, sales, d.cfg.LookaheadDays, d.aux)
		if err != nil {
			return fmt.Errorf("correct outliers: %w", err)
		}
		run.CorrectedRows = report.Corrected
		run.CorrectedRatio = report.Ratio
	}

	d.enter(run, StageTranslate)
	translator := forecast.NewBusinessTranslator(d.aux, d.cfg.AllowableMissedProfit).WithClock(d.now)
	result, err := translator.Translate(ctx, sales)
	if err != nil {
		return fmt.Errorf("translate forecast: %w", err)
	}
	run.ProductAdviceRows = len(result.Products.Rows)
	run.LocationAdviceRows = len(result.Locations.Rows)

	d.enter(run, StageSink)
	return d.publish(ctx, run.ID, result)
}

// enter marks stage as current and reports whether it should run.
func (d *Driver) enter(run *ForecastRun, stage Stage) bool {
	if d.skip[stage] {
		log.Info().Str("run_id", run.ID).Str("stage", string(stage)).Msg("stage skipped")
		return false
	}
	run.Stage = stage
	log.Debug().Str("run_id", run.ID).Str("stage", string(stage)).Msg("stage started")
	return true
}

func (d *Driver) clean(ctx context.Context, txs []domain.Transaction) ([]domain.Transaction, error) {
	txs, err := prepare.RemoveUnstocked(ctx, txs, d.aux)
	if err != nil {
		return nil, fmt.Errorf("clean: %w", err)
	}
	if d.cfg.StaleAfterDays > 0 {
		txs = prepare.RemoveStale(txs, time.Duration(d.cfg.StaleAfterDays)*24*time.Hour, true)
	}
	if d.cfg.MinRecentSharePercent > 0 && d.cfg.RecentWindowDays > 0 {
		txs = prepare.RemoveUnderperforming(txs, d.cfg.MinRecentSharePercent, time.Duration(d.cfg.RecentWindowDays)*24*time.Hour, true)
	}
	return txs, nil
}

func (d *Driver) enrich(ctx context.Context, history, future []domain.Transaction) ([]domain.Transaction, []domain.Transaction, error) {
	all := make([]domain.Transaction, 0, len(history)+len(future))
	all = append(append(all, history...), future...)

	all, err := prepare.AddTimeFeature(all, "weekday")
	if err != nil {
		return nil, nil, err
	}

	if d.weather != nil && len(d.weatherProps) > 0 {
		enricher := prepare.NewEnricher(d.weather, d.aux, d.weatherDelay)
		if all, err = enricher.AddWeather(ctx, all, d.weatherProps); err != nil {
			return nil, nil, fmt.Errorf("enrich weather: %w", err)
		}
	}

	return all[:len(history)], all[len(history):], nil
}

func (d *Driver) publish(ctx context.Context, runID string, result forecast.TranslationResult) error {
	if err := d.sink.ReplaceAdvice(ctx, result.Products, result.Locations); err != nil {
		return fmt.Errorf("sink advice: %w", err)
	}

	if d.cache != nil {
		if err := d.cache.InvalidateAll(ctx); err != nil {
			log.Warn().Err(err).Str("run_id", runID).Msg("failed to invalidate advice cache")
		}
	}

	if d.exporter != nil {
		keys, err := d.exporter.Export(ctx, runID, result.Products, result.Locations)
		if err != nil {
			log.Warn().Err(err).Str("run_id", runID).Msg("failed to export advice")
		} else {
			log.Info().Str("run_id", runID).Strs("objects", keys).Msg("advice exported")
		}
	}
	return nil
}
