package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const runsDDL = `
	CREATE TABLE IF NOT EXISTS forecast_runs (
		id                   TEXT PRIMARY KEY,
		status               TEXT NOT NULL,
		stage                TEXT NOT NULL DEFAULT '',
		predictor            TEXT NOT NULL DEFAULT '',
		transaction_rows     INTEGER NOT NULL DEFAULT 0,
		prediction_rows      INTEGER NOT NULL DEFAULT 0,
		forecast_rows        INTEGER NOT NULL DEFAULT 0,
		corrected_rows       INTEGER NOT NULL DEFAULT 0,
		corrected_ratio      DOUBLE PRECISION NOT NULL DEFAULT 0,
		product_advice_rows  INTEGER NOT NULL DEFAULT 0,
		location_advice_rows INTEGER NOT NULL DEFAULT 0,
		started_at           TIMESTAMPTZ NOT NULL,
		completed_at         TIMESTAMPTZ,
		error_message        TEXT NOT NULL DEFAULT ''
	)
`

const runColumns = `id, status, stage, predictor, transaction_rows, prediction_rows,
	forecast_rows, corrected_rows, corrected_ratio, product_advice_rows,
	location_advice_rows, started_at, completed_at, error_message`

// Repository handles database operations for forecast run tracking
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new forecast run repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// EnsureTable creates the forecast_runs table when it does not exist yet.
func (r *Repository) EnsureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, runsDDL); err != nil {
		return fmt.Errorf("failed to create forecast_runs: %w", err)
	}
	return nil
}

// CreateRun inserts a new run record
func (r *Repository) CreateRun(ctx context.Context, run *ForecastRun) error {
	query := `INSERT INTO forecast_runs (` + runColumns + `) VALUES (
		:id, :status, :stage, :predictor, :transaction_rows, :prediction_rows,
		:forecast_rows, :corrected_rows, :corrected_ratio, :product_advice_rows,
		:location_advice_rows, :started_at, :completed_at, :error_message
	)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("failed to create forecast run: %w", err)
	}
	return nil
}

// UpdateRun overwrites the mutable columns of an existing run
func (r *Repository) UpdateRun(ctx context.Context, run *ForecastRun) error {
	query := `
		UPDATE forecast_runs
		SET status = :status, stage = :stage, transaction_rows = :transaction_rows,
		    prediction_rows = :prediction_rows, forecast_rows = :forecast_rows,
		    corrected_rows = :corrected_rows, corrected_ratio = :corrected_ratio,
		    product_advice_rows = :product_advice_rows,
		    location_advice_rows = :location_advice_rows,
		    completed_at = :completed_at, error_message = :error_message
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("failed to update forecast run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("forecast run %s not found", run.ID)
	}
	return nil
}

// GetRun retrieves a run by id; it returns nil when there is none.
func (r *Repository) GetRun(ctx context.Context, id string) (*ForecastRun, error) {
	run := &ForecastRun{}
	err := r.db.GetContext(ctx, run, `SELECT `+runColumns+` FROM forecast_runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get forecast run %s: %w", id, err)
	}
	return run, nil
}

// ListRecent returns the latest runs, newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]ForecastRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs := []ForecastRun{}
	query := `SELECT ` + runColumns + ` FROM forecast_runs ORDER BY started_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list forecast runs: %w", err)
	}
	return runs, nil
}
