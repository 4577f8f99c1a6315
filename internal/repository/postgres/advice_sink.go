package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/vendcast/internal/config"
	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// AdviceSink replaces the two refill advice tables on every run.
type AdviceSink struct {
	db  *DB
	cfg config.SinkConfig
	now func() time.Time
}

func NewAdviceSink(db *DB, cfg config.SinkConfig) *AdviceSink {
	return &AdviceSink{db: db, cfg: cfg, now: time.Now}
}

// ReplaceAdvice drops, recreates and fills both tables in one transaction,
// so readers see either the previous run or this one.
func (s *AdviceSink) ReplaceAdvice(ctx context.Context, products, locations domain.RefillAdviceTable) error {
	generatedAt := s.now()
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.replace(ctx, tx, s.cfg.ProductTable, products, true, generatedAt); err != nil {
			return err
		}
		return s.replace(ctx, tx, s.cfg.LocationTable, locations, false, generatedAt)
	})
}

func (s *AdviceSink) qualified(table string) string {
	if s.cfg.Schema == "" {
		return pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(s.cfg.Schema) + "." + pq.QuoteIdentifier(table)
}

// AdviceColumns lists the persisted columns of an advice table in order.
func AdviceColumns(t domain.RefillAdviceTable, perProduct bool) []string {
	return append(t.Columns(perProduct), "generated_at")
}

func (s *AdviceSink) replace(ctx context.Context, tx *sqlx.Tx, table string, t domain.RefillAdviceTable, perProduct bool, generatedAt time.Time) error {
	name := s.qualified(table)
	cols := AdviceColumns(t, perProduct)

	defs := make([]string, 0, len(cols))
	quoted := make([]string, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for i, col := range cols {
		quoted = append(quoted, pq.QuoteIdentifier(col))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		defs = append(defs, pq.QuoteIdentifier(col)+" "+columnType(col))
	}

	if s.cfg.Schema != "" {
		if _, err := tx.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(s.cfg.Schema)); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", s.cfg.Schema, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("failed to drop %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}

	stmt, err := tx.PreparexContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		name, strings.Join(quoted, ", "), strings.Join(placeholders, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range t.Rows {
		if _, err := stmt.ExecContext(ctx, adviceArgs(row, perProduct, generatedAt)...); err != nil {
			return fmt.Errorf("failed to insert advice row for %s: %w", row.Location, err)
		}
	}

	log.Info().Str("table", name).Int("rows", len(t.Rows)).Msg("refill advice table replaced")
	return nil
}

func columnType(col string) string {
	switch col {
	case "Location", "ProductName", "LocationName":
		return "TEXT"
	case "ProductId":
		return "BIGINT"
	case "refill_date":
		return "DATE"
	case "generated_at":
		return "TIMESTAMPTZ NOT NULL"
	default:
		return "NUMERIC(14,2) NOT NULL"
	}
}

func adviceArgs(row domain.RefillAdviceRow, perProduct bool, generatedAt time.Time) []any {
	args := []any{row.Location}
	if perProduct {
		args = append(args, row.ProductID)
	}
	for _, v := range row.MissedProfit {
		args = append(args, decimal.NewFromFloat(v).Round(2))
	}
	args = append(args, row.RefillDate)
	if perProduct {
		args = append(args, row.ProductName)
	}
	return append(args, row.LocationName, generatedAt)
}
