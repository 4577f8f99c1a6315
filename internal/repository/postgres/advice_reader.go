package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/vendcast/internal/config"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	undefinedTable     = "42P01"
	missedProfitPrefix = "Missed gross profit"
)

// AdviceReader reads the persisted refill advice tables. Their day columns
// change with every run, so rows are returned as column maps.
type AdviceReader struct {
	db  *DB
	cfg config.SinkConfig
}

func NewAdviceReader(db *DB, cfg config.SinkConfig) *AdviceReader {
	return &AdviceReader{db: db, cfg: cfg}
}

func (r *AdviceReader) qualified(table string) string {
	if r.cfg.Schema == "" {
		return pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(r.cfg.Schema) + "." + pq.QuoteIdentifier(table)
}

// ProductAdvice returns the per-product advice, optionally for one location.
func (r *AdviceReader) ProductAdvice(ctx context.Context, location string) ([]map[string]any, error) {
	query := fmt.Sprintf(`SELECT * FROM %s`, r.qualified(r.cfg.ProductTable))
	var args []any
	if location != "" {
		query += ` WHERE "Location" = $1`
		args = append(args, location)
	}
	query += ` ORDER BY "refill_date" NULLS LAST, "Location", "ProductId"`

	return r.selectMaps(ctx, query, args...)
}

// LocationAdvice returns the per-location advice.
func (r *AdviceReader) LocationAdvice(ctx context.Context) ([]map[string]any, error) {
	query := fmt.Sprintf(`SELECT * FROM %s ORDER BY "refill_date" NULLS LAST, "Location"`,
		r.qualified(r.cfg.LocationTable))
	return r.selectMaps(ctx, query)
}

func (r *AdviceReader) selectMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		if isUndefinedTable(err) {
			return []map[string]any{}, nil
		}
		return nil, fmt.Errorf("error querying refill advice: %w", err)
	}
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("error scanning refill advice: %w", err)
		}
		for k, v := range row {
			row[k] = normalize(k, v)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalize decodes missed profit columns, which drivers hand back as text
// or bytes, into numbers.
func normalize(column string, v any) any {
	var text string
	switch x := v.(type) {
	case []byte:
		text = string(x)
	case string:
		text = x
	default:
		return v
	}
	if strings.HasPrefix(column, missedProfitPrefix) {
		if d, err := decimal.NewFromString(text); err == nil {
			return d.InexactFloat64()
		}
	}
	return text
}

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == undefinedTable
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == undefinedTable
	}
	return false
}
