package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/andresuchdata/vendcast/internal/forecast"
	"github.com/rs/zerolog/log"
)

const transactionsQuery = `
	SELECT
		"ProductId"::bigint, "ProductName", "PackagingType", "Brand", "ProductCategory",
		"GrossProfit"::text, "SaleDate", "MachineId"::bigint, "MachineName",
		"Latitude"::float8, "Longitude"::float8, "Location", "LocationType",
		"Environment", "InServiceHours", "InServiceDays"
	FROM vending.sales_transactions
	ORDER BY "SaleDate"
`

const machinesQuery = `
	SELECT
		"MachineId", "MachineName", "Latitude", "Longitude", "Location",
		"LocationType", "Environment", "InServiceHours", "InServiceDays"
	FROM vending.machines
	ORDER BY "MachineId"
`

const stockQuery = `
	SELECT
		s."Location", l."LocationName", s."ProductId", p."ProductName",
		p."PackagingType", p."Brand", p."ProductCategory",
		p."GrossProfit"::text AS "GrossProfit",
		s."AvailableCount"::float8 AS "AvailableCount",
		s."MaxCount"::float8 AS "MaxCount",
		s."DateTimeStock"
	FROM vending.location_stock s
	JOIN vending.products p ON p."ProductId" = s."ProductId"
	LEFT JOIN vending.locations l ON l."Location" = s."Location"
	ORDER BY s."Location", s."ProductId"
`

// Daily unit counts averaged per weekday over the last 13 weeks.
const baselineQuery = `
	SELECT "Location", "ProductId", weekday, AVG(units)::float8 AS "AverageSalesPerDay"
	FROM (
		SELECT
			"Location", "ProductId",
			EXTRACT(DOW FROM "SaleDate")::int AS weekday,
			date_trunc('day', "SaleDate") AS day,
			COUNT(*) AS units
		FROM vending.sales_transactions
		WHERE "SaleDate" >= NOW() - INTERVAL '91 days'
		GROUP BY 1, 2, 3, 4
	) daily
	GROUP BY 1, 2, 3
`

// Sources reads transactions and auxiliary data from Postgres.
type Sources struct {
	db *DB
}

func NewSources(db *DB) *Sources {
	return &Sources{db: db}
}

// LoadTransactions reads the transaction view and runs it through the
// schema guard.
func (s *Sources) LoadTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := s.db.QueryxContext(ctx, transactionsQuery)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("error reading transaction columns: %w", err)
	}

	table := forecast.Table{Columns: columns}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("error scanning transaction: %w", err)
		}
		for i, v := range values {
			// text can arrive as raw bytes depending on the driver
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	txs, err := forecast.DecodeTransactions(table)
	if err != nil {
		return nil, err
	}

	log.Info().Int("rows", len(txs)).Msg("transactions loaded")
	return txs, nil
}

type machineRow struct {
	MachineID      int64           `db:"MachineId"`
	MachineName    sql.NullString  `db:"MachineName"`
	Latitude       sql.NullFloat64 `db:"Latitude"`
	Longitude      sql.NullFloat64 `db:"Longitude"`
	Location       string          `db:"Location"`
	LocationType   sql.NullString  `db:"LocationType"`
	Environment    sql.NullString  `db:"Environment"`
	InServiceHours sql.NullString  `db:"InServiceHours"`
	InServiceDays  sql.NullString  `db:"InServiceDays"`
}

func (s *Sources) LoadMachines(ctx context.Context) ([]domain.Machine, error) {
	var rows []machineRow
	if err := s.db.SelectContext(ctx, &rows, machinesQuery); err != nil {
		return nil, fmt.Errorf("error getting machines: %w", err)
	}

	machines := make([]domain.Machine, 0, len(rows))
	for _, r := range rows {
		machines = append(machines, domain.Machine{
			MachineID:      r.MachineID,
			MachineName:    r.MachineName.String,
			Latitude:       r.Latitude.Float64,
			Longitude:      r.Longitude.Float64,
			Location:       r.Location,
			LocationType:   r.LocationType.String,
			Environment:    r.Environment.String,
			InServiceHours: r.InServiceHours.String,
			InServiceDays:  r.InServiceDays.String,
		})
	}
	return machines, nil
}

type stockRow struct {
	Location        string          `db:"Location"`
	LocationName    sql.NullString  `db:"LocationName"`
	ProductID       int64           `db:"ProductId"`
	ProductName     sql.NullString  `db:"ProductName"`
	PackagingType   sql.NullString  `db:"PackagingType"`
	Brand           sql.NullString  `db:"Brand"`
	ProductCategory sql.NullString  `db:"ProductCategory"`
	GrossProfit     sql.NullString  `db:"GrossProfit"`
	AvailableCount  sql.NullFloat64 `db:"AvailableCount"`
	MaxCount        sql.NullFloat64 `db:"MaxCount"`
	DateTimeStock   sql.NullTime    `db:"DateTimeStock"`
}

func (r stockRow) toDomain() domain.StockLevel {
	level := domain.StockLevel{
		Location:        r.Location,
		LocationName:    r.LocationName.String,
		ProductID:       r.ProductID,
		ProductName:     r.ProductName.String,
		PackagingType:   r.PackagingType.String,
		Brand:           r.Brand.String,
		ProductCategory: r.ProductCategory.String,
		AvailableCount:  math.NaN(),
		MaxCount:        r.MaxCount.Float64,
		StockedAt:       r.DateTimeStock.Time,
	}
	if r.AvailableCount.Valid {
		level.AvailableCount = r.AvailableCount.Float64
	}
	if gp := forecast.ParseAmount(r.GrossProfit.String); r.GrossProfit.Valid && !math.IsNaN(gp) {
		level.GrossProfit = &gp
	}
	return level
}

func (s *Sources) LoadLocationStock(ctx context.Context) ([]domain.StockLevel, error) {
	var rows []stockRow
	if err := s.db.SelectContext(ctx, &rows, stockQuery); err != nil {
		return nil, fmt.Errorf("error getting location stock: %w", err)
	}

	levels := make([]domain.StockLevel, 0, len(rows))
	for _, r := range rows {
		levels = append(levels, r.toDomain())
	}
	return levels, nil
}

// LoadGrossProfit reports the gross profit of every stocked product, as
// carried by the stock query.
func (s *Sources) LoadGrossProfit(ctx context.Context) ([]domain.PriceEntry, error) {
	levels, err := s.LoadLocationStock(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.PriceEntry, 0, len(levels))
	for _, l := range levels {
		entries = append(entries, domain.PriceEntry{ProductID: l.ProductID, GrossProfit: l.GrossProfit})
	}
	return entries, nil
}

type baselineRow struct {
	Location  string          `db:"Location"`
	ProductID sql.NullInt64   `db:"ProductId"`
	Weekday   sql.NullInt32   `db:"weekday"`
	AvgPerDay sql.NullFloat64 `db:"AverageSalesPerDay"`
}

// LoadBaseline returns the historical average sales per day. Rows with a
// missing product or average are dropped.
func (s *Sources) LoadBaseline(ctx context.Context) ([]domain.BaselineSales, error) {
	var rows []baselineRow
	if err := s.db.SelectContext(ctx, &rows, baselineQuery); err != nil {
		return nil, fmt.Errorf("error getting baseline sales: %w", err)
	}

	out := make([]domain.BaselineSales, 0, len(rows))
	for _, r := range rows {
		if !r.ProductID.Valid || !r.AvgPerDay.Valid {
			continue
		}
		b := domain.BaselineSales{Location: r.Location, ProductID: r.ProductID.Int64, AvgPerDay: r.AvgPerDay.Float64}
		if r.Weekday.Valid {
			wd := time.Weekday(r.Weekday.Int32)
			b.Weekday = &wd
		}
		out = append(out, b)
	}
	return out, nil
}
