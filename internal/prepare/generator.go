package prepare

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/rs/zerolog/log"
)

// PredictionSource delivers what the prediction rows are built from.
type PredictionSource interface {
	MachineSource
	StockSource
}

// PredictionDates returns 18:00 on each of the days+1 days after now, in
// now's location. The extra day keeps a full lookahead window available
// after today.
func PredictionDates(now time.Time, days int) []time.Time {
	y, m, d := now.Date()
	evening := time.Date(y, m, d, 18, 0, 0, 0, now.Location())

	dates := make([]time.Time, 0, days+1)
	for i := 1; i <= days+1; i++ {
		dates = append(dates, evening.AddDate(0, 0, i))
	}
	return dates
}

// GeneratePredictionTransactions builds one transaction for every machine,
// every product stocked at the machine's location and every prediction
// date. The rows carry no sales meaning; they give the encoder full date
// coverage at prediction time.
func GeneratePredictionTransactions(ctx context.Context, src PredictionSource, days int, now time.Time) ([]domain.Transaction, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days of prediction must be positive, got %d", days)
	}

	machines, err := src.LoadMachines(ctx)
	if err != nil {
		return nil, fmt.Errorf("load machines: %w", err)
	}
	levels, err := src.LoadLocationStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("load location stock: %w", err)
	}

	byLocation := make(map[string][]domain.StockLevel)
	for _, s := range levels {
		byLocation[s.Location] = append(byLocation[s.Location], s)
	}

	dates := PredictionDates(now, days)
	var txs []domain.Transaction
	for _, m := range machines {
		for _, s := range byLocation[m.Location] {
			profit := math.NaN()
			if s.GrossProfit != nil {
				profit = *s.GrossProfit
			}
			for _, date := range dates {
				txs = append(txs, domain.Transaction{
					ProductID:       s.ProductID,
					ProductName:     s.ProductName,
					PackagingType:   s.PackagingType,
					Brand:           s.Brand,
					ProductCategory: s.ProductCategory,
					GrossProfit:     profit,
					SaleDate:        date,
					MachineID:       m.MachineID,
					MachineName:     m.MachineName,
					Latitude:        m.Latitude,
					Longitude:       m.Longitude,
					Location:        m.Location,
					LocationType:    m.LocationType,
					Environment:     m.Environment,
					InServiceHours:  m.InServiceHours,
					InServiceDays:   m.InServiceDays,
				})
			}
		}
	}

	log.Info().
		Int("machines", len(machines)).
		Int("days", days).
		Int("rows", len(txs)).
		Msg("prediction data created")
	return txs, nil
}
