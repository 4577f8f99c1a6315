package prepare

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/rs/zerolog/log"
)

// StockSource delivers the current stock per location.
type StockSource interface {
	LoadLocationStock(ctx context.Context) ([]domain.StockLevel, error)
}

type productKey struct {
	location  string
	productID int64
}

func keyOf(tx domain.Transaction, perLocation bool) productKey {
	if perLocation {
		return productKey{location: tx.Location, productID: tx.ProductID}
	}
	return productKey{productID: tx.ProductID}
}

// RemoveUnstocked drops transactions of (Location, ProductId) pairs the
// location does not stock anymore.
func RemoveUnstocked(ctx context.Context, txs []domain.Transaction, src StockSource) ([]domain.Transaction, error) {
	levels, err := src.LoadLocationStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("load location stock: %w", err)
	}

	stocked := make(map[productKey]struct{}, len(levels))
	for _, s := range levels {
		stocked[productKey{location: s.Location, productID: s.ProductID}] = struct{}{}
	}

	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if _, ok := stocked[keyOf(tx, true)]; ok {
			out = append(out, tx)
		}
	}

	log.Info().Int("before", len(txs)).Int("after", len(out)).Msg("removed unstocked products")
	return out, nil
}

func latestSale(txs []domain.Transaction) time.Time {
	var latest time.Time
	for _, tx := range txs {
		if tx.SaleDate.After(latest) {
			latest = tx.SaleDate
		}
	}
	return latest
}

// RemoveStale drops products whose last sale is at or before the newest
// sale minus window. With perLocation the last sale is judged per
// (Location, ProductId) instead of per product.
func RemoveStale(txs []domain.Transaction, window time.Duration, perLocation bool) []domain.Transaction {
	if len(txs) == 0 {
		return txs
	}
	cutoff := latestSale(txs).Add(-window)

	last := make(map[productKey]time.Time)
	for _, tx := range txs {
		k := keyOf(tx, perLocation)
		if tx.SaleDate.After(last[k]) {
			last[k] = tx.SaleDate
		}
	}

	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if last[keyOf(tx, perLocation)].After(cutoff) {
			out = append(out, tx)
		}
	}

	log.Info().
		Int("before", len(txs)).
		Int("after", len(out)).
		Dur("window", window).
		Bool("per_location", perLocation).
		Msg("removed products with no recent sales")
	return out
}

// RemoveUnderperforming drops products that made less than percentage of
// their sales after the newest sale minus window.
func RemoveUnderperforming(txs []domain.Transaction, percentage float64, window time.Duration, perLocation bool) []domain.Transaction {
	if len(txs) == 0 {
		return txs
	}
	cutoff := latestSale(txs).Add(-window)

	total := make(map[productKey]int)
	recent := make(map[productKey]int)
	for _, tx := range txs {
		k := keyOf(tx, perLocation)
		total[k]++
		if tx.SaleDate.After(cutoff) {
			recent[k]++
		}
	}

	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		k := keyOf(tx, perLocation)
		if float64(recent[k])/float64(total[k])*100 >= percentage {
			out = append(out, tx)
		}
	}

	log.Info().
		Int("before", len(txs)).
		Int("after", len(out)).
		Float64("percentage", percentage).
		Msg("removed underperforming products")
	return out
}
