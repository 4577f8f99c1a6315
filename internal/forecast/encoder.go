package forecast

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/rs/zerolog/log"
)

// Granularity is the width of the time bucket transactions are grouped in.
type Granularity string

const (
	Daily  Granularity = "D"
	Hourly Granularity = "H"
)

// ParseGranularity accepts "D" and "H" in any case; empty means Daily.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "D":
		return Daily, nil
	case "H":
		return Hourly, nil
	}
	return "", fmt.Errorf("unsupported granularity %q", s)
}

// Bucket returns the start of the bucket t falls in, as a UTC wall clock.
func (g Granularity) Bucket(t time.Time) time.Time {
	y, m, d := t.Date()
	if g == Hourly {
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, time.UTC)
	}
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ForcedFeatures are carried into X even when they vary inside a group:
// several machines far apart can share one location id.
var ForcedFeatures = []string{domain.ColLatitude, domain.ColLongitude, "tavg", "prcp"}

type encodeGroup struct {
	key  RowKey
	rows []int
}

// FrequencyEncode groups transactions by (bucket, Location). Y counts units
// per product id for every group; X carries the columns whose non-null
// values are constant inside every group, plus ForcedFeatures, taking the
// first non-null value of each group. Rows come out ordered by bucket, then
// location, and groups without transactions never appear.
func FrequencyEncode(txs []domain.Transaction, g Granularity) (FeatureMatrix, TargetMatrix, error) {
	if g != Daily && g != Hourly {
		return FeatureMatrix{}, TargetMatrix{}, fmt.Errorf("unsupported granularity %q", g)
	}

	groups := make(map[RowKey]*encodeGroup)
	for i, tx := range txs {
		key := RowKey{Bucket: g.Bucket(tx.SaleDate), Location: tx.Location}
		grp, ok := groups[key]
		if !ok {
			grp = &encodeGroup{key: key}
			groups[key] = grp
		}
		grp.rows = append(grp.rows, i)
	}

	ordered := make([]*encodeGroup, 0, len(groups))
	for _, grp := range groups {
		ordered = append(ordered, grp)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i].key, ordered[j].key
		if !a.Bucket.Equal(b.Bucket) {
			return a.Bucket.Before(b.Bucket)
		}
		return a.Location < b.Location
	})

	index := make([]RowKey, len(ordered))
	for i, grp := range ordered {
		index[i] = grp.key
	}

	columns := featureColumns(txs, ordered)
	x := FeatureMatrix{Index: index, Columns: columns, Values: make([][]any, len(ordered))}
	for i, grp := range ordered {
		row := make([]any, len(columns))
		for j, col := range columns {
			row[j] = firstValue(txs, grp.rows, col)
		}
		x.Values[i] = row
	}

	y := encodeTargets(txs, ordered, index)

	log.Info().
		Int("transactions", len(txs)).
		Int("rows", len(index)).
		Int("features", len(columns)).
		Int("products", len(y.Columns)).
		Str("granularity", string(g)).
		Msg("frequency encoded transactions")

	return x, y, nil
}

func encodeTargets(txs []domain.Transaction, groups []*encodeGroup, index []RowKey) TargetMatrix {
	seen := make(map[int64]struct{})
	for _, tx := range txs {
		seen[tx.ProductID] = struct{}{}
	}
	products := make([]int64, 0, len(seen))
	for id := range seen {
		products = append(products, id)
	}
	slices.Sort(products)

	col := make(map[int64]int, len(products))
	for j, id := range products {
		col[id] = j
	}

	values := make([][]float64, len(groups))
	for i, grp := range groups {
		counts := make([]float64, len(products))
		for _, r := range grp.rows {
			counts[col[txs[r].ProductID]]++
		}
		values[i] = counts
	}

	return TargetMatrix{Index: index, Columns: products, Values: values}
}

// featureColumns picks the group-constant columns and the forced features
// present in the data, sorted by name.
func featureColumns(txs []domain.Transaction, groups []*encodeGroup) []string {
	present := make(map[string]struct{})
	for _, col := range domain.TransactionColumns {
		if col == domain.ColSaleDate || col == domain.ColLocation {
			continue
		}
		present[col] = struct{}{}
	}
	for _, tx := range txs {
		for name := range tx.Features {
			present[name] = struct{}{}
		}
	}

	var selected []string
	for name := range present {
		if slices.Contains(ForcedFeatures, name) || constantInGroups(txs, groups, name) {
			selected = append(selected, name)
		}
	}
	sort.Strings(selected)
	return selected
}

func constantInGroups(txs []domain.Transaction, groups []*encodeGroup, col string) bool {
	for _, grp := range groups {
		var first any
		found := false
		for _, r := range grp.rows {
			v, ok := txs[r].Column(col)
			if !ok || domain.IsMissing(v) {
				continue
			}
			if !found {
				first, found = v, true
				continue
			}
			if !sameValue(first, v) {
				return false
			}
		}
	}
	return true
}

func firstValue(txs []domain.Transaction, rows []int, col string) any {
	for _, r := range rows {
		if v, ok := txs[r].Column(col); ok && !domain.IsMissing(v) {
			return v
		}
	}
	return nil
}

func sameValue(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}
