package forecast

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAux struct {
	stock      []domain.StockLevel
	prices     []domain.PriceEntry
	stockCalls int
	priceCalls int
}

func (f *fakeAux) LoadLocationStock(context.Context) ([]domain.StockLevel, error) {
	f.stockCalls++
	return f.stock, nil
}

func (f *fakeAux) LoadGrossProfit(context.Context) ([]domain.PriceEntry, error) {
	f.priceCalls++
	return f.prices, nil
}

func price(id int64, v float64) domain.PriceEntry {
	return domain.PriceEntry{ProductID: id, GrossProfit: &v}
}

func fourDays(rows ...[]float64) CumulativeSales {
	return CumulativeSales{Dates: []time.Time{day(1), day(2), day(3), day(4)}, Values: rows}
}

func TestLostSales(t *testing.T) {
	aux := &fakeAux{stock: []domain.StockLevel{
		{Location: "L1", ProductID: 1, AvailableCount: 20},
		{Location: "L1", ProductID: 2, AvailableCount: 3},
	}}
	sales := fourDays([]float64{2, 5, 9, 14}, []float64{1, 3, 4, 8}, []float64{5, 5, 5, 5})
	sales.Keys = []SalesKey{{"L1", 1}, {"L1", 2}, {"L2", 1}}

	tr := NewBusinessTranslator(aux, 0)
	lost, err := tr.LostSales(context.Background(), sales)
	require.NoError(t, err)

	// stock covers every date
	row, ok := lost.Row(SalesKey{"L1", 1})
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0, 0, 0}, row)

	row, ok = lost.Row(SalesKey{"L1", 2})
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0, 1, 5}, row)

	// no stock entry, so the row is gone
	_, ok = lost.Row(SalesKey{"L2", 1})
	assert.False(t, ok)
	assert.Equal(t, 1, tr.Report().UnstockedRows)
}

func TestLostSalesDropsUnknownStock(t *testing.T) {
	aux := &fakeAux{stock: []domain.StockLevel{
		{Location: "L1", ProductID: 1, AvailableCount: math.NaN()},
		{Location: "L1", ProductID: 2, AvailableCount: 0},
	}}
	sales := fourDays([]float64{10, 10, 10, 10}, []float64{1, 2, 3, 4})
	sales.Keys = []SalesKey{{"L1", 1}, {"L1", 2}}

	tr := NewBusinessTranslator(aux, 0)
	lost, err := tr.LostSales(context.Background(), sales)
	require.NoError(t, err)

	_, ok := lost.Row(SalesKey{"L1", 1})
	assert.False(t, ok, "unknown stock cannot be judged")

	// zero stock is known stock: everything forecast is lost
	row, ok := lost.Row(SalesKey{"L1", 2})
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3, 4}, row)
	assert.Equal(t, 1, tr.Report().UnstockedRows)
}

func TestTranslateEndToEnd(t *testing.T) {
	aux := &fakeAux{
		stock: []domain.StockLevel{
			{Location: "L1", LocationName: "Station", ProductID: 1, ProductName: "Cola", AvailableCount: 10},
		},
		prices: []domain.PriceEntry{price(1, 2.0)},
	}
	sales := fourDays([]float64{2, 5, 9, 14})
	sales.Keys = []SalesKey{{"L1", 1}}

	tr := NewBusinessTranslator(aux, DefaultAllowableMissedProfit).WithClock(fixedNow)
	res, err := tr.Translate(context.Background(), sales)
	require.NoError(t, err)

	require.Len(t, res.Products.Rows, 1)
	row := res.Products.Rows[0]
	assert.Equal(t, []float64{0, 0, 0, 8}, row.MissedProfit)
	require.NotNil(t, row.RefillDate)
	assert.Equal(t, day(4), *row.RefillDate)
	assert.Equal(t, "Cola", *row.ProductName)
	assert.Equal(t, "Station", *row.LocationName)
	assert.Equal(t, int64(1), *row.ProductID)

	assert.Equal(t, []string{
		"Missed gross profit in +1 days",
		"Missed gross profit in +2 days",
		"Missed gross profit in +3 days",
		"Missed gross profit in +4 days",
	}, res.Products.DayLabels)

	require.Len(t, res.Locations.Rows, 1)
	loc := res.Locations.Rows[0]
	assert.Equal(t, "L1", loc.Location)
	assert.Nil(t, loc.ProductID)
	assert.Equal(t, []float64{0, 0, 0, 8}, loc.MissedProfit)
	assert.Equal(t, day(4), *loc.RefillDate)
}

func TestTranslateRecoversMissingReferences(t *testing.T) {
	aux := &fakeAux{
		stock: []domain.StockLevel{
			{Location: "L1", ProductID: 1, ProductName: "Cola", AvailableCount: 0},
			{Location: "L1", ProductID: 2, AvailableCount: 0},
			{Location: "L2", LocationName: "Depot", ProductID: 1, ProductName: "Cola", AvailableCount: 0},
		},
		prices: []domain.PriceEntry{price(1, 1.5), price(3, -2), {ProductID: 4}},
	}
	sales := fourDays([]float64{1, 2, 3, 4}, []float64{4, 8, 12, 16}, []float64{2, 4, 6, 8})
	sales.Keys = []SalesKey{{"L1", 1}, {"L1", 2}, {"L2", 1}}

	tr := NewBusinessTranslator(aux, 5).WithClock(fixedNow)
	res, err := tr.Translate(context.Background(), sales)
	require.NoError(t, err)

	byKey := map[SalesKey]domain.RefillAdviceRow{}
	for _, r := range res.Products.Rows {
		byKey[SalesKey{r.Location, *r.ProductID}] = r
	}

	// product 2 has no price: zero turnover, no name
	unpriced := byKey[SalesKey{"L1", 2}]
	assert.Equal(t, []float64{0, 0, 0, 0}, unpriced.MissedProfit)
	assert.Nil(t, unpriced.ProductName)
	assert.Nil(t, unpriced.RefillDate)
	assert.Nil(t, unpriced.LocationName)

	priced := byKey[SalesKey{"L2", 1}]
	assert.Equal(t, []float64{3, 6, 9, 12}, priced.MissedProfit)
	assert.Equal(t, day(2), *priced.RefillDate)
	assert.Equal(t, "Depot", *priced.LocationName)

	report := res.Report
	assert.Equal(t, 1, report.UnpricedRows)
	assert.Equal(t, 2, report.InvalidPrices)
	assert.Equal(t, 3, report.LostSalesRows)

	require.Len(t, res.Locations.Rows, 2)
	assert.Equal(t, "L1", res.Locations.Rows[0].Location)
	assert.Equal(t, []float64{1.5, 3, 4.5, 6}, res.Locations.Rows[0].MissedProfit)
	assert.Equal(t, day(4), *res.Locations.Rows[0].RefillDate)
}

func TestTranslatorLoadsAuxiliaryDataOnce(t *testing.T) {
	aux := &fakeAux{
		stock:  []domain.StockLevel{{Location: "L1", ProductID: 1, AvailableCount: 1}},
		prices: []domain.PriceEntry{price(1, 1)},
	}
	sales := fourDays([]float64{1, 2, 3, 4})
	sales.Keys = []SalesKey{{"L1", 1}, {"L2", 9}}

	tr := NewBusinessTranslator(aux, 0)
	var reports []TranslationReport
	for i := 0; i < 3; i++ {
		res, err := tr.Translate(context.Background(), sales)
		require.NoError(t, err)
		reports = append(reports, res.Report)
	}
	assert.Equal(t, 1, aux.stockCalls)
	assert.Equal(t, 1, aux.priceCalls)

	// counters describe one call, they do not pile up across calls
	assert.Equal(t, 1, reports[0].UnstockedRows)
	assert.Equal(t, 1, reports[0].MissingProductNames)
	assert.Equal(t, 2, reports[0].MissingLocationNames)
	assert.Equal(t, reports[0], reports[2])
}

func TestGroupByLocation(t *testing.T) {
	m := DateMatrix[SalesKey]{
		Keys:   []SalesKey{{"B", 1}, {"A", 1}, {"B", 2}},
		Dates:  []time.Time{day(1), day(2)},
		Values: [][]float64{{1, 2}, {5, 5}, {3, 4}},
	}
	grouped := GroupByLocation(m)
	assert.Equal(t, []string{"A", "B"}, grouped.Keys)
	assert.Equal(t, [][]float64{{5, 5}, {4, 6}}, grouped.Values)
}
