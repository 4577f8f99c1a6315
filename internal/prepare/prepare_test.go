package prepare

import (
	"context"
	"testing"
	"time"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	machines []domain.Machine
	stock    []domain.StockLevel
}

func (f *fakeSource) LoadMachines(context.Context) ([]domain.Machine, error) {
	return f.machines, nil
}

func (f *fakeSource) LoadLocationStock(context.Context) ([]domain.StockLevel, error) {
	return f.stock, nil
}

type fakeWeather struct {
	calls []time.Time
	days  map[float64][]domain.DailyWeather
}

func (f *fakeWeather) Daily(_ context.Context, lat, _ float64, _, _ time.Time) ([]domain.DailyWeather, error) {
	f.calls = append(f.calls, time.Now())
	return f.days[lat], nil
}

var base = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func tx(loc string, product int64, daysAgo int) domain.Transaction {
	return domain.Transaction{Location: loc, ProductID: product, SaleDate: base.AddDate(0, 0, -daysAgo)}
}

func products(txs []domain.Transaction) []int64 {
	var ids []int64
	for _, t := range txs {
		ids = append(ids, t.ProductID)
	}
	return ids
}

func TestRemoveUnstocked(t *testing.T) {
	src := &fakeSource{stock: []domain.StockLevel{{Location: "A", ProductID: 1}, {Location: "B", ProductID: 2}}}
	out, err := RemoveUnstocked(context.Background(), []domain.Transaction{tx("A", 1, 0), tx("A", 2, 0), tx("B", 2, 0)}, src)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, products(out))
	assert.Equal(t, "B", out[1].Location)
}

func TestRemoveStale(t *testing.T) {
	txs := []domain.Transaction{
		tx("A", 1, 0),
		tx("A", 2, 70),
		tx("B", 2, 10),
		tx("A", 3, 65),
	}

	perProduct := RemoveStale(txs, 65*24*time.Hour, false)
	assert.Equal(t, []int64{1, 2, 2}, products(perProduct))

	perLocation := RemoveStale(txs, 65*24*time.Hour, true)
	assert.Equal(t, []int64{1, 2}, products(perLocation))
	assert.Equal(t, "B", perLocation[1].Location)

	assert.Empty(t, RemoveStale(nil, time.Hour, false))
}

func TestRemoveUnderperforming(t *testing.T) {
	txs := []domain.Transaction{
		tx("A", 1, 0), tx("A", 1, 1), tx("A", 1, 40),
		tx("A", 2, 40), tx("A", 2, 41), tx("A", 2, 1),
	}
	out := RemoveUnderperforming(txs, 50, 30*24*time.Hour, false)
	assert.Equal(t, []int64{1, 1, 1}, products(out))
}

func TestAddTimeFeature(t *testing.T) {
	txs := []domain.Transaction{tx("A", 1, 0)} // Friday
	for _, f := range TimeFeatures {
		out, err := AddTimeFeature(txs, f)
		require.NoError(t, err, f)
		assert.Contains(t, out[0].Features, f)
	}

	out, err := AddTimeFeature(txs, "Weekday")
	require.NoError(t, err)
	assert.Equal(t, 4, out[0].Features["weekday"])
	assert.Nil(t, txs[0].Features, "input must not be mutated")

	_, err = AddTimeFeature(txs, "quarter")
	assert.Error(t, err)
}

func TestAddWeather(t *testing.T) {
	src := &fakeSource{machines: []domain.Machine{
		{MachineID: 1, Location: "A", Latitude: 52, Longitude: 5},
		{MachineID: 2, Location: "A", Latitude: 53, Longitude: 5},
		{MachineID: 3, Location: "B"}, // no coordinates
	}}
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	weather := &fakeWeather{days: map[float64][]domain.DailyWeather{
		52: {{Date: day, Values: map[string]float64{"tavg": 14.5, "prcp": 0.2}}},
		53: {{Date: day, Values: map[string]float64{"tavg": 99, "prcp": 9}}},
	}}

	e := NewEnricher(weather, src, 10*time.Millisecond)
	txs := []domain.Transaction{tx("A", 1, 0), tx("B", 1, 0), tx("A", 1, 1)}
	out, err := e.AddWeather(context.Background(), txs, []string{"tavg", "prcp"})
	require.NoError(t, err)

	require.Len(t, weather.calls, 2)
	assert.GreaterOrEqual(t, weather.calls[1].Sub(weather.calls[0]), 10*time.Millisecond)

	// first record per location and day wins
	assert.Equal(t, 14.5, out[0].Features["tavg"])
	assert.Equal(t, 0.2, out[0].Features["prcp"])
	assert.Nil(t, out[1].Features["tavg"])
	assert.Nil(t, out[2].Features["tavg"])

	// weather is fetched once per enricher
	_, err = e.AddWeather(context.Background(), txs, []string{"tavg"})
	require.NoError(t, err)
	assert.Len(t, weather.calls, 2)
}

func TestAddWeatherCancelled(t *testing.T) {
	src := &fakeSource{machines: []domain.Machine{
		{MachineID: 1, Location: "A", Latitude: 52, Longitude: 5},
		{MachineID: 2, Location: "A", Latitude: 53, Longitude: 5},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEnricher(&fakeWeather{}, src, time.Second)
	_, err := e.AddWeather(ctx, []domain.Transaction{tx("A", 1, 0)}, []string{"tavg"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGeneratePredictionTransactions(t *testing.T) {
	profit := 0.6
	src := &fakeSource{
		machines: []domain.Machine{
			{MachineID: 1, MachineName: "Hall", Location: "A", Latitude: 52, Longitude: 5},
			{MachineID: 2, MachineName: "Dock", Location: "C"},
		},
		stock: []domain.StockLevel{
			{Location: "A", ProductID: 10, ProductName: "Cola", GrossProfit: &profit},
			{Location: "A", ProductID: 11, ProductName: "Chips"},
			{Location: "B", ProductID: 12},
		},
	}
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

	txs, err := GeneratePredictionTransactions(context.Background(), src, 3, now)
	require.NoError(t, err)
	require.Len(t, txs, 2*4)

	assert.Equal(t, time.Date(2024, 5, 11, 18, 0, 0, 0, time.UTC), txs[0].SaleDate)
	assert.Equal(t, time.Date(2024, 5, 14, 18, 0, 0, 0, time.UTC), txs[3].SaleDate)
	assert.Equal(t, int64(10), txs[0].ProductID)
	assert.Equal(t, 0.6, txs[0].GrossProfit)
	assert.Equal(t, "Hall", txs[0].MachineName)
	assert.Equal(t, int64(11), txs[4].ProductID)

	_, err = GeneratePredictionTransactions(context.Background(), src, 0, now)
	assert.Error(t, err)
}
