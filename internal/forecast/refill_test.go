package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefillDates(t *testing.T) {
	dates := []time.Time{day(1), day(2), day(3)}
	tests := []struct {
		name string
		row  []float64
		want *time.Time
	}{
		{name: "middle date exceeds", row: []float64{3, 8, 2}, want: &dates[1]},
		{name: "nearest exceeding date wins", row: []float64{6, 8, 9}, want: &dates[0]},
		{name: "equal to threshold does not exceed", row: []float64{5, 5, 5}},
		{name: "nothing exceeds", row: []float64{0, 0, 0}},
		// a late exceedance is kept when nearer dates stay below the threshold
		{name: "only the furthest date exceeds", row: []float64{1, 2, 30}, want: &dates[2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := DateMatrix[string]{Keys: []string{"L"}, Dates: dates, Values: [][]float64{tt.row}}
			got := RefillDates(m, 5)
			require.Len(t, got, 1)
			if tt.want == nil {
				assert.Nil(t, got[0])
				return
			}
			require.NotNil(t, got[0])
			assert.Equal(t, *tt.want, *got[0])
		})
	}
}

func TestRelativeDayLabel(t *testing.T) {
	today := time.Date(2024, 5, 10, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "Missed gross profit in +1 days", RelativeDayLabel(day(1), today))
	assert.Equal(t, "Missed gross profit in +0 days", RelativeDayLabel(today, today))

	labels := RelativeDayLabels([]time.Time{day(2), day(3)}, today)
	assert.Equal(t, []string{"Missed gross profit in +2 days", "Missed gross profit in +3 days"}, labels)
}

func TestBuildPriceLookup(t *testing.T) {
	nan := math.NaN()
	lookup, invalid := BuildPriceLookup([]domain.PriceEntry{
		price(1, 0.75),
		price(2, -1),
		{ProductID: 3},
		{ProductID: 4, GrossProfit: &nan},
		price(5, 0.5),
		price(5, 0.9),
	})

	assert.Equal(t, 3, invalid)
	assert.Equal(t, map[int64]float64{1: 0.75, 2: 0, 3: 0, 4: 0, 5: 0.9}, lookup)
	for _, v := range lookup {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}
