package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time { return time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC) }

func staticBaseline(rows ...domain.BaselineSales) BaselineLoader {
	return BaselineLoaderFunc(func(context.Context) ([]domain.BaselineSales, error) {
		return rows, nil
	})
}

func outlierFixture() CumulativeSales {
	return CumulativeSales{
		Keys:  []SalesKey{{"L", 1}, {"L", 2}, {"L", 3}, {"L", 4}, {"L", 5}},
		Dates: []time.Time{day(1), day(2), day(3), day(4)},
		Values: [][]float64{
			{1, 2, 3, 4},
			{1, 2, 3, 4},
			{1, 2, 3, 4},
			{1, 2, 3, 4},
			{10, 20, 30, 40},
		},
	}
}

func flatBaseline(rate float64, ids ...int64) []domain.BaselineSales {
	var rows []domain.BaselineSales
	for _, id := range ids {
		rows = append(rows, domain.BaselineSales{Location: "L", ProductID: id, AvgPerDay: rate})
	}
	return rows
}

func TestOutlierCorrectorFlagsDivergentRow(t *testing.T) {
	c := &OutlierCorrector{StdDevs: 1, Now: fixedNow}
	sales := outlierFixture()

	corrected, report, err := c.Correct(context.Background(), sales, 3, staticBaseline(flatBaseline(1, 1, 2, 3, 4, 5)...))
	require.NoError(t, err)

	assert.Equal(t, []SalesKey{{"L", 5}}, report.Flagged)
	assert.Equal(t, 5, report.Compared)
	assert.Equal(t, 1, report.Corrected)
	assert.InDelta(t, 0.2, report.Ratio, 1e-9)
	assert.InDelta(t, 5.367, report.StdDev, 1e-3)

	row, _ := corrected.Row(SalesKey{"L", 5})
	assert.Equal(t, []float64{1, 2, 3, 4}, row)

	// input is left alone
	assert.Equal(t, []float64{10, 20, 30, 40}, sales.Values[4])
}

func TestOutlierCorrectorIdempotent(t *testing.T) {
	c := &OutlierCorrector{Now: fixedNow}
	baseline := staticBaseline(flatBaseline(1, 1, 2, 3, 4, 5)...)

	first, _, err := c.Correct(context.Background(), outlierFixture(), 3, baseline)
	require.NoError(t, err)
	second, _, err := c.Correct(context.Background(), first, 3, baseline)
	require.NoError(t, err)

	for i := range first.Values {
		assert.InDeltaSlice(t, first.Values[i], second.Values[i], 1e-9)
	}
}

func TestOutlierCorrectorLeavesRowsWithoutBaseline(t *testing.T) {
	c := &OutlierCorrector{Now: fixedNow}

	// product 5 has no baseline, so it cannot be judged
	corrected, report, err := c.Correct(context.Background(), outlierFixture(), 3, staticBaseline(flatBaseline(1, 1, 2, 3, 4)...))
	require.NoError(t, err)

	assert.Equal(t, 4, report.Compared)
	assert.NotContains(t, report.Flagged, SalesKey{"L", 5})
	row, _ := corrected.Row(SalesKey{"L", 5})
	assert.Equal(t, []float64{10, 20, 30, 40}, row)
}

func TestOutlierCorrectorRatioCountsAllRows(t *testing.T) {
	c := &OutlierCorrector{StdDevs: 1, Now: fixedNow}
	sales := outlierFixture()
	sales.Keys = append(sales.Keys, SalesKey{"M", 1})
	sales.Values = append(sales.Values, []float64{1, 2, 3, 4})

	_, report, err := c.Correct(context.Background(), sales, 3, staticBaseline(flatBaseline(1, 1, 2, 3, 4, 5)...))
	require.NoError(t, err)

	assert.Equal(t, 6, report.Rows)
	assert.Equal(t, 5, report.Compared)
	assert.Equal(t, 1, report.Corrected)
	assert.InDelta(t, 1.0/6, report.Ratio, 1e-9)
}

func TestOutlierCorrectorAveragesWeekdayBaseline(t *testing.T) {
	mon, tue := time.Monday, time.Tuesday
	rows := flatBaseline(1, 1, 2, 3, 4)
	rows = append(rows,
		domain.BaselineSales{Location: "L", ProductID: 5, Weekday: &mon, AvgPerDay: 2},
		domain.BaselineSales{Location: "L", ProductID: 5, Weekday: &tue, AvgPerDay: 4},
	)

	c := &OutlierCorrector{Now: fixedNow}
	corrected, report, err := c.Correct(context.Background(), outlierFixture(), 3, staticBaseline(rows...))
	require.NoError(t, err)

	require.Equal(t, []SalesKey{{"L", 5}}, report.Flagged)
	row, _ := corrected.Row(SalesKey{"L", 5})
	assert.Equal(t, []float64{3, 6, 9, 12}, row)
}

func TestOutlierCorrectorErrors(t *testing.T) {
	c := &OutlierCorrector{Now: fixedNow}
	ctx := context.Background()

	_, _, err := c.Correct(ctx, outlierFixture(), 7, staticBaseline())
	assert.ErrorIs(t, err, ErrLookaheadUnavailable)

	_, _, err = c.Correct(ctx, outlierFixture(), 0, staticBaseline())
	assert.ErrorIs(t, err, ErrPrecondition)

	boom := errors.New("db down")
	failing := BaselineLoaderFunc(func(context.Context) ([]domain.BaselineSales, error) { return nil, boom })
	_, _, err = c.Correct(ctx, outlierFixture(), 3, failing)
	assert.ErrorIs(t, err, boom)
}

func TestOutlierCorrectorMatchesHourlyColumnsByDay(t *testing.T) {
	c := &OutlierCorrector{StdDevs: 1, Now: fixedNow}
	at := func(n, hour int) time.Time { return day(n).Add(time.Duration(hour) * time.Hour) }
	sales := CumulativeSales{
		Keys:  []SalesKey{{"L", 1}, {"L", 2}, {"L", 3}, {"L", 4}, {"L", 5}},
		Dates: []time.Time{at(1, 18), at(2, 18), at(3, 18), at(4, 12), at(4, 18)},
		Values: [][]float64{
			{1, 2, 3, 3.5, 4},
			{1, 2, 3, 3.5, 4},
			{1, 2, 3, 3.5, 4},
			{1, 2, 3, 3.5, 4},
			{10, 20, 30, 35, 40},
		},
	}

	corrected, report, err := c.Correct(context.Background(), sales, 3, staticBaseline(flatBaseline(1, 1, 2, 3, 4, 5)...))
	require.NoError(t, err)

	// judged on the 18:00 bucket of 2024-05-14
	assert.Equal(t, []SalesKey{{"L", 5}}, report.Flagged)
	assert.InDelta(t, 5.367, report.StdDev, 1e-3)

	row, _ := corrected.Row(SalesKey{"L", 5})
	assert.Equal(t, []float64{1, 2, 3, 4, 4}, row)
}
