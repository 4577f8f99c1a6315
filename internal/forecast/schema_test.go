package forecast

import (
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRow() []any {
	return []any{
		int64(7), "Cola", "can", "Fizz", "drinks", "0.85",
		time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		int64(3), "Hall A", 52.1, 5.1, "LOC-1",
		"office", "indoor", "08-18", "mon-fri",
	}
}

func TestDecodeTransactions(t *testing.T) {
	table := Table{
		Columns: append(slices.Clone(domain.TransactionColumns), "weekday"),
		Rows:    [][]any{append(validRow(), 2.0)},
	}

	txs, err := DecodeTransactions(table)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	tx := txs[0]
	assert.Equal(t, int64(7), tx.ProductID)
	assert.Equal(t, "LOC-1", tx.Location)
	assert.Equal(t, 52.1, tx.Latitude)
	assert.Equal(t, 0.85, tx.GrossProfit)
	assert.Equal(t, 2.0, tx.Features["weekday"])
}

func TestDecodeTransactionsLenientGrossProfit(t *testing.T) {
	tests := []struct {
		raw  any
		want float64
	}{
		{raw: "1,20", want: 1.2},
		{raw: " 3 ", want: 3},
		{raw: "1,234.50", want: 1234.5},
		{raw: "-0.4", want: -0.4},
	}
	for _, tt := range tests {
		row := validRow()
		row[5] = tt.raw
		txs, err := DecodeTransactions(Table{Columns: domain.TransactionColumns, Rows: [][]any{row}})
		require.NoError(t, err, "%v", tt.raw)
		assert.InDelta(t, tt.want, txs[0].GrossProfit, 1e-9, "%v", tt.raw)
	}

	row := validRow()
	row[5] = "free"
	txs, err := DecodeTransactions(Table{Columns: domain.TransactionColumns, Rows: [][]any{row}})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(txs[0].GrossProfit))
}

func TestDecodeTransactionsNullableColumns(t *testing.T) {
	row := validRow()
	row[5] = nil // GrossProfit
	row[9] = nil // Latitude
	row[1] = nil // ProductName

	txs, err := DecodeTransactions(Table{Columns: domain.TransactionColumns, Rows: [][]any{row}})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(txs[0].GrossProfit))
	assert.True(t, math.IsNaN(txs[0].Latitude))
	assert.Empty(t, txs[0].ProductName)
}

func TestDecodeTransactionsSchemaViolations(t *testing.T) {
	without := func(name string) []string {
		return slices.DeleteFunc(slices.Clone(domain.TransactionColumns), func(c string) bool { return c == name })
	}
	swapped := slices.Clone(domain.TransactionColumns)
	swapped[0], swapped[1] = swapped[1], swapped[0]

	tests := []struct {
		name    string
		columns []string
		mutate  func(row []any) []any
	}{
		{name: "missing latitude", columns: without(domain.ColLatitude)},
		{name: "reordered columns", columns: swapped},
		{name: "empty header", columns: nil},
		{
			name:    "product id as string",
			columns: domain.TransactionColumns,
			mutate:  func(row []any) []any { row[0] = "7"; return row },
		},
		{
			name:    "null sale date",
			columns: domain.TransactionColumns,
			mutate:  func(row []any) []any { row[6] = nil; return row },
		},
		{
			name:    "latitude as string",
			columns: domain.TransactionColumns,
			mutate:  func(row []any) []any { row[9] = "52.1"; return row },
		},
		{
			name:    "short row",
			columns: domain.TransactionColumns,
			mutate:  func(row []any) []any { return row[:10] },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validRow()
			if tt.mutate != nil {
				row = tt.mutate(row)
			}
			txs, err := DecodeTransactions(Table{Columns: tt.columns, Rows: [][]any{row}})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchema), "got %v", err)
			assert.Nil(t, txs)
		})
	}
}

func TestValidateHeaderMessages(t *testing.T) {
	cols := slices.DeleteFunc(slices.Clone(domain.TransactionColumns), func(c string) bool { return c == domain.ColLatitude })
	err := ValidateHeader(cols)
	require.ErrorIs(t, err, ErrSchema)
	assert.Contains(t, err.Error(), `"Latitude" is missing`)

	swapped := slices.Clone(domain.TransactionColumns)
	swapped[9], swapped[10] = swapped[10], swapped[9]
	err = ValidateHeader(swapped)
	require.ErrorIs(t, err, ErrSchema)
	assert.Contains(t, err.Error(), "position")
}

func TestColumnParse(t *testing.T) {
	id := TransactionSchema[0]
	v, err := id.Parse(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = id.Parse("4.2")
	assert.ErrorIs(t, err, ErrSchema)

	v, err = id.Parse("")
	require.NoError(t, err)
	assert.Nil(t, v)

	saleDate := TransactionSchema[6]
	v, err = saleDate.Parse("2024-05-01 12:30:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), v)

	assert.Equal(t, 1.5, ParseFeature("1.5"))
	assert.Equal(t, "sunny", ParseFeature("sunny"))
	assert.Nil(t, ParseFeature(" "))
}
