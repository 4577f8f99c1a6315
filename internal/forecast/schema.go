package forecast

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/vendcast/internal/domain"
)

// Kind is the value kind a transaction column must hold.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindTime
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindTime:
		return "timestamp"
	default:
		return "string"
	}
}

// Column is one entry of the transaction column contract.
type Column struct {
	Name     string
	Kind     Kind
	Nullable bool
}

// TransactionSchema is the column contract every transaction source must
// deliver, in exactly this order. Columns after the contract are treated as
// enrichment features.
var TransactionSchema = []Column{
	{Name: domain.ColProductID, Kind: KindInt},
	{Name: domain.ColProductName, Kind: KindString, Nullable: true},
	{Name: domain.ColPackagingType, Kind: KindString, Nullable: true},
	{Name: domain.ColBrand, Kind: KindString, Nullable: true},
	{Name: domain.ColProductCategory, Kind: KindString, Nullable: true},
	{Name: domain.ColGrossProfit, Kind: KindString, Nullable: true},
	{Name: domain.ColSaleDate, Kind: KindTime},
	{Name: domain.ColMachineID, Kind: KindInt},
	{Name: domain.ColMachineName, Kind: KindString, Nullable: true},
	{Name: domain.ColLatitude, Kind: KindFloat, Nullable: true},
	{Name: domain.ColLongitude, Kind: KindFloat, Nullable: true},
	{Name: domain.ColLocation, Kind: KindString},
	{Name: domain.ColLocationType, Kind: KindString, Nullable: true},
	{Name: domain.ColEnvironment, Kind: KindString, Nullable: true},
	{Name: domain.ColInServiceHours, Kind: KindString, Nullable: true},
	{Name: domain.ColInServiceDays, Kind: KindString, Nullable: true},
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Table is a raw tabular result as delivered by a transaction source.
type Table struct {
	Columns []string
	Rows    [][]any
}

// ValidateHeader checks the contract columns are present and in order.
func ValidateHeader(columns []string) error {
	for i, col := range TransactionSchema {
		if i < len(columns) && columns[i] == col.Name {
			continue
		}
		if pos := slices.Index(columns, col.Name); pos >= 0 {
			return fmt.Errorf("%w: column %q at position %d, want %d", ErrSchema, col.Name, pos, i)
		}
		return fmt.Errorf("%w: column %q is missing", ErrSchema, col.Name)
	}
	return nil
}

// Check reports whether v has the kind the column requires.
func (c Column) Check(v any) error {
	if v == nil {
		if c.Nullable {
			return nil
		}
		return fmt.Errorf("%w: column %q must not be null", ErrSchema, c.Name)
	}

	ok := false
	switch c.Kind {
	case KindInt:
		switch v.(type) {
		case int, int32, int64:
			ok = true
		}
	case KindFloat:
		switch v.(type) {
		case float32, float64:
			ok = true
		}
	case KindTime:
		_, ok = v.(time.Time)
	case KindString:
		_, ok = v.(string)
	}
	if !ok {
		return fmt.Errorf("%w: column %q holds %T, want %s", ErrSchema, c.Name, v, c.Kind)
	}
	return nil
}

// Parse converts a textual cell (CSV, spreadsheet) into a value of the
// column's kind. Empty text is null.
func (c Column) Parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	switch c.Kind {
	case KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q value %q is not an integer", ErrSchema, c.Name, raw)
		}
		return n, nil
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q value %q is not a float", ErrSchema, c.Name, raw)
		}
		return f, nil
	case KindTime:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("%w: column %q value %q is not a timestamp", ErrSchema, c.Name, raw)
	default:
		return raw, nil
	}
}

// ParseFeature converts a textual enrichment cell: numbers become float64,
// anything else stays a string.
func ParseFeature(raw string) any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// DecodeTransactions validates the table against TransactionSchema and
// converts it into transactions. Nothing is decoded when the header is
// wrong, and the first ill-kinded cell aborts decoding.
func DecodeTransactions(t Table) ([]domain.Transaction, error) {
	if err := ValidateHeader(t.Columns); err != nil {
		return nil, err
	}

	features := t.Columns[len(TransactionSchema):]
	txs := make([]domain.Transaction, 0, len(t.Rows))
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrSchema, i, len(row), len(t.Columns))
		}
		for j, col := range TransactionSchema {
			if err := col.Check(row[j]); err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
		}

		tx := domain.Transaction{
			ProductID:       asInt(row[0]),
			ProductName:     asString(row[1]),
			PackagingType:   asString(row[2]),
			Brand:           asString(row[3]),
			ProductCategory: asString(row[4]),
			GrossProfit:     ParseAmount(row[5]),
			SaleDate:        row[6].(time.Time),
			MachineID:       asInt(row[7]),
			MachineName:     asString(row[8]),
			Latitude:        asFloat(row[9]),
			Longitude:       asFloat(row[10]),
			Location:        asString(row[11]),
			LocationType:    asString(row[12]),
			Environment:     asString(row[13]),
			InServiceHours:  asString(row[14]),
			InServiceDays:   asString(row[15]),
		}
		if len(features) > 0 {
			tx.Features = make(map[string]any, len(features))
			for k, name := range features {
				tx.Features[name] = row[len(TransactionSchema)+k]
			}
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

// ParseAmount reads a money value the sources deliver as text. A comma is
// taken as the decimal separator unless a dot is present, in which case
// commas group thousands. Anything unreadable is NaN.
func ParseAmount(v any) float64 {
	switch x := v.(type) {
	case float32, float64:
		return asFloat(x)
	case int, int32, int64:
		return float64(asInt(x))
	case string:
		s := strings.TrimSpace(x)
		if strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return math.NaN()
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	}
	return 0
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	}
	return math.NaN()
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
