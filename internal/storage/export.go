package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path"
	"strconv"

	"github.com/andresuchdata/vendcast/internal/config"
	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	adviceSheet     = "advice"
)

// AdviceExporter writes both advice tables as CSV and XLSX objects under
// <prefix>/<run id>/.
type AdviceExporter struct {
	store         ObjectStorage
	prefix        string
	productTable  string
	locationTable string
}

func NewAdviceExporter(store ObjectStorage, prefix string, sink config.SinkConfig) *AdviceExporter {
	return &AdviceExporter{
		store:         store,
		prefix:        prefix,
		productTable:  sink.ProductTable,
		locationTable: sink.LocationTable,
	}
}

// Export uploads the tables and returns the keys it wrote.
func (e *AdviceExporter) Export(ctx context.Context, runID string, products, locations domain.RefillAdviceTable) ([]string, error) {
	var keys []string
	for _, t := range []struct {
		name       string
		table      domain.RefillAdviceTable
		perProduct bool
	}{
		{e.productTable, products, true},
		{e.locationTable, locations, false},
	} {
		header, records := AdviceRecords(t.table, t.perProduct)

		csvData, err := encodeCSV(header, records)
		if err != nil {
			return keys, fmt.Errorf("encode %s csv: %w", t.name, err)
		}
		key := path.Join(e.prefix, runID, t.name+".csv")
		if err := e.store.UploadObject(ctx, key, csvData, contentTypeCSV); err != nil {
			return keys, err
		}
		keys = append(keys, key)

		xlsxData, err := encodeXLSX(t.table, t.perProduct)
		if err != nil {
			return keys, fmt.Errorf("encode %s xlsx: %w", t.name, err)
		}
		key = path.Join(e.prefix, runID, t.name+".xlsx")
		if err := e.store.UploadObject(ctx, key, xlsxData, contentTypeXLSX); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// AdviceRecords renders a table as text: amounts with two decimals, dates
// as YYYY-MM-DD and missing values as empty cells.
func AdviceRecords(t domain.RefillAdviceTable, perProduct bool) ([]string, [][]string) {
	header := t.Columns(perProduct)
	records := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, row.Location)
		if perProduct {
			id := ""
			if row.ProductID != nil {
				id = strconv.FormatInt(*row.ProductID, 10)
			}
			rec = append(rec, id)
		}
		for _, v := range row.MissedProfit {
			rec = append(rec, decimal.NewFromFloat(v).StringFixed(2))
		}
		date := ""
		if row.RefillDate != nil {
			date = row.RefillDate.Format("2006-01-02")
		}
		rec = append(rec, date)
		if perProduct {
			rec = append(rec, deref(row.ProductName))
		}
		records = append(records, append(rec, deref(row.LocationName)))
	}
	return header, records
}

func encodeCSV(header []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeXLSX keeps amounts numeric so the sheet can be summed.
func encodeXLSX(t domain.RefillAdviceTable, perProduct bool) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", adviceSheet); err != nil {
		return nil, err
	}

	header := t.Columns(perProduct)
	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := f.SetSheetRow(adviceSheet, "A1", &cells); err != nil {
		return nil, err
	}

	for r, row := range t.Rows {
		cells := make([]interface{}, 0, len(header))
		cells = append(cells, row.Location)
		if perProduct {
			if row.ProductID != nil {
				cells = append(cells, *row.ProductID)
			} else {
				cells = append(cells, nil)
			}
		}
		for _, v := range row.MissedProfit {
			rounded, _ := decimal.NewFromFloat(v).Round(2).Float64()
			cells = append(cells, rounded)
		}
		if row.RefillDate != nil {
			cells = append(cells, row.RefillDate.Format("2006-01-02"))
		} else {
			cells = append(cells, nil)
		}
		if perProduct {
			cells = append(cells, deref(row.ProductName))
		}
		cells = append(cells, deref(row.LocationName))

		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(adviceSheet, cell, &cells); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
