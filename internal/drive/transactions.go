package drive

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/andresuchdata/vendcast/internal/forecast"
	"github.com/rs/zerolog/log"
)

// ReadTransactionsCSV decodes one transaction export. The header is checked
// against the transaction contract before any row is read.
func ReadTransactionsCSV(r io.Reader) ([]domain.Transaction, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	if err := forecast.ValidateHeader(header); err != nil {
		return nil, err
	}

	table := forecast.Table{Columns: header}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		row := make([]any, len(record))
		for i, raw := range record {
			if i >= len(forecast.TransactionSchema) {
				row[i] = forecast.ParseFeature(raw)
				continue
			}
			v, err := forecast.TransactionSchema[i].Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			row[i] = v
		}
		table.Rows = append(table.Rows, row)
	}

	return forecast.DecodeTransactions(table)
}

// TransactionSource loads transactions from the CSV and XLSX exports kept
// in a Drive folder.
type TransactionSource struct {
	downloader *Downloader
	opts       DownloadOptions
}

func NewTransactionSource(downloader *Downloader, opts DownloadOptions) *TransactionSource {
	return &TransactionSource{downloader: downloader, opts: opts}
}

func (s *TransactionSource) LoadTransactions(ctx context.Context) ([]domain.Transaction, error) {
	paths, err := s.downloader.DownloadFolderCSV(ctx, s.opts)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no transaction exports found in drive folder %q", s.opts.FolderID)
	}
	return ReadTransactionFiles(paths)
}

// ReadTransactionFiles reads and concatenates local exports.
func ReadTransactionFiles(paths []string) ([]domain.Transaction, error) {
	var all []domain.Transaction
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", p, err)
		}
		txs, err := ReadTransactionsCSV(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		all = append(all, txs...)
	}

	log.Info().Int("files", len(paths)).Int("transactions", len(all)).Msg("transactions loaded from exports")
	return all, nil
}
