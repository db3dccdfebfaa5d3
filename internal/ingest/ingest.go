// Package ingest turns uploaded spreadsheet exports into raw record
// batches. It knows nothing about canonical fields: headers become keys as
// found (trimmed), blank cells become absent keys, and the pipeline does
// the rest.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pipemetric/insights-api/internal/domain"
)

// ReadCSV parses a CSV export. The first row is the header; a file whose
// header cannot be read is the only hard failure, short rows are padded
// with absent fields.
func ReadCSV(r io.Reader) ([]domain.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []domain.RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", len(records)+2, err)
		}
		records = append(records, rowToRecord(header, row))
	}
	if records == nil {
		records = []domain.RawRecord{}
	}
	return records, nil
}

// ReadXLSX parses the first sheet of an Excel export, treating its first
// row as the header.
func ReadXLSX(r io.Reader) ([]domain.RawRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return []domain.RawRecord{}, nil
	}

	header := rows[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	records := make([]domain.RawRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, rowToRecord(header, row))
	}
	return records, nil
}

// Read dispatches on the uploaded file's extension.
func Read(r io.Reader, filename string) ([]domain.RawRecord, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(r)
	case ".csv", "":
		return ReadCSV(r)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(filename))
	}
}

func rowToRecord(header, row []string) domain.RawRecord {
	rec := make(domain.RawRecord, len(header))
	for i, key := range header {
		if key == "" || i >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[i])
		if cell == "" {
			continue
		}
		rec[key] = cell
	}
	return rec
}
