package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/AngelCh415/auction-tracker/internal/models"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// ReadSource parses a CSV file or every non-empty sheet of an XLSX workbook.
func ReadSource(name string, r io.Reader) ([]models.RowSet, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		set, err := readCSV(name, r)
		if err != nil {
			return nil, err
		}
		return []models.RowSet{set}, nil
	case ".xlsx", ".xlsm":
		return readXLSX(name, r)
	}
	return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedFormat)
}

func readCSV(name string, r io.Reader) (models.RowSet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return models.RowSet{}, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	set := models.RowSet{Source: name, Columns: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.RowSet{}, fmt.Errorf("read csv line: %w", err)
		}
		if blank(rec) {
			continue
		}
		set.Rows = append(set.Rows, toRow(header, rec))
	}
	return set, nil
}

func readXLSX(name string, r io.Reader) ([]models.RowSet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sets []models.RowSet
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) < 2 {
			continue
		}
		set := models.RowSet{Source: name + "#" + sheet, Columns: rows[0]}
		for _, rec := range rows[1:] {
			if blank(rec) {
				continue
			}
			set.Rows = append(set.Rows, toRow(rows[0], rec))
		}
		if len(set.Rows) > 0 {
			sets = append(sets, set)
		}
	}
	return sets, nil
}

// toRow keys cells by header; short rows get empty cells so every header
// column is present on every row of the set.
func toRow(header, rec []string) models.RawRow {
	row := make(models.RawRow, len(header))
	for i, h := range header {
		if h == "" {
			continue
		}
		v := ""
		if i < len(rec) {
			v = rec[i]
		}
		row[h] = v
	}
	return row
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
