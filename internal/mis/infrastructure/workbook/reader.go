// Package workbook reads downloaded MIS report files from disk.
package workbook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/infrastructure/pharos"
)

// Read loads raw tables from a report file. Each sheet of an .xlsx workbook
// is one table, kept jagged and headerless. Other files are decoded the same
// way as a Pharos download.
func Read(path string) ([]domain.RawTable, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readXLSX(path)
	default:
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "workbook: read %s", path)
		}
		contentType := "text/csv"
		if strings.EqualFold(filepath.Ext(path), ".json") {
			contentType = "application/json"
		}
		table, err := pharos.Decode(body, contentType)
		if err != nil {
			return nil, fmt.Errorf("workbook: %s: %w", path, err)
		}
		table.Source = path
		return []domain.RawTable{table}, nil
	}
}

// ReadAll loads every file and concatenates their tables in argument order.
func ReadAll(paths []string) ([]domain.RawTable, error) {
	var tables []domain.RawTable
	for _, path := range paths {
		t, err := Read(path)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t...)
	}
	return tables, nil
}

func readXLSX(path string) ([]domain.RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "workbook: open %s", path)
	}
	defer func() { _ = f.Close() }()

	var tables []domain.RawTable
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, eris.Wrapf(err, "workbook: read sheet %s", sheet)
		}
		if len(rows) == 0 {
			continue
		}
		padRows(rows, sheetWidth(f, sheet, rows))
		tables = append(tables, domain.RawTable{Source: path + "#" + sheet, Rows: rows})
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("workbook: %s: %w", path, domain.ErrEmptyResponse)
	}
	return tables, nil
}

// sheetWidth is the used-range width of a sheet. GetRows drops trailing empty
// cells, so a blank last column would otherwise vanish from every row.
func sheetWidth(f *excelize.File, sheet string, rows [][]string) int {
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	dim, err := f.GetSheetDimension(sheet)
	if err != nil || dim == "" {
		return width
	}
	last := dim
	if i := strings.LastIndex(dim, ":"); i >= 0 {
		last = dim[i+1:]
	}
	col, _, err := excelize.CellNameToCoordinates(last)
	if err != nil {
		return width
	}
	return max(width, col)
}

func padRows(rows [][]string, width int) {
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		rows[i] = row
	}
}
