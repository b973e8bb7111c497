// Package mapping loads the ISO-NE asset mapping table from CSV or XLSX.
package mapping

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

// Mapping file column names.
const (
	ColSourceName = "ISO-NE Name"
	ColAsset      = "FLP Asset Name"
	ColOpsType    = "Operation Type"
	ColNodeID     = "PNode ID"
	ColLocation   = "Location"
)

var required = []string{ColSourceName, ColAsset, ColOpsType}

// Load reads the mapping file at path. A missing or malformed file fails
// with domain.ErrMappingUnavailable.
func Load(path string) (*domain.MappingTable, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMappingUnavailable, path, err)
	}
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path)
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMappingUnavailable, err)
	}
	entries, err := Parse(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMappingUnavailable, path, err)
	}
	return domain.NewMappingTable(entries), nil
}

// Parse converts a header row plus data rows into mapping entries.
func Parse(rows [][]string) ([]domain.MappingEntry, error) {
	if len(rows) == 0 {
		return nil, errors.New("empty mapping")
	}
	index := make(map[string]int)
	for i, name := range rows[0] {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	get := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	entries := make([]domain.MappingEntry, 0, len(rows)-1)
	for _, row := range rows[1:] {
		entry := domain.MappingEntry{
			SourceName: get(row, ColSourceName),
			Asset:      get(row, ColAsset),
			OpsType:    get(row, ColOpsType),
			NodeID:     domain.NormalizeNodeID(get(row, ColNodeID)),
			Location:   get(row, ColLocation),
		}
		if entry.SourceName == "" && entry.Location == "" && entry.NodeID == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: open %s", path)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads every record of a mapping CSV.
func ReadCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "mapping: read csv")
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: open %s", path)
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("mapping: %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: read sheet %s", sheets[0])
	}
	return rows, nil
}
