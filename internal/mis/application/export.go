package application

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

const timeLayout = time.RFC3339

// Report file names under a run directory.
const (
	SummaryFile  = "summary.json"
	RecordsFile  = "records.csv"
	WorkbookFile = "run.xlsx"
	PDFFile      = "run.pdf"
)

var recordHeader = []string{
	"datetime_he", "asset", "name", "ops_type", "service",
	domain.ColumnDA, domain.ColumnRT, "unit", "interval_width_s",
}

// WriteReports writes the summary and written records under dir.
func WriteReports(dir string, s *Summary, loc *time.Location) error {
	if s == nil {
		return eris.New("export: nil summary")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "export: mkdir %s", dir)
	}
	if err := writeSummaryJSON(filepath.Join(dir, SummaryFile), s); err != nil {
		return err
	}
	if err := writeRecordsCSV(filepath.Join(dir, RecordsFile), s.Records, loc); err != nil {
		return err
	}
	xlsx, err := BuildRunXLSX(s, loc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, WorkbookFile), xlsx, 0o644); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	pdf, err := BuildRunPDF(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, PDFFile), pdf, 0o644); err != nil {
		return eris.Wrap(err, "export: write pdf")
	}
	return nil
}

func writeSummaryJSON(path string, s *Summary) error {
	file, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create summary")
	}
	defer file.Close()
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		return eris.Wrap(err, "export: encode summary")
	}
	return nil
}

func writeRecordsCSV(path string, records []domain.Record, loc *time.Location) error {
	file, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create records")
	}
	defer file.Close()
	return WriteRecordsCSV(file, records, loc)
}

// WriteRecordsCSV writes records with a header row. Times are written in loc.
func WriteRecordsCSV(w io.Writer, records []domain.Record, loc *time.Location) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(recordHeader); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, rec := range records {
		if err := writer.Write(recordRow(rec, loc)); err != nil {
			return eris.Wrap(err, "export: write record")
		}
	}
	writer.Flush()
	return eris.Wrap(writer.Error(), "export: flush records")
}

func recordRow(rec domain.Record, loc *time.Location) []string {
	return []string{
		formatTime(rec.HourEnding, loc),
		rec.Asset,
		rec.Name,
		rec.OpsType,
		rec.Service,
		rec.DAVolume.String(),
		rec.RTVolume.String(),
		rec.Unit,
		strconv.Itoa(rec.IntervalSeconds),
	}
}

// BuildRunXLSX renders the run workbook with summary, records and failed sheets.
func BuildRunXLSX(s *Summary, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	recordsSheet := "records"
	failedSheet := "failed"
	_ = f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(recordsSheet); err != nil {
		return nil, eris.Wrap(err, "export: records sheet")
	}
	if _, err := f.NewSheet(failedSheet); err != nil {
		return nil, eris.Wrap(err, "export: failed sheet")
	}

	rows := [][]any{
		{"MIS Reconciliation Run"},
		{},
		{"Run", s.RunID},
		{"Table", s.Table},
		{"Report", s.Report},
		{"Range", s.StartDate + " .. " + s.EndDate},
		{"Status", s.Status},
		{"Expected slots", s.ExpectedSlots},
		{"Missing slots", s.MissingSlots},
		{"Batches", s.Batches},
		{"Failed batches", len(s.FailedBatches)},
		{"Rows fetched", s.RowsFetched},
		{"Rows parsed", s.RowsParsed},
		{"Rows after dedup", s.RowsAfterDedup},
		{"Zero overwrites", s.ZeroOverwrites},
		{"Gap filled", s.GapFilled},
		{"Rows written", s.RowsWritten},
	}
	if s.Error != "" {
		rows = append(rows, []any{"Error", s.Error})
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cellRef, &row); err != nil {
			return nil, eris.Wrap(err, "export: summary row")
		}
	}

	header := make([]any, len(recordHeader))
	for i, h := range recordHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(recordsSheet, "A1", &header); err != nil {
		return nil, eris.Wrap(err, "export: records header")
	}
	for i, rec := range s.Records {
		row := []any{
			formatTime(rec.HourEnding, loc), rec.Asset, rec.Name, rec.OpsType, rec.Service,
			cellValue(rec.DAVolume), cellValue(rec.RTVolume), rec.Unit, rec.IntervalSeconds,
		}
		if err := f.SetSheetRow(recordsSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, eris.Wrap(err, "export: records row")
		}
	}

	_ = f.SetCellValue(failedSheet, "A1", "Range")
	_ = f.SetCellValue(failedSheet, "B1", "URL")
	_ = f.SetCellValue(failedSheet, "C1", "Error")
	for i, fb := range s.FailedBatches {
		row := i + 2
		_ = f.SetCellValue(failedSheet, fmt.Sprintf("A%d", row), fb.Range)
		_ = f.SetCellValue(failedSheet, fmt.Sprintf("B%d", row), fb.URL)
		_ = f.SetCellValue(failedSheet, fmt.Sprintf("C%d", row), fb.Error)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "export: write xlsx")
	}
	return buf.Bytes(), nil
}

// BuildRunPDF renders a one-page run summary.
func BuildRunPDF(s *Summary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "MIS Reconciliation Run")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	for _, line := range []string{
		"Run: " + s.RunID,
		"Table: " + s.Table,
		"Report: " + s.Report,
		fmt.Sprintf("Range: %s .. %s", s.StartDate, s.EndDate),
		"Status: " + s.Status,
		"Finished: " + formatTime(s.FinishedAt, time.UTC),
	} {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}
	if s.Error != "" {
		pdf.MultiCell(0, 5, "Error: "+s.Error, "", "L", false)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(70, 6, "Stage", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, row := range []struct {
		label string
		value int
	}{
		{"Missing slots", s.MissingSlots},
		{"Batches", s.Batches},
		{"Failed batches", len(s.FailedBatches)},
		{"Rows fetched", s.RowsFetched},
		{"Rows parsed", s.RowsParsed},
		{"Rows after dedup", s.RowsAfterDedup},
		{"Zero overwrites", s.ZeroOverwrites},
		{"Gap filled", s.GapFilled},
		{"Rows written", s.RowsWritten},
	} {
		pdf.CellFormat(70, 6, row.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, strconv.Itoa(row.value), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(s.FailedBatches) > 0 {
		pdf.Ln(4)
		pdf.Cell(0, 6, "Failed batches")
		pdf.Ln(6)
		for _, fb := range s.FailedBatches {
			pdf.MultiCell(0, 5, fb.Range+": "+fb.Error, "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, eris.Wrap(err, "export: render pdf")
	}
	return buf.Bytes(), nil
}

func cellValue(v domain.Value) any {
	if f, ok := v.Float(); ok {
		return f
	}
	return ""
}

func formatTime(value time.Time, loc *time.Location) string {
	if value.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return value.In(loc).Format(timeLayout)
}
