package service

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"wisefido-health-ingest/internal/models"
)

var (
	summaryHeader    = []string{"Family", "Accepted", "Rejected", "Dedup Dropped", "Rows Affected"}
	rejectedHeader   = []string{"Index", "Related Index", "Family", "Error Kind", "Message"}
	diagnosticHeader = []string{"Index", "Stream", "Family", "Kind", "Severity", "Point Count", "Reason"}
)

// ReportWorkbook 将报告导出为 xlsx：Summary / Rejected / Diagnostics 三个工作表
func ReportWorkbook(report *models.IngestReport) ([]byte, error) {
	f := excelize.NewFile()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	summary := make([][]any, 0, len(report.PerFamily)+2)
	for _, fam := range models.AllFamilies {
		st, ok := report.PerFamily[fam]
		if !ok {
			continue
		}
		summary = append(summary, []any{string(fam), st.Accepted, st.Rejected, st.DedupDropped, st.RowsAffected})
	}
	summary = append(summary,
		[]any{},
		[]any{"Processed", report.ProcessedCount},
		[]any{"Failed", report.FailedCount},
		[]any{"Mode", report.Mode},
		[]any{"Processing Time (ms)", report.ProcessingTimeMs},
	)
	if report.JobID != nil {
		summary = append(summary, []any{"Job ID", report.JobID.String()})
	}

	rejected := make([][]any, 0, len(report.Rejected))
	for _, r := range report.Rejected {
		rejected = append(rejected, []any{optIndex(r.Index), optIndex(r.RelatedIndex), string(r.Family), string(r.ErrorKind), r.Message})
	}

	diagnostics := make([][]any, 0, len(report.Diagnostics))
	for _, d := range report.Diagnostics {
		diagnostics = append(diagnostics, []any{d.Index, d.StreamName, string(d.Family), string(d.Kind), string(d.Severity), d.PointCount, d.Reason})
	}

	sheets := []struct {
		name   string
		header []string
		rows   [][]any
		widths []float64
	}{
		{"Summary", summaryHeader, summary, []float64{22, 12, 12, 15, 15}},
		{"Rejected", rejectedHeader, rejected, []float64{10, 14, 18, 24, 60}},
		{"Diagnostics", diagnosticHeader, diagnostics, []float64{10, 40, 18, 26, 10, 12, 60}},
	}
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", s.name, err)
		}
		if err := writeSheet(f, s.name, s.header, s.rows, s.widths, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any, widths []float64, headerStyle int) error {
	for col, h := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	for r, row := range rows {
		for c, v := range row {
			if v == nil || v == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return nil
}

func optIndex(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}
