package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/docsmith-ai/docsmith/internal/core"
)

// SpreadsheetExtractor renders workbooks as text: sheets in workbook order,
// a "Sheet: <name>" header per sheet, one tab-joined line per non-empty row.
type SpreadsheetExtractor struct{}

func NewSpreadsheetExtractor() *SpreadsheetExtractor {
	return &SpreadsheetExtractor{}
}

func (e *SpreadsheetExtractor) Method() string { return "spreadsheet" }

func (e *SpreadsheetExtractor) Extract(ctx context.Context, data []byte, _ core.ProgressSink) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var lines []string
	for _, name := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", name, err)
		}
		lines = append(lines, "Sheet: "+name)
		for _, row := range rows {
			if rowEmpty(row) {
				continue
			}
			lines = append(lines, strings.Join(row, "\t"))
		}
	}
	return strings.Join(lines, "\n"), nil
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
