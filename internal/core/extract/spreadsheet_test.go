package extract

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", "Summary"))
	require.NoError(t, f.SetCellValue("Summary", "A1", "name"))
	require.NoError(t, f.SetCellValue("Summary", "B1", "total"))
	require.NoError(t, f.SetCellValue("Summary", "A2", "widgets"))
	require.NoError(t, f.SetCellValue("Summary", "B2", 42))

	_, err := f.NewSheet("Empty")
	require.NoError(t, err)

	_, err = f.NewSheet("Details")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Details", "A1", "only cell"))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestSpreadsheetExtractSheetsInWorkbookOrder(t *testing.T) {
	e := NewSpreadsheetExtractor()
	text, err := e.Extract(context.Background(), buildWorkbook(t), nil)
	require.NoError(t, err)

	assert.Contains(t, text, "Sheet: Summary")
	assert.Contains(t, text, "name\ttotal")
	assert.Contains(t, text, "widgets\t42")
	assert.Contains(t, text, "Sheet: Details")
	assert.Contains(t, text, "only cell")

	// Workbook order is preserved.
	assert.Less(t, bytes.Index([]byte(text), []byte("Sheet: Summary")), bytes.Index([]byte(text), []byte("Sheet: Details")))
}

func TestSpreadsheetExtractRejectsGarbage(t *testing.T) {
	e := NewSpreadsheetExtractor()
	_, err := e.Extract(context.Background(), []byte("not a workbook"), nil)
	require.Error(t, err)
}
