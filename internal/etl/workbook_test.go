package etl

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "leaddecisions/internal/errors"
)

type sheetFixture struct {
	name string
	rows [][]string
}

// buildWorkbook serializes the given sheets into XLSX bytes, in order.
func buildWorkbook(t *testing.T, sheets ...sheetFixture) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", sheet.name))
		} else {
			_, err := f.NewSheet(sheet.name)
			require.NoError(t, err)
		}
		for r, row := range sheet.rows {
			cells := make([]interface{}, len(row))
			for c, v := range row {
				cells[c] = v
			}
			require.NoError(t, f.SetSheetRow(sheet.name, fmt.Sprintf("A%d", r+1), &cells))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func emptySheet(name string, headers ...string) sheetFixture {
	return sheetFixture{name: name, rows: [][]string{headers}}
}

func TestOpenWorkbookCorrupt(t *testing.T) {
	_, err := OpenWorkbook([]byte("this is not a zip archive"))
	assert.Error(t, err)
}

func TestRequireSheet(t *testing.T) {
	content := buildWorkbook(t,
		sheetFixture{name: "BASE", rows: [][]string{{"LEAD_ID"}, {"1"}}},
		sheetFixture{name: "origem", rows: [][]string{{"LEAD_ID"}}},
	)

	wb, err := OpenWorkbook(content)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.RequireSheet("BASE")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// Case-insensitive fallback.
	rows, err = wb.RequireSheet("ORIGEM")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = wb.RequireSheet("PORTE")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrTypeValidation, appErr.Type)
	assert.Equal(t, "Missing sheet: PORTE", appErr.Message)
}

func TestHeaderIndex(t *testing.T) {
	rows := [][]string{{" Lead_ID ", "", "Data   Cadastro", "VENDIDO"}}

	headers, err := HeaderIndex(rows, "BASE")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"LEAD_ID":       0,
		"DATA CADASTRO": 2,
		"VENDIDO":       3,
	}, headers)
}

func TestHeaderIndexMissingHeaderRow(t *testing.T) {
	_, err := HeaderIndex(nil, "MERCADO")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Missing header row in sheet: MERCADO", appErr.Message)
}

func TestRequireColumn(t *testing.T) {
	headers := map[string]int{"LEAD_ID": 0, "VENDIDO": 2}

	idx, err := RequireColumn(headers, "lead_id")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	_, err = RequireColumn(headers, "DATA CADASTRO")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Missing column: DATA CADASTRO", appErr.Message)
}
