package etl

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "leaddecisions/internal/errors"
)

// Workbook wraps an opened XLSX file. Callers must Close it on every
// exit path.
type Workbook struct {
	file *excelize.File
}

// OpenWorkbook opens workbook bytes. The raw error is returned so the
// caller can classify it as an unreadable-file failure.
func OpenWorkbook(content []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	return &Workbook{file: f}, nil
}

// Close releases the underlying file resources.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// RequireSheet returns all rows of the named sheet. The lookup tries the
// exact name first, then scans every sheet case-insensitively; a workbook
// without the sheet is rejected. Rows are read raw so date-typed cells
// yield their stored serial numbers instead of number-formatted display
// text.
func (w *Workbook) RequireSheet(name string) ([][]string, error) {
	target := ""
	for _, candidate := range w.file.GetSheetList() {
		if candidate == name {
			target = candidate
			break
		}
	}
	if target == "" {
		for _, candidate := range w.file.GetSheetList() {
			if strings.EqualFold(candidate, name) {
				target = candidate
				break
			}
		}
	}
	if target == "" {
		return nil, apperrors.NewValidationErrorf("Missing sheet: %s", name)
	}

	rows, err := w.file.GetRows(target, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read sheet "+name, err)
	}
	return rows, nil
}

// HeaderIndex builds a mapping from normalized header text to column
// index out of row 0. A sheet without a header row is rejected.
func HeaderIndex(rows [][]string, sheet string) (map[string]int, error) {
	if len(rows) == 0 {
		return nil, apperrors.NewValidationErrorf("Missing header row in sheet: %s", sheet)
	}

	headers := make(map[string]int)
	for i, cell := range rows[0] {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		headers[NormalizeHeader(cell)] = i
	}
	return headers, nil
}

// RequireColumn resolves a header name to its column index, failing with
// the expected header name when absent.
func RequireColumn(headers map[string]int, name string) (int, error) {
	index, ok := headers[NormalizeHeader(name)]
	if !ok {
		return 0, apperrors.NewValidationErrorf("Missing column: %s", name)
	}
	return index, nil
}
