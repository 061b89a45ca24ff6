package etl

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	apperrors "leaddecisions/internal/errors"
)

// dateTimeLayouts are the accepted textual date formats, tried in order.
// Date-only matches resolve to midnight.
var dateTimeLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// accentStripper removes combining marks after canonical decomposition,
// so "NÃO" and "NAO" normalize to the same token.
var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CellText returns the trimmed text of a cell, or "" when the cell is
// absent or blank. Rows are read raw, so typed cells carry their stored
// values rather than number-formatted display text.
func CellText(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}

// CellTimestamp converts a cell to a timestamp. Native date cells carry
// their raw serial numbers and convert directly; anything else is
// parsed against the accepted layouts. Text that matches no layout fails
// with an error naming the sheet, the 1-based row and the raw value; a
// blank cell is null, not an error.
func CellTimestamp(row []string, index int, sheet string, rowIndex int) (*time.Time, error) {
	value := CellText(row, index)
	if value == "" {
		return nil, nil
	}

	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return &t, nil
		}
	}

	if t := parseDateTime(value); t != nil {
		return t, nil
	}

	return nil, apperrors.NewValidationErrorf("Invalid date in %s at row %d: %s", sheet, rowIndex+1, value)
}

func parseDateTime(value string) *time.Time {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

// ParseTriBool maps human-entered yes/no text onto a tri-state bool.
// The token set is the fixed business vocabulary of the source sheets
// (Portuguese plus literal booleans); anything else, including blank,
// is unknown. Matching is case- and accent-insensitive.
func ParseTriBool(value string) *bool {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	switch NormalizeToken(value) {
	case "SIM", "S", "TRUE", "1":
		return boolPtr(true)
	case "NAO", "N", "FALSE", "0":
		return boolPtr(false)
	default:
		return nil
	}
}

// NormalizeToken trims, strips accents and uppercases a value.
func NormalizeToken(value string) string {
	trimmed := strings.TrimSpace(value)
	stripped, _, err := transform.String(accentStripper, trimmed)
	if err != nil {
		stripped = trimmed
	}
	return strings.ToUpper(stripped)
}

// NormalizeHeader normalizes a header cell for lookups: accent/case
// normalization plus internal whitespace collapsed to single spaces, so
// inconsistent spacing in the workbook still resolves.
func NormalizeHeader(value string) string {
	return strings.Join(strings.Fields(NormalizeToken(value)), " ")
}

func boolPtr(b bool) *bool {
	return &b
}
