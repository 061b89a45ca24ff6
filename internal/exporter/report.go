package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"leaddecisions/pkg/contracts/domain"
)

// Format selects the report output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatCSV:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown format %q (want json or csv)", s)
	}
}

// Write encodes the report in the given format.
func Write(w io.Writer, report *domain.MarketingReport, format Format) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, report)
	default:
		return WriteJSON(w, report)
	}
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, report *domain.MarketingReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteCSV flattens the ranked groups of every dimension into one CSV
// table. The BOM keeps Excel reading the output as UTF-8.
func WriteCSV(w io.Writer, report *domain.MarketingReport) error {
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"dimension", "group", "total_leads", "total_sold", "conversion_rate", "status"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, analysis := range report.Analyses {
		for _, group := range analysis.Ranking {
			record := []string{
				analysis.Dimension,
				group.GroupName,
				strconv.FormatInt(group.TotalLeads, 10),
				strconv.FormatInt(group.TotalSold, 10),
				domain.FormatRate(group.ConversionRate),
				string(group.Status),
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}
