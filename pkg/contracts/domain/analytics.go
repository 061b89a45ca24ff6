package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AnalysisStatus classifies a group's performance against the global
// conversion baseline.
type AnalysisStatus string

const (
	// StatusAboveAverage marks a group with a statistically relevant volume
	// whose conversion rate is at or above the global average.
	StatusAboveAverage AnalysisStatus = "ABOVE_AVERAGE"
	// StatusBelowAverage marks a statistically relevant group converting
	// below the global average.
	StatusBelowAverage AnalysisStatus = "BELOW_AVERAGE"
	// StatusInconclusive marks a group below the lead-volume threshold.
	// Inconclusive groups are never compared to the baseline and are
	// ignored when deriving top insights.
	StatusInconclusive AnalysisStatus = "INCONCLUSIVE"
)

// DimensionStat carries raw per-category counts from the aggregation
// queries. Transient: consumed by the ranking engine, never persisted.
type DimensionStat struct {
	CategoryName string `json:"category_name"`
	TotalLeads   int64  `json:"total_leads"`
	TotalSold    int64  `json:"total_sold"`
}

// AnalysisGroup is one classified, ranked entry in a dimension's report.
// Constructed only through NewAnalysisGroup; never mutated afterwards.
type AnalysisGroup struct {
	GroupName      string         `json:"group_name"`
	TotalLeads     int64          `json:"total_leads"`
	TotalSold      int64          `json:"total_sold"`
	ConversionRate float64        `json:"conversion_rate"`
	Status         AnalysisStatus `json:"status"`
}

// NewAnalysisGroup computes a group's conversion rate and classification
// from its raw counts. The rate divides to 4 fractional digits half-up,
// multiplies by 100 and rounds to 2 fractional digits half-up, so the
// user-facing percentage carries no binary floating-point artifacts.
func NewAnalysisGroup(stat DimensionStat, threshold int, globalAverage float64) AnalysisGroup {
	rate := conversionRate(stat.TotalLeads, stat.TotalSold)

	status := StatusInconclusive
	if stat.TotalLeads >= int64(threshold) {
		if rate >= globalAverage {
			status = StatusAboveAverage
		} else {
			status = StatusBelowAverage
		}
	}

	return AnalysisGroup{
		GroupName:      stat.CategoryName,
		TotalLeads:     stat.TotalLeads,
		TotalSold:      stat.TotalSold,
		ConversionRate: rate,
		Status:         status,
	}
}

func conversionRate(totalLeads, totalSold int64) float64 {
	if totalLeads == 0 {
		return 0.0
	}
	rate := decimal.NewFromInt(totalSold).
		DivRound(decimal.NewFromInt(totalLeads), 4).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	return rate.InexactFloat64()
}

// FormatRate renders a conversion rate the way the report prints it:
// minimal digits, always at least one decimal place ("30.0", "27.45").
func FormatRate(rate float64) string {
	s := strconv.FormatFloat(rate, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// GlobalStats is the report header: counts over every lead in the store.
type GlobalStats struct {
	TotalLeads            int64   `json:"total_leads"`
	TotalSales            int64   `json:"total_sales"`
	OverallConversionRate float64 `json:"overall_conversion_rate"`
}

// DimensionAnalysis holds the ranked groups of one dimension.
type DimensionAnalysis struct {
	Dimension   string          `json:"dimension"`
	Description string          `json:"description"`
	Ranking     []AnalysisGroup `json:"ranking"`
}

// MarketingReport is the consolidated report: global baseline,
// per-dimension rankings and headline insights. A plain immutable value
// assembled in one pass; each generation is a read-only snapshot.
type MarketingReport struct {
	ReportID    string              `json:"report_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	GlobalStats GlobalStats         `json:"global_stats"`
	Analyses    []DimensionAnalysis `json:"analyses"`
	TopInsights map[string]string   `json:"top_insights"`
}
