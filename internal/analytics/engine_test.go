package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaddecisions/pkg/contracts/domain"
)

type stubPort struct {
	totalLeads int64
	totalSold  int64
	markets    []domain.DimensionStat
	sources    []domain.DimensionStat
	err        error
}

func (s *stubPort) CountTotalLeads(context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.totalLeads, nil
}

func (s *stubPort) CountTotalSold(context.Context) (int64, error) {
	return s.totalSold, nil
}

func (s *stubPort) StatsByMarket(context.Context) ([]domain.DimensionStat, error) {
	return s.markets, nil
}

func (s *stubPort) StatsBySource(context.Context) ([]domain.DimensionStat, error) {
	return s.sources, nil
}

func testEngine(port AggregationPort, threshold int) *Engine {
	return NewEngine(port, threshold, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerateReportGlobalStats(t *testing.T) {
	port := &stubPort{totalLeads: 200, totalSold: 50}

	report, err := testEngine(port, 10).GenerateReport(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.ReportID)
	assert.False(t, report.GeneratedAt.IsZero())
	assert.Equal(t, int64(200), report.GlobalStats.TotalLeads)
	assert.Equal(t, int64(50), report.GlobalStats.TotalSales)
	assert.InDelta(t, 25.0, report.GlobalStats.OverallConversionRate, 1e-9)
}

func TestGenerateReportEmptyStore(t *testing.T) {
	report, err := testEngine(&stubPort{}, 10).GenerateReport(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.GlobalStats.OverallConversionRate)
	require.Len(t, report.Analyses, 2)
	assert.Equal(t, "MERCADO", report.Analyses[0].Dimension)
	assert.Equal(t, "Performance por segmento", report.Analyses[0].Description)
	assert.Equal(t, "ORIGEM", report.Analyses[1].Dimension)
	assert.Equal(t, "Performance por canal", report.Analyses[1].Description)
	assert.Empty(t, report.Analyses[0].Ranking)
	assert.Empty(t, report.TopInsights)
}

func TestGenerateReportClassification(t *testing.T) {
	// Global rate 20%.
	port := &stubPort{
		totalLeads: 100,
		totalSold:  20,
		markets: []domain.DimensionStat{
			{CategoryName: "Tecnologia", TotalLeads: 50, TotalSold: 15}, // 30% above
			{CategoryName: "Varejo", TotalLeads: 40, TotalSold: 4},      // 10% below
			{CategoryName: "Nicho", TotalLeads: 5, TotalSold: 5},        // 100% but tiny
		},
	}

	report, err := testEngine(port, 10).GenerateReport(context.Background())
	require.NoError(t, err)

	ranking := report.Analyses[0].Ranking
	require.Len(t, ranking, 3)

	assert.Equal(t, "Nicho", ranking[0].GroupName)
	assert.Equal(t, domain.StatusInconclusive, ranking[0].Status)
	assert.InDelta(t, 100.0, ranking[0].ConversionRate, 1e-9)

	assert.Equal(t, "Tecnologia", ranking[1].GroupName)
	assert.Equal(t, domain.StatusAboveAverage, ranking[1].Status)
	assert.InDelta(t, 30.0, ranking[1].ConversionRate, 1e-9)

	assert.Equal(t, "Varejo", ranking[2].GroupName)
	assert.Equal(t, domain.StatusBelowAverage, ranking[2].Status)
	assert.InDelta(t, 10.0, ranking[2].ConversionRate, 1e-9)
}

func TestGenerateReportRateExactlyAtAverage(t *testing.T) {
	// Global rate 20%; a group at exactly 20% counts as above average.
	port := &stubPort{
		totalLeads: 100,
		totalSold:  20,
		markets: []domain.DimensionStat{
			{CategoryName: "Equilibrado", TotalLeads: 20, TotalSold: 4},
		},
	}

	report, err := testEngine(port, 10).GenerateReport(context.Background())
	require.NoError(t, err)

	group := report.Analyses[0].Ranking[0]
	assert.Equal(t, domain.StatusAboveAverage, group.Status)
}

func TestGenerateReportTieBreakBySold(t *testing.T) {
	port := &stubPort{
		totalLeads: 100,
		totalSold:  10,
		markets: []domain.DimensionStat{
			{CategoryName: "Pequeno", TotalLeads: 20, TotalSold: 5},  // 25%
			{CategoryName: "Grande", TotalLeads: 40, TotalSold: 10},  // 25%
			{CategoryName: "Terceiro", TotalLeads: 50, TotalSold: 5}, // 10%
		},
	}

	report, err := testEngine(port, 10).GenerateReport(context.Background())
	require.NoError(t, err)

	ranking := report.Analyses[0].Ranking
	assert.Equal(t, "Grande", ranking[0].GroupName, "equal rates rank by sold count")
	assert.Equal(t, "Pequeno", ranking[1].GroupName)
	assert.Equal(t, "Terceiro", ranking[2].GroupName)
}

func TestGenerateReportRounding(t *testing.T) {
	// 1/3 -> 0.3333 -> 33.33; 2/3 -> 0.6667 -> 66.67.
	port := &stubPort{
		totalLeads: 60,
		totalSold:  30,
		markets: []domain.DimensionStat{
			{CategoryName: "Um Terço", TotalLeads: 30, TotalSold: 10},
			{CategoryName: "Dois Terços", TotalLeads: 30, TotalSold: 20},
		},
	}

	report, err := testEngine(port, 10).GenerateReport(context.Background())
	require.NoError(t, err)

	ranking := report.Analyses[0].Ranking
	assert.InDelta(t, 66.67, ranking[0].ConversionRate, 1e-9)
	assert.InDelta(t, 33.33, ranking[1].ConversionRate, 1e-9)
}

func TestGenerateReportTopInsights(t *testing.T) {
	port := &stubPort{
		totalLeads: 100,
		totalSold:  20,
		markets: []domain.DimensionStat{
			{CategoryName: "Nicho", TotalLeads: 2, TotalSold: 2},          // inconclusive, rate 100
			{CategoryName: "Tecnologia", TotalLeads: 50, TotalSold: 15},   // 30%
			{CategoryName: "Varejo", TotalLeads: 40, TotalSold: 4},        // 10%
		},
		sources: []domain.DimensionStat{
			{CategoryName: "Google", TotalLeads: 40, TotalSold: 11}, // 27.5%
		},
	}

	report, err := testEngine(port, 10).GenerateReport(context.Background())
	require.NoError(t, err)

	require.Len(t, report.TopInsights, 2)
	assert.Equal(t, "Tecnologia (30.0%)", report.TopInsights["Melhor MERCADO"],
		"inconclusive leaders are skipped")
	assert.Equal(t, "Google (27.5%)", report.TopInsights["Melhor ORIGEM"])
}

func TestGenerateReportBelowAverageNeverHeadlines(t *testing.T) {
	// Global rate 20%; the only conclusive group converts at 10%.
	port := &stubPort{
		totalLeads: 100,
		totalSold:  20,
		markets: []domain.DimensionStat{
			{CategoryName: "Varejo", TotalLeads: 40, TotalSold: 4},
		},
	}

	report, err := testEngine(port, 10).GenerateReport(context.Background())
	require.NoError(t, err)

	group := report.Analyses[0].Ranking[0]
	assert.Equal(t, domain.StatusBelowAverage, group.Status)
	assert.NotContains(t, report.TopInsights, "Melhor MERCADO")
	assert.Empty(t, report.TopInsights)
}

func TestGenerateReportNoConclusiveGroups(t *testing.T) {
	port := &stubPort{
		totalLeads: 5,
		totalSold:  2,
		markets: []domain.DimensionStat{
			{CategoryName: "Nicho", TotalLeads: 5, TotalSold: 2},
		},
	}

	report, err := testEngine(port, 10).GenerateReport(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.TopInsights)
}

func TestGenerateReportPortError(t *testing.T) {
	boom := errors.New("query failed")
	_, err := testEngine(&stubPort{err: boom}, 10).GenerateReport(context.Background())
	require.ErrorIs(t, err, boom)
}
