package analytics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"leaddecisions/pkg/contracts/domain"
)

// AggregationPort is the read side of the store the engine depends on.
// Implementations return counts only; classification and ranking stay
// in memory here.
type AggregationPort interface {
	CountTotalLeads(ctx context.Context) (int64, error)
	CountTotalSold(ctx context.Context) (int64, error)
	StatsByMarket(ctx context.Context) ([]domain.DimensionStat, error)
	StatsBySource(ctx context.Context) ([]domain.DimensionStat, error)
}

type dimensionSpec struct {
	name        string
	description string
	query       func(AggregationPort, context.Context) ([]domain.DimensionStat, error)
}

// dimensions are processed in fixed order so report output is stable.
var dimensions = []dimensionSpec{
	{
		name:        "MERCADO",
		description: "Performance por segmento",
		query: func(p AggregationPort, ctx context.Context) ([]domain.DimensionStat, error) {
			return p.StatsByMarket(ctx)
		},
	},
	{
		name:        "ORIGEM",
		description: "Performance por canal",
		query: func(p AggregationPort, ctx context.Context) ([]domain.DimensionStat, error) {
			return p.StatsBySource(ctx)
		},
	},
}

// Engine builds marketing reports from aggregated counts. Stateless
// between calls; safe for concurrent use.
type Engine struct {
	port      AggregationPort
	threshold int
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewEngine creates a reporting engine. threshold is the minimum lead
// volume a group needs before it is compared to the global baseline.
func NewEngine(port AggregationPort, threshold int, logger *slog.Logger) *Engine {
	return &Engine{
		port:      port,
		threshold: threshold,
		logger:    logger.With(slog.String("component", "analytics.engine")),
		tracer:    otel.Tracer("leaddecisions/analytics"),
	}
}

// GenerateReport computes the global baseline, then ranks and classifies
// every dimension against it. The baseline is always computed first:
// group classification depends on it.
func (e *Engine) GenerateReport(ctx context.Context) (*domain.MarketingReport, error) {
	ctx, span := e.tracer.Start(ctx, "analytics.generate_report")
	defer span.End()

	global, err := e.globalStats(ctx)
	if err != nil {
		return nil, err
	}

	report := &domain.MarketingReport{
		ReportID:    uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		GlobalStats: global,
		TopInsights: make(map[string]string),
	}

	for _, dim := range dimensions {
		stats, err := dim.query(e.port, ctx)
		if err != nil {
			return nil, err
		}
		analysis := e.processDimension(dim, stats, global.OverallConversionRate)
		report.Analyses = append(report.Analyses, analysis)

		if insight, ok := topInsight(analysis.Ranking); ok {
			report.TopInsights["Melhor "+dim.name] = insight
		}
	}

	span.SetAttributes(
		attribute.Int64("report.total_leads", global.TotalLeads),
		attribute.String("report.id", report.ReportID),
	)
	e.logger.InfoContext(ctx, "report generated",
		slog.String("report_id", report.ReportID),
		slog.Int64("total_leads", global.TotalLeads),
		slog.Int64("total_sales", global.TotalSales),
		slog.Float64("overall_rate", global.OverallConversionRate))

	return report, nil
}

// globalStats computes the report header. The overall rate here is a
// plain percentage used only as a comparison baseline, so it is not run
// through the decimal rounding the per-group rates get.
func (e *Engine) globalStats(ctx context.Context) (domain.GlobalStats, error) {
	totalLeads, err := e.port.CountTotalLeads(ctx)
	if err != nil {
		return domain.GlobalStats{}, err
	}
	totalSold, err := e.port.CountTotalSold(ctx)
	if err != nil {
		return domain.GlobalStats{}, err
	}

	rate := 0.0
	if totalLeads > 0 {
		rate = float64(totalSold) / float64(totalLeads) * 100
	}

	return domain.GlobalStats{
		TotalLeads:            totalLeads,
		TotalSales:            totalSold,
		OverallConversionRate: rate,
	}, nil
}

// processDimension classifies each group and sorts the ranking by rate
// descending, ties broken by sold count descending. The sort is stable,
// so groups still tied keep their query order.
func (e *Engine) processDimension(dim dimensionSpec, stats []domain.DimensionStat, globalRate float64) domain.DimensionAnalysis {
	groups := make([]domain.AnalysisGroup, 0, len(stats))
	for _, stat := range stats {
		groups = append(groups, domain.NewAnalysisGroup(stat, e.threshold, globalRate))
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].ConversionRate != groups[j].ConversionRate {
			return groups[i].ConversionRate > groups[j].ConversionRate
		}
		return groups[i].TotalSold > groups[j].TotalSold
	})

	return domain.DimensionAnalysis{
		Dimension:   dim.name,
		Description: dim.description,
		Ranking:     groups,
	}
}

// topInsight names the best above-average group of a ranking. A
// dimension with no above-average group headlines nothing: neither an
// inconclusive leader nor the least-bad underperformer is an insight.
func topInsight(ranking []domain.AnalysisGroup) (string, bool) {
	for _, group := range ranking {
		if group.Status != domain.StatusAboveAverage {
			continue
		}
		return group.GroupName + " (" + domain.FormatRate(group.ConversionRate) + "%)", true
	}
	return "", false
}
