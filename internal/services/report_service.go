package services

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"leaddecisions/internal/analytics"
	"leaddecisions/internal/metrics"
	"leaddecisions/internal/websocket"
	"leaddecisions/pkg/contracts/domain"
)

// ReportService generates marketing reports on demand. Each call is an
// independent read of the store; nothing is cached between calls.
type ReportService struct {
	engine  *analytics.Engine
	hub     *websocket.Hub
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewReportService wires the reporting path.
func NewReportService(engine *analytics.Engine, hub *websocket.Hub, m *metrics.Metrics, logger *slog.Logger) *ReportService {
	return &ReportService{
		engine:  engine,
		hub:     hub,
		metrics: m,
		logger:  logger.With(slog.String("service", "reports")),
		tracer:  otel.Tracer("leaddecisions/services"),
	}
}

// Generate builds a fresh report and announces it to connected clients.
func (s *ReportService) Generate(ctx context.Context) (*domain.MarketingReport, error) {
	ctx, span := s.tracer.Start(ctx, "services.generate_report")
	defer span.End()

	report, err := s.engine.GenerateReport(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "report generation failed",
			slog.String("error", err.Error()))
		return nil, err
	}

	s.metrics.ReportsTotal.Inc()
	s.hub.ReportGenerated(ctx, report.ReportID)
	return report, nil
}
