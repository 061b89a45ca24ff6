package services

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"leaddecisions/internal/etl"
	"leaddecisions/internal/metrics"
	"leaddecisions/internal/websocket"
	"leaddecisions/pkg/contracts/domain"
)

// TxRunner runs a function against a sink bound to one transaction.
// The store implements it; tests substitute fakes.
type TxRunner interface {
	InTx(ctx context.Context, fn func(etl.Sink) error) error
}

// LeadService orchestrates workbook imports: one transaction around the
// whole extraction, events to the hub, counters to the registry.
type LeadService struct {
	extractor *etl.Extractor
	tx        TxRunner
	hub       *websocket.Hub
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewLeadService wires the import pipeline.
func NewLeadService(extractor *etl.Extractor, tx TxRunner, hub *websocket.Hub, m *metrics.Metrics, logger *slog.Logger) *LeadService {
	return &LeadService{
		extractor: extractor,
		tx:        tx,
		hub:       hub,
		metrics:   m,
		logger:    logger.With(slog.String("service", "leads")),
		tracer:    otel.Tracer("leaddecisions/services"),
	}
}

// Import runs a full workbook import. On any failure the transaction is
// rolled back and nothing of the upload survives.
func (s *LeadService) Import(ctx context.Context, up domain.Upload) error {
	ctx, span := s.tracer.Start(ctx, "services.import",
		trace.WithAttributes(attribute.String("file_name", up.Name)))
	defer span.End()

	start := time.Now()
	s.hub.ImportStarted(ctx, up.Name)

	err := s.tx.InTx(ctx, func(sink etl.Sink) error {
		return s.extractor.Extract(ctx, up, countingSink{Sink: sink, metrics: s.metrics})
	})

	duration := time.Since(start)
	s.metrics.ImportDuration.Observe(duration.Seconds())

	if err != nil {
		s.metrics.ImportsTotal.WithLabelValues("failure").Inc()
		s.hub.ImportFailed(ctx, up.Name, err.Error())
		s.logger.ErrorContext(ctx, "import failed",
			slog.String("file_name", up.Name),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return err
	}

	s.metrics.ImportsTotal.WithLabelValues("success").Inc()
	s.hub.ImportCompleted(ctx, up.Name)
	s.logger.InfoContext(ctx, "import completed",
		slog.String("file_name", up.Name),
		slog.Duration("duration", duration))
	return nil
}

// countingSink forwards to the transactional sink and feeds the lead
// counter on the way through.
type countingSink struct {
	etl.Sink
	metrics *metrics.Metrics
}

func (c countingSink) SaveLeads(ctx context.Context, leads []*domain.Lead) error {
	if err := c.Sink.SaveLeads(ctx, leads); err != nil {
		return err
	}
	c.metrics.LeadsImported.Add(float64(len(leads)))
	return nil
}
