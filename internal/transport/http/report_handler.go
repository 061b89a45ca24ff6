package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"leaddecisions/pkg/contracts/domain"
)

// ReportGenerator is the handler's view of the reporting service.
type ReportGenerator interface {
	Generate(ctx context.Context) (*domain.MarketingReport, error)
}

// ReportHandler serves consolidated marketing reports.
type ReportHandler struct {
	service ReportGenerator
	logger  *slog.Logger
}

// NewReportHandler creates the report handler.
func NewReportHandler(service ReportGenerator, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "report")),
	}
}

// RegisterRoutes mounts the report endpoint.
func (h *ReportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/report", h.Report)
}

// Report handles GET /api/analytics/report. Every call computes a fresh
// report from the current store contents.
func (h *ReportHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Generate(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, report)
}
