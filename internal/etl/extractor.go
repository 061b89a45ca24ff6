package etl

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "leaddecisions/internal/errors"
	"leaddecisions/pkg/contracts/domain"
)

// Sink is the persistence boundary for one extraction. Every call is
// assumed to execute inside one ambient transaction spanning the whole
// Extract invocation, so a late failure rolls back earlier saves.
type Sink interface {
	SaveDocument(ctx context.Context, doc *domain.Document) error
	SaveLeads(ctx context.Context, leads []*domain.Lead) error
	SaveMarkets(ctx context.Context, markets []domain.Market) error
	SaveSources(ctx context.Context, sources []domain.Source) error
	SaveLocations(ctx context.Context, locations []domain.Location) error
	SaveSizes(ctx context.Context, sizes []domain.Size) error
	SaveObjectives(ctx context.Context, objectives []domain.Objective) error
}

// Extractor turns an uploaded workbook into a validated graph of leads
// and dimensional facts, handing each batch to the sink as soon as its
// sheet is fully validated. Synchronous and single-threaded; safe to
// share across goroutines only because it keeps no per-call state.
type Extractor struct {
	logger *slog.Logger
	tracer trace.Tracer
}

// NewExtractor creates an extraction pipeline.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{
		logger: logger.With(slog.String("component", "etl.extractor")),
		tracer: otel.Tracer("leaddecisions/etl"),
	}
}

// Extract runs the full pipeline:
//
//  1. reject null/empty uploads before any parsing
//  2. record the Document as an auditable trace of the attempt
//  3. open the workbook (corrupt bytes surface as an unreadable-file
//     failure, after the document save)
//  4. read BASE into an in-memory lead map keyed by business key
//  5. read each dimensional sheet in fixed order, resolving leads
//     against the map; an unresolved key fails the whole operation
//  6. persist leads first, then each non-empty dimension batch
//
// The lead map is scoped to this call and discarded with it.
func (e *Extractor) Extract(ctx context.Context, up domain.Upload, sink Sink) error {
	if up.IsEmpty() {
		return apperrors.NewValidationError("File is required.")
	}

	ctx, span := e.tracer.Start(ctx, "etl.extract",
		trace.WithAttributes(
			attribute.String("upload.name", up.Name),
			attribute.Int("upload.bytes", len(up.Content)),
		))
	defer span.End()

	doc := &domain.Document{
		ID:          uuid.New().String(),
		Name:        up.Name,
		ContentType: up.ContentType,
		Content:     up.Content,
		UploadedAt:  time.Now().UTC(),
	}
	if err := sink.SaveDocument(ctx, doc); err != nil {
		return err
	}

	wb, err := OpenWorkbook(up.Content)
	if err != nil {
		return apperrors.NewParsingError("Unable to read XLSX file.", err)
	}
	defer wb.Close()

	leads, ordered, markets, err := e.readBaseSheet(wb, doc)
	if err != nil {
		return err
	}
	if err := sink.SaveLeads(ctx, ordered); err != nil {
		return err
	}

	markets, err = e.readMarketSheet(wb, leads, markets)
	if err != nil {
		return err
	}
	if len(markets) > 0 {
		if err := sink.SaveMarkets(ctx, markets); err != nil {
			return err
		}
	}

	sources, err := e.readSourceSheet(wb, leads)
	if err != nil {
		return err
	}
	if len(sources) > 0 {
		if err := sink.SaveSources(ctx, sources); err != nil {
			return err
		}
	}

	locations, err := e.readLocationSheet(wb, leads)
	if err != nil {
		return err
	}
	if len(locations) > 0 {
		if err := sink.SaveLocations(ctx, locations); err != nil {
			return err
		}
	}

	sizes, err := e.readSizeSheet(wb, leads)
	if err != nil {
		return err
	}
	if len(sizes) > 0 {
		if err := sink.SaveSizes(ctx, sizes); err != nil {
			return err
		}
	}

	objectives, err := e.readObjectiveSheet(wb, leads)
	if err != nil {
		return err
	}
	if len(objectives) > 0 {
		if err := sink.SaveObjectives(ctx, objectives); err != nil {
			return err
		}
	}

	e.logger.InfoContext(ctx, "extraction complete",
		slog.String("document_id", doc.ID),
		slog.String("document_name", doc.Name),
		slog.Int("leads", len(ordered)),
		slog.Int("markets", len(markets)),
		slog.Int("sources", len(sources)),
		slog.Int("locations", len(locations)),
		slog.Int("sizes", len(sizes)),
		slog.Int("objectives", len(objectives)))

	return nil
}

// readBaseSheet establishes the existence of the Leads. Each valid row
// becomes a Lead stored in a map under its trimmed business key so the
// dimensional sheets can resolve references without touching storage.
// On a key collision the last row wins, silently; the existing record is
// updated in place so facts captured earlier keep pointing at it. When
// the BASE header carries an optional MERCADO column, non-blank values
// also yield Market facts.
func (e *Extractor) readBaseSheet(wb *Workbook, doc *domain.Document) (map[string]*domain.Lead, []*domain.Lead, []domain.Market, error) {
	rows, err := wb.RequireSheet(SheetBase)
	if err != nil {
		return nil, nil, nil, err
	}
	headers, err := HeaderIndex(rows, SheetBase)
	if err != nil {
		return nil, nil, nil, err
	}
	leadIdx, err := RequireColumn(headers, ColLeadID)
	if err != nil {
		return nil, nil, nil, err
	}
	createdIdx, err := RequireColumn(headers, ColCreatedAt)
	if err != nil {
		return nil, nil, nil, err
	}
	soldIdx, err := RequireColumn(headers, ColSold)
	if err != nil {
		return nil, nil, nil, err
	}
	marketIdx, hasMarket := headers[NormalizeHeader(ColMarket)]

	leads := make(map[string]*domain.Lead)
	var ordered []*domain.Lead
	var markets []domain.Market

	for i := 1; i < len(rows); i++ {
		row := rows[i]
		leadID := CellText(row, leadIdx)
		if leadID == "" {
			continue
		}

		createdAt, err := CellTimestamp(row, createdIdx, SheetBase, i)
		if err != nil {
			return nil, nil, nil, err
		}
		sold := ParseTriBool(CellText(row, soldIdx))

		lead, exists := leads[leadID]
		if !exists {
			lead = &domain.Lead{LeadID: leadID}
			leads[leadID] = lead
			ordered = append(ordered, lead)
		}
		lead.CreatedAt = createdAt
		lead.Sold = sold
		lead.Document = doc

		if hasMarket {
			if name := CellText(row, marketIdx); name != "" {
				markets = append(markets, domain.Market{Name: name, Lead: lead})
			}
		}
	}

	return leads, ordered, markets, nil
}

func (e *Extractor) readMarketSheet(wb *Workbook, leads map[string]*domain.Lead, markets []domain.Market) ([]domain.Market, error) {
	rows, err := wb.RequireSheet(SheetMarket)
	if err != nil {
		return nil, err
	}
	headers, err := HeaderIndex(rows, SheetMarket)
	if err != nil {
		return nil, err
	}
	leadIdx, err := RequireColumn(headers, ColLeadID)
	if err != nil {
		return nil, err
	}
	marketIdx, err := RequireColumn(headers, ColMarket)
	if err != nil {
		return nil, err
	}

	for i := 1; i < len(rows); i++ {
		row := rows[i]
		leadID := CellText(row, leadIdx)
		if leadID == "" {
			continue
		}
		lead, err := findLead(leads, leadID)
		if err != nil {
			return nil, err
		}
		if name := CellText(row, marketIdx); name != "" {
			markets = append(markets, domain.Market{Name: name, Lead: lead})
		}
	}
	return markets, nil
}

func (e *Extractor) readSourceSheet(wb *Workbook, leads map[string]*domain.Lead) ([]domain.Source, error) {
	rows, err := wb.RequireSheet(SheetSource)
	if err != nil {
		return nil, err
	}
	headers, err := HeaderIndex(rows, SheetSource)
	if err != nil {
		return nil, err
	}
	leadIdx, err := RequireColumn(headers, ColLeadID)
	if err != nil {
		return nil, err
	}
	sourceIdx, err := RequireColumn(headers, ColSource)
	if err != nil {
		return nil, err
	}
	subSourceIdx, err := RequireColumn(headers, ColSubSource)
	if err != nil {
		return nil, err
	}

	var sources []domain.Source
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		leadID := CellText(row, leadIdx)
		if leadID == "" {
			continue
		}
		lead, err := findLead(leads, leadID)
		if err != nil {
			return nil, err
		}
		name := CellText(row, sourceIdx)
		if name == "" {
			continue
		}
		sources = append(sources, domain.Source{
			Name:      name,
			SubSource: CellText(row, subSourceIdx),
			Lead:      lead,
		})
	}
	return sources, nil
}

func (e *Extractor) readLocationSheet(wb *Workbook, leads map[string]*domain.Lead) ([]domain.Location, error) {
	rows, err := wb.RequireSheet(SheetLocation)
	if err != nil {
		return nil, err
	}
	headers, err := HeaderIndex(rows, SheetLocation)
	if err != nil {
		return nil, err
	}
	leadIdx, err := RequireColumn(headers, ColLeadID)
	if err != nil {
		return nil, err
	}
	locationIdx, err := RequireColumn(headers, ColLocation)
	if err != nil {
		return nil, err
	}

	var locations []domain.Location
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		leadID := CellText(row, leadIdx)
		if leadID == "" {
			continue
		}
		lead, err := findLead(leads, leadID)
		if err != nil {
			return nil, err
		}
		if name := CellText(row, locationIdx); name != "" {
			locations = append(locations, domain.Location{Name: name, Lead: lead})
		}
	}
	return locations, nil
}

func (e *Extractor) readSizeSheet(wb *Workbook, leads map[string]*domain.Lead) ([]domain.Size, error) {
	rows, err := wb.RequireSheet(SheetSize)
	if err != nil {
		return nil, err
	}
	headers, err := HeaderIndex(rows, SheetSize)
	if err != nil {
		return nil, err
	}
	leadIdx, err := RequireColumn(headers, ColLeadID)
	if err != nil {
		return nil, err
	}
	sizeIdx, err := RequireColumn(headers, ColSize)
	if err != nil {
		return nil, err
	}

	var sizes []domain.Size
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		leadID := CellText(row, leadIdx)
		if leadID == "" {
			continue
		}
		lead, err := findLead(leads, leadID)
		if err != nil {
			return nil, err
		}
		if r := CellText(row, sizeIdx); r != "" {
			sizes = append(sizes, domain.Size{Range: r, Lead: lead})
		}
	}
	return sizes, nil
}

func (e *Extractor) readObjectiveSheet(wb *Workbook, leads map[string]*domain.Lead) ([]domain.Objective, error) {
	rows, err := wb.RequireSheet(SheetObjective)
	if err != nil {
		return nil, err
	}
	headers, err := HeaderIndex(rows, SheetObjective)
	if err != nil {
		return nil, err
	}
	leadIdx, err := RequireColumn(headers, ColLeadID)
	if err != nil {
		return nil, err
	}
	objectiveIdx, err := RequireColumn(headers, ColObjective)
	if err != nil {
		return nil, err
	}

	var objectives []domain.Objective
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		leadID := CellText(row, leadIdx)
		if leadID == "" {
			continue
		}
		lead, err := findLead(leads, leadID)
		if err != nil {
			return nil, err
		}
		if desc := CellText(row, objectiveIdx); desc != "" {
			objectives = append(objectives, domain.Objective{Description: desc, Lead: lead})
		}
	}
	return objectives, nil
}

// findLead resolves a business key against the in-memory map built from
// the BASE sheet. A key no dimensional sheet may mention without BASE
// declaring it first; hitting one aborts the whole extraction.
func findLead(leads map[string]*domain.Lead, leadID string) (*domain.Lead, error) {
	lead, ok := leads[leadID]
	if !ok {
		return nil, apperrors.NewIntegrityError("Lead ID not found in BASE: " + leadID)
	}
	return lead, nil
}
