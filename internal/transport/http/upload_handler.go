package http

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "leaddecisions/internal/errors"
	"leaddecisions/pkg/contracts/domain"
)

// ImportService is the handler's view of the import pipeline.
type ImportService interface {
	Import(ctx context.Context, up domain.Upload) error
}

// UploadHandler accepts workbook uploads.
type UploadHandler struct {
	service  ImportService
	validate *validator.Validate
	maxBytes int64
	logger   *slog.Logger
}

type uploadRequest struct {
	FileName string `validate:"required,xlsxfile"`
}

// NewUploadHandler creates the upload handler. maxBytes caps the
// multipart body size.
func NewUploadHandler(service ImportService, maxBytes int64, logger *slog.Logger) *UploadHandler {
	v := validator.New()
	// File names must be plain .xlsx names with no path components.
	v.RegisterValidation("xlsxfile", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
			return false
		}
		return strings.HasSuffix(strings.ToLower(name), ".xlsx")
	})

	return &UploadHandler{
		service:  service,
		validate: v,
		maxBytes: maxBytes,
		logger:   logger.With(slog.String("handler", "upload")),
	}
}

// RegisterRoutes mounts the upload endpoint.
func (h *UploadHandler) RegisterRoutes(r chi.Router) {
	r.Post("/upload", h.Upload)
}

// Upload handles POST /api/etl/upload. The workbook arrives as the
// multipart field "file"; success is a bare 204.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		renderError(w, r, apperrors.NewValidationError("File is required."))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		renderError(w, r, apperrors.NewValidationError("File is required."))
		return
	}
	defer file.Close()

	req := uploadRequest{FileName: rawFileName(header)}
	if err := h.validate.Struct(req); err != nil {
		render.Render(w, r, apperrors.NewErrorResponse(
			apperrors.ErrValidation("file", "file name must be a plain .xlsx name")))
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		renderError(w, r, apperrors.NewParsingError("Unable to read XLSX file.", err))
		return
	}

	up := domain.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}
	if err := h.service.Import(r.Context(), up); err != nil {
		renderError(w, r, err)
		return
	}

	render.NoContent(w, r)
}

// rawFileName recovers the filename exactly as the client sent it.
// FileHeader.Filename is already base-named by the multipart parser,
// which would mask path components the validation must see.
func rawFileName(header *multipart.FileHeader) string {
	if cd := header.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name, ok := params["filename"]; ok {
				return name
			}
		}
	}
	return header.Filename
}

// renderError maps service failures onto the API error contract.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	render.Render(w, r, apperrors.NewErrorResponse(apperrors.FromAppError(err)))
}
