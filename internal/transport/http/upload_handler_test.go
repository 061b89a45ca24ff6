package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "leaddecisions/internal/errors"
	"leaddecisions/pkg/contracts/domain"
)

type fakeImportService struct {
	received domain.Upload
	err      error
}

func (f *fakeImportService) Import(_ context.Context, up domain.Upload) error {
	f.received = up
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func uploadRouter(svc ImportService) chi.Router {
	r := chi.NewRouter()
	NewUploadHandler(svc, 10<<20, discardLogger()).RegisterRoutes(r)
	return r
}

func multipartBody(t *testing.T, fieldName, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fieldName, fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func decodeError(t *testing.T, body *bytes.Buffer) apperrors.ErrorResponse {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp
}

func TestUploadSuccess(t *testing.T) {
	svc := &fakeImportService{}
	body, contentType := multipartBody(t, "file", "leads.xlsx", []byte("workbook-bytes"))

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	uploadRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "leads.xlsx", svc.received.Name)
	assert.Equal(t, []byte("workbook-bytes"), svc.received.Content)
}

func TestUploadMissingFile(t *testing.T) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("other", "value"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	uploadRouter(&fakeImportService{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec.Body)
	assert.Equal(t, "File is required.", resp.Error.Message)
}

func TestUploadNotMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewBufferString("plain body"))
	rec := httptest.NewRecorder()
	uploadRouter(&fakeImportService{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejectsBadFileNames(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
	}{
		{"wrong extension", "leads.csv"},
		{"path traversal", "../leads.xlsx"},
		{"path separator", "dir/leads.xlsx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeImportService{}
			body, contentType := multipartBody(t, "file", tt.fileName, []byte("x"))

			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			uploadRouter(svc).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec.Body)
			assert.Equal(t, "VALIDATION_FAILED", resp.Error.ErrorCode)
			assert.Empty(t, svc.received.Name, "service never called")
		})
	}
}

func TestUploadServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"integrity", apperrors.NewIntegrityError("Lead ID not found in BASE: 99999"), http.StatusBadRequest, "INTEGRITY_VIOLATION"},
		{"validation", apperrors.NewValidationError("Missing sheet: BASE"), http.StatusBadRequest, "VALIDATION_FAILED"},
		{"parsing", apperrors.NewParsingError("Unable to read XLSX file.", nil), http.StatusUnprocessableEntity, "UNREADABLE_FILE"},
		{"storage", apperrors.NewStorageError("commit failed", nil), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeImportService{err: tt.err}
			body, contentType := multipartBody(t, "file", "leads.xlsx", []byte("x"))

			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			uploadRouter(svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec.Body)
			assert.Equal(t, tt.wantCode, resp.Error.ErrorCode)
		})
	}
}
