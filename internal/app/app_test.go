package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"leaddecisions/internal/config"
	"leaddecisions/pkg/contracts/domain"
)

func testApp(t *testing.T) *App {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Port = 8080
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Logging.Level = "error"
	cfg.Logging.Format = "json"
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "leads.db")
	cfg.Import.MaxUploadBytes = 10 << 20
	cfg.Analytics.StatisticalThreshold = 10
	cfg.Security.RateLimit.Enabled = false

	a, err := New(cfg)
	require.NoError(t, err)
	a.hub.Start()
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	return a
}

func workbookBytes(t *testing.T) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheets := map[string][][]string{
		"BASE": {
			{"LEAD_ID", "DATA CADASTRO", "VENDIDO"},
			{"1", "01/01/2026 10:00", "SIM"},
			{"2", "02/01/2026", "NAO"},
			{"3", "03/01/2026", "SIM"},
		},
		"MERCADO": {
			{"LEAD_ID", "MERCADO"},
			{"1", "Tecnologia"},
			{"2", "Tecnologia"},
			{"3", "Varejo"},
		},
		"ORIGEM": {
			{"LEAD_ID", "ORIGEM", "SUB-ORIGEM"},
			{"1", "Google", "Ads"},
		},
		"LOCAL":    {{"LEAD_ID", "LOCAL"}},
		"PORTE":    {{"LEAD_ID", "PORTE"}},
		"OBJETIVO": {{"LEAD_ID", "OBJETIVO"}},
	}

	first := true
	for _, name := range []string{"BASE", "MERCADO", "ORIGEM", "LOCAL", "PORTE", "OBJETIVO"} {
		if first {
			require.NoError(t, f.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cells := make([]interface{}, len(row))
			for c, v := range row {
				cells[c] = v
			}
			require.NoError(t, f.SetSheetRow(name, fmt.Sprintf("A%d", r+1), &cells))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func postUpload(t *testing.T, router http.Handler, fileName string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/etl/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUploadThenReport(t *testing.T) {
	a := testApp(t)

	rec := postUpload(t, a.Router(), "leads.xlsx", workbookBytes(t))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/report", nil)
	rec = httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var report domain.MarketingReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))

	assert.Equal(t, int64(3), report.GlobalStats.TotalLeads)
	assert.Equal(t, int64(2), report.GlobalStats.TotalSales)

	require.Len(t, report.Analyses, 2)
	market := report.Analyses[0]
	assert.Equal(t, "MERCADO", market.Dimension)
	require.Len(t, market.Ranking, 2)
	// Volumes below the threshold stay inconclusive.
	for _, group := range market.Ranking {
		assert.Equal(t, domain.StatusInconclusive, group.Status)
	}
	assert.Empty(t, report.TopInsights)
}

func TestUploadCorruptFile(t *testing.T) {
	a := testApp(t)

	rec := postUpload(t, a.Router(), "broken.xlsx", []byte("not a workbook"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// The rejected upload leaves no leads behind.
	req := httptest.NewRequest(http.MethodGet, "/api/analytics/report", nil)
	reportRec := httptest.NewRecorder()
	a.Router().ServeHTTP(reportRec, req)

	var report domain.MarketingReport
	require.NoError(t, json.NewDecoder(reportRec.Body).Decode(&report))
	assert.Zero(t, report.GlobalStats.TotalLeads)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	a := testApp(t)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestUploadAccumulatesAcrossRequests(t *testing.T) {
	a := testApp(t)

	require.Equal(t, http.StatusNoContent, postUpload(t, a.Router(), "a.xlsx", workbookBytes(t)).Code)
	require.Equal(t, http.StatusNoContent, postUpload(t, a.Router(), "b.xlsx", workbookBytes(t)).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/report", nil)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)

	var report domain.MarketingReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, int64(6), report.GlobalStats.TotalLeads)
}
