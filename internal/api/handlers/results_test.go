package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestResultsHandler_List(t *testing.T) {
	results := new(MockResultsService)
	results.On("List", mock.Anything, "req-1", false).Return([]*domain.RepoAnalysisResult{
		{ID: "a", RepoURL: "https://github.com/a/a", Ranking: 88, Status: domain.AnalysisStatusComplete},
	}, nil)
	results.On("List", mock.Anything, "req-1", true).Return([]*domain.RepoAnalysisResult{{ID: "a"}, {ID: "b"}}, nil)
	handler := NewResultsHandler(results, nil, nil)

	w := httptest.NewRecorder()
	handler.List(w, withURLParam(httptest.NewRequest(http.MethodGet, "/results/req-1", nil), "requestId", "req-1"))
	assert.Equal(t, http.StatusOK, w.Code)
	var judged []domain.RepoAnalysisResult
	decodeData(t, w, &judged)
	require.Len(t, judged, 1)
	assert.Equal(t, 88, judged[0].Ranking)

	w = httptest.NewRecorder()
	handler.List(w, withURLParam(httptest.NewRequest(http.MethodGet, "/results/req-1?all=true", nil), "requestId", "req-1"))
	var all []domain.RepoAnalysisResult
	decodeData(t, w, &all)
	assert.Len(t, all, 2)
	results.AssertExpectations(t)
}

func TestResultsHandler_Report(t *testing.T) {
	reports := new(MockReportService)
	reports.On("DownloadURL", mock.Anything, "req-1").Return("https://s3.local/reports/req-1.json", nil)
	reports.On("DownloadURL", mock.Anything, "req-2").Return("", domain.ErrReportNotFound)
	handler := NewResultsHandler(nil, reports, nil)

	w := httptest.NewRecorder()
	handler.Report(w, withURLParam(httptest.NewRequest(http.MethodGet, "/results/req-1/report", nil), "requestId", "req-1"))
	assert.Equal(t, http.StatusOK, w.Code)
	var resp ReportResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "https://s3.local/reports/req-1.json", resp.URL)

	w = httptest.NewRecorder()
	handler.Report(w, withURLParam(httptest.NewRequest(http.MethodGet, "/results/req-2/report", nil), "requestId", "req-2"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResultsHandler_Enrichments(t *testing.T) {
	enrichments := new(MockEnrichmentService)
	enrichments.On("List", mock.Anything, "req-1").Return(nil, nil)
	handler := NewResultsHandler(nil, nil, enrichments)

	w := httptest.NewRecorder()
	handler.Enrichments(w, withURLParam(httptest.NewRequest(http.MethodGet, "/enrichments/req-1", nil), "requestId", "req-1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
}
