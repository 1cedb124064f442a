package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/reposcout/internal/api"
	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/go-chi/chi/v5"
)

type ResultsService interface {
	List(ctx context.Context, requestID string, all bool) ([]*domain.RepoAnalysisResult, error)
}

type ReportService interface {
	DownloadURL(ctx context.Context, requestID string) (string, error)
}

type EnrichmentService interface {
	List(ctx context.Context, requestID string) ([]*domain.Enrichment, error)
}

type ResultsHandler struct {
	results     ResultsService
	reports     ReportService
	enrichments EnrichmentService
}

func NewResultsHandler(results ResultsService, reports ReportService, enrichments EnrichmentService) *ResultsHandler {
	return &ResultsHandler{results: results, reports: reports, enrichments: enrichments}
}

type ReportResponse struct {
	URL string `json:"url"`
}

// List returns the judged shortlist of a completed request, or every result
// row when the request is still running or all=true.
func (h *ResultsHandler) List(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	results, err := h.results.List(r.Context(), chi.URLParam(r, "requestId"), all)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if results == nil {
		results = []*domain.RepoAnalysisResult{}
	}
	api.Success(w, http.StatusOK, results)
}

func (h *ResultsHandler) Report(w http.ResponseWriter, r *http.Request) {
	url, err := h.reports.DownloadURL(r.Context(), chi.URLParam(r, "requestId"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, ReportResponse{URL: url})
}

func (h *ResultsHandler) Enrichments(w http.ResponseWriter, r *http.Request) {
	enrichments, err := h.enrichments.List(r.Context(), chi.URLParam(r, "requestId"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if enrichments == nil {
		enrichments = []*domain.Enrichment{}
	}
	api.Success(w, http.StatusOK, enrichments)
}
