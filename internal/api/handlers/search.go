package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/reposcout/internal/api"
	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/service"
	"github.com/go-chi/chi/v5"
)

type SearchService interface {
	Submit(ctx context.Context, input service.SubmitInput) (*domain.SearchRequest, error)
	Get(ctx context.Context, id string) (*domain.SearchRequest, error)
	List(ctx context.Context, input service.ListRequestsInput) (*service.ListRequestsOutput, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SubmitSearchRequest struct {
	Query           string                     `json:"query"`
	Config          domain.SearchRequestConfig `json:"config"`
	ConfigurationID string                     `json:"configuration_id"`
}

type SubmitSearchResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

type RequestResponse struct {
	ID             string                     `json:"id"`
	Query          string                     `json:"query"`
	Status         string                     `json:"status"`
	Config         domain.SearchRequestConfig `json:"config"`
	FailureMessage string                     `json:"failure_message,omitempty"`
	CreatedAt      string                     `json:"created_at"`
	UpdatedAt      string                     `json:"updated_at"`
}

type ListRequestsResponse struct {
	Items   []*RequestResponse `json:"items"`
	Cursor  string             `json:"cursor,omitempty"`
	HasMore bool               `json:"has_more"`
}

func requestToResponse(req *domain.SearchRequest) *RequestResponse {
	return &RequestResponse{
		ID:             req.ID,
		Query:          req.Query,
		Status:         string(req.Status),
		Config:         req.Config,
		FailureMessage: req.FailureMessage,
		CreatedAt:      req.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:      req.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// Submit accepts a search and starts sampling in the background.
func (h *SearchHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitSearchRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	created, err := h.svc.Submit(r.Context(), service.SubmitInput{
		Query:           req.Query,
		Config:          req.Config,
		ConfigurationID: req.ConfigurationID,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, SubmitSearchResponse{
		Message:   "search accepted",
		RequestID: created.ID,
	})
}

func (h *SearchHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, requestToResponse(req))
}

func (h *SearchHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	q := r.URL.Query()
	out, err := h.svc.List(r.Context(), service.ListRequestsInput{
		Status: q.Get("status"),
		Cursor: q.Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*RequestResponse, 0, len(out.Items))
	for _, req := range out.Items {
		items = append(items, requestToResponse(req))
	}
	api.Success(w, http.StatusOK, ListRequestsResponse{Items: items, Cursor: out.Cursor, HasMore: out.HasMore})
}
