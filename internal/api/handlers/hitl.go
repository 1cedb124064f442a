package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/reposcout/internal/api"
	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/service"
	"github.com/go-chi/chi/v5"
)

type ReviewService interface {
	ListPending(ctx context.Context, requestID string) ([]*domain.HitlReviewItem, error)
	SubmitReview(ctx context.Context, reviewID, verdict, rationale string) (*service.ReviewResult, error)
}

// HITLHandler serves the human review gate.
type HITLHandler struct {
	svc ReviewService
}

func NewHITLHandler(svc ReviewService) *HITLHandler {
	return &HITLHandler{svc: svc}
}

type ReviewItemResponse struct {
	ID               string          `json:"id"`
	RepoSnapshotJSON json.RawMessage `json:"repoSnapshotJson"`
}

type SubmitReviewRequest struct {
	UserVerdict string `json:"userVerdict"`
	Rationale   string `json:"rationale"`
}

type SubmitReviewResponse struct {
	Message string `json:"message"`
}

func (h *HITLHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListPending(r.Context(), chi.URLParam(r, "requestId"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]ReviewItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, ReviewItemResponse{ID: it.ID, RepoSnapshotJSON: it.RepoSnapshot})
	}
	api.Success(w, http.StatusOK, out)
}

func (h *HITLHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req SubmitReviewRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.SubmitReview(r.Context(), chi.URLParam(r, "reviewId"), req.UserVerdict, req.Rationale)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	msg := "review recorded"
	if res.Continued {
		msg = "review recorded; search continuing"
	}
	api.Success(w, http.StatusOK, SubmitReviewResponse{Message: msg})
}
