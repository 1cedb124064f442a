package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/reposcout/internal/api"
	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/service"
	"github.com/go-chi/chi/v5"
)

type ConfigurationService interface {
	Create(ctx context.Context, input service.ConfigurationInput) (*domain.SearchConfiguration, error)
	Get(ctx context.Context, id string) (*domain.SearchConfiguration, error)
	List(ctx context.Context) ([]*domain.SearchConfiguration, error)
	Update(ctx context.Context, id string, input service.ConfigurationInput) (*domain.SearchConfiguration, error)
	Delete(ctx context.Context, id string) error
}

type ConfigurationHandler struct {
	svc ConfigurationService
}

func NewConfigurationHandler(svc ConfigurationService) *ConfigurationHandler {
	return &ConfigurationHandler{svc: svc}
}

type ConfigurationRequest struct {
	Name                string `json:"name"`
	TargetAnalysisCount int    `json:"target_analysis_count"`
	IsDefault           bool   `json:"is_default"`
}

func (req ConfigurationRequest) input() service.ConfigurationInput {
	return service.ConfigurationInput{
		Name:                req.Name,
		TargetAnalysisCount: req.TargetAnalysisCount,
		IsDefault:           req.IsDefault,
	}
}

func (h *ConfigurationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ConfigurationRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	c, err := h.svc.Create(r.Context(), req.input())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, c)
}

func (h *ConfigurationHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, c)
}

func (h *ConfigurationHandler) List(w http.ResponseWriter, r *http.Request) {
	configs, err := h.svc.List(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if configs == nil {
		configs = []*domain.SearchConfiguration{}
	}
	api.Success(w, http.StatusOK, configs)
}

func (h *ConfigurationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req ConfigurationRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	c, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, c)
}

func (h *ConfigurationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
