package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/therapii/api-server-go/internal/middleware"
	"github.com/therapii/api-server-go/internal/service"
)

type AIHandler struct {
	aiService *service.AIService
}

func NewAIHandler(aiService *service.AIService) *AIHandler {
	return &AIHandler{aiService: aiService}
}

func (h *AIHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/completions", h.Complete)
	r.Post("/summaries", h.SaveSummary)

	return r
}

// POST /v1/ai/completions
func (h *AIHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req service.CompletionInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.aiService.Complete(r.Context(), middleware.CallerID(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /v1/ai/summaries
func (h *AIHandler) SaveSummary(w http.ResponseWriter, r *http.Request) {
	var req service.SummaryInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.aiService.SaveSummary(r.Context(), middleware.CallerID(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}
