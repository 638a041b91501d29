package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/therapii/api-server-go/internal/middleware"
	"github.com/therapii/api-server-go/internal/model"
	"github.com/therapii/api-server-go/internal/service"
)

type InvitationHandler struct {
	invitationService *service.InvitationService
}

func NewInvitationHandler(invitationService *service.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitationService: invitationService}
}

// POST /v1/invitations
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateInvitationInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.invitationService.Create(r.Context(), middleware.CallerID(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":      result.Success,
		"invitationId": result.InvitationID,
		"emailSent":    result.EmailSent,
		"invitation":   formatInvitation(result.Invitation, false),
	})
}

// GET /v1/invitations/preview/{code}
func (h *InvitationHandler) Preview(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invitationService.Preview(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"invitation": formatInvitation(inv, false)})
}

// POST /v1/invitations/redeem
func (h *InvitationHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	inv, err := h.invitationService.Redeem(r.Context(), req.Code, middleware.CallerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"invitation": formatInvitation(inv, true)})
}

// DELETE /v1/invitations/{invitationId}
func (h *InvitationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.invitationService.Delete(r.Context(), chi.URLParam(r, "invitationId"), middleware.CallerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GET /v1/therapists/{therapistId}/invitations?filter=all|accepted
func (h *InvitationHandler) ListForTherapist(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, service.ListInvitationsInput{
		OwnerID: chi.URLParam(r, "therapistId"),
		Filter:  model.InvitationFilter(r.URL.Query().Get("filter")),
		Role:    model.RoleTherapist,
	})
}

// GET /v1/patients/{patientId}/invitations
func (h *InvitationHandler) ListForPatient(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, service.ListInvitationsInput{
		OwnerID: chi.URLParam(r, "patientId"),
		Filter:  model.InvitationFilterAccepted,
		Role:    model.RolePatient,
	})
}

func (h *InvitationHandler) list(w http.ResponseWriter, r *http.Request, in service.ListInvitationsInput) {
	invitations, err := h.invitationService.List(r.Context(), middleware.CallerID(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(invitations))
	for i := range invitations {
		out = append(out, formatInvitation(&invitations[i], true))
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": out})
}
