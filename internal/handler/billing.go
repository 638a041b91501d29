package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/therapii/api-server-go/internal/middleware"
	"github.com/therapii/api-server-go/internal/model"
	"github.com/therapii/api-server-go/internal/service"
)

type BillingHandler struct {
	billingService *service.BillingService
}

func NewBillingHandler(billingService *service.BillingService) *BillingHandler {
	return &BillingHandler{billingService: billingService}
}

func (h *BillingHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Details)
	r.Post("/checkout", h.Checkout)
	r.Post("/redeem", h.RedeemCode)
	r.Get("/invoices", h.Invoices)

	return r
}

func caller(r *http.Request) model.Identity {
	if id := middleware.GetIdentity(r.Context()); id != nil {
		return *id
	}
	return model.Identity{}
}

// POST /v1/billing/checkout
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.billingService.CreateCheckoutSession(r.Context(), caller(r), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GET /v1/billing
func (h *BillingHandler) Details(w http.ResponseWriter, r *http.Request) {
	details, err := h.billingService.Details(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, details)
}

// POST /v1/billing/redeem
func (h *BillingHandler) RedeemCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.billingService.RedeemCode(r.Context(), caller(r), req.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GET /v1/billing/invoices
func (h *BillingHandler) Invoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.billingService.Invoices(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}
