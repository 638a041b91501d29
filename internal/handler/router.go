package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/therapii/api-server-go/internal/config"
	"github.com/therapii/api-server-go/internal/middleware"
)

// RouterDeps are the handlers and middleware the HTTP surface is built from.
type RouterDeps struct {
	Health      *HealthHandler
	Invitations *InvitationHandler
	AI          *AIHandler
	Billing     *BillingHandler

	Auth         *middleware.AuthMiddleware
	PreviewLimit *middleware.RateLimitMiddleware
	RedeemLimit  *middleware.RateLimitMiddleware
	BodyLimit    *middleware.BodyLimitMiddleware
}

func NewRouter(d RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(d.BodyLimit.Handler)

	r.Method(http.MethodGet, "/health", d.Health)

	r.Route("/v1", func(r chi.Router) {
		r.With(d.PreviewLimit.Handler).Get("/invitations/preview/{code}", d.Invitations.Preview)

		r.Group(func(r chi.Router) {
			r.Use(d.Auth.Handler)

			r.Post("/invitations", d.Invitations.Create)
			r.With(d.RedeemLimit.Handler).Post("/invitations/redeem", d.Invitations.Redeem)
			r.Delete("/invitations/{invitationId}", d.Invitations.Delete)
			r.Get("/therapists/{therapistId}/invitations", d.Invitations.ListForTherapist)
			r.Get("/patients/{patientId}/invitations", d.Invitations.ListForPatient)

			r.Mount("/ai", d.AI.Routes())
			r.Mount("/billing", d.Billing.Routes())
		})
	})

	return r
}
