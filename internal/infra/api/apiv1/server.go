// Package apiv1 serves the purchase routing layer under /api/v1.
package apiv1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"subscription-ledger/internal/domain/ports/adapter"
	"subscription-ledger/internal/domain/ports/repository"
	"subscription-ledger/internal/usecase"
)

// Deps are the services the handlers call into.
type Deps struct {
	Purchases     usecase.PurchaseUseCase
	Subscriptions usecase.SubscriptionUseCase
	Catalog       repository.PlanCatalog
	Clock         adapter.Clock
	// Dev exposes internal error detail in responses.
	Dev bool
}

type Server struct {
	deps Deps
	log  *zerolog.Logger
}

func NewServer(deps Deps, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "API").Logger()
	return &Server{deps: deps, log: &l}
}

// Guards wrap the authenticated routes. Auth is required; Purchase, when set,
// runs only in front of the purchase endpoint.
type Guards struct {
	Auth     func(http.Handler) http.Handler
	Purchase func(http.Handler) http.Handler
}

// RegisterAPIV1 mounts the v1 routes on r.
func RegisterAPIV1(r chi.Router, s *Server, g Guards) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", s.listPlans)

		r.Group(func(r chi.Router) {
			r.Use(g.Auth)
			r.Get("/me/subscription", s.mySubscription)

			r.Group(func(r chi.Router) {
				if g.Purchase != nil {
					r.Use(g.Purchase)
				}
				r.Post("/purchases", s.purchase)
			})
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
