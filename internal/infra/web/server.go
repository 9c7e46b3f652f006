package web

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"subscription-ledger/internal/domain/ports/repository"
	"subscription-ledger/internal/usecase"
)

// Server is the operator API: ledger statistics, balance corrections and a
// forced catalog reload. It is guarded by a static API key.
type Server struct {
	balanceUC usecase.BalanceUseCase
	subUC     usecase.SubscriptionUseCase
	catalog   repository.PlanCatalog
	apiKey    string
	log       *zerolog.Logger
}

func NewServer(
	balanceUC usecase.BalanceUseCase,
	subUC usecase.SubscriptionUseCase,
	catalog repository.PlanCatalog,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "AdminAPI").Logger()
	return &Server{
		balanceUC: balanceUC,
		subUC:     subUC,
		catalog:   catalog,
		apiKey:    apiKey,
		log:       &l,
	}
}

// RegisterRoutes sets up the routing for the admin API.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/admin/v1", func(r chi.Router) {
		// All admin routes are behind the auth middleware
		r.Use(s.authMiddleware)

		r.Get("/stats", statsHandler(s.subUC))
		r.Post("/catalog/reload", catalogReloadHandler(s.catalog))

		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/", userGetHandler(s.balanceUC, s.subUC))
			r.Put("/balance", balanceHandler(s.balanceUC, s.log, opSet))
			r.Post("/balance/credit", balanceHandler(s.balanceUC, s.log, opAdd))
			r.Post("/balance/debit", balanceHandler(s.balanceUC, s.log, opSubtract))
		})
	})
}

// authMiddleware provides simple Bearer token authentication for the admin API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("Admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(tokenParts[1]), []byte(s.apiKey)) != 1 {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
