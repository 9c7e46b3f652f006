package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/repository"
	"subscription-ledger/internal/usecase"
)

type balanceOp string

const (
	opSet      balanceOp = "set"
	opAdd      balanceOp = "credit"
	opSubtract balanceOp = "debit"
)

type balanceRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// statsHandler returns subscription counts per status plus the live count.
func statsHandler(subUC usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		byStatus, err := subUC.CountByStatus(ctx)
		if err != nil {
			http.Error(w, "Failed to get totals", http.StatusInternalServerError)
			return
		}
		active, err := subUC.CountActive(ctx)
		if err != nil {
			http.Error(w, "Failed to count active subscriptions", http.StatusInternalServerError)
			return
		}

		writeJSON(w, struct {
			Active   int                              `json:"active"`
			ByStatus map[model.SubscriptionStatus]int `json:"by_status"`
		}{active, byStatus})
	}
}

func userGetHandler(balanceUC usecase.BalanceUseCase, subUC usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")

		balance, err := balanceUC.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Failed to get user", http.StatusInternalServerError)
			return
		}

		type subView struct {
			ID           string    `json:"id"`
			PlanID       string    `json:"plan_id"`
			ExpiresAt    time.Time `json:"expires_at"`
			RenewalCount int       `json:"renewal_count"`
			TotalPaid    string    `json:"total_paid"`
		}
		response := struct {
			UserID       string   `json:"user_id"`
			Balance      string   `json:"balance"`
			Subscription *subView `json:"subscription"`
		}{UserID: id, Balance: balance.String()}

		sub, err := subUC.GetActive(ctx, id)
		switch {
		case err == nil:
			response.Subscription = &subView{
				ID:           sub.ID,
				PlanID:       sub.PlanID,
				ExpiresAt:    sub.ExpiresAt,
				RenewalCount: sub.RenewalCount,
				TotalPaid:    sub.TotalPaid.String(),
			}
		case !errors.Is(err, domain.ErrNotFound):
			http.Error(w, "Failed to get user subscription", http.StatusInternalServerError)
			return
		}
		writeJSON(w, response)
	}
}

// balanceHandler applies one balance correction. Amounts must be non-negative;
// debits clamp at zero.
func balanceHandler(balanceUC usecase.BalanceUseCase, log *zerolog.Logger, op balanceOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")

		var req balanceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		var (
			balance decimal.Decimal
			err     error
		)
		switch op {
		case opSet:
			balance, err = balanceUC.Set(ctx, id, req.Amount)
		case opAdd:
			balance, err = balanceUC.Add(ctx, id, req.Amount)
		case opSubtract:
			balance, err = balanceUC.Subtract(ctx, id, req.Amount)
		}
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrUserNotFound):
				http.NotFound(w, r)
			case errors.Is(err, domain.ErrInvalidArgument):
				http.Error(w, "Amount must not be negative", http.StatusBadRequest)
			default:
				http.Error(w, "Failed to update balance", http.StatusInternalServerError)
			}
			return
		}

		log.Info().Str("user_id", id).Str("op", string(op)).Str("amount", req.Amount.String()).
			Str("reason", req.Reason).Str("balance", balance.String()).Msg("balance corrected")
		writeJSON(w, struct {
			UserID  string `json:"user_id"`
			Balance string `json:"balance"`
		}{id, balance.String()})
	}
}

// catalogReloadHandler forces a re-read of the plan file.
func catalogReloadHandler(catalog repository.PlanCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := catalog.GetPlans(r.Context(), true)
		if err != nil {
			http.Error(w, "Failed to reload catalog", http.StatusInternalServerError)
			return
		}
		ids := make([]string, 0, len(plans))
		for _, p := range plans {
			ids = append(ids, p.ID)
		}
		writeJSON(w, struct {
			Plans []string `json:"plans"`
		}{ids})
	}
}
