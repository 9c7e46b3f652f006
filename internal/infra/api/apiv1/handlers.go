package apiv1

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/format"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/infra/logging"
	"subscription-ledger/internal/infra/metrics"
)

const maxBody = 1 << 16

type Plan struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description,omitempty"`
	DurationDays      int    `json:"duration_days"`
	Duration          string `json:"duration"`
	Price             string `json:"price"`
	FinalPrice        string `json:"final_price"`
	Discount          string `json:"discount"`
	PriceDisplay      string `json:"price_display"`
	FinalPriceDisplay string `json:"final_price_display"`
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.deps.Catalog.GetPlans(r.Context(), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]Plan, 0, len(plans))
	for _, p := range plans {
		final, discount := p.FinalPrice()
		items = append(items, Plan{
			ID:                p.ID,
			Title:             p.Title,
			Description:       p.Description,
			DurationDays:      p.DurationDays,
			Duration:          format.Duration(p.DurationDays),
			Price:             p.Price.String(),
			FinalPrice:        final.String(),
			Discount:          discount.String(),
			PriceDisplay:      format.Amount(p.Price),
			FinalPriceDisplay: format.Amount(final),
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Items []Plan `json:"items"`
	}{items})
}

type Subscription struct {
	ID            string    `json:"id"`
	PlanID        string    `json:"plan_id"`
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Remaining     string    `json:"remaining"`
	RenewalCount  int       `json:"renewal_count"`
	TotalPaid     string    `json:"total_paid"`
	WarningIssued bool      `json:"warning_sent"`
}

func (s *Server) mySubscription(w http.ResponseWriter, r *http.Request) {
	userID := logging.UserIDFrom(r.Context())
	sub, err := s.deps.Subscriptions.GetActive(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: errorPayload{
				Code: "no_subscription", Message: "You have no active subscription.",
			}})
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toSubscription(sub))
}

func (s *Server) toSubscription(sub *model.Subscription) Subscription {
	return Subscription{
		ID:            sub.ID,
		PlanID:        sub.PlanID,
		Status:        string(sub.Status),
		StartedAt:     sub.StartedAt,
		ExpiresAt:     sub.ExpiresAt,
		Remaining:     format.Duration(remainingDays(sub.Remaining(s.deps.Clock.Now()))),
		RenewalCount:  sub.RenewalCount,
		TotalPaid:     sub.TotalPaid.String(),
		WarningIssued: sub.WarningSent,
	}
}

// remainingDays rounds up so a subscription with hours left still shows a day.
func remainingDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

type purchaseRequest struct {
	PlanID         string `json:"plan_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

type purchaseResponse struct {
	SubscriptionID string    `json:"subscription_id"`
	PlanID         string    `json:"plan_id"`
	FinalPrice     string    `json:"final_price"`
	DiscountAmount string    `json:"discount_amount"`
	BalanceAfter   string    `json:"balance_after"`
	ExpiresAt      time.Time `json:"expires_at"`
	IsRenewal      bool      `json:"is_renewal"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func (s *Server) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		metrics.IncPurchaseFailure("invalid_request")
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	// The header wins so clients can retry with the same body.
	if h := strings.TrimSpace(r.Header.Get("Idempotency-Key")); h != "" {
		req.IdempotencyKey = h
	}
	if strings.TrimSpace(req.PlanID) == "" {
		metrics.IncPurchaseFailure("invalid_request")
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}

	ctx := r.Context()
	if req.IdempotencyKey != "" {
		ctx = logging.WithIdempotencyKey(ctx, req.IdempotencyKey)
	}
	l := logging.With(ctx, s.log)
	defer logging.TraceDuration(l, "API.purchase")()

	res, err := s.deps.Purchases.Purchase(ctx, logging.UserIDFrom(ctx), req.PlanID, req.IdempotencyKey)
	if err != nil {
		_, p := mapError(err)
		metrics.IncPurchaseFailure(p.Code)
		s.writeError(w, r.WithContext(ctx), err)
		return
	}

	kind := string(model.TransactionTypePurchase)
	if res.IsRenewal {
		kind = string(model.TransactionTypeRenewal)
	}
	metrics.IncPurchase(kind, res.FinalPrice)
	l.Info().Str("plan_id", req.PlanID).Str("subscription_id", res.Subscription.ID).
		Str("kind", kind).Str("final_price", res.FinalPrice.String()).Msg("purchase committed")

	writeJSON(w, http.StatusCreated, purchaseResponse{
		SubscriptionID: res.Subscription.ID,
		PlanID:         res.Subscription.PlanID,
		FinalPrice:     res.FinalPrice.String(),
		DiscountAmount: res.DiscountAmount.String(),
		BalanceAfter:   res.Transaction.BalanceAfter.String(),
		ExpiresAt:      res.Subscription.ExpiresAt,
		IsRenewal:      res.IsRenewal,
		IdempotencyKey: res.Transaction.IdempotencyKey,
	})
}
