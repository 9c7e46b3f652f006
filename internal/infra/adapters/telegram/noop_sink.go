package telegram

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/adapter"
	"subscription-ledger/internal/infra/metrics"
)

var _ adapter.NotificationSink = (*NoopSink)(nil)

// NoopSink logs every effect instead of calling Telegram. Used when no bot
// token is configured and in dev mode.
type NoopSink struct {
	counter ActiveCounter
	log     *zerolog.Logger
}

func NewNoopSink(counter ActiveCounter, logger *zerolog.Logger) *NoopSink {
	l := logger.With().Str("component", "TelegramSink").Bool("noop", true).Logger()
	return &NoopSink{counter: counter, log: &l}
}

func (n *NoopSink) NotifyPurchased(ctx context.Context, user *model.User, plan *model.Plan, sub *model.Subscription, paid decimal.Decimal, isRenewal bool) error {
	n.log.Info().Str("user_id", user.ID).Str("plan_id", plan.ID).Str("subscription_id", sub.ID).
		Str("paid", paid.String()).Bool("renewal", isRenewal).Time("expires_at", sub.ExpiresAt).Msg("notify purchased")
	return nil
}

func (n *NoopSink) NotifyExpired(ctx context.Context, sub *model.Subscription) error {
	n.log.Info().Str("user_id", sub.UserID).Str("subscription_id", sub.ID).Msg("notify expired")
	return nil
}

func (n *NoopSink) NotifyExpiryWarning(ctx context.Context, sub *model.Subscription) error {
	n.log.Info().Str("user_id", sub.UserID).Str("subscription_id", sub.ID).
		Time("expires_at", sub.ExpiresAt).Msg("notify expiry warning")
	return nil
}

func (n *NoopSink) GrantRole(ctx context.Context, userID, roleID string) error {
	n.log.Info().Str("user_id", userID).Str("role_id", roleID).Msg("grant role")
	return nil
}

func (n *NoopSink) RevokeRole(ctx context.Context, userID, roleID string) error {
	n.log.Info().Str("user_id", userID).Str("role_id", roleID).Msg("revoke role")
	return nil
}

func (n *NoopSink) RefreshPresence(ctx context.Context) error {
	if n.counter == nil {
		return nil
	}
	c, err := n.counter.CountActive(ctx)
	if err != nil {
		return err
	}
	metrics.SetActiveSubscriptions(c)
	n.log.Debug().Int("active", c).Msg("presence")
	return nil
}
