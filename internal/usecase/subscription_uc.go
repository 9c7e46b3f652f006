package usecase

import (
	"context"
	"errors"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/adapter"
	"subscription-ledger/internal/domain/ports/repository"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase is the read side of the entitlement table.
type SubscriptionUseCase interface {
	// GetActive returns the user's live entitlement or domain.ErrNotFound.
	GetActive(ctx context.Context, userID string) (*model.Subscription, error)
	CountActive(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error)
}

type subscriptionUC struct {
	subs  repository.SubscriptionRepository
	clock adapter.Clock
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, clock adapter.Clock) *subscriptionUC {
	return &subscriptionUC{subs: subs, clock: clock}
}

func (uc *subscriptionUC) GetActive(ctx context.Context, userID string) (*model.Subscription, error) {
	s, err := uc.subs.FindActiveByUser(ctx, repository.NoTX, userID, uc.clock.Now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, classify("get active subscription", err)
	}
	return s, nil
}

func (uc *subscriptionUC) CountActive(ctx context.Context) (int, error) {
	return uc.subs.CountActive(ctx, repository.NoTX, uc.clock.Now())
}

func (uc *subscriptionUC) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	return uc.subs.CountByStatus(ctx, repository.NoTX)
}
