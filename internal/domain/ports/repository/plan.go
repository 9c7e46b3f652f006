package repository

import (
	"context"

	"subscription-ledger/internal/domain/model"
)

// PlanCatalog supplies the immutable plan definitions, in display order.
type PlanCatalog interface {
	GetPlans(ctx context.Context, forceReload bool) ([]*model.Plan, error)
	// FindByID returns domain.ErrPlanNotFound for unknown ids.
	FindByID(ctx context.Context, id string) (*model.Plan, error)
}
