package repository

import (
	"context"
	"time"

	"subscription-ledger/internal/domain/model"
)

// TransactionRepository stores idempotency/audit records. Save must fail with
// domain.ErrDuplicateTransaction when the idempotency key already exists.
type TransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.Transaction) error
	ExistsByIdempotencyKey(ctx context.Context, tx Tx, key string) (bool, error)
	FindByIdempotencyKey(ctx context.Context, tx Tx, key string) (*model.Transaction, error)
	DeleteByIdempotencyKey(ctx context.Context, tx Tx, key string) error
	// DeleteOlderThan prunes records created before cutoff and returns how many went.
	DeleteOlderThan(ctx context.Context, tx Tx, cutoff time.Time) (int64, error)
}
