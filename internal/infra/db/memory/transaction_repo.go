package memory

import (
	"context"
	"time"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*TransactionRepo)(nil)

type TransactionRepo struct{ s *Store }

func (r *TransactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if t == nil || t.IdempotencyKey == "" {
		return domain.ErrInvalidArgument
	}
	defer r.s.acquire(tx)()
	if _, dup := r.s.txns[t.IdempotencyKey]; dup {
		return domain.ErrDuplicateTransaction
	}
	cp := *t
	r.s.txns[t.IdempotencyKey] = &cp
	return nil
}

func (r *TransactionRepo) ExistsByIdempotencyKey(ctx context.Context, tx repository.Tx, key string) (bool, error) {
	defer r.s.acquire(tx)()
	_, ok := r.s.txns[key]
	return ok, nil
}

func (r *TransactionRepo) FindByIdempotencyKey(ctx context.Context, tx repository.Tx, key string) (*model.Transaction, error) {
	defer r.s.acquire(tx)()
	t, ok := r.s.txns[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TransactionRepo) DeleteByIdempotencyKey(ctx context.Context, tx repository.Tx, key string) error {
	defer r.s.acquire(tx)()
	delete(r.s.txns, key)
	return nil
}

func (r *TransactionRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	defer r.s.acquire(tx)()
	var n int64
	for k, t := range r.s.txns {
		if t.CreatedAt.Before(cutoff) {
			delete(r.s.txns, k)
			n++
		}
	}
	return n, nil
}
