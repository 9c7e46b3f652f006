package memory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*UserRepo)(nil)

type UserRepo struct{ s *Store }

func (r *UserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if u.IsZero() || u.Balance.IsNegative() {
		return domain.ErrInvalidArgument
	}
	defer r.s.acquire(tx)()
	for id, other := range r.s.users {
		if id != u.ID && u.TelegramID != 0 && other.TelegramID == u.TelegramID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *u
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	r.s.users[u.ID] = &cp
	return nil
}

func (r *UserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	defer r.s.acquire(tx)()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// FindByIDForUpdate is FindByID: the store mutex already serialises transactions.
func (r *UserRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return r.FindByID(ctx, tx, id)
}

func (r *UserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	defer r.s.acquire(tx)()
	for _, u := range r.s.users {
		if u.TelegramID == tgID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *UserRepo) SetBalance(ctx context.Context, tx repository.Tx, id string, balance decimal.Decimal) (decimal.Decimal, error) {
	if balance.IsNegative() {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	return r.update(tx, id, func(decimal.Decimal) decimal.Decimal { return balance })
}

func (r *UserRepo) AddBalance(ctx context.Context, tx repository.Tx, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	if delta.IsNegative() {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	return r.update(tx, id, func(b decimal.Decimal) decimal.Decimal { return b.Add(delta) })
}

func (r *UserRepo) SubtractBalance(ctx context.Context, tx repository.Tx, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	if delta.IsNegative() {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	return r.update(tx, id, func(b decimal.Decimal) decimal.Decimal {
		return decimal.Max(b.Sub(delta), decimal.Zero)
	})
}

func (r *UserRepo) update(tx repository.Tx, id string, f func(decimal.Decimal) decimal.Decimal) (decimal.Decimal, error) {
	defer r.s.acquire(tx)()
	u, ok := r.s.users[id]
	if !ok {
		return decimal.Zero, domain.ErrNotFound
	}
	u.Balance = f(u.Balance)
	u.UpdatedAt = time.Now().UTC()
	return u.Balance, nil
}
