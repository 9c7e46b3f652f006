package repository

import (
	"context"

	"subscription-ledger/internal/domain/model"

	"github.com/shopspring/decimal"
)

// UserRepository owns the users table. Balance writes go through the three
// mutators only, none of which can leave a negative balance.
type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByTelegramID(ctx context.Context, tx Tx, tgID int64) (*model.User, error)
	// FindByIDForUpdate loads the user and holds a row lock until tx ends, which
	// serialises balance-affecting work per user.
	FindByIDForUpdate(ctx context.Context, tx Tx, id string) (*model.User, error)

	SetBalance(ctx context.Context, tx Tx, id string, balance decimal.Decimal) (decimal.Decimal, error)
	AddBalance(ctx context.Context, tx Tx, id string, delta decimal.Decimal) (decimal.Decimal, error)
	// SubtractBalance clamps at zero and returns the new balance.
	SubtractBalance(ctx context.Context, tx Tx, id string, delta decimal.Decimal) (decimal.Decimal, error)
}
