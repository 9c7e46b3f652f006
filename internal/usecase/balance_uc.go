package usecase

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/repository"
)

// Compile-time check
var _ BalanceUseCase = (*balanceUC)(nil)

// BalanceUseCase covers the balance writes outside of purchases (credits from
// community activity, admin corrections). Each call is its own transaction.
type BalanceUseCase interface {
	Get(ctx context.Context, userID string) (decimal.Decimal, error)
	Set(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
	Add(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error)
	// Subtract clamps at zero.
	Subtract(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error)
	// EnsureUser creates the user when missing; the balance of an existing user is left alone.
	EnsureUser(ctx context.Context, u *model.User) (*model.User, error)
}

type balanceUC struct {
	users repository.UserRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewBalanceUseCase(users repository.UserRepository, tm repository.TransactionManager, logger *zerolog.Logger) *balanceUC {
	l := logger.With().Str("component", "BalanceUC").Logger()
	return &balanceUC{users: users, tm: tm, log: &l}
}

func (uc *balanceUC) Get(ctx context.Context, userID string) (decimal.Decimal, error) {
	u, err := uc.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return decimal.Zero, domain.ErrUserNotFound
		}
		return decimal.Zero, classify("get balance", err)
	}
	return u.Balance, nil
}

func (uc *balanceUC) Set(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	return uc.mutate(ctx, "set", userID, amount, uc.users.SetBalance)
}

func (uc *balanceUC) Add(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	if delta.IsNegative() {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	return uc.mutate(ctx, "add", userID, delta, uc.users.AddBalance)
}

func (uc *balanceUC) Subtract(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	if delta.IsNegative() {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	return uc.mutate(ctx, "subtract", userID, delta, uc.users.SubtractBalance)
}

type balanceWrite func(ctx context.Context, tx repository.Tx, id string, v decimal.Decimal) (decimal.Decimal, error)

func (uc *balanceUC) mutate(ctx context.Context, op, userID string, v decimal.Decimal, write balanceWrite) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := uc.users.FindByIDForUpdate(ctx, tx, userID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}
		b, err := write(ctx, tx, userID, v)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return decimal.Zero, classify(op+" balance", err)
	}
	uc.log.Info().Str("user_id", userID).Str("op", op).Str("amount", v.String()).Str("balance", out.String()).Msg("balance updated")
	return out, nil
}

func (uc *balanceUC) EnsureUser(ctx context.Context, u *model.User) (*model.User, error) {
	if u.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	var out *model.User
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		existing, err := uc.users.FindByTelegramID(ctx, tx, u.TelegramID)
		switch {
		case err == nil:
			out = existing
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		if err := uc.users.Save(ctx, tx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, classify("ensure user", err)
	}
	return out, nil
}
