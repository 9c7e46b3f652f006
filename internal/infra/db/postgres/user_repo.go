package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

const userColumns = `id, telegram_id, username, balance::text, created_at, updated_at`

// Save inserts the user or updates its identity fields. The balance of an
// existing row is never touched here.
func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if u.IsZero() || u.Balance.IsNegative() {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO users (id, telegram_id, username, balance, created_at, updated_at)
VALUES ($1, $2, $3, $4::numeric, $5, $5)
ON CONFLICT (id) DO UPDATE SET
  telegram_id = EXCLUDED.telegram_id,
  username    = EXCLUDED.username,
  updated_at  = EXCLUDED.updated_at;`
	now := time.Now().UTC()
	_, err := execSQL(ctx, r.pool, tx, q, u.ID, u.TelegramID, u.Username, u.Balance.String(), now)
	return err
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return r.findOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id = $1;`, id)
}

func (r *PostgresUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	return r.findOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1;`, tgID)
}

func (r *PostgresUserRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	if _, ok := tx.(pgx.Tx); !ok {
		// a row lock outside a transaction is released immediately
		return nil, domain.ErrInvalidExecContext
	}
	return r.findOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE;`, id)
}

func (r *PostgresUserRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg interface{}) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.Balance, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &u, nil
}

func (r *PostgresUserRepo) SetBalance(ctx context.Context, tx repository.Tx, id string, balance decimal.Decimal) (decimal.Decimal, error) {
	if balance.IsNegative() {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	return r.updateBalance(ctx, tx, `
UPDATE users SET balance = $2::numeric, updated_at = now()
 WHERE id = $1 RETURNING balance::text;`, id, balance)
}

func (r *PostgresUserRepo) AddBalance(ctx context.Context, tx repository.Tx, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	if delta.IsNegative() {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	return r.updateBalance(ctx, tx, `
UPDATE users SET balance = balance + $2::numeric, updated_at = now()
 WHERE id = $1 RETURNING balance::text;`, id, delta)
}

func (r *PostgresUserRepo) SubtractBalance(ctx context.Context, tx repository.Tx, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	if delta.IsNegative() {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	return r.updateBalance(ctx, tx, `
UPDATE users SET balance = GREATEST(balance - $2::numeric, 0), updated_at = now()
 WHERE id = $1 RETURNING balance::text;`, id, delta)
}

func (r *PostgresUserRepo) updateBalance(ctx context.Context, tx repository.Tx, q, id string, v decimal.Decimal) (decimal.Decimal, error) {
	row, err := pickRow(ctx, r.pool, tx, q, id, v.String())
	if err != nil {
		return decimal.Zero, err
	}
	var b decimal.Decimal
	if err := row.Scan(&b); err != nil {
		return decimal.Zero, scanErr(err)
	}
	return b, nil
}
