package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*PostgresTransactionRepo)(nil)

type PostgresTransactionRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresTransactionRepo(pool *pgxpool.Pool) *PostgresTransactionRepo {
	return &PostgresTransactionRepo{pool: pool}
}

// Save relies on the unique constraint on idempotency_key; a violation comes
// back as domain.ErrDuplicateTransaction.
func (r *PostgresTransactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if t == nil || t.ID == "" || t.IdempotencyKey == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO transactions (
  id, idempotency_key, user_id, subscription_id, plan_id,
  amount, final_price, discount_amount, type,
  balance_before, balance_after, created_at
) VALUES (
  $1, $2, $3, $4, $5,
  $6::numeric, $7::numeric, $8::numeric, $9,
  $10::numeric, $11::numeric, $12
);`
	txType := t.Type
	if txType == "" {
		txType = model.TransactionTypePurchase
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		t.ID, t.IdempotencyKey, t.UserID, nullIfEmpty(t.SubscriptionID), t.PlanID,
		t.Amount.String(), t.FinalPrice.String(), t.DiscountAmount.String(), string(txType),
		t.BalanceBefore.String(), t.BalanceAfter.String(), t.CreatedAt,
	)
	return err
}

func (r *PostgresTransactionRepo) ExistsByIdempotencyKey(ctx context.Context, tx repository.Tx, key string) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE idempotency_key = $1);`, key)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, scanErr(err)
	}
	return ok, nil
}

func (r *PostgresTransactionRepo) FindByIdempotencyKey(ctx context.Context, tx repository.Tx, key string) (*model.Transaction, error) {
	const q = `
SELECT id, idempotency_key, user_id, COALESCE(subscription_id, ''), plan_id,
       amount::text, final_price::text, discount_amount::text, type,
       balance_before::text, balance_after::text, created_at
  FROM transactions WHERE idempotency_key = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, key)
	if err != nil {
		return nil, err
	}
	var (
		t      model.Transaction
		txType string
	)
	if err := row.Scan(
		&t.ID, &t.IdempotencyKey, &t.UserID, &t.SubscriptionID, &t.PlanID,
		&t.Amount, &t.FinalPrice, &t.DiscountAmount, &txType,
		&t.BalanceBefore, &t.BalanceAfter, &t.CreatedAt,
	); err != nil {
		return nil, scanErr(err)
	}
	t.Type = model.TransactionType(txType)
	return &t, nil
}

func (r *PostgresTransactionRepo) DeleteByIdempotencyKey(ctx context.Context, tx repository.Tx, key string) error {
	_, err := execSQL(ctx, r.pool, tx, `DELETE FROM transactions WHERE idempotency_key = $1;`, key)
	return err
}

func (r *PostgresTransactionRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM transactions WHERE created_at < $1;`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
