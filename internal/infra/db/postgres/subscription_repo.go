package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)

type PostgresSubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresSubscriptionRepo(pool *pgxpool.Pool) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{pool: pool}
}

const subscriptionColumns = `
  id, user_id, plan_id, granted_role_id, status,
  created_at, started_at, expires_at, updated_at, expired_at, last_renewed_at,
  duration_days, original_price::text, paid_price::text, total_paid::text,
  renewal_count, warning_sent, warning_sent_at`

func (r *PostgresSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if s == nil || s.ID == "" || s.UserID == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO subscriptions (
  id, user_id, plan_id, granted_role_id, status,
  created_at, started_at, expires_at, updated_at, expired_at, last_renewed_at,
  duration_days, original_price, paid_price, total_paid,
  renewal_count, warning_sent, warning_sent_at
) VALUES (
  $1, $2, $3, $4, $5,
  $6, $7, $8, $9, $10, $11,
  $12, $13::numeric, $14::numeric, $15::numeric,
  $16, $17, $18
) ON CONFLICT (id) DO UPDATE SET
  plan_id         = EXCLUDED.plan_id,
  granted_role_id = EXCLUDED.granted_role_id,
  status          = EXCLUDED.status,
  expires_at      = EXCLUDED.expires_at,
  updated_at      = EXCLUDED.updated_at,
  expired_at      = EXCLUDED.expired_at,
  last_renewed_at = EXCLUDED.last_renewed_at,
  duration_days   = EXCLUDED.duration_days,
  original_price  = EXCLUDED.original_price,
  paid_price      = EXCLUDED.paid_price,
  total_paid      = EXCLUDED.total_paid,
  renewal_count   = EXCLUDED.renewal_count,
  warning_sent    = EXCLUDED.warning_sent,
  warning_sent_at = EXCLUDED.warning_sent_at;`
	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserID, s.PlanID, s.GrantedRoleID, string(s.Status),
		s.CreatedAt, s.StartedAt, s.ExpiresAt, s.UpdatedAt, s.ExpiredAt, s.LastRenewedAt,
		s.DurationDays, s.OriginalPrice.String(), s.PaidPrice.String(), s.TotalPaid.String(),
		s.RenewalCount, s.WarningSent, s.WarningSentAt,
	)
	return err
}

func (r *PostgresSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *PostgresSubscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time) (*model.Subscription, error) {
	return r.findActive(ctx, tx, userID, now, "")
}

// FindActiveByUserForUpdate must run inside the purchase transaction, after the
// user row lock; the entitlement lock is then uncontended.
func (r *PostgresSubscriptionRepo) FindActiveByUserForUpdate(ctx context.Context, tx repository.Tx, userID string, now time.Time) (*model.Subscription, error) {
	if _, ok := tx.(pgx.Tx); !ok {
		return nil, domain.ErrInvalidExecContext
	}
	return r.findActive(ctx, tx, userID, now, " FOR UPDATE")
}

func (r *PostgresSubscriptionRepo) findActive(ctx context.Context, tx repository.Tx, userID string, now time.Time, lock string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE user_id = $1 AND status = 'active' AND expires_at > $2
 ORDER BY created_at DESC
 LIMIT 1` + lock + `;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, now)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *PostgresSubscriptionRepo) FindDueForWarning(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Subscription, error) {
	return r.list(ctx, tx, `SELECT `+subscriptionColumns+`
  FROM subscriptions
 WHERE status = 'active' AND warning_sent = FALSE
   AND expires_at > $1 AND expires_at <= $2
 ORDER BY expires_at;`, from, to)
}

func (r *PostgresSubscriptionRepo) FindExpired(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Subscription, error) {
	return r.list(ctx, tx, `SELECT `+subscriptionColumns+`
  FROM subscriptions
 WHERE status = 'active' AND expires_at < $1
 ORDER BY expires_at;`, now)
}

func (r *PostgresSubscriptionRepo) MarkWarningSent(ctx context.Context, tx repository.Tx, id string, from, to, at time.Time) (bool, error) {
	tag, err := execSQL(ctx, r.pool, tx, `
UPDATE subscriptions SET warning_sent = TRUE, warning_sent_at = $4, updated_at = $4
 WHERE id = $1 AND status = 'active' AND warning_sent = FALSE
   AND expires_at > $2 AND expires_at <= $3;`, id, from, to, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresSubscriptionRepo) ReleaseWarning(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	tag, err := execSQL(ctx, r.pool, tx, `
UPDATE subscriptions SET warning_sent = FALSE, warning_sent_at = NULL, updated_at = NOW()
 WHERE id = $1 AND warning_sent = TRUE AND warning_sent_at = $2;`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresSubscriptionRepo) ReleaseExpired(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	tag, err := execSQL(ctx, r.pool, tx, `
UPDATE subscriptions SET status = 'active', expired_at = NULL, updated_at = NOW()
 WHERE id = $1 AND status = 'expired' AND expired_at = $2;`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresSubscriptionRepo) MarkExpired(ctx context.Context, tx repository.Tx, id string, now time.Time) (bool, error) {
	tag, err := execSQL(ctx, r.pool, tx, `
UPDATE subscriptions SET status = 'expired', expired_at = $2, updated_at = $2
 WHERE id = $1 AND status = 'active' AND expires_at < $2;`, id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresSubscriptionRepo) HasOtherActiveWithRole(ctx context.Context, tx repository.Tx, userID, roleID, excludeID string, now time.Time) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, `
SELECT EXISTS (
  SELECT 1 FROM subscriptions
   WHERE user_id = $1 AND granted_role_id = $2 AND id <> $3
     AND status = 'active' AND expires_at > $4
);`, userID, roleID, excludeID, now)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, scanErr(err)
	}
	return ok, nil
}

func (r *PostgresSubscriptionRepo) CountActive(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM subscriptions WHERE status = 'active' AND expires_at > $1;`, now)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, scanErr(err)
	}
	return n, nil
}

func (r *PostgresSubscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, scanErr(err)
		}
		out[model.SubscriptionStatus(status)] = n
	}
	return out, rows.Err()
}

func (r *PostgresSubscriptionRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var (
		s      model.Subscription
		status string
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.GrantedRoleID, &status,
		&s.CreatedAt, &s.StartedAt, &s.ExpiresAt, &s.UpdatedAt, &s.ExpiredAt, &s.LastRenewedAt,
		&s.DurationDays, &s.OriginalPrice, &s.PaidPrice, &s.TotalPaid,
		&s.RenewalCount, &s.WarningSent, &s.WarningSentAt,
	)
	if err != nil {
		return nil, scanErr(err)
	}
	s.Status = model.SubscriptionStatus(status)
	return &s, nil
}
