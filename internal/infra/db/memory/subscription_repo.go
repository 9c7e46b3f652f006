package memory

import (
	"context"
	"sort"
	"time"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*SubscriptionRepo)(nil)

type SubscriptionRepo struct{ s *Store }

func (r *SubscriptionRepo) Save(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
	if sub == nil || sub.ID == "" || sub.UserID == "" {
		return domain.ErrInvalidArgument
	}
	defer r.s.acquire(tx)()
	if _, ok := r.s.users[sub.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	cp := *sub
	r.s.subs[sub.ID] = &cp
	return nil
}

func (r *SubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	defer r.s.acquire(tx)()
	s, ok := r.s.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SubscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time) (*model.Subscription, error) {
	defer r.s.acquire(tx)()
	var best *model.Subscription
	for _, s := range r.s.subs {
		if s.UserID != userID || !s.IsActiveAt(now) {
			continue
		}
		if best == nil || s.CreatedAt.After(best.CreatedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *SubscriptionRepo) FindActiveByUserForUpdate(ctx context.Context, tx repository.Tx, userID string, now time.Time) (*model.Subscription, error) {
	return r.FindActiveByUser(ctx, tx, userID, now)
}

func (r *SubscriptionRepo) FindDueForWarning(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Subscription, error) {
	return r.filter(tx, func(s *model.Subscription) bool {
		return s.Status == model.SubscriptionStatusActive && !s.WarningSent &&
			s.ExpiresAt.After(from) && !s.ExpiresAt.After(to)
	}), nil
}

func (r *SubscriptionRepo) FindExpired(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Subscription, error) {
	return r.filter(tx, func(s *model.Subscription) bool {
		return s.Status == model.SubscriptionStatusActive && s.ExpiresAt.Before(now)
	}), nil
}

func (r *SubscriptionRepo) MarkWarningSent(ctx context.Context, tx repository.Tx, id string, from, to, at time.Time) (bool, error) {
	defer r.s.acquire(tx)()
	s, ok := r.s.subs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if s.Status != model.SubscriptionStatusActive || s.WarningSent ||
		!s.ExpiresAt.After(from) || s.ExpiresAt.After(to) {
		return false, nil
	}
	s.WarningSent = true
	s.WarningSentAt = &at
	s.UpdatedAt = at
	return true, nil
}

func (r *SubscriptionRepo) MarkExpired(ctx context.Context, tx repository.Tx, id string, now time.Time) (bool, error) {
	defer r.s.acquire(tx)()
	s, ok := r.s.subs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if s.Status != model.SubscriptionStatusActive || !s.ExpiresAt.Before(now) {
		return false, nil
	}
	s.Status = model.SubscriptionStatusExpired
	s.ExpiredAt = &now
	s.UpdatedAt = now
	return true, nil
}

func (r *SubscriptionRepo) ReleaseWarning(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	defer r.s.acquire(tx)()
	s, ok := r.s.subs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !s.WarningSent || s.WarningSentAt == nil || !s.WarningSentAt.Equal(at) {
		return false, nil
	}
	s.WarningSent = false
	s.WarningSentAt = nil
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *SubscriptionRepo) ReleaseExpired(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	defer r.s.acquire(tx)()
	s, ok := r.s.subs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if s.Status != model.SubscriptionStatusExpired || s.ExpiredAt == nil || !s.ExpiredAt.Equal(at) {
		return false, nil
	}
	s.Status = model.SubscriptionStatusActive
	s.ExpiredAt = nil
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *SubscriptionRepo) HasOtherActiveWithRole(ctx context.Context, tx repository.Tx, userID, roleID, excludeID string, now time.Time) (bool, error) {
	found := r.filter(tx, func(s *model.Subscription) bool {
		return s.ID != excludeID && s.UserID == userID && s.GrantedRoleID == roleID && s.IsActiveAt(now)
	})
	return len(found) > 0, nil
}

func (r *SubscriptionRepo) CountActive(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	return len(r.filter(tx, func(s *model.Subscription) bool { return s.IsActiveAt(now) })), nil
}

func (r *SubscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	defer r.s.acquire(tx)()
	out := make(map[model.SubscriptionStatus]int)
	for _, s := range r.s.subs {
		out[s.Status]++
	}
	return out, nil
}

// filter returns copies ordered by expiry, matching the SQL implementation.
func (r *SubscriptionRepo) filter(tx repository.Tx, keep func(*model.Subscription) bool) []*model.Subscription {
	defer r.s.acquire(tx)()
	var out []*model.Subscription
	for _, s := range r.s.subs {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}
