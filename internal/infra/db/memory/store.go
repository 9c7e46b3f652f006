// Package memory is an in-process implementation of the repository ports. It
// backs the -dev mode and the use case tests. Transactions are serialised by
// one mutex and rolled back by restoring a snapshot.
package memory

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v4"

	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*Store)(nil)

type Store struct {
	mu    sync.Mutex
	users map[string]*model.User
	subs  map[string]*model.Subscription
	txns  map[string]*model.Transaction // keyed by idempotency key
}

// memTx marks calls made inside WithTx; the store mutex is already held.
type memTx struct{ s *Store }

func NewStore() *Store {
	return &Store{
		users: make(map[string]*model.User),
		subs:  make(map[string]*model.Subscription),
		txns:  make(map[string]*model.Transaction),
	}
}

func (s *Store) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.users, s.subs, s.txns = snap.users, snap.subs, snap.txns
		return err
	}
	return nil
}

// acquire locks the store unless tx already belongs to a running transaction.
func (s *Store) acquire(tx repository.Tx) func() {
	if t, ok := tx.(*memTx); ok && t.s == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	users map[string]*model.User
	subs  map[string]*model.Subscription
	txns  map[string]*model.Transaction
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users: make(map[string]*model.User, len(s.users)),
		subs:  make(map[string]*model.Subscription, len(s.subs)),
		txns:  make(map[string]*model.Transaction, len(s.txns)),
	}
	for k, v := range s.users {
		cp := *v
		snap.users[k] = &cp
	}
	for k, v := range s.subs {
		cp := *v
		snap.subs[k] = &cp
	}
	for k, v := range s.txns {
		cp := *v
		snap.txns[k] = &cp
	}
	return snap
}

// Users, Subscriptions and Transactions expose the repository views of the store.
func (s *Store) Users() *UserRepo                { return &UserRepo{s: s} }
func (s *Store) Subscriptions() *SubscriptionRepo { return &SubscriptionRepo{s: s} }
func (s *Store) Transactions() *TransactionRepo   { return &TransactionRepo{s: s} }
