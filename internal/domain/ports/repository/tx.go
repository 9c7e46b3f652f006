package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle (pgx.Tx for Postgres, a store-defined
// handle for the in-memory store). Repositories accept NoTX for the
// non-transactional path.
type Tx interface{}

var NoTX Tx

// TransactionManager runs fn inside one storage transaction. If fn returns an
// error every write made through tx is rolled back; otherwise it is committed.
//
// tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//	u, err := users.FindByIDForUpdate(ctx, tx, id)
//	...
// })
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
