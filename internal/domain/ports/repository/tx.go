package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager provides a thin abstraction to execute a function within a
// database transaction, passing the underlying transaction handle via `tx`.
//
// Use cases stay free of storage types: repositories accept `tx Tx` and detect
// a live transaction handle implementation-side (pgx.Tx for Postgres), falling
// back to the pool when nil is passed.
//
// The approved-callback effect set (ledger insert, transaction update, user
// provisioning, purchase insert, mandate creation) runs inside one WithTx
// boundary so a crash mid-sequence cannot leave partially-applied state.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
