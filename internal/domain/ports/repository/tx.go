package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// TransactionManager runs fn inside one database transaction. The handle
// passed as tx is backend-defined (pgx.Tx for Postgres); repositories must
// also accept a nil tx and fall back to their pool.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
