package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is a backend transaction handle. Repositories treat a nil Tx as "use
// the connection pool".
type Tx interface{}

// TransactionManager runs fn inside one storage transaction.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
