package inmemdb

import (
	"context"
	"database/sql"

	"github.com/trezcool/safiri/core"
)

// fakeDB satisfies core.DB with no-op transactions; the in-memory
// repositories ignore the executor argument so nothing ever reaches the
// embedded nil handles.
type fakeDB struct {
	*sql.DB
}

type fakeTx struct {
	*sql.Tx
}

func NewFakeDB() core.DB { return fakeDB{} }

func (fakeDB) BeginTx(context.Context, *sql.TxOptions) (core.DBTransactor, error) {
	return fakeTx{}, nil
}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }
