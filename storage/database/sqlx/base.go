// Package sqlxrepos implements the domain repositories on PostgreSQL via sqlx.
package sqlxrepos

import (
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/safiri/core"
)

// getExec prefers a transaction handed down by the service layer over the
// repository's own handle.
func getExec(db sqlx.ExtContext, svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 {
		if exe, ok := svcExec[0].(sqlx.ExtContext); ok {
			return exe
		}
	}
	return db
}

func orderBy(ordering []core.DBOrdering, deflt string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + deflt
	}
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
