package pgx

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), the signal that a concurrent writer won the
// race on (aggregate_id, aggregate_version).
func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == "23505"
}

// isTransient reports whether err looks like a retryable transport/server
// condition rather than a semantic rejection.
func isTransient(err error) bool {
	switch pgErrorCode(err) {
	case "08000", "08003", "08006", "08001", "08004", "53300", "57P03":
		return true
	}
	return false
}
