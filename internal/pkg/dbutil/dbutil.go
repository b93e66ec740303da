// Package dbutil adapts statements built by gendry to Postgres.
package dbutil

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

var mysqlLimit = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize rewrites a gendry statement for lib/pq. `LIMIT ?, ?` becomes
// `LIMIT ? OFFSET ?` with its two arguments swapped, and ? placeholders
// become $n. The caller's args slice is not modified.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	if loc := mysqlLimit.FindStringIndex(query); loc != nil {
		i := strings.Count(query[:loc[0]], "?")
		if i+1 < len(args) {
			args = append([]interface{}(nil), args...)
			args[i], args[i+1] = args[i+1], args[i]
			query = query[:loc[0]] + "LIMIT ? OFFSET ?" + query[loc[1]:]
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

// IsConflict reports a unique key violation anywhere in err's chain.
func IsConflict(err error) bool {
	var pgErr *pq.Error
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
