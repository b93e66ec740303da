package dbutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalizeRebindsPlaceholders(t *testing.T) {
	query, args := Finalize("SELECT id FROM notes WHERE user_id = ? AND state = ?", []interface{}{"u1", 1})
	require.Equal(t, "SELECT id FROM notes WHERE user_id = $1 AND state = $2", query)
	require.Equal(t, []interface{}{"u1", 1}, args)
}

func TestFinalizeRewritesLimit(t *testing.T) {
	args := []interface{}{"u1", 20, 10}
	query, finalArgs := Finalize("SELECT id FROM notes WHERE user_id = ? ORDER BY ctime LIMIT ?,?", args)
	require.Equal(t, "SELECT id FROM notes WHERE user_id = $1 ORDER BY ctime LIMIT $2 OFFSET $3", query)
	require.Equal(t, []interface{}{"u1", 10, 20}, finalArgs)
	require.Equal(t, []interface{}{"u1", 20, 10}, args)
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(&pq.Error{Code: uniqueViolation}))
	require.True(t, IsConflict(fmt.Errorf("insert note: %w", &pq.Error{Code: uniqueViolation})))
	require.False(t, IsConflict(&pq.Error{Code: "23503"}))
	require.False(t, IsConflict(errors.New("boom")))
	require.False(t, IsConflict(nil))
}
