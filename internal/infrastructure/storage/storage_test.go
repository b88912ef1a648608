package storage

import (
	"database/sql"
	"testing"

	"github.com/jbctechsolutions/invsync/internal/infrastructure/testutil"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return testutil.NewDB(t)
}
