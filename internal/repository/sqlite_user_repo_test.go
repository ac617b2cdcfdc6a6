package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go-saas-auth/internal/database"
)

func newSQLiteStore(t *testing.T) *SQLiteUserRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.EnsureSQLiteSchema(ctx, db))
	return NewSQLiteUserRepository(db)
}

func TestSQLiteUserRepository(t *testing.T) {
	t.Parallel()

	runUserStoreContract(t, func(t *testing.T) userStore {
		return newSQLiteStore(t)
	})
}
