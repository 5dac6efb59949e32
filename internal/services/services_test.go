package services

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scribe-blog/scribe-be/internal/database"
	"github.com/scribe-blog/scribe-be/internal/images"
	"github.com/scribe-blog/scribe-be/internal/models"
)

// newTestDB opens an in-memory database. The pool is pinned to one
// connection so every statement sees the same memory store.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New("file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t *testing.T) *images.Store {
	t.Helper()
	store, err := images.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.EnsureDefaultAvatar())
	return store
}

func createTestUser(t *testing.T, users *UserService, username string) models.User {
	t.Helper()
	user, err := users.CreateUser(username, username+"@example.com", "Test", "User", "hunter2pass")
	require.NoError(t, err)
	return user
}
