package authclient

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStores(t *testing.T) {
	stores := map[string]func(t *testing.T) TokenStore{
		"memory": func(*testing.T) TokenStore { return NewMemoryTokenStore() },
		"file": func(t *testing.T) TokenStore {
			return NewFileTokenStore(filepath.Join(t.TempDir(), "session", "tokens.json"))
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)

			empty, err := store.Load()
			require.NoError(t, err)
			assert.Equal(t, Tokens{}, empty)

			pair := Tokens{AccessToken: "a", RefreshToken: "r"}
			require.NoError(t, store.Save(pair))

			loaded, err := store.Load()
			require.NoError(t, err)
			assert.Equal(t, pair, loaded)

			require.NoError(t, store.Clear())
			require.NoError(t, store.Clear())

			cleared, err := store.Load()
			require.NoError(t, err)
			assert.Equal(t, Tokens{}, cleared)
		})
	}
}

func TestFileTokenStoreIsOwnerOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store := NewFileTokenStore(path)
	require.NoError(t, store.Save(Tokens{AccessToken: "a", RefreshToken: "r"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileTokenStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	_, err := NewFileTokenStore(path).Load()
	assert.Error(t, err)
}
