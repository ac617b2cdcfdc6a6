package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewResetToken(t *testing.T) {
	t.Parallel()

	raw, hash, err := NewResetToken()
	require.NoError(t, err)
	require.Len(t, raw, 64)
	require.Len(t, hash, 64)
	require.NotEqual(t, raw, hash)
	require.Equal(t, hash, HashResetToken(raw))

	other, _, err := NewResetToken()
	require.NoError(t, err)
	require.NotEqual(t, raw, other)
}
