package boltstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paychan.db")
	s, err := Open(path)
	require.NoError(t, err)

	_, ok, err := s.Get("funding_txid_outgoing_x")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put("funding_txid_outgoing_x", "abc"))
	require.NoError(t, s.Put("channel_outgoing_x", "{}"))
	v, ok, err := s.Get("funding_txid_outgoing_x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Put("funding_txid_outgoing_x", "def"))
	require.NoError(t, s.Close())

	// Values survive reopening.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err = s.Get("funding_txid_outgoing_x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "def", v)
	v, ok, err = s.Get("channel_outgoing_x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "{}", v)
}
