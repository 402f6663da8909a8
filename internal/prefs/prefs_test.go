package prefs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	v, err := s.GetBool("isFirstRun", true)
	require.NoError(t, err)
	assert.True(t, v, "unset key falls back to default")

	require.NoError(t, s.SetBool("isFirstRun", false))
	v, err = s.GetBool("isFirstRun", true)
	require.NoError(t, err)
	assert.False(t, v)

	require.NoError(t, s.SetBool("keepScreenOn", true))
	v, err = s.GetBool("keepScreenOn", false)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestBadgerStoreInMemory(t *testing.T) {
	s, err := OpenBadger("", true, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenBadger(dir, false, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.SetBool("isFirstRun", false))
	require.NoError(t, s.Close())

	s, err = OpenBadger(dir, false, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	v, err := s.GetBool("isFirstRun", true)
	require.NoError(t, err)
	assert.False(t, v)
}
