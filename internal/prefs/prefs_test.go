package prefs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDarkModeRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prefs.db")
	s, err := Open(path)
	require.NoError(t, err)

	on, err := s.DarkMode(ctx, true)
	require.NoError(t, err)
	assert.True(t, on, "fallback when unset")

	require.NoError(t, s.SetDarkMode(ctx, false))
	on, err = s.DarkMode(ctx, true)
	require.NoError(t, err)
	assert.False(t, on)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.SetDarkMode(ctx, true))
	on, err = s.DarkMode(ctx, false)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestDarkModeIgnoresGarbage(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.Exec(`INSERT INTO prefs (key, value) VALUES (?, 'maybe')`, DarkModeKey)
	require.NoError(t, err)

	on, err := s.DarkMode(ctx, true)
	require.NoError(t, err)
	assert.True(t, on)
}
