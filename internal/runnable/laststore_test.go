package runnable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewLastStore(dir, "/ws/demo")

	got, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Save(runDemo))

	got, err = s.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, runDemo, *got)

	prev, err := s.Previous()
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "run demo", prev.Label)

	_, err = os.Stat(s.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file left behind")
}

func TestLastStore_PerWorkspace(t *testing.T) {
	dir := t.TempDir()
	a := NewLastStore(dir, "/ws/a")
	b := NewLastStore(dir, "/ws/b")
	assert.NotEqual(t, a.Path(), b.Path())
	assert.Equal(t, a.Path(), NewLastStore(dir, "/ws/a").Path())

	require.NoError(t, a.Save(runDemo))
	got, err := b.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLastStore_Corrupt(t *testing.T) {
	dir := t.TempDir()
	s := NewLastStore(dir, "/ws/demo")
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	_, err := s.Load()
	assert.Error(t, err)
}
