package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"b.yaml", "a.yml", "notes.txt", "sub/c.YAML", "testdata/skip.yaml"} {
		full := filepath.Join(dir, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}

	files, err := DiscoverScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "sub", "c.YAML"),
	}, files)

	single, err := DiscoverScenarios(filepath.Join(dir, "b.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.yaml")}, single)

	_, err = DiscoverScenarios(filepath.Join(dir, "notes.txt"))
	assert.Error(t, err)
	_, err = DiscoverScenarios(filepath.Join(dir, "absent"))
	assert.Error(t, err)
}

func TestDiscoverScenarios_Testdata(t *testing.T) {
	files, err := DiscoverScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
