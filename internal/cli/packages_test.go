package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/salience/internal/store"
)

// compileInto compiles dir into the store at dbPath.
func compileInto(t *testing.T, dir, dbPath string) {
	t.Helper()
	_, _ = execute(t, NewCompileCommand(&RootOptions{Format: "text"}), dir, "--db", dbPath)
}

func TestPackages_Empty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "packages.db")

	out, err := execute(t, NewPackagesCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No packages stored.")
}

func TestPackages_List(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "packages.db")
	compileInto(t, "testdata/rules", dbPath)
	compileInto(t, "testdata/shaky", dbPath)

	out, err := execute(t, NewPackagesCommand(&RootOptions{Format: "json"}), "--db", dbPath)
	require.NoError(t, err)

	var resp struct {
		Status string                `json:"status"`
		Data   []store.PackageRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "scoring", resp.Data[0].Name)
	assert.Equal(t, 3, resp.Data[0].Rules)
	assert.Equal(t, "shaky", resp.Data[1].Name)
	assert.Equal(t, int64(2), resp.Data[1].Seq)
}

func TestPackages_History(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "packages.db")
	src, err := os.ReadFile("testdata/shaky/shaky.cue")
	require.NoError(t, err)

	dir := filepath.Join(root, "rules")
	require.NoError(t, os.MkdirAll(dir, 0755))
	file := filepath.Join(dir, "shaky.cue")

	require.NoError(t, os.WriteFile(file, src, 0644))
	compileInto(t, dir, dbPath)

	fixed := strings.Replace(string(src), `"p.age +"`, `"p.age + 1"`, 1)
	require.NoError(t, os.WriteFile(file, []byte(fixed), 0644))
	compileInto(t, dir, dbPath)

	out, err := execute(t, NewPackagesCommand(&RootOptions{Format: "json"}), "shaky", "--db", dbPath)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   PackageHistory `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "shaky", resp.Data.Name)
	require.Len(t, resp.Data.Versions, 2)
	assert.Equal(t, int64(1), resp.Data.Versions[0].Seq)
	assert.Equal(t, int64(2), resp.Data.Versions[1].Seq)

	require.Len(t, resp.Data.Rules, 2)
	for _, r := range resp.Data.Rules {
		assert.True(t, r.Built(), "latest version builds %s", r.Rule)
	}
}

func TestPackages_HistoryText(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "packages.db")
	compileInto(t, "testdata/shaky", dbPath)

	out, err := execute(t, NewPackagesCommand(&RootOptions{Format: "text"}), "shaky", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Package shaky")
	assert.Contains(t, out, "seq=1")
	assert.Contains(t, out, "✓ steady")
	assert.Contains(t, out, "✗ broken: SYNTAX_ERROR")
}

func TestPackages_UnknownName(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "packages.db")
	compileInto(t, "testdata/rules", dbPath)

	out, err := execute(t, NewPackagesCommand(&RootOptions{Format: "text"}), "nope", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, out, ErrCodeUnknownPackage)
}
