package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/salience/internal/compiler"
	"github.com/roach88/salience/internal/store"
)

const twoPackages = `package rules

pkg: alpha: {
	type: Item: weight: int
	rule: heavy: {
		salience: "i.weight"
		when: [{pattern: {bind: "i", type: "Item"}}]
	}
}

pkg: beta: {
	type: Item: weight: float
	rule: light: {
		salience: "0 - i.weight"
		when: [{pattern: {bind: "i", type: "Item"}}]
	}
}
`

// writePackages writes src as a single CUE file in a fresh directory.
func writePackages(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.cue"), []byte(src), 0644))
	return dir
}

type compileResponse struct {
	Status string            `json:"status"`
	Data   CompilationResult `json:"data"`
	Error  *CLIError         `json:"error"`
}

func TestCompile_Text(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), "testdata/rules")
	require.NoError(t, err)

	assert.Contains(t, out, "Package scoring")
	assert.Contains(t, out, "✓ adult")
	assert.Contains(t, out, "✓ gap")
	assert.Contains(t, out, "✓ Compiled 1 package(s)")
}

func TestCompile_JSON(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "json"}), "testdata/rules")
	require.NoError(t, err)

	var resp compileResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Packages, 1)

	p := resp.Data.Packages[0]
	assert.Equal(t, "scoring", p.Name)
	assert.Len(t, p.Hash, 64)
	assert.Equal(t, []string{"adult", "ratio", "gap"}, p.Built)
	assert.Empty(t, p.Failures)
}

func TestCompile_RuleFailures(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), "testdata/shaky")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "✓ steady")
	assert.Contains(t, out, "✗ broken: SYNTAX_ERROR")
	assert.Contains(t, out, "1 rule(s) failed to build")
}

func TestCompile_RuleFailuresJSON(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "json"}), "testdata/shaky")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp compileResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRuleBuild, resp.Error.Code)

	require.Len(t, resp.Data.Packages, 1)
	failures := resp.Data.Packages[0].Failures
	require.Len(t, failures, 1)
	assert.Equal(t, "broken", failures[0].Rule)
	assert.Equal(t, "SYNTAX_ERROR", failures[0].Code)
	assert.NotEmpty(t, failures[0].Message)
}

func TestCompile_SavesToStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "packages.db")

	for i := 0; i < 2; i++ {
		out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), "testdata/rules", "--db", dbPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Saved 1 package(s)")
	}

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	records, err := st.ListPackages(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "scoring", records[0].Name)
	assert.Equal(t, int64(1), records[0].Seq, "recompiling the same package keeps its version")

	builds, err := st.RuleBuilds(ctx, "scoring", records[0].Hash)
	require.NoError(t, err)
	require.Len(t, builds, 3)
	for _, b := range builds {
		assert.True(t, b.Built(), b.Rule)
	}
}

func TestCompile_SavesFailuresToStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "packages.db")

	_, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), "testdata/shaky", "--db", dbPath)
	require.Error(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	_, rec, err := st.LoadPackage(context.Background(), "shaky")
	require.NoError(t, err)
	builds, err := st.RuleBuilds(context.Background(), "shaky", rec.Hash)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.True(t, builds[0].Built())
	assert.Equal(t, "broken", builds[1].Rule)
	assert.Equal(t, "SYNTAX_ERROR", builds[1].Code)
}

func TestCompile_SelectPackage(t *testing.T) {
	dir := writePackages(t, twoPackages)

	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "json"}), dir, "--package", "beta")
	require.NoError(t, err)

	var resp compileResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Packages, 1)
	assert.Equal(t, "beta", resp.Data.Packages[0].Name)
	assert.Equal(t, []string{"light"}, resp.Data.Packages[0].Built)
}

func TestCompile_AllPackages(t *testing.T) {
	dir := writePackages(t, twoPackages)

	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Package alpha")
	assert.Contains(t, out, "Package beta")
	assert.Contains(t, out, "✓ Compiled 2 package(s)")
}

func TestCompile_UnknownPackage(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), "testdata/rules", "--package", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeUnknownPackage)
	assert.Contains(t, out, `package "nope" not found`)
}

func TestCompile_MissingDirectory(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), "/nonexistent/rules")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "✗ Loading failed")
	assert.Contains(t, out, compiler.ErrCodeNotFound)
}

func TestCompile_MissingDirectoryJSON(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "json"}), "/nonexistent/rules")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrCodeNotFound, resp.Error.Code)
}

func TestCompile_EmptyDirectory(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, compiler.ErrCodeNoFiles)
}
