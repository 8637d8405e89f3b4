package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/kbase"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// buildReport builds descr into a fresh package and returns the report.
func buildReport(t *testing.T, descr *ir.PackageDescr) *kbase.BuildReport {
	t.Helper()
	b := kbase.NewBuilder(kbase.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	report, err := b.Build(b.NewPackage(descr.Name), descr)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return report
}
