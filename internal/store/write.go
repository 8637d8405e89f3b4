package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/kbase"
)

// Rule build statuses.
const (
	StatusBuilt  = "built"
	StatusFailed = "failed"
)

var (
	// ErrNotFound is returned when no stored package matches a lookup.
	ErrNotFound = errors.New("package not found")

	// ErrCorrupt is returned when a stored descriptor no longer matches
	// its hash.
	ErrCorrupt = errors.New("stored package is corrupt")
)

// SavePackage records a package version and the outcome of building it.
//
// Saving is idempotent per (name, hash): the version keeps the seq it
// was first saved with, and its rule builds are replaced by report's.
// report may be nil to record the descriptor alone; report.Hash, when
// set, must match the descriptor.
func (s *Store) SavePackage(ctx context.Context, descr *ir.PackageDescr, report *kbase.BuildReport) (PackageRecord, error) {
	if descr == nil {
		return PackageRecord{}, errors.New("save package: nil descriptor")
	}
	hash, err := ir.PackageHash(descr)
	if err != nil {
		return PackageRecord{}, fmt.Errorf("save package: %w", err)
	}
	if report != nil && report.Hash != "" && report.Hash != hash {
		return PackageRecord{}, fmt.Errorf("save package %s: report is for hash %s, descriptor hashes to %s", descr.Name, report.Hash, hash)
	}
	data, err := marshalDescriptor(descr)
	if err != nil {
		return PackageRecord{}, fmt.Errorf("save package %s: %w", descr.Name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PackageRecord{}, fmt.Errorf("save package %s: begin: %w", descr.Name, err)
	}
	defer tx.Rollback()

	// Logical clock: one past the highest seq ever assigned.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO packages (name, hash, seq, descriptor, rule_count)
		SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ? FROM packages WHERE true
		ON CONFLICT(name, hash) DO NOTHING
	`, descr.Name, hash, data, len(descr.Rules))
	if err != nil {
		return PackageRecord{}, fmt.Errorf("save package %s: %w", descr.Name, err)
	}

	if report != nil {
		if err := writeRuleBuilds(ctx, tx, descr, hash, report); err != nil {
			return PackageRecord{}, fmt.Errorf("save package %s: %w", descr.Name, err)
		}
	}

	rec, err := scanPackageRecord(tx.QueryRowContext(ctx, `
		SELECT name, hash, seq, rule_count FROM packages WHERE name = ? AND hash = ?
	`, descr.Name, hash))
	if err != nil {
		return PackageRecord{}, fmt.Errorf("save package %s: %w", descr.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return PackageRecord{}, fmt.Errorf("save package %s: commit: %w", descr.Name, err)
	}
	return rec, nil
}

func writeRuleBuilds(ctx context.Context, tx *sql.Tx, descr *ir.PackageDescr, hash string, report *kbase.BuildReport) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM rule_builds WHERE package = ? AND package_hash = ?
	`, descr.Name, hash); err != nil {
		return fmt.Errorf("clear rule builds: %w", err)
	}

	built := make(map[string]bool, len(report.Built))
	for _, name := range report.Built {
		built[name] = true
	}

	// A duplicated rule name is recorded once, for its first occurrence.
	seen := make(map[string]bool, len(descr.Rules))
	for i, rd := range descr.Rules {
		if seen[rd.Name] {
			continue
		}
		seen[rd.Name] = true

		ruleHash, err := ir.RuleHash(descr.Name, rd)
		if err != nil {
			return err
		}
		status, code, msg := StatusBuilt, "", ""
		if !built[rd.Name] {
			status = StatusFailed
			if f, ok := report.Failure(rd.Name); ok {
				code, msg = string(f.Code), f.Error()
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rule_builds
			(package, package_hash, rule, position, rule_hash, status, error_code, error_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, descr.Name, hash, rd.Name, i, ruleHash, status, code, msg)
		if err != nil {
			return fmt.Errorf("write rule build %q: %w", rd.Name, err)
		}
	}
	return nil
}
