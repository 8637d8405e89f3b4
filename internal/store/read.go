package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/salience/internal/ir"
)

// PackageRecord summarizes one stored package version.
type PackageRecord struct {
	Name  string `json:"name"`
	Hash  string `json:"hash"`
	Seq   int64  `json:"seq"`
	Rules int    `json:"rules"`
}

// RuleBuild is the stored outcome of building one rule.
type RuleBuild struct {
	Rule     string `json:"rule"`
	RuleHash string `json:"rule_hash"`
	Status   string `json:"status"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Built reports whether the rule built successfully.
func (b RuleBuild) Built() bool {
	return b.Status == StatusBuilt
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPackageRecord(row rowScanner) (PackageRecord, error) {
	var rec PackageRecord
	if err := row.Scan(&rec.Name, &rec.Hash, &rec.Seq, &rec.Rules); err != nil {
		return PackageRecord{}, err
	}
	return rec, nil
}

// LoadPackage returns the most recently saved version of a package.
// Returns ErrNotFound if the package was never saved.
func (s *Store) LoadPackage(ctx context.Context, name string) (*ir.PackageDescr, PackageRecord, error) {
	return s.loadOne(ctx, `
		SELECT name, hash, seq, rule_count, descriptor FROM packages
		WHERE name = ?
		ORDER BY seq DESC
		LIMIT 1
	`, name)
}

// LoadPackageVersion returns a specific version of a package.
func (s *Store) LoadPackageVersion(ctx context.Context, name, hash string) (*ir.PackageDescr, PackageRecord, error) {
	return s.loadOne(ctx, `
		SELECT name, hash, seq, rule_count, descriptor FROM packages
		WHERE name = ? AND hash = ?
	`, name, hash)
}

func (s *Store) loadOne(ctx context.Context, query string, args ...any) (*ir.PackageDescr, PackageRecord, error) {
	var rec PackageRecord
	var data string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&rec.Name, &rec.Hash, &rec.Seq, &rec.Rules, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, PackageRecord{}, fmt.Errorf("load package %v: %w", args, ErrNotFound)
	}
	if err != nil {
		return nil, PackageRecord{}, fmt.Errorf("load package: %w", err)
	}

	descr, err := unmarshalDescriptor(data, rec.Hash)
	if err != nil {
		return nil, PackageRecord{}, err
	}
	return descr, rec, nil
}

// ListPackages returns the latest version of every stored package,
// ordered by name.
//
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ListPackages(ctx context.Context) ([]PackageRecord, error) {
	return s.queryRecords(ctx, `
		SELECT p.name, p.hash, p.seq, p.rule_count
		FROM packages p
		WHERE p.seq = (SELECT MAX(seq) FROM packages WHERE name = p.name)
		ORDER BY p.name COLLATE BINARY ASC
	`)
}

// History returns every stored version of a package, oldest first.
func (s *Store) History(ctx context.Context, name string) ([]PackageRecord, error) {
	return s.queryRecords(ctx, `
		SELECT name, hash, seq, rule_count FROM packages
		WHERE name = ?
		ORDER BY seq ASC
	`, name)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]PackageRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query packages: %w", err)
	}
	defer rows.Close()

	records := []PackageRecord{}
	for rows.Next() {
		rec, err := scanPackageRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate packages: %w", err)
	}
	return records, nil
}

// RuleBuilds returns the recorded build outcomes of a package version in
// rule declaration order.
func (s *Store) RuleBuilds(ctx context.Context, name, hash string) ([]RuleBuild, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule, rule_hash, status, error_code, error_message
		FROM rule_builds
		WHERE package = ? AND package_hash = ?
		ORDER BY position ASC, rule COLLATE BINARY ASC
	`, name, hash)
	if err != nil {
		return nil, fmt.Errorf("query rule builds: %w", err)
	}
	defer rows.Close()

	builds := []RuleBuild{}
	for rows.Next() {
		var b RuleBuild
		if err := rows.Scan(&b.Rule, &b.RuleHash, &b.Status, &b.Code, &b.Message); err != nil {
			return nil, fmt.Errorf("scan rule build: %w", err)
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule builds: %w", err)
	}
	return builds, nil
}
