// Package store provides SQLite-backed durable storage for built rule
// packages.
//
// The store keeps:
//   - Packages: every descriptor version, keyed by (name, hash)
//   - Rule builds: the per-rule outcome of building that version
//
// # Identity and Ordering
//
// A package version is identified by ir.PackageHash of its descriptor
// (RFC 8785 canonical JSON, SHA-256, domain separated). Descriptors are
// stored in canonical form and their hash is re-checked on load.
//
// Versions are ordered by seq, a per-store logical counter assigned on
// first save; wall time is never used. Queries order by seq or by
// position with name COLLATE BINARY as the tie breaker.
//
// # Connections and Schema
//
// Every connection is opened with WAL journaling, synchronous=NORMAL, a
// five second busy timeout and foreign keys enforced. schema.sql creates
// the tables; numbered migrations on top of it are tracked in
// PRAGMA user_version.
package store
