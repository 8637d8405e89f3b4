// Package rule holds the build-time and match-time structures a salience
// expression reads from: object types, patterns, declarations, facts,
// fact handles and tuples.
//
// Everything here except FactHandle is immutable once constructed. A
// FactHandle belongs to exactly one session; its fact may be swapped by
// that session (update) or marked retracted, and extractors observe either
// state through atomic loads.
package rule
