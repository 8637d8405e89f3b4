// Package ir provides the value and descriptor types shared by every other
// package in the module.
//
// This package contains type definitions and serialization only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Fact field values are sealed IRValue types; integers stay int64 and
//     floats are a separate IRFloat so integer arithmetic never silently
//     becomes floating point
//   - Descriptors keep declaration order for rules and sorted order for
//     type fields
//   - Content hashes use RFC 8785 canonical JSON with domain separation
package ir
