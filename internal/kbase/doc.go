// Package kbase builds rule packages from package descriptors.
//
// A Builder turns an ir.PackageDescr into the runtime form of a Package:
// object types, rules with resolved scopes, and one compiled salience
// artifact per rule published in the package's registry. Rules build
// independently; a rule that fails is reported and left out without
// affecting its siblings.
//
// Rebuilding a package is serialized per package. The new rule set is
// swapped in atomically once every rule has been attempted, and registry
// entries of rules that no longer build are pruned.
package kbase
