// Package engine is the evaluation-time side of a rule package: sessions
// that hold facts, activations that bind facts to a rule's patterns, and
// the salience call the agenda makes for each activation.
//
// SESSIONS:
//
// A Session belongs to one goroutine. Its facts, handles, tuples and the
// binding views built for evaluation are never shared. Any number of
// sessions may use the same *kbase.Package at once; the only state they
// share is the package's compiled salience artifacts, which are immutable.
//
// Fact handle ids come from an IDSource (Counter by default), never wall time.
// Session ids come from a SessionIDGenerator: UUIDv7Generator in
// production, FixedGenerator in tests.
//
// SALIENCE:
//
// Session.Salience looks the rule's artifact up in the package registry on
// every call, so a rebuilt package is picked up by the next activation
// while evaluations already running finish on the artifact they hold.
// Rules without a salience get kbase.DefaultSalience. Runtime errors are
// returned to the caller and never replaced by a default.
//
// Ordering activations by salience is the agenda's concern and is not
// implemented here.
package engine
