// Package salience compiles salience expressions and evaluates them.
//
// A salience expression is the priority attribute of a rule:
//
//	(p.age + 20) / 2
//	o.total * 1.5 - 10
//	p.name == "vip"
//
// Compile turns source text plus the declarations a rule makes visible
// into an *Expression. Every variable is resolved once, at compile time,
// to a slot index into the sorted list of required declarations; the
// lowered node tree reads values by slot and never looks a name up again.
//
// # Concurrency
//
// An *Expression is fully built before Compile returns and is never
// written afterwards. Evaluate keeps all per-call state (the slot frame
// and intermediate values) on its own stack, so one Expression may be
// evaluated from any number of goroutines and sessions at once; each call
// depends only on the Bindings it is given.
//
// # Semantics
//
//   - int op int is int; any float operand promotes to float
//   - integer division truncates toward zero; division by integer zero
//     is a RuntimeError, float division follows IEEE 754
//   - comparisons yield bool; a bool result is a priority of 1 or 0 and
//     a bool operand of arithmetic is promoted the same way
//   - strings only appear as comparison operands
//
// # Errors
//
// Build problems are *BuildError (SYNTAX_ERROR, UNBOUND_VARIABLE,
// TYPE_ERROR). Evaluation problems are *RuntimeError (EXTRACTION_ERROR,
// TYPE_MISMATCH, DIVISION_BY_ZERO) and are never replaced by a default
// priority.
package salience
