// Package harness runs YAML scenarios against a built rule package.
//
// A scenario names a package (a directory of CUE sources or inline CUE),
// the rule build failures it expects, and a list of steps: insert,
// update and retract facts, and activate rules with an expected salience
// or runtime error code. Assertions then check properties across
// activations, such as agenda order.
//
// Each scenario runs in isolation:
//   - a fresh in-memory store records the package and its rule builds
//   - a fixed session id and a rewound handle clock keep traces stable
//   - logs are discarded
//
// RunWithGolden snapshots the trace with goldie so that changes in
// evaluation results show up as golden file diffs:
//
//	go test ./internal/harness -update
package harness
