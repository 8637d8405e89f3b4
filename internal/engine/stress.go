package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/kbase"
	"github.com/roach88/salience/internal/rule"
	"github.com/roach88/salience/internal/salience"
)

// StressConfig describes a concurrent evaluation run: Sessions goroutines,
// each with its own session and fact, evaluate Rule Iterations times
// against the one artifact the package publishes for it.
type StressConfig struct {
	Package *kbase.Package
	Rule    string

	// Type is the fact type inserted in every session. Each of the rule's
	// patterns is bound to that one fact, so every pattern must be of Type.
	Type string

	// Fact returns the fields for session i.
	Fact func(i int) ir.IRObject

	// Expect, when set, returns the salience session i must produce.
	Expect func(i int) salience.Value

	Sessions   int
	Iterations int

	// IDs generates session ids. Default is UUIDv7Generator.
	IDs    SessionIDGenerator
	Logger *slog.Logger
}

// SessionResult is what one stress session observed.
type SessionResult struct {
	Session    string         `json:"session"`
	Value      salience.Value `json:"value"`
	Error      string         `json:"error,omitempty"`
	Mismatches int64          `json:"mismatches"`
}

// StressReport summarizes a stress run.
type StressReport struct {
	Rule        string          `json:"rule"`
	Sessions    int             `json:"sessions"`
	Iterations  int             `json:"iterations"`
	Evaluations int64           `json:"evaluations"`
	Errors      int64           `json:"errors"`
	Mismatches  int64           `json:"mismatches"`
	Results     []SessionResult `json:"results"`
	Elapsed     time.Duration   `json:"elapsed_ns"`
}

// OK reports whether every session saw a stable, expected value and no
// evaluation failed.
func (r *StressReport) OK() bool {
	return r.Errors == 0 && r.Mismatches == 0
}

// Stress runs the configured sessions concurrently. Sessions set up
// their facts first and wait on a shared barrier so evaluations overlap.
//
// Evaluation errors are counted, not returned; a session whose outcome
// changes between iterations counts a mismatch. Stress returns an error
// for an invalid config, a session that cannot be set up, or ctx ending.
func Stress(ctx context.Context, cfg StressConfig) (*StressReport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.IDs == nil {
		cfg.IDs = UUIDv7Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	report := &StressReport{
		Rule:       cfg.Rule,
		Sessions:   cfg.Sessions,
		Iterations: cfg.Iterations,
		Results:    make([]SessionResult, cfg.Sessions),
	}
	var evaluations, failures, mismatches atomic.Int64

	start := make(chan struct{})
	var ready sync.WaitGroup
	ready.Add(cfg.Sessions)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Sessions; i++ {
		i := i
		g.Go(func() error {
			act, sess, err := cfg.prepare(i)
			ready.Done()
			if err != nil {
				return fmt.Errorf("session %d: %w", i, err)
			}

			select {
			case <-start:
			case <-gctx.Done():
				return gctx.Err()
			}

			res := SessionResult{Session: sess.ID()}
			var first error
			for n := 0; n < cfg.Iterations; n++ {
				if n%64 == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				v, err := sess.Salience(act)
				evaluations.Add(1)
				if err != nil {
					failures.Add(1)
				}
				if n == 0 {
					res.Value, first = v, err
					if err != nil {
						res.Error = err.Error()
					}
					if err == nil && cfg.Expect != nil && v.Compare(cfg.Expect(i)) != 0 {
						res.Mismatches++
					}
					continue
				}
				if !sameOutcome(res.Value, first, v, err) {
					res.Mismatches++
				}
			}
			mismatches.Add(res.Mismatches)
			report.Results[i] = res
			return nil
		})
	}

	// Setup failures must not leave the barrier waiting.
	ready.Wait()
	began := time.Now()
	close(start)

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Elapsed = time.Since(began)
	report.Evaluations = evaluations.Load()
	report.Errors = failures.Load()
	report.Mismatches = mismatches.Load()

	cfg.Logger.Info("stress run finished",
		"rule", cfg.Rule,
		"sessions", cfg.Sessions,
		"evaluations", report.Evaluations,
		"errors", report.Errors,
		"mismatches", report.Mismatches,
		"elapsed", report.Elapsed)
	return report, nil
}

func (cfg *StressConfig) validate() error {
	switch {
	case cfg.Package == nil:
		return errors.New("stress: package is required")
	case cfg.Rule == "":
		return errors.New("stress: rule is required")
	case cfg.Type == "":
		return errors.New("stress: fact type is required")
	case cfg.Fact == nil:
		return errors.New("stress: fact function is required")
	case cfg.Sessions < 1:
		return fmt.Errorf("stress: sessions must be positive, got %d", cfg.Sessions)
	case cfg.Iterations < 1:
		return fmt.Errorf("stress: iterations must be positive, got %d", cfg.Iterations)
	}
	return nil
}

// prepare creates session i, inserts its fact and binds it to every
// pattern of the rule.
func (cfg *StressConfig) prepare(i int) (*Activation, *Session, error) {
	sess := NewSession(cfg.Package, WithSessionIDGenerator(cfg.IDs), WithLogger(cfg.Logger))
	h, err := sess.Insert(cfg.Type, cfg.Fact(i))
	if err != nil {
		return nil, nil, err
	}
	r, ok := cfg.Package.Rule(cfg.Rule)
	if !ok {
		return nil, nil, sess.errorf(ErrCodeUnknownRule, cfg.Rule, "package %s has no rule %q", cfg.Package.Name(), cfg.Rule)
	}
	handles := make([]*rule.FactHandle, r.Width())
	for j := range handles {
		handles[j] = h
	}
	act, err := sess.NewActivation(cfg.Rule, handles...)
	if err != nil {
		return nil, nil, err
	}
	return act, sess, nil
}

func sameOutcome(want salience.Value, wantErr error, got salience.Value, gotErr error) bool {
	if wantErr != nil || gotErr != nil {
		return wantErr != nil && gotErr != nil && salience.ErrorCode(wantErr) == salience.ErrorCode(gotErr)
	}
	return want.Compare(got) == 0
}
