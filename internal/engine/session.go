package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/salience/internal/binding"
	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/kbase"
	"github.com/roach88/salience/internal/rule"
	"github.com/roach88/salience/internal/salience"
)

// Session holds the facts of one working memory over a shared package.
//
// Thread-safety: a Session is confined to the goroutine that created it.
// Use one session per goroutine; the package it reads is safe to share.
type Session struct {
	id      string
	pkg     *kbase.Package
	ids     IDSource
	logger  *slog.Logger
	handles map[int64]*rule.FactHandle
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionIDGenerator sets the generator for the session id.
// Default is UUIDv7Generator.
func WithSessionIDGenerator(g SessionIDGenerator) SessionOption {
	return func(s *Session) {
		s.id = g.Generate()
	}
}

// WithClock sets the source of fact handle ids. Default is a new Counter.
func WithClock(c IDSource) SessionOption {
	return func(s *Session) {
		s.ids = c
	}
}

// WithLogger sets the session logger. Default is slog.Default().
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// NewSession creates an empty session over pkg.
func NewSession(pkg *kbase.Package, opts ...SessionOption) *Session {
	s := &Session{
		pkg:     pkg,
		handles: make(map[int64]*rule.FactHandle),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = UUIDv7Generator{}.Generate()
	}
	if s.ids == nil {
		s.ids = new(Counter)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session", s.id, "package", pkg.Name())
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Package returns the package the session evaluates against.
func (s *Session) Package() *kbase.Package {
	return s.pkg
}

// Insert adds a fact of typeName. Fields are validated against the type
// and copied, so the caller may reuse the map.
func (s *Session) Insert(typeName string, fields ir.IRObject) (*rule.FactHandle, error) {
	if err := s.validate(typeName, fields); err != nil {
		return nil, err
	}
	h := rule.NewFactHandle(s.ids.Next(), rule.Fact{Type: typeName, Fields: fields})
	s.handles[h.ID()] = h
	s.logger.Debug("fact inserted", "handle", h.ID(), "type", typeName)
	return h, nil
}

// Update replaces the fields of a live fact. The type stays the same.
func (s *Session) Update(h *rule.FactHandle, fields ir.IRObject) error {
	f, err := s.live(h)
	if err != nil {
		return err
	}
	if err := s.validate(f.Type, fields); err != nil {
		return err
	}
	h.Replace(rule.Fact{Type: f.Type, Fields: fields})
	s.logger.Debug("fact updated", "handle", h.ID(), "type", f.Type)
	return nil
}

// Retract removes a fact. Activations still holding the handle fail
// extraction afterwards.
func (s *Session) Retract(h *rule.FactHandle) error {
	if _, err := s.live(h); err != nil {
		return err
	}
	h.Retract()
	delete(s.handles, h.ID())
	s.logger.Debug("fact retracted", "handle", h.ID())
	return nil
}

// Facts returns the live handles ordered by id.
func (s *Session) Facts() []*rule.FactHandle {
	out := make([]*rule.FactHandle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// NewActivation binds handles, in pattern order, to the named rule.
// Each handle must be live in this session and its fact must be of the
// type of a pattern at its offset.
func (s *Session) NewActivation(ruleName string, handles ...*rule.FactHandle) (*Activation, error) {
	r, ok := s.pkg.Rule(ruleName)
	if !ok {
		return nil, s.errorf(ErrCodeUnknownRule, ruleName, "package %s has no rule %q", s.pkg.Name(), ruleName)
	}
	if len(handles) != r.Width() {
		return nil, s.errorf(ErrCodeArity, ruleName, "rule matches %d facts, got %d", r.Width(), len(handles))
	}

	for i, h := range handles {
		f, err := s.live(h)
		if err != nil {
			return nil, err
		}
		if !patternAccepts(r.Patterns(), i, f.Type) {
			return nil, s.errorf(ErrCodePatternType, ruleName, "fact %d of type %s does not match pattern %d", h.ID(), f.Type, i)
		}
	}

	return &Activation{rule: r, tuple: rule.TupleOf(handles...), session: s.id}, nil
}

// patternAccepts reports whether some positive pattern at offset matches
// typeName. Or branches may place several patterns at one offset.
func patternAccepts(patterns []*rule.Pattern, offset int, typeName string) bool {
	for _, p := range patterns {
		if p.Offset() == offset && p.Type().Name() == typeName {
			return true
		}
	}
	return false
}

// Salience evaluates the activation's rule salience against its tuple.
//
// The artifact is looked up in the package registry at call time. Rules
// without a salience get kbase.DefaultSalience. Evaluation errors are
// returned as *salience.RuntimeError.
func (s *Session) Salience(act *Activation) (salience.Value, error) {
	r := act.rule
	if !r.HasSalience() {
		return kbase.DefaultSalience, nil
	}

	expr, ok := s.pkg.Salience(r.ID())
	if !ok {
		return salience.Value{}, s.errorf(ErrCodeMissingArtifact, r.Name(), "no salience published for %s", r.ID())
	}

	v, err := expr.Evaluate(binding.New(act.tuple, r.Declarations()))
	if err != nil {
		s.logger.Warn("salience evaluation failed",
			"rule", r.ID(),
			"code", salience.ErrorCode(err),
			"error", err)
		return salience.Value{}, err
	}

	s.logger.Debug("salience evaluated", "rule", r.ID(), "value", v.String())
	return v, nil
}

func (s *Session) validate(typeName string, fields ir.IRObject) error {
	typ, ok := s.pkg.Type(typeName)
	if !ok {
		return s.errorf(ErrCodeUnknownType, "", "package %s has no type %q", s.pkg.Name(), typeName)
	}
	if err := typ.Validate(fields); err != nil {
		return s.errorf(ErrCodeInvalidFact, "", "%v", err)
	}
	return nil
}

// live returns the current fact of a handle owned by this session.
func (s *Session) live(h *rule.FactHandle) (*rule.Fact, error) {
	if h == nil {
		return nil, s.errorf(ErrCodeUnknownHandle, "", "nil fact handle")
	}
	if s.handles[h.ID()] != h {
		if h.Retracted() {
			return nil, s.errorf(ErrCodeRetracted, "", "fact %d was retracted", h.ID())
		}
		return nil, s.errorf(ErrCodeUnknownHandle, "", "fact %d does not belong to this session", h.ID())
	}
	return h.Fact(), nil
}

func (s *Session) errorf(code SessionErrorCode, ruleName, format string, args ...any) *SessionError {
	return &SessionError{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		SessionID: s.id,
		Rule:      ruleName,
	}
}
