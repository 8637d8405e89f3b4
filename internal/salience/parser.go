package salience

import "fmt"

// Binding powers, lowest first.
const (
	bpComparison = 10
	bpAdditive   = 20
	bpMultiplier = 30
	bpPrefix     = 40
)

func infixPower(k tokenKind) int {
	switch {
	case k.isComparison():
		return bpComparison
	case k == tokPlus || k == tokMinus:
		return bpAdditive
	case k == tokStar || k == tokSlash:
		return bpMultiplier
	}
	return 0
}

type parser struct {
	src  string
	toks []token
	i    int
}

// parse parses a complete salience expression.
func parse(src string) (expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	if p.peek().kind == tokEOF {
		return nil, p.errorAt(p.peek(), "empty expression")
	}
	e, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorAt(t, "unexpected %s after expression", describe(t))
	}
	return e, nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) advance() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) errorAt(t token, format string, args ...any) error {
	return &BuildError{
		Code:    ErrCodeSyntax,
		Message: fmt.Sprintf(format, args...),
		Source:  p.src,
		Offset:  t.pos,
	}
}

func describe(t token) string {
	switch t.kind {
	case tokIdent, tokInt, tokFloat:
		return fmt.Sprintf("%s %q", t.kind, t.text)
	case tokString:
		return "string literal"
	case tokEOF:
		return t.kind.String()
	}
	return fmt.Sprintf("%q", t.kind.String())
}

// expr parses an expression whose operators all bind tighter than minBP.
func (p *parser) expr(minBP int) (expr, error) {
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}

	for {
		op := p.peek()
		bp := infixPower(op.kind)
		if bp == 0 || bp <= minBP {
			return left, nil
		}
		p.advance()

		right, err := p.expr(bp)
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{at: op.pos, op: op.kind, x: left, y: right}

		// Comparisons do not chain: a < b < c is rejected rather than
		// comparing a bool with c.
		if op.kind.isComparison() && p.peek().kind.isComparison() {
			return nil, p.errorAt(p.peek(), "comparison operators cannot be chained")
		}
	}
}

func (p *parser) prefix() (expr, error) {
	t := p.advance()
	switch t.kind {
	case tokInt:
		return &numberLit{at: t.pos, text: t.text}, nil

	case tokFloat:
		return &numberLit{at: t.pos, text: t.text, isFloat: true}, nil

	case tokString:
		return &stringLit{at: t.pos, value: t.text}, nil

	case tokIdent:
		return p.selectors(&ident{at: t.pos, name: t.text})

	case tokMinus:
		x, err := p.expr(bpPrefix)
		if err != nil {
			return nil, err
		}
		return &unaryExpr{at: t.pos, op: tokMinus, x: x}, nil

	case tokLParen:
		inner, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if closing := p.advance(); closing.kind != tokRParen {
			return nil, p.errorAt(closing, "expected \")\", found %s", describe(closing))
		}
		if p.peek().kind == tokDot {
			return nil, p.errorAt(p.peek(), "field access is only allowed on variables")
		}
		return inner, nil

	case tokEOF:
		return nil, p.errorAt(t, "unexpected end of expression")
	}
	return nil, p.errorAt(t, "unexpected %s", describe(t))
}

// selectors parses a chain of .field accessors after a variable.
func (p *parser) selectors(x expr) (expr, error) {
	for p.peek().kind == tokDot {
		dot := p.advance()
		name := p.advance()
		if name.kind != tokIdent {
			return nil, p.errorAt(name, "expected field name after \".\", found %s", describe(name))
		}
		x = &selector{at: dot.pos, x: x, field: name.text}
	}
	return x, nil
}
