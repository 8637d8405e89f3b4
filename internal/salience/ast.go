package salience

// expr is a parsed, not yet resolved, expression.
type expr interface {
	pos() int
}

type numberLit struct {
	at      int
	text    string
	isFloat bool
}

type stringLit struct {
	at    int
	value string
}

type ident struct {
	at   int
	name string
}

// selector is x.field.
type selector struct {
	at    int
	x     expr
	field string
}

type unaryExpr struct {
	at int
	op tokenKind
	x  expr
}

type binaryExpr struct {
	at   int
	op   tokenKind
	x, y expr
}

func (e *numberLit) pos() int  { return e.at }
func (e *stringLit) pos() int  { return e.at }
func (e *ident) pos() int      { return e.at }
func (e *selector) pos() int   { return e.at }
func (e *unaryExpr) pos() int  { return e.at }
func (e *binaryExpr) pos() int { return e.at }

// walkIdents calls fn for every variable reference in e, left to right.
func walkIdents(e expr, fn func(*ident)) {
	switch n := e.(type) {
	case *ident:
		fn(n)
	case *selector:
		walkIdents(n.x, fn)
	case *unaryExpr:
		walkIdents(n.x, fn)
	case *binaryExpr:
		walkIdents(n.x, fn)
		walkIdents(n.y, fn)
	}
}
