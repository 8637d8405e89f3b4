package salience

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokInt
	tokFloat
	tokString
	tokIdent

	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
	tokDot

	tokEq
	tokNeq
	tokLt
	tokLe
	tokGt
	tokGe
)

var tokenText = map[tokenKind]string{
	tokEOF:    "end of expression",
	tokInt:    "integer",
	tokFloat:  "number",
	tokString: "string",
	tokIdent:  "identifier",
	tokPlus:   "+",
	tokMinus:  "-",
	tokStar:   "*",
	tokSlash:  "/",
	tokLParen: "(",
	tokRParen: ")",
	tokDot:    ".",
	tokEq:     "==",
	tokNeq:    "!=",
	tokLt:     "<",
	tokLe:     "<=",
	tokGt:     ">",
	tokGe:     ">=",
}

func (k tokenKind) String() string {
	if s, ok := tokenText[k]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(k))
}

func (k tokenKind) isComparison() bool {
	return k >= tokEq && k <= tokGe
}

type token struct {
	kind tokenKind
	// text is the literal text; for identifiers it is NFC normalized and
	// for strings it is the unescaped value.
	text string
	pos  int
}

type lexer struct {
	src  string
	pos  int
	toks []token
}

// lex splits src into tokens, ending with tokEOF.
func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			l.toks = append(l.toks, token{kind: tokEOF, pos: l.pos})
			return l.toks, nil
		}
		if err := l.next(); err != nil {
			return nil, err
		}
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		r, w := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += w
	}
}

func (l *lexer) emit(kind tokenKind, text string, start int) {
	l.toks = append(l.toks, token{kind: kind, text: text, pos: start})
}

func (l *lexer) syntaxError(pos int, format string, args ...any) error {
	return &BuildError{
		Code:    ErrCodeSyntax,
		Message: fmt.Sprintf(format, args...),
		Source:  l.src,
		Offset:  pos,
	}
}

func (l *lexer) next() error {
	start := l.pos
	r, w := utf8.DecodeRuneInString(l.src[l.pos:])

	switch {
	case r == utf8.RuneError && w == 1:
		return l.syntaxError(start, "invalid UTF-8 in expression")
	case isIdentStart(r):
		return l.ident()
	case r >= '0' && r <= '9':
		return l.number()
	case r == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]):
		return l.number()
	case r == '"' || r == '\'':
		return l.str(byte(r))
	}

	two := ""
	if l.pos+2 <= len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "==":
		l.pos += 2
		l.emit(tokEq, two, start)
		return nil
	case "!=":
		l.pos += 2
		l.emit(tokNeq, two, start)
		return nil
	case "<=":
		l.pos += 2
		l.emit(tokLe, two, start)
		return nil
	case ">=":
		l.pos += 2
		l.emit(tokGe, two, start)
		return nil
	}

	var kind tokenKind
	switch r {
	case '+':
		kind = tokPlus
	case '-':
		kind = tokMinus
	case '*':
		kind = tokStar
	case '/':
		kind = tokSlash
	case '(':
		kind = tokLParen
	case ')':
		kind = tokRParen
	case '.':
		kind = tokDot
	case '<':
		kind = tokLt
	case '>':
		kind = tokGt
	default:
		return l.syntaxError(start, "unexpected character %q", r)
	}
	l.pos += w
	l.emit(kind, string(r), start)
	return nil
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func (l *lexer) ident() error {
	start := l.pos
	for l.pos < len(l.src) {
		r, w := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentPart(r) {
			break
		}
		l.pos += w
	}
	l.emit(tokIdent, norm.NFC.String(l.src[start:l.pos]), start)
	return nil
}

func (l *lexer) digits() {
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
}

func (l *lexer) number() error {
	start := l.pos
	kind := tokInt
	l.digits()
	if l.pos+1 < len(l.src) && l.src[l.pos] == '.' && isDigit(l.src[l.pos+1]) {
		kind = tokFloat
		l.pos++
		l.digits()
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		kind = tokFloat
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		expStart := l.pos
		l.digits()
		if l.pos == expStart {
			return l.syntaxError(start, "malformed exponent in %q", l.src[start:l.pos])
		}
	}
	if l.pos < len(l.src) {
		if r, _ := utf8.DecodeRuneInString(l.src[l.pos:]); isIdentStart(r) {
			return l.syntaxError(start, "malformed number %q", l.src[start:l.pos+1])
		}
	}
	l.emit(kind, l.src[start:l.pos], start)
	return nil
}

func (l *lexer) str(quote byte) error {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == quote:
			l.pos++
			l.emit(tokString, b.String(), start)
			return nil
		case c == '\\':
			if l.pos+1 >= len(l.src) {
				return l.syntaxError(start, "unterminated string")
			}
			esc := l.src[l.pos+1]
			switch esc {
			case '\\', '"', '\'':
				b.WriteByte(esc)
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				return l.syntaxError(l.pos, "unknown escape \\%c", esc)
			}
			l.pos += 2
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return l.syntaxError(start, "unterminated string")
}
