package predicate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokTime
	tokCompare
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	pos  int
	text string

	number    float64
	time      time.Time
	modifiers Modifiers
}

type lexer struct {
	input string
	pos   int
	now   time.Time
}

func (l *lexer) errorf(pos int, format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d", ErrMalformed, fmt.Sprintf(format, args...), pos)
}

func (l *lexer) tokens() ([]token, error) {
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}

		tokens = append(tokens, tok)
		if tok.kind == tokEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) peekByte(offset int) byte {
	if l.pos+offset < len(l.input) {
		return l.input[l.pos+offset]
	}
	return 0
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}

	start := l.pos
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.input[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, pos: start, text: "("}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, pos: start, text: ")"}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, pos: start, text: ","}, nil
	case c == '&' && l.peekByte(1) == '&':
		l.pos += 2
		return token{kind: tokAnd, pos: start, text: "&&"}, nil
	case c == '|' && l.peekByte(1) == '|':
		l.pos += 2
		return token{kind: tokOr, pos: start, text: "||"}, nil
	case c == '=' || c == '<' || c == '>' || (c == '!' && l.peekByte(1) == '='):
		return l.compare()
	case c == '!':
		l.pos++
		return token{kind: tokNot, pos: start, text: "!"}, nil
	case c == '*':
		l.pos++
		return token{kind: tokIdent, pos: start, text: "*"}, nil
	case c == '"':
		return l.str()
	case c == '$':
		return l.timeValue()
	case c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return l.num()
	case isIdentByte(c):
		for l.pos < len(l.input) && isIdentByte(l.input[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, pos: start, text: l.input[start:l.pos]}, nil
	}

	return token{}, l.errorf(start, "unexpected character %q", c)
}

func isIdentByte(c byte) bool {
	return c == '_' || c == ':' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (l *lexer) compare() (token, error) {
	start := l.pos
	for _, op := range []string{"==", "!=", "<=", ">=", "=", "<", ">"} {
		if strings.HasPrefix(l.input[l.pos:], op) {
			l.pos += len(op)
			if op == "=" {
				op = "=="
			}
			return token{kind: tokCompare, pos: start, text: op}, nil
		}
	}

	return token{}, l.errorf(start, "invalid operator")
}

func (l *lexer) str() (token, error) {
	start := l.pos
	l.pos++

	var b strings.Builder
	for {
		if l.pos >= len(l.input) {
			return token{}, l.errorf(start, "unterminated string")
		}

		c := l.input[l.pos]
		if c == '\\' && l.pos+1 < len(l.input) {
			switch next := l.input[l.pos+1]; next {
			case '"', '\\':
				b.WriteByte(next)
			default:
				// Escaped wildcards stay escaped for the matcher
				b.WriteByte('\\')
				b.WriteByte(next)
			}
			l.pos += 2
			continue
		}

		l.pos++
		if c == '"' {
			break
		}
		b.WriteByte(c)
	}

	tok := token{kind: tokString, pos: start, text: b.String()}
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case 'c':
			tok.modifiers |= ModCaseInsensitive
		case 'd':
			tok.modifiers |= ModDiacriticInsensitive
		case 'w':
			tok.modifiers |= ModWord
		default:
			if isIdentByte(l.input[l.pos]) {
				return token{}, l.errorf(l.pos, "unknown string modifier %q", l.input[l.pos])
			}
			return tok, nil
		}
		l.pos++
	}

	return tok, nil
}

func (l *lexer) num() (token, error) {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.input) && (l.input[l.pos] == '.' || (l.input[l.pos] >= '0' && l.input[l.pos] <= '9')) {
		l.pos++
	}

	text := l.input[start:l.pos]
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, l.errorf(start, "invalid number '%s'", text)
	}

	return token{kind: tokNumber, pos: start, text: text, number: value}, nil
}

// timeValue lexes $time.iso(...), $time.now[(seconds)] and $time.today[(days)].
func (l *lexer) timeValue() (token, error) {
	start := l.pos
	l.pos++
	for l.pos < len(l.input) && isIdentByte(l.input[l.pos]) {
		l.pos++
	}
	name := l.input[start:l.pos]

	var arg string
	hasArg := false
	if l.pos < len(l.input) && l.input[l.pos] == '(' {
		end := strings.IndexByte(l.input[l.pos:], ')')
		if end < 0 {
			return token{}, l.errorf(start, "unterminated %s argument", name)
		}
		arg = strings.TrimSpace(l.input[l.pos+1 : l.pos+end])
		hasArg = true
		l.pos += end + 1
	}

	tok := token{kind: tokTime, pos: start, text: l.input[start:l.pos]}
	switch name {
	case "$time.iso":
		if !hasArg {
			return token{}, l.errorf(start, "$time.iso requires an argument")
		}
		t, err := time.Parse(time.RFC3339Nano, arg)
		if err != nil {
			return token{}, l.errorf(start, "invalid iso time '%s'", arg)
		}
		tok.time = t
	case "$time.now":
		offset, err := parseOffset(arg, hasArg)
		if err != nil {
			return token{}, l.errorf(start, "invalid $time.now offset '%s'", arg)
		}
		tok.time = l.now.Add(time.Duration(offset * float64(time.Second)))
	case "$time.today":
		offset, err := parseOffset(arg, hasArg)
		if err != nil {
			return token{}, l.errorf(start, "invalid $time.today offset '%s'", arg)
		}
		y, m, d := l.now.Date()
		tok.time = time.Date(y, m, d+int(offset), 0, 0, 0, 0, l.now.Location())
	default:
		return token{}, l.errorf(start, "unknown time function '%s'", name)
	}

	return tok, nil
}

func parseOffset(arg string, hasArg bool) (float64, error) {
	if !hasArg || arg == "" {
		return 0, nil
	}
	return strconv.ParseFloat(arg, 64)
}
