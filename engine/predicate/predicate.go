// Package predicate compiles the query expressions understood by the engine.
//
// The syntax follows the metadata query language subset produced by the
// runner: comparisons of an attribute with a string, number or time value,
// combined with &&, || and !, plus InRange(attribute, low, high).
//
//	kMDItemDisplayName == "*report*"cd && kMDItemFSSize > 1024
//	InRange(kMDItemContentModificationDate, $time.today(-7), $time.now)
package predicate

import (
	"errors"
	"fmt"
	"time"
)

var ErrMalformed = errors.New("predicate: malformed expression")

// Modifiers alter how string values are compared.
type Modifiers int

const (
	ModCaseInsensitive      Modifiers = 1 << iota // c
	ModDiacriticInsensitive                       // d
	ModWord                                       // w
)

// AnyAttribute addresses every text attribute of an item.
const AnyAttribute = "*"

type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindTime
)

// Value is a typed attribute value of an item.
type Value struct {
	Kind   Kind
	Text   string
	Number float64
	Time   time.Time
}

func Text(s string) Value         { return Value{Kind: KindText, Text: s} }
func Number(n float64) Value      { return Value{Kind: KindNumber, Number: n} }
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, Time: t} }

// Attributes gives the evaluator access to the attributes of one item.
type Attributes interface {
	// Attribute returns the named attribute, if the item has it.
	Attribute(name string) (Value, bool)
	// Texts returns every text attribute, used by the "*" attribute.
	Texts() []string
}

// Predicate is a compiled, immutable expression safe for concurrent use.
type Predicate struct {
	source string
	root   node
}

// Parse compiles expr, resolving $time.now and $time.today against the current time.
func Parse(expr string) (*Predicate, error) {
	return ParseAt(expr, time.Now())
}

// ParseAt compiles expr, resolving relative time values against now.
func ParseAt(expr string, now time.Time) (*Predicate, error) {
	lex := &lexer{input: expr, now: now}
	tokens, err := lex.tokens()
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	if p.peek().kind == tokEOF {
		return nil, fmt.Errorf("%w: empty expression", ErrMalformed)
	}

	root, err := p.expression()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected '%s' at offset %d", ErrMalformed, tok.text, tok.pos)
	}

	return &Predicate{source: expr, root: root}, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(expr string) *Predicate {
	p, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Predicate) Match(attrs Attributes) bool {
	return p.root.eval(attrs)
}

func (p *Predicate) String() string {
	return p.source
}
