package predicate

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type node interface {
	eval(attrs Attributes) bool
}

type constNode bool

func (n constNode) eval(Attributes) bool { return bool(n) }

type andNode struct{ left, right node }

func (n *andNode) eval(attrs Attributes) bool {
	return n.left.eval(attrs) && n.right.eval(attrs)
}

type orNode struct{ left, right node }

func (n *orNode) eval(attrs Attributes) bool {
	return n.left.eval(attrs) || n.right.eval(attrs)
}

type notNode struct{ inner node }

func (n *notNode) eval(attrs Attributes) bool {
	return !n.inner.eval(attrs)
}

type compareNode struct {
	attr      string
	op        string
	value     Value
	modifiers Modifiers
	// pattern is the folded string value, prepared once at parse time.
	pattern string
}

func newCompareNode(attr, op string, tok token) *compareNode {
	n := &compareNode{attr: attr, op: op, modifiers: tok.modifiers}
	switch tok.kind {
	case tokNumber:
		n.value = Number(tok.number)
	case tokTime:
		n.value = TimeValue(tok.time)
	default:
		n.value = Text(tok.text)
		n.pattern = fold(tok.text, tok.modifiers)
	}
	return n
}

func (n *compareNode) eval(attrs Attributes) bool {
	if n.attr == AnyAttribute {
		matched := false
		for _, text := range attrs.Texts() {
			if n.matchText(text) {
				matched = true
				break
			}
		}
		if n.op == "!=" {
			return !matched
		}
		return matched
	}

	actual, ok := attrs.Attribute(n.attr)
	if !ok {
		return false
	}

	switch actual.Kind {
	case KindText:
		if n.value.Kind == KindText {
			return n.compareText(actual.Text)
		}
		number, err := strconv.ParseFloat(strings.TrimSpace(actual.Text), 64)
		if err != nil {
			return false
		}
		return n.compareNumber(number)
	case KindNumber:
		return n.compareNumber(actual.Number)
	case KindTime:
		return n.compareTime(actual.Time)
	}

	return false
}

func (n *compareNode) compareText(actual string) bool {
	switch n.op {
	case "==":
		return n.matchText(actual)
	case "!=":
		return !n.matchText(actual)
	}
	return ordered(n.op, strings.Compare(fold(actual, n.modifiers), n.pattern))
}

func (n *compareNode) matchText(actual string) bool {
	actual = fold(actual, n.modifiers)
	if n.modifiers&ModWord == 0 {
		return glob(n.pattern, actual)
	}

	prefix := n.pattern + "*"
	for _, word := range words(actual) {
		if glob(prefix, word) {
			return true
		}
	}
	return false
}

func (n *compareNode) compareNumber(actual float64) bool {
	var expected float64
	switch n.value.Kind {
	case KindNumber:
		expected = n.value.Number
	case KindTime:
		expected = float64(n.value.Time.Unix())
	default:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n.value.Text), 64)
		if err != nil {
			return n.op == "!="
		}
		expected = parsed
	}

	switch {
	case actual < expected:
		return ordered(n.op, -1)
	case actual > expected:
		return ordered(n.op, 1)
	default:
		return ordered(n.op, 0)
	}
}

func (n *compareNode) compareTime(actual time.Time) bool {
	var expected time.Time
	switch n.value.Kind {
	case KindTime:
		expected = n.value.Time
	case KindNumber:
		expected = time.Unix(int64(n.value.Number), 0)
	default:
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(n.value.Text))
		if err != nil {
			return n.op == "!="
		}
		expected = parsed
	}

	return ordered(n.op, actual.Compare(expected))
}

func ordered(op string, cmp int) bool {
	switch op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

// fold normalizes s according to the case and diacritic modifiers.
// Transformers are stateful, so each call builds its own.
func fold(s string, mods Modifiers) string {
	if mods&ModDiacriticInsensitive != 0 {
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		if out, _, err := transform.String(t, s); err == nil {
			s = out
		}
	}
	if mods&ModCaseInsensitive != 0 {
		s = cases.Fold().String(s)
	}
	return s
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// glob matches text against pattern where '*' matches any run of runes,
// '?' matches one rune and a backslash escapes the next rune.
func glob(pattern, text string) bool {
	p, t := []rune(pattern), []rune(text)
	pi, ti := 0, 0
	starP, starT := -1, 0

	for ti < len(t) {
		if pi < len(p) {
			switch c := p[pi]; {
			case c == '*':
				starP, starT = pi, ti
				pi++
				continue
			case c == '?':
				pi++
				ti++
				continue
			case c == '\\' && pi+1 < len(p):
				if p[pi+1] == t[ti] {
					pi += 2
					ti++
					continue
				}
			case c == t[ti]:
				pi++
				ti++
				continue
			}
		}
		if starP < 0 {
			return false
		}
		starT++
		pi, ti = starP+1, starT
	}

	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
