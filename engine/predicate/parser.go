package predicate

import (
	"fmt"
	"strings"
)

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.advance()
	if tok.kind != kind {
		return tok, p.unexpected(tok, what)
	}
	return tok, nil
}

func (p *parser) unexpected(tok token, what string) error {
	if tok.kind == tokEOF {
		return fmt.Errorf("%w: expected %s at end of expression", ErrMalformed, what)
	}
	return fmt.Errorf("%w: expected %s, got '%s' at offset %d", ErrMalformed, what, tok.text, tok.pos)
}

func (p *parser) expression() (node, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokOr {
		p.advance()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = &orNode{left: left, right: right}
	}

	return left, nil
}

func (p *parser) and() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokAnd {
		p.advance()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &andNode{left: left, right: right}
	}

	return left, nil
}

func (p *parser) unary() (node, error) {
	switch tok := p.peek(); tok.kind {
	case tokNot:
		p.advance()
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	case tokLParen:
		p.advance()
		inner, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		return p.primary()
	default:
		return nil, p.unexpected(tok, "attribute or '('")
	}
}

func (p *parser) primary() (node, error) {
	ident := p.advance()

	switch strings.ToLower(ident.text) {
	case "true":
		return constNode(true), nil
	case "false":
		return constNode(false), nil
	case "inrange":
		if p.peek().kind == tokLParen {
			return p.inRange()
		}
	}

	op, err := p.expect(tokCompare, "comparison operator")
	if err != nil {
		return nil, err
	}

	value, err := p.value()
	if err != nil {
		return nil, err
	}

	return newCompareNode(ident.text, op.text, value), nil
}

func (p *parser) inRange() (node, error) {
	p.advance()

	attr, err := p.expect(tokIdent, "attribute")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma, "','"); err != nil {
		return nil, err
	}
	low, err := p.value()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma, "','"); err != nil {
		return nil, err
	}
	high, err := p.value()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}

	return &andNode{
		left:  newCompareNode(attr.text, ">=", low),
		right: newCompareNode(attr.text, "<=", high),
	}, nil
}

func (p *parser) value() (token, error) {
	tok := p.advance()
	switch tok.kind {
	case tokString, tokNumber, tokTime:
		return tok, nil
	}
	return tok, p.unexpected(tok, "value")
}
