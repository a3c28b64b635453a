package expr

import (
	"strconv"

	"github.com/genflow-ai/genflow/types"
)

// astNode is the interface implemented by all parsed expression nodes.
type astNode interface {
	eval(ev *evaluator) (any, error)
}

type literalNode struct{ value any }

type identNode struct{ name string }

type listNode struct{ elems []astNode }

type mapNode struct {
	keys   []astNode
	values []astNode
}

type unaryNode struct {
	op      string // "not" or "-"
	operand astNode
}

type binaryNode struct {
	op    string
	left  astNode
	right astNode
}

type lenNode struct{ arg astNode }

func syntaxErrorf(format string, args ...any) error {
	return types.NewErrorf(types.ErrExpression, "invalid expression syntax: "+format, args...)
}

// parser is a recursive-descent parser over the lexer's token stream.
// One token of lookahead is enough for the restricted grammar.
type parser struct {
	lex *lexer
	cur token
}

func newParser(input string) (*parser, error) {
	p := &parser{lex: &lexer{input: input}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) expect(kind tokenKind, what string) error {
	if p.cur.kind != kind {
		return syntaxErrorf("expected %s at position %d", what, p.cur.pos)
	}
	return p.advance()
}

// parseExpression parses a complete expression and requires EOF after it.
func (p *parser) parseExpression() (astNode, error) {
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, syntaxErrorf("unexpected token %q at position %d", p.cur.text, p.cur.pos)
	}
	return node, nil
}

func (p *parser) parseOr() (astNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (astNode, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (astNode, error) {
	if p.cur.kind == tokNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "not", operand: operand}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[tokenKind]string{
	tokEq: "==",
	tokNe: "!=",
	tokLt: "<",
	tokGt: ">",
	tokLe: "<=",
	tokGe: ">=",
}

func (p *parser) parseComparison() (astNode, error) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}

	var op string
	switch {
	case comparisonOps[p.cur.kind] != "":
		op = comparisonOps[p.cur.kind]
		if err := p.advance(); err != nil {
			return nil, err
		}
	case p.cur.kind == tokIn:
		op = "in"
		if err := p.advance(); err != nil {
			return nil, err
		}
	case p.cur.kind == tokNot:
		// "not" after an operand can only begin "not in".
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind != tokIn {
			return nil, syntaxErrorf("expected 'in' after 'not' at position %d", p.cur.pos)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		op = "not in"
	default:
		return left, nil
	}

	right, err := p.parseAddition()
	if err != nil {
		return nil, err
	}
	if comparisonOps[p.cur.kind] != "" || p.cur.kind == tokIn {
		return nil, syntaxErrorf("chained comparisons are not supported (position %d)", p.cur.pos)
	}
	return &binaryNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseAddition() (astNode, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokPlus || p.cur.kind == tokMinus {
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (astNode, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokStar || p.cur.kind == tokSlash || p.cur.kind == tokPercent {
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parsePower() (astNode, error) {
	base, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	// Right-associative, like Python.
	if p.cur.kind == tokPower {
		if err := p.advance(); err != nil {
			return nil, err
		}
		exp, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: "**", left: base, right: exp}, nil
	}
	return base, nil
}

func (p *parser) parseUnary() (astNode, error) {
	if p.cur.kind == tokMinus {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "-", operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (astNode, error) {
	tok := p.cur
	switch tok.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, syntaxErrorf("malformed number %q at position %d", tok.text, tok.pos)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &literalNode{value: f}, nil
	case tokString:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &literalNode{value: tok.text}, nil
	case tokTrue:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &literalNode{value: true}, nil
	case tokFalse:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &literalNode{value: false}, nil
	case tokNull:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &literalNode{value: nil}, nil
	case tokIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind == tokLParen {
			if tok.text != "len" {
				return nil, syntaxErrorf("function %q is not allowed (only len)", tok.text)
			}
			return p.parseLenCall()
		}
		return &identNode{name: tok.text}, nil
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokLBracket:
		return p.parseList()
	case tokLBrace:
		return p.parseMap()
	case tokEOF:
		return nil, syntaxErrorf("unexpected end of expression")
	}
	return nil, syntaxErrorf("unexpected token %q at position %d", tok.text, tok.pos)
}

func (p *parser) parseLenCall() (astNode, error) {
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	arg, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return &lenNode{arg: arg}, nil
}

func (p *parser) parseList() (astNode, error) {
	if err := p.advance(); err != nil { // consume '['
		return nil, err
	}
	node := &listNode{}
	if p.cur.kind == tokRBracket {
		return node, p.advance()
	}
	for {
		elem, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		node.elems = append(node.elems, elem)
		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		return node, p.expect(tokRBracket, "']'")
	}
}

func (p *parser) parseMap() (astNode, error) {
	if err := p.advance(); err != nil { // consume '{'
		return nil, err
	}
	node := &mapNode{}
	if p.cur.kind == tokRBrace {
		return node, p.advance()
	}
	for {
		key, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokColon, "':'"); err != nil {
			return nil, err
		}
		value, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		node.keys = append(node.keys, key)
		node.values = append(node.values, value)
		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		return node, p.expect(tokRBrace, "'}'")
	}
}
