// Package formula evaluates the arithmetic expressions journal templates
// use to compute line amounts from transaction variables.
package formula

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	// ErrSyntax indicates the expression could not be parsed.
	ErrSyntax = errors.New("formula: syntax error")
	// ErrUnknownVariable indicates a referenced name is absent from bindings.
	ErrUnknownVariable = errors.New("formula: unknown variable")
	// ErrDivisionByZero indicates a zero divisor.
	ErrDivisionByZero = errors.New("formula: division by zero")
)

// Evaluate computes the expression against the given bindings.
// A variable missing from bindings is an error, never an implicit zero.
func Evaluate(expr string, bindings map[string]decimal.Decimal) (decimal.Decimal, error) {
	node, err := parse(expr)
	if err != nil {
		return decimal.Zero, err
	}
	return node.eval(bindings)
}

// Variables returns the unique variable names referenced by the expression,
// in order of first appearance.
func Variables(expr string) ([]string, error) {
	node, err := parse(expr)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	node.collect(seen, &names)
	return names, nil
}

type node interface {
	eval(bindings map[string]decimal.Decimal) (decimal.Decimal, error)
	collect(seen map[string]bool, names *[]string)
}

type literal struct{ value decimal.Decimal }

func (l literal) eval(map[string]decimal.Decimal) (decimal.Decimal, error) { return l.value, nil }
func (l literal) collect(map[string]bool, *[]string)                       {}

type variable struct{ name string }

func (v variable) eval(bindings map[string]decimal.Decimal) (decimal.Decimal, error) {
	value, ok := bindings[v.name]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownVariable, v.name)
	}
	return value, nil
}

func (v variable) collect(seen map[string]bool, names *[]string) {
	if !seen[v.name] {
		seen[v.name] = true
		*names = append(*names, v.name)
	}
}

type binary struct {
	op          rune
	left, right node
}

func (b binary) eval(bindings map[string]decimal.Decimal) (decimal.Decimal, error) {
	left, err := b.left.eval(bindings)
	if err != nil {
		return decimal.Zero, err
	}
	right, err := b.right.eval(bindings)
	if err != nil {
		return decimal.Zero, err
	}
	switch b.op {
	case '+':
		return left.Add(right), nil
	case '-':
		return left.Sub(right), nil
	case '*':
		return left.Mul(right), nil
	case '/':
		if right.IsZero() {
			return decimal.Zero, ErrDivisionByZero
		}
		return left.Div(right), nil
	}
	return decimal.Zero, fmt.Errorf("%w: operator %q", ErrSyntax, b.op)
}

func (b binary) collect(seen map[string]bool, names *[]string) {
	b.left.collect(seen, names)
	b.right.collect(seen, names)
}

type negate struct{ inner node }

func (n negate) eval(bindings map[string]decimal.Decimal) (decimal.Decimal, error) {
	value, err := n.inner.eval(bindings)
	if err != nil {
		return decimal.Zero, err
	}
	return value.Neg(), nil
}

func (n negate) collect(seen map[string]bool, names *[]string) { n.inner.collect(seen, names) }

type parser struct {
	input []rune
	pos   int
}

func parse(expr string) (node, error) {
	p := &parser{input: []rune(expr)}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrSyntax, p.input[p.pos], p.pos)
	}
	return root, nil
}

// expr = term (('+' | '-') term)*
func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		op, ok := p.peek()
		if !ok || (op != '+' && op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
}

// term = factor (('*' | '/') factor)*
func (p *parser) parseTerm() (node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		op, ok := p.peek()
		if !ok || (op != '*' && op != '/') {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
}

// factor = '-' factor | '(' expr ')' | literal | identifier
func (p *parser) parseFactor() (node, error) {
	p.skipSpace()
	ch, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	}
	switch {
	case ch == '-':
		p.pos++
		inner, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return negate{inner: inner}, nil
	case ch == '(':
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if next, ok := p.peek(); !ok || next != ')' {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrSyntax)
		}
		p.pos++
		return inner, nil
	case unicode.IsDigit(ch) || ch == '.':
		return p.parseLiteral()
	case unicode.IsLetter(ch) || ch == '_':
		return p.parseIdentifier()
	}
	return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrSyntax, ch, p.pos)
}

func (p *parser) parseLiteral() (node, error) {
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	text := string(p.input[start:p.pos])
	value, err := decimal.NewFromString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: bad number %q", ErrSyntax, text)
	}
	return literal{value: value}, nil
}

func (p *parser) parseIdentifier() (node, error) {
	start := p.pos
	for p.pos < len(p.input) {
		ch := p.input[p.pos]
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '_' {
			break
		}
		p.pos++
	}
	name := strings.TrimSpace(string(p.input[start:p.pos]))
	if name == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrSyntax)
	}
	return variable{name: name}, nil
}

func (p *parser) peek() (rune, bool) {
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}
