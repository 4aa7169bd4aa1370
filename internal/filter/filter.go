// Package filter implements the boolean expression language used by handler
// configuration. The grammar is deliberately tiny:
//
//	expr    := path op literal
//	op      := '==' | '!='
//	path    := IDENT ('.' IDENT)*
//	literal := single-or-double-quoted string
//
// Expressions are parsed once at handler-load time; evaluation compares the
// string form of the event value at the path against the literal.
package filter

import (
	"fmt"
	"strings"

	"github.com/dsifry/metarelay/internal/event"
)

// Op is a comparison operator.
type Op int

const (
	// OpEq matches when the path value equals the literal.
	OpEq Op = iota
	// OpNeq matches when the path value does not equal the literal.
	OpNeq
)

// Expr is a parsed filter expression.
type Expr struct {
	Path    string
	Op      Op
	Literal string
}

// Parse parses a filter expression. A malformed expression is a configuration
// error; Parse never succeeds partially.
func Parse(input string) (*Expr, error) {
	p := &parser{input: input}

	path, err := p.path()
	if err != nil {
		return nil, err
	}

	op, err := p.op()
	if err != nil {
		return nil, err
	}

	lit, err := p.literal()
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("parse filter %q: trailing input at offset %d", input, p.pos)
	}

	return &Expr{Path: path, Op: op, Literal: lit}, nil
}

// Eval evaluates the expression against an event.
func (x *Expr) Eval(e *event.Event) bool {
	v := e.PathValue(x.Path)
	if x.Op == OpEq {
		return v == x.Literal
	}
	return v != x.Literal
}

// String renders the expression back to source form.
func (x *Expr) String() string {
	op := "=="
	if x.Op == OpNeq {
		op = "!="
	}
	return fmt.Sprintf("%s %s %q", x.Path, op, x.Literal)
}

type parser struct {
	input string
	pos   int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (p *parser) ident() (string, error) {
	start := p.pos
	for p.pos < len(p.input) && isIdentChar(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("parse filter %q: expected identifier at offset %d", p.input, p.pos)
	}
	return p.input[start:p.pos], nil
}

func (p *parser) path() (string, error) {
	p.skipSpace()

	var segs []string
	seg, err := p.ident()
	if err != nil {
		return "", err
	}
	segs = append(segs, seg)

	for p.pos < len(p.input) && p.input[p.pos] == '.' {
		p.pos++
		seg, err := p.ident()
		if err != nil {
			return "", err
		}
		segs = append(segs, seg)
	}

	return strings.Join(segs, "."), nil
}

func (p *parser) op() (Op, error) {
	p.skipSpace()
	switch {
	case strings.HasPrefix(p.input[p.pos:], "=="):
		p.pos += 2
		return OpEq, nil
	case strings.HasPrefix(p.input[p.pos:], "!="):
		p.pos += 2
		return OpNeq, nil
	default:
		return 0, fmt.Errorf("parse filter %q: expected '==' or '!=' at offset %d", p.input, p.pos)
	}
}

func (p *parser) literal() (string, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return "", fmt.Errorf("parse filter %q: expected quoted literal, got end of input", p.input)
	}

	quote := p.input[p.pos]
	if quote != '\'' && quote != '"' {
		return "", fmt.Errorf("parse filter %q: expected quoted literal at offset %d", p.input, p.pos)
	}
	p.pos++

	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] != quote {
		p.pos++
	}
	if p.pos >= len(p.input) {
		return "", fmt.Errorf("parse filter %q: unterminated literal", p.input)
	}

	lit := p.input[start:p.pos]
	p.pos++ // closing quote
	return lit, nil
}
