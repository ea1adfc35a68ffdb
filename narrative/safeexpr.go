package narrative

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrUnsafeExpression is returned when an expression fails the character
// whitelist and must not be evaluated.
var ErrUnsafeExpression = errors.New("expression contains characters outside the allowed set")

// EvaluateCondition evaluates a fully-substituted conditional expression:
// numeric, string, and boolean literals composed with comparison operators,
// arithmetic, !, &&, || and parentheses. The whitelist check runs before
// any parsing; nothing that fails it is ever interpreted. There are no
// identifiers, no calls, no assignment in the grammar, so there is nothing
// an expression can reach beyond its own literals.
func EvaluateCondition(expr string) (bool, error) {
	if err := checkWhitelist(expr); err != nil {
		return false, err
	}

	toks, err := tokenize(expr)
	if err != nil {
		return false, err
	}

	p := &exprParser{toks: toks}
	node, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if !p.eof() {
		return false, fmt.Errorf("unexpected token %q", p.peek().text)
	}

	v, err := node.eval()
	if err != nil {
		return false, err
	}
	if v.kind != kindBool {
		return false, fmt.Errorf("expression is not boolean")
	}
	return v.b, nil
}

// checkWhitelist enforces the allowed character set: digits, whitespace,
// and + - * / < > = ! & | ( ) . " '. Inside a quoted string literal any
// character but the closing quote is permitted, since substituted string
// values arrive pre-quoted. Outside quotes the only letter sequences
// allowed are the bare keywords true and false; anything else shaped like
// an identifier is rejected here, before the tokenizer ever sees it.
func checkWhitelist(expr string) error {
	const symbols = `+-*/<>=!&|()."'`

	runes := []rune(expr)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '"' || r == '\'' {
			quote := r
			i++
			for i < len(runes) && runes[i] != quote {
				i++
			}
			if i >= len(runes) {
				return fmt.Errorf("%w: unterminated string literal", ErrUnsafeExpression)
			}
			continue
		}

		if unicode.IsLetter(r) {
			start := i
			for i < len(runes) && unicode.IsLetter(runes[i]) {
				i++
			}
			word := string(runes[start:i])
			i--
			if word != "true" && word != "false" {
				return fmt.Errorf("%w: %q", ErrUnsafeExpression, word)
			}
			continue
		}

		if unicode.IsDigit(r) || unicode.IsSpace(r) || strings.ContainsRune(symbols, r) {
			continue
		}
		return fmt.Errorf("%w: %q", ErrUnsafeExpression, string(r))
	}
	return nil
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokBool
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	num  float64
	b    bool
}

func tokenize(expr string) ([]token, error) {
	var toks []token
	runes := []rune(expr)

	for i := 0; i < len(runes); {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++

		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++

		case r == '"' || r == '\'':
			quote := r
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			toks = append(toks, token{kind: tokString, text: string(runes[i+1 : j])})
			i = j + 1

		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			j := i
			seenDot := false
			for j < len(runes) && (unicode.IsDigit(runes[j]) || (runes[j] == '.' && !seenDot)) {
				if runes[j] == '.' {
					seenDot = true
				}
				j++
			}
			text := string(runes[i:j])
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", text)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: num})
			i = j

		case unicode.IsLetter(r):
			j := i
			for j < len(runes) && unicode.IsLetter(runes[j]) {
				j++
			}
			word := string(runes[i:j])
			switch word {
			case "true":
				toks = append(toks, token{kind: tokBool, text: word, b: true})
			case "false":
				toks = append(toks, token{kind: tokBool, text: word, b: false})
			default:
				return nil, fmt.Errorf("unknown identifier %q", word)
			}
			i = j

		default:
			// Two-character operators first.
			if i+1 < len(runes) {
				two := string(runes[i : i+2])
				switch two {
				case "&&", "||", "==", "!=", "<=", ">=":
					toks = append(toks, token{kind: tokOp, text: two})
					i += 2
					continue
				}
			}
			switch r {
			case '<', '>', '!', '+', '-', '*', '/':
				toks = append(toks, token{kind: tokOp, text: string(r)})
				i++
			case '&', '|', '=':
				return nil, fmt.Errorf("incomplete operator %q", string(r))
			default:
				return nil, fmt.Errorf("unexpected character %q", string(r))
			}
		}
	}
	return toks, nil
}

type valueKind int

const (
	kindNumber valueKind = iota
	kindString
	kindBool
)

type exprValue struct {
	kind valueKind
	num  float64
	str  string
	b    bool
}

type exprNode interface {
	eval() (exprValue, error)
}

type litNode struct{ v exprValue }

func (n litNode) eval() (exprValue, error) { return n.v, nil }

type unaryNode struct {
	op      string
	operand exprNode
}

func (n unaryNode) eval() (exprValue, error) {
	v, err := n.operand.eval()
	if err != nil {
		return exprValue{}, err
	}
	switch n.op {
	case "!":
		if v.kind != kindBool {
			return exprValue{}, fmt.Errorf("operator ! requires a boolean")
		}
		return exprValue{kind: kindBool, b: !v.b}, nil
	case "-":
		if v.kind != kindNumber {
			return exprValue{}, fmt.Errorf("unary - requires a number")
		}
		return exprValue{kind: kindNumber, num: -v.num}, nil
	}
	return exprValue{}, fmt.Errorf("unknown unary operator %q", n.op)
}

type binaryNode struct {
	op          string
	left, right exprNode
}

func (n binaryNode) eval() (exprValue, error) {
	l, err := n.left.eval()
	if err != nil {
		return exprValue{}, err
	}
	r, err := n.right.eval()
	if err != nil {
		return exprValue{}, err
	}

	switch n.op {
	case "&&", "||":
		if l.kind != kindBool || r.kind != kindBool {
			return exprValue{}, fmt.Errorf("operator %s requires booleans", n.op)
		}
		if n.op == "&&" {
			return exprValue{kind: kindBool, b: l.b && r.b}, nil
		}
		return exprValue{kind: kindBool, b: l.b || r.b}, nil

	case "==", "!=":
		eq, err := valuesEqual(l, r)
		if err != nil {
			return exprValue{}, err
		}
		if n.op == "!=" {
			eq = !eq
		}
		return exprValue{kind: kindBool, b: eq}, nil

	case "<", "<=", ">", ">=":
		return compareOrdered(n.op, l, r)

	case "+", "-", "*", "/":
		if l.kind != kindNumber || r.kind != kindNumber {
			return exprValue{}, fmt.Errorf("operator %s requires numbers", n.op)
		}
		var out float64
		switch n.op {
		case "+":
			out = l.num + r.num
		case "-":
			out = l.num - r.num
		case "*":
			out = l.num * r.num
		case "/":
			if r.num == 0 {
				return exprValue{}, fmt.Errorf("division by zero")
			}
			out = l.num / r.num
		}
		return exprValue{kind: kindNumber, num: out}, nil
	}
	return exprValue{}, fmt.Errorf("unknown operator %q", n.op)
}

func valuesEqual(l, r exprValue) (bool, error) {
	if l.kind != r.kind {
		return false, fmt.Errorf("cannot compare mixed types")
	}
	switch l.kind {
	case kindNumber:
		return l.num == r.num, nil
	case kindString:
		return l.str == r.str, nil
	default:
		return l.b == r.b, nil
	}
}

func compareOrdered(op string, l, r exprValue) (exprValue, error) {
	if l.kind != r.kind || l.kind == kindBool {
		return exprValue{}, fmt.Errorf("operator %s requires two numbers or two strings", op)
	}

	var lt, eq bool
	if l.kind == kindNumber {
		lt, eq = l.num < r.num, l.num == r.num
	} else {
		lt, eq = l.str < r.str, l.str == r.str
	}

	var out bool
	switch op {
	case "<":
		out = lt
	case "<=":
		out = lt || eq
	case ">":
		out = !lt && !eq
	case ">=":
		out = !lt
	}
	return exprValue{kind: kindBool, b: out}, nil
}

// exprParser is a recursive-descent parser over the closed grammar:
//
//	or    := and ("||" and)*
//	and   := cmp ("&&" cmp)*
//	cmp   := sum (("=="|"!="|"<"|"<="|">"|">=") sum)?
//	sum   := term (("+"|"-") term)*
//	term  := unary (("*"|"/") unary)*
//	unary := ("!"|"-") unary | primary
//	prim  := number | string | bool | "(" or ")"
type exprParser struct {
	toks []token
	pos  int
}

func (p *exprParser) eof() bool   { return p.pos >= len(p.toks) }
func (p *exprParser) peek() token { return p.toks[p.pos] }
func (p *exprParser) advance() token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *exprParser) acceptOp(ops ...string) (string, bool) {
	if p.eof() || p.toks[p.pos].kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if p.toks[p.pos].text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *exprParser) parseOr() (exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("||"); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: "||", left: left, right: right}
	}
}

func (p *exprParser) parseAnd() (exprNode, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("&&"); !ok {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: "&&", left: left, right: right}
	}
}

func (p *exprParser) parseComparison() (exprNode, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	op, ok := p.acceptOp("==", "!=", "<=", ">=", "<", ">")
	if !ok {
		return left, nil
	}
	right, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	return binaryNode{op: op, left: left, right: right}, nil
}

func (p *exprParser) parseSum() (exprNode, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *exprParser) parseTerm() (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *exprParser) parseUnary() (exprNode, error) {
	if op, ok := p.acceptOp("!", "-"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (exprNode, error) {
	if p.eof() {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	t := p.advance()
	switch t.kind {
	case tokNumber:
		return litNode{v: exprValue{kind: kindNumber, num: t.num}}, nil
	case tokString:
		return litNode{v: exprValue{kind: kindString, str: t.text}}, nil
	case tokBool:
		return litNode{v: exprValue{kind: kindBool, b: t.b}}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.eof() || p.peek().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.advance()
		return inner, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}
