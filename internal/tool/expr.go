package tool

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Evaluate computes a pure arithmetic expression. The grammar is closed:
// numbers, + - * / % ^ (or **), parentheses, the constants pi and e, and a
// fixed set of one-argument functions. Anything else is rejected, so text
// coming from a model can never reach anything but float64 arithmetic.
//
//	expr  := term (('+'|'-') term)*
//	term  := unary (('*'|'/'|'%') unary)*
//	unary := ('+'|'-') unary | power
//	power := atom (('^'|'**') unary)?
//	atom  := number | const | func '(' expr ')' | '(' expr ')'
func Evaluate(expression string) (float64, error) {
	toks, err := tokenize(expression)
	if err != nil {
		return 0, err
	}
	if len(toks) == 0 {
		return 0, NewToolError(KindInvalidExpression, "empty expression")
	}
	p := &exprParser{toks: toks}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return 0, NewToolError(KindInvalidExpression, "unexpected %q at position %d", tok.text, tok.pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, NewToolError(KindInvalidExpression, "result is not a finite number")
	}
	return v, nil
}

// FormatNumber renders a result with the shortest exact decimal form.
func FormatNumber(v float64) string {
	if v == 0 {
		return "0" // avoids "-0"
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var exprFuncs = map[string]func(float64) (float64, error){
	"sqrt": func(x float64) (float64, error) {
		if x < 0 {
			return 0, NewToolError(KindInvalidExpression, "sqrt of negative number")
		}
		return math.Sqrt(x), nil
	},
	"abs":   func(x float64) (float64, error) { return math.Abs(x), nil },
	"floor": func(x float64) (float64, error) { return math.Floor(x), nil },
	"ceil":  func(x float64) (float64, error) { return math.Ceil(x), nil },
	"round": func(x float64) (float64, error) { return math.Round(x), nil },
	"exp":   func(x float64) (float64, error) { return math.Exp(x), nil },
	"ln":    logFunc(math.Log),
	"log":   logFunc(math.Log10),
	"sin":   func(x float64) (float64, error) { return math.Sin(x), nil },
	"cos":   func(x float64) (float64, error) { return math.Cos(x), nil },
	"tan":   func(x float64) (float64, error) { return math.Tan(x), nil },
}

func logFunc(f func(float64) float64) func(float64) (float64, error) {
	return func(x float64) (float64, error) {
		if x <= 0 {
			return 0, NewToolError(KindInvalidExpression, "logarithm of non-positive number")
		}
		return f(x), nil
	}
}

var exprConsts = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

func tokenize(s string) ([]token, error) {
	var toks []token
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.' || rs[i] == '_') {
				i++
			}
			// Exponent: 1e3, 2.5E-4.
			if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
				j := i + 1
				if j < len(rs) && (rs[j] == '+' || rs[j] == '-') {
					j++
				}
				if j < len(rs) && unicode.IsDigit(rs[j]) {
					for j < len(rs) && unicode.IsDigit(rs[j]) {
						j++
					}
					i = j
				}
			}
			text := string(rs[start:i])
			v, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
			if err != nil {
				return nil, NewToolError(KindInvalidExpression, "invalid number %q", text)
			}
			toks = append(toks, token{kind: tokNum, text: text, num: v, pos: start})
		case unicode.IsLetter(r):
			start := i
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: strings.ToLower(string(rs[start:i])), pos: start})
		case r == '*' && i+1 < len(rs) && rs[i+1] == '*':
			toks = append(toks, token{kind: tokOp, text: "^", pos: i})
			i += 2
		case strings.ContainsRune("+-*/%^×÷", r):
			op := string(r)
			switch r {
			case '×':
				op = "*"
			case '÷':
				op = "/"
			}
			toks = append(toks, token{kind: tokOp, text: op, pos: i})
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		default:
			return nil, NewToolError(KindInvalidExpression, "unexpected character %q at position %d", r, i)
		}
	}
	return toks, nil
}

type exprParser struct {
	toks  []token
	pos   int
	depth int
}

// maxDepth bounds recursion for inputs like "((((((...".
const maxDepth = 200

func (p *exprParser) peek() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF, text: "end of input", pos: -1}
	}
	return p.toks[p.pos]
}

func (p *exprParser) next() token {
	t := p.peek()
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) isOp(ops ...string) bool {
	t := p.peek()
	if t.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if t.text == op {
			return true
		}
	}
	return false
}

func (p *exprParser) parseExpr() (float64, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return 0, NewToolError(KindInvalidExpression, "expression nested too deeply")
	}

	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for p.isOp("+", "-") {
		op := p.next().text
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for p.isOp("*", "/", "%") {
		op := p.next().text
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		switch op {
		case "*":
			left *= right
		case "/":
			if right == 0 {
				return 0, NewToolError(KindInvalidExpression, "division by zero")
			}
			left /= right
		case "%":
			if right == 0 {
				return 0, NewToolError(KindInvalidExpression, "modulo by zero")
			}
			left = math.Mod(left, right)
		}
	}
	return left, nil
}

func (p *exprParser) parseUnary() (float64, error) {
	if p.isOp("+", "-") {
		p.depth++
		defer func() { p.depth-- }()
		if p.depth > maxDepth {
			return 0, NewToolError(KindInvalidExpression, "expression nested too deeply")
		}
		op := p.next().text
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if op == "-" {
			return -v, nil
		}
		return v, nil
	}
	return p.parsePower()
}

// parsePower is right-associative: 2^3^2 = 2^9. The exponent goes through
// parseUnary so that 2^-1 works.
func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parseAtom()
	if err != nil {
		return 0, err
	}
	if !p.isOp("^") {
		return base, nil
	}
	p.next()
	exp, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	if base == 0 && exp < 0 {
		return 0, NewToolError(KindInvalidExpression, "division by zero")
	}
	return math.Pow(base, exp), nil
}

func (p *exprParser) parseAtom() (float64, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return t.num, nil
	case tokLParen:
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.next().kind != tokRParen {
			return 0, NewToolError(KindInvalidExpression, "missing closing parenthesis")
		}
		return v, nil
	case tokIdent:
		if c, ok := exprConsts[t.text]; ok {
			return c, nil
		}
		fn, ok := exprFuncs[t.text]
		if !ok {
			return 0, NewToolError(KindInvalidExpression, "unknown identifier %q", t.text)
		}
		if p.next().kind != tokLParen {
			return 0, NewToolError(KindInvalidExpression, "function %s must be followed by '('", t.text)
		}
		arg, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.next().kind != tokRParen {
			return 0, NewToolError(KindInvalidExpression, "missing closing parenthesis after %s argument", t.text)
		}
		return fn(arg)
	case tokEOF:
		return 0, NewToolError(KindInvalidExpression, "unexpected end of expression")
	default:
		return 0, NewToolError(KindInvalidExpression, "unexpected %q at position %d", t.text, t.pos)
	}
}
