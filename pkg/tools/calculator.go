package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ============================================================================
// CALCULATOR TOOL
// ============================================================================
//
// Arithmetic over a closed expression language: numeric literals, a fixed
// operator set, an allow-listed set of functions and constants, and
// bracket lists for the aggregate functions. Everything outside that
// surface is rejected before evaluation; there is no identifier lookup
// beyond the constant table and no user-defined anything.

// CalculatorTool evaluates arithmetic expressions.
type CalculatorTool struct{}

func NewCalculatorTool() *CalculatorTool {
	return &CalculatorTool{}
}

func (t *CalculatorTool) Name() string       { return "calculator" }
func (t *CalculatorTool) Category() Category { return CategoryComputation }

func (t *CalculatorTool) Description() string {
	return "Evaluate arithmetic expressions. Supports +, -, *, /, //, %, ** and " +
		"functions like sqrt, sin, cos, log, factorial. Example: sqrt(16) + 2 ** 3"
}

func (t *CalculatorTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Arithmetic expression to evaluate, e.g. '2 + 2' or 'sqrt(16) * 3'",
			},
		},
		"required": []string{"expression"},
	}
}

func (t *CalculatorTool) Execute(ctx context.Context, args map[string]any, execCtx *ExecutionContext) (ToolResult, error) {
	expression, _ := args["expression"].(string)
	if strings.TrimSpace(expression) == "" {
		return Fail("expression cannot be empty"), nil
	}

	value, err := evalExpression(expression)
	if err != nil {
		return Fail(err.Error()), nil
	}

	return Succeed(formatNumber(value), map[string]any{
		"expression": expression,
	}), nil
}

func formatNumber(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	default:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}

// ----------------------------------------------------------------------------
// Allow-lists
// ----------------------------------------------------------------------------

var calcConstants = map[string]float64{
	"pi":  math.Pi,
	"e":   math.E,
	"tau": 2 * math.Pi,
	"inf": math.Inf(1),
}

type calcFunc func(args []float64) (float64, error)

var calcFunctions map[string]calcFunc

func init() {
	calcFunctions = map[string]calcFunc{
		"abs":   unary(math.Abs),
		"sqrt":  unaryDomain(math.Sqrt),
		"sin":   unary(math.Sin),
		"cos":   unary(math.Cos),
		"tan":   unary(math.Tan),
		"asin":  unaryDomain(math.Asin),
		"acos":  unaryDomain(math.Acos),
		"atan":  unary(math.Atan),
		"sinh":  unary(math.Sinh),
		"cosh":  unary(math.Cosh),
		"tanh":  unary(math.Tanh),
		"log10": unaryDomain(math.Log10),
		"log2":  unaryDomain(math.Log2),
		"exp":   unary(math.Exp),
		"ceil":  unary(math.Ceil),
		"floor": unary(math.Floor),
		"degrees": unary(func(x float64) float64 {
			return x * 180 / math.Pi
		}),
		"radians": unary(func(x float64) float64 {
			return x * math.Pi / 180
		}),
		"log":       calcLog,
		"round":     calcRound,
		"pow":       calcPow,
		"min":       calcMin,
		"max":       calcMax,
		"sum":       calcSum,
		"factorial": calcFactorial,
		"gcd":       calcGCD,
	}
}

func unary(f func(float64) float64) calcFunc {
	return func(args []float64) (float64, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("function expects exactly one argument")
		}
		return f(args[0]), nil
	}
}

func unaryDomain(f func(float64) float64) calcFunc {
	return func(args []float64) (float64, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("function expects exactly one argument")
		}
		v := f(args[0])
		if math.IsNaN(v) && !math.IsNaN(args[0]) {
			return 0, fmt.Errorf("math domain error")
		}
		return v, nil
	}
}

func calcLog(args []float64) (float64, error) {
	switch len(args) {
	case 1:
		if args[0] <= 0 {
			return 0, fmt.Errorf("math domain error")
		}
		return math.Log(args[0]), nil
	case 2:
		if args[0] <= 0 || args[1] <= 0 {
			return 0, fmt.Errorf("math domain error")
		}
		return math.Log(args[0]) / math.Log(args[1]), nil
	default:
		return 0, fmt.Errorf("log expects one or two arguments")
	}
}

func calcRound(args []float64) (float64, error) {
	switch len(args) {
	case 1:
		return math.RoundToEven(args[0]), nil
	case 2:
		digits := int(math.Trunc(args[1]))
		if digits >= 0 {
			// Round on the decimal representation, not on x*10^n: the
			// scaled binary value can land on the wrong side of the
			// half (2.675*100 is 267.4999...).
			s := strconv.FormatFloat(args[0], 'f', digits, 64)
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, fmt.Errorf("math domain error")
			}
			return v, nil
		}
		shift := math.Pow(10, float64(digits))
		return math.RoundToEven(args[0]*shift) / shift, nil
	default:
		return 0, fmt.Errorf("round expects one or two arguments")
	}
}

func calcPow(args []float64) (float64, error) {
	if len(args) != 2 {
		return 0, fmt.Errorf("pow expects exactly two arguments")
	}
	return math.Pow(args[0], args[1]), nil
}

func calcMin(args []float64) (float64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("min expects at least one argument")
	}
	out := args[0]
	for _, v := range args[1:] {
		out = math.Min(out, v)
	}
	return out, nil
}

func calcMax(args []float64) (float64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("max expects at least one argument")
	}
	out := args[0]
	for _, v := range args[1:] {
		out = math.Max(out, v)
	}
	return out, nil
}

func calcSum(args []float64) (float64, error) {
	out := 0.0
	for _, v := range args {
		out += v
	}
	return out, nil
}

func calcFactorial(args []float64) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("factorial expects exactly one argument")
	}
	n := args[0]
	if n < 0 || n != math.Trunc(n) {
		return 0, fmt.Errorf("factorial() only accepts integral non-negative values")
	}
	out := 1.0
	for i := 2.0; i <= n; i++ {
		out *= i
	}
	return out, nil
}

func calcGCD(args []float64) (float64, error) {
	if len(args) != 2 {
		return 0, fmt.Errorf("gcd expects exactly two arguments")
	}
	a, b := args[0], args[1]
	if a != math.Trunc(a) || b != math.Trunc(b) {
		return 0, fmt.Errorf("gcd() only accepts integral values")
	}
	x, y := int64(math.Abs(a)), int64(math.Abs(b))
	for y != 0 {
		x, y = y, x%y
	}
	return float64(x), nil
}

// ----------------------------------------------------------------------------
// Tokenizer
// ----------------------------------------------------------------------------

type calcTokenKind int

const (
	tokNumber calcTokenKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokEOF
)

type calcToken struct {
	kind  calcTokenKind
	text  string
	value float64
}

func tokenizeExpression(input string) ([]calcToken, error) {
	var tokens []calcToken
	runes := []rune(input)
	i := 0

	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case unicode.IsDigit(r) || r == '.':
			start := i
			seenExp := false
			for i < len(runes) {
				c := runes[i]
				if unicode.IsDigit(c) || c == '.' {
					i++
					continue
				}
				if (c == 'e' || c == 'E') && !seenExp && i > start {
					seenExp = true
					i++
					if i < len(runes) && (runes[i] == '+' || runes[i] == '-') {
						i++
					}
					continue
				}
				break
			}
			text := string(runes[start:i])
			value, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number literal: %s", text)
			}
			tokens = append(tokens, calcToken{kind: tokNumber, text: text, value: value})

		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, calcToken{kind: tokIdent, text: string(runes[start:i])})

		case r == '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				tokens = append(tokens, calcToken{kind: tokOp, text: "**"})
				i += 2
			} else {
				tokens = append(tokens, calcToken{kind: tokOp, text: "*"})
				i++
			}

		case r == '/':
			if i+1 < len(runes) && runes[i+1] == '/' {
				tokens = append(tokens, calcToken{kind: tokOp, text: "//"})
				i += 2
			} else {
				tokens = append(tokens, calcToken{kind: tokOp, text: "/"})
				i++
			}

		case r == '+' || r == '-' || r == '%':
			tokens = append(tokens, calcToken{kind: tokOp, text: string(r)})
			i++

		case r == '(':
			tokens = append(tokens, calcToken{kind: tokLParen, text: "("})
			i++
		case r == ')':
			tokens = append(tokens, calcToken{kind: tokRParen, text: ")"})
			i++
		case r == '[':
			tokens = append(tokens, calcToken{kind: tokLBracket, text: "["})
			i++
		case r == ']':
			tokens = append(tokens, calcToken{kind: tokRBracket, text: "]"})
			i++
		case r == ',':
			tokens = append(tokens, calcToken{kind: tokComma, text: ","})
			i++

		default:
			return nil, fmt.Errorf("unsupported character in expression: %q", string(r))
		}
	}

	tokens = append(tokens, calcToken{kind: tokEOF})
	return tokens, nil
}

// ----------------------------------------------------------------------------
// Parser / evaluator
// ----------------------------------------------------------------------------

type calcParser struct {
	tokens []calcToken
	pos    int
}

func evalExpression(input string) (float64, error) {
	tokens, err := tokenizeExpression(input)
	if err != nil {
		return 0, err
	}

	p := &calcParser{tokens: tokens}
	value, err := p.parseBinary(0)
	if err != nil {
		return 0, err
	}
	if p.peek().kind != tokEOF {
		return 0, fmt.Errorf("unexpected token: %s", p.peek().text)
	}
	return value, nil
}

func (p *calcParser) peek() calcToken {
	return p.tokens[p.pos]
}

func (p *calcParser) next() calcToken {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func binaryPrecedence(op string) int {
	switch op {
	case "+", "-":
		return 10
	case "*", "/", "//", "%":
		return 20
	case "**":
		return 40
	default:
		return 0
	}
}

func (p *calcParser) parseBinary(minPrec int) (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}

	for {
		tok := p.peek()
		if tok.kind != tokOp {
			return left, nil
		}
		prec := binaryPrecedence(tok.text)
		if prec == 0 || prec < minPrec {
			return left, nil
		}
		p.next()

		// ** is right-associative; everything else binds left.
		nextMin := prec + 1
		if tok.text == "**" {
			nextMin = prec
		}

		right, err := p.parseBinary(nextMin)
		if err != nil {
			return 0, err
		}

		left, err = applyBinary(tok.text, left, right)
		if err != nil {
			return 0, err
		}
	}
}

func applyBinary(op string, left, right float64) (float64, error) {
	switch op {
	case "+":
		return left + right, nil
	case "-":
		return left - right, nil
	case "*":
		return left * right, nil
	case "/":
		if right == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return left / right, nil
	case "//":
		if right == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return math.Floor(left / right), nil
	case "%":
		if right == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		// Python-style modulo: the result takes the sign of the divisor.
		m := math.Mod(left, right)
		if m != 0 && (m < 0) != (right < 0) {
			m += right
		}
		return m, nil
	case "**":
		return math.Pow(left, right), nil
	default:
		return 0, fmt.Errorf("unsupported operator: %s", op)
	}
}

func (p *calcParser) parseUnary() (float64, error) {
	tok := p.peek()
	if tok.kind == tokOp && (tok.text == "+" || tok.text == "-") {
		p.next()
		// Unary binds tighter than * and / but looser than **, matching
		// -2 ** 2 == -4.
		value, err := p.parseBinary(40)
		if err != nil {
			return 0, err
		}
		if tok.text == "-" {
			return -value, nil
		}
		return value, nil
	}
	return p.parsePrimary()
}

func (p *calcParser) parsePrimary() (float64, error) {
	tok := p.next()

	switch tok.kind {
	case tokNumber:
		return tok.value, nil

	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.parseCall(tok.text)
		}
		if value, ok := calcConstants[tok.text]; ok {
			return value, nil
		}
		return 0, fmt.Errorf("unsupported name in expression: %s", tok.text)

	case tokLParen:
		value, err := p.parseBinary(0)
		if err != nil {
			return 0, err
		}
		if p.next().kind != tokRParen {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		return value, nil

	case tokEOF:
		return 0, fmt.Errorf("unexpected end of expression")

	default:
		return 0, fmt.Errorf("unexpected token: %s", tok.text)
	}
}

// parseCall parses name(arg, ...) where an argument may be a bracket list
// feeding the aggregate functions.
func (p *calcParser) parseCall(name string) (float64, error) {
	fn, ok := calcFunctions[name]
	if !ok {
		return 0, fmt.Errorf("unsupported function: %s", name)
	}

	p.next() // consume (

	var args []float64
	if p.peek().kind != tokRParen {
		for {
			if p.peek().kind == tokLBracket {
				list, err := p.parseList()
				if err != nil {
					return 0, err
				}
				args = append(args, list...)
			} else {
				value, err := p.parseBinary(0)
				if err != nil {
					return 0, err
				}
				args = append(args, value)
			}

			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}

	if p.next().kind != tokRParen {
		return 0, fmt.Errorf("missing closing parenthesis in call to %s", name)
	}

	return fn(args)
}

func (p *calcParser) parseList() ([]float64, error) {
	p.next() // consume [

	var values []float64
	if p.peek().kind != tokRBracket {
		for {
			value, err := p.parseBinary(0)
			if err != nil {
				return nil, err
			}
			values = append(values, value)

			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}

	if p.next().kind != tokRBracket {
		return nil, fmt.Errorf("missing closing bracket in list")
	}
	return values, nil
}
