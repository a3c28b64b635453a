package expr

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/genflow-ai/genflow/types"
)

// Algorithmic-complexity limits applied during evaluation. They bound
// the damage a hostile expression can do, not legitimate use.
const (
	DefaultMaxStringLength = 100000
	DefaultMaxPower        = 4000000
)

// Expr is a compiled expression. Compile once at workflow-definition
// time and call Eval per execution; an Expr is immutable and safe for
// concurrent use.
type Expr struct {
	source string
	root   astNode

	// Limits override the package defaults when non-zero.
	MaxStringLength int
	MaxPower        float64
}

// Compile parses the expression, rejecting malformed or forbidden
// syntax without evaluating anything.
func Compile(expression string) (*Expr, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, types.NewError(types.ErrExpression, "expression cannot be empty")
	}
	p, err := newParser(expression)
	if err != nil {
		return nil, err
	}
	root, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &Expr{source: expression, root: root}, nil
}

// Validate checks expression syntax only. Undefined variables are a
// runtime concern and are not checked here.
func Validate(expression string) error {
	_, err := Compile(expression)
	return err
}

// Evaluate compiles and evaluates in one step. Prefer Compile + Eval
// when the same expression runs repeatedly.
func Evaluate(expression string, vars map[string]any) (any, error) {
	e, err := Compile(expression)
	if err != nil {
		return nil, err
	}
	return e.Eval(vars)
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.source }

// Eval evaluates the compiled expression against the variable map.
// Evaluation is pure: vars is never modified.
func (e *Expr) Eval(vars map[string]any) (any, error) {
	ev := &evaluator{
		vars:            vars,
		maxStringLength: e.MaxStringLength,
		maxPower:        e.MaxPower,
	}
	if ev.maxStringLength <= 0 {
		ev.maxStringLength = DefaultMaxStringLength
	}
	if ev.maxPower <= 0 {
		ev.maxPower = DefaultMaxPower
	}
	return e.root.eval(ev)
}

type evaluator struct {
	vars            map[string]any
	maxStringLength int
	maxPower        float64
}

func evalErrorf(format string, args ...any) error {
	return types.NewErrorf(types.ErrExpression, format, args...)
}

func (n *literalNode) eval(_ *evaluator) (any, error) { return n.value, nil }

func (n *identNode) eval(ev *evaluator) (any, error) {
	if v, ok := ev.vars[n.name]; ok {
		return normalize(v), nil
	}
	available := make([]string, 0, len(ev.vars))
	for k := range ev.vars {
		available = append(available, k)
	}
	sort.Strings(available)
	return nil, evalErrorf("variable %q not found in context (available: [%s])",
		n.name, strings.Join(available, ", "))
}

func (n *listNode) eval(ev *evaluator) (any, error) {
	out := make([]any, 0, len(n.elems))
	for _, elem := range n.elems {
		v, err := elem.eval(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (n *mapNode) eval(ev *evaluator) (any, error) {
	out := make(map[string]any, len(n.keys))
	for i := range n.keys {
		kv, err := n.keys[i].eval(ev)
		if err != nil {
			return nil, err
		}
		key, ok := kv.(string)
		if !ok {
			if _, isNum := asFloat(kv); isNum {
				key = FormatValue(kv)
			} else {
				return nil, evalErrorf("map key must be a string or number, got %s", typeName(kv))
			}
		}
		vv, err := n.values[i].eval(ev)
		if err != nil {
			return nil, err
		}
		out[key] = vv
	}
	return out, nil
}

func (n *unaryNode) eval(ev *evaluator) (any, error) {
	v, err := n.operand.eval(ev)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "not":
		return !Truthy(v), nil
	case "-":
		f, ok := asFloat(v)
		if !ok {
			return nil, evalErrorf("unary '-' requires a number, got %s", typeName(v))
		}
		return -f, nil
	}
	return nil, evalErrorf("unknown unary operator %q", n.op)
}

func (n *lenNode) eval(ev *evaluator) (any, error) {
	v, err := n.arg.eval(ev)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case string:
		return float64(utf8.RuneCountInString(t)), nil
	case []any:
		return float64(len(t)), nil
	case map[string]any:
		return float64(len(t)), nil
	}
	return nil, evalErrorf("len() requires a string, list, or map, got %s", typeName(v))
}

func (n *binaryNode) eval(ev *evaluator) (any, error) {
	// Short-circuit logical operators before evaluating the right side.
	if n.op == "and" || n.op == "or" {
		left, err := n.left.eval(ev)
		if err != nil {
			return nil, err
		}
		if n.op == "and" && !Truthy(left) {
			return left, nil
		}
		if n.op == "or" && Truthy(left) {
			return left, nil
		}
		return n.right.eval(ev)
	}

	left, err := n.left.eval(ev)
	if err != nil {
		return nil, err
	}
	right, err := n.right.eval(ev)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return valuesEqual(left, right), nil
	case "!=":
		return !valuesEqual(left, right), nil
	case "<", ">", "<=", ">=":
		return compareOrdered(n.op, left, right)
	case "in":
		return membership(left, right)
	case "not in":
		ok, err := membership(left, right)
		if err != nil {
			return nil, err
		}
		return !ok.(bool), nil
	case "+":
		return ev.add(left, right)
	case "-", "*", "/", "%":
		return arithmetic(n.op, left, right)
	case "**":
		return ev.power(left, right)
	}
	return nil, evalErrorf("unknown operator %q", n.op)
}

func (ev *evaluator) add(left, right any) (any, error) {
	if lf, ok := asFloat(left); ok {
		rf, ok := asFloat(right)
		if !ok {
			return nil, evalErrorf("cannot add %s and %s", typeName(left), typeName(right))
		}
		return lf + rf, nil
	}
	if ls, ok := left.(string); ok {
		rs, ok := right.(string)
		if !ok {
			return nil, evalErrorf("cannot add %s and %s", typeName(left), typeName(right))
		}
		if len(ls)+len(rs) > ev.maxStringLength {
			return nil, evalErrorf("string result exceeds maximum length %d", ev.maxStringLength)
		}
		return ls + rs, nil
	}
	if ll, ok := left.([]any); ok {
		rl, ok := right.([]any)
		if !ok {
			return nil, evalErrorf("cannot add %s and %s", typeName(left), typeName(right))
		}
		out := make([]any, 0, len(ll)+len(rl))
		out = append(out, ll...)
		out = append(out, rl...)
		return out, nil
	}
	return nil, evalErrorf("cannot add %s and %s", typeName(left), typeName(right))
}

func arithmetic(op string, left, right any) (any, error) {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return nil, evalErrorf("operator %q requires numbers, got %s and %s",
			op, typeName(left), typeName(right))
	}
	switch op {
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, evalErrorf("division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, evalErrorf("modulo by zero")
		}
		return math.Mod(lf, rf), nil
	}
	return nil, evalErrorf("unknown arithmetic operator %q", op)
}

func (ev *evaluator) power(left, right any) (any, error) {
	base, lok := asFloat(left)
	exp, rok := asFloat(right)
	if !lok || !rok {
		return nil, evalErrorf("operator \"**\" requires numbers, got %s and %s",
			typeName(left), typeName(right))
	}
	if math.Abs(base) > ev.maxPower || math.Abs(exp) > ev.maxPower {
		return nil, evalErrorf("exponentiation operand exceeds safety limit %g", ev.maxPower)
	}
	return math.Pow(base, exp), nil
}

func compareOrdered(op string, left, right any) (any, error) {
	if lf, ok := asFloat(left); ok {
		rf, ok := asFloat(right)
		if !ok {
			return nil, evalErrorf("type mismatch: cannot compare %s with %s",
				typeName(left), typeName(right))
		}
		switch op {
		case "<":
			return lf < rf, nil
		case ">":
			return lf > rf, nil
		case "<=":
			return lf <= rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	if ls, ok := left.(string); ok {
		rs, ok := right.(string)
		if !ok {
			return nil, evalErrorf("type mismatch: cannot compare %s with %s",
				typeName(left), typeName(right))
		}
		switch op {
		case "<":
			return ls < rs, nil
		case ">":
			return ls > rs, nil
		case "<=":
			return ls <= rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	return nil, evalErrorf("type mismatch: cannot compare %s with %s",
		typeName(left), typeName(right))
}

func membership(needle, haystack any) (any, error) {
	switch h := haystack.(type) {
	case []any:
		for _, elem := range h {
			if valuesEqual(needle, elem) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := needle.(string)
		if !ok {
			return nil, evalErrorf("'in <string>' requires a string operand, got %s", typeName(needle))
		}
		return strings.Contains(h, s), nil
	case map[string]any:
		s, ok := needle.(string)
		if !ok {
			return nil, evalErrorf("'in <map>' requires a string key, got %s", typeName(needle))
		}
		_, present := h[s]
		return present, nil
	}
	return nil, evalErrorf("'in' requires a list, string, or map on the right, got %s", typeName(haystack))
}

func valuesEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// Truthy reports the truth value of an evaluated result using the same
// rules callers of the original framework relied on: empty strings,
// zero numbers, empty collections, false, and nil are falsy.
func Truthy(v any) bool {
	switch t := normalize(v).(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

// FormatValue converts an evaluation result to its canonical string
// form, used by switch-case matching. Integral floats render without a
// decimal point so "len(items)" matches a case key like "3".
func FormatValue(v any) string {
	switch t := normalize(v).(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(t)
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

// asFloat extracts a float64 from any Go numeric type. Bools are not
// numbers here, unlike in Python.
func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

// normalize folds Go numeric variants into float64 and untyped slices
// into []any so comparisons behave uniformly regardless of how the
// caller built the variable map.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	if f, ok := asFloat(v); ok {
		return f
	}
	switch t := v.(type) {
	case bool, string, []any, map[string]any:
		return t
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return v
}

func typeName(v any) string {
	switch normalize(v).(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	}
	return reflect.TypeOf(v).String()
}
