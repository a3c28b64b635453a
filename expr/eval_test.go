package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genflow-ai/genflow/types"
)

func TestEvaluate_Comparisons(t *testing.T) {
	vars := map[string]any{
		"x":         42,
		"name":      "alice",
		"priority":  8,
		"status":    "open",
		"sentiment": "positive",
	}

	tests := []struct {
		expr string
		want any
	}{
		{"x > 10", true},
		{"x < 10", false},
		{"x >= 42", true},
		{"x <= 41", false},
		{"x == 42", true},
		{"x != 42", false},
		{"name == 'alice'", true},
		{"name != 'bob'", true},
		{"sentiment == 'positive'", true},
		{"priority > 5 and status != 'closed'", true},
		{"priority > 5 and status == 'closed'", false},
		{"priority < 5 or status == 'open'", true},
		{"not (x > 10)", false},
		{"'ali' in name", true},
		{"name in ['alice', 'bob']", true},
		{"name not in ['carol', 'dave']", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Arithmetic(t *testing.T) {
	vars := map[string]any{"a": 6, "b": 4}

	tests := []struct {
		expr string
		want float64
	}{
		{"a + b", 10},
		{"a - b", 2},
		{"a * b", 24},
		{"a / b", 1.5},
		{"a % b", 2},
		{"2 ** 10", 1024},
		{"-a + 1", -5},
		{"(a + b) * 2", 20},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Literals(t *testing.T) {
	got, err := Evaluate("[1, 2, 3]", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, got)

	got, err = Evaluate("{'a': 1, 'b': 2}", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, got)

	got, err = Evaluate("true", nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = Evaluate("null", nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Python-style spellings are accepted for compatibility.
	got, err = Evaluate("True and not False", nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestEvaluate_Len(t *testing.T) {
	vars := map[string]any{
		"items": []any{"a", "b", "c"},
		"text":  "héllo",
		"attrs": map[string]any{"k": 1},
	}

	tests := []struct {
		expr string
		want any
	}{
		{"len(items)", 3.0},
		{"len(items) > 0", true},
		{"len(text)", 5.0},
		{"len(attrs)", 1.0},
		{"len([])", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Evaluate("len(42)", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "len()")
}

func TestEvaluate_UndefinedVariable(t *testing.T) {
	vars := map[string]any{"input": 1, "node1": 2}
	_, err := Evaluate("missing_var > 0", vars)
	require.Error(t, err)
	assert.Equal(t, types.ErrExpression, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), `"missing_var"`)
	// Available variables are listed, sorted, to suggest a fix.
	assert.Contains(t, err.Error(), "input, node1")
}

func TestValidate_SyntaxErrors(t *testing.T) {
	invalid := []string{
		"",
		"   ",
		"x >",
		"x = 5",
		"import os",
		"lambda: 1",
		"x.y",
		"f(x)",
		"x > 1 > 2",
		"'unterminated",
		"[1, 2",
		"{'a': }",
	}
	for _, expression := range invalid {
		t.Run(expression, func(t *testing.T) {
			err := Validate(expression)
			require.Error(t, err)
			assert.Equal(t, types.ErrExpression, types.GetErrorCode(err))
		})
	}
}

func TestValidate_AcceptsGrammar(t *testing.T) {
	valid := []string{
		"x > 10",
		"sentiment == 'positive'",
		"document_type in ['email', 'report']",
		"priority > 5 and status != 'closed'",
		"len(items) > 0",
		"not done",
		"a + b * c - d / e",
		"value not in {'a': 1}",
	}
	for _, expression := range valid {
		t.Run(expression, func(t *testing.T) {
			// Undefined variables are fine here: Validate is syntax-only.
			assert.NoError(t, Validate(expression))
		})
	}
}

func TestEvaluate_DoSLimits(t *testing.T) {
	_, err := Evaluate("9999999 ** 2", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "safety limit")

	e, err := Compile("big + big")
	require.NoError(t, err)
	e.MaxStringLength = 16
	_, err = e.Eval(map[string]any{"big": "aaaaaaaaaa"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum length")
}

func TestEvaluate_TypeMismatch(t *testing.T) {
	_, err := Evaluate("x > 'abc'", map[string]any{"x": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type mismatch")

	_, err = Evaluate("'a' / 2", nil)
	require.Error(t, err)

	_, err = Evaluate("1 / 0", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")
}

func TestTruthy(t *testing.T) {
	assert.True(t, Truthy(true))
	assert.True(t, Truthy(1))
	assert.True(t, Truthy("x"))
	assert.True(t, Truthy([]any{1}))
	assert.False(t, Truthy(false))
	assert.False(t, Truthy(0))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy([]any{}))
	assert.False(t, Truthy(nil))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "3", FormatValue(3.0))
	assert.Equal(t, "3", FormatValue(3))
	assert.Equal(t, "3.5", FormatValue(3.5))
	assert.Equal(t, "b", FormatValue("b"))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "null", FormatValue(nil))
}

func TestCompile_Reuse(t *testing.T) {
	e, err := Compile("count > threshold")
	require.NoError(t, err)

	got, err := e.Eval(map[string]any{"count": 5, "threshold": 3})
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = e.Eval(map[string]any{"count": 1, "threshold": 3})
	require.NoError(t, err)
	assert.Equal(t, false, got)
}
