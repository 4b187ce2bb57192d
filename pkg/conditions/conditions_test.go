package conditions

import (
	"errors"
	"testing"

	"github.com/openimaging/conductor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_StringEquality(t *testing.T) {
	ctx := Context{"x": "F"}

	result, err := Evaluate("{{x}} == 'F'", ctx)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = Evaluate("{{x}} == 'M'", ctx)
	require.NoError(t, err)
	assert.False(t, result)

	result, err = Evaluate("{{x}} != 'M'", ctx)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluate_NumericComparisons(t *testing.T) {
	ctx := Context{"y": "5"}

	tests := []struct {
		name       string
		expression string
		want       bool
	}{
		{"greater than", "{{y}} > '2'", true},
		{"greater than false", "{{y}} > '9'", false},
		{"less than", "{{y}} < '9'", true},
		{"greater equal", "{{y}} >= '5'", true},
		{"greater equal alternate", "{{y}} => '5'", true},
		{"less equal", "{{y}} <= '5'", true},
		{"less equal alternate", "{{y}} =< '4'", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(tt.expression, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestEvaluate_NumericOperatorRejectsStrings(t *testing.T) {
	ctx := Context{"x": "F"}

	_, err := Evaluate("{{x}} > '2'", ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpression)
	assert.Contains(t, err.Error(), "not numeric")
}

func TestEvaluate_AndOr(t *testing.T) {
	ctx := Context{"x": "F", "y": "5"}

	result, err := Evaluate("{{x}} == 'F' AND {{y}} > '2'", ctx)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = Evaluate("{{x}} == 'M' AND {{y}} > '2'", ctx)
	require.NoError(t, err)
	assert.False(t, result)

	result, err = Evaluate("{{x}} == 'M' OR {{y}} > '2'", ctx)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = Evaluate("{{x}} == 'M' or {{y}} == '5'", ctx)
	require.NoError(t, err)
	assert.True(t, result, "keywords are case-insensitive")
}

// Mixed AND/OR splits at the earliest top-level keyword: the expression below
// parses as a AND (b OR c).
func TestEvaluate_MixedKeywordTieBreak(t *testing.T) {
	ctx := Context{"a": "1", "b": "0", "c": "1"}

	group, err := Parse("{{a}} == '1' AND {{b}} == '2' OR {{c}} == '1'")
	require.NoError(t, err)
	assert.Equal(t, models.KeywordAnd, group.Keyword)

	nested, ok := group.Right.(*models.ConditionalGroup)
	require.True(t, ok)
	assert.Equal(t, models.KeywordOr, nested.Keyword)

	result, err := Evaluate("{{a}} == '1' AND {{b}} == '2' OR {{c}} == '1'", ctx)
	require.NoError(t, err)
	assert.True(t, result)

	// a AND (b OR c) with all-false right side.
	result, err = Evaluate("{{a}} == '1' AND {{b}} == '2' OR {{c}} == '9'", ctx)
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluate_LeadingKeywordFails(t *testing.T) {
	_, err := Evaluate("AND {{x}} == 'F'", Context{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpression)
	assert.Contains(t, err.Error(), "index 0")

	var exprErr *ExpressionError

	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, 0, exprErr.Index)
}

func TestEvaluate_UnresolvedPlaceholderFails(t *testing.T) {
	_, err := Evaluate("{{missing.path}} == 'F'", Context{"x": "F"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpression)
	assert.Contains(t, err.Error(), "unresolved placeholder")
}

func TestParse_MalformedExpressions(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		contains   string
	}{
		{"empty", "   ", "empty expression"},
		{"unbalanced braces", "{{x == 'F'", "unbalanced braces"},
		{"unbalanced quotes", "{{x}} == 'F", "unbalanced quotes"},
		{"missing operator", "{{x}} 'F'", "missing operator"},
		{"dangling operator", "{{x}} ==", "no right operand"},
		{"trailing garbage", "{{x}} == 'F' {{y}}", "unexpected content"},
		{"trailing keyword", "{{x}} == 'F' AND", "no right operand"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expression)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrExpression)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestParse_SingularGroup(t *testing.T) {
	group, err := Parse("{{x}} == 'F'")
	require.NoError(t, err)
	assert.Equal(t, models.KeywordSingular, group.Keyword)
	assert.Nil(t, group.Right)

	cond, ok := group.Left.(*models.Conditional)
	require.True(t, ok)
	assert.Equal(t, "{{x}}", cond.LeftOperand)
	assert.Equal(t, "==", cond.Operator)
	assert.Equal(t, "'F'", cond.RightOperand)
}

func TestParse_QuotedKeywordIsNotASplitPoint(t *testing.T) {
	group, err := Parse("{{x}} == 'F AND M'")
	require.NoError(t, err)
	assert.Equal(t, models.KeywordSingular, group.Keyword)

	result, err := Evaluate("{{x}} == 'F AND M'", Context{"x": "F AND M"})
	require.NoError(t, err)
	assert.True(t, result)
}

func TestContext_Resolve(t *testing.T) {
	ctx := Context{
		"context": map[string]any{
			"dicom": map[string]any{
				"tags": map[string]any{"sex": "F"},
			},
			"count": 3,
		},
	}

	value, ok := ctx.Resolve("context.dicom.tags.sex")
	require.True(t, ok)
	assert.Equal(t, "F", value)

	value, ok = ctx.Resolve("context.count")
	require.True(t, ok)
	assert.Equal(t, "3", value)

	_, ok = ctx.Resolve("context.dicom.tags.age")
	assert.False(t, ok)

	_, ok = ctx.Resolve("context.dicom.tags.sex.extra")
	assert.False(t, ok, "cannot descend through a leaf value")
}

func TestEvaluate_ErrorIsTyped(t *testing.T) {
	_, err := Evaluate("OR {{x}} == '1'", Context{})

	var exprErr *ExpressionError

	require.True(t, errors.As(err, &exprErr))
	assert.Equal(t, "OR {{x}} == '1'", exprErr.Expression)
}
