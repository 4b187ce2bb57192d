package conditions

import (
	"strconv"
	"strings"

	"github.com/openimaging/conductor/pkg/models"
)

// Evaluate parses the expression and evaluates it against the context.
// Evaluation failures (unresolved placeholders, non-numeric operands to a
// numeric operator) surface as ExpressionError rather than a silent false.
func Evaluate(expression string, ctx Context) (bool, error) {
	group, err := Parse(expression)
	if err != nil {
		return false, err
	}

	return evaluateGroup(expression, group, ctx)
}

func evaluateGroup(expression string, group *models.ConditionalGroup, ctx Context) (bool, error) {
	left, err := evaluateNode(expression, group.Left, ctx)
	if err != nil {
		return false, err
	}

	if group.Keyword == models.KeywordSingular || group.Right == nil {
		return left, nil
	}

	right, err := evaluateNode(expression, group.Right, ctx)
	if err != nil {
		return false, err
	}

	switch group.Keyword {
	case models.KeywordAnd:
		return left && right, nil
	case models.KeywordOr:
		return left || right, nil
	default:
		return false, newExpressionError(expression, 0, "unknown group keyword %q", group.Keyword)
	}
}

func evaluateNode(expression string, node models.GroupNode, ctx Context) (bool, error) {
	switch n := node.(type) {
	case *models.Conditional:
		return evaluateConditional(expression, n, ctx)
	case *models.ConditionalGroup:
		return evaluateGroup(expression, n, ctx)
	default:
		return false, newExpressionError(expression, 0, "unknown parse node %T", node)
	}
}

func evaluateConditional(expression string, cond *models.Conditional, ctx Context) (bool, error) {
	left, err := resolveOperand(expression, cond.LeftOperand, ctx)
	if err != nil {
		return false, err
	}

	right, err := resolveOperand(expression, cond.RightOperand, ctx)
	if err != nil {
		return false, err
	}

	switch cond.Operator {
	case "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	}

	// Remaining operators compare 16-bit integers.
	leftNum, err := parseNumeric(expression, left, cond.Operator)
	if err != nil {
		return false, err
	}

	rightNum, err := parseNumeric(expression, right, cond.Operator)
	if err != nil {
		return false, err
	}

	switch cond.Operator {
	case ">":
		return leftNum > rightNum, nil
	case "<":
		return leftNum < rightNum, nil
	case ">=", "=>":
		return leftNum >= rightNum, nil
	case "<=", "=<":
		return leftNum <= rightNum, nil
	default:
		return false, newExpressionError(expression, 0, "unsupported operator %q", cond.Operator)
	}
}

// resolveOperand turns a parsed operand into its comparison value:
// placeholders resolve through the context, quoted literals are unquoted,
// bare tokens compare as-is.
func resolveOperand(expression, operand string, ctx Context) (string, error) {
	switch {
	case strings.HasPrefix(operand, "{{"):
		path := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(operand, "{{"), "}}"))

		value, ok := ctx.Resolve(path)
		if !ok {
			return "", newExpressionError(expression, strings.Index(expression, operand), "unresolved placeholder %q", path)
		}

		return value, nil
	case strings.HasPrefix(operand, "'"):
		return strings.TrimSuffix(strings.TrimPrefix(operand, "'"), "'"), nil
	default:
		return operand, nil
	}
}

func parseNumeric(expression, value, operator string) (int16, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 16)
	if err != nil {
		return 0, newExpressionError(expression, 0, "operand %q of %s is not numeric", value, operator)
	}

	return int16(n), nil
}
