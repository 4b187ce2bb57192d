// Package conditions parses and evaluates the boolean branch-condition
// expressions that gate task destinations, for example
// `{{context.dicom.tags.sex}} == 'F' AND {{context.dicom.tags.age}} < '70'`.
package conditions

import (
	"errors"
	"fmt"
)

// ErrExpression indicates a malformed or unevaluable condition expression.
// All parse and evaluation failures unwrap to it.
var ErrExpression = errors.New("invalid condition expression")

// ExpressionError carries the offending expression and the index the parser
// or evaluator was at when it gave up.
type ExpressionError struct {
	Expression string
	Index      int
	Message    string
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("%s at index %d in expression %q", e.Message, e.Index, e.Expression)
}

func (e *ExpressionError) Unwrap() error {
	return ErrExpression
}

func newExpressionError(expression string, index int, format string, args ...any) *ExpressionError {
	return &ExpressionError{
		Expression: expression,
		Index:      index,
		Message:    fmt.Sprintf(format, args...),
	}
}
