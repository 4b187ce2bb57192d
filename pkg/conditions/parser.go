package conditions

import (
	"strings"
	"unicode"

	"github.com/openimaging/conductor/pkg/models"
)

var operators = []string{"==", "!=", ">=", "<=", "=>", "=<", ">", "<"}

// Parse builds the transient parse tree for a branch condition expression.
//
// Clauses are joined by case-insensitive AND/OR with no precedence between
// the two keywords and no parenthesized grouping. Mixed AND/OR expressions
// split at the earliest top-level keyword occurrence, scanning left to
// right outside quotes and placeholder braces. This tie-break is
// implementation-defined and pinned by tests.
func Parse(expression string) (*models.ConditionalGroup, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, newExpressionError(expression, 0, "empty expression")
	}

	if err := checkBalance(expression); err != nil {
		return nil, err
	}

	node, err := parseRange(expression, 0, len(expression))
	if err != nil {
		return nil, err
	}

	if group, ok := node.(*models.ConditionalGroup); ok {
		return group, nil
	}

	return &models.ConditionalGroup{Keyword: models.KeywordSingular, Left: node}, nil
}

// checkBalance rejects unbalanced quotes and placeholder braces before any
// keyword scanning happens. Quotes inside {{ }} belong to the placeholder
// path and are not tracked.
func checkBalance(expression string) error {
	inQuote := false
	braceOpen := -1

	for i := 0; i < len(expression); i++ {
		if braceOpen >= 0 {
			if strings.HasPrefix(expression[i:], "}}") {
				braceOpen = -1
				i++
			}

			continue
		}

		switch {
		case expression[i] == '\'':
			inQuote = !inQuote
		case !inQuote && strings.HasPrefix(expression[i:], "{{"):
			braceOpen = i
			i++
		case !inQuote && strings.HasPrefix(expression[i:], "}}"):
			return newExpressionError(expression, i, "unbalanced braces")
		}
	}

	if braceOpen >= 0 {
		return newExpressionError(expression, braceOpen, "unbalanced braces")
	}

	if inQuote {
		return newExpressionError(expression, strings.LastIndexByte(expression, '\''), "unbalanced quotes")
	}

	return nil
}

func parseRange(expression string, start, end int) (models.GroupNode, error) {
	idx, keyword := findKeyword(expression, start, end)
	if idx < 0 {
		return parseClause(expression, start, end)
	}

	leftEnd := idx
	rightStart := idx + len(keyword)

	if strings.TrimSpace(expression[start:leftEnd]) == "" {
		return nil, newExpressionError(expression, idx, "keyword %s has no left operand", keyword)
	}

	if strings.TrimSpace(expression[rightStart:end]) == "" {
		return nil, newExpressionError(expression, idx, "keyword %s has no right operand", keyword)
	}

	left, err := parseClause(expression, start, leftEnd)
	if err != nil {
		return nil, err
	}

	right, err := parseRange(expression, rightStart, end)
	if err != nil {
		return nil, err
	}

	return &models.ConditionalGroup{Keyword: keyword, Left: left, Right: right}, nil
}

// findKeyword locates the earliest top-level AND/OR in [start,end) and
// returns its index, or -1 when the range is a single clause.
func findKeyword(expression string, start, end int) (int, models.GroupKeyword) {
	inQuote := false

	for i := start; i < end; i++ {
		if !inQuote && strings.HasPrefix(expression[i:end], "{{") {
			close := strings.Index(expression[i:end], "}}")
			if close < 0 {
				break
			}

			i += close + 1

			continue
		}

		if expression[i] == '\'' {
			inQuote = !inQuote

			continue
		}

		if inQuote {
			continue
		}

		if keywordAt(expression, i, end, "AND") {
			return i, models.KeywordAnd
		}

		if keywordAt(expression, i, end, "OR") {
			return i, models.KeywordOr
		}
	}

	return -1, models.KeywordSingular
}

func keywordAt(expression string, i, end int, keyword string) bool {
	if i+len(keyword) > end {
		return false
	}

	if !strings.EqualFold(expression[i:i+len(keyword)], keyword) {
		return false
	}

	if i > 0 && !unicode.IsSpace(rune(expression[i-1])) {
		return false
	}

	after := i + len(keyword)

	return after == end || unicode.IsSpace(rune(expression[after]))
}

// parseClause parses `<operand> <op> <operand>` in [start,end).
func parseClause(expression string, start, end int) (models.GroupNode, error) {
	pos := skipSpaces(expression, start, end)
	if pos >= end {
		return nil, newExpressionError(expression, start, "empty clause")
	}

	left, pos, err := parseOperand(expression, pos, end)
	if err != nil {
		return nil, err
	}

	pos = skipSpaces(expression, pos, end)

	op := ""

	for _, candidate := range operators {
		if strings.HasPrefix(expression[pos:end], candidate) {
			op = candidate

			break
		}
	}

	if op == "" {
		return nil, newExpressionError(expression, pos, "missing operator after operand %q", left)
	}

	pos = skipSpaces(expression, pos+len(op), end)
	if pos >= end {
		return nil, newExpressionError(expression, end, "operator %s has no right operand", op)
	}

	right, pos, err := parseOperand(expression, pos, end)
	if err != nil {
		return nil, err
	}

	if rest := skipSpaces(expression, pos, end); rest < end {
		return nil, newExpressionError(expression, rest, "unexpected content %q after clause", expression[rest:end])
	}

	return &models.Conditional{LeftOperand: left, Operator: op, RightOperand: right}, nil
}

// parseOperand reads a `{{path}}` placeholder, a single-quoted literal, or a
// bare token. The returned operand keeps its delimiters so the evaluator can
// tell the three forms apart.
func parseOperand(expression string, start, end int) (string, int, error) {
	switch {
	case strings.HasPrefix(expression[start:end], "{{"):
		close := strings.Index(expression[start:end], "}}")
		if close < 0 {
			return "", start, newExpressionError(expression, start, "unbalanced braces")
		}

		return expression[start : start+close+2], start + close + 2, nil
	case expression[start] == '\'':
		close := strings.IndexByte(expression[start+1:end], '\'')
		if close < 0 {
			return "", start, newExpressionError(expression, start, "unbalanced quotes")
		}

		return expression[start : start+close+2], start + close + 2, nil
	default:
		pos := start
		for pos < end && !unicode.IsSpace(rune(expression[pos])) {
			pos++
		}

		return expression[start:pos], pos, nil
	}
}

func skipSpaces(expression string, start, end int) int {
	for start < end && unicode.IsSpace(rune(expression[start])) {
		start++
	}

	return start
}
