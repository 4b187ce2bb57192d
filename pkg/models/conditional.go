package models

// GroupKeyword joins the two sides of a ConditionalGroup.
type GroupKeyword string

const (
	KeywordAnd      GroupKeyword = "AND"
	KeywordOr       GroupKeyword = "OR"
	KeywordSingular GroupKeyword = "SINGULAR"
)

// Conditional is one parsed comparison clause of a branch condition,
// for example `{{context.dicom.tags}} == 'F'`. Parse trees are built fresh
// per evaluation and never persisted.
type Conditional struct {
	LeftOperand  string
	Operator     string
	RightOperand string
}

// GroupNode is either a Conditional leaf or a nested ConditionalGroup.
type GroupNode interface {
	isGroupNode()
}

func (*Conditional) isGroupNode()      {}
func (*ConditionalGroup) isGroupNode() {}

// ConditionalGroup combines two group nodes with AND/OR, or wraps a single
// clause with KeywordSingular and an unset Right.
type ConditionalGroup struct {
	Keyword GroupKeyword
	Left    GroupNode
	Right   GroupNode
}
