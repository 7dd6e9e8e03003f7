package expr

import (
	"fmt"
	"strings"
)

// Node is a parsed expression.
type Node interface {
	String() string
}

type Literal struct {
	Value any
}

type Identifier struct {
	Name string
}

// Placeholder is a ${...} reference resolved through the variable context.
type Placeholder struct {
	Raw string
}

type Member struct {
	Object Node
	Field  string
}

type Index struct {
	Object Node
	Index  Node
}

type ListLiteral struct {
	Items []Node
}

type Unary struct {
	Op      TokenType
	Operand Node
}

type Binary struct {
	Op    TokenType
	Left  Node
	Right Node
	// Negated turns "in" into "not in".
	Negated bool
}

type Logical struct {
	Op    TokenType
	Left  Node
	Right Node
}

type Call struct {
	Name string
	Args []Node
}

func (n *Literal) String() string {
	if s, ok := n.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	if n.Value == nil {
		return "null"
	}
	return fmt.Sprintf("%v", n.Value)
}

func (n *Identifier) String() string  { return n.Name }
func (n *Placeholder) String() string { return n.Raw }
func (n *Member) String() string      { return n.Object.String() + "." + n.Field }
func (n *Index) String() string       { return n.Object.String() + "[" + n.Index.String() + "]" }

func (n *ListLiteral) String() string {
	parts := make([]string, len(n.Items))
	for i, item := range n.Items {
		parts[i] = item.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (n *Unary) String() string { return "not " + n.Operand.String() }

func (n *Binary) String() string {
	op := n.Op.String()
	if n.Negated {
		op = "not " + op
	}
	return n.Left.String() + " " + op + " " + n.Right.String()
}

func (n *Logical) String() string {
	return "(" + n.Left.String() + " " + n.Op.String() + " " + n.Right.String() + ")"
}

func (n *Call) String() string {
	parts := make([]string, len(n.Args))
	for i, arg := range n.Args {
		parts[i] = arg.String()
	}
	return n.Name + "(" + strings.Join(parts, ", ") + ")"
}
