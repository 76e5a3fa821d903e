package render

import (
	"fmt"
	"strings"
)

// Node is one element of a parsed template body.
type Node interface {
	fmt.Stringer
	Position() Pos
}

// TextNode is literal text copied to the output unchanged.
type TextNode struct {
	Text string
	Pos  Pos
}

func (n *TextNode) Position() Pos  { return n.Pos }
func (n *TextNode) String() string { return fmt.Sprintf("Text(%q)", n.Text) }

// VarNode is a {{ name }} placeholder.
type VarNode struct {
	Name string
	Pos  Pos
}

func (n *VarNode) Position() Pos  { return n.Pos }
func (n *VarNode) String() string { return fmt.Sprintf("Var(%s)", n.Name) }

// IfNode is an if/else/endif block. Cond is kept raw and parsed when the
// block is evaluated.
type IfNode struct {
	Cond string
	Then []Node
	Else []Node
	Pos  Pos
}

func (n *IfNode) Position() Pos { return n.Pos }

func (n *IfNode) String() string {
	return fmt.Sprintf("If(%s) %s Else %s", n.Cond, listString(n.Then), listString(n.Else))
}

// ForNode is a for/endfor block iterating Source and binding Item.
type ForNode struct {
	Item   string
	Source string
	Body   []Node
	Pos    Pos
}

func (n *ForNode) Position() Pos { return n.Pos }

func (n *ForNode) String() string {
	return fmt.Sprintf("For(%s in %s) %s", n.Item, n.Source, listString(n.Body))
}

func listString(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
