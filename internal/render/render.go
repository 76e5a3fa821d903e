package render

import "strings"

// MaxDepth is the deepest loop nesting a render may reach. The top-level call
// runs at depth 0 and each loop iteration renders its body one level deeper.
const MaxDepth = 5

// Template is a parsed template body. It holds no render state and may be
// executed concurrently.
type Template struct {
	nodes []Node
}

// Compile parses body into a reusable Template.
func Compile(body string) (*Template, error) {
	nodes, err := parse(body)
	if err != nil {
		return nil, err
	}
	return &Template{nodes: nodes}, nil
}

// MustCompile is like Compile but panics on a syntax error.
func MustCompile(body string) *Template {
	t, err := Compile(body)
	if err != nil {
		panic(err)
	}
	return t
}

// Nodes returns the parsed tree.
func (t *Template) Nodes() []Node {
	return t.nodes
}

// Execute renders the template against vars. vars is never modified.
func (t *Template) Execute(vars map[string]any) (string, error) {
	return execute(t.nodes, newScope(vars), 0)
}

// Render parses and renders body in one step.
func Render(body string, vars map[string]any) (string, error) {
	t, err := Compile(body)
	if err != nil {
		return "", err
	}
	return t.Execute(vars)
}

// execute runs the three passes over one level of the tree: conditionals,
// then loops (recursing per iteration), then placeholders.
func execute(nodes []Node, s *scope, depth int) (string, error) {
	resolved, err := resolveConditionals(nodes, s)
	if err != nil {
		return "", err
	}
	expanded, err := expandLoops(resolved, s, depth)
	if err != nil {
		return "", err
	}
	return substitute(expanded, s)
}

// resolveConditionals replaces every if block at this level with the nodes of
// its chosen branch. Blocks revealed inside a chosen branch are resolved too;
// loop bodies are left for their own iterations.
func resolveConditionals(nodes []Node, s *scope) ([]Node, error) {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		block, ok := n.(*IfNode)
		if !ok {
			out = append(out, n)
			continue
		}

		ok, err := evalCondition(block.Cond, s, block.Pos)
		if err != nil {
			return nil, err
		}
		branch := block.Else
		if ok {
			branch = block.Then
		}

		chosen, err := resolveConditionals(branch, s)
		if err != nil {
			return nil, err
		}
		out = append(out, chosen...)
	}
	return out, nil
}

// expandLoops replaces every for block at this level with the concatenated
// output of its iterations. The result is final text and is not scanned for
// placeholders again.
func expandLoops(nodes []Node, s *scope, depth int) ([]Node, error) {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		loop, ok := n.(*ForNode)
		if !ok {
			out = append(out, n)
			continue
		}

		source, _ := s.lookup(loop.Source)
		items, ok := sequence(source)
		if !ok {
			return nil, newError(ErrInvalidLoopSource, loop.Source, loop.Pos)
		}

		var b strings.Builder
		for _, item := range items {
			if depth+1 > MaxDepth {
				return nil, &Error{Kind: ErrMaxDepthExceeded, Subject: loop.Source, Pos: loop.Pos}
			}
			text, err := execute(loop.Body, s.with(loop.Item, item), depth+1)
			if err != nil {
				return nil, err
			}
			b.WriteString(text)
		}
		out = append(out, &renderedNode{text: b.String(), pos: loop.Pos})
	}
	return out, nil
}

func substitute(nodes []Node, s *scope) (string, error) {
	var b strings.Builder
	for _, n := range nodes {
		switch node := n.(type) {
		case *TextNode:
			b.WriteString(node.Text)
		case *renderedNode:
			b.WriteString(node.text)
		case *VarNode:
			v, ok := s.lookup(node.Name)
			if !ok {
				return "", newError(ErrUndefinedVariable, node.Name, node.Pos)
			}
			text, ok := formatValue(v)
			if !ok {
				return "", &Error{Kind: ErrUndefinedVariable, Subject: node.Name, Detail: "value is not a scalar", Pos: node.Pos}
			}
			b.WriteString(text)
		}
	}
	return b.String(), nil
}

// renderedNode carries the finished output of a loop back to its level.
type renderedNode struct {
	text string
	pos  Pos
}

func (n *renderedNode) Position() Pos  { return n.pos }
func (n *renderedNode) String() string { return "Rendered(" + n.text + ")" }
