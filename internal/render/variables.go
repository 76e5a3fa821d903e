package render

// Variables lists the names body reads from its bindings, in order of first
// appearance. Names bound by an enclosing loop are not reported, and neither
// are condition operands that can only be literals.
func Variables(body string) ([]string, error) {
	t, err := Compile(body)
	if err != nil {
		return nil, err
	}
	return t.Variables(), nil
}

// Variables is the parsed-template form of the package-level Variables.
func (t *Template) Variables() []string {
	c := &collector{seen: make(map[string]bool)}
	c.walk(t.nodes, nil)
	return c.names
}

type collector struct {
	names []string
	seen  map[string]bool
}

func (c *collector) add(name string, bound []string) {
	if name == "" || c.seen[name] || contains(bound, name) {
		return
	}
	c.seen[name] = true
	c.names = append(c.names, name)
}

func (c *collector) walk(nodes []Node, bound []string) {
	for _, n := range nodes {
		switch node := n.(type) {
		case *VarNode:
			c.add(node.Name, bound)
		case *IfNode:
			if cond, err := parseCondition(node.Cond, node.Pos); err == nil {
				for _, o := range []operand{cond.left, cond.right} {
					if !o.quoted && isName(o.text) && o.text != "true" && o.text != "false" {
						c.add(o.text, bound)
					}
				}
			}
			c.walk(node.Then, bound)
			c.walk(node.Else, bound)
		case *ForNode:
			c.add(node.Source, bound)
			inner := append(append([]string(nil), bound...), node.Item)
			c.walk(node.Body, inner)
		}
	}
}
