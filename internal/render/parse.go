package render

import (
	"strings"
	"unicode"
)

const (
	keywordIf     = "if"
	keywordElse   = "else"
	keywordEndIf  = "endif"
	keywordFor    = "for"
	keywordIn     = "in"
	keywordEndFor = "endfor"
)

type parser struct {
	tokens []token
	pos    int
}

// parse builds the node tree for a template body. Tags that do not open a
// block or close the innermost open one are kept as literal text.
func parse(input string) ([]Node, error) {
	p := &parser{tokens: lex(input)}
	nodes, _, err := p.parseList(nil)
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func (p *parser) next() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, true
}

// parseList consumes tokens until a tag whose keyword is in closers, which is
// returned. A zero token with ok=false means the input ran out first.
func (p *parser) parseList(closers []string) ([]Node, *token, error) {
	var nodes []Node
	for {
		tok, ok := p.next()
		if !ok {
			return nodes, nil, nil
		}

		switch tok.typ {
		case tokenText:
			nodes = appendText(nodes, tok.val, tok.pos)
		case tokenVar:
			nodes = append(nodes, &VarNode{Name: tok.val, Pos: tok.pos})
		case tokenTag:
			keyword, rest := splitKeyword(tok.val)
			switch {
			case contains(closers, keyword) && rest == "":
				return nodes, &tok, nil
			case keyword == keywordIf:
				node, err := p.parseIf(tok, rest)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, node)
			case keyword == keywordFor:
				node, err := p.parseFor(tok, rest)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, node)
			default:
				nodes = appendText(nodes, tok.raw, tok.pos)
			}
		}
	}
}

func (p *parser) parseIf(open token, cond string) (*IfNode, error) {
	node := &IfNode{Cond: cond, Pos: open.pos}

	then, end, err := p.parseList([]string{keywordElse, keywordEndIf})
	if err != nil {
		return nil, err
	}
	if end == nil {
		return nil, syntaxErrorf(open.pos, "unclosed if block")
	}
	node.Then = then

	if keyword, _ := splitKeyword(end.val); keyword == keywordElse {
		elseNodes, elseEnd, err := p.parseList([]string{keywordElse, keywordEndIf})
		if err != nil {
			return nil, err
		}
		if elseEnd == nil {
			return nil, syntaxErrorf(open.pos, "unclosed if block")
		}
		if keyword, _ := splitKeyword(elseEnd.val); keyword == keywordElse {
			return nil, syntaxErrorf(elseEnd.pos, "duplicate else in if block")
		}
		node.Else = elseNodes
	}

	return node, nil
}

func (p *parser) parseFor(open token, header string) (*ForNode, error) {
	fields := strings.Fields(header)
	if len(fields) != 3 || fields[1] != keywordIn || !isName(fields[0]) || !isName(fields[2]) {
		return nil, syntaxErrorf(open.pos, "malformed for header %q, want \"for <item> in <source>\"", header)
	}

	body, end, err := p.parseList([]string{keywordEndFor})
	if err != nil {
		return nil, err
	}
	if end == nil {
		return nil, syntaxErrorf(open.pos, "unclosed for block")
	}

	return &ForNode{Item: fields[0], Source: fields[2], Body: body, Pos: open.pos}, nil
}

func splitKeyword(tag string) (string, string) {
	i := strings.IndexFunc(tag, unicode.IsSpace)
	if i < 0 {
		return tag, ""
	}
	return tag[:i], strings.TrimSpace(tag[i:])
}

// appendText merges adjacent literal runs so the tree stays minimal.
func appendText(nodes []Node, text string, pos Pos) []Node {
	if n := len(nodes); n > 0 {
		if last, ok := nodes[n-1].(*TextNode); ok {
			last.Text += text
			return nodes
		}
	}
	return append(nodes, &TextNode{Text: text, Pos: pos})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// isName reports whether s can name a binding: a letter or underscore
// followed by letters, digits, underscores, dots or dashes.
func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '.' || r == '-'):
		default:
			return false
		}
	}
	return true
}
