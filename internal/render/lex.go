package render

import "strings"

type tokenType int

const (
	tokenText tokenType = iota // literal text
	tokenVar                   // {{ name }}
	tokenTag                   // {% keyword ... %}
)

const (
	varOpen  = "{{"
	varClose = "}}"
	tagOpen  = "{%"
	tagClose = "%}"
)

type token struct {
	typ tokenType
	// val is the trimmed content between delimiters (or the text itself).
	val string
	// raw is the token exactly as written, used when a tag degrades to text.
	raw string
	pos Pos
}

type lexer struct {
	input  string
	start  int
	pos    int
	line   int
	column int
	tokens []token
}

type lexState func(*lexer) lexState

func lex(input string) []token {
	l := &lexer{input: input, line: 1, column: 1}
	for state := lexText; state != nil; {
		state = state(l)
	}
	return l.tokens
}

// emit records input[start:pos] as a token and advances the line/column
// bookkeeping past it.
func (l *lexer) emit(typ tokenType, val string) {
	raw := l.input[l.start:l.pos]
	l.tokens = append(l.tokens, token{
		typ: typ,
		val: val,
		raw: raw,
		pos: Pos{Line: l.line, Column: l.column},
	})
	l.skip(raw)
	l.start = l.pos
}

func (l *lexer) skip(consumed string) {
	if n := strings.Count(consumed, "\n"); n > 0 {
		l.line += n
		l.column = len(consumed) - strings.LastIndex(consumed, "\n")
		return
	}
	l.column += len(consumed)
}

func (l *lexer) emitText() {
	if l.pos > l.start {
		l.emit(tokenText, l.input[l.start:l.pos])
	}
}

func lexText(l *lexer) lexState {
	for l.pos < len(l.input) {
		rest := l.input[l.pos:]
		switch {
		case strings.HasPrefix(rest, varOpen):
			if end := strings.Index(rest[len(varOpen):], varClose); end >= 0 {
				inner := rest[len(varOpen) : len(varOpen)+end]
				// placeholders never span lines or contain another opener
				if !strings.Contains(inner, "\n") && !strings.Contains(inner, varOpen) {
					l.emitText()
					return lexVar
				}
			}
			l.pos += len(varOpen)
		case strings.HasPrefix(rest, tagOpen):
			if end := strings.Index(rest[len(tagOpen):], tagClose); end >= 0 {
				// an opener with another opener before its close is text
				if !strings.Contains(rest[len(tagOpen):len(tagOpen)+end], tagOpen) {
					l.emitText()
					return lexTag
				}
			}
			l.pos += len(tagOpen)
		default:
			l.pos++
		}
	}
	l.emitText()
	return nil
}

func lexVar(l *lexer) lexState {
	end := strings.Index(l.input[l.pos+len(varOpen):], varClose)
	inner := l.input[l.pos+len(varOpen) : l.pos+len(varOpen)+end]
	l.pos += len(varOpen) + end + len(varClose)
	l.emit(tokenVar, strings.TrimSpace(inner))
	return lexText
}

func lexTag(l *lexer) lexState {
	end := strings.Index(l.input[l.pos+len(tagOpen):], tagClose)
	inner := l.input[l.pos+len(tagOpen) : l.pos+len(tagOpen)+end]
	l.pos += len(tagOpen) + end + len(tagClose)
	l.emit(tokenTag, strings.TrimSpace(inner))
	return lexText
}
