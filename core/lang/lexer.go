package lang

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Lexer scans source text into a token stream. It is total: every input
// yields either tokens or a *LexError with the offending span.
type Lexer struct {
	src      string
	start    int // start offset of the current token
	cur      int // current offset
	tokens   []Token
	comments []Token
}

// NewLexer returns a lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src}
}

// Lex tokenizes the whole input, ignoring an optional leading #! line.
func Lex(src string) ([]Token, error) {
	return NewLexer(src).Run()
}

// Run scans all tokens. The returned slice always ends with TokEOF on
// success.
func (l *Lexer) Run() ([]Token, error) {
	if strings.HasPrefix(l.src, "#!") {
		for l.cur < len(l.src) && l.src[l.cur] != '\n' {
			l.cur++
		}
		l.start = l.cur
	}

	for !l.atEnd() {
		l.start = l.cur
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}
	l.start = l.cur
	l.emit(TokEOF)
	return l.tokens, nil
}

// Comments returns the comment tokens seen so far, for reformatters.
func (l *Lexer) Comments() []Token { return l.comments }

func (l *Lexer) atEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() byte {
	if l.atEnd() {
		return 0
	}
	return l.src[l.cur]
}

func (l *Lexer) peekAt(n int) byte {
	if l.cur+n >= len(l.src) {
		return 0
	}
	return l.src[l.cur+n]
}

func (l *Lexer) advance() byte {
	ch := l.src[l.cur]
	l.cur++
	return ch
}

func (l *Lexer) match(ch byte) bool {
	if l.peek() != ch {
		return false
	}
	l.cur++
	return true
}

func (l *Lexer) span() Span { return Span{Start: l.start, End: l.cur} }

func (l *Lexer) emit(kind TokenKind) *Token {
	l.tokens = append(l.tokens, Token{
		Kind: kind,
		Text: l.src[l.start:l.cur],
		Span: l.span(),
	})
	return &l.tokens[len(l.tokens)-1]
}

func (l *Lexer) errf(format string, args ...interface{}) error {
	return &LexError{Msg: fmt.Sprintf(format, args...), Span: l.span()}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}
func isIdentByte(b byte) bool { return isAlpha(b) || isDigit(b) || b == '-' }

func (l *Lexer) scanToken() error {
	ch := l.advance()
	switch ch {
	case ' ', '\t', '\r':
		return nil
	case '\\':
		if l.match('\n') {
			return nil // line continuation
		}
		return l.errf("stray %q", "\\")
	case '\n':
		l.emit(TokNewline)
		return nil
	case '#':
		for !l.atEnd() && l.peek() != '\n' {
			l.advance()
		}
		l.comments = append(l.comments, Token{Kind: TokComment, Text: l.src[l.start:l.cur], Span: l.span()})
		return nil
	case '`':
		return l.errf("backtick substitution is not supported")
	case '|':
		l.match('|')
		l.emit(TokOp)
		return nil
	case '&':
		if !l.match('&') {
			l.match('>')
		}
		l.emit(TokOp)
		return nil
	case ';', ':', ',', '(', ')', '{', '}':
		l.emit(TokOp)
		return nil
	case '<':
		l.emit(TokOp)
		return nil
	case '>':
		l.match('>')
		l.emit(TokOp)
		return nil
	case '[':
		l.match('[')
		l.emit(TokOp)
		return nil
	case ']':
		l.match(']')
		l.emit(TokOp)
		return nil
	case '=':
		if !l.match('=') {
			l.match('~')
		}
		l.emit(TokOp)
		return nil
	case '!':
		if l.match('=') || l.match('~') {
			l.emit(TokOp)
			return nil
		}
		return l.errf("stray %q", "!")
	case '.':
		if l.match('.') {
			l.emit(TokOp) // "..", rejected by the parser with a brace-expansion hint
			return nil
		}
		if isDigit(l.peek()) {
			for isDigit(l.peek()) {
				l.advance()
			}
			return l.errf("float literals require digits on both sides of the decimal point")
		}
		if l.peek() == '/' {
			return l.scanBareword() // ./relative/path
		}
		l.emit(TokOp) // "." — source directive in statement position
		return nil
	case '/', '~', '*':
		return l.scanBareword()
	case '\'':
		return l.scanSingleQuoted()
	case '"':
		return l.scanDoubleQuoted()
	case '$':
		return l.scanDollar()
	case '-':
		if isDigit(l.peek()) {
			return l.scanNumber()
		}
		if l.match('-') {
			return l.scanFlag()
		}
		if isAlpha(l.peek()) {
			return l.scanFlag()
		}
		return l.errf("stray %q", "-")
	case '+':
		if isDigit(l.peek()) {
			return l.scanNumber()
		}
		// set +e
		if isAlpha(l.peek()) {
			for isIdentByte(l.peek()) {
				l.advance()
			}
			l.emit(TokOp)
			return nil
		}
		return l.errf("stray %q", "+")
	default:
		switch {
		case ch == '2' && l.peek() == '>':
			l.advance()
			l.emit(TokOp) // "2>"
			return nil
		case isDigit(ch):
			return l.scanNumber()
		case isAlpha(ch):
			return l.scanIdent()
		default:
			return l.errf("stray byte %q", string(rune(ch)))
		}
	}
}

// isBarewordByte reports whether b may continue an unquoted word such as a
// path or glob pattern.
func isBarewordByte(b byte) bool {
	switch b {
	case 0, ' ', '\t', '\r', '\n',
		'|', '&', ';', '(', ')', '<', '>',
		'"', '\'', '$', '#', '=', ',', ':',
		'[', ']', '{', '}', '`', '\\':
		return false
	}
	return true
}

// scanBareword consumes an unquoted word (path, glob) as a plain identifier
// token. Never keyword-classified.
func (l *Lexer) scanBareword() error {
	for isBarewordByte(l.peek()) {
		l.advance()
	}
	l.emit(TokIdent)
	return nil
}

func (l *Lexer) scanIdent() error {
	for isIdentByte(l.peek()) {
		l.advance()
	}
	// Dotted continuation for namespaced tools: srv.tool
	for l.peek() == '.' && isAlpha(l.peekAt(1)) {
		l.advance()
		for isIdentByte(l.peek()) {
			l.advance()
		}
	}
	// A word that runs into a path or glob character keeps going as a
	// bareword: src/main.c, out*.log
	if l.peek() == '/' || l.peek() == '*' || l.peek() == '?' {
		return l.scanBareword()
	}

	text := l.src[l.start:l.cur]
	switch {
	case text == "true" || text == "false":
		tok := l.emit(TokBool)
		tok.Bool = text == "true"
	case IsKeyword(text) && !strings.Contains(text, "."):
		l.emit(TokKeyword)
	default:
		l.emit(TokIdent)
	}
	return nil
}

func (l *Lexer) scanNumber() error {
	for isDigit(l.peek()) {
		l.advance()
	}
	isFloat := false
	if l.peek() == '.' {
		switch {
		case isDigit(l.peekAt(1)):
			isFloat = true
			l.advance()
			for isDigit(l.peek()) {
				l.advance()
			}
		case l.peekAt(1) == '.':
			// "1..3" — leave ".." for the parser to reject.
		default:
			l.advance()
			return l.errf("float literals require digits on both sides of the decimal point")
		}
	}

	text := l.src[l.start:l.cur]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return l.errf("invalid float literal %q", text)
		}
		tok := l.emit(TokFloat)
		tok.Float = f
		return nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return l.errf("integer literal %q out of range", text)
	}
	tok := l.emit(TokInt)
	tok.Int = n
	return nil
}

func (l *Lexer) scanFlag() error {
	if !isAlpha(l.peek()) {
		return l.errf("flag name expected after %q", l.src[l.start:l.cur])
	}
	nameStart := l.cur
	for isIdentByte(l.peek()) {
		l.advance()
	}
	tok := l.emit(TokFlag)
	tok.Str = l.src[nameStart:tok.Span.End]
	return nil
}

func (l *Lexer) scanSingleQuoted() error {
	valStart := l.cur
	for !l.atEnd() && l.peek() != '\'' {
		l.advance()
	}
	if l.atEnd() {
		return l.errf("unterminated string")
	}
	val := l.src[valStart:l.cur]
	l.advance() // closing quote
	tok := l.emit(TokString)
	tok.Str = val
	return nil
}

func (l *Lexer) scanDoubleQuoted() error {
	var parts []*StrPart
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			parts = append(parts, &StrPart{Text: text.String()})
			text.Reset()
		}
	}

	for {
		if l.atEnd() {
			return l.errf("unterminated string")
		}
		ch := l.advance()
		switch ch {
		case '"':
			flush()
			if len(parts) == 1 && parts[0].Ref == nil {
				tok := l.emit(TokString)
				tok.Str = parts[0].Text
			} else if len(parts) == 0 {
				tok := l.emit(TokString)
				tok.Str = ""
			} else {
				tok := l.emit(TokInterp)
				tok.Parts = parts
			}
			return nil
		case '\\':
			if l.atEnd() {
				return l.errf("unterminated string")
			}
			esc := l.advance()
			switch esc {
			case 'n':
				text.WriteByte('\n')
			case 't':
				text.WriteByte('\t')
			case 'r':
				text.WriteByte('\r')
			case '\\':
				text.WriteByte('\\')
			case '"':
				text.WriteByte('"')
			case '$':
				text.WriteByte('$')
			case 'u':
				r, err := l.scanUnicodeEscape()
				if err != nil {
					return err
				}
				text.WriteRune(r)
			default:
				return l.errf("invalid escape %q", "\\"+string(rune(esc)))
			}
		case '$':
			ref, lit, err := l.scanRefAfterDollar()
			if err != nil {
				return err
			}
			if ref == nil {
				text.WriteString(lit)
				continue
			}
			flush()
			parts = append(parts, &StrPart{Ref: ref})
		default:
			text.WriteByte(ch)
		}
	}
}

func (l *Lexer) scanUnicodeEscape() (rune, error) {
	hex := func() (int, error) {
		v := 0
		for i := 0; i < 4; i++ {
			if l.atEnd() {
				return 0, l.errf("invalid \\u escape")
			}
			d, err := strconv.ParseInt(string(l.advance()), 16, 32)
			if err != nil {
				return 0, l.errf("invalid \\u escape")
			}
			v = v*16 + int(d)
		}
		return v, nil
	}
	v, err := hex()
	if err != nil {
		return 0, err
	}
	r := rune(v)
	// Surrogate pairs per JSON string rules.
	if utf16.IsSurrogate(r) && l.peek() == '\\' && l.peekAt(1) == 'u' {
		l.advance()
		l.advance()
		v2, err := hex()
		if err != nil {
			return 0, err
		}
		return utf16.DecodeRune(r, rune(v2)), nil
	}
	return r, nil
}

func (l *Lexer) scanDollar() error {
	ref, _, err := l.scanRefAfterDollar()
	if err != nil {
		return err
	}
	if ref == nil {
		// $( — command substitution start.
		l.emit(TokOp)
		return nil
	}
	ref.Span = l.span()
	tok := l.emit(TokVarRef)
	tok.Ref = ref
	return nil
}

// scanRefAfterDollar scans the reference following a consumed '$'. Returns
// (nil, "", nil) when the '$' starts a command substitution `$(`; inside
// strings a bare '$' with no reference is returned as literal text.
func (l *Lexer) scanRefAfterDollar() (*VarRef, string, error) {
	switch {
	case l.peek() == '(':
		if l.peekAt(1) == '(' {
			return nil, "", l.errf("arithmetic expansion is not supported")
		}
		l.advance()
		return nil, "", nil
	case l.peek() == '{':
		l.advance()
		return l.scanBracedRef()
	case l.peek() == '?':
		l.advance()
		return &VarRef{Path: []Seg{{Kind: SegField, Field: "?"}}, Span: l.span()}, "", nil
	case l.peek() == '@':
		l.advance()
		return &VarRef{Path: []Seg{{Kind: SegField, Field: "@"}}, Span: l.span()}, "", nil
	case l.peek() == '#':
		l.advance()
		return &VarRef{Path: []Seg{{Kind: SegField, Field: "#"}}, Span: l.span()}, "", nil
	case isDigit(l.peek()):
		d := l.advance()
		return &VarRef{Path: []Seg{{Kind: SegField, Field: string(rune(d))}}, Span: l.span()}, "", nil
	case isAlpha(l.peek()):
		nameStart := l.cur
		for isAlpha(l.peek()) || isDigit(l.peek()) {
			l.advance()
		}
		name := l.src[nameStart:l.cur]
		return &VarRef{Path: []Seg{{Kind: SegField, Field: name}}, Span: l.span()}, "", nil
	default:
		return nil, "", l.errf("%q must be followed by a variable name, '{' or '('", "$")
	}
}

// scanBracedRef scans the interior of `${...}`: a path with optional
// `.field` and `[index]` segments, the `${#V}` length form, and the
// `${V:-default}` default form.
func (l *Lexer) scanBracedRef() (*VarRef, string, error) {
	ref := &VarRef{}

	if l.peek() == '#' {
		l.advance()
		ref.Length = true
	}

	// Root name.
	switch {
	case l.peek() == '?':
		l.advance()
		ref.Path = append(ref.Path, Seg{Kind: SegField, Field: "?"})
	case l.peek() == '@':
		l.advance()
		ref.Path = append(ref.Path, Seg{Kind: SegField, Field: "@"})
	case isDigit(l.peek()):
		ref.Path = append(ref.Path, Seg{Kind: SegField, Field: string(rune(l.advance()))})
	case isAlpha(l.peek()):
		nameStart := l.cur
		for isAlpha(l.peek()) || isDigit(l.peek()) {
			l.advance()
		}
		ref.Path = append(ref.Path, Seg{Kind: SegField, Field: l.src[nameStart:l.cur]})
	default:
		return nil, "", l.errf("invalid variable reference")
	}

	// Path segments.
	for {
		switch {
		case l.peek() == '.':
			l.advance()
			if !isAlpha(l.peek()) {
				return nil, "", l.errf("field name expected after %q", ".")
			}
			fieldStart := l.cur
			for isAlpha(l.peek()) || isDigit(l.peek()) {
				l.advance()
			}
			ref.Path = append(ref.Path, Seg{Kind: SegField, Field: l.src[fieldStart:l.cur]})
		case l.peek() == '[':
			l.advance()
			idxStart := l.cur
			if l.peek() == '-' {
				l.advance()
			}
			for isDigit(l.peek()) {
				l.advance()
			}
			if l.cur == idxStart || l.src[l.cur-1] == '-' || l.peek() != ']' {
				return nil, "", l.errf("integer index expected in %q", "[...]")
			}
			idx, _ := strconv.Atoi(l.src[idxStart:l.cur])
			l.advance() // ']'
			ref.Path = append(ref.Path, Seg{Kind: SegIndex, Index: idx})
		default:
			goto segmentsDone
		}
	}
segmentsDone:

	// Default form.
	if l.peek() == ':' && l.peekAt(1) == '-' {
		l.advance()
		l.advance()
		defStart := l.cur
		for !l.atEnd() && l.peek() != '}' {
			l.advance()
		}
		if l.atEnd() {
			return nil, "", l.errf("unterminated %q", "${...}")
		}
		raw := l.src[defStart:l.cur]
		ref.Default = parseInlineDefault(raw, Span{Start: defStart, End: l.cur})
	}

	if !l.match('}') {
		return nil, "", l.errf("unterminated %q", "${...}")
	}
	ref.Span = l.span()
	return ref, "", nil
}

// parseInlineDefault interprets the raw text of a ${V:-...} default as an
// inline value: quoted string, integer, float, boolean, or bare string.
func parseInlineDefault(raw string, span Span) Expr {
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		return &StringLit{V: raw[1 : len(raw)-1], Span: span}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return &IntLit{V: n, Span: span}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && strings.Contains(raw, ".") {
		return &FloatLit{V: f, Span: span}
	}
	if raw == "true" || raw == "false" {
		return &BoolLit{V: raw == "true", Span: span}
	}
	return &StringLit{V: raw, Span: span}
}
