package lang

import "fmt"

// Span is a half-open byte range [Start, End) into the source text.
type Span struct {
	Start int
	End   int
}

func (s Span) String() string { return fmt.Sprintf("%d..%d", s.Start, s.End) }

// LineCol converts the span's start offset to a 1-based line and column
// within src.
func (s Span) LineCol(src string) (line, col int) {
	line, col = 1, 1
	for i := 0; i < s.Start && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return
}

// TokenKind identifies the lexical class of a token.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokNewline
	TokIdent   // command or variable name, possibly dotted (srv.tool)
	TokKeyword // reserved word, see keywords map
	TokInt
	TokFloat
	TokBool
	TokString // single-quoted or interpolation-free double-quoted
	TokInterp // double-quoted string with ${...} parts, Parts field set
	TokVarRef // $NAME or ${path}, Ref field set
	TokFlag   // -x or --name, possibly --name=value
	TokOp     // operator or punctuation, Text holds the exact spelling
	TokComment
)

func (k TokenKind) String() string {
	switch k {
	case TokEOF:
		return "end of input"
	case TokNewline:
		return "newline"
	case TokIdent:
		return "identifier"
	case TokKeyword:
		return "keyword"
	case TokInt:
		return "integer"
	case TokFloat:
		return "float"
	case TokBool:
		return "boolean"
	case TokString:
		return "string"
	case TokInterp:
		return "string"
	case TokVarRef:
		return "variable reference"
	case TokFlag:
		return "flag"
	case TokOp:
		return "operator"
	case TokComment:
		return "comment"
	}
	return "token"
}

// Token is a single lexical unit with its source span.
type Token struct {
	Kind TokenKind
	Text string // raw source slice
	Span Span

	// Literal payloads, set depending on Kind.
	Int   int64       // TokInt
	Float float64     // TokFloat
	Bool  bool        // TokBool
	Str   string      // TokString: decoded value
	Parts []*StrPart  // TokInterp: literal chunks and references
	Ref   *VarRef     // TokVarRef
}

// Reserved words. These may not be used as command or variable names.
var keywords = map[string]bool{
	"if": true, "then": true, "elif": true, "else": true, "fi": true,
	"for": true, "in": true, "do": true, "done": true, "while": true,
	"break": true, "continue": true, "return": true, "exit": true,
	"set": true, "local": true, "tool": true, "function": true,
	"source": true,
}

// IsKeyword reports whether name is reserved.
func IsKeyword(name string) bool { return keywords[name] }
