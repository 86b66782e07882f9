package lang

import (
	"fmt"
	"strings"
)

// LexError reports a lexical failure at a source span.
type LexError struct {
	Msg  string
	Span Span
}

func (e *LexError) Error() string { return fmt.Sprintf("lex error: %s", e.Msg) }

// ParseError reports a syntactic failure at a source span.
type ParseError struct {
	Msg  string
	Span Span
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse error: %s", e.Msg) }

// RenderError formats a lex or parse error as a caret-annotated snippet:
//
//	parse error in script.ksh at 3:12: unexpected token ')'
//
//	   3 | echo (oops)
//	     |      ^
//
// Other errors are returned unchanged by Error{,f} formatting; callers
// should only pass *LexError or *ParseError.
func RenderError(err error, srcName, src string) string {
	var label, msg string
	var span Span
	switch e := err.(type) {
	case *LexError:
		label, msg, span = "lex error", e.Msg, e.Span
	case *ParseError:
		label, msg, span = "parse error", e.Msg, e.Span
	default:
		return err.Error()
	}

	line, col := span.LineCol(src)
	var b strings.Builder
	if srcName != "" {
		fmt.Fprintf(&b, "%s in %s at %d:%d: %s\n\n", label, srcName, line, col, msg)
	} else {
		fmt.Fprintf(&b, "%s at %d:%d: %s\n\n", label, line, col, msg)
	}

	lines := strings.Split(src, "\n")
	if line >= 1 && line <= len(lines) {
		if line > 1 {
			fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
		}
		fmt.Fprintf(&b, "%4d | %s\n", line, lines[line-1])
		fmt.Fprintf(&b, "     | %s^\n", strings.Repeat(" ", col-1))
	}
	return b.String()
}
