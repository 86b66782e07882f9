package lang

import (
	"fmt"
	"strings"
)

// Parser builds a Program from a token stream. The grammar is LL(k): every
// statement is distinguished by its leading token, and ambiguity is an
// error rather than a guess.
type Parser struct {
	src  string
	toks []Token
	pos  int
}

// Parse lexes and parses src into a Program.
func Parse(src string) (*Program, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{src: src, toks: toks}
	return p.parseProgram()
}

// ParseStatement parses a single statement, for the REPL.
func ParseStatement(src string) (Stmt, error) {
	prog, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if len(prog.Stmts) == 0 {
		return nil, &ParseError{Msg: "empty input", Span: Span{0, len(src)}}
	}
	return prog.Stmts[0], nil
}

func (p *Parser) cur() *Token  { return &p.toks[p.pos] }
func (p *Parser) next() *Token { p.pos++; return &p.toks[p.pos-1] }

func (p *Parser) peekKind(k TokenKind) bool { return p.cur().Kind == k }
func (p *Parser) peekOp(text string) bool {
	return p.cur().Kind == TokOp && p.cur().Text == text
}
func (p *Parser) peekKeyword(name string) bool {
	return p.cur().Kind == TokKeyword && p.cur().Text == name
}

func (p *Parser) matchOp(text string) bool {
	if p.peekOp(text) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) matchKeyword(name string) bool {
	if p.peekKeyword(name) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) errf(span Span, format string, args ...interface{}) error {
	return &ParseError{Msg: fmt.Sprintf(format, args...), Span: span}
}

func (p *Parser) errHere(format string, args ...interface{}) error {
	return p.errf(p.cur().Span, format, args...)
}

func (p *Parser) expectOp(text string) (*Token, error) {
	if !p.peekOp(text) {
		return nil, p.errHere("expected %q, found %s", text, p.describe(p.cur()))
	}
	return p.next(), nil
}

func (p *Parser) expectKeyword(name string) (*Token, error) {
	if !p.peekKeyword(name) {
		return nil, p.errHere("expected %q, found %s", name, p.describe(p.cur()))
	}
	return p.next(), nil
}

func (p *Parser) describe(t *Token) string {
	if t.Kind == TokEOF {
		return "end of input"
	}
	if t.Kind == TokNewline {
		return "newline"
	}
	return fmt.Sprintf("%q", t.Text)
}

// skipTerminators consumes newlines and semicolons.
func (p *Parser) skipTerminators() {
	for p.peekKind(TokNewline) || p.peekOp(";") {
		p.pos++
	}
}

// skipNewlines consumes newlines only, for contexts where they are
// insignificant (value literals, tests, parentheses).
func (p *Parser) skipNewlines() {
	for p.peekKind(TokNewline) {
		p.pos++
	}
}

// requireTerminator checks that the current statement is properly ended.
func (p *Parser) requireTerminator() error {
	t := p.cur()
	switch {
	case t.Kind == TokNewline || t.Kind == TokEOF:
		return nil
	case t.Kind == TokOp && (t.Text == ";" || t.Text == ")" || t.Text == "}"):
		return nil
	case t.Kind == TokKeyword:
		switch t.Text {
		case "then", "do", "fi", "done", "else", "elif":
			return nil
		}
	}
	return p.errHere("unexpected %s after statement", p.describe(t))
}

// splitDoubleBracket splits a merged "[[", "]]" token into its halves so
// nested array literals like [[1],[2]] parse. Returns true if the current
// token now is the single form.
func (p *Parser) splitDoubleBracket(double, single string) bool {
	t := p.cur()
	if t.Kind == TokOp && t.Text == double {
		mid := t.Span.Start + 1
		first := Token{Kind: TokOp, Text: single, Span: Span{t.Span.Start, mid}}
		second := Token{Kind: TokOp, Text: single, Span: Span{mid, t.Span.End}}
		rest := append([]Token{first, second}, p.toks[p.pos+1:]...)
		p.toks = append(p.toks[:p.pos:p.pos], rest...)
		return true
	}
	return t.Kind == TokOp && t.Text == single
}

func (p *Parser) parseProgram() (*Program, error) {
	prog := &Program{}
	p.skipTerminators()
	for !p.peekKind(TokEOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if err := p.requireTerminator(); err != nil {
			return nil, err
		}
		prog.Stmts = append(prog.Stmts, stmt)
		p.skipTerminators()
	}
	return prog, nil
}

// parseStatement parses one statement including logical chains.
func (p *Parser) parseStatement() (Stmt, error) {
	left, err := p.parseStatementPrimary()
	if err != nil {
		return nil, err
	}
	for {
		var op ChainOp
		switch {
		case p.peekOp("&&"):
			op = ChainAnd
		case p.peekOp("||"):
			op = ChainOr
		default:
			return left, nil
		}
		opTok := p.next()
		p.skipNewlines()
		right, err := p.parseStatementPrimary()
		if err != nil {
			return nil, err
		}
		left = &ChainStmt{
			Left: left, Op: op, Right: right,
			Span: Span{left.StmtSpan().Start, right.StmtSpan().End},
		}
		_ = opTok
	}
}

func (p *Parser) parseStatementPrimary() (Stmt, error) {
	t := p.cur()
	switch t.Kind {
	case TokKeyword:
		switch t.Text {
		case "if":
			return p.parseIf()
		case "for":
			return p.parseFor()
		case "while":
			return p.parseWhile()
		case "break", "continue":
			return p.parseBreakContinue()
		case "return", "exit":
			return p.parseReturnExit()
		case "tool", "function":
			return p.parseToolDef()
		case "source":
			p.pos++
			return p.parseSourceTail(t.Span)
		case "local":
			return p.parseLocalAssign()
		case "set":
			return p.parseSet()
		default:
			return nil, p.errHere("unexpected keyword %q", t.Text)
		}
	case TokIdent:
		// Assignment when followed by '=' (spaces allowed here only).
		if p.toks[p.pos+1].Kind == TokOp && p.toks[p.pos+1].Text == "=" {
			return p.parseAssign(false)
		}
		return p.parsePipeline()
	case TokOp:
		switch t.Text {
		case "[[":
			return p.parseTest()
		case "[":
			return nil, p.errHere("single-bracket test is not supported; use [[ ... ]]")
		case ".":
			p.pos++
			return p.parseSourceTail(t.Span)
		}
	case TokVarRef, TokString, TokInterp, TokInt, TokFloat, TokBool:
		// Bare expression, valid only in condition position; allow it and
		// let truthiness apply.
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ExprStmt{E: e, Span: e.ExprSpan()}, nil
	}
	return nil, p.errHere("unexpected %s at start of statement", p.describe(t))
}

func (p *Parser) parseAssign(local bool) (Stmt, error) {
	name := p.next()
	if !isSimpleName(name.Text) {
		return nil, p.errf(name.Span, "invalid variable name %q", name.Text)
	}
	if _, err := p.expectOp("="); err != nil {
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &AssignStmt{
		Name: name.Text, Value: val, Local: local,
		Span: Span{name.Span.Start, val.ExprSpan().End},
	}, nil
}

func (p *Parser) parseLocalAssign() (Stmt, error) {
	kw := p.next() // local
	if !p.peekKind(TokIdent) {
		return nil, p.errHere("variable name expected after %q", "local")
	}
	stmt, err := p.parseAssign(true)
	if err != nil {
		return nil, err
	}
	as := stmt.(*AssignStmt)
	as.Span.Start = kw.Span.Start
	return as, nil
}

func (p *Parser) parseSet() (Stmt, error) {
	kw := p.next() // set
	t := p.cur()
	switch {
	case t.Kind == TokFlag && t.Str == "e" && t.Text == "-e":
		p.pos++
		return &SetStmt{Option: "e", Enable: true, Span: Span{kw.Span.Start, t.Span.End}}, nil
	case t.Kind == TokOp && t.Text == "+e":
		p.pos++
		return &SetStmt{Option: "e", Enable: false, Span: Span{kw.Span.Start, t.Span.End}}, nil
	}
	return nil, p.errHere("set supports only -e and +e")
}

func (p *Parser) parseSourceTail(start Span) (Stmt, error) {
	path, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &SourceStmt{Path: path, Span: Span{start.Start, path.ExprSpan().End}}, nil
}

func (p *Parser) parseBreakContinue() (Stmt, error) {
	kw := p.next()
	level := 1
	end := kw.Span.End
	if p.peekKind(TokInt) {
		t := p.next()
		level = int(t.Int)
		end = t.Span.End
	}
	span := Span{kw.Span.Start, end}
	if kw.Text == "break" {
		return &BreakStmt{Level: level, Span: span}, nil
	}
	return &ContinueStmt{Level: level, Span: span}, nil
}

func (p *Parser) parseReturnExit() (Stmt, error) {
	kw := p.next()
	var code Expr
	end := kw.Span.End
	if p.peekKind(TokInt) || p.peekKind(TokVarRef) {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		code = e
		end = e.ExprSpan().End
	}
	span := Span{kw.Span.Start, end}
	if kw.Text == "return" {
		return &ReturnStmt{Code: code, Span: span}, nil
	}
	return &ExitStmt{Code: code, Span: span}, nil
}

// parseCondition parses the condition of if/while: a test, a pipeline, or
// a bare expression, with logical chaining.
func (p *Parser) parseCondition() (Stmt, error) {
	var left Stmt
	var err error
	switch {
	case p.peekOp("[["):
		left, err = p.parseTest()
	case p.peekKind(TokIdent) || p.peekKind(TokKeyword):
		if p.peekKind(TokKeyword) {
			return nil, p.errHere("unexpected keyword %q in condition", p.cur().Text)
		}
		left, err = p.parsePipeline()
	default:
		e, eerr := p.parseExpr()
		if eerr != nil {
			return nil, eerr
		}
		left = &ExprStmt{E: e, Span: e.ExprSpan()}
	}
	if err != nil {
		return nil, err
	}
	for {
		var op ChainOp
		switch {
		case p.peekOp("&&"):
			op = ChainAnd
		case p.peekOp("||"):
			op = ChainOr
		default:
			return left, nil
		}
		p.pos++
		p.skipNewlines()
		right, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		left = &ChainStmt{Left: left, Op: op, Right: right,
			Span: Span{left.StmtSpan().Start, right.StmtSpan().End}}
	}
}

func (p *Parser) parseIf() (Stmt, error) {
	kw := p.next() // if
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	p.skipTerminators()
	if _, err := p.expectKeyword("then"); err != nil {
		return nil, err
	}
	thenBody, err := p.parseBlock("fi", "elif", "else")
	if err != nil {
		return nil, err
	}

	stmt := &IfStmt{Cond: cond, Then: thenBody}
	for p.peekKeyword("elif") {
		p.pos++
		c, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		p.skipTerminators()
		if _, err := p.expectKeyword("then"); err != nil {
			return nil, err
		}
		body, err := p.parseBlock("fi", "elif", "else")
		if err != nil {
			return nil, err
		}
		stmt.Elifs = append(stmt.Elifs, ElifClause{Cond: c, Body: body})
	}
	if p.matchKeyword("else") {
		body, err := p.parseBlock("fi")
		if err != nil {
			return nil, err
		}
		stmt.Else = body
	}
	fi, err := p.expectKeyword("fi")
	if err != nil {
		return nil, err
	}
	stmt.Span = Span{kw.Span.Start, fi.Span.End}
	return stmt, nil
}

func (p *Parser) parseFor() (Stmt, error) {
	kw := p.next() // for
	if !p.peekKind(TokIdent) {
		return nil, p.errHere("loop variable expected after %q", "for")
	}
	v := p.next()
	if _, err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	src, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipTerminators()
	if _, err := p.expectKeyword("do"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock("done")
	if err != nil {
		return nil, err
	}
	done, err := p.expectKeyword("done")
	if err != nil {
		return nil, err
	}
	return &ForStmt{Var: v.Text, Source: src, Body: body,
		Span: Span{kw.Span.Start, done.Span.End}}, nil
}

func (p *Parser) parseWhile() (Stmt, error) {
	kw := p.next() // while
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	p.skipTerminators()
	if _, err := p.expectKeyword("do"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock("done")
	if err != nil {
		return nil, err
	}
	done, err := p.expectKeyword("done")
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Cond: cond, Body: body,
		Span: Span{kw.Span.Start, done.Span.End}}, nil
}

// parseBlock parses statements until one of the stop keywords or a closing
// brace. The stop token is left for the caller.
func (p *Parser) parseBlock(stops ...string) ([]Stmt, error) {
	var body []Stmt
	p.skipTerminators()
	for {
		if p.peekKind(TokEOF) {
			return nil, p.errHere("unexpected end of input, expected %q", stops[0])
		}
		if p.peekOp("}") {
			return body, nil
		}
		if p.cur().Kind == TokKeyword {
			for _, s := range stops {
				if p.cur().Text == s {
					return body, nil
				}
			}
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if err := p.requireTerminator(); err != nil {
			return nil, err
		}
		body = append(body, stmt)
		p.skipTerminators()
	}
}

func (p *Parser) parseToolDef() (Stmt, error) {
	kw := p.next() // tool | function
	if !p.peekKind(TokIdent) {
		return nil, p.errHere("tool name expected after %q", kw.Text)
	}
	name := p.next()
	if !isSimpleName(name.Text) {
		return nil, p.errf(name.Span, "invalid tool name %q", name.Text)
	}

	var params []ParamDef
	var err error
	if p.matchOp("(") {
		params, err = p.parseParams(")")
		if err != nil {
			return nil, err
		}
		if _, err := p.expectOp(")"); err != nil {
			return nil, err
		}
	} else if p.peekKind(TokIdent) {
		// Paren-less header: `tool greet name:string count:int=1 { ... }`
		params, err = p.parseParams("{")
		if err != nil {
			return nil, err
		}
	}

	open, err := p.expectOp("{")
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	close, err := p.expectOp("}")
	if err != nil {
		return nil, err
	}

	return &ToolDefStmt{
		Name:   name.Text,
		Params: params,
		Body:   body,
		Source: strings.TrimSpace(p.src[open.Span.End:close.Span.Start]),
		Span:   Span{kw.Span.Start, close.Span.End},
	}, nil
}

// parseParams reads parameter declarations until the given closer. Commas
// between declarations are optional in the paren-less form.
func (p *Parser) parseParams(closer string) ([]ParamDef, error) {
	var params []ParamDef
	p.skipNewlines()
	for p.peekKind(TokIdent) {
		name := p.next()
		def := ParamDef{Name: name.Text, Type: ParamString}
		if p.matchOp(":") {
			if !p.peekKind(TokIdent) {
				return nil, p.errHere("parameter type expected after %q", ":")
			}
			tname := p.next()
			pt, ok := ParamTypeByName(tname.Text)
			if !ok {
				return nil, p.errf(tname.Span, "unknown parameter type %q", tname.Text)
			}
			def.Type = pt
		}
		if p.matchOp("=") {
			d, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			def.Default = d
		}
		params = append(params, def)
		p.matchOp(",")
		p.skipNewlines()
		if p.peekOp(closer) {
			break
		}
	}
	return params, nil
}

// isSimpleName reports whether s is a plain identifier: letters, digits
// and underscores, not starting with a digit.
func isSimpleName(s string) bool {
	if s == "" || isDigit(s[0]) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isAlpha(s[i]) && !isDigit(s[i]) {
			return false
		}
	}
	return true
}

// ParamTypeByName maps a declared type name to its ParamType.
func ParamTypeByName(name string) (ParamType, bool) {
	switch name {
	case "string", "str":
		return ParamString, true
	case "int":
		return ParamInt, true
	case "float", "num":
		return ParamFloat, true
	case "bool":
		return ParamBool, true
	case "array":
		return ParamArray, true
	case "object":
		return ParamObject, true
	}
	return 0, false
}

func (p *Parser) parseTest() (Stmt, error) {
	open, err := p.expectOp("[[")
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()

	stmt := &TestStmt{Left: left}
	t := p.cur()
	switch {
	case t.Kind == TokOp && (t.Text == "==" || t.Text == "!=" || t.Text == "=~" || t.Text == "!~"):
		stmt.Op = t.Text
		p.pos++
	case t.Kind == TokFlag && isTestFlag(t.Str):
		stmt.Op = "-" + t.Str
		p.pos++
	case t.Kind == TokOp && (t.Text == "<" || t.Text == ">"):
		return nil, p.errHere("use -lt/-gt for numeric comparison")
	}
	if stmt.Op != "" {
		p.skipNewlines()
		right, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Right = right
		p.skipNewlines()
	}

	close, err := p.expectOp("]]")
	if err != nil {
		return nil, err
	}
	stmt.Span = Span{open.Span.Start, close.Span.End}
	return stmt, nil
}

func isTestFlag(name string) bool {
	switch name {
	case "eq", "ne", "lt", "gt", "le", "ge":
		return true
	}
	return false
}

// parsePipeline parses `cmd | cmd | ... [&]`.
func (p *Parser) parsePipeline() (Stmt, error) {
	first, err := p.parseCommand()
	if err != nil {
		return nil, err
	}
	pipe := &PipelineStmt{Cmds: []*CommandStmt{first}, Span: first.Span}

	for p.peekOp("|") {
		p.pos++
		p.skipNewlines()
		cmd, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		pipe.Cmds = append(pipe.Cmds, cmd)
		pipe.Span.End = cmd.Span.End
	}
	if p.peekOp("&") {
		t := p.next()
		pipe.Background = true
		pipe.Span.End = t.Span.End
	}

	if len(pipe.Cmds) == 1 && !pipe.Background {
		return pipe.Cmds[0], nil
	}
	return pipe, nil
}

// parseCommand parses a simple command: head, arguments, redirects.
func (p *Parser) parseCommand() (*CommandStmt, error) {
	if p.cur().Kind == TokKeyword {
		return nil, p.errHere("reserved word %q cannot be used as a command name", p.cur().Text)
	}
	if !p.peekKind(TokIdent) {
		return nil, p.errHere("command name expected, found %s", p.describe(p.cur()))
	}
	head := p.next()
	cmd := &CommandStmt{Name: head.Text, Span: head.Span}

	for {
		t := p.cur()
		switch {
		case t.Kind == TokNewline || t.Kind == TokEOF:
			return cmd, nil
		case t.Kind == TokOp:
			switch t.Text {
			case ";", "|", "&", "&&", "||", ")", "}":
				return cmd, nil
			case ">", ">>", "<", "2>", "&>":
				r, err := p.parseRedirect()
				if err != nil {
					return nil, err
				}
				cmd.Redirects = append(cmd.Redirects, *r)
				cmd.Span.End = r.Span.End
				continue
			}
		case t.Kind == TokKeyword:
			switch t.Text {
			case "then", "do", "fi", "done", "else", "elif":
				return cmd, nil
			}
			// Keyword in argument position is a bare word.
			p.pos++
			cmd.Args = append(cmd.Args, Arg{Kind: ArgPositional,
				Value: &StringLit{V: t.Text, Span: t.Span}, Span: t.Span})
			cmd.Span.End = t.Span.End
			continue
		}

		arg, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		cmd.Args = append(cmd.Args, *arg)
		cmd.Span.End = arg.Span.End
	}
}

func (p *Parser) parseRedirect() (*Redirect, error) {
	opTok := p.next()
	var op RedirOp
	switch opTok.Text {
	case ">":
		op = RedirStdout
	case ">>":
		op = RedirAppend
	case "<":
		op = RedirStdin
	case "2>":
		op = RedirStderr
	case "&>":
		op = RedirBoth
	}
	target, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &Redirect{Op: op, Target: target,
		Span: Span{opTok.Span.Start, target.ExprSpan().End}}, nil
}

func (p *Parser) parseArg() (*Arg, error) {
	t := p.cur()

	if t.Kind == TokFlag {
		p.pos++
		arg := &Arg{Kind: ArgFlag, Key: t.Str, Short: !strings.HasPrefix(t.Text, "--"), Span: t.Span}
		// --name=value requires adjacency.
		if !arg.Short && p.peekOp("=") && p.cur().Span.Start == t.Span.End {
			eq := p.next()
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if val.ExprSpan().Start != eq.Span.End {
				return nil, p.errf(eq.Span, "no whitespace allowed around %q in flag values", "=")
			}
			arg.Value = val
			arg.Span.End = val.ExprSpan().End
		}
		return arg, nil
	}

	// key=value named argument: identifier immediately followed by '='.
	if t.Kind == TokIdent && p.toks[p.pos+1].Kind == TokOp && p.toks[p.pos+1].Text == "=" {
		key := p.next()
		eq := p.next()
		if eq.Span.Start != key.Span.End {
			return nil, p.errf(eq.Span, "no whitespace allowed around %q in named arguments", "=")
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if val.ExprSpan().Start != eq.Span.End {
			return nil, p.errf(eq.Span, "no whitespace allowed around %q in named arguments", "=")
		}
		return &Arg{Kind: ArgNamed, Key: key.Text, Value: val,
			Span: Span{key.Span.Start, val.ExprSpan().End}}, nil
	}

	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &Arg{Kind: ArgPositional, Value: val, Span: val.ExprSpan()}, nil
}

// parseExpr parses a value expression.
func (p *Parser) parseExpr() (Expr, error) {
	t := p.cur()
	switch t.Kind {
	case TokInt:
		p.pos++
		return &IntLit{V: t.Int, Span: t.Span}, nil
	case TokFloat:
		p.pos++
		return &FloatLit{V: t.Float, Span: t.Span}, nil
	case TokBool:
		p.pos++
		return &BoolLit{V: t.Bool, Span: t.Span}, nil
	case TokString:
		p.pos++
		return &StringLit{V: t.Str, Span: t.Span}, nil
	case TokInterp:
		p.pos++
		return &InterpString{Parts: t.Parts, Span: t.Span}, nil
	case TokVarRef:
		p.pos++
		ref := *t.Ref
		ref.Span = t.Span
		return &ref, nil
	case TokIdent:
		p.pos++
		if t.Text == "null" {
			return &NullLit{Span: t.Span}, nil
		}
		return &StringLit{V: t.Text, Span: t.Span}, nil
	case TokOp:
		switch t.Text {
		case "[", "[[":
			return p.parseArrayLit()
		case "{":
			return p.parseObjectLit()
		case "$(":
			return p.parseCmdSubst()
		}
	}
	return nil, p.errHere("value expected, found %s", p.describe(t))
}

func (p *Parser) parseArrayLit() (Expr, error) {
	if !p.splitDoubleBracket("[[", "[") {
		return nil, p.errHere("expected %q", "[")
	}
	open := p.next()
	arr := &ArrayLit{Span: open.Span}
	p.skipNewlines()
	for !p.peekOp("]") && !p.peekOp("]]") {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		arr.Items = append(arr.Items, item)
		p.skipNewlines()
		if !p.matchOp(",") {
			break
		}
		p.skipNewlines()
	}
	if !p.splitDoubleBracket("]]", "]") {
		return nil, p.errHere("expected %q", "]")
	}
	close := p.next()
	arr.Span.End = close.Span.End
	return arr, nil
}

func (p *Parser) parseObjectLit() (Expr, error) {
	open, err := p.expectOp("{")
	if err != nil {
		return nil, err
	}
	obj := &ObjectLit{Span: open.Span}
	p.skipNewlines()
	for !p.peekOp("}") {
		var key string
		kt := p.cur()
		switch kt.Kind {
		case TokString:
			key = kt.Str
			p.pos++
		case TokIdent:
			key = kt.Text
			p.pos++
		case TokInt:
			// `{1..3}` — a brace range, not an object.
			if p.toks[p.pos+1].Kind == TokOp && p.toks[p.pos+1].Text == ".." {
				return nil, p.errf(open.Span, "brace expansion is not supported")
			}
			return nil, p.errHere("object key must be a string")
		default:
			return nil, p.errHere("object key expected, found %s", p.describe(kt))
		}
		if _, err := p.expectOp(":"); err != nil {
			return nil, err
		}
		p.skipNewlines()
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		obj.Keys = append(obj.Keys, key)
		obj.Vals = append(obj.Vals, val)
		p.skipNewlines()
		if !p.matchOp(",") {
			break
		}
		p.skipNewlines()
	}
	close, err := p.expectOp("}")
	if err != nil {
		return nil, err
	}
	obj.Span.End = close.Span.End
	return obj, nil
}

func (p *Parser) parseCmdSubst() (Expr, error) {
	open := p.next() // $(
	p.skipNewlines()
	stmt, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	close, err := p.expectOp(")")
	if err != nil {
		return nil, err
	}

	var pipe *PipelineStmt
	switch s := stmt.(type) {
	case *PipelineStmt:
		pipe = s
	case *CommandStmt:
		pipe = &PipelineStmt{Cmds: []*CommandStmt{s}, Span: s.Span}
	}
	if pipe.Background {
		return nil, p.errf(pipe.Span, "command substitution cannot run in background")
	}
	return &CmdSubst{Pipe: pipe, Span: Span{open.Span.Start, close.Span.End}}, nil
}
