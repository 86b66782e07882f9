package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Parse(src)
	require.NoError(t, err)
	return prog
}

func TestParseAssignment(t *testing.T) {
	prog := mustParse(t, `X = 5`)
	require.Len(t, prog.Stmts, 1)
	as := prog.Stmts[0].(*AssignStmt)
	assert.Equal(t, "X", as.Name)
	assert.False(t, as.Local)
	assert.Equal(t, int64(5), as.Value.(*IntLit).V)
}

func TestParseLocalAssignment(t *testing.T) {
	prog := mustParse(t, `local count = 0`)
	as := prog.Stmts[0].(*AssignStmt)
	assert.Equal(t, "count", as.Name)
	assert.True(t, as.Local)
}

func TestParseCommandArgs(t *testing.T) {
	prog := mustParse(t, `fetch url="http://x" retries=3 -v --force json`)
	cmd := prog.Stmts[0].(*CommandStmt)
	assert.Equal(t, "fetch", cmd.Name)
	require.Len(t, cmd.Args, 5)

	assert.Equal(t, ArgNamed, cmd.Args[0].Kind)
	assert.Equal(t, "url", cmd.Args[0].Key)
	assert.Equal(t, ArgNamed, cmd.Args[1].Kind)
	assert.Equal(t, int64(3), cmd.Args[1].Value.(*IntLit).V)

	assert.Equal(t, ArgFlag, cmd.Args[2].Kind)
	assert.Equal(t, "v", cmd.Args[2].Key)
	assert.True(t, cmd.Args[2].Short)
	assert.Equal(t, ArgFlag, cmd.Args[3].Kind)
	assert.Equal(t, "force", cmd.Args[3].Key)
	assert.False(t, cmd.Args[3].Short)

	assert.Equal(t, ArgPositional, cmd.Args[4].Kind)
	assert.Equal(t, "json", cmd.Args[4].Value.(*StringLit).V)
}

func TestParseNamedArgWhitespace(t *testing.T) {
	for _, src := range []string{`cmd key = 1`, `cmd key= 1`} {
		_, err := Parse(src)
		require.Error(t, err, "input %q", src)
		assert.Contains(t, err.Error(), "whitespace")
	}
	// Statement-level assignment tolerates spaces.
	_, err := Parse(`key = 1`)
	assert.NoError(t, err)
}

func TestParsePipeline(t *testing.T) {
	prog := mustParse(t, `cat /tmp/f | grep pat | wc`)
	pipe := prog.Stmts[0].(*PipelineStmt)
	require.Len(t, pipe.Cmds, 3)
	assert.Equal(t, "cat", pipe.Cmds[0].Name)
	assert.Equal(t, "wc", pipe.Cmds[2].Name)
	assert.False(t, pipe.Background)
}

func TestParseBackground(t *testing.T) {
	prog := mustParse(t, `sleep 5 &`)
	pipe := prog.Stmts[0].(*PipelineStmt)
	assert.True(t, pipe.Background)
	require.Len(t, pipe.Cmds, 1)
	assert.Equal(t, "sleep", pipe.Cmds[0].Name)
}

func TestParseSingleCommandUnwrapped(t *testing.T) {
	prog := mustParse(t, `pwd`)
	_, ok := prog.Stmts[0].(*CommandStmt)
	assert.True(t, ok, "single foreground command should not be wrapped in a pipeline")
}

func TestParseRedirects(t *testing.T) {
	prog := mustParse(t, `build > /tmp/out 2> /tmp/err`)
	cmd := prog.Stmts[0].(*CommandStmt)
	require.Len(t, cmd.Redirects, 2)
	assert.Equal(t, RedirStdout, cmd.Redirects[0].Op)
	assert.Equal(t, RedirStderr, cmd.Redirects[1].Op)
	assert.Equal(t, "/tmp/err", cmd.Redirects[1].Target.(*StringLit).V)
}

func TestParseChains(t *testing.T) {
	prog := mustParse(t, `a && b || c`)
	// Left-associative: (a && b) || c.
	outer := prog.Stmts[0].(*ChainStmt)
	assert.Equal(t, ChainOr, outer.Op)
	inner := outer.Left.(*ChainStmt)
	assert.Equal(t, ChainAnd, inner.Op)
	assert.Equal(t, "a", inner.Left.(*CommandStmt).Name)
	assert.Equal(t, "c", outer.Right.(*CommandStmt).Name)
}

func TestParseIfElifElse(t *testing.T) {
	prog := mustParse(t, `
if [[ $X == "a" ]]; then
  echo one
elif [[ $X == "b" ]]; then
  echo two
else
  echo other
fi`)
	stmt := prog.Stmts[0].(*IfStmt)
	require.Len(t, stmt.Then, 1)
	require.Len(t, stmt.Elifs, 1)
	require.Len(t, stmt.Else, 1)

	test := stmt.Cond.(*TestStmt)
	assert.Equal(t, "==", test.Op)
	assert.Equal(t, "X", test.Left.(*VarRef).Name())
}

func TestParseIfCommandCondition(t *testing.T) {
	prog := mustParse(t, "if grep -q pat /f; then echo found; fi")
	stmt := prog.Stmts[0].(*IfStmt)
	cond := stmt.Cond.(*CommandStmt)
	assert.Equal(t, "grep", cond.Name)
}

func TestParseForLoop(t *testing.T) {
	prog := mustParse(t, "for item in $LIST\ndo\n  echo $item\ndone")
	stmt := prog.Stmts[0].(*ForStmt)
	assert.Equal(t, "item", stmt.Var)
	assert.Equal(t, "LIST", stmt.Source.(*VarRef).Name())
	require.Len(t, stmt.Body, 1)
}

func TestParseWhileLoop(t *testing.T) {
	prog := mustParse(t, `while [[ $N -lt 10 ]]; do N = $N; done`)
	stmt := prog.Stmts[0].(*WhileStmt)
	test := stmt.Cond.(*TestStmt)
	assert.Equal(t, "-lt", test.Op)
	require.Len(t, stmt.Body, 1)
}

func TestParseBreakContinueLevels(t *testing.T) {
	prog := mustParse(t, "while true; do break 2; done")
	// `true` is an identifier command... lexed as TokBool, so it parses as
	// a bare expression condition.
	stmt := prog.Stmts[0].(*WhileStmt)
	br := stmt.Body[0].(*BreakStmt)
	assert.Equal(t, 2, br.Level)

	prog = mustParse(t, "for i in $L; do continue; done")
	cont := prog.Stmts[0].(*ForStmt).Body[0].(*ContinueStmt)
	assert.Equal(t, 1, cont.Level)
}

func TestParseToolDef(t *testing.T) {
	prog := mustParse(t, `
tool greet(name: string, count: int = 1) {
  echo "hi ${name}"
}`)
	def := prog.Stmts[0].(*ToolDefStmt)
	assert.Equal(t, "greet", def.Name)
	require.Len(t, def.Params, 2)
	assert.Equal(t, ParamString, def.Params[0].Type)
	assert.Nil(t, def.Params[0].Default)
	assert.Equal(t, ParamInt, def.Params[1].Type)
	assert.NotNil(t, def.Params[1].Default)
	require.Len(t, def.Body, 1)
	assert.Equal(t, `echo "hi ${name}"`, def.Source)
}

func TestParseToolDefBareParams(t *testing.T) {
	prog := mustParse(t, "tool t name:string {\n echo $name\n}")
	def := prog.Stmts[0].(*ToolDefStmt)
	require.Len(t, def.Params, 1)
	assert.Equal(t, "name", def.Params[0].Name)
}

func TestParseLiteralValues(t *testing.T) {
	prog := mustParse(t, `X = {"a": [1, 2.5, true, null], "b": {"c": "d"}}`)
	obj := prog.Stmts[0].(*AssignStmt).Value.(*ObjectLit)
	require.Equal(t, []string{"a", "b"}, obj.Keys)

	arr := obj.Vals[0].(*ArrayLit)
	require.Len(t, arr.Items, 4)
	assert.IsType(t, &IntLit{}, arr.Items[0])
	assert.IsType(t, &FloatLit{}, arr.Items[1])
	assert.IsType(t, &BoolLit{}, arr.Items[2])
	assert.IsType(t, &NullLit{}, arr.Items[3])
}

func TestParseNestedArrays(t *testing.T) {
	prog := mustParse(t, `X = [[1], [2, 3]]`)
	arr := prog.Stmts[0].(*AssignStmt).Value.(*ArrayLit)
	require.Len(t, arr.Items, 2)
	inner := arr.Items[1].(*ArrayLit)
	require.Len(t, inner.Items, 2)
}

func TestParseMultilineLiterals(t *testing.T) {
	prog := mustParse(t, "X = {\n  \"a\": 1,\n  \"b\": [\n    2,\n    3\n  ]\n}")
	obj := prog.Stmts[0].(*AssignStmt).Value.(*ObjectLit)
	assert.Equal(t, []string{"a", "b"}, obj.Keys)
}

func TestParseCmdSubst(t *testing.T) {
	prog := mustParse(t, `FILES = $(ls /tmp | grep log)`)
	sub := prog.Stmts[0].(*AssignStmt).Value.(*CmdSubst)
	require.Len(t, sub.Pipe.Cmds, 2)
	assert.Equal(t, "ls", sub.Pipe.Cmds[0].Name)
}

func TestParseSetOption(t *testing.T) {
	prog := mustParse(t, "set -e\nset +e")
	on := prog.Stmts[0].(*SetStmt)
	off := prog.Stmts[1].(*SetStmt)
	assert.True(t, on.Enable)
	assert.False(t, off.Enable)
}

func TestParseSourceForms(t *testing.T) {
	for _, src := range []string{`source /lib/util.ksh`, `. /lib/util.ksh`} {
		prog := mustParse(t, src)
		st := prog.Stmts[0].(*SourceStmt)
		assert.Equal(t, "/lib/util.ksh", st.Path.(*StringLit).V)
	}
}

func TestParseReturnExit(t *testing.T) {
	prog := mustParse(t, "tool t() {\n return 3\n}")
	ret := prog.Stmts[0].(*ToolDefStmt).Body[0].(*ReturnStmt)
	assert.Equal(t, int64(3), ret.Code.(*IntLit).V)

	prog = mustParse(t, `exit`)
	ex := prog.Stmts[0].(*ExitStmt)
	assert.Nil(t, ex.Code)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]struct {
		src     string
		message string
	}{
		"single bracket":  {`if [ -f /x ]; then echo y; fi`, "single-bracket"},
		"brace expansion": {`for i in {1..3}; do echo $i; done`, "brace expansion"},
		"keyword command": {`do something`, ""},
		"unclosed if":     {`if x; then echo y`, ""},
		"unclosed subst":  {`X = $(echo hi`, ""},
		"keyword name":    {`for = 1`, ""},
		"bad set":         {`set -x`, "set supports"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(tc.src)
			require.Error(t, err)
			if tc.message != "" {
				assert.Contains(t, err.Error(), tc.message)
			}
		})
	}
}

func TestParseDottedCommand(t *testing.T) {
	prog := mustParse(t, `build.compile target=all`)
	cmd := prog.Stmts[0].(*CommandStmt)
	assert.Equal(t, "build.compile", cmd.Name)
}

func TestRenderErrorSnippet(t *testing.T) {
	src := "echo ok\nif [ -f /x ]; then echo y; fi\n"
	_, err := Parse(src)
	require.Error(t, err)
	out := RenderError(err, "test.ksh", src)
	assert.Contains(t, out, "test.ksh:2:")
	assert.Contains(t, out, "^")
}
