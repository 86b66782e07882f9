package builtins

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/tools"
	"github.com/indielab/kaish/core/vfs"
)

func TestEcho(t *testing.T) {
	tc := newTestContext(t, "echo", invoke("hello", "world"))
	assert.Equal(t, 0, Echo(tc.ec))
	assert.Equal(t, "hello world\n", tc.stdout.String())

	tc = newTestContext(t, "echo", invoke("hi"))
	tc.ec.Inv.AddFlag("n", true, interp.Bool(true))
	assert.Equal(t, 0, Echo(tc.ec))
	assert.Equal(t, "hi", tc.stdout.String())
}

func TestTrueFalse(t *testing.T) {
	assert.Equal(t, 0, True(newTestContext(t, "true", nil).ec))
	assert.Equal(t, 1, False(newTestContext(t, "false", nil).ec))
}

func TestWriteAndCat(t *testing.T) {
	tc := newTestContext(t, "write", invoke("/greeting.txt", "hello", "world"))
	require.Equal(t, 0, Write(tc.ec), tc.stderr.String())

	read := newTestContext(t, "cat", invoke("/greeting.txt"))
	read.ec.FS = tc.ec.FS
	require.Equal(t, 0, Cat(read.ec), read.stderr.String())
	assert.Equal(t, "hello world", read.stdout.String())
}

func TestWriteFromStdinAndAppend(t *testing.T) {
	tc := newTestContext(t, "write", invoke("/log"))
	tc.ec.Stdin = strings.NewReader("one\n")
	require.Equal(t, 0, Write(tc.ec))

	app := newTestContext(t, "write", invoke("/log", "two"))
	app.ec.FS = tc.ec.FS
	app.ec.Inv.AddFlag("a", true, interp.Bool(true))
	require.Equal(t, 0, Write(app.ec))

	data, err := tc.ec.FS.Read(context.Background(), "/log")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", string(data))
}

func TestCatStdin(t *testing.T) {
	tc := newTestContext(t, "cat", nil)
	tc.ec.Stdin = strings.NewReader("pass through\n")
	assert.Equal(t, 0, Cat(tc.ec))
	assert.Equal(t, "pass through\n", tc.stdout.String())
}

func TestCatMissingFile(t *testing.T) {
	tc := newTestContext(t, "cat", invoke("/nope"))
	assert.Equal(t, 1, Cat(tc.ec))
	assert.Contains(t, tc.stderr.String(), "cat: IOError")
}

func TestMkdirLsRm(t *testing.T) {
	tc := newTestContext(t, "mkdir", invoke("/work/sub"))
	require.Equal(t, 0, Mkdir(tc.ec), tc.stderr.String())

	wr := newTestContext(t, "write", invoke("/work/a.txt", "x"))
	wr.ec.FS = tc.ec.FS
	require.Equal(t, 0, Write(wr.ec))

	ls := newTestContext(t, "ls", invoke("/work"))
	ls.ec.FS = tc.ec.FS
	require.Equal(t, 0, Ls(ls.ec), ls.stderr.String())
	assert.Equal(t, "a.txt\nsub/\n", ls.stdout.String())

	rm := newTestContext(t, "rm", invoke("/work"))
	rm.ec.FS = tc.ec.FS
	rm.ec.Inv.AddFlag("r", true, interp.Bool(true))
	require.Equal(t, 0, Rm(rm.ec), rm.stderr.String())

	again := newTestContext(t, "ls", invoke("/work"))
	again.ec.FS = tc.ec.FS
	assert.Equal(t, 1, Ls(again.ec))
}

func TestCdAndPwd(t *testing.T) {
	tc := newTestContext(t, "mkdir", invoke("/sub"))
	require.Equal(t, 0, Mkdir(tc.ec))

	cd := newTestContext(t, "cd", invoke("/sub"))
	cd.ec.FS = tc.ec.FS
	cd.ec.Kernel = tc.kernel
	require.Equal(t, 0, Cd(cd.ec), cd.stderr.String())

	pwd := newTestContext(t, "pwd", nil)
	pwd.ec.Kernel = tc.kernel
	require.Equal(t, 0, Pwd(pwd.ec))
	assert.Equal(t, "/sub\n", pwd.stdout.String())

	bad := newTestContext(t, "cd", invoke("/missing"))
	bad.ec.FS = tc.ec.FS
	bad.ec.Kernel = tc.kernel
	assert.Equal(t, 1, Cd(bad.ec))
	assert.Equal(t, "/sub", tc.kernel.Cwd())
}

func TestRelativePathsResolveAgainstCwd(t *testing.T) {
	tc := newTestContext(t, "mkdir", invoke("/sub"))
	require.Equal(t, 0, Mkdir(tc.ec))
	tc.kernel.cwd = "/sub"

	wr := newTestContext(t, "write", invoke("note", "hi"))
	wr.ec.FS = tc.ec.FS
	wr.ec.Kernel = tc.kernel
	require.Equal(t, 0, Write(wr.ec), wr.stderr.String())

	data, err := tc.ec.FS.Read(context.Background(), "/sub/note")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestCpMv(t *testing.T) {
	tc := newTestContext(t, "write", invoke("/a", "payload"))
	require.Equal(t, 0, Write(tc.ec))

	cp := newTestContext(t, "cp", invoke("/a", "/b"))
	cp.ec.FS = tc.ec.FS
	require.Equal(t, 0, Cp(cp.ec), cp.stderr.String())

	mv := newTestContext(t, "mv", invoke("/b", "/c"))
	mv.ec.FS = tc.ec.FS
	require.Equal(t, 0, Mv(mv.ec), mv.stderr.String())

	data, err := tc.ec.FS.Read(context.Background(), "/c")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	_, err = tc.ec.FS.Read(context.Background(), "/b")
	assert.ErrorIs(t, err, vfs.ErrNotFound)

	bad := newTestContext(t, "cp", invoke("/a"))
	assert.Equal(t, 1, Cp(bad.ec))
	assert.Contains(t, bad.stderr.String(), "expected SRC and DST")
}

func TestGrep(t *testing.T) {
	const input = "alpha\nbeta\nALPHA again\ngamma\n"

	cases := []struct {
		name  string
		flags []string
		code  int
		out   string
	}{
		{name: "plain match", code: 0, out: "alpha\n"},
		{name: "ignore case", flags: []string{"i"}, code: 0, out: "alpha\nALPHA again\n"},
		{name: "invert", flags: []string{"v"}, code: 0, out: "beta\nALPHA again\ngamma\n"},
		{name: "count", flags: []string{"c"}, code: 0, out: "1\n"},
		{name: "quiet", flags: []string{"q"}, code: 0, out: ""},
		{name: "line numbers", flags: []string{"n"}, code: 0, out: "1:alpha\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := newTestContext(t, "grep", invoke("alpha"))
			ctx.ec.Stdin = strings.NewReader(input)
			for _, f := range tc.flags {
				ctx.ec.Inv.AddFlag(f, true, interp.Bool(true))
			}
			assert.Equal(t, tc.code, Grep(ctx.ec), ctx.stderr.String())
			assert.Equal(t, tc.out, ctx.stdout.String())
		})
	}

	t.Run("no match exits 1", func(t *testing.T) {
		ctx := newTestContext(t, "grep", invoke("zeta"))
		ctx.ec.Stdin = strings.NewReader(input)
		assert.Equal(t, 1, Grep(ctx.ec))
		assert.Empty(t, ctx.stdout.String())
	})

	t.Run("bad pattern", func(t *testing.T) {
		ctx := newTestContext(t, "grep", invoke("([unclosed"))
		assert.Equal(t, 1, Grep(ctx.ec))
		assert.Contains(t, ctx.stderr.String(), "invalid pattern")
	})

	t.Run("file argument", func(t *testing.T) {
		ctx := newTestContext(t, "grep", invoke("beta", "/in.txt"))
		require.NoError(t, ctx.ec.FS.Write(context.Background(), "/in.txt", []byte(input)))
		assert.Equal(t, 0, Grep(ctx.ec), ctx.stderr.String())
		assert.Equal(t, "beta\n", ctx.stdout.String())
	})
}

func TestJq(t *testing.T) {
	const doc = `{"items":[{"id":"a","n":1},{"id":"b","n":2}]}`

	t.Run("extract field", func(t *testing.T) {
		tc := newTestContext(t, "jq", invoke(".items[1].id"))
		tc.ec.Stdin = strings.NewReader(doc)
		require.Equal(t, 0, Jq(tc.ec), tc.stderr.String())
		assert.Equal(t, "\"b\"\n", tc.stdout.String())
	})

	t.Run("raw strings", func(t *testing.T) {
		tc := newTestContext(t, "jq", invoke(".items[].id"))
		tc.ec.Stdin = strings.NewReader(doc)
		tc.ec.Inv.AddFlag("r", true, interp.Bool(true))
		require.Equal(t, 0, Jq(tc.ec), tc.stderr.String())
		assert.Equal(t, "a\nb\n", tc.stdout.String())
	})

	t.Run("file input", func(t *testing.T) {
		tc := newTestContext(t, "jq", invoke(".items | length", "/doc.json"))
		require.NoError(t, tc.ec.FS.Write(context.Background(), "/doc.json", []byte(doc)))
		require.Equal(t, 0, Jq(tc.ec), tc.stderr.String())
		assert.Equal(t, "2\n", tc.stdout.String())
	})

	t.Run("bad query", func(t *testing.T) {
		tc := newTestContext(t, "jq", invoke(".items[[["))
		assert.Equal(t, 1, Jq(tc.ec))
		assert.Contains(t, tc.stderr.String(), "invalid query")
	})

	t.Run("bad input", func(t *testing.T) {
		tc := newTestContext(t, "jq", invoke("."))
		tc.ec.Stdin = strings.NewReader("not json")
		assert.Equal(t, 1, Jq(tc.ec))
		assert.Contains(t, tc.stderr.String(), "TypeError")
	})
}

func TestExec(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		tc := newTestContext(t, "exec", invoke("true"))
		assert.Equal(t, 0, Exec(tc.ec), tc.stderr.String())
	})

	t.Run("exit code passthrough", func(t *testing.T) {
		tc := newTestContext(t, "exec", invoke("false"))
		assert.Equal(t, 1, Exec(tc.ec))
	})

	t.Run("missing program", func(t *testing.T) {
		tc := newTestContext(t, "exec", invoke("definitely-not-a-real-program-kaish"))
		assert.Equal(t, 127, Exec(tc.ec))
		assert.Contains(t, tc.stderr.String(), "NameError")
	})

	t.Run("no program", func(t *testing.T) {
		tc := newTestContext(t, "exec", nil)
		assert.Equal(t, 1, Exec(tc.ec))
		assert.Contains(t, tc.stderr.String(), "missing program")
	})

	t.Run("sanitized environment", func(t *testing.T) {
		t.Setenv("KAISH_HOST_SECRET", "leaked")
		tc := newTestContext(t, "exec", invoke("env"))
		tc.ec.Scope.Set("GREETING", interp.Str("hello"))
		tc.ec.Scope.Set("COUNT", interp.Int(3))
		require.Equal(t, 0, Exec(tc.ec), tc.stderr.String())
		out := tc.stdout.String()
		assert.Contains(t, out, "GREETING=hello\n")
		assert.Contains(t, out, "COUNT=3\n")
		assert.NotContains(t, out, "KAISH_HOST_SECRET")
	})
}

func TestAssert(t *testing.T) {
	tc := newTestContext(t, "assert", nil)
	tc.ec.Inv.AddPos(interp.Bool(true))
	assert.Equal(t, 0, Assert(tc.ec))

	tc = newTestContext(t, "assert", nil)
	tc.ec.Inv.AddPos(interp.Int(0))
	tc.ec.Inv.AddPos(interp.Str("count must be positive"))
	assert.Equal(t, 1, Assert(tc.ec))
	assert.Equal(t, "assert: count must be positive\n", tc.stderr.String())

	tc = newTestContext(t, "assert", nil)
	assert.Equal(t, 1, Assert(tc.ec))
	assert.Contains(t, tc.stderr.String(), "missing value")
}

func TestSet(t *testing.T) {
	tc := newTestContext(t, "set", nil)
	tc.ec.Inv.AddFlag("e", true, interp.Bool(true))
	require.Equal(t, 0, Set(tc.ec))
	require.NotNil(t, tc.kernel.errExit)
	assert.True(t, *tc.kernel.errExit)

	tc = newTestContext(t, "set", invoke("+e"))
	require.Equal(t, 0, Set(tc.ec))
	require.NotNil(t, tc.kernel.errExit)
	assert.False(t, *tc.kernel.errExit)

	tc = newTestContext(t, "set", invoke("-x"))
	assert.Equal(t, 1, Set(tc.ec))
}

func TestSleep(t *testing.T) {
	tc := newTestContext(t, "sleep", invoke("0"))
	assert.Equal(t, 0, Sleep(tc.ec))

	tc = newTestContext(t, "sleep", invoke("soon"))
	assert.Equal(t, 1, Sleep(tc.ec))
	assert.Contains(t, tc.stderr.String(), "invalid duration")

	tc = newTestContext(t, "sleep", invoke("30"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tc.ec.Ctx = ctx
	assert.Equal(t, 130, Sleep(tc.ec))
}

func TestHistory(t *testing.T) {
	tc := newTestContext(t, "history", nil)
	tc.kernel.history = []string{"echo hi", "ls /"}
	require.Equal(t, 0, History(tc.ec))
	assert.Equal(t, "    1  echo hi\n    2  ls /\n", tc.stdout.String())
}

func TestSourceTool(t *testing.T) {
	tc := newTestContext(t, "source", invoke("/lib.ka"))
	require.NoError(t, tc.ec.FS.Write(context.Background(), "/lib.ka", []byte("X = 1\n")))
	tc.kernel.scriptRes = interp.OK("loaded\n")
	require.Equal(t, 0, SourceTool(tc.ec), tc.stderr.String())
	assert.Equal(t, "X = 1\n", tc.kernel.ranScript)
	assert.Equal(t, "loaded\n", tc.stdout.String())

	missing := newTestContext(t, "source", invoke("/nope.ka"))
	assert.Equal(t, 1, SourceTool(missing.ec))
	assert.Contains(t, missing.stderr.String(), "IOError")
}

func TestJobsAndWait(t *testing.T) {
	tc := newTestContext(t, "jobs", nil)
	tc.kernel.jobs = []tools.JobInfo{
		{ID: 1, Status: "running", Text: "sleep 60 &"},
		{ID: 2, Status: "completed", Text: "echo done &"},
	}
	require.Equal(t, 0, Jobs(tc.ec))
	assert.Equal(t, "[1] running    sleep 60 &\n[2] completed  echo done &\n", tc.stdout.String())

	wait := newTestContext(t, "wait", nil)
	wait.kernel.waited = []tools.JobResult{
		{ID: 1, Result: interp.OK("first\n")},
		{ID: 2, Result: interp.Fail(3, "boom")},
	}
	assert.Equal(t, 3, Wait(wait.ec))
	assert.Equal(t, "first\n", wait.stdout.String())
	assert.Contains(t, wait.stderr.String(), "[2] boom")

	one := newTestContext(t, "wait", invoke("%1"))
	one.kernel.waited = wait.kernel.waited
	assert.Equal(t, 0, Wait(one.ec))
	assert.Equal(t, "first\n", one.stdout.String())

	bad := newTestContext(t, "wait", invoke("%zero"))
	assert.Equal(t, 1, Wait(bad.ec))
	assert.Contains(t, bad.stderr.String(), "invalid job id")
}

func TestMountAndUnmount(t *testing.T) {
	tc := newTestContext(t, "mount", invoke("/data"))
	require.Equal(t, 0, MountTool(tc.ec), tc.stderr.String())

	require.NoError(t, tc.ec.FS.Write(context.Background(), "/data/x", []byte("y")))
	m, _, err := tc.ec.FS.Resolve("/data/x")
	require.NoError(t, err)
	assert.Equal(t, "/data", m.Path)

	un := newTestContext(t, "unmount", invoke("/data"))
	un.ec.FS = tc.ec.FS
	un.ec.Kernel = tc.kernel
	require.Equal(t, 0, Unmount(un.ec), un.stderr.String())

	t.Run("read only", func(t *testing.T) {
		ro := newTestContext(t, "mount", invoke("/snap"))
		ro.ec.Inv.AddFlag("ro", false, interp.Bool(true))
		require.Equal(t, 0, MountTool(ro.ec), ro.stderr.String())
		err := ro.ec.FS.Write(context.Background(), "/snap/f", []byte("x"))
		assert.ErrorIs(t, err, vfs.ErrReadOnly)
	})

	t.Run("local needs spec", func(t *testing.T) {
		bad := newTestContext(t, "mount", invoke("/host"))
		bad.ec.Inv.AddNamed("type", interp.Str("local"))
		assert.Equal(t, 1, MountTool(bad.ec))
		assert.Contains(t, bad.stderr.String(), "spec=DIR")
	})

	t.Run("unknown type", func(t *testing.T) {
		bad := newTestContext(t, "mount", invoke("/x"))
		bad.ec.Inv.AddNamed("type", interp.Str("nfs"))
		assert.Equal(t, 1, MountTool(bad.ec))
		assert.Contains(t, bad.stderr.String(), "unknown mount type")
	})
}

func TestScatterGatherOutsidePipeline(t *testing.T) {
	tc := newTestContext(t, "scatter", nil)
	assert.Equal(t, 1, Scatter(tc.ec))
	assert.Contains(t, tc.stderr.String(), "pipeline stage")

	tc = newTestContext(t, "gather", nil)
	assert.Equal(t, 1, Gather(tc.ec))
	assert.Contains(t, tc.stderr.String(), "pipeline stage")
}

func TestVars(t *testing.T) {
	tc := newTestContext(t, "vars", nil)
	tc.ec.Scope.Set("B", interp.Int(2))
	tc.ec.Scope.Set("A", interp.Str("one"))
	require.Equal(t, 0, Vars(tc.ec))
	assert.Equal(t, "A=one\nB=2\n", tc.stdout.String())

	js := newTestContext(t, "vars", nil)
	js.ec.Scope.Set("N", interp.Int(7))
	js.ec.Inv.AddFlag("json", false, interp.Bool(true))
	require.Equal(t, 0, Vars(js.ec))
	v, err := interp.ParseJSON(js.stdout.Bytes())
	require.NoError(t, err)
	n, ok := v.Fields().Get("N")
	require.True(t, ok)
	assert.Equal(t, int64(7), n.AsInt())
}

func TestDate(t *testing.T) {
	tc := newTestContext(t, "date", invoke("2006"))
	tc.ec.Inv.AddFlag("u", true, interp.Bool(true))
	require.Equal(t, 0, Date(tc.ec))
	assert.Regexp(t, `^\d{4}\n$`, tc.stdout.String())
}

func TestRegisterInstallsEverything(t *testing.T) {
	reg := tools.NewRegistry()
	Register(reg)

	for _, name := range []string{"echo", "cat", "grep", "jq", "mount", "scatter", "gather", "set"} {
		e, err := reg.Resolve(name)
		require.NoError(t, err, name)
		assert.Equal(t, tools.SourceBuiltin, e.Source)
		assert.NotNil(t, e.Handler)
	}
}

func TestHelpFlag(t *testing.T) {
	tc := newTestContext(t, "echo", nil)
	tc.ec.Inv.AddFlag("help", false, interp.Bool(true))
	assert.Equal(t, 0, Echo(tc.ec))
	assert.Contains(t, tc.stdout.String(), "usage: echo")
	assert.Contains(t, tc.stdout.String(), "Flags:")
}
