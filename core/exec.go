package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	pathpkg "path"
	"strings"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/lang"
	"github.com/indielab/kaish/core/logger"
	"github.com/indielab/kaish/core/sched"
	"github.com/indielab/kaish/core/tools"
)

// stdio bundles the three streams a statement runs against.
type stdio struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// runner executes statements against one scope. The main session, each
// background job, each scatter worker and each tool body get their own
// runner so $? and assignments stay scoped correctly.
type runner struct {
	k     *Kernel
	scope *interp.Scope
	eval  *interp.Evaluator
	last  *interp.ExecResult
	// main marks the session runner: its plain assignments persist.
	main bool
}

func (r *runner) lastResult() *interp.ExecResult {
	if r.last != nil {
		return r.last
	}
	if r.main {
		return r.k.Last()
	}
	return nil
}

// Control-flow sentinels. They travel as errors so every statement
// walker unwinds without special cases.

type breakErr struct{ level int }

func (e *breakErr) Error() string { return "break outside a loop" }

type continueErr struct{ level int }

func (e *continueErr) Error() string { return "continue outside a loop" }

type returnErr struct{ code int }

func (e *returnErr) Error() string { return "return outside a tool" }

// execSeq runs a statement sequence and resolves control flow that
// escapes it: return and exit yield their code, stray break/continue
// are errors.
func (r *runner) execSeq(ctx context.Context, stmts []lang.Stmt, sio *stdio) *interp.ExecResult {
	res, err := r.execSeqE(ctx, stmts, sio)
	if err != nil {
		if re, ok := err.(*returnErr); ok {
			return interp.FromCode(re.code)
		}
		fail := interp.FailErr(err)
		fmt.Fprintln(sio.err, err.Error())
		return fail
	}
	if res == nil {
		res = interp.FromCode(0)
	}
	return res
}

// execSeqE runs statements in order. Evaluation errors become failed
// results; control-flow sentinels propagate to the enclosing construct.
func (r *runner) execSeqE(ctx context.Context, stmts []lang.Stmt, sio *stdio) (*interp.ExecResult, error) {
	var last *interp.ExecResult
	for _, st := range stmts {
		if ctx.Err() != nil {
			return interp.Fail(130, "interrupted"), nil
		}
		res, err := r.execStmt(ctx, st, sio)
		if err != nil {
			if isControl(err) {
				return last, err
			}
			res = interp.FailErr(err)
			fmt.Fprintln(sio.err, err.Error())
		}
		if res != nil {
			last = res
			r.last = res
			if !res.Ok && r.k.errExitOn() {
				return res, nil
			}
		}
	}
	return last, nil
}

// execStmt dispatches one statement. A nil result means the statement
// does not touch $? (assignments, definitions, set).
func (r *runner) execStmt(ctx context.Context, st lang.Stmt, sio *stdio) (*interp.ExecResult, error) {
	switch x := st.(type) {
	case *lang.AssignStmt:
		v, err := r.eval.EvalExpr(ctx, x.Value)
		if err != nil {
			return nil, err
		}
		if x.Local {
			r.scope.SetLocal(x.Name, v)
			return nil, nil
		}
		r.scope.Set(x.Name, v)
		if r.main && !r.scope.Isolated() && r.k.store != nil {
			if err := r.k.store.SaveVar(ctx, x.Name, v); err != nil {
				return nil, interp.Errf(interp.InternalError, x.Span, "persist %s: %v", x.Name, err)
			}
		}
		return nil, nil

	case *lang.CommandStmt:
		return r.execPipeline(ctx, &lang.PipelineStmt{Cmds: []*lang.CommandStmt{x}, Span: x.Span}, sio)

	case *lang.PipelineStmt:
		return r.execPipeline(ctx, x, sio)

	case *lang.IfStmt:
		cond := r.execCond(ctx, x.Cond, sio)
		if cond.Ok {
			return r.execSeqE(ctx, x.Then, sio)
		}
		for _, elif := range x.Elifs {
			if r.execCond(ctx, elif.Cond, sio).Ok {
				return r.execSeqE(ctx, elif.Body, sio)
			}
		}
		if x.Else != nil {
			return r.execSeqE(ctx, x.Else, sio)
		}
		return interp.FromCode(0), nil

	case *lang.ForStmt:
		src, err := r.eval.EvalExpr(ctx, x.Source)
		if err != nil {
			return nil, err
		}
		var last *interp.ExecResult
		for _, item := range interp.SplitWords(src) {
			if ctx.Err() != nil {
				return interp.Fail(130, "interrupted"), nil
			}
			r.scope.SetLocal(x.Var, item)
			res, err := r.execSeqE(ctx, x.Body, sio)
			if res != nil {
				last = res
			}
			if err != nil {
				stop, cont, prop := loopControl(err)
				if prop != nil {
					return last, prop
				}
				if stop {
					return last, nil
				}
				if cont {
					continue
				}
			}
			if last != nil && !last.Ok && r.k.errExitOn() {
				return last, nil
			}
		}
		if last == nil {
			last = interp.FromCode(0)
		}
		return last, nil

	case *lang.WhileStmt:
		var last *interp.ExecResult
		for {
			if ctx.Err() != nil {
				return interp.Fail(130, "interrupted"), nil
			}
			if !r.execCond(ctx, x.Cond, sio).Ok {
				break
			}
			res, err := r.execSeqE(ctx, x.Body, sio)
			if res != nil {
				last = res
			}
			if err != nil {
				stop, cont, prop := loopControl(err)
				if prop != nil {
					return last, prop
				}
				if stop {
					break
				}
				if cont {
					continue
				}
			}
			if last != nil && !last.Ok && r.k.errExitOn() {
				return last, nil
			}
		}
		if last == nil {
			last = interp.FromCode(0)
		}
		return last, nil

	case *lang.BreakStmt:
		level := x.Level
		if level < 1 {
			level = 1
		}
		return nil, &breakErr{level: level}

	case *lang.ContinueStmt:
		level := x.Level
		if level < 1 {
			level = 1
		}
		return nil, &continueErr{level: level}

	case *lang.ReturnStmt:
		code, err := r.evalCode(ctx, x.Code)
		if err != nil {
			return nil, err
		}
		return nil, &returnErr{code: code}

	case *lang.ExitStmt:
		code, err := r.evalCode(ctx, x.Code)
		if err != nil {
			return nil, err
		}
		// exit unwinds like return: it ends the enclosing tool body or
		// top-level input with the given code.
		return nil, &returnErr{code: code}

	case *lang.ToolDefStmt:
		if err := r.k.defineTool(ctx, x, r.main); err != nil {
			return nil, interp.Errf(interp.ArgumentError, x.Span, "tool %s: %v", x.Name, err)
		}
		return nil, nil

	case *lang.SourceStmt:
		return r.execSource(ctx, x, sio)

	case *lang.ChainStmt:
		left, err := r.execStmt(ctx, x.Left, sio)
		if err != nil {
			if isControl(err) {
				return left, err
			}
			left = interp.FailErr(err)
			fmt.Fprintln(sio.err, err.Error())
		}
		if left == nil {
			left = interp.FromCode(0)
		}
		r.last = left
		run := (x.Op == lang.ChainAnd) == left.Ok
		if !run {
			return left, nil
		}
		right, err := r.execStmt(ctx, x.Right, sio)
		if err != nil {
			return right, err
		}
		if right == nil {
			right = interp.FromCode(0)
		}
		return right, nil

	case *lang.TestStmt:
		return r.eval.EvalTest(ctx, x)

	case *lang.ExprStmt:
		v, err := r.eval.EvalExpr(ctx, x.E)
		if err != nil {
			return nil, err
		}
		if v.Truthy() {
			return interp.FromCode(0), nil
		}
		return interp.FromCode(1), nil

	case *lang.SetStmt:
		if x.Option != "e" {
			return nil, interp.Errf(interp.ArgumentError, x.Span, "unsupported option %q", x.Option)
		}
		r.k.SetErrExit(x.Enable)
		return nil, nil
	}
	return nil, interp.Errf(interp.InternalError, st.StmtSpan(), "unhandled statement %T", st)
}

// loopControl classifies a sentinel escaping a loop body: stop the
// loop, continue it, or keep unwinding outer levels.
func loopControl(err error) (stop, cont bool, propagate error) {
	switch e := err.(type) {
	case *breakErr:
		if e.level <= 1 {
			return true, false, nil
		}
		return false, false, &breakErr{level: e.level - 1}
	case *continueErr:
		if e.level <= 1 {
			return false, true, nil
		}
		return false, false, &continueErr{level: e.level - 1}
	}
	return false, false, err
}

func isControl(err error) bool {
	switch err.(type) {
	case *breakErr, *continueErr, *returnErr:
		return true
	}
	return false
}

// execCond runs a condition statement. Condition failures are tested,
// never fatal, so eval errors fold into a failed result and errexit
// does not see them.
func (r *runner) execCond(ctx context.Context, cond lang.Stmt, sio *stdio) *interp.ExecResult {
	res, err := r.execStmt(ctx, cond, sio)
	if err != nil {
		if isControl(err) {
			return interp.Fail(1, err.Error())
		}
		fmt.Fprintln(sio.err, err.Error())
		return interp.FailErr(err)
	}
	if res == nil {
		res = interp.FromCode(0)
	}
	r.last = res
	return res
}

func (r *runner) evalCode(ctx context.Context, e lang.Expr) (int, error) {
	if e == nil {
		return 0, nil
	}
	v, err := r.eval.EvalExpr(ctx, e)
	if err != nil {
		return 0, err
	}
	return int(v.AsInt()), nil
}

// subst backs $(pipeline): run it with captured output and hand the
// result to expression evaluation.
func (r *runner) subst(ctx context.Context, pipe *lang.PipelineStmt) (*interp.ExecResult, error) {
	capErr := sched.NewCapture(r.k.cfg.Limits.CaptureBytes)
	sio := &stdio{in: strings.NewReader(""), out: io.Discard, err: capErr}
	return r.execPipeline(ctx, pipe, sio)
}

// execPipeline runs one pipeline: foreground with stdout teed into a
// capture so $? carries the output, or as a background job.
func (r *runner) execPipeline(ctx context.Context, p *lang.PipelineStmt, sio *stdio) (*interp.ExecResult, error) {
	if len(p.Cmds) == 0 {
		return interp.FromCode(0), nil
	}
	if p.Background {
		return r.startJob(ctx, p)
	}
	if scatterIndex(p) >= 0 {
		return r.execScatter(ctx, p, sio)
	}

	capOut := sched.NewCapture(r.k.cfg.Limits.CaptureBytes)
	capErr := sched.NewCapture(r.k.cfg.Limits.CaptureBytes)

	stages := make([]sched.Stage, 0, len(p.Cmds))
	for _, cmd := range p.Cmds {
		stages = append(stages, r.commandStage(cmd))
	}
	res := sched.RunPipeline(ctx, stages, r.k.cfg.Limits.StreamBytes,
		sio.in,
		io.MultiWriter(sio.out, capOut),
		io.MultiWriter(sio.err, capErr))

	res.Out = capOut.String()
	if !res.Ok && res.Err == "" {
		res.Err = strings.TrimSpace(capErr.String())
	}
	res.ParseData()
	return res, nil
}

// startJob launches a pipeline as a background job on a snapshot of the
// current scope. The job outlives the submitting call.
func (r *runner) startJob(ctx context.Context, p *lang.PipelineStmt) (*interp.ExecResult, error) {
	fg := *p
	fg.Background = false
	text := pipeText(p)

	ws := r.scope.Child()
	wr := r.k.runner(ws)

	job := r.k.jobs.Submit(context.Background(), text, func(jctx context.Context) *interp.ExecResult {
		capOut := sched.NewCapture(r.k.cfg.Limits.CaptureBytes)
		capErr := sched.NewCapture(r.k.cfg.Limits.CaptureBytes)
		jio := &stdio{in: strings.NewReader(""), out: capOut, err: capErr}
		res, err := wr.execPipeline(jctx, &fg, jio)
		if err != nil {
			res = interp.FailErr(err)
		}
		if res.Err == "" {
			res.Err = strings.TrimSpace(capErr.String())
		}
		return res
	})
	_ = r.k.log.Record(&logger.JobStarted{ID: job.ID, Text: text})
	go func() {
		<-job.Done()
		res := job.Result()
		_ = r.k.log.Record(&logger.JobFinished{
			ID: job.ID, Status: job.Status().String(), Code: res.Code,
		})
	}()
	return interp.FromCode(0), nil
}

// commandStage wraps one command as a pipeline stage: resolve, expand
// arguments, apply redirects, dispatch.
func (r *runner) commandStage(cmd *lang.CommandStmt) sched.Stage {
	return sched.Stage{
		Name: cmd.Name,
		Run: func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) *interp.ExecResult {
			entry, err := r.k.registry.Resolve(cmd.Name)
			if err != nil {
				_ = r.k.log.Record(&logger.UnknownCommand{Name: cmd.Name})
				msg := fmt.Sprintf("command not found: %s", cmd.Name)
				fmt.Fprintln(stderr, msg)
				return interp.Fail(127, msg)
			}

			inv, err := r.buildInvocation(ctx, cmd)
			if err != nil {
				fmt.Fprintln(stderr, err.Error())
				return interp.FailErr(err)
			}

			stdin, stdout, stderr, finish, err := r.applyRedirects(ctx, cmd.Redirects, stdin, stdout, stderr)
			if err != nil {
				fmt.Fprintln(stderr, err.Error())
				return interp.FailErr(err)
			}

			_ = r.k.log.Record(&logger.ToolCall{Tool: cmd.Name, Source: entry.Source.String()})
			ec := &tools.ExecContext{
				Ctx: ctx, Stdin: stdin, Stdout: stdout, Stderr: stderr,
				FS: r.k.fs, Scope: r.scope, Eval: r.eval,
				Kernel: r.k, Registry: r.k.registry,
				Name: cmd.Name, Inv: inv,
			}
			code := runHandler(ec, entry)
			if err := finish(); err != nil {
				fmt.Fprintln(stderr, err.Error())
				return interp.Fail(1, err.Error())
			}
			return interp.FromCode(code)
		},
	}
}

// runHandler dispatches a tool handler, converting a panic into an
// internal error instead of tearing the kernel down.
func runHandler(ec *tools.ExecContext, entry *tools.Entry) (code int) {
	defer func() {
		if rec := recover(); rec != nil {
			code = ec.Errorf(interp.InternalError, "panic: %v", rec)
		}
	}()
	return entry.Handler(ec)
}

// buildInvocation expands command arguments into an invocation.
func (r *runner) buildInvocation(ctx context.Context, cmd *lang.CommandStmt) (*tools.Invocation, error) {
	inv := tools.NewInvocation()
	for _, arg := range cmd.Args {
		switch arg.Kind {
		case lang.ArgPositional:
			v, err := r.eval.EvalExpr(ctx, arg.Value)
			if err != nil {
				return nil, err
			}
			inv.AddPos(v)
		case lang.ArgNamed:
			v, err := r.eval.EvalExpr(ctx, arg.Value)
			if err != nil {
				return nil, err
			}
			inv.AddNamed(arg.Key, v)
		case lang.ArgFlag:
			v := interp.Bool(true)
			if arg.Value != nil {
				var err error
				v, err = r.eval.EvalExpr(ctx, arg.Value)
				if err != nil {
					return nil, err
				}
			}
			inv.AddFlag(arg.Key, arg.Short, v)
		}
	}
	return inv, nil
}

// applyRedirects rewires a stage's streams through the VFS. Output
// redirects buffer and flush after the stage finishes so a failing
// write surfaces as the stage's own error.
func (r *runner) applyRedirects(ctx context.Context, redirects []lang.Redirect, stdin io.Reader, stdout, stderr io.Writer) (io.Reader, io.Writer, io.Writer, func() error, error) {
	type flush struct {
		path     string
		buf      *bytes.Buffer
		appendTo bool
	}
	var flushes []flush

	for _, rd := range redirects {
		tv, err := r.eval.EvalExpr(ctx, rd.Target)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		target := r.resolvePath(tv.Text())

		switch rd.Op {
		case lang.RedirStdin:
			data, err := r.k.fs.Read(ctx, target)
			if err != nil {
				return nil, nil, nil, nil, interp.Errf(interp.IOError, rd.Span, "%v", err)
			}
			stdin = bytes.NewReader(data)
		case lang.RedirStdout, lang.RedirAppend:
			buf := &bytes.Buffer{}
			stdout = buf
			flushes = append(flushes, flush{target, buf, rd.Op == lang.RedirAppend})
		case lang.RedirStderr:
			buf := &bytes.Buffer{}
			stderr = buf
			flushes = append(flushes, flush{target, buf, false})
		case lang.RedirBoth:
			buf := &bytes.Buffer{}
			stdout, stderr = buf, buf
			flushes = append(flushes, flush{target, buf, false})
		}
	}

	finish := func() error {
		for _, f := range flushes {
			var err error
			if f.appendTo {
				err = r.k.fs.Append(ctx, f.path, f.buf.Bytes())
			} else {
				err = r.k.fs.Write(ctx, f.path, f.buf.Bytes())
			}
			if err != nil {
				return fmt.Errorf("redirect %s: %w", f.path, err)
			}
		}
		return nil
	}
	return stdin, stdout, stderr, finish, nil
}

func (r *runner) resolvePath(p string) string {
	if !pathpkg.IsAbs(p) {
		p = pathpkg.Join(r.k.Cwd(), p)
	}
	return pathpkg.Clean(p)
}

// execSource reads and runs a script from the VFS in the current scope.
func (r *runner) execSource(ctx context.Context, st *lang.SourceStmt, sio *stdio) (*interp.ExecResult, error) {
	pv, err := r.eval.EvalExpr(ctx, st.Path)
	if err != nil {
		return nil, err
	}
	path := r.resolvePath(pv.Text())
	data, err := r.k.fs.Read(ctx, path)
	if err != nil {
		return nil, interp.Errf(interp.IOError, st.Span, "source %s: %v", path, err)
	}
	prog, err := lang.Parse(string(data))
	if err != nil {
		fmt.Fprint(sio.err, lang.RenderError(err, path, string(data)))
		return interp.Fail(2, fmt.Sprintf("source %s: %v", path, err)), nil
	}
	return r.execSeqE(ctx, prog.Stmts, sio)
}

// ---- scatter / gather ----

func scatterIndex(p *lang.PipelineStmt) int {
	for i, cmd := range p.Cmds {
		if cmd.Name == "scatter" {
			return i
		}
	}
	return -1
}

// execScatter runs a pipeline containing a scatter stage: upstream
// stages feed items, the stages between scatter and gather run once per
// item on snapshot scopes, gather merges results.
func (r *runner) execScatter(ctx context.Context, p *lang.PipelineStmt, sio *stdio) (*interp.ExecResult, error) {
	si := scatterIndex(p)
	gi := -1
	for i := si + 1; i < len(p.Cmds); i++ {
		switch p.Cmds[i].Name {
		case "gather":
			gi = i
		case "scatter":
			return nil, interp.Errf(interp.ArgumentError, p.Cmds[i].Span, "nested scatter is not supported")
		}
	}
	if gi == -1 {
		return nil, interp.Errf(interp.ArgumentError, p.Cmds[si].Span, "scatter without a matching gather")
	}
	if gi != len(p.Cmds)-1 {
		return nil, interp.Errf(interp.ArgumentError, p.Cmds[gi].Span, "gather must be the final stage")
	}

	scatterInv, err := r.buildInvocation(ctx, p.Cmds[si])
	if err != nil {
		return nil, err
	}
	gatherInv, err := r.buildInvocation(ctx, p.Cmds[gi])
	if err != nil {
		return nil, err
	}
	opts := sched.ScatterOptions{
		As:     scatterInv.NamedOr("as", interp.Str("")).Text(),
		Limit:  int(scatterInv.NamedOr("limit", interp.Int(0)).AsInt()),
		First:  int(gatherInv.NamedOr("first", interp.Int(0)).AsInt()),
		Format: gatherInv.NamedOr("format", interp.Str("")).Text(),
	}
	if gatherInv.NamedOr("progress", interp.Bool(false)).Truthy() {
		opts.Progress = sio.err
	}
	if max := r.k.cfg.Limits.ScatterWorkers; max > 0 && (opts.Limit <= 0 || opts.Limit > max) {
		opts.Limit = max
	}
	opts.Normalize()

	// Upstream stages produce the items.
	capUp := sched.NewCapture(r.k.cfg.Limits.CaptureBytes)
	if si > 0 {
		stages := make([]sched.Stage, 0, si)
		for _, cmd := range p.Cmds[:si] {
			stages = append(stages, r.commandStage(cmd))
		}
		capErr := sched.NewCapture(r.k.cfg.Limits.CaptureBytes)
		up := sched.RunPipeline(ctx, stages, r.k.cfg.Limits.StreamBytes, sio.in, capUp, io.MultiWriter(sio.err, capErr))
		if !up.Ok {
			up.Out = capUp.String()
			if up.Err == "" {
				up.Err = strings.TrimSpace(capErr.String())
			}
			up.ParseData()
			return up, nil
		}
	} else if sio.in != nil {
		if _, err := io.Copy(capUp, sio.in); err != nil {
			return nil, interp.Errf(interp.IOError, p.Span, "scatter input: %v", err)
		}
	}
	items := sched.SplitItems(capUp.String())

	workerCmds := p.Cmds[si+1 : gi]
	worker := func(wctx context.Context, item interp.Value) *interp.ExecResult {
		if len(workerCmds) == 0 {
			return interp.OK(item.Text() + "\n")
		}
		ws := r.scope.Child()
		ws.SetLocal(opts.As, item)
		wr := r.k.runner(ws)

		capOut := sched.NewCapture(r.k.cfg.Limits.CaptureBytes)
		capErr := sched.NewCapture(r.k.cfg.Limits.CaptureBytes)
		stages := make([]sched.Stage, 0, len(workerCmds))
		for _, cmd := range workerCmds {
			stages = append(stages, wr.commandStage(cmd))
		}
		res := sched.RunPipeline(wctx, stages, r.k.cfg.Limits.StreamBytes, strings.NewReader(item.Text()), capOut, capErr)
		res.Out = capOut.String()
		if !res.Ok && res.Err == "" {
			res.Err = strings.TrimSpace(capErr.String())
		}
		res.ParseData()
		return res
	}

	outcome := sched.RunScatter(ctx, items, worker, opts)

	rendered, err := outcome.Render(opts.Format)
	if err != nil {
		return nil, interp.Errf(interp.ArgumentError, p.Cmds[gi].Span, "%v", err)
	}
	if _, err := io.WriteString(sio.out, rendered); err != nil {
		return nil, interp.Errf(interp.IOError, p.Span, "gather output: %v", err)
	}

	if path := gatherInv.NamedOr("errors", interp.Str("")).Text(); path != "" && len(outcome.Failures) > 0 {
		target := r.resolvePath(path)
		if err := r.k.fs.Write(ctx, target, []byte(outcome.ErrorSummary())); err != nil {
			return nil, interp.Errf(interp.IOError, p.Cmds[gi].Span, "gather errors file: %v", err)
		}
	}

	res := &interp.ExecResult{Out: rendered, Ok: outcome.Ok}
	if !outcome.Ok {
		res.Code = 1
		res.Err = fmt.Sprintf("%d of %d items failed", len(outcome.Failures), len(items))
	} else if len(outcome.Failures) > 0 {
		fmt.Fprintf(sio.err, "gather: %d of %d items failed\n", len(outcome.Failures), len(items))
	}
	res.ParseData()
	return res, nil
}

// ---- display text for job listings ----

// pipeText reconstructs a readable approximation of a pipeline for job
// listings; it is display text, not re-parsable source.
func pipeText(p *lang.PipelineStmt) string {
	parts := make([]string, 0, len(p.Cmds))
	for _, cmd := range p.Cmds {
		words := []string{cmd.Name}
		for _, arg := range cmd.Args {
			words = append(words, argText(arg))
		}
		parts = append(parts, strings.Join(words, " "))
	}
	text := strings.Join(parts, " | ")
	if p.Background {
		text += " &"
	}
	return text
}

func argText(arg lang.Arg) string {
	switch arg.Kind {
	case lang.ArgNamed:
		return arg.Key + "=" + exprText(arg.Value)
	case lang.ArgFlag:
		dash := "--"
		if arg.Short {
			dash = "-"
		}
		if arg.Value == nil {
			return dash + arg.Key
		}
		return dash + arg.Key + "=" + exprText(arg.Value)
	}
	return exprText(arg.Value)
}

func exprText(e lang.Expr) string {
	switch x := e.(type) {
	case *lang.NullLit:
		return "null"
	case *lang.BoolLit:
		return fmt.Sprintf("%t", x.V)
	case *lang.IntLit:
		return fmt.Sprintf("%d", x.V)
	case *lang.FloatLit:
		return fmt.Sprintf("%g", x.V)
	case *lang.StringLit:
		if strings.ContainsAny(x.V, " \t|&<>") {
			return fmt.Sprintf("%q", x.V)
		}
		return x.V
	case *lang.VarRef:
		return "$" + x.Name()
	case *lang.CmdSubst:
		return "$(" + pipeText(x.Pipe) + ")"
	}
	return "…"
}
