// Package core implements the execution kernel: it owns the scope,
// tool registry, filesystem router, job table and persistent state, and
// executes parsed programs against them.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/indielab/kaish/core/builtins"
	"github.com/indielab/kaish/core/config"
	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/lang"
	"github.com/indielab/kaish/core/logger"
	"github.com/indielab/kaish/core/remote"
	"github.com/indielab/kaish/core/sched"
	"github.com/indielab/kaish/core/state"
	"github.com/indielab/kaish/core/tools"
	"github.com/indielab/kaish/core/vfs"
)

// ToolClient is the slice of the remote client tool servers need.
// Tests substitute fakes through WithDialer.
type ToolClient interface {
	CallTool(ctx context.Context, tool string, args *interp.Object) (*interp.ExecResult, error)
	ToolSchemas(ctx context.Context) ([]*tools.Schema, error)
	Close() error
}

// Dialer opens a connection to a tool server address.
type Dialer func(ctx context.Context, addr string) (ToolClient, error)

// Option configures a Kernel.
type Option func(*Kernel)

// WithStore attaches a persistence store; the kernel restores from it
// on construction and commits mutations incrementally.
func WithStore(st *state.Store) Option {
	return func(k *Kernel) { k.store = st }
}

// WithLogger attaches an event logger.
func WithLogger(l *logger.Logger) Option {
	return func(k *Kernel) { k.log = l.NewSession() }
}

// WithDialer overrides how tool server connections are opened.
func WithDialer(d Dialer) Option {
	return func(k *Kernel) { k.dial = d }
}

// Kernel executes programs: one session's scope, registry, filesystem,
// jobs and persistence glued together.
type Kernel struct {
	cfg      *config.Configuration
	registry *tools.Registry
	fs       *vfs.Router
	jobs     *sched.JobManager
	store    *state.Store
	log      *logger.SessionLogger
	dial     Dialer

	mu      sync.Mutex
	scope   *interp.Scope
	cwd     string
	errExit bool
	history []string
	last    *interp.ExecResult
	clients map[string]ToolClient
}

// New builds a kernel from the configuration, restoring persisted state
// when a store is attached.
func New(ctx context.Context, cfg *config.Configuration, opts ...Option) (*Kernel, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	k := &Kernel{
		cfg:      cfg,
		registry: tools.NewRegistry(),
		fs:       vfs.NewRouter(vfs.NewMemory()),
		jobs:     sched.NewJobManager(),
		log:      logger.Discard().Session(""),
		scope:    interp.NewScope(nil),
		cwd:      "/",
		clients:  map[string]ToolClient{},
	}
	k.dial = k.defaultDial
	for _, opt := range opts {
		opt(k)
	}

	builtins.Register(k.registry)

	for _, mc := range cfg.Mounts {
		m, err := k.buildMount(ctx, mc.Path, mc.Type, mc.Spec, mc.ReadOnly)
		if err != nil {
			return nil, fmt.Errorf("mount %s: %w", mc.Path, err)
		}
		if err := k.fs.Mount(m); err != nil {
			return nil, fmt.Errorf("mount %s: %w", mc.Path, err)
		}
	}

	if k.store != nil {
		if err := k.restore(ctx); err != nil {
			return nil, fmt.Errorf("restore session: %w", err)
		}
	}

	for _, sc := range cfg.Servers {
		if err := k.RegisterToolServer(ctx, sc.Name, sc.Address); err != nil {
			return nil, fmt.Errorf("server %s: %w", sc.Name, err)
		}
	}
	return k, nil
}

// Close cancels background jobs and closes server connections and the
// store.
func (k *Kernel) Close() error {
	k.jobs.CancelAll()

	k.mu.Lock()
	clients := k.clients
	k.clients = map[string]ToolClient{}
	k.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}

	if k.store != nil {
		return k.store.Close()
	}
	return nil
}

func (k *Kernel) defaultDial(ctx context.Context, addr string) (ToolClient, error) {
	return remote.Dial(ctx, addr,
		remote.WithRateLimit(k.cfg.Limits.RemoteCallsPerSecond))
}

// buildMount constructs a mount with its backend.
func (k *Kernel) buildMount(ctx context.Context, path, mtype, spec string, readOnly bool) (*vfs.Mount, error) {
	m := &vfs.Mount{Path: path, Type: mtype, Spec: spec, ReadOnly: readOnly}
	switch mtype {
	case "memory":
		m.Backend = vfs.NewMemory()
	case "local":
		if spec == "" {
			return nil, fmt.Errorf("local mounts need a directory spec")
		}
		m.Backend = vfs.NewLocal(spec)
	case "remote":
		if spec == "" {
			return nil, fmt.Errorf("remote mounts need an address spec")
		}
		addr, root, _ := strings.Cut(spec, "!")
		client, err := remote.Dial(ctx, addr,
			remote.WithRateLimit(k.cfg.Limits.RemoteCallsPerSecond))
		if err != nil {
			return nil, err
		}
		m.Backend = remote.NewResourceBackend(client, root)
	default:
		return nil, fmt.Errorf("unknown mount type %q", mtype)
	}
	return m, nil
}

// restore reloads persisted state into the live kernel.
func (k *Kernel) restore(ctx context.Context) error {
	if cwd, ok, err := k.store.GetMeta(ctx, "cwd"); err != nil {
		return err
	} else if ok {
		k.cwd = cwd
	}
	if ee, ok, err := k.store.GetMeta(ctx, "errexit"); err != nil {
		return err
	} else if ok {
		k.errExit = ee == "1"
	}

	vars, err := k.store.LoadVars(ctx)
	if err != nil {
		return err
	}
	for name, v := range vars {
		k.scope.Set(name, v)
	}

	toolSrcs, err := k.store.LoadTools(ctx)
	if err != nil {
		return err
	}
	for name, src := range toolSrcs {
		if err := k.defineToolSource(ctx, src, false); err != nil {
			return fmt.Errorf("tool %s: %w", name, err)
		}
	}

	mounts, err := k.store.LoadMounts(ctx)
	if err != nil {
		return err
	}
	for _, row := range mounts {
		m, err := k.buildMount(ctx, row.Path, row.Type, row.Spec, row.ReadOnly)
		if err != nil {
			return err
		}
		if err := k.fs.Mount(m); err != nil {
			return err
		}
	}

	servers, err := k.store.LoadServers(ctx)
	if err != nil {
		return err
	}
	for _, row := range servers {
		if err := k.registerServer(ctx, row.Name, row.Address, false); err != nil {
			return err
		}
	}

	last, err := k.store.LoadLast(ctx)
	if err != nil {
		return err
	}
	if last != nil {
		k.last = last
	}
	return nil
}

// defineToolSource parses a `tool ...` definition and registers it.
func (k *Kernel) defineToolSource(ctx context.Context, src string, persist bool) error {
	prog, err := lang.Parse(src)
	if err != nil {
		return err
	}
	for _, st := range prog.Stmts {
		def, ok := st.(*lang.ToolDefStmt)
		if !ok {
			return fmt.Errorf("not a tool definition")
		}
		if err := k.defineTool(ctx, def, persist); err != nil {
			return err
		}
	}
	return nil
}

// defineTool registers a user tool from its parsed definition.
func (k *Kernel) defineTool(ctx context.Context, def *lang.ToolDefStmt, persist bool) error {
	r := k.mainRunner()
	schema, err := tools.SchemaFromDef(def, func(e lang.Expr) (interp.Value, error) {
		return r.eval.EvalExpr(ctx, e)
	})
	if err != nil {
		return err
	}
	if err := k.registry.RegisterUser(schema, k.userToolHandler(def, schema)); err != nil {
		return err
	}
	if persist && k.store != nil {
		src := fmt.Sprintf("tool %s(%s) {\n%s\n}", def.Name, renderParams(schema), def.Source)
		if err := k.store.SaveTool(ctx, def.Name, src); err != nil {
			return err
		}
	}
	return nil
}

// renderParams reconstructs a parameter list header for re-export.
// Defaults are re-rendered from their evaluated values; JSON literals
// parse back as expressions.
func renderParams(schema *tools.Schema) string {
	parts := make([]string, 0, len(schema.Params))
	for _, p := range schema.Params {
		s := p.Name + ": " + p.TypeName
		if !p.Required {
			raw, err := p.Default.MarshalJSON()
			if err == nil {
				s += " = " + string(raw)
			}
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

// userToolHandler runs a tool body in an isolated scope.
func (k *Kernel) userToolHandler(def *lang.ToolDefStmt, schema *tools.Schema) tools.Handler {
	return func(ec *tools.ExecContext) int {
		bound, err := tools.Bind(schema, ec.Inv)
		if err != nil {
			return ec.Errorf(interp.ArgumentError, "%v", err)
		}

		ec.Scope.PushIsolated(ec.Inv.Pos)
		defer ec.Scope.Pop()
		for _, key := range bound.Keys() {
			v, _ := bound.Get(key)
			ec.Scope.SetLocal(key, v)
		}

		r := k.runner(ec.Scope)
		sio := &stdio{in: ec.Stdin, out: ec.Stdout, err: ec.Stderr}
		res := r.execSeq(ec.Ctx, def.Body, sio)
		return res.Code
	}
}

// mainRunner returns a runner over the session scope.
func (k *Kernel) mainRunner() *runner {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.runner(k.scope)
}

// runner builds an executor bound to a scope.
func (k *Kernel) runner(scope *interp.Scope) *runner {
	r := &runner{k: k, scope: scope}
	r.eval = &interp.Evaluator{
		Scope: scope,
		Last:  func() *interp.ExecResult { return r.lastResult() },
		Subst: r.subst,
	}
	return r
}

// Run executes one top-level input with captured output.
func (k *Kernel) Run(ctx context.Context, input string) *interp.ExecResult {
	return k.RunStreaming(ctx, input, io.Discard, io.Discard)
}

// RunStreaming executes one top-level input, forwarding output to the
// given writers as it is produced.
func (k *Kernel) RunStreaming(ctx context.Context, input string, stdout, stderr io.Writer) *interp.ExecResult {
	k.recordHistory(input)
	_ = k.log.Record(&logger.Execute{Input: input})

	prog, err := lang.Parse(input)
	if err != nil {
		res := k.parseFailure(ctx, input, err)
		fmt.Fprint(stderr, res.Err)
		return res
	}

	r := k.mainRunner()
	r.main = true

	capOut := sched.NewCapture(k.cfg.Limits.CaptureBytes)
	capErr := sched.NewCapture(k.cfg.Limits.CaptureBytes)
	sio := &stdio{
		in:  strings.NewReader(""),
		out: io.MultiWriter(stdout, capOut),
		err: io.MultiWriter(stderr, capErr),
	}

	res := r.execSeq(ctx, prog.Stmts, sio)
	final := &interp.ExecResult{
		Code: res.Code, Ok: res.Code == 0,
		Out: capOut.String(), Err: res.Err,
		Duration: res.Duration,
	}
	if final.Err == "" {
		final.Err = capErr.String()
	}
	final.ParseData()

	k.setLast(ctx, final)
	_ = k.log.Record(&logger.Result{
		Code: final.Code, Ok: final.Ok, Error: final.Err,
		DurationMS: float64(final.Duration.Milliseconds()),
	})
	return final
}

// parseFailure logs a rejected input and produces its result.
func (k *Kernel) parseFailure(ctx context.Context, input string, err error) *interp.ExecResult {
	ev := &logger.ParseError{Message: err.Error()}
	switch e := err.(type) {
	case *lang.LexError:
		ev.Line, ev.Column = e.Span.LineCol(input)
	case *lang.ParseError:
		ev.Line, ev.Column = e.Span.LineCol(input)
	}
	_ = k.log.Record(ev)
	res := interp.Fail(2, lang.RenderError(err, "", input))
	k.setLast(ctx, res)
	return res
}

func (k *Kernel) recordHistory(input string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.history = append(k.history, input)
	if max := k.cfg.Limits.HistoryEntries; max > 0 && len(k.history) > max {
		k.history = k.history[len(k.history)-max:]
	}
}

func (k *Kernel) setLast(ctx context.Context, res *interp.ExecResult) {
	k.mu.Lock()
	k.last = res
	k.mu.Unlock()
	if k.store != nil {
		_ = k.store.SaveLast(ctx, res)
	}
}

// --- tools.Kernel ---

// Cwd returns the working directory.
func (k *Kernel) Cwd() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.cwd
}

// SetCwd changes the working directory after verifying it exists.
func (k *Kernel) SetCwd(ctx context.Context, path string) error {
	info, err := k.fs.Stat(ctx, path)
	if err != nil {
		return err
	}
	if !info.Dir {
		return fmt.Errorf("not a directory: %s", path)
	}
	k.mu.Lock()
	k.cwd = path
	k.mu.Unlock()
	if k.store != nil {
		return k.store.SetMeta(ctx, "cwd", path)
	}
	return nil
}

// Last returns the most recent top-level result.
func (k *Kernel) Last() *interp.ExecResult {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.last
}

// History returns executed inputs, oldest first.
func (k *Kernel) History() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.history...)
}

// SetErrExit toggles abort-on-failure.
func (k *Kernel) SetErrExit(on bool) {
	k.mu.Lock()
	k.errExit = on
	k.mu.Unlock()
	if k.store != nil {
		flag := "0"
		if on {
			flag = "1"
		}
		_ = k.store.SetMeta(context.Background(), "errexit", flag)
	}
}

func (k *Kernel) errExitOn() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.errExit
}

// RunScript parses and executes src in the session scope, capturing its
// output. The source builtin and serve-mode script loading use it.
func (k *Kernel) RunScript(ctx context.Context, name, src string) (*interp.ExecResult, error) {
	prog, err := lang.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", name, lang.RenderError(err, name, src))
	}
	r := k.mainRunner()
	r.main = true

	capOut := sched.NewCapture(k.cfg.Limits.CaptureBytes)
	capErr := sched.NewCapture(k.cfg.Limits.CaptureBytes)
	sio := &stdio{in: strings.NewReader(""), out: capOut, err: capErr}
	res := r.execSeq(ctx, prog.Stmts, sio)
	return &interp.ExecResult{
		Code: res.Code, Ok: res.Code == 0,
		Out: capOut.String(), Err: capErr.String(),
	}, nil
}

// Jobs lists background jobs.
func (k *Kernel) Jobs() []tools.JobInfo {
	jobs := k.jobs.List()
	out := make([]tools.JobInfo, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, tools.JobInfo{
			ID: j.ID, Status: j.Status().String(), Text: j.Text,
		})
	}
	return out
}

// WaitJob waits for one job, or all jobs when id is 0.
func (k *Kernel) WaitJob(ctx context.Context, id int) ([]tools.JobResult, error) {
	if id != 0 {
		res, err := k.jobs.Wait(ctx, id)
		if err != nil {
			return nil, err
		}
		return []tools.JobResult{{ID: id, Result: res}}, nil
	}
	all, err := k.jobs.WaitAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tools.JobResult, 0, len(all))
	for jid, res := range all {
		out = append(out, tools.JobResult{ID: jid, Result: res})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CancelJob cancels a running job.
func (k *Kernel) CancelJob(id int) error {
	return k.jobs.Cancel(id)
}

// AddMount mounts a backend and persists the mount table entry.
func (k *Kernel) AddMount(ctx context.Context, m *vfs.Mount) error {
	if err := k.fs.Mount(m); err != nil {
		return err
	}
	_ = k.log.Record(&logger.MountChange{Action: "mount", Path: m.Path, Type: m.Type})
	if k.store != nil {
		return k.store.SaveMount(ctx, state.MountRow{
			Path: m.Path, Type: m.Type, Spec: m.Spec, ReadOnly: m.ReadOnly,
		})
	}
	return nil
}

// RemoveMount unmounts a path and removes it from the mount table.
func (k *Kernel) RemoveMount(ctx context.Context, path string) error {
	if err := k.fs.Unmount(path); err != nil {
		return err
	}
	_ = k.log.Record(&logger.MountChange{Action: "unmount", Path: path})
	if k.store != nil {
		return k.store.DeleteMount(ctx, path)
	}
	return nil
}

// --- remote.Session ---

// Execute runs input for the RPC surface.
func (k *Kernel) Execute(ctx context.Context, input string) *interp.ExecResult {
	return k.Run(ctx, input)
}

// ExecuteStreaming runs input, forwarding output for the RPC surface.
func (k *Kernel) ExecuteStreaming(ctx context.Context, input string, stdout, stderr io.Writer) *interp.ExecResult {
	return k.RunStreaming(ctx, input, stdout, stderr)
}

// GetVar reads a session variable.
func (k *Kernel) GetVar(name string) (interp.Value, bool) {
	return k.scope.Get(name)
}

// SetVar writes and persists a session variable.
func (k *Kernel) SetVar(name string, v interp.Value) error {
	k.scope.Set(name, v)
	if k.store != nil {
		return k.store.SaveVar(context.Background(), name, v)
	}
	return nil
}

// ListVars returns the visible variables.
func (k *Kernel) ListVars() *interp.Object {
	return k.scope.Visible()
}

// ListTools returns every resolvable tool.
func (k *Kernel) ListTools() []*tools.Entry {
	return k.registry.List()
}

// CallTool invokes one tool directly with named arguments, outside any
// pipeline. The RPC callTool operation uses it.
func (k *Kernel) CallTool(ctx context.Context, name string, args *interp.Object) (*interp.ExecResult, error) {
	entry, err := k.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	inv := tools.NewInvocation()
	if args != nil {
		for _, key := range args.Keys() {
			v, _ := args.Get(key)
			inv.AddNamed(key, v)
		}
	}

	r := k.mainRunner()
	capOut := sched.NewCapture(k.cfg.Limits.CaptureBytes)
	capErr := sched.NewCapture(k.cfg.Limits.CaptureBytes)
	ec := &tools.ExecContext{
		Ctx: ctx, Stdin: strings.NewReader(""), Stdout: capOut, Stderr: capErr,
		FS: k.fs, Scope: r.scope, Eval: r.eval, Kernel: k,
		Registry: k.registry, Name: name, Inv: inv,
	}
	code := entry.Handler(ec)
	res := &interp.ExecResult{
		Code: code, Ok: code == 0,
		Out: capOut.String(), Err: capErr.String(),
	}
	res.ParseData()
	return res, nil
}

// registerServer dials a tool server and installs its schemas.
func (k *Kernel) registerServer(ctx context.Context, name, address string, persist bool) error {
	client, err := k.dial(ctx, address)
	if err != nil {
		return err
	}
	schemas, err := client.ToolSchemas(ctx)
	if err != nil {
		client.Close()
		return err
	}
	k.registry.RegisterServer(name, schemas, client.CallTool)

	k.mu.Lock()
	if old, ok := k.clients[name]; ok {
		old.Close()
	}
	k.clients[name] = client
	k.mu.Unlock()

	if persist && k.store != nil {
		rawSchemas, err := schemasJSON(schemas)
		if err != nil {
			return err
		}
		return k.store.SaveServer(ctx, state.ServerRow{
			Name: name, Address: address, Schemas: rawSchemas,
		})
	}
	return nil
}

// RegisterToolServer connects a named tool server.
func (k *Kernel) RegisterToolServer(ctx context.Context, name, address string) error {
	return k.registerServer(ctx, name, address, true)
}

// UnregisterToolServer disconnects a tool server.
func (k *Kernel) UnregisterToolServer(ctx context.Context, name string) error {
	k.registry.UnregisterServer(name)

	k.mu.Lock()
	if client, ok := k.clients[name]; ok {
		client.Close()
		delete(k.clients, name)
	}
	k.mu.Unlock()

	if k.store != nil {
		return k.store.DeleteServer(ctx, name)
	}
	return nil
}

// ToolServers lists registered tool server names.
func (k *Kernel) ToolServers() []string {
	return k.registry.Servers()
}

// FS returns the filesystem router.
func (k *Kernel) FS() *vfs.Router { return k.fs }

// SnapshotState dumps persisted state as JSON.
func (k *Kernel) SnapshotState(ctx context.Context, w io.Writer) error {
	if k.store == nil {
		return fmt.Errorf("session has no persistent store")
	}
	return k.store.WriteSnapshot(ctx, w)
}

// RestoreState replaces state from a snapshot and reloads the session.
func (k *Kernel) RestoreState(ctx context.Context, r io.Reader) error {
	if k.store == nil {
		return fmt.Errorf("session has no persistent store")
	}
	if err := k.store.ReadSnapshot(ctx, r); err != nil {
		return err
	}
	return k.reload(ctx)
}

// ResetState clears all persisted and live state.
func (k *Kernel) ResetState(ctx context.Context) error {
	if k.store != nil {
		if err := k.store.Reset(ctx); err != nil {
			return err
		}
	}
	return k.reload(ctx)
}

// reload rebuilds live state: fresh scope, registry and mounts, then a
// restore pass from the store.
func (k *Kernel) reload(ctx context.Context) error {
	k.mu.Lock()
	k.scope = interp.NewScope(nil)
	k.cwd = "/"
	k.errExit = false
	k.last = nil
	clients := k.clients
	k.clients = map[string]ToolClient{}
	k.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}

	k.registry = tools.NewRegistry()
	builtins.Register(k.registry)
	k.fs = vfs.NewRouter(vfs.NewMemory())
	for _, mc := range k.cfg.Mounts {
		m, err := k.buildMount(ctx, mc.Path, mc.Type, mc.Spec, mc.ReadOnly)
		if err != nil {
			return err
		}
		if err := k.fs.Mount(m); err != nil {
			return err
		}
	}

	if k.store != nil {
		return k.restore(ctx)
	}
	return nil
}

// ReadBlob reads from the blob store.
func (k *Kernel) ReadBlob(ctx context.Context, hash string) ([]byte, error) {
	if k.store == nil {
		return nil, fmt.Errorf("session has no persistent store")
	}
	return k.store.ReadBlob(ctx, hash)
}

// WriteBlob writes to the blob store.
func (k *Kernel) WriteBlob(ctx context.Context, data []byte) (string, error) {
	if k.store == nil {
		return "", fmt.Errorf("session has no persistent store")
	}
	return k.store.WriteBlob(ctx, data)
}

// DeleteBlob removes from the blob store.
func (k *Kernel) DeleteBlob(ctx context.Context, hash string) error {
	if k.store == nil {
		return fmt.Errorf("session has no persistent store")
	}
	return k.store.DeleteBlob(ctx, hash)
}

// schemasJSON renders registered tool names for persistence.
func schemasJSON(schemas []*tools.Schema) (string, error) {
	names := make([]string, 0, len(schemas))
	for _, s := range schemas {
		names = append(names, s.Name)
	}
	raw, err := json.Marshal(names)
	return string(raw), err
}

var (
	_ tools.Kernel   = (*Kernel)(nil)
	_ remote.Session = (*Kernel)(nil)
)
