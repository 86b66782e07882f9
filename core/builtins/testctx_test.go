package builtins

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/tools"
	"github.com/indielab/kaish/core/vfs"
)

// fakeKernel implements tools.Kernel with canned answers so each builtin
// can be exercised without a running interpreter.
type fakeKernel struct {
	cwd     string
	fs      *vfs.Router
	history []string
	errExit *bool

	jobs    []tools.JobInfo
	waited  []tools.JobResult
	waitErr error

	ranScript string
	scriptRes *interp.ExecResult
}

func newFakeKernel(fs *vfs.Router) *fakeKernel {
	return &fakeKernel{cwd: "/", fs: fs}
}

func (k *fakeKernel) Cwd() string { return k.cwd }

func (k *fakeKernel) SetCwd(ctx context.Context, path string) error {
	info, err := k.fs.Stat(ctx, path)
	if err != nil {
		return err
	}
	if !info.Dir {
		return fmt.Errorf("not a directory: %s", path)
	}
	k.cwd = path
	return nil
}

func (k *fakeKernel) Last() *interp.ExecResult { return interp.OK("") }
func (k *fakeKernel) History() []string        { return k.history }

func (k *fakeKernel) SetErrExit(on bool) { k.errExit = &on }

func (k *fakeKernel) RunScript(ctx context.Context, name, src string) (*interp.ExecResult, error) {
	k.ranScript = src
	if k.scriptRes != nil {
		return k.scriptRes, nil
	}
	return interp.OK(""), nil
}

func (k *fakeKernel) Jobs() []tools.JobInfo { return k.jobs }

func (k *fakeKernel) WaitJob(ctx context.Context, id int) ([]tools.JobResult, error) {
	if k.waitErr != nil {
		return nil, k.waitErr
	}
	if id == 0 {
		return k.waited, nil
	}
	for _, jr := range k.waited {
		if jr.ID == id {
			return []tools.JobResult{jr}, nil
		}
	}
	return nil, fmt.Errorf("no such job: %%%d", id)
}

func (k *fakeKernel) CancelJob(id int) error { return nil }

func (k *fakeKernel) AddMount(ctx context.Context, m *vfs.Mount) error {
	return k.fs.Mount(m)
}

func (k *fakeKernel) RemoveMount(ctx context.Context, path string) error {
	return k.fs.Unmount(path)
}

// testContext bundles an ExecContext with its capture buffers.
type testContext struct {
	ec     *tools.ExecContext
	kernel *fakeKernel
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// newTestContext builds an ExecContext over a fresh in-memory filesystem.
func newTestContext(t *testing.T, name string, inv *tools.Invocation) *testContext {
	t.Helper()
	fs := vfs.NewRouter(vfs.NewMemory())
	kernel := newFakeKernel(fs)
	scope := interp.NewScope(nil)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	if inv == nil {
		inv = tools.NewInvocation()
	}
	return &testContext{
		ec: &tools.ExecContext{
			Ctx:      context.Background(),
			Stdin:    strings.NewReader(""),
			Stdout:   stdout,
			Stderr:   stderr,
			FS:       fs,
			Scope:    scope,
			Eval:     &interp.Evaluator{Scope: scope, Last: kernel.Last},
			Kernel:   kernel,
			Registry: tools.NewRegistry(),
			Name:     name,
			Inv:      inv,
		},
		kernel: kernel,
		stdout: stdout,
		stderr: stderr,
	}
}

// invoke is shorthand for building an invocation out of positional words.
func invoke(words ...string) *tools.Invocation {
	inv := tools.NewInvocation()
	for _, w := range words {
		inv.AddPos(interp.Str(w))
	}
	return inv
}
