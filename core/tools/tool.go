// Package tools defines the tool model: schemas, invocations and the
// registry that resolves command names to handlers.
package tools

import (
	"context"
	"fmt"
	"io"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/lang"
	"github.com/indielab/kaish/core/vfs"
)

// Source says where a tool came from.
type Source int

const (
	SourceBuiltin Source = iota
	SourceUser
	SourceRemote
)

func (s Source) String() string {
	switch s {
	case SourceBuiltin:
		return "builtin"
	case SourceUser:
		return "user"
	case SourceRemote:
		return "remote"
	}
	return "unknown"
}

// Param is one declared parameter of a tool.
type Param struct {
	Name     string         `json:"name"`
	Type     lang.ParamType `json:"-"`
	TypeName string         `json:"type"`
	Required bool           `json:"required"`
	Default  interp.Value   `json:"-"`
	Doc      string         `json:"doc,omitempty"`
}

// Schema describes a tool for validation, help and introspection.
type Schema struct {
	Name   string  `json:"name"`
	Doc    string  `json:"doc,omitempty"`
	Params []Param `json:"params,omitempty"`
}

// Handler executes a tool and returns its exit code. Output goes through
// the ExecContext streams, in the same shape external processes have.
type Handler func(ec *ExecContext) int

// Kernel is the slice of kernel behavior tools may call back into.
type Kernel interface {
	// Cwd returns the current working directory.
	Cwd() string
	// SetCwd changes the working directory; the path must exist.
	SetCwd(ctx context.Context, path string) error
	// Last returns the current last-result record.
	Last() *interp.ExecResult
	// History returns executed top-level inputs, oldest first.
	History() []string
	// SetErrExit toggles the set -e option.
	SetErrExit(on bool)
	// RunScript parses and executes src as a statement sequence in the
	// current scope. The source builtin uses it.
	RunScript(ctx context.Context, name, src string) (*interp.ExecResult, error)
	// Jobs lists background jobs.
	Jobs() []JobInfo
	// WaitJob blocks until job id completes; id 0 waits for all jobs.
	WaitJob(ctx context.Context, id int) ([]JobResult, error)
	// CancelJob requests cancellation of a running job.
	CancelJob(id int) error
	// AddMount mounts a backend and records it for persistence.
	AddMount(ctx context.Context, m *vfs.Mount) error
	// RemoveMount unmounts a path.
	RemoveMount(ctx context.Context, path string) error
}

// JobInfo is a snapshot of one background job for listings.
type JobInfo struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
}

// JobResult pairs a job id with its final result.
type JobResult struct {
	ID     int                `json:"id"`
	Result *interp.ExecResult `json:"result"`
}

// ExecContext carries everything a running tool may touch.
type ExecContext struct {
	Ctx    context.Context
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	FS       *vfs.Router
	Scope    *interp.Scope
	Eval     *interp.Evaluator
	Kernel   Kernel
	Registry *Registry

	// Name is the name the tool was invoked under.
	Name string
	Inv  *Invocation
}

// Errorf writes a classified error message to stderr and returns the
// kind's exit code, the common failure path for builtins.
func (ec *ExecContext) Errorf(kind interp.ErrorKind, format string, args ...interface{}) int {
	fmt.Fprintf(ec.Stderr, "%s: %s: %s\n", ec.Name, kind, fmt.Sprintf(format, args...))
	return kind.ExitCode()
}

// Invocation is a tool call after expansion: evaluated positional
// arguments, named arguments and flags.
type Invocation struct {
	Pos   []interp.Value
	Named *interp.Object
	// Flags maps flag name to value; bare flags carry Bool(true).
	Flags map[string]interp.Value
	// flagOrder preserves the command-line order for Argv.
	flagOrder []flagUse
}

type flagUse struct {
	name  string
	short bool
}

// NewInvocation returns an empty invocation.
func NewInvocation() *Invocation {
	return &Invocation{Named: interp.NewObject(), Flags: map[string]interp.Value{}}
}

// AddPos appends a positional argument.
func (inv *Invocation) AddPos(v interp.Value) { inv.Pos = append(inv.Pos, v) }

// AddNamed records a key=value argument.
func (inv *Invocation) AddNamed(key string, v interp.Value) { inv.Named.Set(key, v) }

// AddFlag records a flag. v is Bool(true) for bare flags.
func (inv *Invocation) AddFlag(name string, short bool, v interp.Value) {
	inv.Flags[name] = v
	inv.flagOrder = append(inv.flagOrder, flagUse{name: name, short: short})
}

// Flag fetches a flag value.
func (inv *Invocation) Flag(name string) (interp.Value, bool) {
	v, ok := inv.Flags[name]
	return v, ok
}

// NamedOr fetches a named argument with a fallback.
func (inv *Invocation) NamedOr(key string, def interp.Value) interp.Value {
	if v, ok := inv.Named.Get(key); ok {
		return v
	}
	return def
}

// Argv renders the invocation as an argv slice for getopt-style parsing:
// tool name, flags in order, then positionals as display text.
func (inv *Invocation) Argv(name string) []string {
	argv := []string{name}
	for _, fu := range inv.flagOrder {
		v := inv.Flags[fu.name]
		switch {
		case fu.short:
			argv = append(argv, "-"+fu.name)
		case v.Kind() == interp.KindBool && v.AsBool():
			argv = append(argv, "--"+fu.name)
		default:
			argv = append(argv, "--"+fu.name+"="+v.Text())
		}
	}
	for _, v := range inv.Pos {
		argv = append(argv, v.Text())
	}
	return argv
}
