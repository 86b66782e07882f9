package tools

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/lang"
)

// RemoteCall invokes one tool on a remote server with named arguments.
type RemoteCall func(ctx context.Context, tool string, args *interp.Object) (*interp.ExecResult, error)

// Entry is one resolvable tool.
type Entry struct {
	Name    string
	Source  Source
	Schema  *Schema
	Handler Handler
}

// remoteServer is a registered tool server namespace.
type remoteServer struct {
	name    string
	schemas map[string]*Schema
	call    RemoteCall
}

// Registry resolves command names. Resolution order is builtins, then
// user-defined tools, then dotted remote names (server.tool).
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]*Entry
	user     map[string]*Entry
	remote   map[string]*remoteServer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		builtins: map[string]*Entry{},
		user:     map[string]*Entry{},
		remote:   map[string]*remoteServer{},
	}
}

// RegisterBuiltin installs a builtin. Called during kernel construction;
// duplicate builtin names are a programming error.
func (r *Registry) RegisterBuiltin(schema *Schema, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builtins[schema.Name]; exists {
		panic("duplicate builtin " + schema.Name)
	}
	r.builtins[schema.Name] = &Entry{Name: schema.Name, Source: SourceBuiltin, Schema: schema, Handler: h}
}

// RegisterUser installs a user-defined tool. Shadowing a builtin is an
// error; redefining an existing user tool replaces it.
func (r *Registry) RegisterUser(schema *Schema, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builtins[schema.Name]; exists {
		return interp.Errf(interp.ArgumentError, lang.Span{},
			"tool %q collides with a builtin", schema.Name)
	}
	r.user[schema.Name] = &Entry{Name: schema.Name, Source: SourceUser, Schema: schema, Handler: h}
	return nil
}

// UnregisterUser removes a user tool.
func (r *Registry) UnregisterUser(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.user, name)
}

// RegisterServer installs a remote namespace with its tool schemas.
func (r *Registry) RegisterServer(name string, schemas []*Schema, call RemoteCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	srv := &remoteServer{name: name, schemas: map[string]*Schema{}, call: call}
	for _, s := range schemas {
		srv.schemas[s.Name] = s
	}
	r.remote[name] = srv
}

// UnregisterServer removes a remote namespace.
func (r *Registry) UnregisterServer(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.remote, name)
}

// Servers lists registered remote namespaces.
func (r *Registry) Servers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.remote))
	for name := range r.remote {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve maps a command name to its entry.
func (r *Registry) Resolve(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.builtins[name]; ok {
		return e, nil
	}
	if e, ok := r.user[name]; ok {
		return e, nil
	}
	if server, tool, ok := strings.Cut(name, "."); ok {
		srv, found := r.remote[server]
		if !found {
			return nil, interp.Errf(interp.NameError, lang.Span{},
				"unknown tool server %q", server)
		}
		schema, found := srv.schemas[tool]
		if !found {
			return nil, interp.Errf(interp.NameError, lang.Span{},
				"server %q has no tool %q", server, tool)
		}
		return &Entry{
			Name:    name,
			Source:  SourceRemote,
			Schema:  schema,
			Handler: remoteHandler(srv, tool, schema),
		}, nil
	}
	return nil, interp.Errf(interp.NameError, lang.Span{}, "command not found: %s", name)
}

// remoteHandler dispatches a validated invocation over the server's call
// function and prints the structured response.
func remoteHandler(srv *remoteServer, tool string, schema *Schema) Handler {
	return func(ec *ExecContext) int {
		bound, err := Bind(schema, ec.Inv)
		if err != nil {
			return ec.Errorf(interp.ArgumentError, "%v", err)
		}
		res, err := srv.call(ec.Ctx, tool, bound)
		if err != nil {
			return ec.Errorf(interp.ToolError, "%v", err)
		}
		if res.Out != "" {
			ec.Stdout.Write([]byte(res.Out))
		}
		if res.Err != "" {
			ec.Stderr.Write([]byte(res.Err))
		}
		return res.Code
	}
}

// List returns every resolvable schema grouped by source, for the tools
// builtin and the RPC listTools operation.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Entry
	for _, e := range r.builtins {
		out = append(out, e)
	}
	for _, e := range r.user {
		out = append(out, e)
	}
	for _, srv := range r.remote {
		for tool, schema := range srv.schemas {
			out = append(out, &Entry{
				Name:   srv.name + "." + tool,
				Source: SourceRemote,
				Schema: schema,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
