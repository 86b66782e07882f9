package interp

import "sync"

// frame is one scope level. An isolated frame blocks lookups from walking
// into ancestor frames, which is how user-defined tools are sandboxed.
type frame struct {
	vars     map[string]Value
	args     []Value // positional parameters; nil inherits
	isolated bool
}

// Scope is an ordered stack of frames. Reads walk from the innermost
// frame outward; plain assignments write the root frame and `local`
// assignments the innermost. Safe for concurrent readers and writers,
// which scatter workers rely on.
type Scope struct {
	mu     sync.RWMutex
	frames []*frame
}

// NewScope returns a scope with a single root frame holding the given
// script-level positional parameters.
func NewScope(args []Value) *Scope {
	return &Scope{frames: []*frame{{vars: make(map[string]Value), args: args}}}
}

// Push adds a transparent child frame (loop bodies, scatter workers).
func (s *Scope) Push() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, &frame{vars: make(map[string]Value)})
}

// PushIsolated adds an opaque frame for a user tool body: only its own
// bindings and positional parameters are visible.
func (s *Scope) PushIsolated(args []Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, &frame{vars: make(map[string]Value), args: args, isolated: true})
}

// Pop removes the innermost frame. The root frame is never popped.
func (s *Scope) Pop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) > 1 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// Get resolves name, walking outward until an isolated frame stops the
// search.
func (s *Scope) Get(name string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		if v, ok := f.vars[name]; ok {
			return v, true
		}
		if f.isolated {
			break
		}
	}
	return Null(), false
}

// Set writes name into the root frame, unless an isolated frame is
// active, in which case the write stays inside the sandbox.
func (s *Scope) Set(name string, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].isolated {
			s.frames[i].vars[name] = v
			return
		}
	}
	s.frames[0].vars[name] = v
}

// Isolated reports whether an isolated frame is active, meaning plain
// assignments stay inside a sandbox instead of reaching the root frame.
func (s *Scope) Isolated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].isolated {
			return true
		}
	}
	return false
}

// SetLocal writes name into the innermost frame.
func (s *Scope) SetLocal(name string, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[len(s.frames)-1].vars[name] = v
}

// Unset removes name from every visible frame.
func (s *Scope) Unset(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		delete(s.frames[i].vars, name)
		if s.frames[i].isolated {
			return
		}
	}
}

// Args returns the positional parameters of the nearest frame that set
// them.
func (s *Scope) Args() []Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].args != nil {
			return s.frames[i].args
		}
		if s.frames[i].isolated {
			break
		}
	}
	return nil
}

// Visible returns every binding reachable from the innermost frame, inner
// bindings shadowing outer ones. Used by the vars builtin.
func (s *Scope) Visible() *Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj := NewObject()
	stop := 0
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].isolated {
			stop = i
			break
		}
	}
	for i := stop; i < len(s.frames); i++ {
		for k, v := range s.frames[i].vars {
			obj.Set(k, v)
		}
	}
	return obj
}

// Root returns the root frame's bindings, the set mirrored to the
// persistence store.
func (s *Scope) Root() map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Value, len(s.frames[0].vars))
	for k, v := range s.frames[0].vars {
		out[k] = v
	}
	return out
}

// Depth reports the current frame count.
func (s *Scope) Depth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

// Child returns a new scope seeded with the currently visible bindings in
// a fresh root frame. Scatter workers run in children so concurrent
// frame pushes do not race the parent.
func (s *Scope) Child() *Scope {
	vis := s.Visible()
	root := &frame{vars: make(map[string]Value, vis.Len()), args: s.Args()}
	for _, k := range vis.Keys() {
		v, _ := vis.Get(k)
		root.vars[k] = v
	}
	return &Scope{frames: []*frame{root}}
}
