package vfs

import (
	"context"
	"fmt"
	gopath "path"
	"sort"
	"strings"
	"sync"
)

// Mount binds a path prefix to a backend.
type Mount struct {
	// Path is the absolute, normalized mount point.
	Path string
	// Type names the backend flavor (memory, local, remote) for listings.
	Type string
	// Spec is the backend-specific configuration string (e.g. the local
	// root directory), kept for persistence and display.
	Spec string
	// ReadOnly blocks write, append, mkdir and remove through this mount.
	ReadOnly bool

	Backend Backend
}

// Router resolves VFS paths to the mount with the longest matching prefix
// and delegates with the path remainder.
type Router struct {
	mu     sync.RWMutex
	mounts []*Mount
}

// NewRouter returns a router with root mounted on the given backend.
func NewRouter(root Backend) *Router {
	r := &Router{}
	// The root mount cannot fail.
	_ = r.Mount(&Mount{Path: "/", Type: "memory", Backend: root})
	return r
}

// Mount adds a mount, keeping the list sorted deepest-first so prefix
// resolution finds the most specific mount.
func (r *Router) Mount(m *Mount) error {
	p, err := normalize(m.Path)
	if err != nil {
		return err
	}
	m.Path = p

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.mounts {
		if existing.Path == m.Path {
			return fmt.Errorf("mount point %q is busy", m.Path)
		}
	}
	r.mounts = append(r.mounts, m)
	sort.Slice(r.mounts, func(i, j int) bool {
		return len(r.mounts[i].Path) > len(r.mounts[j].Path)
	})
	return nil
}

// Unmount removes the mount at exactly path. The root mount cannot be
// removed.
func (r *Router) Unmount(path string) error {
	p, err := normalize(path)
	if err != nil {
		return err
	}
	if p == "/" {
		return fmt.Errorf("cannot unmount %q", "/")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.mounts {
		if m.Path == p {
			r.mounts = append(r.mounts[:i], r.mounts[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%q is not mounted", p)
}

// Mounts lists the mount table, shallowest first.
func (r *Router) Mounts() []*Mount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]*Mount(nil), r.mounts...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Resolve picks the mount owning path and returns it with the remainder
// the backend sees.
func (r *Router) Resolve(path string) (*Mount, string, error) {
	p, err := normalize(path)
	if err != nil {
		return nil, "", err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.mounts {
		if p == m.Path || m.Path == "/" || strings.HasPrefix(p, m.Path+"/") {
			rest := strings.TrimPrefix(p, strings.TrimSuffix(m.Path, "/"))
			if rest == "" {
				rest = "/"
			}
			return m, rest, nil
		}
	}
	return nil, "", fmt.Errorf("no mount for %q", p)
}

func (r *Router) Read(ctx context.Context, path string) ([]byte, error) {
	m, rest, err := r.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := m.Backend.Read(ctx, rest)
	if err != nil {
		return nil, pathError("read", path, err)
	}
	return data, nil
}

func (r *Router) Write(ctx context.Context, path string, data []byte) error {
	return r.write(ctx, path, data, false)
}

func (r *Router) Append(ctx context.Context, path string, data []byte) error {
	return r.write(ctx, path, data, true)
}

func (r *Router) write(ctx context.Context, path string, data []byte, appendTo bool) error {
	m, rest, err := r.Resolve(path)
	if err != nil {
		return err
	}
	if m.ReadOnly {
		return pathError("write", path, ErrReadOnly)
	}
	if err := m.Backend.Write(ctx, rest, data, appendTo); err != nil {
		return pathError("write", path, err)
	}
	return nil
}

func (r *Router) List(ctx context.Context, path string) ([]Entry, error) {
	m, rest, err := r.Resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := m.Backend.List(ctx, rest)
	if err != nil {
		return nil, pathError("list", path, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (r *Router) Stat(ctx context.Context, path string) (Entry, error) {
	m, rest, err := r.Resolve(path)
	if err != nil {
		return Entry{}, err
	}
	e, err := m.Backend.Stat(ctx, rest)
	if err != nil {
		return Entry{}, pathError("stat", path, err)
	}
	return e, nil
}

func (r *Router) Mkdir(ctx context.Context, path string) error {
	m, rest, err := r.Resolve(path)
	if err != nil {
		return err
	}
	if m.ReadOnly {
		return pathError("mkdir", path, ErrReadOnly)
	}
	if err := m.Backend.Mkdir(ctx, rest); err != nil {
		return pathError("mkdir", path, err)
	}
	return nil
}

func (r *Router) Remove(ctx context.Context, path string, recursive bool) error {
	m, rest, err := r.Resolve(path)
	if err != nil {
		return err
	}
	if m.ReadOnly {
		return pathError("remove", path, ErrReadOnly)
	}
	if err := m.Backend.Remove(ctx, rest, recursive); err != nil {
		return pathError("remove", path, err)
	}
	return nil
}

// Copy duplicates src to dst, possibly across mounts.
func (r *Router) Copy(ctx context.Context, src, dst string) error {
	data, err := r.Read(ctx, src)
	if err != nil {
		return err
	}
	return r.Write(ctx, dst, data)
}

// Move is Copy followed by removing the source.
func (r *Router) Move(ctx context.Context, src, dst string) error {
	if err := r.Copy(ctx, src, dst); err != nil {
		return err
	}
	return r.Remove(ctx, src, false)
}

// normalize cleans path and requires it to be absolute.
func normalize(p string) (string, error) {
	if p == "" || p[0] != '/' {
		return "", fmt.Errorf("path %q is not absolute", p)
	}
	return gopath.Clean(p), nil
}

func pathError(op, path string, err error) error {
	return fmt.Errorf("%s %s: %w", op, path, err)
}
