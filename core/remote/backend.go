package remote

import (
	"context"
	gopath "path"
	"strings"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/lang"
	"github.com/indielab/kaish/core/vfs"
)

// ResourceBackend exposes a serving kernel's filesystem as a local
// mount. Paths are proxied relative to a root on the remote side.
type ResourceBackend struct {
	client *Client
	root   string
}

var _ vfs.Backend = (*ResourceBackend)(nil)

// NewResourceBackend proxies the remote subtree at root ("/" for the
// whole remote filesystem).
func NewResourceBackend(client *Client, root string) *ResourceBackend {
	if root == "" {
		root = "/"
	}
	return &ResourceBackend{client: client, root: gopath.Clean(root)}
}

func (b *ResourceBackend) remotePath(path string) string {
	return gopath.Join(b.root, strings.TrimPrefix(path, "/"))
}

// mapError folds remote failures onto the VFS sentinels so callers can
// match with errors.Is like they do for local backends.
func mapResourceError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, vfs.ErrNotFound.Error()):
		return vfs.ErrNotFound
	case strings.Contains(msg, vfs.ErrReadOnly.Error()):
		return vfs.ErrReadOnly
	case strings.Contains(msg, vfs.ErrNotDir.Error()):
		return vfs.ErrNotDir
	}
	return err
}

func (b *ResourceBackend) Read(ctx context.Context, path string) ([]byte, error) {
	var res ResourceParams
	err := b.client.Call(ctx, MethodReadResource,
		ResourceParams{Path: b.remotePath(path)}, &res)
	if err != nil {
		return nil, mapResourceError(err)
	}
	return res.Data, nil
}

func (b *ResourceBackend) Write(ctx context.Context, path string, data []byte, appendTo bool) error {
	err := b.client.Call(ctx, MethodWriteResource,
		ResourceParams{Path: b.remotePath(path), Data: data, Append: appendTo}, nil)
	return mapResourceError(err)
}

func (b *ResourceBackend) List(ctx context.Context, path string) ([]vfs.Entry, error) {
	var rows []ResourceEntry
	err := b.client.Call(ctx, MethodListResources,
		ResourceParams{Path: b.remotePath(path)}, &rows)
	if err != nil {
		return nil, mapResourceError(err)
	}
	entries := make([]vfs.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, vfs.Entry{Name: r.Name, Size: r.Size, Dir: r.Dir})
	}
	return entries, nil
}

func (b *ResourceBackend) Stat(ctx context.Context, path string) (vfs.Entry, error) {
	var row ResourceEntry
	err := b.client.Call(ctx, MethodStatResource,
		ResourceParams{Path: b.remotePath(path)}, &row)
	if err != nil {
		return vfs.Entry{}, mapResourceError(err)
	}
	return vfs.Entry{Name: row.Name, Size: row.Size, Dir: row.Dir}, nil
}

func (b *ResourceBackend) Mkdir(ctx context.Context, path string) error {
	// The remote side creates parents on write.
	return interp.Errf(interp.IOError, lang.Span{}, "mkdir is not supported on remote mounts")
}

func (b *ResourceBackend) Remove(ctx context.Context, path string, recursive bool) error {
	if recursive {
		return interp.Errf(interp.IOError, lang.Span{}, "recursive remove is not supported on remote mounts")
	}
	err := b.client.Call(ctx, MethodRemoveResource,
		ResourceParams{Path: b.remotePath(path)}, nil)
	return mapResourceError(err)
}
