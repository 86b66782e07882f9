package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	return NewRouter(NewMemory())
}

func TestRouterReadWrite(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	require.NoError(t, r.Write(ctx, "/notes/a.txt", []byte("hello")))
	data, err := r.Read(ctx, "/notes/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, r.Append(ctx, "/notes/a.txt", []byte(" world")))
	data, err = r.Read(ctx, "/notes/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestRouterLongestPrefixWins(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	tmp := NewMemory()
	deep := NewMemory()
	require.NoError(t, r.Mount(&Mount{Path: "/tmp", Type: "memory", Backend: tmp}))
	require.NoError(t, r.Mount(&Mount{Path: "/tmp/deep", Type: "memory", Backend: deep}))

	require.NoError(t, r.Write(ctx, "/tmp/deep/f", []byte("deep")))
	require.NoError(t, r.Write(ctx, "/tmp/f", []byte("shallow")))

	// The deep mount owns its file; the /tmp mount must not see it.
	_, err := tmp.Read(ctx, "/deep/f")
	assert.Error(t, err)
	data, err := deep.Read(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, "deep", string(data))
}

func TestRouterReadOnlyMount(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)

	ro := NewMemory()
	require.NoError(t, ro.Write(ctx, "/seed", []byte("x"), false))
	require.NoError(t, r.Mount(&Mount{Path: "/ro", Type: "memory", ReadOnly: true, Backend: ro}))

	_, err := r.Read(ctx, "/ro/seed")
	assert.NoError(t, err)

	for _, op := range []func() error{
		func() error { return r.Write(ctx, "/ro/f", nil) },
		func() error { return r.Append(ctx, "/ro/seed", nil) },
		func() error { return r.Mkdir(ctx, "/ro/d") },
		func() error { return r.Remove(ctx, "/ro/seed", false) },
	} {
		assert.ErrorIs(t, op(), ErrReadOnly)
	}
}

func TestRouterMountErrors(t *testing.T) {
	r := newTestRouter(t)
	require.NoError(t, r.Mount(&Mount{Path: "/a", Backend: NewMemory()}))

	assert.Error(t, r.Mount(&Mount{Path: "/a", Backend: NewMemory()}), "duplicate mount point")
	assert.Error(t, r.Mount(&Mount{Path: "relative", Backend: NewMemory()}))
	assert.Error(t, r.Unmount("/"))
	assert.Error(t, r.Unmount("/missing"))
	assert.NoError(t, r.Unmount("/a"))
}

func TestRouterUnmountRevealsParent(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)
	require.NoError(t, r.Write(ctx, "/tmp/under", []byte("root copy")))

	require.NoError(t, r.Mount(&Mount{Path: "/tmp", Backend: NewMemory()}))
	_, err := r.Read(ctx, "/tmp/under")
	assert.Error(t, err, "mount shadows the root's files")

	require.NoError(t, r.Unmount("/tmp"))
	data, err := r.Read(ctx, "/tmp/under")
	require.NoError(t, err)
	assert.Equal(t, "root copy", string(data))
}

func TestRouterListSorted(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, r.Write(ctx, "/dir/"+name, []byte(name)))
	}
	entries, err := r.List(ctx, "/dir")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, "c", entries[2].Name)
}

func TestRouterCopyMoveAcrossMounts(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)
	require.NoError(t, r.Mount(&Mount{Path: "/other", Backend: NewMemory()}))
	require.NoError(t, r.Write(ctx, "/src.txt", []byte("payload")))

	require.NoError(t, r.Copy(ctx, "/src.txt", "/other/copy.txt"))
	data, err := r.Read(ctx, "/other/copy.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, r.Move(ctx, "/src.txt", "/other/moved.txt"))
	_, err = r.Read(ctx, "/src.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRouterPathNormalization(t *testing.T) {
	ctx := context.Background()
	r := newTestRouter(t)
	require.NoError(t, r.Write(ctx, "/a/b/../c.txt", []byte("x")))
	data, err := r.Read(ctx, "/a/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	_, err = r.Read(ctx, "relative/path")
	assert.Error(t, err)
}
