package state

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indielab/kaish/core/interp"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMetaRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetMeta(ctx, "cwd")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMeta(ctx, "cwd", "/work"))
	require.NoError(t, s.SetMeta(ctx, "cwd", "/work/sub"))

	v, ok, err := s.GetMeta(ctx, "cwd")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/work/sub", v)
}

func TestVariablesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	obj := interp.NewObject()
	obj.Set("n", interp.Int(3))
	obj.Set("name", interp.Str("deploy"))

	require.NoError(t, s.SaveVar(ctx, "COUNT", interp.Int(42)))
	require.NoError(t, s.SaveVar(ctx, "CFG", interp.Obj(obj)))
	require.NoError(t, s.SaveVar(ctx, "COUNT", interp.Int(43)))

	vars, err := s.LoadVars(ctx)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.Equal(t, int64(43), vars["COUNT"].AsInt())
	n, _ := vars["CFG"].Fields().Get("n")
	assert.Equal(t, int64(3), n.AsInt())

	require.NoError(t, s.DeleteVar(ctx, "COUNT"))
	vars, err = s.LoadVars(ctx)
	require.NoError(t, err)
	assert.Len(t, vars, 1)
}

func TestLargeVariableGoesToBlobStorage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	big := interp.Str(strings.Repeat("x", BlobThreshold*2))
	require.NoError(t, s.SaveVar(ctx, "BIG", big))

	vars, err := s.LoadVars(ctx)
	require.NoError(t, err)
	assert.Equal(t, big.Text(), vars["BIG"].Text())

	var hash string
	err = s.db.QueryRowContext(ctx,
		`SELECT blob_hash FROM variables WHERE name = 'BIG'`).Scan(&hash)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	data, err := s.ReadBlob(ctx, hash)
	require.NoError(t, err)
	assert.Len(t, data, BlobThreshold*2+2) // JSON quotes
}

func TestToolsMountsServers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTool(ctx, "greet", `echo "hi $name"`))
	tools, err := s.LoadTools(ctx)
	require.NoError(t, err)
	assert.Equal(t, `echo "hi $name"`, tools["greet"])

	require.NoError(t, s.SaveMount(ctx, MountRow{Path: "/data", Type: "memory"}))
	require.NoError(t, s.SaveMount(ctx, MountRow{
		Path: "/mnt/local", Type: "local", Spec: "/srv", ReadOnly: true,
	}))
	mounts, err := s.LoadMounts(ctx)
	require.NoError(t, err)
	require.Len(t, mounts, 2)
	assert.Equal(t, "/data", mounts[0].Path)
	assert.True(t, mounts[1].ReadOnly)

	require.NoError(t, s.SaveServer(ctx, ServerRow{
		Name: "build", Address: "tcp://127.0.0.1:9000", Schemas: "[]",
	}))
	servers, err := s.LoadServers(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "build", servers[0].Name)

	require.NoError(t, s.DeleteMount(ctx, "/data"))
	require.NoError(t, s.DeleteServer(ctx, "build"))
	require.NoError(t, s.DeleteTool(ctx, "greet"))
}

func TestLastResultRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	none, err := s.LoadLast(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.SaveLast(ctx, interp.OK(`{"n": 7}`)))
	last, err := s.LoadLast(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Ok)
	n, ok := last.Data.Fields().Get("n")
	require.True(t, ok)
	assert.Equal(t, int64(7), n.AsInt())
}

func TestBlobDedupAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	h1, err := s.WriteBlob(ctx, []byte("payload"))
	require.NoError(t, err)
	h2, err := s.WriteBlob(ctx, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	data, err := s.ReadBlob(ctx, h1)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, s.DeleteBlob(ctx, h1))
	_, err = s.ReadBlob(ctx, h1)
	assert.Error(t, err)
}

func TestSnapshotRestoreReset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMeta(ctx, "cwd", "/proj"))
	require.NoError(t, s.SaveVar(ctx, "X", interp.Str("one")))
	require.NoError(t, s.SaveTool(ctx, "t", "echo t"))
	require.NoError(t, s.SaveLast(ctx, interp.FromCode(0)))

	var buf bytes.Buffer
	require.NoError(t, s.WriteSnapshot(ctx, &buf))

	other := openTestStore(t)
	require.NoError(t, other.ReadSnapshot(ctx, bytes.NewReader(buf.Bytes())))

	cwd, ok, err := other.GetMeta(ctx, "cwd")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/proj", cwd)
	vars, err := other.LoadVars(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", vars["X"].Text())

	require.NoError(t, other.Reset(ctx))
	vars, err = other.LoadVars(ctx)
	require.NoError(t, err)
	assert.Empty(t, vars)
	_, ok, err = other.GetMeta(ctx, "cwd")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestoreFailureLeavesStateUntouched(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMeta(ctx, "cwd", "/keep"))
	require.NoError(t, s.SaveVar(ctx, "X", interp.Str("kept")))

	// A snapshot with an undecodable variable aborts the restore; the
	// transaction rolls back so nothing was cleared.
	bad := &Snapshot{
		Meta:      map[string]string{"cwd": "/clobbered"},
		Variables: map[string]json.RawMessage{"Y": json.RawMessage(`{not json`)},
	}
	require.Error(t, s.Restore(ctx, bad))

	cwd, ok, err := s.GetMeta(ctx, "cwd")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/keep", cwd)
	vars, err := s.LoadVars(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kept", vars["X"].Text())
}

func TestDBPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	p, err := DBPath("default")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, filepath.Join("kaish", "kernels", "default.db")), p)

	_, err = DBPath("../escape")
	assert.Error(t, err)
	_, err = DBPath("")
	assert.Error(t, err)
}
