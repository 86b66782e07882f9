package remote

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/lang"
	"github.com/indielab/kaish/core/tools"
	"github.com/indielab/kaish/core/vfs"
)

// fakeSession answers the RPC surface from fixed state.
type fakeSession struct {
	vars    map[string]interp.Value
	fs      *vfs.Router
	jobs    []tools.JobInfo
	servers []string
	blobs   map[string][]byte
	state   string

	lastInput string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		vars:  map[string]interp.Value{},
		fs:    vfs.NewRouter(vfs.NewMemory()),
		blobs: map[string][]byte{},
	}
}

func (f *fakeSession) Execute(ctx context.Context, input string) *interp.ExecResult {
	f.lastInput = input
	return interp.OK("ran: " + input + "\n")
}

func (f *fakeSession) ExecuteStreaming(ctx context.Context, input string, stdout, stderr io.Writer) *interp.ExecResult {
	io.WriteString(stdout, "line 1\n")
	io.WriteString(stderr, "warn\n")
	io.WriteString(stdout, "line 2\n")
	return interp.FromCode(0)
}

func (f *fakeSession) GetVar(name string) (interp.Value, bool) {
	v, ok := f.vars[name]
	return v, ok
}

func (f *fakeSession) SetVar(name string, v interp.Value) error {
	f.vars[name] = v
	return nil
}

func (f *fakeSession) ListVars() *interp.Object {
	out := interp.NewObject()
	for k, v := range f.vars {
		out.Set(k, v)
	}
	return out
}

func (f *fakeSession) ListTools() []*tools.Entry {
	return []*tools.Entry{{
		Name:   "transcode",
		Source: tools.SourceBuiltin,
		Schema: &tools.Schema{
			Name: "transcode",
			Doc:  "Convert media files.",
			Params: []tools.Param{{
				Name: "rate", Type: lang.ParamInt, TypeName: "int", Required: true,
			}},
		},
	}}
}

func (f *fakeSession) CallTool(ctx context.Context, name string, args *interp.Object) (*interp.ExecResult, error) {
	if name != "transcode" {
		return nil, interp.Errf(interp.NameError, lang.Span{}, "command not found: %s", name)
	}
	rate, _ := args.Get("rate")
	return interp.OK(fmt.Sprintf(`{"rate": %d}`, rate.AsInt())), nil
}

func (f *fakeSession) Jobs() []tools.JobInfo { return f.jobs }

func (f *fakeSession) WaitJob(ctx context.Context, id int) ([]tools.JobResult, error) {
	return []tools.JobResult{{ID: 1, Result: interp.OK("bg done\n")}}, nil
}

func (f *fakeSession) CancelJob(id int) error { return nil }

func (f *fakeSession) FS() *vfs.Router { return f.fs }

func (f *fakeSession) AddMount(ctx context.Context, m *vfs.Mount) error { return f.fs.Mount(m) }

func (f *fakeSession) RemoveMount(ctx context.Context, path string) error { return f.fs.Unmount(path) }

func (f *fakeSession) RegisterToolServer(ctx context.Context, name, address string) error {
	f.servers = append(f.servers, name)
	return nil
}

func (f *fakeSession) UnregisterToolServer(ctx context.Context, name string) error {
	for i, s := range f.servers {
		if s == name {
			f.servers = append(f.servers[:i], f.servers[i+1:]...)
		}
	}
	return nil
}

func (f *fakeSession) ToolServers() []string { return f.servers }

func (f *fakeSession) SnapshotState(ctx context.Context, w io.Writer) error {
	_, err := io.WriteString(w, `{"meta":{"cwd":"/"}}`)
	return err
}

func (f *fakeSession) RestoreState(ctx context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.state = string(data)
	return nil
}

func (f *fakeSession) ResetState(ctx context.Context) error {
	f.state = ""
	return nil
}

func (f *fakeSession) ReadBlob(ctx context.Context, hash string) ([]byte, error) {
	data, ok := f.blobs[hash]
	if !ok {
		return nil, fmt.Errorf("no blob %s", hash)
	}
	return data, nil
}

func (f *fakeSession) WriteBlob(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	f.blobs[hash] = data
	return hash, nil
}

func (f *fakeSession) DeleteBlob(ctx context.Context, hash string) error {
	delete(f.blobs, hash)
	return nil
}

type pipeConn struct {
	io.Reader
	io.Writer
}

// startServer wires a client to a served fake session over pipes.
func startServer(t *testing.T) (*Client, *fakeSession) {
	t.Helper()
	session := newFakeSession()

	toServerR, toServerW := io.Pipe()
	toClientR, toClientW := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewServer(session, nil).Serve(ctx, toServerR, toClientW)
	}()
	t.Cleanup(func() {
		cancel()
		toServerW.Close()
		toClientR.Close()
		<-done
	})

	return NewClient(pipeConn{Reader: toClientR, Writer: toServerW}), session
}

func TestPingAndExecute(t *testing.T) {
	client, session := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))

	res, err := client.Execute(ctx, "echo hi")
	require.NoError(t, err)
	assert.True(t, res.Ok)
	assert.Equal(t, "ran: echo hi\n", res.Out)
	assert.Equal(t, "echo hi", session.lastInput)
}

func TestExecuteStreaming(t *testing.T) {
	client, _ := startServer(t)

	var stdout, stderr bytes.Buffer
	res, err := client.ExecuteStreaming(context.Background(), "build", &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Code)
	assert.Equal(t, "line 1\nline 2\n", stdout.String())
	assert.Equal(t, "warn\n", stderr.String())
}

func TestVars(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	_, found, err := client.GetVar(ctx, "X")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.SetVar(ctx, "X", interp.Int(41)))
	v, found, err := client.GetVar(ctx, "X")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(41), v.AsInt())
}

func TestToolSchemasAndCallTool(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	schemas, err := client.ToolSchemas(ctx)
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "transcode", schemas[0].Name)
	require.Len(t, schemas[0].Params, 1)
	assert.Equal(t, lang.ParamInt, schemas[0].Params[0].Type)
	assert.True(t, schemas[0].Params[0].Required)

	args := interp.NewObject()
	args.Set("rate", interp.Int(48000))
	res, err := client.CallTool(ctx, "transcode", args)
	require.NoError(t, err)
	rate, ok := res.Data.Fields().Get("rate")
	require.True(t, ok)
	assert.Equal(t, int64(48000), rate.AsInt())

	_, err = client.CallTool(ctx, "missing", nil)
	require.Error(t, err)
	var ee *interp.EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, interp.NameError, ee.Kind)
}

func TestMountsOverRPC(t *testing.T) {
	client, session := startServer(t)
	ctx := context.Background()

	err := client.Call(ctx, MethodMount, MountParams{Path: "/data", Type: "memory"}, nil)
	require.NoError(t, err)

	var mounts []MountRecord
	require.NoError(t, client.Call(ctx, MethodListMounts, nil, &mounts))
	require.Len(t, mounts, 2)
	assert.Equal(t, "/data", mounts[1].Path)

	require.NoError(t, client.Call(ctx, MethodUnmount, MountParams{Path: "/data"}, nil))
	assert.Len(t, session.fs.Mounts(), 1)

	err = client.Call(ctx, MethodMount, MountParams{Path: "/x", Type: "nfs"}, nil)
	assert.Error(t, err)
}

func TestBlobsOverRPC(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	var wrote BlobResult
	require.NoError(t, client.Call(ctx, MethodWriteBlob,
		BlobParams{Data: []byte("artifact")}, &wrote))
	require.NotEmpty(t, wrote.Hash)

	var read BlobResult
	require.NoError(t, client.Call(ctx, MethodReadBlob,
		BlobParams{Hash: wrote.Hash}, &read))
	assert.Equal(t, "artifact", string(read.Data))

	require.NoError(t, client.Call(ctx, MethodDeleteBlob,
		BlobParams{Hash: wrote.Hash}, nil))
	err := client.Call(ctx, MethodReadBlob, BlobParams{Hash: wrote.Hash}, &read)
	assert.Error(t, err)
}

func TestSnapshotRestoreOverRPC(t *testing.T) {
	client, session := startServer(t)
	ctx := context.Background()

	var snap SnapshotResult
	require.NoError(t, client.Call(ctx, MethodSnapshot, nil, &snap))
	assert.JSONEq(t, `{"meta":{"cwd":"/"}}`, string(snap.State))

	require.NoError(t, client.Call(ctx, MethodRestore,
		SnapshotResult{State: snap.State}, nil))
	assert.JSONEq(t, `{"meta":{"cwd":"/"}}`, session.state)

	require.NoError(t, client.Call(ctx, MethodReset, nil, nil))
	assert.Empty(t, session.state)
}

func TestResourceBackend(t *testing.T) {
	client, session := startServer(t)
	ctx := context.Background()

	require.NoError(t, session.fs.Write(ctx, "/shared/report.txt", []byte("ok")))

	backend := NewResourceBackend(client, "/shared")
	data, err := backend.Read(ctx, "/report.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))

	require.NoError(t, backend.Write(ctx, "/new.txt", []byte("n"), false))
	got, err := session.fs.Read(ctx, "/shared/new.txt")
	require.NoError(t, err)
	assert.Equal(t, "n", string(got))

	entries, err := backend.List(ctx, "/")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	info, err := backend.Stat(ctx, "/report.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size)
	assert.False(t, info.Dir)

	require.NoError(t, backend.Remove(ctx, "/new.txt", false))
	_, err = backend.Read(ctx, "/new.txt")
	assert.Error(t, err)
}

func TestUnknownMethod(t *testing.T) {
	client, _ := startServer(t)
	err := client.Call(context.Background(), "bogus", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown method")
}

func TestShutdownEndsServe(t *testing.T) {
	session := newFakeSession()
	toServerR, toServerW := io.Pipe()
	toClientR, toClientW := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- NewServer(session, nil).Serve(context.Background(), toServerR, toClientW)
	}()
	client := NewClient(pipeConn{Reader: toClientR, Writer: toServerW})

	require.NoError(t, client.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}
