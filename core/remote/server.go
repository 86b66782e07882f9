package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/lang"
	"github.com/indielab/kaish/core/logger"
	"github.com/indielab/kaish/core/tools"
	"github.com/indielab/kaish/core/vfs"
)

// Session is the kernel surface the RPC server exposes. The kernel
// implements it; tests use fakes.
type Session interface {
	Execute(ctx context.Context, input string) *interp.ExecResult
	ExecuteStreaming(ctx context.Context, input string, stdout, stderr io.Writer) *interp.ExecResult

	GetVar(name string) (interp.Value, bool)
	SetVar(name string, v interp.Value) error
	ListVars() *interp.Object

	ListTools() []*tools.Entry
	CallTool(ctx context.Context, name string, args *interp.Object) (*interp.ExecResult, error)

	Jobs() []tools.JobInfo
	WaitJob(ctx context.Context, id int) ([]tools.JobResult, error)
	CancelJob(id int) error

	FS() *vfs.Router
	AddMount(ctx context.Context, m *vfs.Mount) error
	RemoveMount(ctx context.Context, path string) error

	RegisterToolServer(ctx context.Context, name, address string) error
	UnregisterToolServer(ctx context.Context, name string) error
	ToolServers() []string

	SnapshotState(ctx context.Context, w io.Writer) error
	RestoreState(ctx context.Context, r io.Reader) error
	ResetState(ctx context.Context) error

	ReadBlob(ctx context.Context, hash string) ([]byte, error)
	WriteBlob(ctx context.Context, data []byte) (string, error)
	DeleteBlob(ctx context.Context, hash string) error
}

// errShutdown signals an orderly stop after a shutdown request.
var errShutdown = errors.New("shutdown requested")

// Server answers JSON-lines RPC requests against one session.
type Server struct {
	session Session
	log     *logger.SessionLogger

	// mu serializes frames on the output stream so streaming events and
	// responses never interleave mid-line.
	mu  sync.Mutex
	enc *json.Encoder
}

// NewServer wraps a session for serving.
func NewServer(session Session, log *logger.SessionLogger) *Server {
	if log == nil {
		log = logger.Discard().Session("")
	}
	return &Server{session: session, log: log}
}

// Serve answers requests from r with responses on w until EOF or a
// shutdown request.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.enc = json.NewEncoder(w)
	dec := json.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode request: %w", err)
		}
		if err := s.handle(ctx, &req); err != nil {
			if errors.Is(err, errShutdown) {
				return nil
			}
			return err
		}
	}
}

// ServeTCP accepts connections on addr, serving each on its own
// goroutine until the context is cancelled.
func (s *Server) ServeTCP(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			defer conn.Close()
			// Each connection gets its own framing state.
			srv := NewServer(s.session, s.log)
			_ = srv.Serve(ctx, conn, conn)
		}()
	}
}

func (s *Server) reply(resp *Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(resp)
}

func (s *Server) emit(ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev)
}

func errorInfo(err error) *ErrorInfo {
	var ee *interp.EvalError
	if errors.As(err, &ee) {
		return &ErrorInfo{Kind: ee.Kind.String(), Message: ee.Error(), Code: ee.Kind.ExitCode()}
	}
	return &ErrorInfo{Kind: interp.InternalError.String(), Message: err.Error(), Code: 1}
}

func (s *Server) handle(ctx context.Context, req *Request) error {
	_ = s.log.Record(&logger.RPCRequest{Method: req.Method, ID: req.ID})

	if req.Method == MethodExecuteStreaming {
		return s.handleStreaming(ctx, req)
	}

	result, err := s.dispatch(ctx, req)
	if err != nil && !errors.Is(err, errShutdown) {
		return s.reply(&Response{ID: req.ID, Ok: false, Error: errorInfo(err)})
	}

	raw, mErr := json.Marshal(result)
	if mErr != nil {
		return s.reply(&Response{ID: req.ID, Ok: false, Error: errorInfo(mErr)})
	}
	if rErr := s.reply(&Response{ID: req.ID, Ok: true, Result: raw}); rErr != nil {
		return rErr
	}
	return err
}

// eventWriter forwards stream chunks as typed events.
type eventWriter struct {
	srv  *Server
	id   string
	kind string
}

func (w *eventWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := w.srv.emit(&Event{ID: w.id, Type: w.kind, Data: string(p)}); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *Server) handleStreaming(ctx context.Context, req *Request) error {
	var params ExecuteParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.emit(&Event{ID: req.ID, Type: EventError, Error: errorInfo(err)})
	}

	stdout := &eventWriter{srv: s, id: req.ID, kind: EventStdout}
	stderr := &eventWriter{srv: s, id: req.ID, kind: EventStderr}
	res := s.session.ExecuteStreaming(ctx, params.Input, stdout, stderr)

	raw, err := encodeResult(res)
	if err != nil {
		return s.emit(&Event{ID: req.ID, Type: EventError, Error: errorInfo(err)})
	}
	return s.emit(&Event{ID: req.ID, Type: EventDone, Result: raw})
}

func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, error) {
	switch req.Method {
	case MethodPing:
		return "pong", nil

	case MethodShutdown:
		return "ok", errShutdown

	case MethodExecute:
		var params ExecuteParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		return s.session.Execute(ctx, params.Input), nil

	case MethodGetVar:
		var params VarParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		v, found := s.session.GetVar(params.Name)
		out := VarResult{Name: params.Name, Found: found}
		if found {
			raw, err := v.MarshalJSON()
			if err != nil {
				return nil, err
			}
			out.Value = raw
		}
		return out, nil

	case MethodSetVar:
		var params VarParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		v, err := interp.ParseJSON(params.Value)
		if err != nil {
			return nil, interp.Errf(interp.TypeError, lang.Span{}, "value for %s is not JSON: %v", params.Name, err)
		}
		if err := s.session.SetVar(params.Name, v); err != nil {
			return nil, err
		}
		return "ok", nil

	case MethodListVars:
		return interp.Obj(s.session.ListVars()), nil

	case MethodListTools:
		entries := s.session.ListTools()
		out := make([]ToolInfo, 0, len(entries))
		for _, e := range entries {
			info := ToolInfo{Name: e.Name, Source: e.Source.String(), Doc: e.Schema.Doc}
			for _, p := range e.Schema.Params {
				info.Params = append(info.Params, ToolParam{
					Name: p.Name, Type: p.TypeName, Required: p.Required, Doc: p.Doc,
				})
			}
			out = append(out, info)
		}
		return out, nil

	case MethodCallTool:
		var params CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		args := interp.NewObject()
		if len(params.Args) > 0 {
			v, err := interp.ParseJSON(params.Args)
			if err != nil || v.Kind() != interp.KindObject {
				return nil, interp.Errf(interp.TypeError, lang.Span{}, "tool args must be a JSON object")
			}
			args = v.Fields()
		}
		return s.session.CallTool(ctx, params.Tool, args)

	case MethodListJobs:
		jobs := s.session.Jobs()
		out := make([]JobRecord, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, JobRecord{ID: j.ID, Status: j.Status, Text: j.Text})
		}
		return out, nil

	case MethodCancelJob:
		var params JobParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		if err := s.session.CancelJob(params.ID); err != nil {
			return nil, err
		}
		return "ok", nil

	case MethodWaitJob:
		var params JobParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		waited, err := s.session.WaitJob(ctx, params.ID)
		if err != nil {
			return nil, err
		}
		out := WaitJobResult{}
		for _, jr := range waited {
			raw, err := encodeResult(jr.Result)
			if err != nil {
				return nil, err
			}
			out.Jobs = append(out.Jobs, WaitedJob{ID: jr.ID, Result: raw})
		}
		return out, nil

	case MethodMount:
		var params MountParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		m := &vfs.Mount{
			Path: params.Path, Type: params.Type,
			Spec: params.Spec, ReadOnly: params.ReadOnly,
		}
		switch params.Type {
		case "memory":
			m.Backend = vfs.NewMemory()
		case "local":
			if params.Spec == "" {
				return nil, interp.Errf(interp.ArgumentError, lang.Span{}, "local mounts need a spec")
			}
			m.Backend = vfs.NewLocal(params.Spec)
		default:
			return nil, interp.Errf(interp.ArgumentError, lang.Span{}, "unknown mount type %q", params.Type)
		}
		if err := s.session.AddMount(ctx, m); err != nil {
			return nil, err
		}
		return "ok", nil

	case MethodUnmount:
		var params MountParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		if err := s.session.RemoveMount(ctx, params.Path); err != nil {
			return nil, err
		}
		return "ok", nil

	case MethodListMounts:
		mounts := s.session.FS().Mounts()
		out := make([]MountRecord, 0, len(mounts))
		for _, m := range mounts {
			out = append(out, MountRecord{
				Path: m.Path, Type: m.Type, Spec: m.Spec, ReadOnly: m.ReadOnly,
			})
		}
		return out, nil

	case MethodRegisterServer:
		var params ServerParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		if err := s.session.RegisterToolServer(ctx, params.Name, params.Address); err != nil {
			return nil, err
		}
		return "ok", nil

	case MethodUnregisterServer:
		var params ServerParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		if err := s.session.UnregisterToolServer(ctx, params.Name); err != nil {
			return nil, err
		}
		return "ok", nil

	case MethodListServers:
		return s.session.ToolServers(), nil

	case MethodSnapshot:
		var buf bytes.Buffer
		if err := s.session.SnapshotState(ctx, &buf); err != nil {
			return nil, err
		}
		return SnapshotResult{State: json.RawMessage(buf.Bytes())}, nil

	case MethodRestore:
		var params SnapshotResult
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		if err := s.session.RestoreState(ctx, bytes.NewReader(params.State)); err != nil {
			return nil, err
		}
		return "ok", nil

	case MethodReset:
		if err := s.session.ResetState(ctx); err != nil {
			return nil, err
		}
		return "ok", nil

	case MethodReadBlob:
		var params BlobParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		data, err := s.session.ReadBlob(ctx, params.Hash)
		if err != nil {
			return nil, err
		}
		return BlobResult{Hash: params.Hash, Data: data}, nil

	case MethodWriteBlob:
		var params BlobParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		hash, err := s.session.WriteBlob(ctx, params.Data)
		if err != nil {
			return nil, err
		}
		return BlobResult{Hash: hash}, nil

	case MethodDeleteBlob:
		var params BlobParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		if err := s.session.DeleteBlob(ctx, params.Hash); err != nil {
			return nil, err
		}
		return "ok", nil

	case MethodReadResource:
		var params ResourceParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		data, err := s.session.FS().Read(ctx, params.Path)
		if err != nil {
			return nil, err
		}
		return ResourceParams{Path: params.Path, Data: data}, nil

	case MethodWriteResource:
		var params ResourceParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		var err error
		if params.Append {
			err = s.session.FS().Append(ctx, params.Path, params.Data)
		} else {
			err = s.session.FS().Write(ctx, params.Path, params.Data)
		}
		if err != nil {
			return nil, err
		}
		return "ok", nil

	case MethodListResources:
		var params ResourceParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		entries, err := s.session.FS().List(ctx, params.Path)
		if err != nil {
			return nil, err
		}
		out := make([]ResourceEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, ResourceEntry{Name: e.Name, Size: e.Size, Dir: e.Dir})
		}
		return out, nil

	case MethodStatResource:
		var params ResourceParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		e, err := s.session.FS().Stat(ctx, params.Path)
		if err != nil {
			return nil, err
		}
		return ResourceEntry{Name: e.Name, Size: e.Size, Dir: e.Dir}, nil

	case MethodRemoveResource:
		var params ResourceParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		if err := s.session.FS().Remove(ctx, params.Path, false); err != nil {
			return nil, err
		}
		return "ok", nil
	}

	return nil, interp.Errf(interp.NameError, lang.Span{}, "unknown method %q", req.Method)
}
