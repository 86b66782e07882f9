package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/juju/ratelimit"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/lang"
	"github.com/indielab/kaish/core/tools"
)

// DefaultRateLimit caps outbound calls per second to a remote kernel or
// tool server.
const DefaultRateLimit = 50

// Option configures a Client.
type Option func(*Client)

// WithRateLimit overrides the default token bucket rate.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		c.bucket = ratelimit.NewBucketWithRate(perSecond, int64(perSecond)+1)
	}
}

// Client speaks the JSON-lines protocol over one connection. Calls are
// serialized; the protocol is strictly request/response per connection.
type Client struct {
	mu     sync.Mutex
	enc    *json.Encoder
	dec    *json.Decoder
	closer io.Closer
	bucket *ratelimit.Bucket
	nextID uint64
}

// NewClient wraps an established connection.
func NewClient(rw io.ReadWriter, opts ...Option) *Client {
	c := &Client{
		enc:    json.NewEncoder(rw),
		dec:    json.NewDecoder(rw),
		bucket: ratelimit.NewBucketWithRate(DefaultRateLimit, DefaultRateLimit+1),
	}
	if closer, ok := rw.(io.Closer); ok {
		c.closer = closer
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to a serve-mode kernel at addr ("tcp://host:port" or
// "host:port").
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	hostport := strings.TrimPrefix(addr, "tcp://")
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewClient(conn, opts...), nil
}

// Close closes the underlying connection when it supports closing.
func (c *Client) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// callError converts a wire error to an EvalError so exit-code handling
// matches local failures.
func callError(info *ErrorInfo) error {
	kind := interp.ToolError
	for _, k := range []interp.ErrorKind{
		interp.NameError, interp.TypeError, interp.ArgumentError, interp.ToolError,
		interp.IOError, interp.CancelledError, interp.InternalError,
	} {
		if k.String() == info.Kind {
			kind = k
			break
		}
	}
	return interp.Errf(kind, lang.Span{}, "%s", info.Message)
}

// Call performs one RPC, decoding the result into out when non-nil.
func (c *Client) Call(ctx context.Context, method string, params, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.bucket.Wait(1)

	id := strconv.FormatUint(atomic.AddUint64(&c.nextID, 1), 10)
	req := Request{ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = raw
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(&req); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.ID != id {
		return fmt.Errorf("%s: response for %q, want %q", method, resp.ID, id)
	}
	if !resp.Ok {
		if resp.Error != nil {
			return callError(resp.Error)
		}
		return fmt.Errorf("%s failed", method)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

// Ping checks liveness.
func (c *Client) Ping(ctx context.Context) error {
	var pong string
	if err := c.Call(ctx, MethodPing, nil, &pong); err != nil {
		return err
	}
	if pong != "pong" {
		return fmt.Errorf("unexpected ping reply %q", pong)
	}
	return nil
}

// Shutdown asks the remote kernel to stop serving.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.Call(ctx, MethodShutdown, nil, nil)
}

// Execute runs one input remotely.
func (c *Client) Execute(ctx context.Context, input string) (*interp.ExecResult, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, MethodExecute, ExecuteParams{Input: input}, &raw); err != nil {
		return nil, err
	}
	return DecodeResult(raw)
}

// ExecuteStreaming runs one input remotely, forwarding output chunks as
// they arrive.
func (c *Client) ExecuteStreaming(ctx context.Context, input string, stdout, stderr io.Writer) (*interp.ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.bucket.Wait(1)

	id := strconv.FormatUint(atomic.AddUint64(&c.nextID, 1), 10)
	raw, err := json.Marshal(ExecuteParams{Input: input})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(&Request{ID: id, Method: MethodExecuteStreaming, Params: raw}); err != nil {
		return nil, err
	}
	for {
		var ev Event
		if err := c.dec.Decode(&ev); err != nil {
			return nil, fmt.Errorf("streaming execute: %w", err)
		}
		if ev.ID != id {
			continue
		}
		switch ev.Type {
		case EventStdout:
			if _, err := io.WriteString(stdout, ev.Data); err != nil {
				return nil, err
			}
		case EventStderr:
			if _, err := io.WriteString(stderr, ev.Data); err != nil {
				return nil, err
			}
		case EventDone:
			return DecodeResult(ev.Result)
		case EventError:
			if ev.Error != nil {
				return nil, callError(ev.Error)
			}
			return nil, errors.New("streaming execute failed")
		}
	}
}

// CallTool invokes one remote tool with named arguments. Its signature
// matches tools.RemoteCall so a client can back a registered server.
func (c *Client) CallTool(ctx context.Context, tool string, args *interp.Object) (*interp.ExecResult, error) {
	var rawArgs json.RawMessage
	if args != nil && args.Len() > 0 {
		data, err := interp.Obj(args).MarshalJSON()
		if err != nil {
			return nil, err
		}
		rawArgs = data
	}
	var raw json.RawMessage
	if err := c.Call(ctx, MethodCallTool, CallToolParams{Tool: tool, Args: rawArgs}, &raw); err != nil {
		return nil, err
	}
	return DecodeResult(raw)
}

// ToolSchemas fetches the remote tool list as local schemas, for
// registering the server in a registry.
func (c *Client) ToolSchemas(ctx context.Context) ([]*tools.Schema, error) {
	var infos []ToolInfo
	if err := c.Call(ctx, MethodListTools, nil, &infos); err != nil {
		return nil, err
	}
	out := make([]*tools.Schema, 0, len(infos))
	for _, info := range infos {
		schema := &tools.Schema{Name: info.Name, Doc: info.Doc}
		for _, p := range info.Params {
			pt, ok := lang.ParamTypeByName(p.Type)
			if !ok {
				pt = lang.ParamString
			}
			schema.Params = append(schema.Params, tools.Param{
				Name: p.Name, Type: pt, TypeName: p.Type,
				Required: p.Required, Default: interp.Null(), Doc: p.Doc,
			})
		}
		out = append(out, schema)
	}
	return out, nil
}

// GetVar fetches one remote variable.
func (c *Client) GetVar(ctx context.Context, name string) (interp.Value, bool, error) {
	var res VarResult
	if err := c.Call(ctx, MethodGetVar, VarParams{Name: name}, &res); err != nil {
		return interp.Null(), false, err
	}
	if !res.Found {
		return interp.Null(), false, nil
	}
	v, err := interp.ParseJSON(res.Value)
	if err != nil {
		return interp.Null(), false, err
	}
	return v, true, nil
}

// SetVar stores one remote variable.
func (c *Client) SetVar(ctx context.Context, name string, v interp.Value) error {
	raw, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	return c.Call(ctx, MethodSetVar, VarParams{Name: name, Value: raw}, nil)
}
