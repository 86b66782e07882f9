// Package remote implements the kernel's JSON-lines RPC protocol: the
// record schema, the serve-mode server and the client used both by the
// CLI and by registered tool servers. The record definitions here are
// the source of truth for field naming.
package remote

import (
	"encoding/json"

	"github.com/indielab/kaish/core/interp"
)

// Request is one framed RPC call.
type Request struct {
	// ID correlates the response; streaming events carry the same ID.
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one framed RPC reply.
type Response struct {
	ID     string          `json:"id"`
	Ok     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorInfo      `json:"error,omitempty"`
}

// ErrorInfo carries a failed call's classification.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Event is one streaming record emitted during executeStreaming. The
// terminal event is type "done" (with a result) or "error".
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	// Data holds the chunk for stdout/stderr events.
	Data string `json:"data,omitempty"`
	// Result is set on the done event.
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorInfo      `json:"error,omitempty"`
}

// Event types.
const (
	EventStdout = "stdout"
	EventStderr = "stderr"
	EventDone   = "done"
	EventError  = "error"
)

// Method names.
const (
	MethodExecute          = "execute"
	MethodExecuteStreaming = "executeStreaming"
	MethodGetVar           = "getVar"
	MethodSetVar           = "setVar"
	MethodListVars         = "listVars"
	MethodListTools        = "listTools"
	MethodCallTool         = "callTool"
	MethodListJobs         = "listJobs"
	MethodCancelJob        = "cancelJob"
	MethodWaitJob          = "waitJob"
	MethodMount            = "mount"
	MethodUnmount          = "unmount"
	MethodListMounts       = "listMounts"
	MethodRegisterServer   = "registerServer"
	MethodUnregisterServer = "unregisterServer"
	MethodListServers      = "listServers"
	MethodSnapshot         = "snapshot"
	MethodRestore          = "restore"
	MethodReset            = "reset"
	MethodReadBlob         = "readBlob"
	MethodWriteBlob        = "writeBlob"
	MethodDeleteBlob       = "deleteBlob"
	MethodReadResource     = "readResource"
	MethodWriteResource    = "writeResource"
	MethodListResources    = "listResources"
	MethodStatResource     = "statResource"
	MethodRemoveResource   = "removeResource"
	MethodPing             = "ping"
	MethodShutdown         = "shutdown"
)

// ExecuteParams feeds execute and executeStreaming.
type ExecuteParams struct {
	Input string `json:"input"`
}

// VarParams addresses one variable.
type VarParams struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value,omitempty"`
}

// VarResult returns one variable.
type VarResult struct {
	Name  string          `json:"name"`
	Found bool            `json:"found"`
	Value json.RawMessage `json:"value,omitempty"`
}

// CallToolParams invokes one tool with named arguments.
type CallToolParams struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolInfo describes one registered tool.
type ToolInfo struct {
	Name   string      `json:"name"`
	Source string      `json:"source"`
	Doc    string      `json:"doc,omitempty"`
	Params []ToolParam `json:"params,omitempty"`
}

// ToolParam describes one tool parameter.
type ToolParam struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Doc      string `json:"doc,omitempty"`
}

// JobParams addresses one job; ID 0 means all jobs for waitJob.
type JobParams struct {
	ID int `json:"id"`
}

// JobRecord is one job listing row.
type JobRecord struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
}

// WaitJobResult returns completed jobs' results.
type WaitJobResult struct {
	Jobs []WaitedJob `json:"jobs"`
}

// WaitedJob pairs a job ID with its result.
type WaitedJob struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
}

// MountParams configures a mount.
type MountParams struct {
	Path     string `json:"path"`
	Type     string `json:"type"`
	Spec     string `json:"spec,omitempty"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

// MountRecord is one mount table row.
type MountRecord struct {
	Path     string `json:"path"`
	Type     string `json:"type"`
	Spec     string `json:"spec,omitempty"`
	ReadOnly bool   `json:"read_only"`
}

// ServerParams registers a tool server by address.
type ServerParams struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// BlobParams addresses blob content. Data is base64 per encoding/json.
type BlobParams struct {
	Hash string `json:"hash,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// BlobResult returns blob content or the stored hash.
type BlobResult struct {
	Hash string `json:"hash,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// ResourceParams addresses one VFS path on the serving kernel.
type ResourceParams struct {
	Path   string `json:"path"`
	Data   []byte `json:"data,omitempty"`
	Append bool   `json:"append,omitempty"`
}

// ResourceEntry is one listing or stat row.
type ResourceEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Dir  bool   `json:"dir"`
}

// SnapshotResult carries a whole-state dump.
type SnapshotResult struct {
	State json.RawMessage `json:"state"`
}

// encodeResult renders an ExecResult for the wire.
func encodeResult(r *interp.ExecResult) (json.RawMessage, error) {
	return json.Marshal(r)
}

// DecodeResult parses a wire result back into an ExecResult.
func DecodeResult(raw json.RawMessage) (*interp.ExecResult, error) {
	var r interp.ExecResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	r.ParseData()
	return &r, nil
}
