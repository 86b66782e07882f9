package interp

import (
	"encoding/json"
	"strings"
	"time"
)

// ExecResult is the outcome of one executed command or pipeline.
type ExecResult struct {
	// Code is the exit code, 0..255.
	Code int `json:"code"`
	// Ok mirrors Code == 0.
	Ok bool `json:"ok"`
	// Out is the captured stdout.
	Out string `json:"out"`
	// Err is the captured stderr or error message.
	Err string `json:"err,omitempty"`
	// Data is Out parsed as JSON when it is valid JSON, otherwise null.
	Data Value `json:"-"`
	// Duration is wall-clock execution time.
	Duration time.Duration `json:"-"`
}

// OK builds a successful result with the given stdout.
func OK(out string) *ExecResult {
	r := &ExecResult{Code: 0, Ok: true, Out: out}
	r.ParseData()
	return r
}

// Fail builds a failed result from an exit code and message.
func Fail(code int, msg string) *ExecResult {
	if code == 0 {
		code = 1
	}
	return &ExecResult{Code: code, Ok: false, Err: msg}
}

// FailErr builds a failed result from an evaluation error, using the
// error kind's exit code.
func FailErr(err error) *ExecResult {
	if ee, ok := err.(*EvalError); ok {
		return Fail(ee.Kind.ExitCode(), ee.Error())
	}
	return Fail(1, err.Error())
}

// FromCode builds a result from a bare exit code.
func FromCode(code int) *ExecResult {
	return &ExecResult{Code: code, Ok: code == 0}
}

// ParseData populates Data by parsing Out as JSON. Non-JSON output leaves
// Data null.
func (r *ExecResult) ParseData() {
	trimmed := strings.TrimSpace(r.Out)
	if trimmed == "" || !looksLikeJSON(trimmed) {
		r.Data = Null()
		return
	}
	v, err := ParseJSON([]byte(trimmed))
	if err != nil {
		r.Data = Null()
		return
	}
	r.Data = v
}

func looksLikeJSON(s string) bool {
	switch s[0] {
	case '{', '[', '"', 't', 'f', 'n', '-':
		return true
	}
	return s[0] >= '0' && s[0] <= '9'
}

// Value renders the result as an object value, the shape command
// substitution and ${?.field} access see.
func (r *ExecResult) Value() Value {
	obj := NewObject()
	obj.Set("code", Int(int64(r.Code)))
	obj.Set("ok", Bool(r.Ok))
	obj.Set("out", Str(r.Out))
	obj.Set("err", Str(r.Err))
	obj.Set("data", r.Data)
	return Obj(obj)
}

// Field resolves one named field of the result, for ${?.field} access.
func (r *ExecResult) Field(name string) (Value, bool) {
	switch name {
	case "code":
		return Int(int64(r.Code)), true
	case "ok":
		return Bool(r.Ok), true
	case "out":
		return Str(r.Out), true
	case "err":
		return Str(r.Err), true
	case "data":
		return r.Data, true
	}
	return Null(), false
}

// MarshalJSON includes data when present.
func (r *ExecResult) MarshalJSON() ([]byte, error) {
	type alias ExecResult
	payload := struct {
		*alias
		Data       *Value  `json:"data,omitempty"`
		DurationMS float64 `json:"duration_ms,omitempty"`
	}{alias: (*alias)(r)}
	if !r.Data.IsNull() {
		payload.Data = &r.Data
	}
	if r.Duration > 0 {
		payload.DurationMS = float64(r.Duration) / float64(time.Millisecond)
	}
	return json.Marshal(payload)
}
