package interp

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/indielab/kaish/core/lang"
)

// SubstFunc runs a command substitution pipeline and returns its result.
// The statement executor provides it; keeping it a callback avoids a
// dependency cycle between expression evaluation and command dispatch.
type SubstFunc func(ctx context.Context, pipe *lang.PipelineStmt) (*ExecResult, error)

// Evaluator expands expressions against a scope.
type Evaluator struct {
	Scope *Scope
	// Last supplies the current last-result record backing $?.
	Last func() *ExecResult
	// Subst runs $(pipeline) substitutions.
	Subst SubstFunc
}

// EvalExpr computes the value of an expression.
func (ev *Evaluator) EvalExpr(ctx context.Context, e lang.Expr) (Value, error) {
	switch x := e.(type) {
	case *lang.NullLit:
		return Null(), nil
	case *lang.BoolLit:
		return Bool(x.V), nil
	case *lang.IntLit:
		return Int(x.V), nil
	case *lang.FloatLit:
		return Float(x.V), nil
	case *lang.StringLit:
		return Str(x.V), nil
	case *lang.ArrayLit:
		items := make([]Value, 0, len(x.Items))
		for _, item := range x.Items {
			v, err := ev.EvalExpr(ctx, item)
			if err != nil {
				return Null(), err
			}
			items = append(items, v)
		}
		return Arr(items), nil
	case *lang.ObjectLit:
		obj := NewObject()
		for i, k := range x.Keys {
			v, err := ev.EvalExpr(ctx, x.Vals[i])
			if err != nil {
				return Null(), err
			}
			obj.Set(k, v)
		}
		return Obj(obj), nil
	case *lang.VarRef:
		return ev.EvalRef(ctx, x)
	case *lang.InterpString:
		return ev.evalInterp(ctx, x)
	case *lang.CmdSubst:
		if ev.Subst == nil {
			return Null(), Errf(InternalError, x.Span, "command substitution is not available here")
		}
		res, err := ev.Subst(ctx, x.Pipe)
		if err != nil {
			return Null(), err
		}
		return res.Value(), nil
	}
	return Null(), Errf(InternalError, e.ExprSpan(), "unhandled expression %T", e)
}

// EvalRef resolves a variable reference including path segments, default
// values and the length form.
func (ev *Evaluator) EvalRef(ctx context.Context, ref *lang.VarRef) (Value, error) {
	root, found, err := ev.resolveRoot(ref)
	if err != nil {
		return Null(), err
	}

	v := root
	if found {
		v, err = ev.walkPath(root, ref)
		if err != nil {
			if ref.Default == nil {
				return Null(), err
			}
			found = false
		}
	}

	if !found || (ref.Default != nil && v.Text() == "") {
		if ref.Default != nil {
			return ev.EvalExpr(ctx, ref.Default)
		}
		if !found {
			return Null(), Errf(NameError, ref.Span, "undefined variable %q", ref.Name())
		}
	}

	if ref.Length {
		return Int(int64(v.Length())), nil
	}
	return v, nil
}

// resolveRoot looks up the first path segment: a scope variable, a
// positional parameter, or the last-result record.
func (ev *Evaluator) resolveRoot(ref *lang.VarRef) (Value, bool, error) {
	name := ref.Name()
	switch name {
	case "?":
		if ev.Last == nil {
			return Null(), false, nil
		}
		last := ev.Last()
		if last == nil {
			last = FromCode(0)
		}
		// Bare $? is the integer code; ${?.field} selects fields.
		if len(ref.Path) == 1 {
			return Int(int64(last.Code)), true, nil
		}
		return last.Value(), true, nil
	case "@":
		return Arr(ev.Scope.Args()), true, nil
	case "#":
		return Int(int64(len(ev.Scope.Args()))), true, nil
	}
	if len(name) == 1 && name[0] >= '0' && name[0] <= '9' {
		args := ev.Scope.Args()
		idx := int(name[0] - '0')
		if idx >= len(args) {
			return Null(), false, nil
		}
		return args[idx], true, nil
	}
	v, ok := ev.Scope.Get(name)
	return v, ok, nil
}

// walkPath applies the remaining field and index segments.
func (ev *Evaluator) walkPath(v Value, ref *lang.VarRef) (Value, error) {
	for _, seg := range ref.Path[1:] {
		switch seg.Kind {
		case lang.SegField:
			if v.Kind() != KindObject {
				return Null(), Errf(TypeError, ref.Span,
					"cannot access field %q of %s value", seg.Field, v.Kind())
			}
			fv, ok := v.Fields().Get(seg.Field)
			if !ok {
				return Null(), Errf(NameError, ref.Span,
					"no field %q in %s", seg.Field, ref.Name())
			}
			v = fv
		case lang.SegIndex:
			if v.Kind() != KindArray {
				return Null(), Errf(TypeError, ref.Span,
					"cannot index %s value", v.Kind())
			}
			items := v.Items()
			idx := seg.Index
			if idx < 0 {
				idx = len(items) + idx
			}
			if idx < 0 || idx >= len(items) {
				return Null(), Errf(NameError, ref.Span,
					"index %d out of range (length %d)", seg.Index, len(items))
			}
			v = items[idx]
		}
	}
	return v, nil
}

func (ev *Evaluator) evalInterp(ctx context.Context, s *lang.InterpString) (Value, error) {
	var b strings.Builder
	for _, part := range s.Parts {
		if part.Ref == nil {
			b.WriteString(part.Text)
			continue
		}
		v, err := ev.EvalRef(ctx, part.Ref)
		if err != nil {
			return Null(), err
		}
		b.WriteString(v.Text())
	}
	return Str(b.String()), nil
}

// EvalTest evaluates a [[ ... ]] expression to an exit-code result.
func (ev *Evaluator) EvalTest(ctx context.Context, t *lang.TestStmt) (*ExecResult, error) {
	left, err := ev.EvalExpr(ctx, t.Left)
	if err != nil {
		return nil, err
	}
	if t.Op == "" {
		return FromCode(boolCode(left.Truthy())), nil
	}
	right, err := ev.EvalExpr(ctx, t.Right)
	if err != nil {
		return nil, err
	}

	switch t.Op {
	case "==":
		return FromCode(boolCode(left.Equal(right))), nil
	case "!=":
		return FromCode(boolCode(!left.Equal(right))), nil
	case "=~", "!~":
		re, err := regexp.Compile(right.Text())
		if err != nil {
			return nil, Errf(ArgumentError, t.Span, "invalid pattern: %v", err)
		}
		matched := re.MatchString(left.Text())
		if t.Op == "!~" {
			matched = !matched
		}
		return FromCode(boolCode(matched)), nil
	case "-eq", "-ne", "-lt", "-gt", "-le", "-ge":
		lf, rf, err := numericPair(left, right, t.Span)
		if err != nil {
			return nil, err
		}
		var res bool
		switch t.Op {
		case "-eq":
			res = lf == rf
		case "-ne":
			res = lf != rf
		case "-lt":
			res = lf < rf
		case "-gt":
			res = lf > rf
		case "-le":
			res = lf <= rf
		case "-ge":
			res = lf >= rf
		}
		return FromCode(boolCode(res)), nil
	}
	return nil, Errf(InternalError, t.Span, "unhandled test operator %q", t.Op)
}

func boolCode(b bool) int {
	if b {
		return 0
	}
	return 1
}

func numericPair(l, r Value, span lang.Span) (float64, float64, error) {
	lf, err := numeric(l, span)
	if err != nil {
		return 0, 0, err
	}
	rf, err := numeric(r, span)
	if err != nil {
		return 0, 0, err
	}
	return lf, rf, nil
}

func numeric(v Value, span lang.Span) (float64, error) {
	switch v.Kind() {
	case KindInt, KindFloat:
		return v.AsFloat(), nil
	case KindString:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(v.AsStr()), "%g", &f); err == nil {
			return f, nil
		}
	}
	return 0, Errf(TypeError, span, "numeric comparison needs a number, got %s", v.Kind())
}

// SplitWords breaks a value into for-loop iteration items: arrays iterate
// elements, strings split on whitespace, everything else iterates once.
func SplitWords(v Value) []Value {
	switch v.Kind() {
	case KindArray:
		return v.Items()
	case KindString:
		fields := strings.Fields(v.AsStr())
		out := make([]Value, 0, len(fields))
		for _, f := range fields {
			out = append(out, Str(f))
		}
		return out
	case KindNull:
		return nil
	}
	return []Value{v}
}
