package tools

import (
	"fmt"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/lang"
)

// Bind matches an invocation against a schema and returns the bound
// arguments keyed by parameter name. Positional arguments fill parameters
// in declaration order; named arguments fill by name; remaining
// parameters take their defaults. Missing required parameters, unknown
// names and excess positionals are argument errors.
func Bind(schema *Schema, inv *Invocation) (*interp.Object, error) {
	bound := interp.NewObject()
	byName := make(map[string]*Param, len(schema.Params))
	for i := range schema.Params {
		byName[schema.Params[i].Name] = &schema.Params[i]
	}

	if len(inv.Pos) > len(schema.Params) {
		return nil, argErrf("%s takes at most %d arguments, got %d",
			schema.Name, len(schema.Params), len(inv.Pos))
	}
	for i, v := range inv.Pos {
		p := &schema.Params[i]
		coerced, err := coerce(p, v)
		if err != nil {
			return nil, err
		}
		bound.Set(p.Name, coerced)
	}

	for _, key := range inv.Named.Keys() {
		p, ok := byName[key]
		if !ok {
			return nil, argErrf("%s has no parameter %q", schema.Name, key)
		}
		if _, dup := bound.Get(key); dup {
			return nil, argErrf("parameter %q given twice", key)
		}
		v, _ := inv.Named.Get(key)
		coerced, err := coerce(p, v)
		if err != nil {
			return nil, err
		}
		bound.Set(key, coerced)
	}

	for i := range schema.Params {
		p := &schema.Params[i]
		if _, ok := bound.Get(p.Name); ok {
			continue
		}
		if p.Required {
			return nil, argErrf("%s: missing required parameter %q", schema.Name, p.Name)
		}
		bound.Set(p.Name, p.Default)
	}
	return bound, nil
}

// coerce checks the value's tag against the declared type. The only
// widening is int to float; everything else must match exactly, so a
// numeric argument to a string parameter is a TypeError rather than a
// silent stringification.
func coerce(p *Param, v interp.Value) (interp.Value, error) {
	switch p.Type {
	case lang.ParamString:
		if v.Kind() == interp.KindString {
			return v, nil
		}
	case lang.ParamInt:
		if v.Kind() == interp.KindInt {
			return v, nil
		}
	case lang.ParamFloat:
		switch v.Kind() {
		case interp.KindFloat:
			return v, nil
		case interp.KindInt:
			return interp.Float(v.AsFloat()), nil
		}
	case lang.ParamBool:
		if v.Kind() == interp.KindBool {
			return v, nil
		}
	case lang.ParamArray:
		if v.Kind() == interp.KindArray {
			return v, nil
		}
	case lang.ParamObject:
		if v.Kind() == interp.KindObject {
			return v, nil
		}
	}
	return interp.Null(), interp.Errf(interp.TypeError, lang.Span{},
		"parameter %q wants %s, got %s", p.Name, p.Type, v.Kind())
}

// SchemaFromDef converts a parsed tool definition into a schema,
// evaluating parameter defaults eagerly.
func SchemaFromDef(def *lang.ToolDefStmt, evalDefault func(lang.Expr) (interp.Value, error)) (*Schema, error) {
	schema := &Schema{Name: def.Name}
	for _, pd := range def.Params {
		param := Param{
			Name:     pd.Name,
			Type:     pd.Type,
			TypeName: pd.Type.String(),
			Required: pd.Default == nil,
			Default:  interp.Null(),
		}
		if pd.Default != nil {
			v, err := evalDefault(pd.Default)
			if err != nil {
				return nil, err
			}
			coerced, err := coerce(&param, v)
			if err != nil {
				return nil, err
			}
			param.Default = coerced
		}
		schema.Params = append(schema.Params, param)
	}
	return schema, nil
}

func argErrf(format string, args ...interface{}) error {
	return interp.Errf(interp.ArgumentError, lang.Span{}, "%s", fmt.Sprintf(format, args...))
}
