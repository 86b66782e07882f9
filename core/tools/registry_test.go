package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/lang"
)

func nopHandler(ec *ExecContext) int { return 0 }

func TestRegistryResolutionOrder(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltin(&Schema{Name: "echo"}, nopHandler)
	require.NoError(t, r.RegisterUser(&Schema{Name: "deploy"}, nopHandler))
	r.RegisterServer("build", []*Schema{{Name: "compile"}},
		func(ctx context.Context, tool string, args *interp.Object) (*interp.ExecResult, error) {
			return interp.OK(""), nil
		})

	e, err := r.Resolve("echo")
	require.NoError(t, err)
	assert.Equal(t, SourceBuiltin, e.Source)

	e, err = r.Resolve("deploy")
	require.NoError(t, err)
	assert.Equal(t, SourceUser, e.Source)

	e, err = r.Resolve("build.compile")
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, e.Source)
}

func TestRegistryUnknownNames(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resolve("nope")
	var ee *interp.EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, interp.NameError, ee.Kind)

	_, err = r.Resolve("ghost.tool")
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Msg, "ghost")
}

func TestRegistryBuiltinCollision(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltin(&Schema{Name: "echo"}, nopHandler)
	err := r.RegisterUser(&Schema{Name: "echo"}, nopHandler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collides")

	// Redefining a user tool replaces it.
	require.NoError(t, r.RegisterUser(&Schema{Name: "mine"}, nopHandler))
	require.NoError(t, r.RegisterUser(&Schema{Name: "mine"}, nopHandler))
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltin(&Schema{Name: "b"}, nopHandler)
	require.NoError(t, r.RegisterUser(&Schema{Name: "u"}, nopHandler))
	r.RegisterServer("srv", []*Schema{{Name: "t"}}, nil)

	entries := r.List()
	require.Len(t, entries, 3)
	assert.Equal(t, "b", entries[0].Name)
	assert.Equal(t, "srv.t", entries[1].Name)
	assert.Equal(t, "u", entries[2].Name)
}

func testSchema() *Schema {
	return &Schema{
		Name: "greet",
		Params: []Param{
			{Name: "name", Type: lang.ParamString, TypeName: "string", Required: true, Default: interp.Null()},
			{Name: "count", Type: lang.ParamInt, TypeName: "int", Default: interp.Int(1)},
			{Name: "ratio", Type: lang.ParamFloat, TypeName: "float", Default: interp.Float(1.0)},
		},
	}
}

func TestBindPositionalAndDefaults(t *testing.T) {
	inv := NewInvocation()
	inv.AddPos(interp.Str("world"))

	bound, err := Bind(testSchema(), inv)
	require.NoError(t, err)

	name, _ := bound.Get("name")
	assert.Equal(t, "world", name.AsStr())
	count, _ := bound.Get("count")
	assert.Equal(t, int64(1), count.AsInt())
}

func TestBindNamedAndWidening(t *testing.T) {
	inv := NewInvocation()
	inv.AddNamed("name", interp.Str("x"))
	inv.AddNamed("ratio", interp.Int(2)) // int→float widening

	bound, err := Bind(testSchema(), inv)
	require.NoError(t, err)
	ratio, _ := bound.Get("ratio")
	assert.Equal(t, interp.KindFloat, ratio.Kind())
	assert.Equal(t, 2.0, ratio.AsFloat())
}

func TestBindRejectsIntForString(t *testing.T) {
	inv := NewInvocation()
	inv.AddNamed("name", interp.Int(42))

	_, err := Bind(testSchema(), inv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wants string")
}

func TestBindErrors(t *testing.T) {
	schema := testSchema()

	tooMany := NewInvocation()
	for i := 0; i < 4; i++ {
		tooMany.AddPos(interp.Str("a"))
	}
	_, err := Bind(schema, tooMany)
	assert.Error(t, err)

	missing := NewInvocation()
	_, err = Bind(schema, missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")

	unknown := NewInvocation()
	unknown.AddNamed("name", interp.Str("x"))
	unknown.AddNamed("bogus", interp.Str("y"))
	_, err = Bind(schema, unknown)
	assert.Error(t, err)

	badType := NewInvocation()
	badType.AddNamed("name", interp.Str("x"))
	badType.AddNamed("count", interp.Str("five"))
	_, err = Bind(schema, badType)
	var ee *interp.EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, interp.TypeError, ee.Kind)

	dup := NewInvocation()
	dup.AddPos(interp.Str("x"))
	dup.AddNamed("name", interp.Str("y"))
	_, err = Bind(schema, dup)
	assert.Contains(t, err.Error(), "twice")
}

func TestInvocationArgv(t *testing.T) {
	inv := NewInvocation()
	inv.AddFlag("v", true, interp.Bool(true))
	inv.AddFlag("color", false, interp.Str("never"))
	inv.AddPos(interp.Str("/tmp"))
	inv.AddPos(interp.Int(3))

	assert.Equal(t, []string{"ls", "-v", "--color=never", "/tmp", "3"}, inv.Argv("ls"))
}

func TestSchemaFromDef(t *testing.T) {
	prog, err := lang.Parse("tool t(a: string, n: int = 5) {\n echo hi\n}")
	require.NoError(t, err)
	def := prog.Stmts[0].(*lang.ToolDefStmt)

	ev := &interp.Evaluator{Scope: interp.NewScope(nil)}
	schema, err := SchemaFromDef(def, func(e lang.Expr) (interp.Value, error) {
		return ev.EvalExpr(context.Background(), e)
	})
	require.NoError(t, err)
	require.Len(t, schema.Params, 2)
	assert.True(t, schema.Params[0].Required)
	assert.False(t, schema.Params[1].Required)
	assert.Equal(t, int64(5), schema.Params[1].Default.AsInt())
}
