package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueText(t *testing.T) {
	obj := NewObject()
	obj.Set("b", Int(2))
	obj.Set("a", Int(1))

	cases := []struct {
		v    Value
		want string
	}{
		{Null(), ""},
		{Bool(true), "true"},
		{Int(-42), "-42"},
		{Float(2.5), "2.5"},
		{Str("plain"), "plain"},
		{Arr([]Value{Int(1), Str("x")}), `[1,"x"]`},
		{Obj(obj), `{"b":2,"a":1}`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.v.Text())
	}
}

func TestValueTruthy(t *testing.T) {
	assert.False(t, Null().Truthy())
	assert.False(t, Bool(false).Truthy())
	assert.False(t, Int(0).Truthy())
	assert.False(t, Str("").Truthy())
	assert.False(t, Arr(nil).Truthy())

	assert.True(t, Bool(true).Truthy())
	assert.True(t, Int(-1).Truthy())
	assert.True(t, Float(0.5).Truthy())
	assert.True(t, Str("no").Truthy())
	assert.True(t, Arr([]Value{Null()}).Truthy())
}

func TestValueEqualNumericWidening(t *testing.T) {
	assert.True(t, Int(3).Equal(Float(3.0)))
	assert.False(t, Int(3).Equal(Float(3.5)))
	assert.False(t, Int(1).Equal(Str("1")))
}

func TestParseJSONPreservesOrderAndIntness(t *testing.T) {
	v, err := ParseJSON([]byte(`{"z": 1, "a": 2.5, "m": [true, null, "s"]}`))
	require.NoError(t, err)
	require.Equal(t, KindObject, v.Kind())
	assert.Equal(t, []string{"z", "a", "m"}, v.Fields().Keys())

	z, _ := v.Fields().Get("z")
	assert.Equal(t, KindInt, z.Kind())
	a, _ := v.Fields().Get("a")
	assert.Equal(t, KindFloat, a.Kind())

	// Round trip keeps order.
	out, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":2.5,"m":[true,null,"s"]}`, string(out))
}

func TestParseJSONRejectsTrailingData(t *testing.T) {
	_, err := ParseJSON([]byte(`{"a":1} extra`))
	assert.Error(t, err)
}

func TestObjectDelete(t *testing.T) {
	o := NewObject()
	o.Set("a", Int(1))
	o.Set("b", Int(2))
	o.Set("c", Int(3))
	o.Delete("b")
	assert.Equal(t, []string{"a", "c"}, o.Keys())
	_, ok := o.Get("b")
	assert.False(t, ok)
}

func TestExecResultDataParsing(t *testing.T) {
	r := OK(`{"count": 3}`)
	require.Equal(t, KindObject, r.Data.Kind())
	cnt, _ := r.Data.Fields().Get("count")
	assert.Equal(t, int64(3), cnt.AsInt())

	r = OK("plain text\n")
	assert.True(t, r.Data.IsNull())
}

func TestExecResultValueShape(t *testing.T) {
	r := Fail(2, "boom")
	v := r.Value()
	require.Equal(t, KindObject, v.Kind())
	assert.Equal(t, []string{"code", "ok", "out", "err", "data"}, v.Fields().Keys())

	code, _ := r.Field("code")
	assert.Equal(t, int64(2), code.AsInt())
	ok, _ := r.Field("ok")
	assert.False(t, ok.AsBool())
}
