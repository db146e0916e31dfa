package expression

import (
	"testing"

	"github.com/cubefs/graphdb/proto"
	"github.com/stretchr/testify/require"
)

func rowGetter(props map[string]proto.Value) PropertyGetter {
	return func(kind Kind, prop string) (proto.Value, bool) {
		v, ok := props[prop]
		return v, ok
	}
}

func TestEvalRelational(t *testing.T) {
	get := rowGetter(map[string]proto.Value{"c1": int64(5), "name": "bob"})

	v, err := GT(TagProp("c1"), Const(int64(1))).Eval(get)
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = LE(TagProp("c1"), Const(int64(4))).Eval(get)
	require.NoError(t, err)
	require.Equal(t, false, v)

	v, err = EQ(TagProp("name"), Const("bob")).Eval(get)
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = NE(TagProp("name"), Const("alice")).Eval(get)
	require.NoError(t, err)
	require.Equal(t, true, v)

	// mixed-width integers compare numerically
	v, err = EQ(Const(int32(5)), Const(int64(5))).Eval(get)
	require.NoError(t, err)
	require.Equal(t, true, v)
}

func TestEvalNullPropagation(t *testing.T) {
	get := rowGetter(map[string]proto.Value{"c1": int64(5)})

	// a missing property is null, and null never satisfies a comparison
	v, err := GT(TagProp("missing"), Const(int64(1))).Eval(get)
	require.NoError(t, err)
	require.Nil(t, v)

	// null infects And unless a false short-circuits it
	v, err = And(
		GT(TagProp("missing"), Const(int64(1))),
		GT(TagProp("c1"), Const(int64(1))),
	).Eval(get)
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = And(
		GT(TagProp("missing"), Const(int64(1))),
		LT(TagProp("c1"), Const(int64(1))),
	).Eval(get)
	require.NoError(t, err)
	require.Equal(t, false, v)

	// a true short-circuits Or past the null
	v, err = Or(
		GT(TagProp("missing"), Const(int64(1))),
		GT(TagProp("c1"), Const(int64(1))),
	).Eval(get)
	require.NoError(t, err)
	require.Equal(t, true, v)
}

func TestEvalLogical(t *testing.T) {
	get := rowGetter(map[string]proto.Value{"a": int64(1), "b": int64(2)})

	v, err := And(
		EQ(TagProp("a"), Const(int64(1))),
		EQ(TagProp("b"), Const(int64(2))),
	).Eval(get)
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = Or(
		EQ(TagProp("a"), Const(int64(9))),
		EQ(TagProp("b"), Const(int64(9))),
	).Eval(get)
	require.NoError(t, err)
	require.Equal(t, false, v)
}

func TestEvalIn(t *testing.T) {
	get := rowGetter(map[string]proto.Value{"c": int64(2)})

	set := Const([]proto.Value{int64(1), int64(2), int64(3)})
	v, err := In(TagProp("c"), set).Eval(get)
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = NotIn(TagProp("c"), set).Eval(get)
	require.NoError(t, err)
	require.Equal(t, false, v)

	v, err = In(Const(int64(9)), set).Eval(get)
	require.NoError(t, err)
	require.Equal(t, false, v)
}

func TestEvalTypeMismatch(t *testing.T) {
	get := rowGetter(map[string]proto.Value{"s": "str"})

	_, err := GT(TagProp("s"), Const(int64(1))).Eval(get)
	require.Error(t, err)
}
