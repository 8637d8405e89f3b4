package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRFloat(1.5)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := IRObject{
		"a":  IRInt(1),
		"A":  IRInt(2),
		"aa": IRInt(3),
		"aA": IRInt(4),
		"Aa": IRInt(5),
		"AA": IRInt(6),
	}

	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestIRObjectCloneIsDeep(t *testing.T) {
	orig := IRObject{
		"age":     IRInt(31),
		"address": IRObject{"zip": IRString("02134")},
		"tags":    IRArray{IRString("a")},
	}

	clone := orig.Clone()
	clone["age"] = IRInt(99)
	clone["address"].(IRObject)["zip"] = IRString("99999")
	clone["tags"].(IRArray)[0] = IRString("z")

	assert.Equal(t, IRInt(31), orig["age"])
	assert.Equal(t, IRString("02134"), orig["address"].(IRObject)["zip"])
	assert.Equal(t, IRString("a"), orig["tags"].(IRArray)[0])
}

func TestUnmarshalIRValueNumbers(t *testing.T) {
	v, err := UnmarshalIRValue([]byte(`{"age": 31, "score": 2.5, "big": 1e3, "name": null}`))
	require.NoError(t, err)

	obj := v.(IRObject)
	assert.Equal(t, IRInt(31), obj["age"])
	assert.Equal(t, IRFloat(2.5), obj["score"])
	assert.Equal(t, IRFloat(1000), obj["big"])
	assert.Equal(t, IRNull{}, obj["name"])
}

func TestFromGoYAMLShapes(t *testing.T) {
	v, err := FromGo(map[string]any{
		"age":    31,
		"weight": 72.5,
		"active": true,
		"tags":   []any{"x", 1},
	})
	require.NoError(t, err)

	obj := v.(IRObject)
	assert.Equal(t, IRInt(31), obj["age"])
	assert.Equal(t, IRFloat(72.5), obj["weight"])
	assert.Equal(t, IRBool(true), obj["active"])
	assert.Equal(t, IRArray{IRString("x"), IRInt(1)}, obj["tags"])
}

func TestFromGoRejectsUnsupported(t *testing.T) {
	_, err := FromGo(struct{}{})
	assert.Error(t, err)
}

func TestMarshalIRValueFloat(t *testing.T) {
	b, err := MarshalIRValue(IRObject{"f": IRFloat(0.25), "i": IRInt(3)})
	require.NoError(t, err)
	assert.Equal(t, `{"f":0.25,"i":3}`, string(b))
}

func TestKindName(t *testing.T) {
	assert.Equal(t, "int", KindName(IRInt(1)))
	assert.Equal(t, "float", KindName(IRFloat(1)))
	assert.Equal(t, "object", KindName(IRObject{}))
	assert.Equal(t, "missing", KindName(nil))
}
