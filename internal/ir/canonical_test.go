package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"bool", IRBool(false), "false"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"sorted keys", IRObject{"zebra": IRInt(1), "alpha": IRInt(2)}, `{"alpha":2,"zebra":1}`},
		{"no html escaping", IRString("<a & b>"), `"<a & b>"`},
		{"control escaped", IRString("a\nb\x01"), `"a\nb\u0001"`},
		{"null member omitted", IRObject{"a": IRNull{}, "b": IRInt(1)}, `{"b":1}`},
		{"go map", map[string]any{"b": "x", "a": []any{1, true}}, `{"a":[1,true],"b":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalRejectsFloatAndNull(t *testing.T) {
	_, err := MarshalCanonical(IRFloat(1.5))
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(IRArray{IRNull{}})
	assert.Error(t, err)
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to a single code point.
	result, err := MarshalCanonical(IRString("é"))
	require.NoError(t, err)
	assert.Equal(t, "\"é\"", string(result))
}
