package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b IRValue
		want bool
	}{
		{"nil and null", nil, IRNull{}, true},
		{"strings", IRString("a"), IRString("a"), true},
		{"string vs int", IRString("1"), IRInt(1), false},
		{"arrays", Arr(IRInt(1), IRInt(2)), Arr(IRInt(1), IRInt(2)), true},
		{"array order", Arr(IRInt(1), IRInt(2)), Arr(IRInt(2), IRInt(1)), false},
		{"objects", IRObject{"a": IRInt(1), "b": IRNull{}}, IRObject{"b": IRNull{}, "a": IRInt(1)}, true},
		{"object missing key", IRObject{"a": IRInt(1)}, IRObject{"b": IRInt(1)}, false},
		{"null vs empty object", IRNull{}, IRObject{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestSame(t *testing.T) {
	obj := IRObject{"a": IRInt(1)}
	arr := Arr(IRInt(1))

	assert.True(t, Same(obj, obj))
	assert.False(t, Same(obj, IRObject{"a": IRInt(1)}), "equal but distinct maps")
	assert.True(t, Same(arr, arr))
	assert.False(t, Same(arr, Arr(IRInt(1))))
	assert.True(t, Same(IRString("x"), IRString("x")))
	assert.True(t, Same(IRNull{}, nil))
	assert.False(t, Same(obj.With("b", IRInt(2)), obj))
}
