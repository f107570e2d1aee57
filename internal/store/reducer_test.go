package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relay/internal/ir"
)

func TestCombine_RequiresSlices(t *testing.T) {
	_, err := Combine(nil)
	require.Error(t, err)

	_, err = Combine(map[string]Reducer{"count": nil})
	require.Error(t, err)

	_, err = Combine(map[string]Reducer{"": countReducer})
	require.Error(t, err)
}

func TestCombine_ShapeCheckRejectsNilDefault(t *testing.T) {
	_, err := Combine(map[string]Reducer{
		"count": countReducer,
		"lazy": func(state ir.IRValue, action Action) ir.IRValue {
			return state // nil for an absent state
		},
	})
	require.Error(t, err)
	assert.True(t, IsNilSliceError(err))

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "lazy", re.Slice)
}

func TestCombine_ShapeCheckRejectsNilForUnknownAction(t *testing.T) {
	_, err := Combine(map[string]Reducer{
		"partial": func(state ir.IRValue, action Action) ir.IRValue {
			if action.Type == ActionInit {
				return ir.IRInt(0)
			}
			return nil
		},
	})
	require.Error(t, err)
	assert.True(t, IsNilSliceError(err))
}

func TestCombine_SortedSlices(t *testing.T) {
	c := MustCombine(map[string]Reducer{
		"zeta":  countReducer,
		"alpha": countReducer,
		"mid":   logReducer,
	})
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, c.Slices())
}

func TestCombination_ReduceFromAbsent(t *testing.T) {
	c := testRoot()

	state, err := c.Reduce(nil, Action{Type: ActionInit})
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{"count": ir.IRInt(0), "log": ir.Arr()}, state)
}

func TestCombination_UnknownActionReturnsSameTree(t *testing.T) {
	c := testRoot()
	state, err := c.Reduce(nil, Action{Type: ActionInit})
	require.NoError(t, err)

	next, err := c.Reduce(state, NewAction("NOT_HANDLED", ir.IRString("x")))
	require.NoError(t, err)
	assert.True(t, ir.Same(state, next))
}

func TestCombination_AddsMissingSlices(t *testing.T) {
	c := testRoot()

	next, err := c.Reduce(ir.IRObject{"count": ir.IRInt(4)}, NewAction("NOT_HANDLED", nil))
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(4), next["count"])
	assert.Equal(t, ir.Arr(), next["log"])
}

func TestCombination_DropsUnknownKeys(t *testing.T) {
	c := testRoot()

	prev := ir.IRObject{"count": ir.IRInt(1), "log": ir.Arr(), "stale": ir.IRBool(true)}
	next, err := c.Reduce(prev, NewAction("NOT_HANDLED", nil))
	require.NoError(t, err)
	assert.Len(t, next, 2, "output has exactly the registered keys")
	assert.False(t, ir.Same(prev, next))
}

func TestCombination_NilSlice(t *testing.T) {
	c := MustCombine(map[string]Reducer{
		"fragile": func(state ir.IRValue, action Action) ir.IRValue {
			if action.Type == "BREAK" {
				return nil
			}
			if state == nil {
				return ir.Null
			}
			return state
		},
	})

	state, err := c.Reduce(nil, Action{Type: ActionInit})
	require.NoError(t, err)
	assert.True(t, ir.IsNull(state["fragile"]), "null is a valid slice value")

	_, err = c.Reduce(state, NewAction("BREAK", nil))
	require.Error(t, err)
	assert.True(t, IsNilSliceError(err))
	assert.Contains(t, err.Error(), "slice=fragile")
	assert.Contains(t, err.Error(), "action=BREAK")
}

func TestMustCombine_Panics(t *testing.T) {
	assert.Panics(t, func() { MustCombine(nil) })
}
