package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNim_TakeLastWins(t *testing.T) {
	g, err := NimEngine{}.New(2, nil)
	require.NoError(t, err)

	// 15 -> 12 -> 9 -> 6 -> 3 -> 0
	moves := []string{"3", "3", "3", "3", "3"}
	for i, m := range moves {
		player := i%2 + 1
		require.Equal(t, player, g.CurrentPlayer())
		require.NoError(t, g.Apply(player, m))
	}
	assert.True(t, g.Over())
	assert.Equal(t, []int{1}, g.Winners())
	assert.Empty(t, g.Moves())
}

func TestNim_RejectsIllegalMoves(t *testing.T) {
	g, err := NimEngine{}.New(2, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, g.Apply(2, "1"), ErrIllegalAction)
	assert.ErrorIs(t, g.Apply(1, "4"), ErrIllegalAction)
	assert.ErrorIs(t, g.Apply(1, "x"), ErrIllegalAction)
	assert.ErrorIs(t, g.Apply(1, PassMove), ErrIllegalAction)
}

func TestNim_PassesVariant(t *testing.T) {
	g, err := NimEngine{}.New(2, []string{"passes"})
	require.NoError(t, err)
	assert.Contains(t, g.Moves(), PassMove)

	require.NoError(t, g.Apply(1, PassMove))
	assert.Equal(t, 2, g.CurrentPlayer())
}

func TestNim_LargeVariantAndUnknownVariant(t *testing.T) {
	g, err := NimEngine{}.New(2, []string{"large"})
	require.NoError(t, err)
	state, err := g.Serialize()
	require.NoError(t, err)
	assert.Contains(t, state, `"pile":21`)

	_, err = NimEngine{}.New(2, []string{"huge"})
	assert.Error(t, err)
}

func TestNim_ResignOneOfThreeContinues(t *testing.T) {
	g, err := NimEngine{}.New(3, nil)
	require.NoError(t, err)

	require.NoError(t, g.Resign(1))
	assert.False(t, g.Over())
	assert.Equal(t, 2, g.CurrentPlayer())

	require.NoError(t, g.Apply(2, "1"))
	assert.Equal(t, 3, g.CurrentPlayer())
	require.NoError(t, g.Apply(3, "1"))
	assert.Equal(t, 2, g.CurrentPlayer(), "resigned player is skipped")

	require.NoError(t, g.Resign(3))
	assert.True(t, g.Over())
	assert.Equal(t, []int{2}, g.Winners())
}

func TestNim_SerializeRoundTrip(t *testing.T) {
	g, err := NimEngine{}.New(2, nil)
	require.NoError(t, err)
	require.NoError(t, g.Apply(1, "2"))

	state, err := g.Serialize()
	require.NoError(t, err)
	loaded, err := NimEngine{}.Load(state)
	require.NoError(t, err)

	assert.Equal(t, 2, loaded.CurrentPlayer())
	again, err := loaded.Serialize()
	require.NoError(t, err)
	assert.Equal(t, state, again)

	_, err = NimEngine{}.Load("{")
	assert.Error(t, err)
}

func TestNim_SingleLegalMoveNearEnd(t *testing.T) {
	g, err := NimEngine{}.Load(`{"pile":1,"players":2,"current":2,"resigned":[false,false],"over":false}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, g.Moves())
}
