package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/banmen/internal/model"
)

func TestDraw_MoveClearsOffers(t *testing.T) {
	m := newMachine(t)
	s := start(t, m, "nim", StartOptions{}, "a", "b")

	res, err := m.OfferDraw(s, "b", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.DrawOffered, res.Session.Participants[1].Draw)
	assert.False(t, res.Terminated)

	res, err = m.Move(res.Session, "a", "1", false, t0.Add(2*time.Minute))
	require.NoError(t, err)
	for _, p := range res.Session.Participants {
		assert.Equal(t, model.DrawNone, p.Draw)
	}
}

func TestDraw_OfferWithMoveThenAccept(t *testing.T) {
	m := newMachine(t)
	s := start(t, m, "nim", StartOptions{}, "a", "b")

	res, err := m.Move(s, "a", "1", true, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.DrawOffered, res.Session.Participants[0].Draw)

	res, err = m.OfferDraw(res.Session, "b", t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, res.Terminated)
	assert.Equal(t, model.DrawAccepted, res.Session.Participants[1].Draw)
	assert.Equal(t, []int{1, 2}, res.Session.Winners)
	assert.True(t, res.Session.ToMove.IsEmpty())
}

func TestDraw_RepeatedOfferIsNoop(t *testing.T) {
	m := newMachine(t)
	s := start(t, m, "nim", StartOptions{}, "a", "b", "c")

	res, err := m.OfferDraw(s, "a", t0)
	require.NoError(t, err)
	again, err := m.OfferDraw(res.Session, "a", t0)
	require.NoError(t, err)
	assert.False(t, again.Changed)

	res, err = m.OfferDraw(again.Session, "b", t0)
	require.NoError(t, err)
	assert.False(t, res.Terminated, "participant c has not agreed")
}

func TestDraw_EliminatedParticipantExcluded(t *testing.T) {
	m := newMachine(t)
	s := start(t, m, "race", StartOptions{}, "a", "b", "c")
	res, err := m.Resign(s, "c", t0)
	require.NoError(t, err)

	_, err = m.OfferDraw(res.Session, "c", t0)
	requireCode(t, err, model.ErrCodeDrawNotAllowed)

	res, err = m.OfferDraw(res.Session, "a", t0)
	require.NoError(t, err)
	res, err = m.OfferDraw(res.Session, "b", t0)
	require.NoError(t, err)
	assert.True(t, res.Terminated)
	assert.Equal(t, []int{1, 2}, res.Session.Winners)
}

func TestAbandon(t *testing.T) {
	m := newMachine(t)
	s := start(t, m, "nim", StartOptions{}, "a", "b")
	later := t0.Add(31 * 24 * time.Hour)

	t.Run("inactive and unseen", func(t *testing.T) {
		seen := map[string]time.Time{"a": t0, "b": t0.Add(24 * time.Hour)}
		res, err := m.Abandon(s, seen, later)
		require.NoError(t, err)
		assert.True(t, res.Terminated)
		assert.Empty(t, res.Session.Winners)
		assert.True(t, res.Session.ToMove.IsEmpty())
	})

	t.Run("recently seen participant", func(t *testing.T) {
		seen := map[string]time.Time{"a": t0, "b": later.Add(-time.Hour)}
		_, err := m.Abandon(s, seen, later)
		requireCode(t, err, model.ErrCodeNotAbandoned)
	})

	t.Run("recent move", func(t *testing.T) {
		_, err := m.Abandon(s, nil, t0.Add(29*24*time.Hour))
		requireCode(t, err, model.ErrCodeNotAbandoned)
	})

	t.Run("hard clock", func(t *testing.T) {
		hard := start(t, m, "nim", StartOptions{Clock: model.ClockSettings{Increment: time.Hour, Hard: true}}, "a", "b")
		_, err := m.Abandon(hard, nil, later)
		requireCode(t, err, model.ErrCodeNotAbandoned)
	})
}

func TestAbandon_CustomThreshold(t *testing.T) {
	reg := newMachine(t).registry
	m := NewMachine(reg, 24*time.Hour)
	s := start(t, m, "nim", StartOptions{}, "a", "b")

	res, err := m.Abandon(s, nil, t0.Add(25*time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Terminated)
}

func TestPie_SecondInvocationIsNoop(t *testing.T) {
	m := newMachine(t)
	s := start(t, m, "nim-pie", StartOptions{}, "a", "b")

	res, err := m.Move(s, "a", "2", false, t0.Add(time.Minute))
	require.NoError(t, err)

	first, err := m.InvokePie(res.Session, "b", t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.True(t, first.Session.PieInvoked)
	assert.Equal(t, []string{"b", "a"}, first.Session.ParticipantIDs())
	require.NotNil(t, first.Session.ToMove.Player)
	assert.Equal(t, 1, *first.Session.ToMove.Player, "the original first mover plays next")

	second, err := m.InvokePie(first.Session, "b", t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, first.Session, second.Session)
}

func TestPie_EvenVariantPassesAndCredits(t *testing.T) {
	m := newMachine(t)
	s := start(t, m, "nim-even", StartOptions{}, "a", "b")

	res, err := m.Move(s, "a", "2", false, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, res.Session.Participants[0].TimeRemaining)

	res, err = m.InvokePie(res.Session, "b", t0.Add(2*time.Hour))
	require.NoError(t, err)
	s = res.Session
	assert.Equal(t, []string{"b", "a"}, s.ParticipantIDs())
	assert.Equal(t, 0, *s.ToMove.Player, "the swap invoker moves after the automatic pass")
	assert.Equal(t, 24*time.Hour, s.Participants[0].TimeRemaining)
	assert.Equal(t, 25*time.Hour, s.Participants[1].TimeRemaining)
	assert.Equal(t, 3, s.MoveCount)
}

func TestPie_Rejections(t *testing.T) {
	m := newMachine(t)

	plain := start(t, m, "nim", StartOptions{}, "a", "b")
	res, err := m.Move(plain, "a", "1", false, t0)
	require.NoError(t, err)
	_, err = m.InvokePie(res.Session, "b", t0)
	requireCode(t, err, model.ErrCodePieNotAllowed)

	pie := start(t, m, "nim-pie", StartOptions{}, "a", "b")
	_, err = m.InvokePie(pie, "a", t0)
	requireCode(t, err, model.ErrCodePieNotAllowed)

	res, err = m.Move(pie, "a", "1", false, t0)
	require.NoError(t, err)
	_, err = m.InvokePie(res.Session, "a", t0)
	requireCode(t, err, model.ErrCodeNotYourTurn)
}
