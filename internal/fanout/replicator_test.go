package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/banmen/internal/model"
	"github.com/hitoshi/banmen/internal/rating"
	"github.com/hitoshi/banmen/internal/repository"
)

type fixture struct {
	store   *repository.MemoryStore
	players *repository.KVPlayerRepo
	index   *repository.KVCompletedIndexRepo
	ratings *repository.KVRatingRepo
	rep     *Replicator
}

func newFixture() *fixture {
	store := repository.NewMemoryStore()
	f := &fixture{
		store:   store,
		players: repository.NewKVPlayerRepo(store, 3, nil),
		index:   repository.NewKVCompletedIndexRepo(store),
		ratings: repository.NewKVRatingRepo(store),
	}
	f.rep = NewReplicator(f.players, f.index, f.ratings, nil)
	return f
}

func session(id string, ids ...string) *model.Session {
	s := &model.Session{ID: id, GameType: "nim", ToMove: model.SequentialTurn(0), Rated: true}
	for _, pid := range ids {
		s.Participants = append(s.Participants, model.Participant{ID: pid, Name: pid})
	}
	return s
}

func TestPublish_ReplacesOnlyOwnEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.rep.Publish(ctx, session("g1", "a", "b"), nil))
	require.NoError(t, f.rep.Publish(ctx, session("g2", "a", "c"), nil))

	g1 := session("g1", "a", "b")
	g1.MoveCount = 4
	require.NoError(t, f.rep.Publish(ctx, g1, nil))

	pr, err := f.players.FindByID(ctx, "a")
	require.NoError(t, err)
	require.Len(t, pr.Games, 2)
	assert.Equal(t, "g1", pr.Games[0].ID)
	assert.Equal(t, 4, pr.Games[0].MoveCount)
	assert.Equal(t, "g2", pr.Games[1].ID)

	c, err := f.players.FindByID(ctx, "c")
	require.NoError(t, err)
	require.Len(t, c.Games, 1)
}

func TestPublish_RetriedDeltaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := session("g1", "a", "b")
	s.MoveCount = 2

	require.NoError(t, f.rep.Publish(ctx, s, nil))
	before, err := f.players.FindByID(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, f.rep.Publish(ctx, s, nil))
	after, err := f.players.FindByID(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, before.Games, after.Games)
	assert.Equal(t, *before.Version, *after.Version)
}

func TestPublish_AppliesRatingPlanOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := session("g1", "a", "b")
	terminal := s.Clone()
	terminal.Completed = true
	terminal.ToMove = model.ToMove{}
	terminal.Winners = []int{1}
	terminal.MoveCount = 6
	terminal.CompletedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	u := rating.NewUpdater(f.players)
	plan, err := u.Plan(ctx, terminal)
	require.NoError(t, err)
	require.NoError(t, f.rep.Publish(ctx, terminal, plan))
	// 同じ計画で再実行しても二重に反映されない
	require.NoError(t, f.rep.Publish(ctx, terminal, plan))

	a, err := f.players.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 1220.0, a.RatingFor("nim").Rating, 1e-9)
	assert.Equal(t, 1, a.RatingFor("nim").N)

	table, err := f.ratings.ListByGameType(ctx, "nim")
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, "a", table[0].PlayerID)
}

func TestReconcile_WritesIndexForCompletedSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := session("g1", "a", "b")
	s.Completed = true
	s.ToMove = model.ToMove{}
	s.Winners = []int{2}
	s.CompletedAt = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.rep.Publish(ctx, session("g1", "a", "b"), nil))
	require.NoError(t, f.rep.Reconcile(ctx, s, nil))
	require.NoError(t, f.rep.Reconcile(ctx, s, nil))

	byPlayer, err := f.index.ListByPlayer(ctx, "b", 0)
	require.NoError(t, err)
	require.Len(t, byPlayer, 1, "reconciling twice must not duplicate index entries")
	assert.Equal(t, []int{2}, byPlayer[0].Winners)

	pr, err := f.players.FindByID(ctx, "a")
	require.NoError(t, err)
	sum, ok := pr.FindSummary("g1")
	require.True(t, ok)
	assert.True(t, sum.Completed)
}

func TestDismiss(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	active := session("g1", "a", "b")
	done := session("g2", "a", "b")
	done.Completed = true
	done.ToMove = model.ToMove{}
	require.NoError(t, f.rep.Publish(ctx, active, nil))
	require.NoError(t, f.rep.Publish(ctx, done, nil))

	_, err := f.rep.Dismiss(ctx, "a", "g1")
	assert.True(t, model.HasCode(err, model.ErrCodeInvalidSession))

	pr, err := f.rep.Dismiss(ctx, "a", "g2")
	require.NoError(t, err)
	assert.Len(t, pr.Games, 1)

	b, err := f.players.FindByID(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, b.Games, 2, "dismissal only affects the caller's list")
}

func TestPublish_PlansBuiltBeforeEitherPublishBothCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	u := rating.NewUpdater(f.players)

	won := func(id, opponent string) *model.Session {
		s := session(id, "a", opponent)
		s.Completed = true
		s.ToMove = model.ToMove{}
		s.Winners = []int{1}
		s.MoveCount = 6
		return s
	}
	x, y := won("x", "b"), won("y", "c")
	// ほぼ同時に終局した2つの対局の計画を、どちらの書き込みよりも前に作る
	px, err := u.Plan(ctx, x)
	require.NoError(t, err)
	py, err := u.Plan(ctx, y)
	require.NoError(t, err)

	require.NoError(t, f.rep.Publish(ctx, x, px))
	require.NoError(t, f.rep.Publish(ctx, y, py))

	a, err := f.players.FindByID(ctx, "a")
	require.NoError(t, err)
	got := a.RatingFor("nim")
	assert.Equal(t, 2, got.N)
	assert.Equal(t, 2, got.Wins)
	assert.Greater(t, got.Rating, 1220.0)
	assert.ElementsMatch(t, []string{"x", "y"}, a.RatedSessions)

	table, err := f.ratings.ListByGameType(ctx, "nim")
	require.NoError(t, err)
	for _, e := range table {
		if e.PlayerID == "a" {
			assert.Equal(t, got, e.Rating)
		}
	}
}

func TestPublish_LateStaleSummaryDoesNotRegress(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older := session("g1", "a", "b")
	older.MoveCount = 3
	older.LastMoveTime = t1

	done := session("g1", "a", "b")
	done.MoveCount = 5
	done.LastMoveTime = t1.Add(time.Minute)
	done.Completed = true
	done.ToMove = model.ToMove{}
	done.Winners = []int{1}

	require.NoError(t, f.rep.Publish(ctx, done, nil))
	// 先の遷移の複製が遅れて届く
	require.NoError(t, f.rep.Publish(ctx, older, nil))

	pr, err := f.players.FindByID(ctx, "a")
	require.NoError(t, err)
	sum, ok := pr.FindSummary("g1")
	require.True(t, ok)
	assert.True(t, sum.Completed)
	assert.Equal(t, 5, sum.MoveCount)
	assert.Equal(t, []int{1}, sum.Winners)
	assert.Len(t, pr.Games, 1)
}

func TestReconcile_DoesNotRestoreDismissedSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	done := session("g1", "a", "b")
	done.Completed = true
	done.ToMove = model.ToMove{}
	done.Winners = []int{1}
	done.MoveCount = 6
	require.NoError(t, f.rep.Publish(ctx, done, nil))

	_, err := f.rep.Dismiss(ctx, "a", "g1")
	require.NoError(t, err)

	plan, err := rating.NewUpdater(f.players).Plan(ctx, done)
	require.NoError(t, err)
	require.NoError(t, f.rep.Reconcile(ctx, done, plan))

	a, err := f.players.FindByID(ctx, "a")
	require.NoError(t, err)
	_, ok := a.FindSummary("g1")
	assert.False(t, ok, "dismissed summary stays dismissed")
	assert.Equal(t, 1, a.RatingFor("nim").N, "rating is still applied")

	b, err := f.players.FindByID(ctx, "b")
	require.NoError(t, err)
	_, ok = b.FindSummary("g1")
	assert.True(t, ok)
}
