package game

import (
	"slices"
	"time"

	"github.com/hitoshi/banmen/internal/clock"
	"github.com/hitoshi/banmen/internal/model"
	"github.com/hitoshi/banmen/internal/rules"
)

// OfferDraw は参加者の引き分け提案を記録する。
// 既に他の参加者が提案している場合は受諾として記録する。
// 有効な参加者全員が提案または受諾した時点で、有効な参加者全員を勝者として終局する。
func (m *Machine) OfferDraw(s *model.Session, playerID string, now time.Time) (*Result, error) {
	next, _, g, err := m.prepare(s)
	if err != nil {
		return nil, err
	}
	idx, err := participant(next, playerID)
	if err != nil {
		return nil, err
	}
	active := activeParticipants(next, g)
	if !slices.Contains(active, idx) {
		return nil, model.NewDrawNotAllowedError("脱落した参加者は引き分けを提案できません")
	}
	if next.Participants[idx].Draw != model.DrawNone {
		return &Result{Session: next, Changed: false}, nil
	}

	marker := model.DrawOffered
	for _, i := range active {
		if i != idx && next.Participants[i].Draw != model.DrawNone {
			marker = model.DrawAccepted
			break
		}
	}
	next.Participants[idx].Draw = marker

	for _, i := range active {
		if next.Participants[i].Draw == model.DrawNone {
			return &Result{Session: next, Changed: true}, nil
		}
	}
	winners := make([]int, len(active))
	for i, a := range active {
		winners[i] = a + 1
	}
	terminate(next, winners)
	next.LastMoveTime = now
	return result(next, now), nil
}

// Abandon は放置された対局を勝者なしで終局させる。
// 最終着手から閾値以上が経過し、全参加者が閾値以上アクセスしていない場合にのみ許可する。
// 切れ負けの対局は時間切れで決着するため対象外とする。
// lastSeenに含まれない参加者は一度もアクセスしていないものとして扱う。
func (m *Machine) Abandon(s *model.Session, lastSeen map[string]time.Time, now time.Time) (*Result, error) {
	next, _, _, err := m.prepare(s)
	if err != nil {
		return nil, err
	}
	if next.Clock.Hard {
		return nil, model.NewNotAbandonedError("切れ負けの対局は放置終局の対象外です")
	}
	if clock.Elapsed(next, now) < m.abandonAfter {
		return nil, model.NewNotAbandonedError("最終着手からの経過時間が閾値に達していません")
	}
	for _, p := range next.Participants {
		if seen, ok := lastSeen[p.ID]; ok && now.Sub(seen) < m.abandonAfter {
			return nil, model.NewNotAbandonedError("最近アクセスした参加者がいます")
		}
	}
	terminate(next, nil)
	return result(next, now), nil
}

// InvokePie はパイルール（先後入れ替え）を適用する。
// 1対局につき1回だけ有効で、2回目以降は変更なしのSessionを返す。
// 参加者の並びを反転し、even変種ではパスを自動で適用する。
// パスを適用された参加者は実際には時間を使っていないため、加算時間を再付与する。
func (m *Machine) InvokePie(s *model.Session, playerID string, now time.Time) (*Result, error) {
	if s.PieInvoked && !s.Completed {
		return &Result{Session: s.Clone(), Changed: false}, nil
	}
	next, desc, g, err := m.prepare(s)
	if err != nil {
		return nil, err
	}
	if !desc.Capabilities.Has(model.CapPie) {
		return nil, model.NewPieNotAllowedError(desc.Name + "はパイルールに対応していません")
	}
	idx, err := participant(next, playerID)
	if err != nil {
		return nil, err
	}
	if next.MoveCount != 1 {
		return nil, model.NewPieNotAllowedError("パイルールは初手の直後にのみ使えます")
	}
	if !next.ToMove.Includes(idx) {
		return nil, model.NewNotYourTurnError(playerID)
	}
	charge := clock.Compute(next, idx, now)
	if charge.Expired {
		return nil, model.NewTimeExpiredError(playerID)
	}
	next.Participants[idx].TimeRemaining = charge.Remaining
	next.ClearDrawOffers()

	n := len(next.Participants)
	for i := 0; i < n/2; i++ {
		next.Participants[i], next.Participants[n-1-i] = next.Participants[n-1-i], next.Participants[i]
	}
	next.PieInvoked = true
	next.MoveCount++
	next.LastMoveTime = now

	if desc.Capabilities.Has(model.CapPieEven) {
		passer := g.CurrentPlayer()
		if err := g.Apply(passer, rules.PassMove); err != nil {
			return nil, illegal(err)
		}
		next.MoveCount++
		p := &next.Participants[passer-1]
		p.TimeRemaining = clock.Credit(next.Clock, p.TimeRemaining)
	}
	if err := m.store(next, g); err != nil {
		return nil, err
	}
	return result(next, now), nil
}
