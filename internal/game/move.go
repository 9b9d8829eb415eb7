package game

import (
	"fmt"
	"slices"
	"time"

	"github.com/hitoshi/banmen/internal/clock"
	"github.com/hitoshi/banmen/internal/model"
	"github.com/hitoshi/banmen/internal/rules"
)

// Move は参加者の着手を適用する。offerDrawがtrueの場合は着手と同時に引き分けを提案する。
//
// 同時着手のゲームでは全ての有効な参加者が提出するまで着手は保留され、
// PartialMovesに保存される。揃った時点でルールエンジンを1回だけ呼び出す。
func (m *Machine) Move(s *model.Session, playerID, move string, offerDraw bool, now time.Time) (*Result, error) {
	next, desc, g, err := m.prepare(s)
	if err != nil {
		return nil, err
	}
	idx, err := participant(next, playerID)
	if err != nil {
		return nil, err
	}
	if !next.ToMove.Includes(idx) {
		return nil, model.NewNotYourTurnError(playerID)
	}
	charge := clock.Compute(next, idx, now)
	if charge.Expired {
		return nil, model.NewTimeExpiredError(playerID)
	}

	if sg, ok := g.(rules.SimultaneousGame); ok {
		if err := m.submitPartial(next, sg, idx, move, now); err != nil {
			return nil, err
		}
	} else {
		if err := g.Apply(idx+1, move); err != nil {
			return nil, illegal(err)
		}
		next.MoveCount++
		next.LastMoveTime = now
		if err := m.autoMoves(next, desc, g); err != nil {
			return nil, err
		}
		if err := m.store(next, g); err != nil {
			return nil, err
		}
	}

	next.Participants[idx].TimeRemaining = charge.Remaining
	next.ClearDrawOffers()
	if offerDraw && !next.Completed {
		next.Participants[idx].Draw = model.DrawOffered
	}
	return result(next, now), nil
}

// submitPartial は同時着手のラウンドに着手を提出し、揃っていればラウンドを確定する。
func (m *Machine) submitPartial(s *model.Session, sg rules.SimultaneousGame, idx int, move string, now time.Time) error {
	if move == rules.BlankMove || !sg.Legal(idx+1, move) {
		return model.NewIllegalActionError(fmt.Sprintf("参加者%sの着手 %q は不正です", s.Participants[idx].ID, move))
	}
	if len(s.PartialMoves) != len(s.Participants) {
		s.PartialMoves = make([]string, len(s.Participants))
	}
	s.PartialMoves[idx] = move
	s.ToMove.Simultaneous[idx] = false
	if !s.ToMove.IsEmpty() {
		return nil
	}
	return m.completeRound(s, sg, now)
}

// completeRound は保留中の着手をまとめてルールエンジンに渡す。
// 脱落した参加者の位置にはBlankMoveを入れる。
func (m *Machine) completeRound(s *model.Session, sg rules.SimultaneousGame, now time.Time) error {
	round := make([]string, len(s.Participants))
	for i := range round {
		if sg.Eliminated(i + 1) {
			round[i] = rules.BlankMove
			continue
		}
		round[i] = s.PartialMoves[i]
	}
	if err := sg.ApplyRound(round); err != nil {
		return illegal(err)
	}
	s.MoveCount++
	s.LastMoveTime = now
	s.PartialMoves = make([]string, len(s.Participants))
	return m.store(s, sg)
}

// autoMoves は手番制のゲームで強制される続きの着手を自動で適用する。
// 合法手が1つしかない場合（AutoMove）またはパスしかない場合（AutoPass）が対象。
// 初手で手番を交代する開局ルールを持つゲームでは、初手の直後だけ適用しない。
func (m *Machine) autoMoves(s *model.Session, desc *model.GameTypeDescriptor, g rules.Game) error {
	caps := desc.Capabilities
	if caps.Has(model.CapAlternateFirstMove) && s.MoveCount <= 1 {
		return nil
	}
	if !caps.Has(model.CapAutoMove) && !caps.Has(model.CapAutoPass) {
		return nil
	}
	for range maxAutoMoves {
		if g.Over() {
			return nil
		}
		moves := g.Moves()
		if len(moves) != 1 {
			return nil
		}
		forced := moves[0]
		if forced == rules.PassMove {
			if !caps.Has(model.CapAutoPass) {
				return nil
			}
		} else if !caps.Has(model.CapAutoMove) {
			return nil
		}
		if err := g.Apply(g.CurrentPlayer(), forced); err != nil {
			return illegal(err)
		}
		s.MoveCount++
	}
	return nil
}

// Resign は参加者の投了を適用する。
// 多人数戦で投了後も対局が続く場合は、残りの参加者で通常の進行を続ける。
func (m *Machine) Resign(s *model.Session, playerID string, now time.Time) (*Result, error) {
	next, _, g, err := m.prepare(s)
	if err != nil {
		return nil, err
	}
	idx, err := participant(next, playerID)
	if err != nil {
		return nil, err
	}
	if err := m.resign(next, g, idx, now); err != nil {
		return nil, err
	}
	return result(next, now), nil
}

func (m *Machine) resign(s *model.Session, g rules.Game, idx int, now time.Time) error {
	wasToMove := s.ToMove.Player != nil && *s.ToMove.Player == idx
	if err := g.Resign(idx + 1); err != nil {
		return illegal(err)
	}
	s.ClearDrawOffers()
	if g.Over() {
		return m.store(s, g)
	}

	sg, simultaneous := g.(rules.SimultaneousGame)
	if !simultaneous {
		if wasToMove {
			s.LastMoveTime = now
		}
		return m.store(s, g)
	}

	// 残りの参加者が全員提出済みならラウンドを確定する
	if len(s.PartialMoves) == len(s.Participants) {
		s.PartialMoves[idx] = rules.BlankMove
	}
	pending := slices.Clone(s.ToMove.Simultaneous)
	if idx < len(pending) {
		pending[idx] = false
	}
	submitted := false
	for i, mv := range s.PartialMoves {
		if mv != rules.BlankMove && !sg.Eliminated(i+1) {
			submitted = true
		}
	}
	if !slices.Contains(pending, true) && submitted {
		return m.completeRound(s, sg, now)
	}
	if err := m.store(s, g); err != nil {
		return err
	}
	// 提出済みの参加者の着手待ちフラグは保留中のラウンドに合わせて戻す
	for i := range s.ToMove.Simultaneous {
		if i < len(pending) && !pending[i] {
			s.ToMove.Simultaneous[i] = false
		}
	}
	return nil
}

// Timeout は時間切れの参加者を投了扱いにする。
// 時間切れが検出されない場合はNO_TIMEOUTを返す。
func (m *Machine) Timeout(s *model.Session, now time.Time) (*Result, error) {
	next, _, g, err := m.prepare(s)
	if err != nil {
		return nil, err
	}
	idx, ok := clock.Expired(next, now)
	if !ok {
		return nil, model.NewNoTimeoutError()
	}
	next.Participants[idx].TimeRemaining = 0
	if err := m.resign(next, g, idx, now); err != nil {
		return nil, err
	}
	return result(next, now), nil
}
