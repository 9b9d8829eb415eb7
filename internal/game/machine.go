// Package game は対局の状態遷移を実装する。
//
// Machineは正本のSessionとルールエンジンから新しいSessionを計算するだけで、
// ストレージへの書き込みや非正規化コピーの更新は行わない。
// 受理されなかった操作は入力のSessionを変更しない。
package game

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/banmen/internal/model"
	"github.com/hitoshi/banmen/internal/rules"
)

// DefaultAbandonAfter は放置終局とみなすまでの既定の期間。
const DefaultAbandonAfter = 30 * 24 * time.Hour

// maxAutoMoves は1回の着手に続けて自動適用する着手数の上限。
const maxAutoMoves = 64

// Result は状態遷移の結果。
type Result struct {
	Session *model.Session
	// Changed はSessionが変化したかを示す。パイルールの再実行などの無操作ではfalse。
	Changed bool
	// Terminated はこの遷移で終局したかを示す。
	Terminated bool
}

// Machine は対局の状態遷移を行う。
type Machine struct {
	registry     *rules.Registry
	abandonAfter time.Duration
}

// NewMachine は新しいMachineを生成する。abandonAfterが0以下の場合は既定値を使う。
func NewMachine(registry *rules.Registry, abandonAfter time.Duration) *Machine {
	if abandonAfter <= 0 {
		abandonAfter = DefaultAbandonAfter
	}
	return &Machine{registry: registry, abandonAfter: abandonAfter}
}

// AbandonAfter は放置終局の閾値を返す。
func (m *Machine) AbandonAfter() time.Duration {
	return m.abandonAfter
}

// StartOptions は対局開始時のオプション。
type StartOptions struct {
	ID           string
	Clock        model.ClockSettings
	InitialTime  time.Duration
	Rated        bool
	Variants     []string
	TournamentID string
	EventID      string
}

// Start は新しい対局のSessionを生成する。
// ゲーム種別の機能フラグと参加者数はここで1回だけ検証する。
func (m *Machine) Start(gameType string, participants []model.Participant, opts StartOptions, now time.Time) (*model.Session, error) {
	desc, engine, err := m.registry.Lookup(gameType)
	if err != nil {
		return nil, err
	}
	if err := desc.Validate(len(participants)); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if !model.ValidPlayerID(p.ID) || seen[p.ID] {
			return nil, model.NewInvalidSessionError("参加者IDが空か重複しているか、区切り文字#を含んでいます")
		}
		seen[p.ID] = true
	}

	variants := opts.Variants
	if len(variants) == 0 {
		variants = desc.DefaultVariants
	}
	g, err := engine.New(len(participants), variants)
	if err != nil {
		return nil, model.NewInvalidSessionError(err.Error())
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	s := &model.Session{
		ID:           id,
		GameType:     desc.ID,
		Participants: make([]model.Participant, len(participants)),
		LastMoveTime: now,
		Rated:        opts.Rated && desc.Capabilities.Has(model.CapRated),
		Clock:        opts.Clock,
		Variants:     slices.Clone(variants),
		TournamentID: opts.TournamentID,
		EventID:      opts.EventID,
		CreatedAt:    now,
	}
	for i, p := range participants {
		p.Draw = model.DrawNone
		p.TimeRemaining = opts.InitialTime
		s.Participants[i] = p
	}
	if err := m.store(s, g); err != nil {
		return nil, err
	}
	if desc.Capabilities.Has(model.CapSimultaneous) {
		s.PartialMoves = make([]string, len(participants))
	}
	return s, nil
}

// prepare は操作対象のSessionを複製し、ゲーム定義と盤面を復元する。
func (m *Machine) prepare(s *model.Session) (*model.Session, *model.GameTypeDescriptor, rules.Game, error) {
	if s.Completed {
		return nil, nil, nil, model.NewAlreadyTerminalError(s.ID)
	}
	desc, engine, err := m.registry.Lookup(s.GameType)
	if err != nil {
		return nil, nil, nil, err
	}
	g, err := engine.Load(s.State)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load game state for %s: %w", s.ID, err)
	}
	return s.Clone(), desc, g, nil
}

// participant は参加者のインデックスを返す。参加していない場合はNOT_PARTICIPANTを返す。
func participant(s *model.Session, playerID string) (int, error) {
	idx := s.ParticipantIndex(playerID)
	if idx < 0 {
		return -1, model.NewNotParticipantError(playerID)
	}
	return idx, nil
}

// store は盤面をシリアライズし、終局判定と手番をSessionに反映する。
// 終局していればterminateで手番を空にする。
func (m *Machine) store(s *model.Session, g rules.Game) error {
	state, err := g.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize game state for %s: %w", s.ID, err)
	}
	s.State = state
	if g.Over() {
		terminate(s, g.Winners())
		return nil
	}
	if sg, ok := g.(rules.SimultaneousGame); ok {
		flags := make([]bool, len(s.Participants))
		for i := range flags {
			flags[i] = !sg.Eliminated(i + 1)
		}
		s.ToMove = model.SimultaneousTurn(flags)
		return nil
	}
	s.ToMove = model.SequentialTurn(g.CurrentPlayer() - 1)
	return nil
}

// result は受理された遷移の結果を返す。この遷移で終局した場合は終局時刻を記録する。
func result(s *model.Session, now time.Time) *Result {
	if s.Completed && s.CompletedAt.IsZero() {
		s.CompletedAt = now
	}
	return &Result{Session: s, Changed: true, Terminated: s.Completed}
}

// terminate はSessionを終局させる。手番を空にし、勝者を確定する。
func terminate(s *model.Session, winners []int) {
	s.Completed = true
	s.ToMove = model.ToMove{}
	s.Winners = slices.Clone(winners)
	s.PartialMoves = nil
}

// illegal はルールエンジンのエラーをAPIErrorに変換する。
func illegal(err error) error {
	if errors.Is(err, rules.ErrIllegalAction) {
		return model.NewIllegalActionError(err.Error())
	}
	return err
}

// activeParticipants は脱落していない参加者のインデックスを返す。
// 手番制のゲームでは全参加者を返す。
func activeParticipants(s *model.Session, g rules.Game) []int {
	sg, simultaneous := g.(rules.SimultaneousGame)
	var out []int
	for i := range s.Participants {
		if simultaneous && sg.Eliminated(i+1) {
			continue
		}
		out = append(out, i)
	}
	return out
}
