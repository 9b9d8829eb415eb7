package rules

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

const (
	raceDefaultTarget = 10
	raceMaxStep       = 3
)

// RaceEngine は同時着手のレースゲームを実装するエンジン。
// 各ラウンドで全員が1〜3歩を同時に申告し、目標に最初に到達した参加者が勝つ。
// 同じラウンドで複数人が最も遠くまで到達した場合は引き分けになる。
type RaceEngine struct{}

type raceState struct {
	Target     int    `json:"target"`
	Positions  []int  `json:"positions"`
	Eliminated []bool `json:"eliminated"`
	Round      int    `json:"round"`
	Winners    []int  `json:"winners,omitempty"`
	Over       bool   `json:"over"`
}

type raceGame struct {
	st raceState
}

// New は新しい対局を生成する。
func (RaceEngine) New(players int, variants []string) (Game, error) {
	if players < 2 {
		return nil, fmt.Errorf("race needs at least 2 players, got %d", players)
	}
	st := raceState{
		Target:     raceDefaultTarget,
		Positions:  make([]int, players),
		Eliminated: make([]bool, players),
	}
	for _, v := range variants {
		switch v {
		case "long":
			st.Target = 2 * raceDefaultTarget
		default:
			return nil, fmt.Errorf("unknown race variant %q", v)
		}
	}
	return &raceGame{st: st}, nil
}

// Load はシリアライズされた盤面を復元する。
func (RaceEngine) Load(state string) (Game, error) {
	var st raceState
	if err := json.Unmarshal([]byte(state), &st); err != nil {
		return nil, fmt.Errorf("failed to decode race state: %w", err)
	}
	if len(st.Positions) < 2 || len(st.Eliminated) != len(st.Positions) {
		return nil, fmt.Errorf("corrupt race state")
	}
	return &raceGame{st: st}, nil
}

func (g *raceGame) players() int { return len(g.st.Positions) }

// Apply は1人分の着手を適用する。同時着手ゲームではApplyRoundを使うため、
// 残り1人の場合など1人だけが着手するラウンドの省略形として扱う。
func (g *raceGame) Apply(player int, move string) error {
	moves := make([]string, g.players())
	if player < 1 || player > g.players() {
		return fmt.Errorf("%w: unknown player %d", ErrIllegalAction, player)
	}
	moves[player-1] = move
	return g.ApplyRound(moves)
}

func (g *raceGame) ApplyRound(moves []string) error {
	if g.st.Over {
		return fmt.Errorf("%w: game is over", ErrIllegalAction)
	}
	if len(moves) != g.players() {
		return fmt.Errorf("%w: expected %d moves, got %d", ErrIllegalAction, g.players(), len(moves))
	}
	steps := make([]int, g.players())
	for i, m := range moves {
		if g.st.Eliminated[i] {
			if m != BlankMove {
				return fmt.Errorf("%w: eliminated player %d must submit a blank move", ErrIllegalAction, i+1)
			}
			continue
		}
		if !g.Legal(i+1, m) {
			return fmt.Errorf("%w: player %d cannot move %q", ErrIllegalAction, i+1, m)
		}
		steps[i], _ = strconv.Atoi(m)
	}

	best := 0
	for i := range steps {
		g.st.Positions[i] += steps[i]
		if !g.st.Eliminated[i] && g.st.Positions[i] >= g.st.Target && g.st.Positions[i] > best {
			best = g.st.Positions[i]
		}
	}
	g.st.Round++
	if best > 0 {
		g.st.Over = true
		for i, p := range g.st.Positions {
			if !g.st.Eliminated[i] && p == best {
				g.st.Winners = append(g.st.Winners, i+1)
			}
		}
	}
	return nil
}

func (g *raceGame) Resign(player int) error {
	if g.st.Over {
		return fmt.Errorf("%w: game is over", ErrIllegalAction)
	}
	if player < 1 || player > g.players() || g.st.Eliminated[player-1] {
		return fmt.Errorf("%w: player %d cannot resign", ErrIllegalAction, player)
	}
	g.st.Eliminated[player-1] = true

	var remaining []int
	for i, e := range g.st.Eliminated {
		if !e {
			remaining = append(remaining, i+1)
		}
	}
	if len(remaining) <= 1 {
		g.st.Over = true
		g.st.Winners = remaining
	}
	return nil
}

func (g *raceGame) Eliminated(player int) bool {
	return player >= 1 && player <= g.players() && g.st.Eliminated[player-1]
}

func (g *raceGame) Legal(player int, move string) bool {
	if g.Eliminated(player) || player < 1 || player > g.players() {
		return false
	}
	n, err := strconv.Atoi(move)
	return err == nil && n >= 1 && n <= raceMaxStep
}

func (g *raceGame) Over() bool { return g.st.Over }

func (g *raceGame) Winners() []int { return slices.Clone(g.st.Winners) }

// CurrentPlayer は同時着手ゲームでは意味を持たないため0を返す。
func (g *raceGame) CurrentPlayer() int { return 0 }

func (g *raceGame) Moves() []string {
	if g.st.Over {
		return nil
	}
	moves := make([]string, 0, raceMaxStep)
	for n := 1; n <= raceMaxStep; n++ {
		moves = append(moves, strconv.Itoa(n))
	}
	return moves
}

func (g *raceGame) Serialize() (string, error) {
	b, err := json.Marshal(g.st)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
