package rules

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

const (
	nimDefaultPile = 15
	nimLargePile   = 21
	nimMaxTake     = 3
)

// NimEngine は1山のニムを実装する手番制のエンジン。
// 各手番で1〜3個を取り、最後の1個を取った参加者が勝つ。
// 変種 "passes" でパスを許可し、"large" で山を21個にする。
type NimEngine struct{}

type nimState struct {
	Pile     int    `json:"pile"`
	Players  int    `json:"players"`
	Current  int    `json:"current"`
	Resigned []bool `json:"resigned"`
	Passes   bool   `json:"passes,omitempty"`
	Winners  []int  `json:"winners,omitempty"`
	Over     bool   `json:"over"`
}

type nimGame struct {
	st nimState
}

// New は新しい対局を生成する。
func (NimEngine) New(players int, variants []string) (Game, error) {
	if players < 2 {
		return nil, fmt.Errorf("nim needs at least 2 players, got %d", players)
	}
	st := nimState{
		Pile:     nimDefaultPile,
		Players:  players,
		Current:  1,
		Resigned: make([]bool, players),
	}
	for _, v := range variants {
		switch v {
		case "passes":
			st.Passes = true
		case "large":
			st.Pile = nimLargePile
		default:
			return nil, fmt.Errorf("unknown nim variant %q", v)
		}
	}
	return &nimGame{st: st}, nil
}

// Load はシリアライズされた盤面を復元する。
func (NimEngine) Load(state string) (Game, error) {
	var st nimState
	if err := json.Unmarshal([]byte(state), &st); err != nil {
		return nil, fmt.Errorf("failed to decode nim state: %w", err)
	}
	if st.Players < 2 || len(st.Resigned) != st.Players {
		return nil, fmt.Errorf("corrupt nim state")
	}
	return &nimGame{st: st}, nil
}

func (g *nimGame) Apply(player int, move string) error {
	if g.st.Over {
		return fmt.Errorf("%w: game is over", ErrIllegalAction)
	}
	if player != g.st.Current {
		return fmt.Errorf("%w: player %d is not to move", ErrIllegalAction, player)
	}
	if move == PassMove {
		if !g.st.Passes {
			return fmt.Errorf("%w: passing is not allowed", ErrIllegalAction)
		}
		g.advance()
		return nil
	}
	n, err := strconv.Atoi(move)
	if err != nil || n < 1 || n > nimMaxTake || n > g.st.Pile {
		return fmt.Errorf("%w: cannot take %q from %d", ErrIllegalAction, move, g.st.Pile)
	}
	g.st.Pile -= n
	if g.st.Pile == 0 {
		g.st.Over = true
		g.st.Winners = []int{player}
		return nil
	}
	g.advance()
	return nil
}

func (g *nimGame) Resign(player int) error {
	if g.st.Over {
		return fmt.Errorf("%w: game is over", ErrIllegalAction)
	}
	if player < 1 || player > g.st.Players || g.st.Resigned[player-1] {
		return fmt.Errorf("%w: player %d cannot resign", ErrIllegalAction, player)
	}
	g.st.Resigned[player-1] = true

	var remaining []int
	for i, r := range g.st.Resigned {
		if !r {
			remaining = append(remaining, i+1)
		}
	}
	if len(remaining) <= 1 {
		g.st.Over = true
		g.st.Winners = remaining
		return nil
	}
	if g.st.Current == player {
		g.advance()
	}
	return nil
}

// advance は投了していない次の参加者に手番を渡す。
func (g *nimGame) advance() {
	for i := 0; i < g.st.Players; i++ {
		g.st.Current = g.st.Current%g.st.Players + 1
		if !g.st.Resigned[g.st.Current-1] {
			return
		}
	}
}

func (g *nimGame) Over() bool { return g.st.Over }

func (g *nimGame) Winners() []int { return slices.Clone(g.st.Winners) }

func (g *nimGame) CurrentPlayer() int { return g.st.Current }

func (g *nimGame) Moves() []string {
	if g.st.Over {
		return nil
	}
	var moves []string
	for n := 1; n <= nimMaxTake && n <= g.st.Pile; n++ {
		moves = append(moves, strconv.Itoa(n))
	}
	if g.st.Passes {
		moves = append(moves, PassMove)
	}
	return moves
}

func (g *nimGame) Serialize() (string, error) {
	b, err := json.Marshal(g.st)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
