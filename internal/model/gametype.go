package model

import (
	"fmt"
	"strings"
)

// Capability はゲーム種別が持つ機能フラグ。
type Capability uint16

const (
	// CapSimultaneous は全参加者が同時に着手するゲーム。
	CapSimultaneous Capability = 1 << iota
	// CapPie はパイルール（先後入れ替え）に対応するゲーム。
	CapPie
	// CapPieEven はパイルール適用時にパスを自動で適用する変種。
	CapPieEven
	// CapAutoMove は合法手が1つしかない場合に自動で着手する。
	CapAutoMove
	// CapAutoPass は合法手がパスのみの場合に自動でパスする。
	CapAutoPass
	// CapAlternateFirstMove は初手で手番を交代する開局ルールを持つ。初手の直後は自動着手しない。
	CapAlternateFirstMove
	// CapRated はレーティング対象のゲーム。
	CapRated
)

var capabilityNames = map[string]Capability{
	"simultaneous":         CapSimultaneous,
	"pie":                  CapPie,
	"pie-even":             CapPieEven,
	"automove":             CapAutoMove,
	"autopass":             CapAutoPass,
	"alternate-first-move": CapAlternateFirstMove,
	"rated":                CapRated,
}

// CapabilitySet はCapabilityの集合。
type CapabilitySet Capability

// Has は指定のCapabilityを含むかを返す。
func (s CapabilitySet) Has(c Capability) bool {
	return Capability(s)&c != 0
}

// With は指定のCapabilityを加えた集合を返す。
func (s CapabilitySet) With(c Capability) CapabilitySet {
	return CapabilitySet(Capability(s) | c)
}

// ParseCapabilities はフラグ名の一覧をCapabilitySetに変換する。
// 未知のフラグ名はエラーとする。
func ParseCapabilities(names []string) (CapabilitySet, error) {
	var set CapabilitySet
	for _, n := range names {
		c, ok := capabilityNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, fmt.Errorf("unknown capability: %q", n)
		}
		set = set.With(c)
	}
	return set, nil
}

// GameTypeDescriptor はゲーム種別の定義。
// 対局作成時に1回だけ検証し、以降の操作ではこの型付きの機能フラグを参照する。
type GameTypeDescriptor struct {
	ID           string
	Name         string
	MinPlayers   int
	MaxPlayers   int
	Capabilities CapabilitySet
	// DefaultVariants は対局作成時に指定がなければ適用する変種。
	DefaultVariants []string
}

// Validate は参加者数がゲーム種別の範囲内かを検証する。
func (d *GameTypeDescriptor) Validate(players int) error {
	if players < d.MinPlayers || players > d.MaxPlayers {
		return NewInvalidSessionError(fmt.Sprintf("%sの参加者数は%d〜%d人です（指定: %d人）", d.Name, d.MinPlayers, d.MaxPlayers, players))
	}
	if d.Capabilities.Has(CapPie) && players != 2 {
		return NewInvalidSessionError("パイルールは2人対局のみ対応しています")
	}
	return nil
}
