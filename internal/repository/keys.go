package repository

import (
	"fmt"
	"time"
)

// キーの構成。#区切りの階層で、接頭辞検索で一覧を取得する。
const (
	activeSessionPrefix    = "game#active#"
	completedSessionPrefix = "game#completed#"
	playerPrefix           = "player#"
	presencePrefix         = "seen#"
	ratingPrefix           = "ratings#"
	completedByTypePrefix  = "completed#meta#"
	completedByPlayer      = "completed#player#"
	completedByTypePlayer  = "completed#metaplayer#"
)

// ActiveSessionKey は進行中の対局の正本のキー。
func ActiveSessionKey(id string) string { return activeSessionPrefix + id }

// CompletedSessionKey は終局済みの対局の正本のキー。
func CompletedSessionKey(id string) string { return completedSessionPrefix + id }

// PlayerKey はプレイヤーごとの対局一覧のキー。
func PlayerKey(playerID string) string { return playerPrefix + playerID }

func presenceKey(playerID string) string { return presencePrefix + playerID }

func ratingKey(gameType, playerID string) string {
	return ratingPrefix + gameType + "#" + playerID
}

// timeSortKey は辞書順と時刻順が一致する表現を返す。
func timeSortKey(t time.Time) string {
	return fmt.Sprintf("%020d", t.UTC().UnixNano())
}
