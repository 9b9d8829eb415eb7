package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/banmen/internal/model"
)

// KVPresenceRepo はプレイヤーの最終アクセス時刻のリポジトリ。
type KVPresenceRepo struct {
	store Store
}

// NewKVPresenceRepo はKVPresenceRepoを生成する。
func NewKVPresenceRepo(store Store) *KVPresenceRepo {
	return &KVPresenceRepo{store: store}
}

// Touch はプレイヤーの最終アクセス時刻を記録する。
func (r *KVPresenceRepo) Touch(ctx context.Context, playerID string, at time.Time) error {
	value, err := json.Marshal(model.PlayerPresence{PlayerID: playerID, LastSeen: at.UTC()})
	if err != nil {
		return fmt.Errorf("最終アクセス時刻のエンコードに失敗しました: %w", err)
	}
	if err := r.store.Put(ctx, &Record{Key: presenceKey(playerID), Value: value, Version: 1}, AnyVersion); err != nil {
		return fmt.Errorf("最終アクセス時刻の保存に失敗しました: %w", err)
	}
	return nil
}

// LastSeen はプレイヤーごとの最終アクセス時刻を返す。記録のないプレイヤーは含まない。
func (r *KVPresenceRepo) LastSeen(ctx context.Context, playerIDs []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(playerIDs))
	for _, id := range playerIDs {
		rec, err := r.store.Get(ctx, presenceKey(id))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("最終アクセス時刻の取得に失敗しました: %w", err)
		}
		var p model.PlayerPresence
		if err := json.Unmarshal(rec.Value, &p); err != nil {
			return nil, fmt.Errorf("最終アクセス時刻のデコードに失敗しました: %w", err)
		}
		out[id] = p.LastSeen
	}
	return out, nil
}

// PurgeSeenBefore は最終アクセス時刻がcutoffより古い記録を削除し、削除件数を返す。
// 記録のないプレイヤーは放置判定で「最近アクセスしていない」と扱われるため、
// 放置判定の閾値より十分古い記録だけを消すこと。
func (r *KVPresenceRepo) PurgeSeenBefore(ctx context.Context, cutoff time.Time) (int, error) {
	recs, err := r.store.Query(ctx, presencePrefix)
	if err != nil {
		return 0, fmt.Errorf("最終アクセス時刻の一覧取得に失敗しました: %w", err)
	}
	deleted := 0
	for _, rec := range recs {
		var p model.PlayerPresence
		if err := json.Unmarshal(rec.Value, &p); err != nil {
			return deleted, fmt.Errorf("最終アクセス時刻のデコードに失敗しました: %w", err)
		}
		if !p.LastSeen.Before(cutoff) {
			continue
		}
		if err := r.store.Delete(ctx, rec.Key); err != nil {
			return deleted, fmt.Errorf("最終アクセス時刻の削除に失敗しました: %w", err)
		}
		deleted++
	}
	return deleted, nil
}
