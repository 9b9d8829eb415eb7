package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/hitoshi/banmen/internal/model"
)

// KVCompletedIndexRepo は終局済み対局の索引リポジトリ。
// 1つの終局をゲーム種別別・参加者別・ゲーム種別+参加者別の複数キーに書き込む。
// 索引は派生データで、まとめて削除・再作成してよい。
type KVCompletedIndexRepo struct {
	store Store
}

// NewKVCompletedIndexRepo はKVCompletedIndexRepoを生成する。
func NewKVCompletedIndexRepo(store Store) *KVCompletedIndexRepo {
	return &KVCompletedIndexRepo{store: store}
}

func completedKeys(e *model.CompletedEntry) []string {
	ts := timeSortKey(e.CompletedAt)
	keys := []string{completedByTypePrefix + e.GameType + "#" + ts + "#" + e.SessionID}
	for _, p := range e.Participants {
		keys = append(keys,
			completedByPlayer+p+"#"+ts+"#"+e.SessionID,
			completedByTypePlayer+e.GameType+"#"+p+"#"+ts+"#"+e.SessionID,
		)
	}
	return keys
}

// Put は索引エントリを全てのキーに書き込む。失敗したキーがあれば全てのエラーをまとめて返す。
func (r *KVCompletedIndexRepo) Put(ctx context.Context, e *model.CompletedEntry) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("索引エントリのエンコードに失敗しました: %w", err)
	}
	var errs []error
	for _, key := range completedKeys(e) {
		if err := r.store.Put(ctx, &Record{Key: key, Value: value, Version: 1}, AnyVersion); err != nil {
			errs = append(errs, fmt.Errorf("索引 %s の書き込みに失敗しました: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Delete は索引エントリを全てのキーから削除する。
func (r *KVCompletedIndexRepo) Delete(ctx context.Context, e *model.CompletedEntry) error {
	var errs []error
	for _, key := range completedKeys(e) {
		if err := r.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("索引 %s の削除に失敗しました: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// ListByGameType はゲーム種別の終局済み対局を新しい順に返す。
func (r *KVCompletedIndexRepo) ListByGameType(ctx context.Context, gameType string, limit int) ([]*model.CompletedEntry, error) {
	return r.list(ctx, completedByTypePrefix+gameType+"#", limit)
}

// ListByPlayer はプレイヤーの終局済み対局を新しい順に返す。
func (r *KVCompletedIndexRepo) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*model.CompletedEntry, error) {
	return r.list(ctx, completedByPlayer+playerID+"#", limit)
}

// ListByGameTypeAndPlayer はゲーム種別とプレイヤーで絞った終局済み対局を新しい順に返す。
func (r *KVCompletedIndexRepo) ListByGameTypeAndPlayer(ctx context.Context, gameType, playerID string, limit int) ([]*model.CompletedEntry, error) {
	return r.list(ctx, completedByTypePlayer+gameType+"#"+playerID+"#", limit)
}

func (r *KVCompletedIndexRepo) list(ctx context.Context, prefix string, limit int) ([]*model.CompletedEntry, error) {
	recs, err := r.store.Query(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("終局済み対局の検索に失敗しました: %w", err)
	}
	slices.Reverse(recs)
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]*model.CompletedEntry, 0, len(recs))
	for _, rec := range recs {
		e := &model.CompletedEntry{}
		if err := json.Unmarshal(rec.Value, e); err != nil {
			return nil, fmt.Errorf("索引エントリ %s のデコードに失敗しました: %w", rec.Key, err)
		}
		out = append(out, e)
	}
	return out, nil
}
