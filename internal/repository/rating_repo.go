package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hitoshi/banmen/internal/model"
)

// KVRatingRepo はゲーム種別ごとのレーティング表のリポジトリ。
// レーティングの正本はプレイヤーレコードにあり、ここは一覧表示用の派生データ。
type KVRatingRepo struct {
	store Store
}

// NewKVRatingRepo はKVRatingRepoを生成する。
func NewKVRatingRepo(store Store) *KVRatingRepo {
	return &KVRatingRepo{store: store}
}

// Put はレーティング表のエントリを書き込む。
func (r *KVRatingRepo) Put(ctx context.Context, e *model.RatingEntry) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("レーティングのエンコードに失敗しました: %w", err)
	}
	if err := r.store.Put(ctx, &Record{Key: ratingKey(e.GameType, e.PlayerID), Value: value, Version: 1}, AnyVersion); err != nil {
		return fmt.Errorf("レーティングの保存に失敗しました: %w", err)
	}
	return nil
}

// ListByGameType はゲーム種別のレーティング表をレーティングの高い順に返す。
func (r *KVRatingRepo) ListByGameType(ctx context.Context, gameType string) ([]*model.RatingEntry, error) {
	recs, err := r.store.Query(ctx, ratingPrefix+gameType+"#")
	if err != nil {
		return nil, fmt.Errorf("レーティング表の取得に失敗しました: %w", err)
	}
	out := make([]*model.RatingEntry, 0, len(recs))
	for _, rec := range recs {
		e := &model.RatingEntry{}
		if err := json.Unmarshal(rec.Value, e); err != nil {
			return nil, fmt.Errorf("レーティング %s のデコードに失敗しました: %w", rec.Key, err)
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rating.Rating > out[j].Rating.Rating })
	return out, nil
}
