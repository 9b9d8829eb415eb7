package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	redisValueField   = "v"
	redisVersionField = "ver"
)

// RedisStore はRedisのハッシュを使ったStore。
// 各レコードはnamespace:keyのハッシュに値とVersionを持つ。
// 条件付き書き込みはWATCH/MULTIで実装する。
type RedisStore struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisStore はRedisStoreを生成する。
func NewRedisStore(rdb *redis.Client, namespace string) *RedisStore {
	return &RedisStore{rdb: rdb, namespace: namespace}
}

// OpenRedisStore はredis://形式のURLからクライアントを生成する。
func OpenRedisStore(ctx context.Context, rawURL, namespace string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(rdb, namespace), nil
}

// Close はクライアントを閉じる。
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) fullKey(key string) string {
	return s.namespace + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	vals, err := s.rdb.HMGet(ctx, s.fullKey(key), redisValueField, redisVersionField).Result()
	if err != nil {
		return nil, classifyRedisError(fmt.Errorf("レコードの取得に失敗しました: %w", err))
	}
	return decodeRedisRecord(key, vals)
}

func decodeRedisRecord(key string, vals []interface{}) (*Record, error) {
	if len(vals) != 2 || vals[0] == nil {
		return nil, ErrNotFound
	}
	rec := &Record{Key: key, Value: []byte(vals[0].(string))}
	if v, ok := vals[1].(string); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("不正なバージョン %q: %w", v, err)
		}
		rec.Version = n
	}
	return rec, nil
}

func (s *RedisStore) Query(ctx context.Context, prefix string) ([]*Record, error) {
	pattern := escapeRedisPattern(s.fullKey(prefix)) + "*"
	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, classifyRedisError(fmt.Errorf("レコードの検索に失敗しました: %w", err))
	}
	sort.Strings(keys)

	cmds := make([]*redis.SliceCmd, len(keys))
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.HMGet(ctx, k, redisValueField, redisVersionField)
		}
		return nil
	})
	if err != nil {
		return nil, classifyRedisError(fmt.Errorf("レコードの検索に失敗しました: %w", err))
	}

	out := make([]*Record, 0, len(keys))
	for i, k := range keys {
		rec, err := decodeRedisRecord(strings.TrimPrefix(k, s.namespace+":"), cmds[i].Val())
		if errors.Is(err, ErrNotFound) {
			// SCANとHMGETの間に削除された
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Put(ctx context.Context, rec *Record, expectVersion int64) error {
	key := s.fullKey(rec.Key)
	write := func(p redis.Pipeliner) error {
		p.HSet(ctx, key, redisValueField, rec.Value, redisVersionField, rec.Version)
		return nil
	}
	if expectVersion == AnyVersion {
		if _, err := s.rdb.TxPipelined(ctx, write); err != nil {
			return classifyRedisError(fmt.Errorf("レコードの書き込みに失敗しました: %w", err))
		}
		return nil
	}

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HMGet(ctx, key, redisValueField, redisVersionField).Result()
		if err != nil {
			return err
		}
		cur, err := decodeRedisRecord(rec.Key, vals)
		exists := err == nil
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		var current int64
		if exists {
			current = cur.Version
		}
		if err := checkVersion(exists, current, expectVersion); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, write)
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrVersionConflict), errors.Is(err, redis.TxFailedErr):
		return ErrVersionConflict
	default:
		return classifyRedisError(fmt.Errorf("レコードの書き込みに失敗しました: %w", err))
	}
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.fullKey(key)).Err(); err != nil {
		return classifyRedisError(fmt.Errorf("レコードの削除に失敗しました: %w", err))
	}
	return nil
}

// escapeRedisPattern はSCANのglobで特別な意味を持つ文字をエスケープする。
func escapeRedisPattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// classifyRedisError は接続断やサーバーの一時的な状態をTransientErrorで包む。
func classifyRedisError(err error) error {
	var ne net.Error
	if errors.As(err, &ne) {
		return &TransientError{Err: err}
	}
	msg := err.Error()
	for _, prefix := range []string{"LOADING", "BUSY", "TRYAGAIN", "CLUSTERDOWN", "MASTERDOWN"} {
		if strings.Contains(msg, prefix) {
			return &TransientError{Err: err}
		}
	}
	return err
}
