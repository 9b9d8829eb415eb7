package repository

import (
	"context"
	"log/slog"
	"time"
)

const (
	// retryInitialBackoff は指数バックオフの初回遅延。
	retryInitialBackoff = 50 * time.Millisecond
	// retryMaxBackoff は指数バックオフの最大遅延。
	retryMaxBackoff = 2 * time.Second
	// DefaultRetryAttempts はストア操作の既定の試行回数。
	DefaultRetryAttempts = 4
)

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回50ms、2倍ずつ増加、最大2秒。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := retryInitialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > retryMaxBackoff {
			return retryMaxBackoff
		}
	}
	return delay
}

// RetryObserver はストア操作の再試行を観測する。
type RetryObserver interface {
	RecordStoreRetry(op string)
}

// RetryingStore はStoreの一時的なエラーを指数バックオフで再試行するラッパー。
// ErrNotFoundやErrVersionConflictなど一時的でないエラーはそのまま返す。
type RetryingStore struct {
	inner    Store
	attempts int
	observer RetryObserver
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRetryingStore はRetryingStoreを生成する。attemptsが1未満の場合は既定値を使う。
// observerはnilでもよい。
func NewRetryingStore(inner Store, attempts int, observer RetryObserver) *RetryingStore {
	if attempts < 1 {
		attempts = DefaultRetryAttempts
	}
	return &RetryingStore{inner: inner, attempts: attempts, observer: observer, sleep: sleepContext}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *RetryingStore) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			if s.observer != nil {
				s.observer.RecordStoreRetry(op)
			}
			delay := CalculateBackoff(attempt - 1)
			slog.Warn("retrying store operation",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
			if serr := s.sleep(ctx, delay); serr != nil {
				return err
			}
		}
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
	}
	return err
}

func (s *RetryingStore) Get(ctx context.Context, key string) (*Record, error) {
	var rec *Record
	err := s.do(ctx, "get", func() error {
		var err error
		rec, err = s.inner.Get(ctx, key)
		return err
	})
	return rec, err
}

func (s *RetryingStore) Query(ctx context.Context, prefix string) ([]*Record, error) {
	var recs []*Record
	err := s.do(ctx, "query", func() error {
		var err error
		recs, err = s.inner.Query(ctx, prefix)
		return err
	})
	return recs, err
}

func (s *RetryingStore) Put(ctx context.Context, rec *Record, expectVersion int64) error {
	return s.do(ctx, "put", func() error {
		return s.inner.Put(ctx, rec, expectVersion)
	})
}

func (s *RetryingStore) Delete(ctx context.Context, key string) error {
	return s.do(ctx, "delete", func() error {
		return s.inner.Delete(ctx, key)
	})
}
