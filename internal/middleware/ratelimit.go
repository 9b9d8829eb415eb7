package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/banmen/internal/model"
)

// ErrCodeRateLimited はレート制限超過のエラーコード。
const ErrCodeRateLimited = "RATE_LIMITED"

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	ActionRate      rate.Limit    // 対局操作のレート（req/sec）
	ActionBurst     int           // 対局操作のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、対局操作 60 req/min/user
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     PerMinute(120),
		GeneralBurst:    120,
		ActionRate:      PerMinute(60),
		ActionBurst:     20,
		CleanupInterval: 5 * time.Minute,
	}
}

// PerMinute は1分あたりのリクエスト数をrate.Limitに変換する。
func PerMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterPool は参加者IDごとのトークンバケット。
type limiterPool struct {
	kind  string
	limit rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

func newLimiterPool(kind string, limit rate.Limit, burst int) *limiterPool {
	return &limiterPool{kind: kind, limit: limit, burst: burst, entries: make(map[string]*limiterEntry)}
}

func (p *limiterPool) allow(userID string, now time.Time) bool {
	p.mu.Lock()
	e, ok := p.entries[userID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.entries[userID] = e
	}
	e.lastAccess = now
	p.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

func (p *limiterPool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// evict はttlより長くアクセスのないエントリを削除する。
func (p *limiterPool) evict(now time.Time, ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, e := range p.entries {
		if now.Sub(e.lastAccess) > ttl {
			delete(p.entries, id)
		}
	}
}

// retryAfter は1トークンが補充されるまでの秒数。最低1秒。
func (p *limiterPool) retryAfter() int {
	if p.limit <= 0 {
		return 60
	}
	return max(1, int(math.Ceil(1.0/float64(p.limit))))
}

// RateLimiter は参加者ごとのレート制限を管理する。
// API全般と対局操作の2種類のバケットを独立に持つ。
type RateLimiter struct {
	general  *limiterPool
	action   *limiterPool
	interval time.Duration
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		general:  newLimiterPool("general", config.GeneralRate, config.GeneralBurst),
		action:   newLimiterPool("action", config.ActionRate, config.ActionBurst),
		interval: config.CleanupInterval,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop はクリーンアップのゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// IdentityMiddlewareの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general)
}

// ActionMiddleware は対局操作（作成・着手など）専用のレート制限ミドルウェアを返す。
func (rl *RateLimiter) ActionMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.action)
}

func (rl *RateLimiter) middleware(pool *limiterPool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteUnauthorized(w)
				return
			}
			if !pool.allow(userID, time.Now()) {
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", pool.kind),
				)
				w.Header().Set("Retry-After", strconv.Itoa(pool.retryAfter()))
				WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
					Code:     ErrCodeRateLimited,
					Message:  "リクエストが多すぎます。",
					Category: "system",
					Action:   "Retry-Afterの秒数だけ待ってから再試行してください。",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は管理中のAPI全般リミッターの数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int { return rl.general.len() }

// ActionLimiterCount は管理中の対局操作リミッターの数を返す。
func (rl *RateLimiter) ActionLimiterCount() int { return rl.action.len() }

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			rl.cleanup(now)
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.interval * 2
	rl.general.evict(now, ttl)
	rl.action.evict(now, ttl)
}
