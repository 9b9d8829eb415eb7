package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/banmen/internal/middleware"
)

// HealthChecker はストレージの疎通確認を行う。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheckFunc は関数をHealthCheckerとして使うためのアダプタ。
type HealthCheckFunc func(ctx context.Context) error

// Ping はfを呼び出す。
func (f HealthCheckFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	GatewayToken      string
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           middleware.StatusRecorder
	MetricsHandler    http.Handler

	HealthChecker HealthChecker

	GameService   GameServiceInterface
	PlayerService PlayerServiceInterface
	WS            *WSHandler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → IdentityMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// /health と /metrics は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	gameHandler := NewGameHandler(deps.GameService)
	playerHandler := NewPlayerHandler(deps.PlayerService)

	// --- 認証不要のルート ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.GatewayToken))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/game-types", gameHandler.ListGameTypes)

		r.Route("/api/games", func(r chi.Router) {
			// 状態を変える操作には対局操作専用のレート制限を追加する
			action := deps.RateLimiter.ActionMiddleware()

			r.With(action).Post("/", gameHandler.CreateGame)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", gameHandler.GetGame)
				r.With(action).Post("/move", gameHandler.Move)
				r.With(action).Post("/resign", gameHandler.Resign)
				r.With(action).Post("/timeout", gameHandler.Timeout)
				r.With(action).Post("/draw", gameHandler.OfferDraw)
				r.With(action).Post("/pie", gameHandler.InvokePie)
				r.With(action).Post("/abandon", gameHandler.Abandon)
				r.With(action).Post("/resync", gameHandler.Resync)
			})
		})

		r.Route("/api/players/me", func(r chi.Router) {
			r.Get("/games", playerHandler.ListMyGames)
			r.Delete("/games/{id}", playerHandler.DismissGame)
			r.Get("/ratings", playerHandler.MyRatings)
		})

		r.Get("/api/ratings/{gameType}", playerHandler.ListRatings)
		r.Get("/api/completed", playerHandler.ListCompleted)

		if deps.WS != nil {
			r.Get("/ws", deps.WS.Connect)
		}
	})

	return r
}
