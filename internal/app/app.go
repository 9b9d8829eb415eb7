package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/banmen/internal/config"
	"github.com/hitoshi/banmen/internal/database"
	"github.com/hitoshi/banmen/internal/handler"
	"github.com/hitoshi/banmen/internal/logger"
	"github.com/hitoshi/banmen/internal/metrics"
	"github.com/hitoshi/banmen/internal/middleware"
	"github.com/hitoshi/banmen/internal/worker/cleanup"
	"github.com/hitoshi/banmen/internal/worker/sweep"
)

// cleanupInterval は最終アクセス記録の削除ジョブの実行間隔。
const cleanupInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envがあれば読み込む
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	if cmd == CommandHelp {
		WriteUsage(w)
		return nil
	}
	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store", cfg.StoreDriver),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSweep:
		return runSweepOnce(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	c, err := build(ctx, cfg, slog.Default(), true)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer c.Close()

	rlCfg := middleware.DefaultRateLimiterConfig()
	// configはreq/min単位なのでreq/secに変換する
	rlCfg.GeneralRate = middleware.PerMinute(cfg.RateLimitGeneral)
	rlCfg.ActionRate = middleware.PerMinute(cfg.RateLimitAction)
	rateLimiter := middleware.NewRateLimiter(rlCfg)
	defer rateLimiter.Stop()

	router := newRouter(cfg, c, rateLimiter)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newRouter は組み立て済みの依存からHTTPルーターを構築する。
func newRouter(cfg *config.Config, c *components, rateLimiter *middleware.RateLimiter) http.Handler {
	return handler.NewRouter(&handler.RouterDeps{
		GatewayToken:      cfg.GatewayToken,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Metrics:           c.collector,
		MetricsHandler:    metrics.Handler(c.registry),
		HealthChecker:     handler.HealthCheckFunc(pingStore(c.store.store)),
		GameService:       c.service,
		PlayerService:     c.service,
		WS:                handler.NewWSHandler(c.hub, c.language),
	})
}

// runWorker はワーカーモードで起動する。
// 進行中の対局の定期スイープと、最終アクセス記録の日次削除を実行する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	c, err := build(ctx, cfg, slog.Default(), false)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer c.Close()

	scheduler := sweep.NewScheduler(c.service, c.collector, slog.Default(), cfg.SweepMaxConcurrent)

	cleanupJob := cleanup.NewCleanupJob(c.presence, slog.Default())
	cleanupJob.RetentionDays = cfg.PresenceRetention

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.SweepInterval),
		slog.Int("max_concurrent", cfg.SweepMaxConcurrent),
		slog.Int("presence_retention_days", cfg.PresenceRetention),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// スイープをメインgoroutineで実行（ブロッキング）
	if err := scheduler.Start(ctx, cfg.SweepInterval); err != nil {
		return fmt.Errorf("sweep scheduler failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runSweepOnce は巡回を1回だけ実行する。外部のcronから起動する場合に使う。
func runSweepOnce(ctx context.Context, cfg *config.Config) error {
	c, err := build(ctx, cfg, slog.Default(), false)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer c.Close()

	scheduler := sweep.NewScheduler(c.service, c.collector, slog.Default(), cfg.SweepMaxConcurrent)
	stats, err := scheduler.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	if stats.Failed > 0 {
		return fmt.Errorf("sweep failed for %d of %d sessions", stats.Failed, stats.Sessions)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// PostgreSQL以外のストアは起動時にスキーマを作るため、何もしない。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreDriver != config.StorePostgres {
		slog.Info("migrations are only needed for postgres; nothing to do",
			slog.String("store", cfg.StoreDriver),
		)
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
