package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/text/language"

	"github.com/hitoshi/banmen/internal/archive"
	"github.com/hitoshi/banmen/internal/completion"
	"github.com/hitoshi/banmen/internal/config"
	"github.com/hitoshi/banmen/internal/database"
	"github.com/hitoshi/banmen/internal/fanout"
	"github.com/hitoshi/banmen/internal/game"
	"github.com/hitoshi/banmen/internal/metrics"
	"github.com/hitoshi/banmen/internal/notify"
	"github.com/hitoshi/banmen/internal/rating"
	"github.com/hitoshi/banmen/internal/repository"
	"github.com/hitoshi/banmen/internal/rules"
	"github.com/hitoshi/banmen/internal/security"
	"github.com/hitoshi/banmen/internal/session"
)

// webhookTimeout は外部Webhook送信のタイムアウト。
const webhookTimeout = 10 * time.Second

// healthKey はヘルスチェックで読み出すキー。存在しなくてよい。
const healthKey = "health#check"

// storeHandle は開いたストアとその後始末。
type storeHandle struct {
	store repository.Store
	close func() error
}

// openStore は設定のドライバに応じてストアを開く。
func openStore(ctx context.Context, cfg *config.Config) (*storeHandle, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return &storeHandle{store: repository.NewMemoryStore(), close: func() error { return nil }}, nil
	case config.StoreSQLite:
		s, err := repository.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &storeHandle{store: s, close: s.Close}, nil
	case config.StorePostgres:
		db, err := database.Open(ctx, cfg.DatabaseURL, database.DefaultPoolOptions())
		if err != nil {
			return nil, err
		}
		return &storeHandle{store: repository.NewPostgresStore(db), close: db.Close}, nil
	case config.StoreRedis:
		s, err := repository.OpenRedisStore(ctx, cfg.RedisURL, "banmen")
		if err != nil {
			return nil, err
		}
		return &storeHandle{store: s, close: s.Close}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// pingStore はストアに1回読み出しを行い、到達できるかを確認する。
func pingStore(store repository.Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := store.Get(ctx, healthKey)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return nil
	}
}

// loadRegistry はGAME_CATALOG_PATHが指定されていればそのカタログを、なければ同梱のカタログを読み込む。
func loadRegistry(path string) (*rules.Registry, error) {
	if path == "" {
		return rules.DefaultRegistry()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open game catalog: %w", err)
	}
	defer f.Close()
	return rules.LoadCatalog(f, rules.BuiltinEngines())
}

// components はserveとworkerで共有する組み立て済みの依存。
type components struct {
	store     *storeHandle
	service   *session.Service
	presence  *repository.KVPresenceRepo
	collector *metrics.Collector
	registry  *prometheus.Registry
	hub       *notify.Hub
	language  language.Tag
}

// Close はストアを閉じる。
func (c *components) Close() error {
	return c.store.close()
}

// build はストアからServiceまでを組み立てる。withHubがtrueの場合はWebSocketの通知ハブも作る。
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger, withHub bool) (*components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	handle, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c, err := assemble(ctx, cfg, handle, logger, withHub)
	if err != nil {
		handle.close()
		return nil, err
	}
	return c, nil
}

func assemble(ctx context.Context, cfg *config.Config, handle *storeHandle, logger *slog.Logger, withHub bool) (*components, error) {
	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg)

	registry, err := loadRegistry(cfg.GameCatalogPath)
	if err != nil {
		return nil, err
	}

	store := repository.NewRetryingStore(handle.store, cfg.StoreRetryAttempts, collector)
	sessions := repository.NewKVSessionRepo(store)
	players := repository.NewKVPlayerRepo(store, cfg.FanoutMaxAttempts, collector)
	presence := repository.NewKVPresenceRepo(store)
	index := repository.NewKVCompletedIndexRepo(store)
	ratings := repository.NewKVRatingRepo(store)

	replicator := fanout.NewReplicator(players, index, ratings, logger)

	guard := security.NewWebhookGuard()
	var hooks []completion.NamedHook
	if cfg.ArchiveBucket != "" {
		client, err := archive.NewS3Client(ctx, archive.Config{
			Bucket:          cfg.ArchiveBucket,
			Endpoint:        cfg.ArchiveEndpoint,
			Region:          cfg.ArchiveRegion,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			SecretAccessKey: cfg.ArchiveSecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, completion.NamedHook{Name: "archive", Hook: archive.NewArchiver(client, cfg.ArchiveBucket)})
	}
	if cfg.TournamentWebhookURL != "" {
		if err := guard.ValidateURL(cfg.TournamentWebhookURL); err != nil {
			return nil, fmt.Errorf("TOURNAMENT_WEBHOOK_URL: %w", err)
		}
		sender := notify.NewWebhookSender(cfg.TournamentWebhookURL, guard.NewClient(webhookTimeout))
		hooks = append(hooks, completion.NamedHook{Name: "tournament", Hook: completion.NewTournamentHook(sender)})
	}
	migrator := completion.NewMigrator(sessions, replicator, logger, hooks...)
	migrator.SetObserver(collector)

	renderer := notify.NewRenderer()
	lang := notify.ParseLanguage(cfg.DefaultLanguage, language.English)
	var publishers notify.Publishers
	var hub *notify.Hub
	if withHub {
		hub = notify.NewHub(renderer, cfg.CORSAllowedOrigin, logger)
		publishers = append(publishers, hub)
	}
	if cfg.NotifyWebhookURL != "" {
		if err := guard.ValidateURL(cfg.NotifyWebhookURL); err != nil {
			return nil, fmt.Errorf("NOTIFY_WEBHOOK_URL: %w", err)
		}
		sender := notify.NewWebhookSender(cfg.NotifyWebhookURL, guard.NewClient(webhookTimeout))
		publishers = append(publishers, notify.NewWebhookPublisher(sender, renderer, lang))
	}

	svc := session.NewService(session.Deps{
		Registry:    registry,
		Machine:     game.NewMachine(registry, cfg.AbandonThreshold),
		Sessions:    sessions,
		Players:     players,
		Presence:    presence,
		Index:       index,
		RatingTable: ratings,
		Replicator:  replicator,
		Rater:       rating.NewUpdater(players),
		Migrator:    migrator,
		Publisher:   publishers,
		Sanitizer:   security.NewNameSanitizer(),
		Metrics:     collector,
		Logger:      logger,
	})

	slog.Info("game service assembled",
		slog.String("store", cfg.StoreDriver),
		slog.Int("game_types", len(registry.Descriptors())),
		slog.Int("completion_hooks", len(hooks)),
		slog.Int("publishers", len(publishers)),
	)

	return &components{
		store:     handle,
		service:   svc,
		presence:  presence,
		collector: collector,
		registry:  promReg,
		hub:       hub,
		language:  lang,
	}, nil
}
