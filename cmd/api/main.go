// Package main - точка входа REST API движка прогресса Edugami.
//
// API отвечает за синхронные операции платформы:
// - Жизненный цикл попыток (старт, автосохранение, сдача, отказ)
// - Чтение проекций (дерево навыков, сводка студента, статус класса)
// - Явный запрос перевода в следующий класс
// - Приём вебхуков о новых версиях каталога карьер
//
// Философия: движок фиксирует факты и считает прогресс; контент,
// нарратив и доставка уведомлений живут во внешних сервисах.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/edugami/edugami-engine/config"
	"github.com/edugami/edugami-engine/internal/application/command"
	"github.com/edugami/edugami-engine/internal/application/eventhandler"
	"github.com/edugami/edugami-engine/internal/application/query"
	"github.com/edugami/edugami-engine/internal/application/saga"
	"github.com/edugami/edugami-engine/internal/domain/career"
	"github.com/edugami/edugami-engine/internal/domain/progression"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
	"github.com/edugami/edugami-engine/internal/infrastructure/external/content"
	"github.com/edugami/edugami-engine/internal/infrastructure/external/narrative"
	"github.com/edugami/edugami-engine/internal/infrastructure/external/notify"
	"github.com/edugami/edugami-engine/internal/infrastructure/messaging"
	"github.com/edugami/edugami-engine/internal/infrastructure/persistence/postgres"
	"github.com/edugami/edugami-engine/internal/infrastructure/persistence/projections"
	"github.com/edugami/edugami-engine/internal/infrastructure/persistence/redis"
	"github.com/edugami/edugami-engine/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/edugami/edugami-engine/internal/interface/http"
	"github.com/edugami/edugami-engine/internal/interface/http/handlers"
	"github.com/edugami/edugami-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Edugami progress engine API",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnection(ctx, cfg.Database.URL, postgres.PoolOptions{
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (автосохранение и кеш проекций)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Redis.Disabled {
		// Автосохранение живёт только в Redis; без него API не поднимаем.
		return errors.New("REDIS_DISABLED=true: the API requires Redis for attempt autosave")
	}

	log.Info("connecting to Redis...")
	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	redisCache, err := redis.NewCache(redisCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisCache.Close()
	log.Info("Redis connection established")

	autosaveStore := redis.NewAutosaveStore(redisCache)
	skillTreeCache := redis.NewSkillTreeCache(redisCache)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	tenantRepo := postgres.NewTenantRepository(dbConn)
	attemptRepo := postgres.NewAttemptRepository(dbConn)
	journeyRepo := postgres.NewJourneyRepository(dbConn)
	skillRepo := postgres.NewSkillRepository(dbConn)
	careerRepo := postgres.NewCareerRepository(dbConn)
	txManager := postgres.NewTxManager(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ИНИЦИАЛИЗАЦИЯ ВНЕШНИХ КЛИЕНТОВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing external clients...")

	contentCfg := content.DefaultClientConfig(cfg.Content.BaseURL)
	contentCfg.APIKey = cfg.Content.APIKey
	contentCfg.Timeout = cfg.Content.RequestTimeout
	contentCfg.RateLimiterConfig.RequestsPerSecond = float64(cfg.Content.RateLimit)
	contentCfg.RateLimiterConfig.BurstSize = cfg.Content.RateLimitBurst
	contentCfg.RetryConfig.MaxRetries = cfg.Content.MaxRetries
	contentCfg.RetryConfig.InitialBackoff = cfg.Content.RetryBaseDelay
	contentCfg.RetryConfig.MaxBackoff = cfg.Content.RetryMaxDelay
	contentCfg.CircuitBreakerConfig.FailureThreshold = cfg.Content.CircuitBreakerThreshold
	contentCfg.CircuitBreakerConfig.Timeout = cfg.Content.CircuitBreakerTimeout
	contentCfg.CircuitBreakerConfig.HalfOpenMaxRetries = cfg.Content.CircuitBreakerHalfOpenMax
	contentCfg.Logger = log
	contentCfg.Debug = cfg.App.Debug
	contentClient := content.NewClient(contentCfg)

	var narrativeClient *narrative.Client
	if !cfg.Narrative.Disabled {
		narrativeCfg := narrative.DefaultClientConfig(cfg.Narrative.BaseURL)
		narrativeCfg.APIKey = cfg.Narrative.APIKey
		narrativeCfg.Timeout = cfg.Narrative.RequestTimeout
		narrativeCfg.Logger = log
		narrativeClient = narrative.NewClient(narrativeCfg)
	} else {
		log.Warn("narrative generator disabled, regeneration requests will be skipped")
	}

	var notifyClient *notify.Client
	if !cfg.Notify.Disabled {
		notifyCfg := notify.DefaultClientConfig(cfg.Notify.BaseURL)
		notifyCfg.APIKey = cfg.Notify.APIKey
		notifyCfg.Timeout = cfg.Notify.RequestTimeout
		notifyCfg.Logger = log
		notifyClient = notify.NewClient(notifyCfg)
	} else {
		log.Warn("notification service disabled, triggers will be skipped")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. EVENT BUS И ДИСПЕТЧЕР ОБРАБОТЧИКОВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	eventBusCfg := messaging.DefaultInMemoryEventBusConfig()
	eventBusCfg.Logger = log
	eventBusCfg.AsyncMode = true
	eventBus := messaging.NewInMemoryEventBus(eventBusCfg)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	dispatcher := messaging.NewDispatcherBuilder(eventBus).
		WithLogger(log).
		Build()

	// Обработчики с nil-зависимостями пропускают соответствующий эффект.
	var narrativeService eventhandler.NarrativeService
	if narrativeClient != nil {
		narrativeService = narrativeClient
	}
	var notificationTrigger eventhandler.NotificationTrigger
	if notifyClient != nil {
		notificationTrigger = notifyClient
	}

	onAttemptCompleted := eventhandler.NewOnAttemptCompletedHandler(skillTreeCache, narrativeService, log)
	onLevelUp := eventhandler.NewOnLevelUpHandler(notificationTrigger, log)
	onCareerUnlocked := eventhandler.NewOnCareerUnlockedHandler(notificationTrigger, skillTreeCache, log)

	registrations := []struct {
		eventType shared.EventType
		name      string
		handler   shared.EventHandler
	}{
		{shared.EventAttemptCompleted, "on_attempt_completed", onAttemptCompleted.Handle},
		{shared.EventLevelUp, "on_level_up", onLevelUp.Handle},
		{shared.EventCareerUnlocked, "on_career_unlocked", onCareerUnlocked.Handle},
	}
	for _, reg := range registrations {
		if err := dispatcher.RegisterHandler(reg.eventType, messaging.HandlerRegistration{
			Name:    reg.name,
			Handler: reg.handler,
			Async:   true,
		}); err != nil {
			return fmt.Errorf("failed to register event handler %s: %w", reg.name, err)
		}
	}

	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start event dispatcher: %w", err)
	}
	defer func() {
		log.Info("stopping event dispatcher...")
		_ = dispatcher.Stop()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ДОМЕННЫЕ КАТАЛОГИ И CQRS-ОБРАБОТЧИКИ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing command and query handlers...")

	skillCatalog := skill.DefaultCatalog()
	careerCatalog := career.DefaultCatalog()
	levelTable := progression.DefaultLevelTable()
	bandTable := progression.DefaultBandTable()

	evaluator := career.NewEvaluator(careerCatalog, uuid.NewString)

	careersHandler := command.NewEvaluateCareersHandler(skillRepo, careerRepo, evaluator, careerCatalog, eventBus)
	promotionFlow := saga.NewPromotionFlow(journeyRepo, skillRepo, attemptRepo, careerRepo, eventBus)

	skillTreeBuilder := projections.NewSkillTreeBuilder(skillCatalog, levelTable, bandTable)
	summaryBuilder := projections.NewStudentSummaryBuilder(skillCatalog, careerCatalog, bandTable)

	deps := httpapi.Dependencies{
		StartAttemptHandler:    command.NewStartAttemptHandler(attemptRepo, journeyRepo, contentClient, eventBus),
		RecordProgressHandler:  command.NewRecordProgressHandler(autosaveStore, command.DefaultRecordProgressHandlerConfig()),
		SubmitAttemptHandler:   command.NewSubmitAttemptHandler(attemptRepo, autosaveStore, skillRepo, careersHandler, txManager, eventBus, levelTable),
		AbandonAttemptHandler:  command.NewAbandonAttemptHandler(attemptRepo, autosaveStore, eventBus),
		PromoteGradeHandler:    command.NewPromoteGradeHandler(promotionFlow),
		EvaluateCareersHandler: careersHandler,
		EnrollmentFlow:         saga.NewEnrollmentFlow(journeyRepo, skillRepo, eventBus),

		GetSkillTreeHandler:      query.NewGetSkillTreeHandler(skillRepo, skillTreeBuilder, skillTreeCache, query.DefaultGetSkillTreeHandlerConfig()),
		GetStudentSummaryHandler: query.NewGetStudentSummaryHandler(journeyRepo, skillRepo, careerRepo, attemptRepo, summaryBuilder),
		GetGradeStatusHandler:    query.NewGetGradeStatusHandler(journeyRepo, skillRepo, attemptRepo),

		TenantRepo: tenantRepo,
		Auth:       handlers.NewIdentityAuth([]byte(cfg.Auth.JWTSecret), tenantRepo),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HEALTH CHECKS И ВЕБХУК КАТАЛОГА
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("database", dbConn.Ping)
	healthChecker.AddCheck("cache", redisCache.Ping)
	healthChecker.AddCheck("content_api", func(ctx context.Context) error {
		if !contentClient.IsHealthy(ctx) {
			return errors.New("content service unreachable")
		}
		return nil
	})
	deps.HealthChecker = healthChecker

	// Вебхук каталога запускает карьерный свип в фоне: каталог только
	// добавляет карьеры, так что повторный прогон безопасен.
	catalogWebhook := handlers.NewCatalogWebhookHandler(func(ctx context.Context, version int) error {
		job := jobs.NewReevaluateCareersJob(careerRepo, careersHandler, version, jobs.DefaultReevaluateCareersConfig(), log)
		go func() {
			if err := job.Run(context.Background()); err != nil {
				log.Error("catalog-triggered career sweep failed",
					"catalog_version", version,
					"error", err,
				)
			}
		}()
		return nil
	})
	deps.CatalogWebhook = catalogWebhook

	// ─────────────────────────────────────────────────────────────────────────
	// 11. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpCfg.EnableCORS = cfg.HTTP.EnableCORS
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpCfg.WebhookSecret = cfg.HTTP.WebhookSecret

	deps.Logger = logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})

	server := httpapi.NewServer(httpCfg, deps)
	serverErrCh := server.StartAsync()
	log.Info("Edugami progress engine API is running", "address", httpCfg.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 12. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErrCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}
