// Package main - точка входа фоновых процессов (Worker) движка Edugami.
//
// Worker отвечает за периодические задачи:
// - Истечение брошенных попыток и очистка автосохранений
// - Пометка журналов класса, чьё академическое окно закрылось
// - Повторная оценка карьер после обновления каталога
//
// Философия: worker никогда не принимает решений за платформу - он
// фиксирует истечения и поднимает флаги, а перевод в следующий класс
// остаётся явным запросом.
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
	"github.com/edugami/edugami-engine/internal/domain/career"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/infrastructure/messaging"
	"github.com/edugami/edugami-engine/internal/infrastructure/persistence/postgres"
	"github.com/edugami/edugami-engine/internal/infrastructure/persistence/redis"
	"github.com/edugami/edugami-engine/internal/infrastructure/scheduler"
	"github.com/edugami/edugami-engine/internal/infrastructure/scheduler/jobs"
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
	log.Info("starting Edugami progress engine worker",
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
	// 4. ЗАПУСК МИГРАЦИЙ (worker тоже должен видеть актуальную схему)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (очистка автосохранений, сброс кешей)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Redis.Disabled {
		// Свип истёкших попыток чистит автосохранения в Redis.
		return errors.New("REDIS_DISABLED=true: the worker requires Redis for autosave cleanup")
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
	attemptRepo := postgres.NewAttemptRepository(dbConn)
	journeyRepo := postgres.NewJourneyRepository(dbConn)
	skillRepo := postgres.NewSkillRepository(dbConn)
	careerRepo := postgres.NewCareerRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS И ДИСПЕТЧЕР ОБРАБОТЧИКОВ
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

	// Карьерный свип публикует career.unlocked; worker сбрасывает кеш
	// дерева навыков, а триггер уведомлений пропускает (nil-зависимость):
	// доставкой занимается API-процесс либо внешний сервис.
	onCareerUnlocked := eventhandler.NewOnCareerUnlockedHandler(nil, skillTreeCache, log)
	if err := dispatcher.RegisterHandler(shared.EventCareerUnlocked, messaging.HandlerRegistration{
		Name:    "on_career_unlocked",
		Handler: onCareerUnlocked.Handle,
		Async:   true,
	}); err != nil {
		return fmt.Errorf("failed to register event handler: %w", err)
	}

	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start event dispatcher: %w", err)
	}
	defer func() {
		log.Info("stopping event dispatcher...")
		_ = dispatcher.Stop()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. КАРЬЕРНЫЙ ОЦЕНЩИК ДЛЯ ФОНОВОГО СВИПА
	// ─────────────────────────────────────────────────────────────────────────
	careerCatalog := career.DefaultCatalog()
	evaluator := career.NewEvaluator(careerCatalog, uuid.NewString)
	careersHandler := command.NewEvaluateCareersHandler(skillRepo, careerRepo, evaluator, careerCatalog, eventBus)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ПЛАНИРОВЩИК И РЕГИСТРАЦИЯ ЗАДАЧ
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler disabled, worker will idle until shutdown")
		waitForShutdown(log)
		return nil
	}

	log.Info("initializing scheduler...")
	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	sched := scheduler.NewScheduler(schedCfg)

	expireCfg := jobs.DefaultExpireStaleAttemptsConfig()
	expireCfg.StaleThreshold = cfg.Scheduler.AttemptStaleAfter
	expireCfg.Timeout = cfg.Scheduler.JobTimeout
	expireJob := jobs.NewExpireStaleAttemptsJob(attemptRepo, autosaveStore, eventBus, expireCfg, log)

	promotionsCfg := jobs.DefaultEvaluatePromotionsConfig()
	promotionsCfg.Timeout = cfg.Scheduler.JobTimeout
	promotionsJob := jobs.NewEvaluatePromotionsJob(journeyRepo, eventBus, promotionsCfg, log)

	careersCfg := jobs.DefaultReevaluateCareersConfig()
	careersCfg.Timeout = cfg.Scheduler.JobTimeout
	careersJob := jobs.NewReevaluateCareersJob(careerRepo, careersHandler, careerCatalog.Version, careersCfg, log)

	// Промо-свип может идти по крону, чтобы флаги готовности появлялись
	// к началу учебного дня, а не через сутки после рестарта воркера.
	var promotionSchedule scheduler.Schedule = scheduler.NewIntervalSchedule(cfg.Scheduler.PromotionSweepInterval)
	if cfg.Scheduler.PromotionSweepCron != "" {
		cronSched, err := scheduler.ParseCron(cfg.Scheduler.PromotionSweepCron)
		if err != nil {
			return fmt.Errorf("invalid promotion sweep cron expression: %w", err)
		}
		promotionSchedule = cronSched
	}

	jobSchedules := []struct {
		job      scheduler.Job
		schedule scheduler.Schedule
	}{
		{expireJob, scheduler.NewIntervalSchedule(cfg.Scheduler.ExpireAttemptsInterval)},
		{promotionsJob, promotionSchedule},
		{careersJob, scheduler.NewIntervalSchedule(cfg.Scheduler.CareerSweepInterval)},
	}
	for _, js := range jobSchedules {
		if err := sched.Register(js.job, js.schedule); err != nil {
			return fmt.Errorf("failed to register job %s: %w", js.job.Name(), err)
		}
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("scheduler started",
		"expire_interval", cfg.Scheduler.ExpireAttemptsInterval.String(),
		"promotion_interval", cfg.Scheduler.PromotionSweepInterval.String(),
		"career_interval", cfg.Scheduler.CareerSweepInterval.String(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	waitForShutdown(log)

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	if err := sched.Stop(); err != nil {
		log.Error("scheduler stop failed", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// waitForShutdown блокируется до получения сигнала завершения.
func waitForShutdown(log *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())
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
