// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт хранилище (PostgreSQL или память), сервисы,
// движок событий, шлюз Telegram, планировщик и HTTP-эндпоинт метрик.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mymmrac/telego"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-bot/internal/bot"
	"serotonyl.ru/reputation-bot/internal/bot/filters"
	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/config"
	"serotonyl.ru/reputation-bot/internal/db/memory"
	"serotonyl.ru/reputation-bot/internal/db/postgres"
	"serotonyl.ru/reputation-bot/internal/engine"
	"serotonyl.ru/reputation-bot/internal/features/admin"
	"serotonyl.ru/reputation-bot/internal/features/experience"
	"serotonyl.ru/reputation-bot/internal/features/members"
	"serotonyl.ru/reputation-bot/internal/features/presence"
	"serotonyl.ru/reputation-bot/internal/features/progression"
	"serotonyl.ru/reputation-bot/internal/features/reputation"
	"serotonyl.ru/reputation-bot/internal/jobs"
	"serotonyl.ru/reputation-bot/internal/notify"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool // nil при DB_ENABLED=false
	BotAPI    *telego.Bot

	metrics *http.Server
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	clock := clockwork.NewRealClock()

	// === 1. Хранилище ===
	var (
		pool       *pgxpool.Pool
		records    members.Store
		adminStore admin.Store
	)
	if cfg.DBEnabled {
		var err error
		pool, err = postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		records = postgres.NewStore(pool, clock)
		adminStore = postgres.NewAdminStore(pool)
	} else {
		log.Warn("DB_ENABLED=false: данные хранятся в памяти и пропадут при перезапуске")
		records = memory.NewStore(clock)
		adminStore = memory.NewAdminStore()
	}

	// === 2. Telegram Bot API ===
	var opts []telego.BotOption
	if cfg.AppEnv == "development" && cfg.AppLogLevel == "trace" {
		opts = append(opts, telego.WithDefaultDebugLogger())
	}
	botAPI, err := telego.NewBot(cfg.PlatformToken, opts...)
	if err != nil {
		closePool(pool)
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	me, err := botAPI.GetMe(ctx)
	if err != nil {
		closePool(pool)
		return nil, fmt.Errorf("ошибка авторизации в Telegram: %w", err)
	}
	log.Infof("Авторизован как @%s", me.Username)

	// === 3. Уведомления ===
	sender := notify.NewSender(bot.NewNotifier(botAPI, cfg.LogChannelID))

	// === 4. Сервисы ===
	directory := members.NewService(records)
	experienceService := experience.NewService(records, cfg, clock, sender)
	presenceService := presence.NewService(records, cfg, clock, sender)
	reputationService := reputation.NewService(records, directory, cfg, clock, sender)
	progressionService := progression.NewService(records, cfg, clock)
	adminService := admin.NewService(adminStore, records, cfg, clock)

	// === 5. Движок событий и шлюз ===
	b := bot.New(botAPI, me.Username, cfg, filters.NewChatFilter(cfg.ChatID), bot.Services{
		Engine:      engine.New(experienceService, presenceService),
		Directory:   directory,
		Reputation:  reputationService,
		Progression: progressionService,
		Admin:       admin.NewHandler(adminService, directory, sender),
		Sender:      sender,
	})

	// === 6. Планировщик задач ===
	scheduler := jobs.NewScheduler(reputationService, common.LoadLocation(cfg.AppTimezone))

	a := &App{
		Bot:       b,
		Scheduler: scheduler,
		DB:        pool,
		BotAPI:    botAPI,
	}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metrics = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

// Run запускает планировщик, метрики и шлюз и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("ошибка запуска планировщика: %w", err)
	}
	defer a.Scheduler.Stop()

	if a.metrics != nil {
		go func() {
			log.WithField("addr", a.metrics.Addr).Info("Эндпоинт метрик запущен")
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Сервер метрик остановлен с ошибкой")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.metrics.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("Не удалось остановить сервер метрик")
			}
		}()
	}

	return a.Bot.Start(ctx)
}

// Close освобождает ресурсы (пул соединений).
func (a *App) Close() {
	closePool(a.DB)
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
