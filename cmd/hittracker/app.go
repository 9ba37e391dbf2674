package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hittracker/internal/alert"
	"hittracker/internal/archive"
	"hittracker/internal/calendar"
	"hittracker/internal/config"
	"hittracker/internal/database"
	"hittracker/internal/domain"
	"hittracker/internal/events"
	"hittracker/internal/export"
	"hittracker/internal/logging"
	"hittracker/internal/marketplace"
	"hittracker/internal/metrics"
	"hittracker/internal/overview"
	"hittracker/internal/reconcile"
	"hittracker/internal/repository"
	"hittracker/internal/service"
)

// app holds the wired components shared by every command.
type app struct {
	cfg    *config.Config
	logger *zerolog.Logger
	closer io.Closer

	db       *database.DB
	redis    *redis.Client
	progress domain.ProgressRepository
	bus      *events.EventBus
	calendar *calendar.Calendar
	client   *marketplace.Client
	engine   *reconcile.Engine
	sync     *service.SyncService
	overview *overview.Service
	archive  *archive.Archiver
	export   *export.Exporter
	backups  *database.BackupService
	commands *alert.Commands
}

func newApp(configPath string) (*app, error) {
	cfg, logger, closer, err := loadConfigAndLogger(configPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, closer: closer}

	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func loadConfigAndLogger(configPath string) (*config.Config, *zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, closer, nil
}

func (a *app) init() error {
	metrics.Register()

	db, err := database.NewDB(a.cfg.Database.Path, logging.Component(a.logger, "database"))
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	a.db = db
	a.backups = database.NewBackupService(a.cfg.Database.Path, a.cfg.Backup, logging.Component(a.logger, "backup"))

	a.progress = a.initProgress()

	cal, err := initCalendar(a.cfg.Calendar)
	if err != nil {
		return err
	}
	a.calendar = cal

	client, err := marketplace.NewClient(marketplace.Options{
		BaseURL:   a.cfg.Marketplace.BaseURL,
		Cookie:    a.cfg.Marketplace.Cookie,
		UserAgent: a.cfg.Marketplace.UserAgent,
		Timeout:   a.cfg.Marketplace.RequestTimeout,
		Retry:     retryPolicy(a.cfg.Marketplace.Retry),
		RPS:       a.cfg.Marketplace.RateLimit.RPS,
		Burst:     a.cfg.Marketplace.RateLimit.Burst,
	}, logging.Component(a.logger, "marketplace"))
	if err != nil {
		return fmt.Errorf("init marketplace client: %w", err)
	}
	a.client = client

	a.bus = events.NewEventBus(events.WithLogger(logging.Component(a.logger, "events")))
	reporter := events.NewReporter(a.bus)

	a.engine = reconcile.NewEngine(db, client, cal,
		reconcile.WithReporter(reporter),
		reconcile.WithConcurrency(a.cfg.Sync.Concurrency),
		reconcile.WithWindow(a.cfg.Sync.WindowDays),
		reconcile.WithLogger(logging.Component(a.logger, "reconcile")),
	)
	a.sync = service.NewSyncService(a.engine, db, a.progress, a.bus, reporter, cal,
		retryPolicy(a.cfg.Marketplace.Retry), logging.Component(a.logger, "sync"))

	a.overview = overview.NewService(db, cal, client, logging.Component(a.logger, "overview"))
	a.archive = archive.NewArchiver(db, cal, logging.Component(a.logger, "archive"))
	a.export = export.NewExporter(db, a.cfg.Exports.Path, logging.Component(a.logger, "export"))

	return a.initAlerts()
}

// initProgress keeps sync progress in redis when configured, falling back
// to memory while redis is unavailable.
func (a *app) initProgress() domain.ProgressRepository {
	memory := repository.NewMemoryProgressRepository(a.cfg.Redis.ProgressTTL)
	if a.cfg.Redis.Address == "" {
		return memory
	}

	client := repository.NewRedisClient(a.cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(ctx, client); err != nil {
		a.logger.Warn().Err(err).Msg("redis connection failed, continuing with in-memory progress")
		_ = client.Close()
		return memory
	}

	a.redis = client
	a.logger.Info().Str("addr", a.cfg.Redis.Address).Msg("redis connected")
	primary := repository.NewRedisProgressRepository(client, a.cfg.Redis.ProgressTTL)
	return repository.NewFailoverProgressRepository(primary, memory, logging.Component(a.logger, "progress"))
}

func (a *app) initAlerts() error {
	if !a.cfg.Telegram.Enabled {
		return nil
	}
	bot, err := alert.NewBot(a.cfg.Telegram.BotToken)
	if err != nil {
		return err
	}
	alerter := alert.NewAlerter(bot, a.cfg.Telegram.ChatID, logging.Component(a.logger, "alert"))
	alerter.Subscribe(a.bus)
	a.commands = alert.NewCommands(bot, a.cfg.Telegram.ChatID, a.sync, a.overview, logging.Component(a.logger, "commands"))
	a.logger.Info().Str("bot", bot.Self.UserName).Msg("telegram alerts enabled")
	return nil
}

func initCalendar(cfg config.CalendarConfig) (*calendar.Calendar, error) {
	weekStart, err := cfg.Weekday()
	if err != nil {
		return nil, err
	}

	var policy calendar.Policy
	if cfg.DisableDST {
		policy = calendar.FixedOffset(time.Duration(cfg.StandardOffsetHours) * time.Hour)
	} else {
		host, err := cfg.Location()
		if err != nil {
			return nil, err
		}
		policy = calendar.FixedDSTPolicy{
			Standard: time.Duration(cfg.StandardOffsetHours) * time.Hour,
			Daylight: time.Duration(cfg.DaylightOffsetHours) * time.Hour,
			Host:     host,
		}
	}
	return calendar.New(calendar.WithPolicy(policy), calendar.WithWeekStart(weekStart)), nil
}

func retryPolicy(cfg config.RetryConfig) marketplace.RetryPolicy {
	return marketplace.RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
	}
}

func (a *app) Close() {
	if a.sync != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.sync.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("sync shutdown timed out")
		}
		cancel()
	}
	if a.redis != nil {
		_ = repository.Close(a.redis)
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.closer != nil {
		_ = a.closer.Close()
	}
}
