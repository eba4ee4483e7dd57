package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"retreat/internal/api"
	"retreat/internal/booking"
	"retreat/internal/calendar"
	"retreat/internal/config"
	"retreat/internal/conflict"
	"retreat/internal/database"
	"retreat/internal/events"
	"retreat/internal/lock"
	"retreat/internal/metrics"
	"retreat/internal/pricing"
	"retreat/internal/rates"
	"retreat/internal/repository"
	"retreat/internal/service"
)

func main() {
	cfg, err := config.Load(os.Getenv("RETREAT_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	rateFile, err := config.LoadRateFile(cfg.Rates.File)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Rates.File).Msg("failed to load rate file")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}
	prefix := cfg.Redis.KeyPrefix
	if prefix == "" {
		prefix = "retreat"
	}

	// Rates: SQLite first, the rate file when SQLite is unreachable.
	static := rates.NewStaticSource(rateFile.Records())
	source := repository.NewFailoverRateSource(db, static, &logger)
	source.SetRecoveryInterval(cfg.RateRecovery())

	var cache rates.Cache = rates.NewMemoryCache(cfg.RateCacheTTL())
	if cfg.Rates.CacheBackend == "redis" {
		if rdb == nil {
			logger.Fatal().Msg("rates.cache_backend is redis but redis.address is empty")
		}
		cache = rates.NewRedisCache(rdb, prefix, cfg.RateCacheTTL(), &logger)
	}
	provider := rates.NewProvider(source, cache, &logger)

	bus := events.NewEventBus(&logger)
	bus.Subscribe(events.RatesUpdated, func(events.Event) error {
		provider.Invalidate(ctx)
		return nil
	})
	bus.Subscribe(events.BookingCommitted, func(e events.Event) error {
		logger.Debug().Int64("event_id", e.ID).Msg("booking committed event")
		return nil
	})
	db.SetPublisher(bus)

	weekend, err := calendar.ParseWeekdays(cfg.Calendar.Weekend)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid calendar.weekend")
	}
	calc := pricing.NewCalculator(weekend, cfg.Calendar.SeasonMode, cfg.PeakMonths(), &logger)

	var lockStore lock.Store = lock.NewMemoryStore()
	if cfg.Locks.Backend == "redis" {
		if rdb == nil {
			logger.Fatal().Msg("locks.backend is redis but redis.address is empty")
		}
		lockStore = lock.NewRedisStore(rdb, prefix)
	}
	locks := lock.NewManager(lockStore, lock.Options{
		TTL:            cfg.LockTTL(),
		ExpiringWindow: cfg.LockExpiring(),
		ProbeWindow:    cfg.LockProbe(),
	}, &logger)
	sweeper := lock.NewSweeper(locks, cfg.LockSweep(), &logger)
	go sweeper.Start(ctx)
	defer sweeper.Stop()

	resolver := conflict.NewResolver()
	if cfg.Booking.SuggestionWindowDays > 0 {
		resolver.SearchWindow = cfg.Booking.SuggestionWindowDays
	}
	if cfg.Booking.MaxSuggestions > 0 {
		resolver.MaxSuggestions = cfg.Booking.MaxSuggestions
	}
	if cfg.Booking.FitRatio > 0 {
		resolver.FitRatio = cfg.Booking.FitRatio
	}

	engine := service.NewEngine(db, provider, calc, locks, resolver, booking.NewAttemptStore(cfg.AttemptTimeout()), bus, &logger)

	// The watcher's initial load seeds the store; later edits replace both
	// the store rows and the fallback copy.
	err = config.WatchRates(ctx, cfg.Rates.File, cfg.RateWatchInterval(),
		func(rf *config.RateFile) {
			rec := rf.Records()
			static.Replace(rec)
			engine.SetFallbackRooms(rf.ModelRooms())
			if err := db.SyncRooms(ctx, rf.ModelRooms()); err != nil {
				logger.Error().Err(err).Msg("failed to sync rooms")
			}
			if err := db.SeedRates(ctx, rec); err != nil {
				logger.Error().Err(err).Msg("failed to store rates")
				return
			}
			logger.Info().Str("version", rf.Version).Msg("rates loaded")
		},
		func(err error) {
			logger.Error().Err(err).Str("path", cfg.Rates.File).Msg("rate file reload failed")
		},
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to watch rate file")
	}

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	}

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	ready := func(ctx context.Context) error {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}

	server := api.NewHTTPServer(api.Options{
		Port:           cfg.ServerPort(),
		ReadTimeout:    cfg.ReadTimeout(),
		WriteTimeout:   cfg.WriteTimeout(),
		LockProbeRate:  cfg.LockProbeRate(),
		LockProbeBurst: cfg.LockProbeBurst(),
	}, engine, ready, &logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("HTTP shutdown error")
		}
	}()

	logger.Info().Str("rates_version", rateFile.Version).Msg("booking engine started")
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("HTTP server error")
	}
	logger.Info().Msg("booking engine stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil || cfg.Logging.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
