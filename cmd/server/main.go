package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/parkmate/internal/config"
	"github.com/iliyamo/parkmate/internal/database"
	"github.com/iliyamo/parkmate/internal/handler"
	"github.com/iliyamo/parkmate/internal/lock"
	"github.com/iliyamo/parkmate/internal/logging"
	"github.com/iliyamo/parkmate/internal/middleware"
	"github.com/iliyamo/parkmate/internal/queue"
	"github.com/iliyamo/parkmate/internal/repository"
	"github.com/iliyamo/parkmate/internal/router"
	"github.com/iliyamo/parkmate/internal/service"
)

type stores struct {
	slots   repository.SlotStore
	history repository.HistoryLog
	users   repository.UserStore
	tokens  repository.TokenStore
	db      *sql.DB
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	if cfg.StoreDriver == config.StoreMemory {
		return stores{
			slots:   repository.NewMemorySlotStore(),
			history: repository.NewMemoryHistoryLog(),
			users:   repository.NewMemoryUserStore(),
			tokens:  repository.NewMemoryTokenStore(),
		}, nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return stores{}, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return stores{}, err
	}
	return stores{
		slots:   repository.NewSlotRepo(db),
		history: repository.NewRecordRepo(db),
		users:   repository.NewUserRepo(db),
		tokens:  repository.NewTokenRepo(db),
		db:      db,
	}, nil
}

func newLocker(cfg config.Config, rdb *redis.Client) lock.Locker {
	if cfg.Parking.LockDriver == config.LockRedis {
		if rdb != nil {
			return lock.NewRedisLocker(rdb, "lock:slot:", cfg.Parking.LockTTL)
		}
		logging.Logger().Warn().Msg("LOCK_DRIVER=redis but redis is unavailable; using in-process locks")
	}
	return lock.NewKeyedLocker()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger().Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Init(cfg.IsDev())
	log := logging.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open storage failed")
	}
	if st.db != nil {
		defer st.db.Close()
	}

	if err := database.Seed(ctx, st.slots, st.history, st.users, database.SeedOptions{
		SlotIDs:    cfg.Parking.SlotIDs,
		Demo:       cfg.Parking.SeedDemo,
		Location:   cfg.Parking.Location,
		AdminEmail: cfg.Parking.AdminEmail,
		AdminPass:  cfg.Parking.AdminPass,
		AdminName:  cfg.Parking.AdminName,
		BcryptCost: cfg.BcryptCost,
	}); err != nil {
		log.Fatal().Err(err).Msg("seeding failed")
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
	}

	opts := []service.Option{
		service.WithLocker(newLocker(cfg, rdb)),
		service.WithLocation(cfg.Parking.Location),
		service.WithLockTimeout(cfg.Parking.LockTimeout),
	}
	if cfg.Events.Enabled {
		opts = append(opts, service.WithPublisher(queue.NewPublisher(cfg.Events.RabbitMQURL, cfg.Events.Queue)))
		consumer := queue.NewConsumer(cfg.Events.RabbitMQURL, cfg.Events.Queue, cfg.Events.LogPath)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("slot event consumer stopped")
			}
		}()
	}
	svc := service.NewBookingService(st.slots, st.history, opts...)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, st.users, st.tokens), cfg.JWTSecret)
	router.RegisterParking(e, handler.NewParkingHandler(svc), cfg.JWTSecret,
		middleware.NewResponseCache(config.LoadCacheConfig(), rdb))

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.StoreDriver).
			Bool("redis", rdb != nil).Bool("events", cfg.Events.Enabled).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
