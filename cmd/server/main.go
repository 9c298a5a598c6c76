package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-booking/internal/booking"
	"github.com/iliyamo/event-booking/internal/clock"
	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/database"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/logger"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/repository/pgstore"
	"github.com/iliyamo/event-booking/internal/router"
	"github.com/iliyamo/event-booking/internal/service"
	"github.com/iliyamo/event-booking/internal/telemetry"
)

const version = "0.1.0"

// stores groups the driver-specific repositories behind the interfaces the
// booking core and handlers consume.
type stores struct {
	ledger    ledger.Store
	users     handler.UserStore
	tokens    handler.TokenStore
	resources handler.ResourceStore
	close     func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		Endpoint:       cfg.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			zl.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	st, err := openStores(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer st.close()

	rdb := config.NewRedisClient(ctx, cfg.Redis)
	if rdb == nil {
		zl.Warn("redis unavailable; rate limiting and caching disabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		defer func() { _ = rdb.Close() }()
	}

	opts := []booking.Option{
		booking.WithClock(clock.NewSystem()),
		booking.WithLogger(zl.Named("booking")),
		booking.WithLockTimeout(cfg.BookingLockTimeout),
		booking.WithPageSize(cfg.BookingPageSize),
	}
	var pub *service.Publisher
	if cfg.RabbitMQURL != "" {
		pub = service.NewPublisher(service.PublisherConfig{
			URL:      cfg.RabbitMQURL,
			Exchange: cfg.BookingExchange,
		}, zl.Named("publisher"))
		opts = append(opts, booking.WithNotifier(pub))
	}
	ctrl := booking.NewController(st.ledger, opts...)
	mgr := booking.NewManager(st.ledger, opts...)

	e := router.New(router.Deps{
		Log:         zl.Named("http"),
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		Health:      handler.NewHealthHandler(st.ledger),
		Auth:        handler.NewAuthHandler(*cfg, st.users, st.tokens),
		Events:      handler.NewEventHandler(mgr),
		Bookings:    handler.NewBookingHandler(ctrl, mgr),
		Resources:   handler.NewResourceHandler(st.resources),
		RateLimit:   middleware.NewTokenBucket(cfg.RateLimit, rdb, zl.Named("ratelimit")),
		Cache:       middleware.NewRedisCache(cfg.Cache, rdb),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	})
	if pub != nil {
		g.Go(func() error { return pub.Run(gctx) })
	}
	if cfg.RabbitMQURL != "" {
		audit, err := logger.NewFile(cfg.AuditLogPath)
		if err != nil {
			return fmt.Errorf("audit log: %w", err)
		}
		defer func() { _ = audit.Sync() }()
		consumer := &queue.Consumer{
			URL:      cfg.RabbitMQURL,
			Exchange: cfg.BookingExchange,
			Queue:    cfg.AuditQueue,
			Log:      zl.Named("audit"),
			Audit:    audit,
		}
		g.Go(func() error { return consumer.Run(gctx) })
	}

	err = g.Wait()
	zl.Info("shutdown complete")
	return err
}

func openStores(ctx context.Context, cfg *config.Config, zl *zap.Logger) (stores, error) {
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := database.NewPostgres(ctx, database.PostgresConfig{
			URL:            cfg.DatabaseURL,
			ConnectTimeout: 5 * time.Second,
			MaxRetries:     5,
			EnableTracing:  cfg.OTLPEndpoint != "",
		})
		if err != nil {
			return stores{}, err
		}
		if cfg.DBAutoMigrate {
			if err := database.MigratePostgres(ctx, pool); err != nil {
				pool.Close()
				return stores{}, fmt.Errorf("migrate: %w", err)
			}
			zl.Info("schema applied", zap.String("driver", "postgres"))
		}
		return stores{
			ledger:    pgstore.NewStore(pool),
			users:     pgstore.NewUserRepo(pool),
			tokens:    pgstore.NewTokenRepo(pool),
			resources: pgstore.NewResourceRepo(pool),
			close:     pool.Close,
		}, nil
	default:
		db, err := database.OpenMySQL(ctx, database.MySQLConfig{
			User:     cfg.MySQL.User,
			Password: cfg.MySQL.Password,
			Host:     cfg.MySQL.Host,
			Port:     cfg.MySQL.Port,
			Name:     cfg.MySQL.Name,
		})
		if err != nil {
			return stores{}, err
		}
		if cfg.DBAutoMigrate {
			if err := database.MigrateMySQL(ctx, db); err != nil {
				_ = db.Close()
				return stores{}, fmt.Errorf("migrate: %w", err)
			}
			zl.Info("schema applied", zap.String("driver", "mysql"))
		}
		return stores{
			ledger:    repository.NewStore(db),
			users:     repository.NewUserRepo(db),
			tokens:    repository.NewTokenRepo(db),
			resources: repository.NewResourceRepo(db),
			close:     func() { _ = db.Close() },
		}, nil
	}
}
