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

	"github.com/cenkalti/backoff/v4"
	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"whiteboardAPI/handlers"
	"whiteboardAPI/internal/broadcast"
	"whiteboardAPI/internal/config"
	"whiteboardAPI/internal/logger"
	"whiteboardAPI/internal/metrics"
	"whiteboardAPI/internal/notification"
	"whiteboardAPI/middleware"
	"whiteboardAPI/services"

	_ "net/http/pprof"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zlog, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()
	middleware.InitPrometheus()

	verify := middleware.ClerkVerifier
	if cfg.ClerkSecretKey != "" {
		clerk.SetKey(cfg.ClerkSecretKey)
		zlog.Info("Clerk initialized")
	} else {
		zlog.Warn("CLERK_SECRET_KEY not set, every authenticated request will be rejected")
	}

	// storage
	var (
		repo    services.WhiteboardRepository = services.NewMemoryRepository()
		devices notification.DeviceStore      = notification.NewDevices()
		dbPool  *pgxpool.Pool
		err     error
	)
	if cfg.DatabaseURL != "" {
		dbPool, err = connectPostgres(ctx, cfg.DatabaseURL, zlog)
		if err != nil {
			return err
		}
		defer dbPool.Close()

		pg := services.NewPostgresRepository(dbPool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		repo = services.NewBreakerRepository(pg, zlog)
		devices = pg
	} else {
		zlog.Warn("DATABASE_URL not set, whiteboards are kept in memory only")
	}

	// cross-instance fan-out
	var (
		bus         broadcast.Broadcaster = broadcast.NewLocal(cfg.InstanceID)
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		redisClient, err = connectRedis(ctx, cfg.RedisURL, zlog)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		bus = broadcast.NewRedis(redisClient, zlog, cfg.InstanceID)
	}
	defer bus.Close()

	authz := services.NewAuthorizer(cfg.ModeratorIDs)
	alerts := notification.NewDispatcher(devices, authz.ModeratorsOf, zlog, 2)
	defer alerts.Stop()

	if cfg.FCMServiceAccountJSON != "" || cfg.FCMCredentialsFile != "" {
		fcm, err := notification.NewFCMService(ctx, cfg.FCMServiceAccountJSON, cfg.FCMCredentialsFile, zlog)
		if err != nil {
			zlog.Warn("could not initialize FCM, moderation alerts disabled", zap.Error(err))
		} else {
			alerts.SetPushProvider(fcm)
			zlog.Info("FCM push provider initialized")
		}
	}

	manager := services.NewWhiteboardManager(services.SessionDeps{
		Repo:              repo,
		Bus:               bus,
		Authz:             authz,
		Alerts:            alerts,
		InstanceID:        cfg.InstanceID,
		Log:               zlog,
		DefaultModeration: cfg.Moderation,
		Moderation: services.ModerationOptions{
			Workers:       cfg.ModerationWorkers,
			QueueSize:     cfg.ModerationQueue,
			Timeout:       cfg.ModerationTimeout,
			SweepInterval: cfg.SweepInterval,
		},
		VoteThreshold: cfg.VoteThreshold,
	})

	auth := middleware.NewAuth(verify, zlog)
	limiter := middleware.NewRateLimiter(5, 30, zlog)

	r := mux.NewRouter()
	standardRouter := r.PathPrefix("/").Subrouter()
	standardRouter.Use(limiter.Middleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	handlers.Routes{
		Whiteboards: handlers.NewWhiteboardHandler(manager, services.NewInviteService(cfg.PublicBaseURL), cfg.ClientMessagesPerSecond, cfg.ClientMessageBurst, zlog),
		Moderation:  handlers.NewModerationHandler(manager, zlog),
		Voting:      handlers.NewVotingHandler(manager, zlog),
		Devices:     handlers.NewDeviceHandler(devices, zlog),
	}.Mount(r, standardRouter, auth)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(cfg.PprofSecret)(http.DefaultServeMux))
	standardRouter.HandleFunc("/health", healthHandler(dbPool, redisClient)).Methods("GET")

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zlog.Info("starting server", zap.String("addr", server.Addr), zap.String("instance_id", cfg.InstanceID))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		limiter.CleanupVisitors(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zlog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if serr := manager.Shutdown(shutdownCtx); serr != nil {
			err = errors.Join(err, serr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	zlog.Info("server shutdown complete")
	return nil
}

func connectPostgres(ctx context.Context, dbURL string, zlog *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	var pool *pgxpool.Pool
	connect := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		p, err := pgxpool.NewWithConfig(attemptCtx, poolConfig)
		if err != nil {
			return err
		}
		if err := p.Ping(attemptCtx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	notify := func(err error, wait time.Duration) {
		zlog.Warn("database not reachable, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(connect, policy, notify); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	zlog.Info("connected to database")
	return pool, nil
}

func connectRedis(ctx context.Context, redisURL string, zlog *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ping := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(attemptCtx).Err()
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	notify := func(err error, wait time.Duration) {
		zlog.Warn("redis not reachable, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	zlog.Info("connected to redis")
	return client, nil
}

func healthHandler(db *pgxpool.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
				return
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status": "unhealthy", "error": "redis connection failed"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "whiteboard-api"}`))
	}
}
