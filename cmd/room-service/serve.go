package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"hkms/internal/access"
	"hkms/internal/config"
	"hkms/internal/httpapi"
	"hkms/internal/hub"
	"hkms/internal/lifecycle"
	"hkms/internal/logging"
	"hkms/internal/models"
	"hkms/internal/relay"
	"hkms/internal/store"
	"hkms/internal/store/memory"
	"hkms/internal/store/postgres"
	"hkms/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and realtime endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(config.Load(viper.GetViper()))
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.String("port", "8080", "HTTP listen port")
	flags.String("relay-driver", config.RelayNone, "cross-replica relay: none, redis or nats")
	flags.Bool("realtime-require-auth", false, "require a session token on realtime connections")

	_ = viper.BindPFlag(config.KeyPort, flags.Lookup("port"))
	_ = viper.BindPFlag(config.KeyRelayDriver, flags.Lookup("relay-driver"))
	_ = viper.BindPFlag(config.KeyRealtimeRequireAuth, flags.Lookup("realtime-require-auth"))
}

func serve(cfg config.Config) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdownTelemetry := telemetry.Setup(serviceName, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := bootstrapUser(ctx, cfg, st, logger); err != nil {
		return err
	}

	h := hub.New(cfg.RealtimeQueueSize, logger)
	defer h.CloseAll()
	expvar.Publish("realtime_subscribers", expvar.Func(func() any { return h.Len() }))

	publisher, err := openRelay(ctx, cfg, h, logger)
	if err != nil {
		return err
	}

	engine := lifecycle.NewEngine(st, publisher, logger)
	gate := access.NewGate(st)
	api := httpapi.NewHandler(engine, st, httpapi.Options{SessionTTL: cfg.SessionTTL, Logger: logger})
	realtime := httpapi.NewRealtime(h, gate, cfg.RealtimeRequireAuth, logger)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:   cfg.RateLimitPerMinute,
		IPBurst:       cfg.RateLimitBurst,
		UserPerMinute: cfg.UserRateLimitPerMinute,
		UserBurst:     cfg.UserRateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", realtime.SockJSHandler("/realtime"))
	mux.HandleFunc("/ws", realtime.ServeWS)
	mux.Handle("/", api.Routes())

	chain := httpapi.AuthMiddleware(gate, limiter.UserMiddleware(mux))
	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(logger, limiter.Middleware(chain)), serviceName)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelHandler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", server.Addr), zap.String("relay", cfg.RelayDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	logger.Info("stopped")
	return nil
}

type serviceStore interface {
	store.Store
	store.UserSeeder
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (serviceStore, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("db_dsn not set, using in-memory store")
		return memory.New(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	st := postgres.NewStore(pool)
	if err := st.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}
	return st, pool.Close, nil
}

func bootstrapUser(ctx context.Context, cfg config.Config, seeder store.UserSeeder, logger *zap.Logger) error {
	if cfg.BootstrapEmail == "" || cfg.BootstrapPassword == "" {
		return nil
	}
	user, err := seeder.EnsureUser(ctx, models.User{
		Name:  "Bootstrap Manager",
		Email: cfg.BootstrapEmail,
		Role:  access.RoleManager,
	}, cfg.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("bootstrap user: %w", err)
	}
	logger.Info("bootstrap user ready", zap.String("user_id", user.UserID), zap.String("role", user.Role))
	return nil
}

// openRelay returns the publisher the engine should use. Without a relay
// the local hub publishes directly; with one, events go through the bus and
// come back to the hub from the relay's subscription.
func openRelay(ctx context.Context, cfg config.Config, h *hub.Hub, logger *zap.Logger) (hub.Publisher, error) {
	var r relay.Relay
	switch cfg.RelayDriver {
	case "", config.RelayNone:
		return h, nil
	case config.RelayRedis:
		redisRelay := relay.NewRedis(relay.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RelayChannel,
		}, h, logger)
		if err := redisRelay.Ping(ctx); err != nil {
			_ = redisRelay.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		r = redisRelay
	case config.RelayNATS:
		natsRelay, err := relay.NewNATS(cfg.NATSURL, cfg.RelayChannel, h, logger)
		if err != nil {
			return nil, err
		}
		r = natsRelay
	default:
		return nil, fmt.Errorf("unknown relay_driver %q", cfg.RelayDriver)
	}

	go func() {
		defer func() { _ = r.Close() }()
		if err := r.Run(ctx); err != nil {
			logger.Error("relay stopped", zap.Error(err))
		}
	}()
	select {
	case <-r.Ready():
	case <-time.After(10 * time.Second):
		return nil, errors.New("relay subscription not ready after 10s")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r, nil
}
