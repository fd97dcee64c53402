package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/nano-midea/relations/internal/consumers"
	"github.com/anonto42/nano-midea/relations/internal/metrics"
	"github.com/anonto42/nano-midea/relations/internal/middleware"
	"github.com/anonto42/nano-midea/relations/internal/realtime"
	"github.com/anonto42/nano-midea/relations/internal/repositories"
	"github.com/anonto42/nano-midea/relations/internal/router"
	"github.com/anonto42/nano-midea/relations/internal/services"
	"github.com/anonto42/nano-midea/relations/pkg/config"
	"github.com/anonto42/nano-midea/relations/pkg/firebase"
	"github.com/anonto42/nano-midea/relations/pkg/logger"
	"github.com/anonto42/nano-midea/relations/validators"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}
	log := logger.New(cfg.Env)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conns, err := config.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize connections", zap.Error(err))
	}
	defer conns.Close()

	if cfg.AutoMigrate {
		if err := repositories.AutoMigrate(conns.Postgres); err != nil {
			log.Fatal("failed to auto migrate models", zap.Error(err))
		}
		log.Info("PostgreSQL auto-migrations completed")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	validate := validators.NewValidator()

	var unread repositories.UnreadCache = repositories.NoopUnreadCache{}
	if conns.Redis != nil {
		unread = repositories.NewRedisUnreadCache(conns.Redis, cfg.UnreadCacheTTL)
	}

	// Realtime: local hub, bridged through NATS when available.
	hub := realtime.NewHub(cfg.RealtimeBuffer, m, log)
	var publisher services.Publisher = hub
	if conns.Nats != nil {
		bridge := realtime.NewNatsBridge(conns.Nats, hub, log)
		if err := bridge.Start(); err != nil {
			log.Fatal("failed to start realtime bridge", zap.Error(err))
		}
		defer bridge.Close()
		publisher = bridge
	}

	store := repositories.NewStore(conns.Postgres)
	friendships := services.NewFriendshipService(store, publisher, unread, m, log)
	relationships := services.NewRelationshipService(store, m, log)
	notifications := services.NewNotificationService(store.Notifications, publisher, unread, m, log)

	if conns.Nats != nil {
		consumer := consumers.NewInteractionConsumer(conns.Nats, notifications, validate, m, log)
		if err := consumer.Start(); err != nil {
			log.Fatal("failed to start interaction consumer", zap.Error(err))
		}
		defer consumer.Close()
	}

	auth, err := authMiddleware(ctx, cfg)
	if err != nil {
		log.Fatal("failed to initialize auth", zap.Error(err))
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = validate
	config.SetupMiddleware(e, log, m)
	router.SetupRoutes(e, router.Dependencies{
		Auth:          auth,
		Friendships:   friendships,
		Relationships: relationships,
		Notifications: notifications,
		Hub:           hub,
		Log:           log,
	})

	metricsServer := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: promhttp.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	go func() {
		log.Info("starting server", zap.String("port", cfg.Port), zap.String("metrics_port", cfg.MetricsPort))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown", zap.Error(err))
	}
}

func authMiddleware(ctx context.Context, cfg *config.Config) (echo.MiddlewareFunc, error) {
	if cfg.AuthProvider == config.AuthProviderFirebase {
		app, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			return nil, err
		}
		return middleware.FirebaseAuthMiddleware(app.AuthClient), nil
	}
	return middleware.JWTAuthMiddleware(cfg.JWTSecret), nil
}
