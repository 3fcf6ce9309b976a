package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/bookon/bookon-api/api/swagger"
	"github.com/bookon/bookon-api/internal/handler"
	"github.com/bookon/bookon-api/internal/service"
	"github.com/bookon/bookon-api/pkg/cache"
	"github.com/bookon/bookon-api/pkg/config"
	"github.com/bookon/bookon-api/pkg/database"
	"github.com/bookon/bookon-api/pkg/filter"
	"github.com/bookon/bookon-api/pkg/forms"
	"github.com/bookon/bookon-api/pkg/jobs"
	"github.com/bookon/bookon-api/pkg/logger"
	"github.com/bookon/bookon-api/pkg/notify"
)

// @title BookOn API
// @version 1.0.0
// @description Back office API for courses, broadcasts, registers and venues
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	app := buildApp(cfg, logr, db, rdb)
	app.queue.Start(ctx)
	defer app.queue.Stop()
	go app.broadcasts.RunDispatcher(ctx, cfg.Broadcasts.PollInterval)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// senders picks the email provider. SMS is logged until a gateway is
// configured; push goes to in-app notifications and needs no sender.
func senders(cfg *config.Config, logr *zap.Logger) *notify.Router {
	var email notify.Sender
	switch cfg.Email.Provider {
	case config.EmailProviderResend:
		email = notify.NewResendSender(cfg.Email.ResendAPIKey, fmt.Sprintf("%s <%s>", cfg.Email.FromName, cfg.Email.FromAddress), logr)
	case config.EmailProviderSendgrid:
		email = notify.NewSendgridSender(cfg.Email.SendgridAPIKey, cfg.Email.FromName, cfg.Email.FromAddress, logr)
	default:
		email = notify.NewLogSender(forms.ChannelEmail, logr)
	}
	return notify.NewRouter(nil).
		Handle(forms.ChannelEmail, email).
		Handle(forms.ChannelSMS, notify.NewLogSender(forms.ChannelSMS, logr))
}

// redisPinger adapts the redis client to the readiness probe.
func redisPinger(rdb *redis.Client) handler.Pinger {
	return handler.PingFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
}

func filterStores(rdb *redis.Client, ttl time.Duration) service.FilterStoreFactory {
	base := filter.NewRedisStore(rdb, cache.Key("filters")+":", ttl)
	return func(userID string) filter.Store {
		return base.Scoped(userID)
	}
}

func queueConfig(cfg config.BroadcastConfig, svc *service.BroadcastService, logr *zap.Logger) jobs.QueueConfig {
	return jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: 5 * time.Second,
		DeadLetter: svc.FailDelivery,
		Logger:     logr.Named("broadcasts"),
	}
}
