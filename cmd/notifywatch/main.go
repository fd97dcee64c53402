// Command notifywatch follows a user's notification feed from the terminal
// and logs the unread count whenever it changes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/nano-midea/relations/pkg/logger"
	"github.com/anonto42/nano-midea/relations/pkg/notifyclient"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

type watchConfig struct {
	BaseURL      string        `envconfig:"RELATIONS_URL" default:"http://localhost:8080"`
	Token        string        `envconfig:"RELATIONS_TOKEN" required:"true"`
	Env          string        `envconfig:"ENV" default:"development"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"10s"`
	Push         bool          `envconfig:"PUSH" default:"true"`
}

func main() {
	_ = godotenv.Load()
	var cfg watchConfig
	if err := envconfig.Process("", &cfg); err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}
	log := logger.New(cfg.Env).Named("notifywatch")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := notifyclient.NewHTTPClient(cfg.BaseURL, cfg.Token, 15*time.Second)
	var push notifyclient.Push
	if cfg.Push {
		push = notifyclient.NewWSPush(cfg.BaseURL, cfg.Token)
	}

	last := -1
	cache := notifyclient.New(api, push, notifyclient.Options{
		PollInterval: cfg.PollInterval,
		Log:          log,
		OnChange: func(s notifyclient.Snapshot) {
			if s.UnreadCount == last {
				return
			}
			last = s.UnreadCount
			fields := []zap.Field{zap.Int("unread", s.UnreadCount), zap.Int("cached", len(s.Notifications))}
			if len(s.Notifications) > 0 {
				fields = append(fields, zap.String("latest", s.Notifications[0].Title))
			}
			log.Info("notifications", fields...)
		},
	})
	cache.Start()

	<-ctx.Done()
	cache.Close()
}
