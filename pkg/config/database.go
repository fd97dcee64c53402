package config

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connections holds the external clients of the service. Redis and NATS
// are nil when not configured.
type Connections struct {
	Postgres *gorm.DB
	Redis    *redis.Client
	Nats     *nats.Conn

	log *zap.Logger
}

// Connect opens every configured backend and verifies it answers.
func Connect(ctx context.Context, cfg *Config, log *zap.Logger) (*Connections, error) {
	conns := &Connections{log: log}

	db, err := initPostgres(cfg.PostgresConnStr, cfg.IsProduction())
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to PostgreSQL")
	}
	conns.Postgres = db
	log.Info("connected to PostgreSQL")

	if cfg.RedisAddr != "" {
		rdb, err := initRedis(ctx, cfg)
		if err != nil {
			conns.Close()
			return nil, errors.Wrap(err, "failed to connect to Redis")
		}
		conns.Redis = rdb
		log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))
	}

	if cfg.NatsURL != "" {
		nc, err := initNats(cfg.NatsURL, log)
		if err != nil {
			conns.Close()
			return nil, errors.Wrap(err, "failed to connect to NATS")
		}
		conns.Nats = nc
		log.Info("connected to NATS", zap.String("url", nc.ConnectedUrl()))
	}
	return conns, nil
}

func initPostgres(connStr string, quiet bool) (*gorm.DB, error) {
	level := logger.Warn
	if quiet {
		level = logger.Error
	}
	db, err := gorm.Open(postgres.Open(connStr), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	if err = sqlDB.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func initNats(url string, log *zap.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("relations"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}

// Close releases every open connection.
func (c *Connections) Close() {
	if c.Nats != nil {
		if err := c.Nats.Drain(); err != nil {
			c.log.Warn("error draining NATS connection", zap.Error(err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.log.Warn("error closing Redis connection", zap.Error(err))
		}
	}
	if c.Postgres != nil {
		sqlDB, err := c.Postgres.DB()
		if err != nil {
			c.log.Warn("error getting SQL DB from GORM", zap.Error(err))
			return
		}
		if err := sqlDB.Close(); err != nil {
			c.log.Warn("error closing PostgreSQL connection", zap.Error(err))
			return
		}
		c.log.Info("PostgreSQL connection closed")
	}
}
