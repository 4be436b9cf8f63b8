package redis

import (
	"context"
	"fmt"
	"time"

	goRedis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/magiclink/internal/config"
)

const defaultPingTimeout = 2 * time.Second

// Options turns cfg into client options. Password and DB override the
// values carried by the URL. The ping timeout doubles as the dial timeout.
func Options(cfg config.RedisConfig) (*goRedis.Options, error) {
	opts, err := goRedis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.DialTimeout = pingTimeout(cfg)
	return opts, nil
}

// NewClient connects to the session store and pings it once, so a command
// using the redis driver fails up front when the server is unreachable.
func NewClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*goRedis.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}

	client := goRedis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout(cfg))
	defer cancel()

	start := time.Now()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", opts.Addr, err)
	}
	logger.Debug("redis session store connected",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Duration("ping", time.Since(start)),
	)
	return client, nil
}

func pingTimeout(cfg config.RedisConfig) time.Duration {
	if cfg.PingTimeout > 0 {
		return cfg.PingTimeout
	}
	return defaultPingTimeout
}
