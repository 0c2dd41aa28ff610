package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	client *redislib.Client
	once   sync.Once

	ErrNotInitialized = errors.New("redis client not initialized")
)

const (
	pingAttempts = 5
	pingTimeout  = 3 * time.Second
	firstBackoff = 200 * time.Millisecond
)

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c Config) Addr() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Init connects the shared client once. The queue store falls back to it
// when constructed without an explicit client.
func Init(cfg Config) (*redislib.Client, error) {
	var initErr error

	once.Do(func() {
		c := redislib.NewClient(&redislib.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		})

		if err := waitForPing(c, pingAttempts, firstBackoff); err != nil {
			_ = c.Close()
			initErr = fmt.Errorf("redis %s: %w", cfg.Addr(), err)
			return
		}

		client = c
		log.Info().Str("addr", cfg.Addr()).Int("db", cfg.DB).Msg("redis connected")
	})

	if client == nil && initErr == nil {
		return nil, ErrNotInitialized
	}
	return client, initErr
}

func waitForPing(c *redislib.Client, attempts int, backoff time.Duration) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		err = c.Ping(ctx).Err()
		cancel()
		if err == nil {
			return nil
		}

		log.Debug().Err(err).Int("attempt", attempt).Msg("redis ping failed")
		if attempt < attempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return err
}

func Client() *redislib.Client {
	return client
}

func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}
