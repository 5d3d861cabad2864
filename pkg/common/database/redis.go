package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/transplantflow/platform/pkg/common/config"
	"github.com/transplantflow/platform/pkg/common/logger"
)

const redisDialTimeout = 5 * time.Second

var (
	redisClient *redis.Client
	redisOnce   sync.Once
	redisErr    error
)

// GetRedis returns the process-wide client. The first call pings the server
// and a failed ping is returned to every caller; the record store cannot run
// without it.
func GetRedis(cfg *config.Config) (*redis.Client, error) {
	redisOnce.Do(func() {
		redisClient, redisErr = OpenRedis(fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort), cfg.RedisPassword, cfg.RedisDB)
	})
	return redisClient, redisErr
}

// OpenRedis dials a fresh client without touching the process singleton.
func OpenRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: redisDialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithField("addr", addr).WithError(err).Error("Failed to connect to Redis")
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	logger.WithField("addr", addr).Info("Connected to Redis")
	return client, nil
}

func CloseRedis() error {
	if redisClient != nil {
		return redisClient.Close()
	}
	return nil
}
