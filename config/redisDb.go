package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

// GetRedisLock is nil until ConnectRedisWithRetry succeeds; callers treat nil as "no period lock".
func GetRedisLock() *redislock.Client {
	return locker
}

// RedisOptionsFromEnv reads REDIS_ADDRESS, REDIS_PASSWORD, REDIS_DB and REDIS_POOL_SIZE.
func RedisOptionsFromEnv() *redis.Options {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDRESS"))
	if addr == "" {
		addr = "localhost:6379"
	}
	poolSize := IntFromEnv("REDIS_POOL_SIZE", 20)
	if poolSize <= 0 {
		poolSize = 20
	}
	return &redis.Options{
		Addr:         addr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           IntFromEnv("REDIS_DB", 0),
		PoolSize:     poolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// ConnectRedisWithRetry sets the shared client used by the rate limiter and
// the month-close lock. Call it from main() after the HTTP server is listening.
func ConnectRedisWithRetry() {
	opts := RedisOptionsFromEnv()
	logger := GetLogger()

	for attempt := 1; ; attempt++ {
		client := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
		err := client.Ping(ctx).Err()
		cancel()
		if err == nil {
			rdb = client
			locker = redislock.New(client)
			logger.WithFields(logrus.Fields{
				"field":   "ConnectRedisWithRetry",
				"addr":    opts.Addr,
				"db":      opts.DB,
				"attempt": attempt,
			}).Info("connected to redis")
			return
		}
		_ = client.Close()

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":    "ConnectRedisWithRetry",
			"addr":     opts.Addr,
			"attempt":  attempt,
			"retry_in": sleep.String(),
		}).Warn("redis not reachable: " + err.Error())
		time.Sleep(sleep)
	}
}

// CloseRedis is best-effort.
func CloseRedis() {
	if rdb != nil {
		_ = rdb.Close()
		rdb = nil
		locker = nil
	}
}
