package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ContestHub/internal/pkg/env"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache initializes the connection to the Redis cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	})

	// Test the connection
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to Redis: %v", err)
	} else {
		log.Infof("[Cache] Connected to Redis: %s", pong)
	}
}

// SetClient replaces the shared client; used by tests with an isolated DB.
func SetClient(c *redis.Client) {
	client = c
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Set stores a value in the cache with the given key and expiration time
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// SetJSON stores value marshalled as JSON.
func SetJSON(key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return Set(key, data, expiration)
}

// GetJSON loads a JSON value into dst. A cache miss returns redis.Nil.
func GetJSON(key string, dst interface{}) error {
	raw, err := GetClient().Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// Delete removes a value from the cache by key
func Delete(key string) error {
	return GetClient().Del(ctx, key).Err()
}

// Close closes the shared client.
func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}

// TopContestsKey holds the cached top-contests listing.
const TopContestsKey = "contests:top"

// Store is the part of the cache handlers depend on.
type Store interface {
	GetJSON(key string, dst interface{}) error
	SetJSON(key string, value interface{}, expiration time.Duration) error
	Delete(key string) error
}

type redisStore struct{}

// NewStore returns a Store backed by the shared Redis client.
func NewStore() Store {
	return redisStore{}
}

func (redisStore) GetJSON(key string, dst interface{}) error {
	return GetJSON(key, dst)
}

func (redisStore) SetJSON(key string, value interface{}, expiration time.Duration) error {
	return SetJSON(key, value, expiration)
}

func (redisStore) Delete(key string) error {
	return Delete(key)
}
