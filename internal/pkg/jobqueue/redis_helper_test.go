package jobqueue

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ContestHub/internal/pkg/env"
)

// Jobqueue tests own this Redis database and flush it freely.
const isolatedJobQueueTestRedisDB = 14

type redisCandidate struct {
	addr     string
	password string
}

// testRedisCandidates lists where a test Redis may live: the configured
// cache first, then the compose service name and localhost.
func testRedisCandidates() []redisCandidate {
	port := env.GetEnv("CACHE_PORT", "6379")
	password := env.GetEnv("CACHE_PASSWORD", "")

	var out []redisCandidate
	seen := map[redisCandidate]bool{}
	add := func(host, pw string) {
		c := redisCandidate{addr: net.JoinHostPort(host, port), password: pw}
		if host == "" || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}
	for _, host := range []string{env.GetEnv("CACHE_HOST", ""), "cache", "localhost"} {
		add(host, password)
		add(host, "")
	}
	return out
}

// newIsolatedRedisClient connects to the first reachable candidate, selects
// db and flushes it before and after the test. Tests skip without Redis.
func newIsolatedRedisClient(t *testing.T, db int) *redis.Client {
	t.Helper()

	var lastErr error
	for _, c := range testRedisCandidates() {
		client := redis.NewClient(&redis.Options{Addr: c.addr, Password: c.password, DB: db})
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			lastErr = err
			_ = client.Close()
			continue
		}

		if err := client.FlushDB(context.Background()).Err(); err != nil {
			_ = client.Close()
			t.Fatalf("flush redis db %d: %v", db, err)
		}
		t.Cleanup(func() {
			_ = client.FlushDB(context.Background()).Err()
			_ = client.Close()
		})
		return client
	}

	t.Skipf("Skipping Redis-dependent test: no reachable Redis (%v)", lastErr)
	return nil
}
