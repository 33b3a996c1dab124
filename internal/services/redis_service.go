package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisService tracks short-lived per-thread dialogue state: whether a
// clarifying question was asked recently, and idempotency claims for inbound
// messages. Losing this state degrades gracefully (the worst case is asking a
// clarifier twice), so Redis being down never fails a turn.
type RedisService struct {
	client *redis.Client
}

var (
	redisInstance *RedisService
	redisOnce     sync.Once
)

// GetRedisService returns the shared Redis service, connecting on first use.
func GetRedisService(redisURL string) *RedisService {
	redisOnce.Do(func() {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Printf("⚠️ [REDIS] Invalid URL, running without Redis: %v", err)
			redisInstance = &RedisService{}
			return
		}

		client := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("⚠️ [REDIS] Connection failed, running without Redis: %v", err)
			redisInstance = &RedisService{}
			return
		}

		log.Println("✅ Connected to Redis")
		redisInstance = &RedisService{client: client}
	})
	return redisInstance
}

// Available reports whether a Redis connection is live.
func (s *RedisService) Available() bool {
	return s != nil && s.client != nil
}

func clarifierKey(userID, threadID string) string {
	return fmt.Sprintf("clarifier:%s:%s", userID, threadID)
}

// MarkClarifierAsked records that a clarifying question was just asked in a
// thread. The TTL bounds how long the loop-breaking rule applies.
func (s *RedisService) MarkClarifierAsked(ctx context.Context, userID, threadID string) {
	if !s.Available() {
		return
	}
	if err := s.client.Set(ctx, clarifierKey(userID, threadID), "1", 30*time.Minute).Err(); err != nil {
		log.Printf("⚠️ [REDIS] Failed to mark clarifier: %v", err)
	}
}

// WasClarifierRecentlyAsked reports whether a clarifier flag is set for the
// thread. Errors read as "not asked".
func (s *RedisService) WasClarifierRecentlyAsked(ctx context.Context, userID, threadID string) bool {
	if !s.Available() {
		return false
	}
	exists, err := s.client.Exists(ctx, clarifierKey(userID, threadID)).Result()
	if err != nil {
		return false
	}
	return exists > 0
}

// MessageClaimer takes idempotency claims on inbound message IDs. Satisfied
// by RedisService; the chat handler consumes it.
type MessageClaimer interface {
	ClaimMessage(ctx context.Context, messageID string) bool
}

// ClaimMessage takes an idempotency claim on an inbound message ID. Returns
// false when the same message was already claimed, letting the handler drop
// the duplicate delivery. Without Redis every delivery is treated as fresh;
// calendar safety then rests on duplicate scoring alone.
func (s *RedisService) ClaimMessage(ctx context.Context, messageID string) bool {
	if !s.Available() {
		return true
	}
	ok, err := s.client.SetNX(ctx, "msg:"+messageID, "1", 10*time.Minute).Result()
	if err != nil {
		return true
	}
	return ok
}

// Ping verifies the connection for health checks.
func (s *RedisService) Ping(ctx context.Context) error {
	if !s.Available() {
		return fmt.Errorf("redis not connected")
	}
	return s.client.Ping(ctx).Err()
}

// Close shuts down the Redis connection.
func (s *RedisService) Close() error {
	if !s.Available() {
		return nil
	}
	return s.client.Close()
}
