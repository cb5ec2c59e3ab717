package server1

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStagingMirror mirrors QueueWrite arrivals into a Redis list keyed
// by epoch, purely as an observability aid for a restarted mixer process
// (spec §5: "never a correctness dependency"). Modeled on
// internal/messaging.Service's pattern of publishing to Redis alongside
// an authoritative Postgres write.
type RedisStagingMirror struct {
	client *redis.Client
}

// NewRedisStagingMirror wraps an existing Redis client.
func NewRedisStagingMirror(client *redis.Client) *RedisStagingMirror {
	return &RedisStagingMirror{client: client}
}

// MirrorQueueWrite implements StagingMirror.
func (m *RedisStagingMirror) MirrorQueueWrite(ctx context.Context, epoch uint64, senderSlot uint64) error {
	key := fmt.Sprintf("myco:staging:%d", epoch)
	if err := m.client.RPush(ctx, key, senderSlot).Err(); err != nil {
		return fmt.Errorf("server1: mirror queue write: %w", err)
	}
	return nil
}
