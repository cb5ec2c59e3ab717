// Package ratelimit provides Redis-based rate limiting for Server1's
// QueueWrite endpoint, adapted from the teacher's bundle-fetch limiter:
// the same INCR+EXPIRE fail-open mechanism, retargeted from "prekey
// bundle fetches per requester/target/IP" to "queued writes per sender
// slot per epoch".
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a sender slot exceeds its per-epoch
// queue-write allowance.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter provides rate limiting functionality using Redis. A nil
// *Limiter (or one with a nil client) always allows, matching the
// teacher's fail-open convention for availability over strict limiting.
type Limiter struct {
	redis *redis.Client
}

// NewLimiter creates a new rate limiter over an existing Redis client.
// Pass a nil client to get a no-op limiter.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{redis: client}
}

// QueueWriteLimit is the default number of QueueWrite calls a single
// sender slot may make within one epoch.
const QueueWriteLimit = 1

// QueueWriteWindow bounds how long a sender slot's queue-write count is
// retained; it only needs to outlive one epoch's staging phase.
const QueueWriteWindow = 10 * time.Minute

// CheckQueueWrite enforces QueueWriteLimit for one sender slot in the
// current epoch. Returns nil if allowed, ErrRateLimited if the sender has
// already queued its allotted write(s) this epoch.
func (l *Limiter) CheckQueueWrite(ctx context.Context, epoch, senderSlot uint64) error {
	if l == nil || l.redis == nil {
		// Redis unavailable or not configured: fail-open.
		return nil
	}

	key := fmt.Sprintf("ratelimit:queuewrite:%d:%d", epoch, senderSlot)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		// Fail-open on Redis errors to maintain availability.
		return nil
	}
	if count == 1 {
		l.redis.Expire(ctx, key, QueueWriteWindow)
	}
	if int(count) > QueueWriteLimit {
		log.Printf("[RateLimit] sender slot %d exceeded queue-write limit for epoch %d", senderSlot, epoch)
		return ErrRateLimited
	}
	return nil
}
