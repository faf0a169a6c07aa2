package gmail

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time operations for testability.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Operation is a Gmail API call kind, weighted by its quota cost.
type Operation int

const (
	OpProfile         Operation = iota // 1 unit
	OpLabelsList                       // 1 unit
	OpMessagesList                     // 5 units
	OpMessagesGet                      // 5 units
	OpMessagesGetRaw                   // 5 units
	OpMessagesModify                   // 5 units
	OpMessagesTrash                    // 5 units
	OpMessagesDelete                   // 10 units
)

// Cost returns the quota units charged for an operation.
func (o Operation) Cost() int {
	switch o {
	case OpMessagesList, OpMessagesGet, OpMessagesGetRaw, OpMessagesModify, OpMessagesTrash:
		return 5
	case OpMessagesDelete:
		return 10
	default:
		return 1
	}
}

// Bucket sizing follows Gmail's per-user quota of 250 units per second.
const (
	DefaultCapacity   = 250
	DefaultRefillRate = 250.0

	// MinQPS is the floor applied to the configured QPS.
	MinQPS = 0.1

	defaultQPS = 5.0
	minWait    = 10 * time.Millisecond
)

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RateLimiter is a token bucket that paces outbound Gmail calls. It only
// delays calls; rejected calls are never retried here. Safe for concurrent
// use.
type RateLimiter struct {
	mu         sync.Mutex
	clock      Clock
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a rate limiter for the given QPS. A qps of 5 maps
// to the full per-user quota; lower values scale the refill rate down.
func NewRateLimiter(qps float64) *RateLimiter {
	return newRateLimiter(realClock{}, qps)
}

func newRateLimiter(clk Clock, qps float64) *RateLimiter {
	if clk == nil {
		panic("gmail: RateLimiter requires a non-nil Clock")
	}
	qps = max(qps, MinQPS)
	scale := min(qps/defaultQPS, 1.0)

	return &RateLimiter{
		clock:      clk,
		tokens:     DefaultCapacity,
		capacity:   DefaultCapacity,
		refillRate: DefaultRefillRate * scale,
		lastRefill: clk.Now(),
	}
}

// reserve takes the operation's cost from the bucket if it can. Otherwise it
// returns how long to wait before trying again.
func (r *RateLimiter) reserve(op Operation) time.Duration {
	cost := float64(op.Cost())

	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= cost {
		r.tokens -= cost
		return 0
	}

	deficit := cost - r.tokens
	wait := time.Duration(deficit / r.refillRate * float64(time.Second))
	return max(wait, minWait)
}

// Acquire blocks until the operation's cost is available or ctx is done.
func (r *RateLimiter) Acquire(ctx context.Context, op Operation) error {
	for {
		wait := r.reserve(op)
		if wait == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(wait):
		}
	}
}

// refill credits tokens for the time since the last refill. Caller holds mu.
func (r *RateLimiter) refill() {
	now := r.clock.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.lastRefill = now
	r.tokens = min(r.tokens+elapsed*r.refillRate, r.capacity)
}

// Available returns the number of tokens currently in the bucket.
func (r *RateLimiter) Available() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.tokens
}
