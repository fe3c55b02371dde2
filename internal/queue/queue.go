// Package queue is the scheduler's cross-process wake-up transport (§10.3).
// Postgres remains the single source of truth for job state; this package
// only carries a "something changed, go look" signal so that a second API
// replica's scheduler doesn't wait out a full poll interval before noticing
// work the first replica admitted. When REDIS_URL is unset, Wakeup degrades
// to an in-process channel, which is all a single-replica deployment needs.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const wakeupChannel = "podclip:scheduler:wakeup"

// Wakeup lets any number of producers signal the scheduler's pump loop
// without blocking, and lets the pump loop wait for either a signal or a
// fallback tick so it never sleeps through a crash-recovered job.
type Wakeup struct {
	redisClient *redis.Client // nil when running local-only
	local       chan struct{}
}

// New builds a Wakeup. redisURL may be empty, in which case only the local
// in-process channel is used — acceptable for the single-replica dev
// deployment the spec's §6.2 treats as the default.
func New(redisURL string) (*Wakeup, error) {
	w := &Wakeup{local: make(chan struct{}, 1)}
	if redisURL == "" {
		return w, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	w.redisClient = client
	return w, nil
}

func (w *Wakeup) Close() error {
	if w.redisClient != nil {
		return w.redisClient.Close()
	}
	return nil
}

// Signal wakes every scheduler replica's pump loop. Non-blocking: a producer
// that submits ten jobs in a row never stalls on this call.
func (w *Wakeup) Signal(ctx context.Context) {
	select {
	case w.local <- struct{}{}:
	default:
	}
	if w.redisClient != nil {
		// Best-effort: a missed pub/sub publish only costs this replica a
		// wait until the next fallback tick, never correctness.
		w.redisClient.Publish(ctx, wakeupChannel, "1")
	}
}

// Wait blocks until a signal arrives, the fallback interval elapses, or ctx
// is cancelled. The scheduler's pump loop always calls this in a loop, so a
// missed or duplicate wake-up is harmless — it just re-checks the queue.
func (w *Wakeup) Wait(ctx context.Context, fallback time.Duration) {
	timer := time.NewTimer(fallback)
	defer timer.Stop()

	if w.redisClient == nil {
		select {
		case <-w.local:
		case <-timer.C:
		case <-ctx.Done():
		}
		return
	}

	sub := w.redisClient.Subscribe(ctx, wakeupChannel)
	defer sub.Close()

	select {
	case <-w.local:
	case <-sub.Channel():
	case <-timer.C:
	case <-ctx.Done():
	}
}
