// Package redis publishes live engine state (latest snapshots, open
// positions, risk state) to Redis for external dashboards. Writes are
// best-effort behind a circuit breaker; the engine never blocks on Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"portfolio-riskv1/internal/model"
)

const (
	keyPrefixSnapshot = "risk:snapshot:" // + asset
	keyRiskState      = "risk:state"
	keyPositions      = "risk:positions"

	snapshotTTL = 30 * time.Minute
	writeTTL    = 5 * time.Second // per-write deadline
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer publishes engine state to Redis.
type Writer struct {
	client  *goredis.Client
	breaker *CircuitBreaker
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// BreakerState returns the publish-path circuit breaker state.
func (w *Writer) BreakerState() State { return w.breaker.CurrentState() }

// New creates a Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	breaker := NewCircuitBreaker(5, 10*time.Second)
	breaker.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client, breaker: breaker}, nil
}

func (w *Writer) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return w.breaker.Execute(func() error {
		wctx, cancel := context.WithTimeout(ctx, writeTTL)
		defer cancel()
		return w.client.Set(wctx, key, value, ttl).Err()
	})
}

// WriteSnapshot publishes the latest market snapshot for an asset.
func (w *Writer) WriteSnapshot(ctx context.Context, snap model.MarketSnapshot) error {
	return w.set(ctx, keyPrefixSnapshot+snap.Asset, snap.JSON(), snapshotTTL)
}

// WriteRiskState publishes the current risk assessment.
func (w *Writer) WriteRiskState(ctx context.Context, state model.RiskState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redis: marshal risk state: %w", err)
	}
	return w.set(ctx, keyRiskState, data, 0)
}

// WritePositions publishes the current open position set.
func (w *Writer) WritePositions(ctx context.Context, positions []model.Position) error {
	data, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("redis: marshal positions: %w", err)
	}
	return w.set(ctx, keyPositions, data, 0)
}

// RunSnapshots consumes snapshots from snapCh and publishes them until
// ctx is cancelled or the channel closes. Breaker-rejected writes are
// dropped silently; other failures are logged.
func (w *Writer) RunSnapshots(ctx context.Context, snapCh <-chan model.MarketSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapCh:
			if !ok {
				return
			}
			if err := w.WriteSnapshot(ctx, snap); err != nil && err != ErrCircuitOpen {
				log.Printf("[redis] snapshot write failed: %v", err)
			}
		}
	}
}

// Close releases the Redis connection.
func (w *Writer) Close() error {
	return w.client.Close()
}
