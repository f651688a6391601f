package redis

import (
	"context"
	"fmt"
	"log"
	"time"
	"unsafe"

	"statarb-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: roughly a day of 5s-cadence snapshots.
	snapshotStreamMaxLen = 20000
	defaultLatestTTL     = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer publishes analytics snapshots and signals to Redis.
type Writer struct {
	client *goredis.Client

	// OnWrite is called with the publish latency (optional, for metrics).
	OnWrite func(dur time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
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

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// PublishSnapshot performs pipelined writes for a completed analytics cycle:
// SET latest + XADD to the pair stream + PUBLISH for live subscribers, one
// network roundtrip.
func (w *Writer) PublishSnapshot(ctx context.Context, snap *model.Snapshot) error {
	jsonBytes := snap.JSON()
	// Zero-copy []byte→string (safe: jsonBytes is not mutated after this)
	jsonData := *(*string)(unsafe.Pointer(&jsonBytes))

	streamKey := snap.StreamKey()
	latestKey := streamKey + ":latest"
	pubsubCh := "pub:" + streamKey

	start := time.Now()
	pipe := w.client.Pipeline()

	// SET latest snapshot with TTL
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)

	// XADD to stream with auto-trimming
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: snapshotStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": jsonData,
		},
	})

	// PUBLISH to pubsub channel
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("snapshot pipeline for %s: %w", streamKey, err)
	}
	if w.OnWrite != nil {
		w.OnWrite(time.Since(start))
	}
	return nil
}

// PublishSignal pushes a signal transition to its own channel so consumers
// that only care about BUY/SELL flips need not parse full snapshots.
func (w *Writer) PublishSignal(ctx context.Context, snap *model.Snapshot, signal model.Signal) error {
	payload := fmt.Sprintf(`{"pair":"%s:%s","signal":"%s","computed_at":"%s"}`,
		snap.SymbolA, snap.SymbolB, signal, snap.ComputedAt.Format(time.RFC3339))

	pubsubCh := "pub:signal:" + snap.SymbolA + ":" + snap.SymbolB
	latestKey := "signal:" + snap.SymbolA + ":" + snap.SymbolB + ":latest"

	pipe := w.client.Pipeline()
	pipe.Set(ctx, latestKey, payload, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("signal pipeline: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
