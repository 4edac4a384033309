package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/observ"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// fieldChangeID is the only field of a stream entry.
const fieldChangeID = "change_id"

// Stream is the consumer-group view of one Redis stream.
type Stream interface {
	// EnsureGroup creates the stream and the consumer group if missing.
	EnsureGroup(ctx context.Context) error
	Add(ctx context.Context, values map[string]any) (string, error)

	// ReadGroup returns new entries for this consumer, waiting up to
	// block. No entries and no error means the wait timed out.
	ReadGroup(ctx context.Context, count int64, block time.Duration) ([]redis.XMessage, error)
	Ack(ctx context.Context, ids ...string) error

	// AutoClaim takes over entries pending longer than minIdle, scanning
	// from start. It returns the cursor for the next call; "0-0" means the
	// scan wrapped around.
	AutoClaim(ctx context.Context, minIdle time.Duration, start string, count int64) ([]redis.XMessage, string, error)
}

// NewRedisClient connects to redisURL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisStream implements Stream with go-redis.
type RedisStream struct {
	client   redis.Cmdable
	stream   string
	group    string
	consumer string
}

func NewRedisStream(client redis.Cmdable, stream, group, consumer string) *RedisStream {
	return &RedisStream{client: client, stream: stream, group: group, consumer: consumer}
}

func (s *RedisStream) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", s.group, err)
	}
	return nil
}

func (s *RedisStream) Add(ctx context.Context, values map[string]any) (string, error) {
	return s.client.XAdd(ctx, &redis.XAddArgs{Stream: s.stream, Values: values}).Result()
}

func (s *RedisStream) ReadGroup(ctx context.Context, count int64, block time.Duration) ([]redis.XMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []redis.XMessage
	for _, st := range streams {
		out = append(out, st.Messages...)
	}
	return out, nil
}

func (s *RedisStream) Ack(ctx context.Context, ids ...string) error {
	return s.client.XAck(ctx, s.stream, s.group, ids...).Err()
}

func (s *RedisStream) AutoClaim(ctx context.Context, minIdle time.Duration, start string, count int64) ([]redis.XMessage, string, error) {
	msgs, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  minIdle,
		Start:    start,
		Count:    count,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, "0-0", nil
	}
	return msgs, next, err
}

// RedisDispatcher appends each committed change to the stream. The Worker
// does the processing.
type RedisDispatcher struct {
	stream Stream
	logger *zap.Logger
}

func NewRedisDispatcher(stream Stream, logger *zap.Logger) *RedisDispatcher {
	return &RedisDispatcher{stream: stream, logger: logger}
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, change *models.PanelChange) error {
	entryID, err := d.stream.Add(ctx, map[string]any{
		fieldChangeID: strconv.FormatInt(change.ID, 10),
	})
	if err != nil {
		observ.Dispatches.WithLabelValues(ModeRedis, observ.ResultError).Inc()
		return fmt.Errorf("enqueue change %d: %w", change.ID, err)
	}

	observ.Dispatches.WithLabelValues(ModeRedis, observ.ResultQueued).Inc()
	d.logger.Debug("change enqueued",
		zap.Int64("change_id", change.ID),
		zap.String("entry_id", entryID),
	)
	return nil
}
