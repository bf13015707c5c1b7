package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisQueue implements Queue on a Redis stream.
type RedisQueue struct {
	c      redis.UniversalClient
	stream string
}

// NewRedisQueue builds a queue publishing to the given stream.
func NewRedisQueue(c redis.UniversalClient, stream string) *RedisQueue {
	return &RedisQueue{c: c, stream: stream}
}

// Submit implements Queue. The payload is serialized once; routing metadata
// stays in top-level stream fields.
func (q *RedisQueue) Submit(ctx context.Context, job Job) (string, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return "", fmt.Errorf("queue: encode payload: %w", err)
	}
	id, err := q.c.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			"request_id": job.RequestID,
			"profile_id": strconv.FormatInt(job.ProfileID, 10),
			"plan_type":  string(job.PlanType),
			"action":     string(job.Action),
			"language":   job.Language,
			"cost":       strconv.Itoa(job.Cost),
			"payload":    string(payload),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("queue: submit %s: %w", job.RequestID, err)
	}
	jobsSubmitted.WithLabelValues(string(job.PlanType), string(job.Action)).Inc()
	return id, nil
}

// Continuation handles one dead-lettered job.
type Continuation func(ctx context.Context, dl DeadLetter)

// Watcher consumes the dead-letter stream with a consumer group and invokes
// the registered continuation for each entry. Entries are acknowledged after
// the continuation returns; the continuation must therefore be idempotent
// (the delivery tracker's MarkFailed already is).
type Watcher struct {
	c        redis.UniversalClient
	stream   string
	group    string
	consumer string
	onDead   Continuation

	// block bounds each XREADGROUP wait so shutdown is responsive.
	block time.Duration
}

// NewWatcher builds a dead-letter watcher. The continuation is required.
func NewWatcher(c redis.UniversalClient, stream, group, consumer string, onDead Continuation) *Watcher {
	return &Watcher{
		c:        c,
		stream:   stream,
		group:    group,
		consumer: consumer,
		onDead:   onDead,
		block:    5 * time.Second,
	}
}

// Run consumes the dead-letter stream until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	if err := w.ensureGroup(ctx); err != nil {
		log.Error().Err(err).Str("stream", w.stream).Msg("dead-letter group setup failed")
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}
		streams, err := w.c.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.group,
			Consumer: w.consumer,
			Streams:  []string{w.stream, ">"},
			Count:    16,
			Block:    w.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("stream", w.stream).Msg("dead-letter read failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.block):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				w.handle(ctx, msg)
				if err := w.c.XAck(ctx, w.stream, w.group, msg.ID).Err(); err != nil {
					log.Warn().Err(err).Str("entry", msg.ID).Msg("dead-letter ack failed")
				}
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, msg redis.XMessage) {
	dl := DeadLetter{
		RequestID: asString(msg.Values["request_id"]),
		Reason:    asString(msg.Values["reason"]),
	}
	if pid := asString(msg.Values["profile_id"]); pid != "" {
		dl.ProfileID, _ = strconv.ParseInt(pid, 10, 64)
	}
	if dl.RequestID == "" {
		log.Warn().Str("entry", msg.ID).Msg("dead-letter entry without request_id")
		return
	}
	if dl.Reason == "" {
		dl.Reason = "worker_failed"
	}
	deadLetters.Inc()
	w.onDead(ctx, dl)
}

func (w *Watcher) ensureGroup(ctx context.Context) error {
	err := w.c.XGroupCreateMkStream(ctx, w.stream, w.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
