package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventBus decouples the session service from its asynchronous side
// effects: queueing completions for scoring and publishing live monitor
// events. Tests inject a recording fake.
type EventBus interface {
	Enqueue(ctx context.Context, queue string, payload interface{}) error
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// ScorePayload is the scoring queue message produced on session closure.
type ScorePayload struct {
	AnnotatorID int    `json:"annotator_id"`
	ExamID      int    `json:"exam_id"`
	ExamCode    string `json:"exam_code"`
	ImageID     int    `json:"image_id"`
}

// MonitorEvent is one live session event for the admin monitor stream.
type MonitorEvent struct {
	Kind        string    `json:"kind"` // session_started | session_closed
	AnnotatorID int       `json:"annotator_id"`
	ExternalID  string    `json:"external_id"`
	ExamCode    string    `json:"exam_code"`
	ImageID     int       `json:"image_id"`
	Status      string    `json:"status,omitempty"`
	At          time.Time `json:"at"`
}

// RedisEventBus is the production EventBus on top of Redis lists and
// PubSub.
type RedisEventBus struct {
	rdb *redis.Client
}

// NewRedisEventBus creates a RedisEventBus.
func NewRedisEventBus(rdb *redis.Client) *RedisEventBus {
	return &RedisEventBus{rdb: rdb}
}

// Enqueue pushes a JSON payload onto a worker queue.
func (b *RedisEventBus) Enqueue(ctx context.Context, queue string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal queue payload: %w", err)
	}
	return b.rdb.RPush(ctx, queue, raw).Err()
}

// Publish fans a JSON payload out to a PubSub channel.
func (b *RedisEventBus) Publish(ctx context.Context, channel string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal publish payload: %w", err)
	}
	return b.rdb.Publish(ctx, channel, raw).Err()
}
