package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rdychk/rdychk/internal/metrics"
	"github.com/rdychk/rdychk/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

// ChangeEvent describes one committed row change inside a group.
type ChangeEvent struct {
	Table    string    `json:"table"`
	Type     string    `json:"type"`
	GroupID  string    `json:"group_id"`
	RecordID string    `json:"record_id"`
	At       time.Time `json:"at"`
}

// Channel is the pub/sub channel subscribers of the group listen on.
func (e ChangeEvent) Channel() string {
	return "group:" + e.GroupID
}

// Notifier fans out change events after a mutation has been committed.
// Publishing is best effort and never fails the mutation.
type Notifier interface {
	Publish(ctx context.Context, event ChangeEvent)
	Close() error
}

// RedisNotifier publishes events as JSON on the group's channel.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, event ChangeEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Warn().Err(err).Msg("encode change event")
		return
	}
	if err := n.client.Publish(ctx, event.Channel(), payload).Err(); err != nil {
		metrics.Notifications.WithLabelValues("error").Inc()
		logger.Warn().Err(err).Str("channel", event.Channel()).Msg("publish change event")
		return
	}
	metrics.Notifications.WithLabelValues(metrics.ResultOK).Inc()
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// LogNotifier only logs events; used when Redis is disabled.
type LogNotifier struct{}

func (LogNotifier) Publish(_ context.Context, event ChangeEvent) {
	logger.Debug().
		Str("table", event.Table).
		Str("type", event.Type).
		Str("group_id", event.GroupID).
		Str("record_id", event.RecordID).
		Msg("change")
}

func (LogNotifier) Close() error { return nil }
