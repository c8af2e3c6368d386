package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// StatusView is the poll-friendly projection of a report served by the
// status endpoint.
type StatusView struct {
	ReportID               string     `json:"report_id"`
	Status                 string     `json:"status"`
	Percent                int        `json:"percent"`
	Stage                  string     `json:"stage"`
	RetryCount             int        `json:"retry_count"`
	StartedAt              *time.Time `json:"started_at,omitempty"`
	EstimatedRemainingSecs float64    `json:"estimated_remaining_seconds"`
	ErrorKind              string     `json:"error_kind,omitempty"`
	ErrorMessage           string     `json:"error_message,omitempty"`
}

// SnapshotStore caches status views for cheap polling; the durable store
// remains the source of truth.
type SnapshotStore interface {
	Put(ctx context.Context, view StatusView) error
	Get(ctx context.Context, reportID string) (StatusView, bool)
}

// RedisStatusCache materializes the hot status snapshot into Redis on every
// state transition so pollers never touch Postgres on the fast path.
type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStatusCache(client *redis.Client, ttl time.Duration) *RedisStatusCache {
	return &RedisStatusCache{client: client, ttl: ttl}
}

func statusKey(reportID string) string {
	return fmt.Sprintf("coding:status:%s", reportID)
}

func (c *RedisStatusCache) Put(ctx context.Context, view StatusView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statusKey(view.ReportID), data, c.ttl).Err()
}

func (c *RedisStatusCache) Get(ctx context.Context, reportID string) (StatusView, bool) {
	data, err := c.client.Get(ctx, statusKey(reportID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Log.WithError(err).Debug("status snapshot read failed")
		}
		return StatusView{}, false
	}
	var view StatusView
	if err := json.Unmarshal(data, &view); err != nil {
		return StatusView{}, false
	}
	return view, true
}
