// Package activity keeps a short per-tavern history of activity events in
// Redis, fed by the Kafka activity consumer.
package activity

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/Gopher0727/Tavern/internal/pkg/kafka"
)

const keyPrefix = "tavern:activity:"

// Feed stores the newest events first in one Redis list per tavern.
type Feed struct {
	client redis.Cmdable
	size   int64
}

func NewFeed(client redis.Cmdable, size int64) *Feed {
	if size <= 0 {
		size = 50
	}
	return &Feed{client: client, size: size}
}

func key(tavernID string) string {
	return keyPrefix + tavernID
}

// Record prepends event to its tavern's list and trims the list. Events
// without a tavern are ignored.
func (f *Feed) Record(ctx context.Context, event kafka.Event) error {
	if event.TavernID == "" {
		return nil
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}

	pipe := f.client.TxPipeline()
	pipe.LPush(ctx, key(event.TavernID), raw)
	pipe.LTrim(ctx, key(event.TavernID), 0, f.size-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// Recent returns up to limit events for tavernID, newest first.
func (f *Feed) Recent(ctx context.Context, tavernID string, limit int64) ([]kafka.Event, error) {
	if limit <= 0 || limit > f.size {
		limit = f.size
	}
	raws, err := f.client.LRange(ctx, key(tavernID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read activity: %w", err)
	}

	events := make([]kafka.Event, 0, len(raws))
	for _, raw := range raws {
		var e kafka.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
