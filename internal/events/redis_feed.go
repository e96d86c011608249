package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActivityEvent is one entry of the workspace activity feed.
type ActivityEvent struct {
	Kind           string    `json:"kind"`
	Workspace      string    `json:"workspace"`
	ApplicationIDs []int64   `json:"application_ids"`
	Stage          string    `json:"stage,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	At             time.Time `json:"at"`
}

// RedisFeed pushes activity events to a pub/sub channel and keeps the newest
// entries in a capped list for late readers.
type RedisFeed struct {
	client  *redis.Client
	channel string
	listKey string
	size    int64
}

// NewRedisFeed builds a feed keeping at most size entries.
func NewRedisFeed(client *redis.Client, size int) *RedisFeed {
	if size <= 0 {
		size = 500
	}
	return &RedisFeed{
		client:  client,
		channel: "pipeline:events",
		listKey: "pipeline:activity",
		size:    int64(size),
	}
}

// Publish records ev in the capped list and broadcasts it.
func (f *RedisFeed) Publish(ctx context.Context, ev ActivityEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	pipe := f.client.TxPipeline()
	pipe.LPush(ctx, f.listKey, raw)
	pipe.LTrim(ctx, f.listKey, 0, f.size-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish activity: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first. Entries that fail to decode are skipped.
func (f *RedisFeed) Recent(ctx context.Context, limit int64) ([]ActivityEvent, error) {
	if limit <= 0 || limit > f.size {
		limit = f.size
	}
	items, err := f.client.LRange(ctx, f.listKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}
	out := make([]ActivityEvent, 0, len(items))
	for _, item := range items {
		var ev ActivityEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			log.Printf("events: skipping malformed activity entry: %v", err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Subscribe streams events published after the subscription is confirmed. The channel
// closes, and the subscription is released, when ctx ends or the returned close func
// is called.
func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan ActivityEvent, func() error, error) {
	sub := f.client.Subscribe(ctx, f.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe activity: %w", err)
	}
	out := make(chan ActivityEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev ActivityEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, sub.Close, nil
}
