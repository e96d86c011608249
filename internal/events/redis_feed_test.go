package events

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newFeed(t *testing.T, size int) (*RedisFeed, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisFeed(client, size), mr
}

func TestRedisFeedKeepsNewestEntries(t *testing.T) {
	ctx := context.Background()
	feed, _ := newFeed(t, 2)

	for i := int64(1); i <= 3; i++ {
		if err := feed.Publish(ctx, ActivityEvent{Kind: "stage_changed", ApplicationIDs: []int64{i}}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	recent, err := feed.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected capped feed of 2, got %d", len(recent))
	}
	if recent[0].ApplicationIDs[0] != 3 || recent[1].ApplicationIDs[0] != 2 {
		t.Fatalf("expected newest first, got %+v", recent)
	}
	if recent[0].At.IsZero() {
		t.Fatalf("expected publish to stamp the event time")
	}
}

func TestRedisFeedSkipsMalformedEntries(t *testing.T) {
	ctx := context.Background()
	feed, mr := newFeed(t, 10)

	if err := feed.Publish(ctx, ActivityEvent{Kind: "bulk"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := mr.Lpush("pipeline:activity", "{not json"); err != nil {
		t.Fatalf("seed malformed: %v", err)
	}
	recent, err := feed.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Kind != "bulk" {
		t.Fatalf("expected only the valid entry, got %+v", recent)
	}
}

func TestRedisFeedSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	feed, _ := newFeed(t, 10)

	ch, closeSub, err := feed.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer closeSub()

	if err := feed.Publish(ctx, ActivityEvent{Kind: "stage_changed", Stage: "interview", ApplicationIDs: []int64{9}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-ch:
		if ev.Stage != "interview" || ev.ApplicationIDs[0] != 9 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for event")
	}
}

func TestRedisFeedSubscribeReleasedOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	feed, mr := newFeed(t, 10)

	ch, _, err := feed.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if n := mr.PubSubNumSub("pipeline:events")["pipeline:events"]; n != 1 {
		t.Fatalf("expected one subscriber, got %d", n)
	}
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}

	deadline := time.Now().Add(2 * time.Second)
	for mr.PubSubNumSub("pipeline:events")["pipeline:events"] != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription still held after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
