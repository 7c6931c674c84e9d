package subscription

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"kanban-sync/domain"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return m, rc
}

func waitForSubscribers(t *testing.T, m *miniredis.Miniredis, channel string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.PubSubNumSub(channel)[channel] > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no subscriber on %s", channel)
}

func TestRelayToSubscriberKeepsOrder(t *testing.T) {
	m, rc := setupRedis(t)
	logger, _ := test.NewNullLogger()

	var mu sync.Mutex
	var got []domain.Event
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		SubscribeUpdates(ctx, logger, rc, "board", func(ev domain.Event) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		})
		close(done)
	}()
	waitForSubscribers(t, m, "board")

	relay := NewRelay(rc, "board", 16, logger)
	for seq := uint64(1); seq <= 5; seq++ {
		relay.Deliver(domain.Event{Seq: seq, Type: domain.TaskCreated, TaskID: "t"})
	}
	relay.Close()

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 5 relayed events, got %d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	for i, ev := range got {
		if ev.Seq != uint64(i+1) || ev.Type != domain.TaskCreated {
			t.Fatalf("unexpected event %d: %+v", i, ev)
		}
	}
	mu.Unlock()
	if published, dropped := relay.Stats(); published != 5 || dropped != 0 {
		t.Fatalf("unexpected relay stats %d/%d", published, dropped)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SubscribeUpdates did not exit")
	}
}

func TestSubscribeUpdatesSkipsMalformedPayload(t *testing.T) {
	m, rc := setupRedis(t)
	logger, hook := test.NewNullLogger()

	received := make(chan domain.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go SubscribeUpdates(ctx, logger, rc, "board", func(ev domain.Event) { received <- ev })
	waitForSubscribers(t, m, "board")

	m.Publish("board", "{broken")
	m.Publish("board", `{"seq":7,"type":"task:deleted","taskId":"x","time":1}`)

	select {
	case ev := <-received:
		if ev.Seq != 7 || ev.TaskID != "x" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("valid event not delivered")
	}
	if len(hook.AllEntries()) == 0 {
		t.Fatalf("expected malformed payload to be logged")
	}
}

func TestRelayDeliverAfterCloseIsIgnored(t *testing.T) {
	_, rc := setupRedis(t)
	logger, _ := test.NewNullLogger()
	relay := NewRelay(rc, "board", 1, logger)
	relay.Close()
	relay.Deliver(domain.Event{Seq: 1})
	relay.Close()
	if published, dropped := relay.Stats(); published != 0 || dropped != 0 {
		t.Fatalf("unexpected stats after close %d/%d", published, dropped)
	}
}
