package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeBroker struct {
	mu         sync.Mutex
	published  [][]byte
	publishErr error
	messages   chan []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{messages: make(chan []byte, 16)}
}

func (b *fakeBroker) Publish(ctx context.Context, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, payload)
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context) (<-chan []byte, error) {
	return b.messages, nil
}

func (b *fakeBroker) Close() error { return nil }

func TestBridgePublishSetsOrigin(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("node-a", zap.NewNop())
	broker := newFakeBroker()
	bridge, err := NewBridge(broker, registry, zap.NewNop())
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}

	err = bridge.Publish(context.Background(), Envelope{
		NotificationID: "n1",
		RecipientID:    "user-1",
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(broker.published) != 1 {
		t.Fatalf("published = %d messages, want 1", len(broker.published))
	}
	var env Envelope
	if err := json.Unmarshal(broker.published[0], &env); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v", err)
	}
	if env.Origin != "node-a" {
		t.Fatalf("origin = %q, want node-a", env.Origin)
	}
}

func TestBridgePublishBrokerDown(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("node-a", zap.NewNop())
	broker := newFakeBroker()
	broker.publishErr = errors.New("connection refused")
	bridge, _ := NewBridge(broker, registry, zap.NewNop())

	if err := bridge.Publish(context.Background(), Envelope{RecipientID: "user-1"}); err == nil {
		t.Fatal("expected error when broker is down")
	}
}

func TestBridgeDeliversForeignEnvelopes(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("node-a", zap.NewNop())
	conn := &fakeConn{}
	registry.Register("user-1", conn)

	broker := newFakeBroker()
	bridge, _ := NewBridge(broker, registry, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Start(ctx) }()

	foreign, _ := json.Marshal(Envelope{
		NotificationID: "n1",
		RecipientID:    "user-1",
		Origin:         "node-b",
	})
	own, _ := json.Marshal(Envelope{
		NotificationID: "n2",
		RecipientID:    "user-1",
		Origin:         "node-a",
	})
	unknown, _ := json.Marshal(Envelope{
		NotificationID: "n3",
		RecipientID:    "stranger",
		Origin:         "node-b",
	})
	broker.messages <- foreign
	broker.messages <- own
	broker.messages <- unknown

	deadline := time.After(2 * time.Second)
	for conn.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for bridged delivery")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Own-origin and unknown-recipient envelopes are skipped.
	if conn.count() != 1 {
		t.Fatalf("delivered = %d messages, want 1", conn.count())
	}
}
