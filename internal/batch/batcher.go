// Package batch implements micro-batching for channels that support
// bulk submission. Notifications accumulate per recipient and flush on
// a size threshold or a max-wait timeout, whichever comes first.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voxhub/notify-engine/internal/adapter"
	"github.com/voxhub/notify-engine/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultMaxSize = 50
	DefaultMaxWait = 2 * time.Second
	DefaultCeiling = 1000

	tickDivisor = 4
)

type item struct {
	notification domain.Notification
	result       chan adapter.Result
}

type group struct {
	items  []item
	oldest time.Time
}

// Batcher accumulates batchable notifications for one channel adapter.
type Batcher struct {
	adapter adapter.Adapter
	logger  *zap.Logger
	maxSize int
	maxWait time.Duration
	ceiling int
	now     func() time.Time

	onFlush func(trigger string)

	mu     sync.Mutex
	groups map[string]*group
	depth  int
}

func NewBatcher(a adapter.Adapter, maxSize int, maxWait time.Duration, ceiling int, logger *zap.Logger) (*Batcher, error) {
	if a == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	if !a.SupportsBatch() {
		return nil, fmt.Errorf("adapter for channel %s does not support batching", a.Channel())
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Batcher{
		adapter: a,
		logger:  logger,
		maxSize: maxSize,
		maxWait: maxWait,
		ceiling: ceiling,
		now:     time.Now,
		groups:  make(map[string]*group),
	}, nil
}

// SetFlushHook installs a callback invoked on every flush with the
// trigger that caused it ("size", "age" or "shutdown"), used for
// metrics.
func (b *Batcher) SetFlushHook(fn func(trigger string)) {
	b.onFlush = fn
}

func (b *Batcher) notifyFlush(trigger string) {
	if b.onFlush != nil {
		b.onFlush(trigger)
	}
}

// Submit queues a notification and blocks until its flush completes,
// returning the per-item outcome. The second return value is false
// when the queue is over its hard ceiling: the caller must bypass
// batching and send individually to bound memory.
func (b *Batcher) Submit(ctx context.Context, n domain.Notification) (adapter.Result, bool) {
	it := item{notification: n, result: make(chan adapter.Result, 1)}

	b.mu.Lock()
	if b.depth >= b.ceiling {
		b.mu.Unlock()
		return adapter.Result{}, false
	}

	key := n.RecipientID
	g, ok := b.groups[key]
	if !ok {
		g = &group{oldest: b.now()}
		b.groups[key] = g
	}
	g.items = append(g.items, it)
	b.depth++

	var due []item
	if len(g.items) >= b.maxSize {
		due = g.items
		b.depth -= len(due)
		delete(b.groups, key)
	}
	b.mu.Unlock()

	if due != nil {
		b.notifyFlush("size")
		b.flush(ctx, due)
	}

	select {
	case res := <-it.result:
		return res, true
	case <-ctx.Done():
		// The item stays queued; a later flush completes into the
		// buffered channel without blocking.
		return adapter.TransientFailure("dispatch context canceled while batched"), true
	}
}

// Start drives age-based flushes until context cancellation.
func (b *Batcher) Start(ctx context.Context) error {
	interval := b.maxWait / tickDivisor
	if interval <= 0 {
		interval = b.maxWait
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.drain(ctx)
			return nil
		case <-ticker.C:
			for _, due := range b.takeAged() {
				b.notifyFlush("age")
				b.flush(ctx, due)
			}
		}
	}
}

// Depth returns the number of queued notifications.
func (b *Batcher) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.depth
}

func (b *Batcher) takeAged() [][]item {
	cutoff := b.now().Add(-b.maxWait)

	b.mu.Lock()
	defer b.mu.Unlock()

	var due [][]item
	for key, g := range b.groups {
		if g.oldest.Before(cutoff) || g.oldest.Equal(cutoff) {
			due = append(due, g.items)
			b.depth -= len(g.items)
			delete(b.groups, key)
		}
	}
	return due
}

func (b *Batcher) drain(ctx context.Context) {
	b.mu.Lock()
	var all [][]item
	for key, g := range b.groups {
		all = append(all, g.items)
		b.depth -= len(g.items)
		delete(b.groups, key)
	}
	b.mu.Unlock()

	for _, due := range all {
		b.notifyFlush("shutdown")
		b.flush(ctx, due)
	}
}

// flush converts one queued group into a single bulk call and
// decomposes the per-item outcomes back to the waiters. A
// non-decomposable bulk failure falls back to individual sends so a
// partial outage never reports a uniform failure for every item.
func (b *Batcher) flush(ctx context.Context, items []item) {
	notifications := make([]domain.Notification, len(items))
	for i := range items {
		notifications[i] = items[i].notification
	}

	results, err := b.adapter.SendBatch(ctx, notifications)
	if err != nil || len(results) != len(items) {
		if err != nil {
			b.logger.Warn("bulk send not decomposable, falling back to individual sends",
				zap.String("channel", b.adapter.Channel().String()),
				zap.Int("size", len(items)),
				zap.Error(err),
			)
		}
		for i := range items {
			items[i].result <- b.adapter.Send(ctx, items[i].notification)
		}
		return
	}

	for i := range items {
		items[i].result <- results[i]
	}
}
