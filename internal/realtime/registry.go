// Package realtime tracks live in-app connections on the local process
// and bridges delivery across processes through a shared broker.
package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Conn is the write side of a realtime connection. The websocket
// transport satisfies it directly.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Handle is an ephemeral reference to one live connection. It is owned
// exclusively by the registry of the process that accepted it and is
// never persisted; reconnects create a fresh handle.
type Handle struct {
	ID          string
	RecipientID string
	Node        string

	conn Conn

	mu       sync.Mutex
	lastSeen time.Time
}

// Touch refreshes the handle's liveness, typically on a transport ping.
func (h *Handle) Touch(now time.Time) {
	h.mu.Lock()
	h.lastSeen = now
	h.mu.Unlock()
}

func (h *Handle) seen() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSeen
}

// Registry maps recipient ids to live local connection handles.
type Registry struct {
	node   string
	logger *zap.Logger
	now    func() time.Time

	mu          sync.RWMutex
	byRecipient map[string]map[*Handle]struct{}
}

func NewRegistry(node string, logger *zap.Logger) *Registry {
	if node == "" {
		node = uuid.NewString()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		node:        node,
		logger:      logger,
		now:         time.Now,
		byRecipient: make(map[string]map[*Handle]struct{}),
	}
}

// Node identifies this process in broker envelopes.
func (r *Registry) Node() string { return r.node }

// Register attaches a connection for a recipient and returns its handle.
func (r *Registry) Register(recipientID string, conn Conn) *Handle {
	h := &Handle{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Node:        r.node,
		conn:        conn,
		lastSeen:    r.now(),
	}

	r.mu.Lock()
	handles, ok := r.byRecipient[recipientID]
	if !ok {
		handles = make(map[*Handle]struct{})
		r.byRecipient[recipientID] = handles
	}
	handles[h] = struct{}{}
	r.mu.Unlock()

	r.logger.Debug("realtime connection registered",
		zap.String("recipientId", recipientID),
		zap.String("handleId", h.ID),
	)
	return h
}

// Unregister detaches a handle. Safe to call more than once.
func (r *Registry) Unregister(h *Handle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	if handles, ok := r.byRecipient[h.RecipientID]; ok {
		delete(handles, h)
		if len(handles) == 0 {
			delete(r.byRecipient, h.RecipientID)
		}
	}
	r.mu.Unlock()
}

// DeliverLocal writes msg to every live local connection of the
// recipient and returns how many received it. A snapshot of matching
// handles is taken under the lock; the potentially slow writes happen
// outside it. Handles whose write fails are evicted.
func (r *Registry) DeliverLocal(recipientID string, msg any) int {
	r.mu.RLock()
	handles := make([]*Handle, 0, len(r.byRecipient[recipientID]))
	for h := range r.byRecipient[recipientID] {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, h := range handles {
		if err := h.conn.WriteJSON(msg); err != nil {
			r.logger.Warn("evicting broken realtime connection",
				zap.String("recipientId", recipientID),
				zap.String("handleId", h.ID),
				zap.Error(err),
			)
			r.Unregister(h)
			_ = h.conn.Close()
			continue
		}
		h.Touch(r.now())
		delivered++
	}

	return delivered
}

// HasLocal reports whether the recipient has at least one live local handle.
func (r *Registry) HasLocal(recipientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRecipient[recipientID]) > 0
}

// Len returns the total number of registered handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, handles := range r.byRecipient {
		total += len(handles)
	}
	return total
}

// SweepStale evicts handles not seen within ttl and returns the count.
// Driven by the scheduler tick alongside the other periodic scans.
func (r *Registry) SweepStale(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	r.mu.RLock()
	var stale []*Handle
	for _, handles := range r.byRecipient {
		for h := range handles {
			if h.seen().Before(cutoff) {
				stale = append(stale, h)
			}
		}
	}
	r.mu.RUnlock()

	for _, h := range stale {
		r.Unregister(h)
		_ = h.conn.Close()
	}

	if len(stale) > 0 {
		r.logger.Info("swept stale realtime connections", zap.Int("count", len(stale)))
	}
	return len(stale)
}
