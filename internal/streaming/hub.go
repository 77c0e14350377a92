package streaming

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// deliveryTimeout bounds how long a terminal event waits for a slow
// client before it is abandoned.
const deliveryTimeout = 100 * time.Millisecond

// pendingLimit caps how many events a feed holds for a client that has
// not attached yet. Oldest events are dropped first.
const pendingLimit = 256

// idleTimeout tears down a feed that never had, or no longer has, a
// client. Covers sessions whose stream endpoint is never opened.
const idleTimeout = 5 * time.Minute

// Client is one connected SSE consumer.
type Client struct {
	Events chan SSEEvent
}

// NewClient creates a client with a small buffer so one slow reader
// does not stall the feed.
func NewClient() *Client {
	return &Client{
		Events: make(chan SSEEvent, 16),
	}
}

// feed fans events out to the clients of a single import session.
// Events published before the first client attaches are held in pending
// and replayed on registration, so a caller may start broadcasting as
// soon as it mints a session ID.
type feed struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	pending  []SSEEvent
	events   chan SSEEvent
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  bool
}

func newFeed(ctx context.Context) *feed {
	ctx, cancel := context.WithCancel(ctx)
	return &feed{
		clients: make(map[*Client]bool),
		events:  make(chan SSEEvent, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// register attaches a client and replays everything buffered before it
// arrived, in publish order.
func (f *feed) register(client *Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		close(client.Events)
		return
	}
	f.clients[client] = true
	for _, event := range f.pending {
		f.deliver(client, event)
	}
	f.pending = nil
}

func (f *feed) unregister(client *Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[client]; ok {
		delete(f.clients, client)
		// stop() already closed every client channel.
		if !f.stopped {
			close(client.Events)
		}
	}
}

func (f *feed) clientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

func (f *feed) isStopped() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.stopped
}

// publish queues an event for fan-out. Terminal events (complete, error)
// wait up to deliveryTimeout; everything else is dropped when the queue
// is full.
func (f *feed) publish(event SSEEvent) {
	f.mu.RLock()
	if f.stopped {
		f.mu.RUnlock()
		return
	}
	f.mu.RUnlock()

	if isTerminal(event.Type) {
		select {
		case f.events <- event:
		case <-f.ctx.Done():
		case <-time.After(deliveryTimeout):
			slog.Error("failed to queue terminal event", "type", event.Type)
		}
		return
	}

	select {
	case f.events <- event:
	case <-f.ctx.Done():
	default:
		slog.Warn("event queue full, dropping event", "type", event.Type)
	}
}

func (f *feed) stop() {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.stopped = true
		f.pending = nil
		for client := range f.clients {
			close(client.Events)
			delete(f.clients, client)
		}
		f.mu.Unlock()
		f.cancel()
		close(f.events)
	})
}

// loop fans queued events out until the context ends, the feed sits
// idle with no clients, or a terminal event reaches a live client. A
// terminal event that had to be buffered keeps the feed alive so a
// late-attaching client still sees the full history; teardown then
// falls to unregistration or the idle timer.
func (f *feed) loop() {
	defer f.stop()
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-idle.C:
			if f.clientCount() == 0 {
				return
			}
			idle.Reset(idleTimeout)
		case event, ok := <-f.events:
			if !ok {
				return
			}
			delivered := f.fanOut(event)
			if isTerminal(event.Type) && delivered {
				// Give client writers a beat to drain before teardown.
				time.Sleep(deliveryTimeout)
				return
			}
			idle.Reset(idleTimeout)
		}
	}
}

// fanOut hands the event to every client, or buffers it when none are
// attached yet. Reports whether at least one client received it.
func (f *feed) fanOut(event SSEEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.clients) == 0 {
		f.pending = append(f.pending, event)
		if len(f.pending) > pendingLimit {
			f.pending = f.pending[len(f.pending)-pendingLimit:]
		}
		return false
	}

	for client := range f.clients {
		f.deliver(client, event)
	}
	return true
}

// deliver pushes one event to one client; callers hold f.mu.
func (f *feed) deliver(client *Client, event SSEEvent) {
	if isTerminal(event.Type) {
		select {
		case client.Events <- event:
		case <-time.After(deliveryTimeout):
			slog.Error("failed to deliver terminal event to client", "type", event.Type)
		}
		return
	}

	select {
	case client.Events <- event:
	default:
		slog.Warn("client channel full, skipping event", "type", event.Type)
	}
}

func isTerminal(typ EventType) bool {
	return typ == EventTypeComplete || typ == EventTypeError
}

// Hub routes events to per-session feeds. Broadcasting to a session
// that has no feed yet creates one, so progress events published before
// any stream client attaches are buffered rather than lost.
type Hub struct {
	mu    sync.RWMutex
	feeds map[string]*feed
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		feeds: make(map[string]*feed),
	}
}

// ensureFeed returns the session's live feed, creating one when it is
// missing or already stopped. The feed removes itself from the hub when
// its loop exits.
func (h *Hub) ensureFeed(ctx context.Context, sessionID string) *feed {
	h.mu.Lock()
	defer h.mu.Unlock()

	if f, exists := h.feeds[sessionID]; exists && !f.isStopped() {
		return f
	}

	f := newFeed(ctx)
	h.feeds[sessionID] = f
	go func() {
		f.loop()
		h.mu.Lock()
		if h.feeds[sessionID] == f {
			delete(h.feeds, sessionID)
		}
		h.mu.Unlock()
	}()
	slog.Info("created feed for import session", "session", sessionID)
	return f
}

// Register attaches a client to a session, creating its feed on first
// use. Events broadcast before registration are replayed to the client.
func (h *Hub) Register(ctx context.Context, sessionID string) *Client {
	client := NewClient()
	h.ensureFeed(ctx, sessionID).register(client)
	return client
}

// Unregister detaches a client; the last client tears the feed down.
func (h *Hub) Unregister(sessionID string, client *Client) {
	h.mu.RLock()
	f, exists := h.feeds[sessionID]
	h.mu.RUnlock()
	if !exists {
		return
	}

	f.unregister(client)

	if f.clientCount() == 0 {
		f.stop()
		h.mu.Lock()
		if h.feeds[sessionID] == f {
			delete(h.feeds, sessionID)
		}
		h.mu.Unlock()
		slog.Info("last client left, feed closed", "session", sessionID)
	}
}

// Broadcast sends an event to every client of a session, buffering it
// when no client has attached yet.
func (h *Hub) Broadcast(sessionID string, event SSEEvent) {
	h.ensureFeed(context.Background(), sessionID).publish(event)
}

// IsRunning reports whether a session feed exists.
func (h *Hub) IsRunning(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.feeds[sessionID]
	return exists
}
