// Package websocket is the gorilla/websocket transport. A Hub owns every live
// client and runs the single dispatch loop: inbound frames, disconnects and
// deferred tasks are all posted to it as closures, so the handler it drives
// never needs locks.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/scythe504/voting-rooms/internal"
	"github.com/scythe504/voting-rooms/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var ErrHubStopped = errors.New("hub stopped")

// Handler consumes inbound frames. Both methods run on the dispatch loop.
type Handler interface {
	Handle(connID string, raw []byte)
	Disconnect(connID string)
}

// ConnObserver is told how many clients are connected.
type ConnObserver interface {
	SetConnections(n int)
}

type Options struct {
	AllowedOrigins  []string
	SendBuffer      int
	MaxMessageBytes int64
	EventBuffer     int
}

func DefaultOptions() Options {
	return Options{
		AllowedOrigins:  []string{"http://localhost:5173"},
		SendBuffer:      64,
		MaxMessageBytes: 4096,
		EventBuffer:     512,
	}
}

type Hub struct {
	events   chan func()
	done     chan struct{}
	clients  map[string]*Client
	handler  Handler
	upgrader websocket.Upgrader
	opts     Options
	observer ConnObserver
	log      *logrus.Entry
}

type HubOption func(*Hub)

func WithLogger(log *logrus.Entry) HubOption {
	return func(h *Hub) { h.log = log }
}

func WithConnObserver(o ConnObserver) HubOption {
	return func(h *Hub) { h.observer = o }
}

func NewHub(opts Options, hubOpts ...HubOption) *Hub {
	defaults := DefaultOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaults.SendBuffer
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaults.MaxMessageBytes
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaults.EventBuffer
	}

	h := &Hub{
		events:  make(chan func(), opts.EventBuffer),
		done:    make(chan struct{}),
		clients: make(map[string]*Client),
		opts:    opts,
	}
	for _, opt := range hubOpts {
		opt(h)
	}
	if h.log == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		h.log = logrus.NewEntry(silent)
	}
	h.log = h.log.WithField("component", "hub")
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin allows same-host tools that send no Origin header, and browsers
// from the configured origins.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, "*") || slices.Contains(h.opts.AllowedOrigins, origin)
}

// =============================================================================
// DISPATCH LOOP
// =============================================================================

// Run executes posted tasks one at a time until ctx is cancelled. Every
// call into handler happens here.
func (h *Hub) Run(ctx context.Context, handler Handler) {
	h.handler = handler
	h.log.Info("[Run] hub is running")
	defer func() {
		close(h.done)
		for id, c := range h.clients {
			close(c.send)
			delete(h.clients, id)
		}
		h.log.Info("[Run] hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-h.events:
			task()
		}
	}
}

// Post queues task for the dispatch loop. It reports false once the hub has
// stopped.
func (h *Hub) Post(task func()) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.events <- task:
		return true
	case <-h.done:
		return false
	}
}

// Query runs fn on the dispatch loop and waits for it to finish. Use it to
// read handler state from other goroutines.
func (h *Hub) Query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !h.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrHubStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
}

// Send encodes msg and queues it for connID. It must be called on the
// dispatch loop. Unknown connections are ignored; a client whose buffer is
// full is dropped.
func (h *Hub) Send(connID string, msg internal.Message[any]) {
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.WithField("conn", connID).Errorf("[Send] failed to marshal %s: %v", msg.Type, err)
		return
	}
	select {
	case c.send <- payload:
	default:
		h.log.WithField("conn", connID).Warn("[Send] send buffer full, dropping client")
		// ReadPump sees the closed socket and runs the normal unregister path.
		_ = c.conn.Close()
	}
}

func (h *Hub) register(c *Client) {
	h.clients[c.id] = c
	h.log.WithField("conn", c.id).Infof("[register] client connected, clients=%d", len(h.clients))
	h.reportConnections()
}

func (h *Hub) unregister(c *Client) {
	if current, ok := h.clients[c.id]; !ok || current != c {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	if h.handler != nil {
		h.handler.Disconnect(c.id)
	}
	h.log.WithField("conn", c.id).Infof("[unregister] client disconnected, clients=%d", len(h.clients))
	h.reportConnections()
}

func (h *Hub) reportConnections() {
	if h.observer != nil {
		h.observer.SetConnections(len(h.clients))
	}
}

// =============================================================================
// HTTP ENTRY POINT
// =============================================================================

// ServeWS upgrades the request and attaches a new client to the hub. The
// connection id is server-assigned; clients never choose it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("[ServeWS] upgrade failed: %v", err)
		return
	}

	c := newClient(h, conn, utils.GenerateID())
	if !h.Post(func() { h.register(c) }) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	go c.WritePump()
	go c.ReadPump()
}
