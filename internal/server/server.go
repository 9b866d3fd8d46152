package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/scythe504/voting-rooms/internal"
	"github.com/scythe504/voting-rooms/internal/metrics"
	"github.com/scythe504/voting-rooms/internal/session"
	"github.com/scythe504/voting-rooms/internal/websocket"
	"github.com/sirupsen/logrus"
)

// History reads archived rounds. It is nil when the archive is disabled.
type History interface {
	RecentRounds(ctx context.Context, code string, limit int) ([]internal.RoundResult, error)
}

type Server struct {
	hub            *websocket.Hub
	store          *session.Store
	metrics        *metrics.Collector
	history        History
	allowedOrigins []string
	log            *logrus.Entry
}

type Option func(*Server)

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

func WithLogger(log *logrus.Entry) Option {
	return func(s *Server) { s.log = log }
}

// NewServer serves the hub's websocket endpoint and read-only HTTP views of
// the store. The store is only ever read through hub.Query.
func NewServer(hub *websocket.Hub, store *session.Store, opts ...Option) *Server {
	s := &Server{hub: hub, store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		s.log = logrus.NewEntry(silent)
	}
	s.log = s.log.WithField("component", "http")
	return s
}

// HTTPServer wraps the routes with the listen address. Websocket
// connections are hijacked, so only header and idle timeouts apply.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.RegisterRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}
}
