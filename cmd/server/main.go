package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scythe504/voting-rooms/internal/archive"
	"github.com/scythe504/voting-rooms/internal/config"
	"github.com/scythe504/voting-rooms/internal/game"
	"github.com/scythe504/voting-rooms/internal/logging"
	"github.com/scythe504/voting-rooms/internal/metrics"
	"github.com/scythe504/voting-rooms/internal/server"
	"github.com/scythe504/voting-rooms/internal/session"
	"github.com/scythe504/voting-rooms/internal/websocket"
	"github.com/sirupsen/logrus"
)

func main() {
	addr := flag.String("addr", "", "listen address, overrides HTTP_ADDR")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	log := logging.New(cfg.LogLevel, cfg.IsProd())
	log.WithField("env", cfg.AppEnv).Info("Starting voting rooms server...")

	if err := run(cfg, log); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}
	log.Info("Server exited")
}

func run(cfg config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entry := logrus.NewEntry(log)
	collector := metrics.New()

	hub := websocket.NewHub(websocket.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		SendBuffer:      cfg.SendBuffer,
		MaxMessageBytes: cfg.MaxMessageBytes,
	}, websocket.WithLogger(entry), websocket.WithConnObserver(collector))

	// deferred tasks fire on timer goroutines and re-enter through the hub
	scheduler := session.NewScheduler(func(task func()) { hub.Post(task) }, nil)
	store := session.NewStore(session.WithScheduler(scheduler), session.WithLogger(entry))

	opts := game.DefaultOptions()
	opts.SimJoinDelay = cfg.SimJoinDelay
	opts.SimMaxJoins = cfg.SimMaxJoins
	opts.SimVoteDelay = cfg.SimVoteDelay
	routerOpts := []game.RouterOption{
		game.WithLogger(entry),
		game.WithObserver(collector),
		game.WithOptions(opts),
	}
	serverOpts := []server.Option{
		server.WithLogger(entry),
		server.WithMetrics(collector),
		server.WithAllowedOrigins(cfg.AllowedOrigins),
	}

	workers := &stages{log: entry}

	if cfg.ArchiveEnabled() {
		pg, err := archive.Open(ctx, cfg.DatabaseURL, entry)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		log.Info("Round archive enabled")

		// started before the hub so it stops after it and drains the last rounds
		queue := archive.NewQueue(pg, 256, entry)
		workers.start("archive queue", queue.Run)
		routerOpts = append(routerOpts, game.WithArchiver(queue))
		serverOpts = append(serverOpts, server.WithHistory(pg))
	} else {
		log.Info("DATABASE_URL not set, round archive disabled")
	}

	router := game.NewRouter(store, hub, routerOpts...)
	workers.start("hub", func(ctx context.Context) { hub.Run(ctx, router) })

	httpServer := server.NewServer(hub, store, serverOpts...).HTTPServer(cfg.HTTPAddr)
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			workers.stopAll()
			return err
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP shutdown: %v", err)
	}
	// before the deferred pg.Close so the queue can still write
	workers.stopAll()
	return nil
}

// stages are background workers that each own a cancel func. stopAll stops
// them newest first and waits for each before cancelling the next.
type stages struct {
	list []stage
	log  *logrus.Entry
}

type stage struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *stages) start(name string, run func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()
	s.list = append(s.list, stage{name: name, cancel: cancel, done: done})
}

func (s *stages) stopAll() {
	for i := len(s.list) - 1; i >= 0; i-- {
		st := s.list[i]
		st.cancel()
		<-st.done
		s.log.Debugf("[stopAll] %s stopped", st.name)
	}
	s.list = nil
}

