package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/trakline/trakline/internal/config"
	"github.com/trakline/trakline/internal/media"
	"github.com/trakline/trakline/internal/protocol"
	"github.com/trakline/trakline/internal/realtime"
	"github.com/trakline/trakline/internal/storage"
)

// App coordinates network listeners, session lifecycle, and realtime routing.
type App struct {
	cfg       config.ServerConfig
	store     storage.Store
	media     media.Store
	router    *realtime.Router
	relay     *realtime.Relay
	tracker   *realtime.Tracker
	log       *slog.Logger
	listener  net.Listener
	closeOnce sync.Once
}

// NewApp constructs a server instance using the provided dependencies.
func NewApp(cfg config.ServerConfig, store storage.Store, mediaStore media.Store, log *slog.Logger) *App {
	if log == nil {
		log = slog.Default()
	}
	router := realtime.NewRouter(realtime.NewRegistry(), log)
	return &App{
		cfg:     cfg,
		store:   store,
		media:   mediaStore,
		router:  router,
		relay:   realtime.NewRelay(router),
		tracker: realtime.NewTracker(store, router, log),
		log:     log,
	}
}

// Router exposes the realtime router, mainly for the sweepers and tests.
func (a *App) Router() *realtime.Router {
	return a.router
}

// Run starts accepting connections until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	listener, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	a.listener = listener
	a.log.Info("listening", "addr", a.cfg.ListenAddr)

	errCh := make(chan error, 1)

	go func() {
		<-ctx.Done()
		a.closeOnce.Do(func() {
			_ = a.listener.Close()
		})
	}()

	go func() {
		for {
			conn, err := a.listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					errCh <- nil
					return
				}
				errCh <- err
				return
			}
			go a.handleConnection(ctx, conn)
		}
	}()

	return <-errCh
}

func (a *App) handleConnection(parentCtx context.Context, conn net.Conn) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	session := newClientSession(a, conn)
	defer session.close()

	encoder := protocol.NewEncoder(conn)
	decoder := protocol.NewDecoder(conn, a.cfg.MaxFrameBytes)

	go func() {
		if err := session.writeLoop(ctx, encoder, a.cfg.WriteTimeout); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Debug("write loop ended", "remote", session.remoteAddr(), "err", err)
		}
		cancel()
	}()

	for {
		if a.cfg.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout)); err != nil {
				a.log.Debug("set read deadline", "err", err)
				return
			}
		}
		env, err := decoder.Decode(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			a.log.Debug("decode", "remote", session.remoteAddr(), "err", err)
			return
		}

		// Envelopes are handled in arrival order so each connection observes
		// its own sends FIFO.
		if err := a.routeEnvelope(ctx, session, env); err != nil {
			a.log.Warn("envelope handling failed", "type", env.Type, "remote", session.remoteAddr(), "err", err)
		}
	}
}

func (a *App) routeEnvelope(ctx context.Context, session *clientSession, env protocol.Envelope) error {
	switch env.Type {
	case protocol.MessageTypeAuthRequest:
		return a.handleAuth(ctx, session, env)
	case protocol.MessageTypeCommand:
		return a.handleCommand(ctx, session, env)
	default:
		a.log.Debug("unhandled envelope type", "type", env.Type)
		return nil
	}
}
