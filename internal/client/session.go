package client

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/trakline/trakline/internal/config"
	"github.com/trakline/trakline/internal/protocol"
)

// Session manages the client side of the framed TCP connection. Incoming
// envelopes are published on Incoming until the connection drops, after which
// the channel is closed.
type Session struct {
	cfg      config.ClientConfig
	conn     net.Conn
	encoder  *protocol.Encoder
	decoder  *protocol.Decoder
	cancelFn context.CancelFunc

	Incoming chan protocol.Envelope
}

// NewSession initializes a session with configuration.
func NewSession(cfg config.ClientConfig) *Session {
	return &Session{cfg: cfg, Incoming: make(chan protocol.Envelope, 32)}
}

// Connect dials the server and starts the read loop.
func (s *Session) Connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.ServerAddr)
	if err != nil {
		return err
	}
	s.conn = conn
	s.encoder = protocol.NewEncoder(conn)
	s.decoder = protocol.NewDecoder(conn, 0)
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	go s.readLoop(ctx)
	return nil
}

// Close terminates the session.
func (s *Session) Close() error {
	if s.cancelFn != nil {
		s.cancelFn()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Send dispatches an envelope to the server.
func (s *Session) Send(ctx context.Context, env protocol.Envelope) error {
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	env.Timestamp = time.Now()
	return s.encoder.Encode(ctx, env)
}

func (s *Session) readLoop(ctx context.Context) {
	defer close(s.Incoming)
	for {
		env, err := s.decoder.Decode(ctx)
		if err != nil {
			return
		}
		select {
		case s.Incoming <- env:
		case <-ctx.Done():
			return
		}
	}
}
