package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trakline/trakline/internal/protocol"
)

var (
	errSendBufferFull = errors.New("session send buffer full")
	errSessionClosed  = errors.New("session closed")
)

// clientSession tracks per-connection state and outbound delivery. Once the
// connect command binds it to a user it doubles as the realtime.Conn handle
// registered for that user.
type clientSession struct {
	id       string
	app      *App
	conn     net.Conn
	sendCh   chan protocol.Envelope
	closeMux sync.Once

	mu         sync.Mutex
	userID     string
	privileged bool
	closed     bool
}

func newClientSession(app *App, conn net.Conn) *clientSession {
	return &clientSession{
		id:     uuid.NewString(),
		app:    app,
		conn:   conn,
		sendCh: make(chan protocol.Envelope, 64),
	}
}

// send queues an envelope, blocking until there is room or ctx ends. Used for
// acks and direct command responses.
func (s *clientSession) send(ctx context.Context, env protocol.Envelope) error {
	if s.isClosed() {
		return errSessionClosed
	}
	select {
	case s.sendCh <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendEvent implements realtime.Conn. It never blocks: a full buffer drops the
// event for this one connection, matching fire-and-forget delivery. A session
// mid-teardown reports an error rather than accepting the event; the router
// can still hold a resolved handle after the registry entry is gone.
func (s *clientSession) SendEvent(event string, payload interface{}) error {
	if s.isClosed() {
		return errSessionClosed
	}
	env := protocol.Envelope{
		ID:        uuid.NewString(),
		Type:      protocol.MessageTypeEvent,
		Timestamp: time.Now(),
		Metadata:  map[string]interface{}{"event": event},
		Payload:   payload,
	}
	select {
	case s.sendCh <- env:
		return nil
	default:
		return errSendBufferFull
	}
}

func (s *clientSession) writeLoop(ctx context.Context, encoder *protocol.Encoder, writeTimeout time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-s.sendCh:
			if s.conn != nil && writeTimeout > 0 {
				if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
					return err
				}
			}
			if err := encoder.Encode(ctx, env); err != nil {
				return err
			}
		}
	}
}

// bindUser attaches the authenticated identity and registers this session as
// the user's live connection.
func (s *clientSession) bindUser(userID string, privileged bool) {
	s.mu.Lock()
	s.userID = userID
	s.privileged = privileged
	s.mu.Unlock()
	s.app.router.RegisterConnection(userID, s, privileged)
}

func (s *clientSession) boundUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *clientSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *clientSession) remoteAddr() string {
	if s.conn == nil {
		return ""
	}
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// close unregisters the bound user and stops accepting outbound envelopes.
// sendCh is never closed: a fanout that resolved this session before the
// unregister may still attempt a send, and that must surface as an error, not
// a panic. Anything left in the buffer is dropped with the connection.
// Unregistration is unconditional by design: a stale connection disconnecting
// can evict a newer one for the same user (known reconnect race, kept as
// documented).
func (s *clientSession) close() {
	s.closeMux.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if userID := s.boundUser(); userID != "" {
			s.app.router.UnregisterConnection(userID)
		}
	})
}
