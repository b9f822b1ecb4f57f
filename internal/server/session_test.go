package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trakline/trakline/internal/config"
	"github.com/trakline/trakline/internal/protocol"
)

func TestSessionSendAfterClose(t *testing.T) {
	app := NewApp(config.ServerConfig{}, nil, nil, nil)
	session := newClientSession(app, nil)
	session.bindUser("alice", false)

	require.NoError(t, session.SendEvent(protocol.EventPresence, nil))

	session.close()

	// A fanout can resolve the connection just before the disconnect
	// unregisters it; the late delivery must fail cleanly, never panic.
	assert.NotPanics(t, func() {
		err := session.SendEvent(protocol.EventMessageNew, nil)
		assert.ErrorIs(t, err, errSessionClosed)
	})
	assert.ErrorIs(t, session.send(context.Background(), protocol.Envelope{}), errSessionClosed)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	app := NewApp(config.ServerConfig{}, nil, nil, nil)
	session := newClientSession(app, nil)
	session.bindUser("alice", false)

	assert.NotPanics(t, func() {
		session.close()
		session.close()
	})
}

func TestSessionSendEventBufferFull(t *testing.T) {
	app := NewApp(config.ServerConfig{}, nil, nil, nil)
	session := newClientSession(app, nil)

	var err error
	for i := 0; i < cap(session.sendCh)+1; i++ {
		err = session.SendEvent(protocol.EventPresence, nil)
	}
	assert.ErrorIs(t, err, errSendBufferFull)
}
