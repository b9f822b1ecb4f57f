package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trakline/trakline/internal/protocol"
)

func TestRelay(t *testing.T) {
	router := NewRouter(NewRegistry(), nil)
	relay := NewRelay(router)
	caller := &fakeConn{}
	callee := &fakeConn{}
	router.RegisterConnection("caller", caller, false)
	router.RegisterConnection("callee", callee, false)

	t.Run("forwards payload stamped with the sender", func(t *testing.T) {
		relay.Relay("caller", "callee", protocol.EventCallRequest, map[string]string{"sdp": "offer"})

		events := callee.named(protocol.EventCallRequest)
		require.Len(t, events, 1)
		payload := events[0].payload.(protocol.CallPayload)
		assert.Equal(t, "caller", payload.From)
		assert.Equal(t, map[string]string{"sdp": "offer"}, payload.Data)
	})

	t.Run("unreachable target bounces to the caller", func(t *testing.T) {
		relay.Relay("caller", "ghost", protocol.EventCallRequest, nil)

		events := caller.named(protocol.EventCallUnavailable)
		require.Len(t, events, 1)
		payload := events[0].payload.(protocol.CallUnavailablePayload)
		assert.Equal(t, "ghost", payload.ToUserID)
		assert.Empty(t, callee.named(protocol.EventCallUnavailable), "callee hears nothing about other calls")
	})
}
