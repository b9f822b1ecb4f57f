package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trakline/trakline/internal/protocol"
)

func TestRouterPresenceSnapshots(t *testing.T) {
	router := NewRouter(NewRegistry(), nil)
	alice := &fakeConn{}
	bob := &fakeConn{}

	router.RegisterConnection("alice", alice, false)
	router.RegisterConnection("bob", bob, false)

	t.Run("every connection gets the full snapshot, changed one included", func(t *testing.T) {
		events := bob.named(protocol.EventPresence)
		require.NotEmpty(t, events)
		last := events[len(events)-1].payload.(protocol.PresencePayload)
		assert.Equal(t, []string{"alice", "bob"}, last.Users)

		aliceEvents := alice.named(protocol.EventPresence)
		require.Len(t, aliceEvents, 2, "one per registry mutation")
	})

	t.Run("unregister broadcasts the shrunk snapshot", func(t *testing.T) {
		router.UnregisterConnection("alice")
		events := bob.named(protocol.EventPresence)
		last := events[len(events)-1].payload.(protocol.PresencePayload)
		assert.Equal(t, []string{"bob"}, last.Users)
	})

	t.Run("privileged connect never shows in the snapshot", func(t *testing.T) {
		router.RegisterConnection("admin", &fakeConn{}, true)
		events := bob.named(protocol.EventPresence)
		last := events[len(events)-1].payload.(protocol.PresencePayload)
		assert.Equal(t, []string{"bob"}, last.Users)
	})
}

func TestRouterSendToUser(t *testing.T) {
	router := NewRouter(NewRegistry(), nil)
	bob := &fakeConn{}
	router.RegisterConnection("bob", bob, false)

	t.Run("delivers to a registered user", func(t *testing.T) {
		router.SendToUser("bob", "hello", "payload")
		require.Len(t, bob.named("hello"), 1)
		assert.Equal(t, "payload", bob.named("hello")[0].payload)
	})

	t.Run("offline user is a silent no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			router.SendToUser("nobody", "hello", "payload")
		})
	})

	t.Run("try-send reports the single lookup's outcome", func(t *testing.T) {
		assert.True(t, router.TrySendToUser("bob", "hello", "payload"))
		assert.False(t, router.TrySendToUser("nobody", "hello", "payload"))
	})
}

func TestRouterSendToGroup(t *testing.T) {
	router := NewRouter(NewRegistry(), nil)
	sender := &fakeConn{}
	member := &fakeConn{}
	router.RegisterConnection("sender", sender, false)
	router.RegisterConnection("member", member, false)
	// "offline" is in the member list but has no connection.

	router.SendToGroup([]string{"sender", "member", "offline"}, "group:event", 42)

	t.Run("online members receive, sender included", func(t *testing.T) {
		assert.Len(t, sender.named("group:event"), 1)
		assert.Len(t, member.named("group:event"), 1)
	})

	t.Run("a failing connection does not abort the fanout", func(t *testing.T) {
		broken := &fakeConn{fail: true}
		healthy := &fakeConn{}
		router.RegisterConnection("broken", broken, false)
		router.RegisterConnection("healthy", healthy, false)

		router.SendToGroup([]string{"broken", "healthy"}, "group:event", nil)
		assert.Len(t, healthy.named("group:event"), 1)
	})
}

func TestRouterBroadcastAll(t *testing.T) {
	router := NewRouter(NewRegistry(), nil)
	conns := []*fakeConn{{}, {}, {fail: false}}
	router.RegisterConnection("a", conns[0], false)
	router.RegisterConnection("b", conns[1], false)
	router.RegisterConnection("admin", conns[2], true)

	router.BroadcastAll("feed:event", "x")

	for i, conn := range conns {
		assert.Len(t, conn.named("feed:event"), 1, "conn %d", i)
	}
}
