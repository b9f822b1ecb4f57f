package realtime

import (
	"log/slog"

	"github.com/trakline/trakline/internal/protocol"
)

// Router fans events out to live connections. Every send is fire-and-forget:
// there is no queue, no retry and no acknowledgement — the durable record is
// the source of truth, clients reconcile on reconnect.
type Router struct {
	registry *Registry
	log      *slog.Logger
}

// NewRouter wires a router to the given registry.
func NewRouter(registry *Registry, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{registry: registry, log: log}
}

// RegisterConnection adds the connection to the registry and broadcasts a
// fresh presence snapshot to everyone, the new connection included.
func (r *Router) RegisterConnection(userID string, conn Conn, privileged bool) {
	r.registry.Register(userID, conn, privileged)
	r.broadcastPresence()
}

// UnregisterConnection drops the registry entry for userID and broadcasts the
// updated presence snapshot.
func (r *Router) UnregisterConnection(userID string) {
	r.registry.Unregister(userID)
	r.broadcastPresence()
}

// SendToUser delivers one event to userID's connection, silently doing nothing
// when the user is offline.
func (r *Router) SendToUser(userID, event string, payload interface{}) {
	r.TrySendToUser(userID, event, payload)
}

// TrySendToUser behaves like SendToUser but reports whether a live connection
// was found. The single lookup is the decision point: callers that branch on
// the result must not re-resolve, or a disconnect in between loses both paths.
func (r *Router) TrySendToUser(userID, event string, payload interface{}) bool {
	conn, ok := r.registry.Resolve(userID)
	if !ok {
		return false
	}
	r.deliver(conn, userID, event, payload)
	return true
}

// SendToGroup delivers the event to every member with a live connection.
// Callers pass the member list read fresh from the group record at send time;
// the sender is expected to be part of it so their own client receives the
// authoritative server copy.
func (r *Router) SendToGroup(memberIDs []string, event string, payload interface{}) {
	for _, id := range memberIDs {
		conn, ok := r.registry.Resolve(id)
		if !ok {
			continue
		}
		r.deliver(conn, id, event, payload)
	}
}

// BroadcastAll delivers the event to every registered connection.
func (r *Router) BroadcastAll(event string, payload interface{}) {
	for _, conn := range r.registry.connections() {
		r.deliver(conn, "", event, payload)
	}
}

func (r *Router) broadcastPresence() {
	payload := protocol.PresencePayload{Users: r.registry.VisibleUserIDs()}
	r.BroadcastAll(protocol.EventPresence, payload)
}

// deliver isolates one send attempt; a failing connection never aborts the
// rest of a fanout.
func (r *Router) deliver(conn Conn, userID, event string, payload interface{}) {
	if err := conn.SendEvent(event, payload); err != nil {
		r.log.Debug("event delivery failed", "event", event, "user", userID, "err", err)
	}
}
