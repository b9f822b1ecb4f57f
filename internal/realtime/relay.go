package realtime

import "github.com/trakline/trakline/internal/protocol"

// Relay forwards call-signaling messages between two registered peers. Unlike
// plain fanout, an unreachable target is surfaced back to the caller so the
// client can abort the call attempt instead of ringing forever.
type Relay struct {
	router *Router
}

// NewRelay builds a relay on top of the router.
func NewRelay(router *Router) *Relay {
	return &Relay{router: router}
}

// Relay forwards data verbatim to toUserID, stamped with the sender's id. If
// the target has no live connection the caller receives a call:unavailable
// event and the target receives nothing. The reachability decision and the
// delivery share one registry lookup, so a target disconnecting mid-call still
// lands on exactly one of the two paths.
func (r *Relay) Relay(fromUserID, toUserID, event string, data interface{}) {
	delivered := r.router.TrySendToUser(toUserID, event, protocol.CallPayload{From: fromUserID, Data: data})
	if !delivered {
		r.router.SendToUser(fromUserID, protocol.EventCallUnavailable, protocol.CallUnavailablePayload{ToUserID: toUserID})
	}
}
