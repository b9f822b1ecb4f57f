package server

import (
	"context"
	"strings"

	"github.com/trakline/trakline/internal/auth"
	"github.com/trakline/trakline/internal/protocol"
)

var callEvents = map[string]string{
	"call_request":   protocol.EventCallRequest,
	"call_answer":    protocol.EventCallAnswer,
	"call_reject":    protocol.EventCallReject,
	"call_end":       protocol.EventCallEnd,
	"call_candidate": protocol.EventCallCandidate,
}

// handleCall relays session-negotiation messages between two peers. The relay
// keeps no call state; it either reaches the currently registered peer
// connection or bounces call:unavailable back to the caller.
func (a *App) handleCall(ctx context.Context, session *clientSession, env protocol.Envelope, claims *auth.Claims, action string) error {
	event, ok := callEvents[action]
	if !ok {
		a.sendAck(ctx, session, env.ID, ackStatusError, "unsupported command")
		return nil
	}

	var req protocol.CallRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "invalid call payload")
		return nil
	}
	toUserID := strings.TrimSpace(req.ToUserID)
	if toUserID == "" {
		a.sendAck(ctx, session, env.ID, ackStatusError, "target required")
		return nil
	}

	a.sendAck(ctx, session, env.ID, ackStatusOK, "")
	a.relay.Relay(claims.UserID, toUserID, event, req.Data)
	return nil
}
