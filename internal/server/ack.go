package server

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trakline/trakline/internal/protocol"
)

const (
	ackStatusOK    = "ok"
	ackStatusError = "error"
)

func (a *App) sendAck(ctx context.Context, session *clientSession, referenceID, status, reason string) {
	a.sendAckCount(ctx, session, referenceID, status, reason, 0)
}

func (a *App) sendAckCount(ctx context.Context, session *clientSession, referenceID, status, reason string, count int64) {
	ack := protocol.Envelope{
		ID:        uuid.NewString(),
		Type:      protocol.MessageTypeAck,
		Timestamp: time.Now(),
		Payload: protocol.AckPayload{
			ReferenceID: referenceID,
			Status:      status,
			Reason:      reason,
			Count:       count,
		},
	}
	if err := session.send(ctx, ack); err != nil {
		a.log.Debug("send ack", "err", err)
	}
}
