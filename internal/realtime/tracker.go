package realtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/trakline/trakline/internal/protocol"
	"github.com/trakline/trakline/internal/storage"
)

// Tracker records delivered/read receipts on durable messages and routes the
// resulting notifications. The delivered and read sets only ever grow; set
// idempotence is delegated to the store.
type Tracker struct {
	store  storage.Store
	router *Router
	log    *slog.Logger
}

// NewTracker wires a tracker to its store and router.
func NewTracker(store storage.Store, router *Router, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{store: store, router: router, log: log}
}

// MarkDelivered idempotently adds userID to the message's delivered set and
// notifies the original sender. A missing message and an illegitimate target
// are both silent no-ops, deliberately indistinguishable from outside.
func (t *Tracker) MarkDelivered(ctx context.Context, messageID, userID string) error {
	msg, err := t.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	// Direct messages only accept the stored receiver; any caller counts as a
	// legitimate target for group messages.
	if msg.GroupID == "" && msg.ReceiverID != userID {
		return nil
	}
	added, err := t.store.AddDeliveredTo(ctx, messageID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted between the read and the update.
			return nil
		}
		return err
	}
	// The notification is tied to the mutation: a repeated mark changes
	// nothing and emits nothing.
	if added {
		t.router.SendToUser(msg.SenderID, protocol.EventMessageDelivered, protocol.DeliveredPayload{
			MessageID: messageID,
			UserID:    userID,
		})
	}
	return nil
}

// MarkConversationRead bulk-marks every unread message from partnerID to
// readerID as read and, when anything changed, tells the partner. Zero is a
// valid result meaning everything was already read.
func (t *Tracker) MarkConversationRead(ctx context.Context, readerID, partnerID string) (int64, error) {
	modified, err := t.store.MarkConversationRead(ctx, readerID, partnerID)
	if err != nil {
		return 0, err
	}
	if modified > 0 {
		t.router.SendToUser(partnerID, protocol.EventConversationRead, protocol.ReadPayload{UserID: readerID})
	}
	return modified, nil
}

// MarkGroupRead bulk-marks every unread message in groupID as read by
// readerID. Group reads notify nobody: read receipts are directional signals
// that only carry meaning one to one.
func (t *Tracker) MarkGroupRead(ctx context.Context, readerID, groupID string) (int64, error) {
	return t.store.MarkGroupRead(ctx, readerID, groupID)
}
