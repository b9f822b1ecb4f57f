package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trakline/trakline/internal/protocol"
	"github.com/trakline/trakline/internal/storage"
)

// trackerStore fakes just the Store methods the tracker touches; anything
// else panics via the embedded nil interface.
type trackerStore struct {
	storage.Store
	messages      map[string]*storage.Message
	convoModified int64
	groupModified int64
}

func (s *trackerStore) GetMessage(_ context.Context, id string) (*storage.Message, error) {
	msg, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *msg
	return &clone, nil
}

func (s *trackerStore) AddDeliveredTo(_ context.Context, messageID, userID string) (bool, error) {
	msg, ok := s.messages[messageID]
	if !ok {
		return false, storage.ErrNotFound
	}
	for _, id := range msg.DeliveredTo {
		if id == userID {
			return false, nil
		}
	}
	msg.DeliveredTo = append(msg.DeliveredTo, userID)
	return true, nil
}

func (s *trackerStore) MarkConversationRead(_ context.Context, _, _ string) (int64, error) {
	return s.convoModified, nil
}

func (s *trackerStore) MarkGroupRead(_ context.Context, _, _ string) (int64, error) {
	return s.groupModified, nil
}

func newTrackerFixture(store *trackerStore) (*Tracker, *fakeConn, *fakeConn) {
	router := NewRouter(NewRegistry(), nil)
	sender := &fakeConn{}
	partner := &fakeConn{}
	router.RegisterConnection("sender", sender, false)
	router.RegisterConnection("partner", partner, false)
	return NewTracker(store, router, nil), sender, partner
}

func TestTrackerMarkDelivered(t *testing.T) {
	ctx := context.Background()

	t.Run("adds the receiver and notifies the sender", func(t *testing.T) {
		store := &trackerStore{messages: map[string]*storage.Message{
			"m1": {ID: "m1", SenderID: "sender", ReceiverID: "partner"},
		}}
		tracker, sender, _ := newTrackerFixture(store)

		require.NoError(t, tracker.MarkDelivered(ctx, "m1", "partner"))

		assert.Equal(t, []string{"partner"}, store.messages["m1"].DeliveredTo)
		events := sender.named(protocol.EventMessageDelivered)
		require.Len(t, events, 1)
		payload := events[0].payload.(protocol.DeliveredPayload)
		assert.Equal(t, "m1", payload.MessageID)
		assert.Equal(t, "partner", payload.UserID)
	})

	t.Run("is idempotent and a repeat emits nothing", func(t *testing.T) {
		store := &trackerStore{messages: map[string]*storage.Message{
			"m1": {ID: "m1", SenderID: "sender", ReceiverID: "partner"},
		}}
		tracker, sender, _ := newTrackerFixture(store)

		require.NoError(t, tracker.MarkDelivered(ctx, "m1", "partner"))
		require.NoError(t, tracker.MarkDelivered(ctx, "m1", "partner"))

		assert.Equal(t, []string{"partner"}, store.messages["m1"].DeliveredTo)
		assert.Len(t, sender.named(protocol.EventMessageDelivered), 1,
			"duplicate mark changed nothing and notified nobody")
	})

	t.Run("rejects an illegitimate target silently", func(t *testing.T) {
		store := &trackerStore{messages: map[string]*storage.Message{
			"m1": {ID: "m1", SenderID: "sender", ReceiverID: "partner"},
		}}
		tracker, sender, _ := newTrackerFixture(store)

		require.NoError(t, tracker.MarkDelivered(ctx, "m1", "mallory"))

		assert.Empty(t, store.messages["m1"].DeliveredTo)
		assert.Empty(t, sender.named(protocol.EventMessageDelivered))
	})

	t.Run("any caller is a legitimate target for group messages", func(t *testing.T) {
		store := &trackerStore{messages: map[string]*storage.Message{
			"g1": {ID: "g1", SenderID: "sender", GroupID: "group-1"},
		}}
		tracker, sender, _ := newTrackerFixture(store)

		require.NoError(t, tracker.MarkDelivered(ctx, "g1", "partner"))

		assert.Equal(t, []string{"partner"}, store.messages["g1"].DeliveredTo)
		assert.Len(t, sender.named(protocol.EventMessageDelivered), 1)
	})

	t.Run("missing message is a silent no-op", func(t *testing.T) {
		store := &trackerStore{messages: map[string]*storage.Message{}}
		tracker, sender, _ := newTrackerFixture(store)

		require.NoError(t, tracker.MarkDelivered(ctx, "gone", "partner"))
		assert.Empty(t, sender.named(protocol.EventMessageDelivered))
	})
}

func TestTrackerMarkConversationRead(t *testing.T) {
	ctx := context.Background()

	t.Run("notifies the partner when messages changed", func(t *testing.T) {
		store := &trackerStore{convoModified: 3}
		tracker, _, partner := newTrackerFixture(store)

		modified, err := tracker.MarkConversationRead(ctx, "reader", "partner")
		require.NoError(t, err)
		assert.Equal(t, int64(3), modified)

		events := partner.named(protocol.EventConversationRead)
		require.Len(t, events, 1)
		assert.Equal(t, "reader", events[0].payload.(protocol.ReadPayload).UserID)
	})

	t.Run("already-read conversation yields zero and no event", func(t *testing.T) {
		store := &trackerStore{convoModified: 0}
		tracker, _, partner := newTrackerFixture(store)

		modified, err := tracker.MarkConversationRead(ctx, "reader", "partner")
		require.NoError(t, err)
		assert.Zero(t, modified)
		assert.Empty(t, partner.named(protocol.EventConversationRead))
	})
}

func TestTrackerMarkGroupRead(t *testing.T) {
	store := &trackerStore{groupModified: 2}
	tracker, sender, partner := newTrackerFixture(store)

	modified, err := tracker.MarkGroupRead(context.Background(), "reader", "group-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), modified)

	// Group reads are deliberately silent.
	assert.Empty(t, sender.named(protocol.EventConversationRead))
	assert.Empty(t, partner.named(protocol.EventConversationRead))
}
