package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trakline/trakline/internal/config"
	"github.com/trakline/trakline/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(config.DatabaseConfig{
		Path: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func directMessage(id, sender, receiver string, at time.Time) *storage.Message {
	return &storage.Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       "hi",
		ReadBy:     []string{sender},
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func TestAddDeliveredTo(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.CreateMessage(ctx, directMessage("m1", "alice", "bob", now)))

	t.Run("appends once", func(t *testing.T) {
		added, err := store.AddDeliveredTo(ctx, "m1", "bob")
		require.NoError(t, err)
		assert.True(t, added)
		msg, err := store.GetMessage(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, msg.DeliveredTo)
	})

	t.Run("repeat is a reported no-op", func(t *testing.T) {
		added, err := store.AddDeliveredTo(ctx, "m1", "bob")
		require.NoError(t, err)
		assert.False(t, added)
		msg, err := store.GetMessage(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, msg.DeliveredTo)
	})

	t.Run("missing message reports not found", func(t *testing.T) {
		_, err := store.AddDeliveredTo(ctx, "gone", "bob")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestMarkConversationRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Two unread from alice to bob, one already read, one the other way.
	require.NoError(t, store.CreateMessage(ctx, directMessage("m1", "alice", "bob", now)))
	require.NoError(t, store.CreateMessage(ctx, directMessage("m2", "alice", "bob", now.Add(time.Second))))
	read := directMessage("m3", "alice", "bob", now.Add(2*time.Second))
	read.ReadBy = []string{"alice", "bob"}
	require.NoError(t, store.CreateMessage(ctx, read))
	require.NoError(t, store.CreateMessage(ctx, directMessage("m4", "bob", "alice", now.Add(3*time.Second))))

	modified, err := store.MarkConversationRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), modified)

	t.Run("second call finds nothing to change", func(t *testing.T) {
		modified, err := store.MarkConversationRead(ctx, "bob", "alice")
		require.NoError(t, err)
		assert.Zero(t, modified)
	})

	t.Run("read sets only grew", func(t *testing.T) {
		for _, id := range []string{"m1", "m2", "m3"} {
			msg, err := store.GetMessage(ctx, id)
			require.NoError(t, err)
			assert.Contains(t, msg.ReadBy, "bob", id)
			assert.Contains(t, msg.ReadBy, "alice", id)
		}
	})

	t.Run("reader's own outgoing messages untouched", func(t *testing.T) {
		msg, err := store.GetMessage(ctx, "m4")
		require.NoError(t, err)
		assert.NotContains(t, msg.ReadBy, "alice")
	})
}

func TestMarkGroupRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		msg := &storage.Message{
			ID:        fmt.Sprintf("g%d", i),
			SenderID:  "alice",
			GroupID:   "group-1",
			Text:      "hello",
			ReadBy:    []string{"alice"},
			CreatedAt: now.Add(time.Duration(i) * time.Second),
			UpdatedAt: now,
		}
		require.NoError(t, store.CreateMessage(ctx, msg))
	}

	modified, err := store.MarkGroupRead(ctx, "bob", "group-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), modified)

	modified, err = store.MarkGroupRead(ctx, "bob", "group-1")
	require.NoError(t, err)
	assert.Zero(t, modified)
}

func TestStatusExpiryBoundary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created := time.Now().UTC().Add(-storage.StatusTTL) // expires right about now
	status := &storage.Status{
		ID:        "s1",
		OwnerID:   "alice",
		MediaURL:  "/media/statuses/x",
		CreatedAt: created,
		ExpiresAt: created.Add(storage.StatusTTL),
	}
	require.NoError(t, store.CreateStatus(ctx, status))

	t.Run("visible just before expiry", func(t *testing.T) {
		at := status.ExpiresAt.Add(-time.Millisecond)
		active, err := store.ListActiveStatuses(ctx, []string{"alice"}, at)
		require.NoError(t, err)
		assert.Len(t, active, 1)

		expired, err := store.ListExpiredStatuses(ctx, at, 100)
		require.NoError(t, err)
		assert.Empty(t, expired)
	})

	t.Run("sweepable just after expiry", func(t *testing.T) {
		at := status.ExpiresAt.Add(time.Millisecond)
		active, err := store.ListActiveStatuses(ctx, []string{"alice"}, at)
		require.NoError(t, err)
		assert.Empty(t, active)

		expired, err := store.ListExpiredStatuses(ctx, at, 100)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, "s1", expired[0].ID)
	})

	t.Run("deleted statuses stay gone", func(t *testing.T) {
		require.NoError(t, store.DeleteStatus(ctx, "s1"))
		expired, err := store.ListExpiredStatuses(ctx, status.ExpiresAt.Add(time.Hour), 100)
		require.NoError(t, err)
		assert.Empty(t, expired)
	})
}

func TestPostExpiryBoundary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created := time.Now().UTC().Add(-storage.PostTTL)
	post := &storage.Post{
		ID:      "p1",
		OwnerID: "alice",
		Items: []storage.PostItem{
			{MediaURL: "/media/posts/a", MediaDeleteKey: "posts/a", ContentType: "image/png", Size: 10},
		},
		Visibility: storage.VisibilityPublic,
		CreatedAt:  created,
		ExpiresAt:  created.Add(storage.PostTTL),
	}
	require.NoError(t, store.CreatePost(ctx, post))

	expired, err := store.ListExpiredPosts(ctx, post.ExpiresAt.Add(-time.Millisecond), 100)
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = store.ListExpiredPosts(ctx, post.ExpiresAt.Add(time.Millisecond), 100)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, []storage.PostItem{post.Items[0]}, expired[0].Items)
}

func TestListConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateMessage(ctx, directMessage("m1", "alice", "bob", now)))
	require.NoError(t, store.CreateMessage(ctx, directMessage("m2", "bob", "alice", now.Add(time.Second))))
	require.NoError(t, store.CreateMessage(ctx, directMessage("m3", "alice", "carol", now.Add(2*time.Second))))

	msgs, err := store.ListConversation(ctx, "alice", "bob", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "other conversations excluded")
	assert.Equal(t, "m1", msgs[0].ID, "chronological order")
	assert.Equal(t, "m2", msgs[1].ID)
}
