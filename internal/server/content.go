package server

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trakline/trakline/internal/auth"
	"github.com/trakline/trakline/internal/media"
	"github.com/trakline/trakline/internal/protocol"
	"github.com/trakline/trakline/internal/storage"
)

// handleStatusPost publishes a 25h-boxed status and announces it to the
// owner's mutual friends.
func (a *App) handleStatusPost(ctx context.Context, session *clientSession, env protocol.Envelope, claims *auth.Claims) error {
	var req protocol.StatusPostRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "invalid status payload")
		return nil
	}
	if req.MediaBase64 == "" {
		a.sendAck(ctx, session, env.ID, ackStatusError, "media required")
		return nil
	}

	mediaAsset, err := a.uploadBase64(ctx, req.MediaBase64, "statuses")
	if err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "media upload failed")
		return nil
	}

	now := time.Now().UTC()
	status := storage.Status{
		ID:             uuid.NewString(),
		OwnerID:        claims.UserID,
		MediaURL:       mediaAsset.URL,
		MediaDeleteKey: mediaAsset.DeleteKey,
		MediaType:      strings.TrimSpace(req.MediaType),
		CreatedAt:      now,
		ExpiresAt:      now.Add(storage.StatusTTL),
	}

	if req.AudioBase64 != "" {
		audioAsset, err := a.uploadBase64(ctx, req.AudioBase64, "statuses")
		if err != nil {
			a.sendAck(ctx, session, env.ID, ackStatusError, "audio upload failed")
			return nil
		}
		status.AudioURL = audioAsset.URL
		status.AudioDeleteKey = audioAsset.DeleteKey
	}

	if err := a.store.CreateStatus(ctx, &status); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "status not stored")
		return err
	}
	a.sendAck(ctx, session, env.ID, ackStatusOK, "")
	a.log.Info("status posted", "id", status.ID, "user", claims.Username)

	audience := a.statusAudience(ctx, claims.UserID)
	a.router.SendToGroup(audience, protocol.EventStatusNew, toStatusView(status))
	return nil
}

// handleStatusFeed returns every unexpired status the caller may see: their
// own plus those of mutual friends. A status swept between the query and the
// client render simply vanishes; that window is accepted.
func (a *App) handleStatusFeed(ctx context.Context, session *clientSession, env protocol.Envelope, claims *auth.Claims) error {
	owners := a.statusAudience(ctx, claims.UserID)
	statuses, err := a.store.ListActiveStatuses(ctx, owners, time.Now().UTC())
	if err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "feed unavailable")
		return err
	}
	a.sendAck(ctx, session, env.ID, ackStatusOK, "")

	feed := protocol.StatusFeed{Statuses: make([]protocol.StatusView, 0, len(statuses))}
	for _, status := range statuses {
		feed.Statuses = append(feed.Statuses, toStatusView(status))
	}
	return a.sendResponseEvent(ctx, session, "status_feed", feed)
}

// handlePostCreate publishes a 7d-boxed post. Public posts go to everyone
// connected; members-only posts go to the owner's mutual friends.
func (a *App) handlePostCreate(ctx context.Context, session *clientSession, env protocol.Envelope, claims *auth.Claims) error {
	var req protocol.PostCreateRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "invalid post payload")
		return nil
	}
	if len(req.Items) == 0 {
		a.sendAck(ctx, session, env.ID, ackStatusError, "items required")
		return nil
	}
	visibility := strings.ToLower(strings.TrimSpace(req.Visibility))
	if visibility != storage.VisibilityPublic && visibility != storage.VisibilityMembers {
		a.sendAck(ctx, session, env.ID, ackStatusError, "visibility must be public or members")
		return nil
	}

	items := make([]storage.PostItem, 0, len(req.Items))
	for _, item := range req.Items {
		data, err := base64.StdEncoding.DecodeString(item.MediaBase64)
		if err != nil {
			a.sendAck(ctx, session, env.ID, ackStatusError, "invalid media encoding")
			return nil
		}
		asset, err := a.media.Upload(ctx, data, "posts")
		if err != nil {
			a.sendAck(ctx, session, env.ID, ackStatusError, "media upload failed")
			return nil
		}
		items = append(items, storage.PostItem{
			MediaURL:       asset.URL,
			MediaDeleteKey: asset.DeleteKey,
			ContentType:    strings.TrimSpace(item.ContentType),
			Size:           int64(len(data)),
		})
	}

	now := time.Now().UTC()
	post := storage.Post{
		ID:         uuid.NewString(),
		OwnerID:    claims.UserID,
		Items:      items,
		Visibility: visibility,
		CreatedAt:  now,
		ExpiresAt:  now.Add(storage.PostTTL),
	}
	if err := a.store.CreatePost(ctx, &post); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "post not stored")
		return err
	}
	a.sendAck(ctx, session, env.ID, ackStatusOK, "")
	a.log.Info("post created", "id", post.ID, "user", claims.Username, "visibility", visibility)

	view := toPostView(post)
	if visibility == storage.VisibilityPublic {
		a.router.BroadcastAll(protocol.EventPostNew, view)
	} else {
		a.router.SendToGroup(a.statusAudience(ctx, claims.UserID), protocol.EventPostNew, view)
	}
	return nil
}

// statusAudience returns the owner plus every mutual friend: both sides must
// list each other. Lookup failures degrade to an owner-only audience.
func (a *App) statusAudience(ctx context.Context, ownerID string) []string {
	audience := []string{ownerID}
	owner, err := a.store.GetUser(ctx, ownerID)
	if err != nil {
		return audience
	}
	friends, err := a.store.GetUsers(ctx, owner.Friends)
	if err != nil {
		return audience
	}
	for _, friend := range friends {
		if containsID(friend.Friends, ownerID) {
			audience = append(audience, friend.ID)
		}
	}
	return audience
}

func (a *App) uploadBase64(ctx context.Context, encoded, folder string) (media.Asset, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return media.Asset{}, err
	}
	return a.media.Upload(ctx, data, folder)
}

func toStatusView(status storage.Status) protocol.StatusView {
	return protocol.StatusView{
		ID:        status.ID,
		OwnerID:   status.OwnerID,
		MediaURL:  status.MediaURL,
		AudioURL:  status.AudioURL,
		MediaType: status.MediaType,
		CreatedAt: status.CreatedAt.Unix(),
		ExpiresAt: status.ExpiresAt.Unix(),
	}
}

func toPostView(post storage.Post) protocol.PostView {
	items := make([]protocol.PostItemView, 0, len(post.Items))
	for _, item := range post.Items {
		items = append(items, protocol.PostItemView{
			MediaURL:    item.MediaURL,
			ContentType: item.ContentType,
			Size:        item.Size,
		})
	}
	return protocol.PostView{
		ID:         post.ID,
		OwnerID:    post.OwnerID,
		Items:      items,
		Visibility: post.Visibility,
		CreatedAt:  post.CreatedAt.Unix(),
		ExpiresAt:  post.ExpiresAt.Unix(),
	}
}
