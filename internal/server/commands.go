package server

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trakline/trakline/internal/auth"
	"github.com/trakline/trakline/internal/protocol"
	"github.com/trakline/trakline/internal/storage"
)

func (a *App) handleCommand(ctx context.Context, session *clientSession, env protocol.Envelope) error {
	claims, err := a.claimsFromEnvelope(env)
	if err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "unauthorized")
		return nil
	}

	action := strings.ToLower(strings.TrimSpace(metadataString(env.Metadata, "action")))
	switch action {
	case "connect":
		return a.handleConnect(ctx, session, env, claims)
	case "message_send":
		return a.handleMessageSend(ctx, session, env, claims)
	case "message_edit":
		return a.handleMessageEdit(ctx, session, env, claims)
	case "message_delete":
		return a.handleMessageDelete(ctx, session, env, claims)
	case "message_delivered":
		return a.handleDelivered(ctx, session, env, claims)
	case "conversation_read":
		return a.handleConversationRead(ctx, session, env, claims)
	case "group_read":
		return a.handleGroupRead(ctx, session, env, claims)
	case "group_create":
		return a.handleGroupCreate(ctx, session, env, claims)
	case "history":
		return a.handleHistory(ctx, session, env, claims)
	case "status_post":
		return a.handleStatusPost(ctx, session, env, claims)
	case "status_feed":
		return a.handleStatusFeed(ctx, session, env, claims)
	case "post_create":
		return a.handlePostCreate(ctx, session, env, claims)
	case "call_request", "call_answer", "call_reject", "call_end", "call_candidate":
		return a.handleCall(ctx, session, env, claims, action)
	default:
		a.sendAck(ctx, session, env.ID, ackStatusError, "unsupported command")
	}
	return nil
}

// handleConnect binds the session to the authenticated user and registers it
// as that user's live connection. Admin accounts register as privileged, so
// they stay reachable while hidden from presence.
func (a *App) handleConnect(ctx context.Context, session *clientSession, env protocol.Envelope, claims *auth.Claims) error {
	session.bindUser(claims.UserID, claims.Role == storage.RoleAdmin)
	a.sendAck(ctx, session, env.ID, ackStatusOK, "")
	a.log.Info("connection registered", "user", claims.Username, "id", claims.UserID, "remote", session.remoteAddr())
	return nil
}

func (a *App) handleMessageSend(ctx context.Context, session *clientSession, env protocol.Envelope, claims *auth.Claims) error {
	var req protocol.MessageSendRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "invalid message payload")
		return nil
	}

	receiverID := strings.TrimSpace(req.ReceiverID)
	groupID := strings.TrimSpace(req.GroupID)
	if (receiverID == "") == (groupID == "") {
		a.sendAck(ctx, session, env.ID, ackStatusError, "exactly one of receiver or group required")
		return nil
	}
	text := strings.TrimSpace(req.Text)
	if text == "" && req.MediaBase64 == "" {
		a.sendAck(ctx, session, env.ID, ackStatusError, "message empty")
		return nil
	}

	var group *storage.Group
	if groupID != "" {
		var err error
		group, err = a.store.GetGroup(ctx, groupID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				a.sendAck(ctx, session, env.ID, ackStatusError, "group not found")
				return nil
			}
			a.sendAck(ctx, session, env.ID, ackStatusError, "group lookup failed")
			return err
		}
		if !containsID(group.Members, claims.UserID) {
			a.sendAck(ctx, session, env.ID, ackStatusError, "not a group member")
			return nil
		}
	} else {
		if _, err := a.store.GetUser(ctx, receiverID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				a.sendAck(ctx, session, env.ID, ackStatusError, "receiver not found")
				return nil
			}
			a.sendAck(ctx, session, env.ID, ackStatusError, "receiver lookup failed")
			return err
		}
	}

	now := time.Now().UTC()
	msg := storage.Message{
		ID:         uuid.NewString(),
		SenderID:   claims.UserID,
		ReceiverID: receiverID,
		GroupID:    groupID,
		Text:       text,
		MediaType:  strings.TrimSpace(req.MediaType),
		ReadBy:     []string{claims.UserID},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if req.MediaBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.MediaBase64)
		if err != nil {
			a.sendAck(ctx, session, env.ID, ackStatusError, "invalid media encoding")
			return nil
		}
		asset, err := a.media.Upload(ctx, data, "messages")
		if err != nil {
			a.sendAck(ctx, session, env.ID, ackStatusError, "media upload failed")
			return err
		}
		msg.MediaURL = asset.URL
		msg.MediaDeleteKey = asset.DeleteKey
	}

	if err := a.store.CreateMessage(ctx, &msg); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "message not stored")
		return err
	}

	a.sendAck(ctx, session, env.ID, ackStatusOK, "")
	a.log.Info("message stored", "id", msg.ID, "user", claims.Username, "group", groupID != "")

	payload := toChatMessage(msg)
	if groupID != "" {
		// Membership is re-read at send time; the sender is part of the list
		// so their client gets the authoritative copy too.
		a.router.SendToGroup(group.Members, protocol.EventGroupMessageNew, payload)
	} else {
		a.router.SendToUser(receiverID, protocol.EventMessageNew, payload)
	}
	return nil
}

func (a *App) handleMessageEdit(ctx context.Context, session *clientSession, env protocol.Envelope, claims *auth.Claims) error {
	var req protocol.MessageEditRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "invalid edit payload")
		return nil
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		a.sendAck(ctx, session, env.ID, ackStatusError, "text required")
		return nil
	}

	msg, ok, err := a.ownedMessage(ctx, session, env.ID, req.MessageID, claims)
	if !ok {
		return err
	}

	if err := a.store.UpdateMessageText(ctx, msg.ID, text); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.sendAck(ctx, session, env.ID, ackStatusError, "message not found")
			return nil
		}
		a.sendAck(ctx, session, env.ID, ackStatusError, "message not updated")
		return err
	}
	a.sendAck(ctx, session, env.ID, ackStatusOK, "")

	msg.Text = text
	msg.UpdatedAt = time.Now().UTC()
	a.fanoutToAudience(ctx, msg, protocol.EventMessageUpdated, toChatMessage(*msg))
	return nil
}

func (a *App) handleMessageDelete(ctx context.Context, session *clientSession, env protocol.Envelope, claims *auth.Claims) error {
	var req protocol.MessageDeleteRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "invalid delete payload")
		return nil
	}

	msg, ok, err := a.ownedMessage(ctx, session, env.ID, req.MessageID, claims)
	if !ok {
		return err
	}

	if msg.MediaDeleteKey != "" {
		if err := a.media.Delete(ctx, msg.MediaDeleteKey); err != nil {
			a.log.Debug("message media delete failed", "message", msg.ID, "err", err)
		}
	}
	if err := a.store.DeleteMessage(ctx, msg.ID); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "message not deleted")
		return err
	}
	a.sendAck(ctx, session, env.ID, ackStatusOK, "")

	a.fanoutToAudience(ctx, msg, protocol.EventMessageDeleted, protocol.MessageRefPayload{
		MessageID: msg.ID,
		GroupID:   msg.GroupID,
	})
	return nil
}

// ownedMessage loads a message and enforces sender ownership, acking the
// failure cases itself. ok reports whether the caller should proceed.
func (a *App) ownedMessage(ctx context.Context, session *clientSession, referenceID, messageID string, claims *auth.Claims) (*storage.Message, bool, error) {
	msg, err := a.store.GetMessage(ctx, strings.TrimSpace(messageID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.sendAck(ctx, session, referenceID, ackStatusError, "message not found")
			return nil, false, nil
		}
		a.sendAck(ctx, session, referenceID, ackStatusError, "message lookup failed")
		return nil, false, err
	}
	if msg.SenderID != claims.UserID {
		a.sendAck(ctx, session, referenceID, ackStatusError, "not message owner")
		return nil, false, nil
	}
	return msg, true, nil
}

// fanoutToAudience routes a message-scoped event to everyone who can see the
// message: both parties for a direct message, the current member list for a
// group message. A group that vanished mid-fanout is tolerated silently.
func (a *App) fanoutToAudience(ctx context.Context, msg *storage.Message, event string, payload interface{}) {
	if msg.GroupID != "" {
		group, err := a.store.GetGroup(ctx, msg.GroupID)
		if err != nil {
			return
		}
		a.router.SendToGroup(group.Members, event, payload)
		return
	}
	a.router.SendToUser(msg.ReceiverID, event, payload)
	a.router.SendToUser(msg.SenderID, event, payload)
}

func (a *App) handleDelivered(ctx context.Context, session *clientSession, env protocol.Envelope, claims *auth.Claims) error {
	var req protocol.DeliveredRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "invalid delivered payload")
		return nil
	}
	if err := a.tracker.MarkDelivered(ctx, strings.TrimSpace(req.MessageID), claims.UserID); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "delivery mark failed")
		return err
	}
	a.sendAck(ctx, session, env.ID, ackStatusOK, "")
	return nil
}

func (a *App) handleConversationRead(ctx context.Context, session *clientSession, env protocol.Envelope, claims *auth.Claims) error {
	var req protocol.ConversationReadRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "invalid read payload")
		return nil
	}
	partnerID := strings.TrimSpace(req.PartnerID)
	if partnerID == "" {
		a.sendAck(ctx, session, env.ID, ackStatusError, "partner required")
		return nil
	}
	modified, err := a.tracker.MarkConversationRead(ctx, claims.UserID, partnerID)
	if err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "read mark failed")
		return err
	}
	a.sendAckCount(ctx, session, env.ID, ackStatusOK, "", modified)
	return nil
}

func (a *App) handleGroupRead(ctx context.Context, session *clientSession, env protocol.Envelope, claims *auth.Claims) error {
	var req protocol.GroupReadRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "invalid read payload")
		return nil
	}
	groupID := strings.TrimSpace(req.GroupID)
	if groupID == "" {
		a.sendAck(ctx, session, env.ID, ackStatusError, "group required")
		return nil
	}
	modified, err := a.tracker.MarkGroupRead(ctx, claims.UserID, groupID)
	if err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "read mark failed")
		return err
	}
	a.sendAckCount(ctx, session, env.ID, ackStatusOK, "", modified)
	return nil
}

func (a *App) handleGroupCreate(ctx context.Context, session *clientSession, env protocol.Envelope, claims *auth.Claims) error {
	var req protocol.GroupCreateRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "invalid group payload")
		return nil
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		a.sendAck(ctx, session, env.ID, ackStatusError, "name required")
		return nil
	}

	members := []string{claims.UserID}
	for _, id := range req.MemberIDs {
		id = strings.TrimSpace(id)
		if id != "" && !containsID(members, id) {
			members = append(members, id)
		}
	}

	now := time.Now().UTC()
	group := storage.Group{
		ID:        uuid.NewString(),
		Name:      name,
		Members:   members,
		AdminID:   claims.UserID,
		Community: req.Community,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateGroup(ctx, &group); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "group not stored")
		return err
	}
	a.sendAck(ctx, session, env.ID, ackStatusOK, "")

	return a.sendResponseEvent(ctx, session, "group_created", protocol.GroupView{
		ID:        group.ID,
		Name:      group.Name,
		Members:   group.Members,
		AdminID:   group.AdminID,
		Community: group.Community,
	})
}

func (a *App) handleHistory(ctx context.Context, session *clientSession, env protocol.Envelope, claims *auth.Claims) error {
	var req protocol.HistoryRequest
	if err := decodePayload(env.Payload, &req); err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "invalid history payload")
		return nil
	}
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	partnerID := strings.TrimSpace(req.PartnerID)
	groupID := strings.TrimSpace(req.GroupID)
	if (partnerID == "") == (groupID == "") {
		a.sendAck(ctx, session, env.ID, ackStatusError, "exactly one of partner or group required")
		return nil
	}

	var (
		messages []storage.Message
		err      error
	)
	if groupID != "" {
		group, gerr := a.store.GetGroup(ctx, groupID)
		if gerr != nil {
			if errors.Is(gerr, storage.ErrNotFound) {
				a.sendAck(ctx, session, env.ID, ackStatusError, "group not found")
				return nil
			}
			a.sendAck(ctx, session, env.ID, ackStatusError, "group lookup failed")
			return gerr
		}
		if !containsID(group.Members, claims.UserID) {
			a.sendAck(ctx, session, env.ID, ackStatusError, "not a group member")
			return nil
		}
		messages, err = a.store.ListGroupMessages(ctx, groupID, limit)
	} else {
		messages, err = a.store.ListConversation(ctx, claims.UserID, partnerID, limit)
	}
	if err != nil {
		a.sendAck(ctx, session, env.ID, ackStatusError, "history unavailable")
		return err
	}

	a.sendAck(ctx, session, env.ID, ackStatusOK, "")

	history := protocol.ChatHistory{
		PartnerID: partnerID,
		GroupID:   groupID,
		Messages:  make([]protocol.ChatMessage, 0, len(messages)),
	}
	for _, msg := range messages {
		history.Messages = append(history.Messages, toChatMessage(msg))
	}
	return a.sendResponseEvent(ctx, session, "history", history)
}

// sendResponseEvent delivers a command response body on the event channel.
func (a *App) sendResponseEvent(ctx context.Context, session *clientSession, action string, payload interface{}) error {
	event := protocol.Envelope{
		ID:        uuid.NewString(),
		Type:      protocol.MessageTypeEvent,
		Timestamp: time.Now(),
		Metadata:  map[string]interface{}{"event": action},
		Payload:   payload,
	}
	return session.send(ctx, event)
}

func toChatMessage(msg storage.Message) protocol.ChatMessage {
	out := protocol.ChatMessage{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		ReceiverID:  msg.ReceiverID,
		GroupID:     msg.GroupID,
		Text:        msg.Text,
		MediaURL:    msg.MediaURL,
		MediaType:   msg.MediaType,
		DeliveredTo: msg.DeliveredTo,
		ReadBy:      msg.ReadBy,
		CreatedAt:   msg.CreatedAt.Unix(),
	}
	if !msg.UpdatedAt.IsZero() {
		out.UpdatedAt = msg.UpdatedAt.Unix()
	}
	return out
}
