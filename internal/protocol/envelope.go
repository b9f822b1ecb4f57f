package protocol

import "time"

// MessageType enumerates high-level protocol intents.
type MessageType string

const (
	MessageTypeAuthRequest  MessageType = "auth_request"
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeCommand      MessageType = "command"
	MessageTypeEvent        MessageType = "event"
	MessageTypeAck          MessageType = "ack"
)

// Envelope wraps every payload sent over the wire.
type Envelope struct {
	ID        string                 `json:"id"`
	Type      MessageType            `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Token     string                 `json:"token,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Payload   interface{}            `json:"payload,omitempty"`
}

// AckPayload represents acknowledgement semantics. Count carries the number of
// records touched by bulk operations such as conversation reads.
type AckPayload struct {
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	Count       int64  `json:"count,omitempty"`
}

// AuthRequest carries login or registration data.
type AuthRequest struct {
	Action      string `json:"action"` // login or register
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// AuthResponse returns token and status details to client.
type AuthResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	UserID    string `json:"user_id"`
}

// MessageSendRequest targets exactly one of ReceiverID or GroupID.
type MessageSendRequest struct {
	ReceiverID  string `json:"receiver_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	Text        string `json:"text,omitempty"`
	MediaBase64 string `json:"media_base64,omitempty"`
	MediaType   string `json:"media_type,omitempty"`
}

// MessageEditRequest replaces the text of an owned message.
type MessageEditRequest struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// MessageDeleteRequest removes an owned message.
type MessageDeleteRequest struct {
	MessageID string `json:"message_id"`
}

// DeliveredRequest marks a message delivered to the calling user.
type DeliveredRequest struct {
	MessageID string `json:"message_id"`
}

// ConversationReadRequest marks every unread message from PartnerID as read.
type ConversationReadRequest struct {
	PartnerID string `json:"partner_id"`
}

// GroupReadRequest marks every unread message in GroupID as read.
type GroupReadRequest struct {
	GroupID string `json:"group_id"`
}

// StatusPostRequest publishes a time-boxed status.
type StatusPostRequest struct {
	MediaBase64 string `json:"media_base64"`
	MediaType   string `json:"media_type"`
	AudioBase64 string `json:"audio_base64,omitempty"`
}

// PostItemUpload is one media item of a post.
type PostItemUpload struct {
	MediaBase64 string `json:"media_base64"`
	ContentType string `json:"content_type"`
}

// PostCreateRequest publishes a time-boxed post.
type PostCreateRequest struct {
	Items      []PostItemUpload `json:"items"`
	Visibility string           `json:"visibility"` // public or members
}

// CallRequest is the payload of every call-signaling command; the server stamps
// the authenticated sender into the relayed event.
type CallRequest struct {
	ToUserID string      `json:"to_user_id"`
	Data     interface{} `json:"data,omitempty"`
}

// HistoryRequest fetches recent messages for a conversation or group.
type HistoryRequest struct {
	PartnerID string `json:"partner_id,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ChatMessage is the wire shape of a stored message.
type ChatMessage struct {
	ID          string   `json:"id"`
	SenderID    string   `json:"sender_id"`
	ReceiverID  string   `json:"receiver_id,omitempty"`
	GroupID     string   `json:"group_id,omitempty"`
	Text        string   `json:"text,omitempty"`
	MediaURL    string   `json:"media_url,omitempty"`
	MediaType   string   `json:"media_type,omitempty"`
	DeliveredTo []string `json:"delivered_to,omitempty"`
	ReadBy      []string `json:"read_by,omitempty"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at,omitempty"`
}

// ChatHistory is the response payload for a history command.
type ChatHistory struct {
	PartnerID string        `json:"partner_id,omitempty"`
	GroupID   string        `json:"group_id,omitempty"`
	Messages  []ChatMessage `json:"messages"`
}

// StatusView is the wire shape of an unexpired status.
type StatusView struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	MediaURL  string `json:"media_url"`
	AudioURL  string `json:"audio_url,omitempty"`
	MediaType string `json:"media_type"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// StatusFeed is the response payload for a status_feed command.
type StatusFeed struct {
	Statuses []StatusView `json:"statuses"`
}

// PostItemView is the wire shape of one post item.
type PostItemView struct {
	MediaURL    string `json:"media_url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// PostView is the wire shape of an unexpired post.
type PostView struct {
	ID         string         `json:"id"`
	OwnerID    string         `json:"owner_id"`
	Items      []PostItemView `json:"items"`
	Visibility string         `json:"visibility"`
	CreatedAt  int64          `json:"created_at"`
	ExpiresAt  int64          `json:"expires_at"`
}

// GroupCreateRequest starts a new chat group with the caller as admin.
type GroupCreateRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
	Community bool     `json:"community,omitempty"`
}

// GroupView is the wire shape of a group record.
type GroupView struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	AdminID   string   `json:"admin_id"`
	Community bool     `json:"community,omitempty"`
}
