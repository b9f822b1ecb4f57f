package protocol

// Event names pushed to live connections. Clients key their handlers on these
// strings, so they are part of the wire contract.
const (
	EventPresence         = "presence"
	EventMessageNew       = "message:new"
	EventGroupMessageNew  = "group:message:new"
	EventMessageUpdated   = "message:updated"
	EventMessageDeleted   = "message:deleted"
	EventMessageDelivered = "message:delivered"
	EventConversationRead = "conversation:read"
	EventStatusNew        = "status:new"
	EventPostNew          = "post:new"
	EventCallRequest      = "call:request"
	EventCallAnswer       = "call:answer"
	EventCallReject       = "call:reject"
	EventCallEnd          = "call:end"
	EventCallCandidate    = "call:candidate"
	EventCallUnavailable  = "call:unavailable"
)

// PresencePayload is the full visible-online snapshot, never a delta.
type PresencePayload struct {
	Users []string `json:"users"`
}

// DeliveredPayload notifies a sender that one recipient received a message.
type DeliveredPayload struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

// ReadPayload notifies a conversation partner of a bulk read.
type ReadPayload struct {
	UserID string `json:"user_id"`
}

// MessageRefPayload references a message by id, used for deletions.
type MessageRefPayload struct {
	MessageID string `json:"message_id"`
	GroupID   string `json:"group_id,omitempty"`
}

// CallPayload wraps relayed signaling data, stamped with the sender.
type CallPayload struct {
	From string      `json:"from"`
	Data interface{} `json:"data,omitempty"`
}

// CallUnavailablePayload bounces an unreachable callee back to the caller.
type CallUnavailablePayload struct {
	ToUserID string `json:"to_user_id"`
}
