package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals a missing record. Core paths treat it as a no-op rather
// than a failure.
var ErrNotFound = errors.New("record not found")

// Role values stored on User.Role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Post visibility values.
const (
	VisibilityPublic  = "public"
	VisibilityMembers = "members"
)

// Fixed TTLs for ephemeral content.
const (
	StatusTTL = 25 * time.Hour
	PostTTL   = 7 * 24 * time.Hour
)

// User represents a persisted account record. Friends holds the ids this user
// lists; friendship is mutual only when both sides list each other.
type User struct {
	ID          string
	Username    string
	Password    string
	DisplayName string
	Role        string
	Friends     []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Message is a direct or group chat message. Exactly one of ReceiverID and
// GroupID is set. DeliveredTo and ReadBy are grow-only sets of user ids; the
// sender is seeded into ReadBy at creation.
type Message struct {
	ID             string
	SenderID       string
	ReceiverID     string
	GroupID        string
	Text           string
	MediaURL       string
	MediaDeleteKey string
	MediaType      string
	DeliveredTo    []string
	ReadBy         []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Status is a time-boxed media post visible to the owner and mutual friends
// until ExpiresAt.
type Status struct {
	ID             string
	OwnerID        string
	MediaURL       string
	MediaDeleteKey string
	AudioURL       string
	AudioDeleteKey string
	MediaType      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// PostItem is one media entry of a post.
type PostItem struct {
	MediaURL       string `json:"media_url"`
	MediaDeleteKey string `json:"media_delete_key"`
	ContentType    string `json:"content_type"`
	Size           int64  `json:"size"`
}

// Post is a time-boxed feed entry ("trak").
type Post struct {
	ID         string
	OwnerID    string
	Items      []PostItem
	Visibility string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Group is a long-lived chat group. Members is the authoritative fanout target
// list and must be re-read at every send.
type Group struct {
	ID        string
	Name      string
	Members   []string
	AdminID   string
	Community bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines persistence operations used by the server and the realtime
// core. Set-append operations are idempotent; bulk read marks report how many
// records actually changed.
type Store interface {
	Close() error
	Migrate(ctx context.Context) error

	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUsers(ctx context.Context, ids []string) ([]User, error)

	CreateMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	UpdateMessageText(ctx context.Context, id, text string) error
	DeleteMessage(ctx context.Context, id string) error
	AddDeliveredTo(ctx context.Context, messageID, userID string) (added bool, err error)
	MarkConversationRead(ctx context.Context, readerID, partnerID string) (int64, error)
	MarkGroupRead(ctx context.Context, readerID, groupID string) (int64, error)
	ListConversation(ctx context.Context, userA, userB string, limit int) ([]Message, error)
	ListGroupMessages(ctx context.Context, groupID string, limit int) ([]Message, error)

	CreateGroup(ctx context.Context, group *Group) error
	GetGroup(ctx context.Context, id string) (*Group, error)

	CreateStatus(ctx context.Context, status *Status) error
	ListActiveStatuses(ctx context.Context, ownerIDs []string, now time.Time) ([]Status, error)
	ListExpiredStatuses(ctx context.Context, now time.Time, limit int) ([]Status, error)
	DeleteStatus(ctx context.Context, id string) error

	CreatePost(ctx context.Context, post *Post) error
	ListExpiredPosts(ctx context.Context, now time.Time, limit int) ([]Post, error)
	DeletePost(ctx context.Context, id string) error
}
