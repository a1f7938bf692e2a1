// Package chat implements the real-time chat fabric: room/member/message
// persistence, the WebSocket command protocol, and the connection manager
// that fans messages out to every node via the Redis-backed event bus.
package chat

import "time"

// RoomType distinguishes a one-to-one direct conversation from a
// multi-member group room or a company-wide room.
type RoomType string

const (
	RoomTypeDirect  RoomType = "direct"
	RoomTypeGroup   RoomType = "group"
	RoomTypeCompany RoomType = "company"
)

// Room is a chat room scoped to a tenant's parts catalog (e.g. a supplier
// negotiation thread or an internal team channel). A direct room always has
// exactly two active members and carries a DirectKey unique per unordered
// pair of members; group and company rooms leave DirectKey nil.
type Room struct {
	ID            string    `db:"id"`
	TenantID      string    `db:"tenant_id"`
	CompanyID     *string   `db:"company_id"`
	Type          RoomType  `db:"type"`
	Name          string    `db:"name"`
	Slug          string    `db:"slug"`
	Description   string    `db:"description"`
	OwnerID       string    `db:"owner_id"`
	IsPrivate     bool      `db:"is_private"`
	Active        bool      `db:"active"`
	DirectKey     *string   `db:"direct_key"`
	Metadata      []byte    `db:"metadata"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
	LastMessageAt time.Time `db:"last_message_at"`
}

// DirectRoomKey builds the deterministic, order-independent key a direct
// room between two users is stored under, so find_direct_chat and
// create_direct_chat agree on identity regardless of caller order.
func DirectRoomKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}

// Member is a user's membership and role within a room. Removal is soft:
// an inactive membership row is retained for thread integrity and to let a
// user rejoin without losing history of who was once present.
type Member struct {
	ID                 string    `db:"id"`
	RoomID             string    `db:"room_id"`
	UserID             string    `db:"user_id"`
	Role               string    `db:"role"` // guest, member, admin, owner
	Active             bool      `db:"active"`
	NotificationsMuted bool      `db:"notifications_muted"`
	JoinedAt           time.Time `db:"joined_at"`
	LastReadMessageID  *string   `db:"last_read_message_id"`
	LastSeenAt         time.Time `db:"last_seen_at"`
}

// unavailableBody is the sentinel returned in place of message content that
// failed to decrypt during a history fetch. Returned rather than raised so
// one corrupt or re-keyed row never fails an entire room's history.
const unavailableBody = "[message unavailable]"

// Message is a single chat message, optionally a threaded reply.
type Message struct {
	ID              string     `db:"id"`
	RoomID          string     `db:"room_id"`
	AuthorID        string     `db:"author_id"`
	Body            string     `db:"body"`
	ParentMessageID *string    `db:"parent_message_id"`
	ReplyCount      int        `db:"reply_count"`
	Pinned          bool       `db:"pinned"`
	EditedAt        *time.Time `db:"edited_at"`
	DeletedAt       *time.Time `db:"deleted_at"`
	CreatedAt       time.Time  `db:"created_at"`
}

// IsDeleted reports whether the message has been soft-deleted.
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Reaction is a single emoji reaction to a message.
type Reaction struct {
	ID        string    `db:"id"`
	MessageID string    `db:"message_id"`
	UserID    string    `db:"user_id"`
	Emoji     string    `db:"emoji"`
	CreatedAt time.Time `db:"created_at"`
}

// RateLimitLog records one rate-limited attempt for a (room, user, kind),
// backing both the rolling-window count check and abuse-analysis audit.
type RateLimitLog struct {
	ID        string    `db:"id"`
	RoomID    string    `db:"room_id"`
	UserID    string    `db:"user_id"`
	Kind      string    `db:"kind"`
	Reason    string    `db:"reason"`
	CreatedAt time.Time `db:"created_at"`
}
