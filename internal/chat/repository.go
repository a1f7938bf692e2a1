package chat

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	envelope "github.com/partshub/runtime/infrastructure/crypto"
	"github.com/partshub/runtime/infrastructure/errors"
)

// messageEnvelopeInfo is the envelope's fixed context string; it binds
// encrypted message bodies to this purpose so a key derived here can never
// be reused to decrypt a field encrypted for a different purpose.
const messageEnvelopeInfo = "chat.message.body"

// RoomRepository persists chat rooms.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository wraps a sqlx connection for room persistence.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// EnsureSchema creates the chat tables if they do not already exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_rooms (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			company_id TEXT,
			type TEXT NOT NULL DEFAULT 'group',
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id TEXT NOT NULL,
			is_private BOOLEAN NOT NULL DEFAULT false,
			active BOOLEAN NOT NULL DEFAULT true,
			direct_key TEXT,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_message_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE(tenant_id, slug)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_rooms_tenant ON chat_rooms(tenant_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_rooms_direct_key
			ON chat_rooms(tenant_id, direct_key) WHERE direct_key IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS chat_members (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			active BOOLEAN NOT NULL DEFAULT true,
			notifications_muted BOOLEAN NOT NULL DEFAULT false,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_read_message_id TEXT,
			last_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE(room_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_members_room ON chat_members(room_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members(user_id)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
			author_id TEXT NOT NULL,
			body TEXT NOT NULL,
			parent_message_id TEXT,
			reply_count INTEGER NOT NULL DEFAULT 0,
			pinned BOOLEAN NOT NULL DEFAULT false,
			edited_at TIMESTAMPTZ,
			deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_room_created ON chat_messages(room_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_parent ON chat_messages(parent_message_id)`,
		`CREATE TABLE IF NOT EXISTS chat_reactions (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL REFERENCES chat_messages(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			emoji TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE(message_id, user_id, emoji)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_reactions_message ON chat_reactions(message_id)`,
		`CREATE TABLE IF NOT EXISTS chat_rate_limit_log (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_rate_limit_user ON chat_rate_limit_log(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_rate_limit_room_user_kind ON chat_rate_limit_log(room_id, user_id, kind, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure chat schema: %w", err)
		}
	}
	return nil
}

// Create inserts a new room.
func (r *RoomRepository) Create(ctx context.Context, room *Room) error {
	if room.Type == "" {
		room.Type = RoomTypeGroup
	}
	const q = `INSERT INTO chat_rooms
		(id, tenant_id, company_id, type, name, slug, description, owner_id, is_private, active, direct_key, metadata, created_at, updated_at, last_message_at)
		VALUES (:id, :tenant_id, :company_id, :type, :name, :slug, :description, :owner_id, :is_private, :active, :direct_key, :metadata, :created_at, :updated_at, :last_message_at)`
	_, err := r.db.NamedExecContext(ctx, q, room)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// FindDirect returns the active direct room between two users in a tenant,
// if one exists.
func (r *RoomRepository) FindDirect(ctx context.Context, tenantID, userA, userB string) (*Room, error) {
	key := DirectRoomKey(userA, userB)
	var room Room
	err := r.db.GetContext(ctx, &room,
		`SELECT * FROM chat_rooms WHERE tenant_id = $1 AND type = $2 AND direct_key = $3 AND active`,
		tenantID, RoomTypeDirect, key)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("room", key)
	}
	if err != nil {
		return nil, fmt.Errorf("find direct room: %w", err)
	}
	return &room, nil
}

// FindOrCreateDirect idempotently creates the direct room carried by room
// (room.DirectKey must already be set), or returns the room that a
// concurrent caller won the race to create. The partial unique index on
// (tenant_id, direct_key) makes this safe under concurrent calls.
func (r *RoomRepository) FindOrCreateDirect(ctx context.Context, room *Room) (*Room, bool, error) {
	if room.Type == "" {
		room.Type = RoomTypeDirect
	}
	const q = `INSERT INTO chat_rooms
		(id, tenant_id, company_id, type, name, slug, description, owner_id, is_private, active, direct_key, metadata, created_at, updated_at, last_message_at)
		VALUES (:id, :tenant_id, :company_id, :type, :name, :slug, :description, :owner_id, :is_private, :active, :direct_key, :metadata, :created_at, :updated_at, :last_message_at)
		ON CONFLICT (tenant_id, direct_key) WHERE direct_key IS NOT NULL DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, q, room)
	if err != nil {
		return nil, false, fmt.Errorf("create direct room: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return room, true, nil
	}
	if room.DirectKey == nil {
		return nil, false, fmt.Errorf("find existing direct room: direct_key unset")
	}
	parts := strings.SplitN(*room.DirectKey, ":", 2)
	if len(parts) != 2 {
		return nil, false, fmt.Errorf("find existing direct room: malformed direct_key %q", *room.DirectKey)
	}
	existing, err := r.FindDirect(ctx, room.TenantID, parts[0], parts[1])
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Get fetches a room by id.
func (r *RoomRepository) Get(ctx context.Context, id string) (*Room, error) {
	var room Room
	err := r.db.GetContext(ctx, &room, `SELECT * FROM chat_rooms WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("room", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return &room, nil
}

// GetBySlug fetches a room by tenant-scoped slug.
func (r *RoomRepository) GetBySlug(ctx context.Context, tenantID, slug string) (*Room, error) {
	var room Room
	err := r.db.GetContext(ctx, &room, `SELECT * FROM chat_rooms WHERE tenant_id = $1 AND slug = $2`, tenantID, slug)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("room", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("get room by slug: %w", err)
	}
	return &room, nil
}

// ListByTenant returns every room belonging to a tenant, most recently
// active first.
func (r *RoomRepository) ListByTenant(ctx context.Context, tenantID string) ([]*Room, error) {
	var rooms []*Room
	err := r.db.SelectContext(ctx, &rooms,
		`SELECT * FROM chat_rooms WHERE tenant_id = $1 ORDER BY last_message_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// TouchLastMessage sets a room's last_message_at (and updated_at) to at,
// used to keep room listings sorted by recent activity.
func (r *RoomRepository) TouchLastMessage(ctx context.Context, roomID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_rooms SET last_message_at = $1, updated_at = $1 WHERE id = $2`, at, roomID)
	if err != nil {
		return fmt.Errorf("touch room: %w", err)
	}
	return nil
}

// Update persists mutable room fields (name, description, privacy).
func (r *RoomRepository) Update(ctx context.Context, room *Room) error {
	room.UpdatedAt = time.Now()
	const q = `UPDATE chat_rooms SET name = :name, description = :description,
		is_private = :is_private, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, q, room)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	return requireAffected(res, "room", room.ID)
}

// Delete removes a room and cascades to its members, messages and reactions.
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_rooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return requireAffected(res, "room", id)
}

// MemberRepository persists room memberships.
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository wraps a sqlx connection for membership persistence.
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Add inserts a new membership, or reactivates one that was previously
// removed for the same room and user.
func (r *MemberRepository) Add(ctx context.Context, m *Member) error {
	m.Active = true
	const q = `INSERT INTO chat_members
		(id, room_id, user_id, role, active, notifications_muted, joined_at, last_read_message_id, last_seen_at)
		VALUES (:id, :room_id, :user_id, :role, :active, :notifications_muted, :joined_at, :last_read_message_id, :last_seen_at)
		ON CONFLICT (room_id, user_id) DO UPDATE SET
			active = true, role = EXCLUDED.role, joined_at = EXCLUDED.joined_at, last_seen_at = EXCLUDED.last_seen_at`
	_, err := r.db.NamedExecContext(ctx, q, m)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// Get fetches a single membership by room and user.
func (r *MemberRepository) Get(ctx context.Context, roomID, userID string) (*Member, error) {
	var m Member
	err := r.db.GetContext(ctx, &m,
		`SELECT * FROM chat_members WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("member", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

// ListByRoom returns every member of a room.
func (r *MemberRepository) ListByRoom(ctx context.Context, roomID string) ([]*Member, error) {
	var members []*Member
	err := r.db.SelectContext(ctx, &members,
		`SELECT * FROM chat_members WHERE room_id = $1 ORDER BY joined_at ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// UpdateRole changes a member's role.
func (r *MemberRepository) UpdateRole(ctx context.Context, roomID, userID, role string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_members SET role = $1 WHERE room_id = $2 AND user_id = $3`, role, roomID, userID)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	return requireAffected(res, "member", userID)
}

// SetNotificationsMuted toggles notification muting for a member.
func (r *MemberRepository) SetNotificationsMuted(ctx context.Context, roomID, userID string, muted bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_members SET notifications_muted = $1 WHERE room_id = $2 AND user_id = $3`,
		muted, roomID, userID)
	if err != nil {
		return fmt.Errorf("set notifications muted: %w", err)
	}
	return requireAffected(res, "member", userID)
}

// MarkRead records the last message a member has read.
func (r *MemberRepository) MarkRead(ctx context.Context, roomID, userID, messageID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_members SET last_read_message_id = $1, last_seen_at = now()
		 WHERE room_id = $2 AND user_id = $3`, messageID, roomID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return requireAffected(res, "member", userID)
}

// Remove deactivates a membership without deleting its row, preserving
// thread integrity for messages the member authored.
func (r *MemberRepository) Remove(ctx context.Context, roomID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_members SET active = false WHERE room_id = $1 AND user_id = $2 AND active`,
		roomID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return requireAffected(res, "member", userID)
}

// MessageRepository persists chat messages. Message bodies are encrypted
// at rest with a per-room envelope key; keys is a key-id -> master-key
// registry so history written under a retired key can still be decrypted
// after rotation, while new writes always use activeKeyID.
type MessageRepository struct {
	db          *sqlx.DB
	keys        map[byte][]byte
	activeKeyID byte
}

// NewMessageRepository wraps a sqlx connection for message persistence.
// masterKey must be the current 32-byte envelope key; it is registered as
// key-id 1. Wiring in additional retired keys for rotation is left to a
// future multi-key configuration surface.
func NewMessageRepository(db *sqlx.DB, masterKey []byte) *MessageRepository {
	return &MessageRepository{
		db:          db,
		keys:        map[byte][]byte{1: masterKey},
		activeKeyID: 1,
	}
}

// encryptBody encrypts body under the active key, binding the ciphertext to
// roomID via the envelope AAD and prefixing it with the key-id byte so a
// later key rotation can still locate the key that produced it.
func (r *MessageRepository) encryptBody(roomID, body string) (string, error) {
	if body == "" {
		return "", nil
	}
	key := r.keys[r.activeKeyID]
	enc, err := envelope.EncryptEnvelope(key, []byte(roomID), messageEnvelopeInfo, []byte(body))
	if err != nil {
		return "", fmt.Errorf("encrypt message body: %w", err)
	}
	return strconv.Itoa(int(r.activeKeyID)) + ":" + string(enc), nil
}

// decryptBody reverses encryptBody. It never returns an error: a message
// whose ciphertext cannot be decrypted (unknown key id, corrupt blob) comes
// back as the unavailableBody sentinel so one bad row never fails a whole
// history fetch.
func (r *MessageRepository) decryptBody(roomID, stored string) string {
	if stored == "" {
		return ""
	}
	idx := strings.IndexByte(stored, ':')
	if idx < 0 {
		return unavailableBody
	}
	keyID, err := strconv.Atoi(stored[:idx])
	if err != nil || keyID < 0 || keyID > 255 {
		return unavailableBody
	}
	key, ok := r.keys[byte(keyID)]
	if !ok {
		return unavailableBody
	}
	plain, err := envelope.DecryptEnvelope(key, []byte(roomID), messageEnvelopeInfo, []byte(stored[idx+1:]))
	if err != nil {
		return unavailableBody
	}
	return string(plain)
}

func (r *MessageRepository) decryptAll(messages []*Message) {
	for _, m := range messages {
		m.Body = r.decryptBody(m.RoomID, m.Body)
	}
}

// Create inserts a new message, bumping the parent's reply_count when the
// message is a threaded reply. The body is encrypted before it touches the
// database; msg.Body itself is left decrypted in memory for the caller's
// immediate use (e.g. broadcasting to other connections).
func (r *MessageRepository) Create(ctx context.Context, msg *Message) error {
	plaintext := msg.Body
	encrypted, err := r.encryptBody(msg.RoomID, plaintext)
	if err != nil {
		return fmt.Errorf("encrypt message: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create message: %w", err)
	}
	defer tx.Rollback()

	stored := *msg
	stored.Body = encrypted

	const q = `INSERT INTO chat_messages
		(id, room_id, author_id, body, parent_message_id, reply_count, pinned, edited_at, deleted_at, created_at)
		VALUES (:id, :room_id, :author_id, :body, :parent_message_id, :reply_count, :pinned, :edited_at, :deleted_at, :created_at)`
	if _, err := tx.NamedExecContext(ctx, q, &stored); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if msg.ParentMessageID != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE chat_messages SET reply_count = reply_count + 1 WHERE id = $1`,
			*msg.ParentMessageID); err != nil {
			return fmt.Errorf("bump reply count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	msg.Body = plaintext
	return nil
}

// Get fetches a message by id, decrypting its body. On decryption failure
// the body comes back as the unavailable sentinel rather than an error.
func (r *MessageRepository) Get(ctx context.Context, id string) (*Message, error) {
	var msg Message
	err := r.db.GetContext(ctx, &msg, `SELECT * FROM chat_messages WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("message", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	msg.Body = r.decryptBody(msg.RoomID, msg.Body)
	return &msg, nil
}

// ListByRoom returns up to limit non-deleted messages in a room created
// before the before cursor, newest first (created_at keyset pagination).
// A limit outside 1..200 becomes 50.
func (r *MessageRepository) ListByRoom(ctx context.Context, roomID string, before time.Time, limit int) ([]*Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var messages []*Message
	err := r.db.SelectContext(ctx, &messages,
		`SELECT * FROM chat_messages WHERE room_id = $1 AND created_at < $2 AND deleted_at IS NULL
		 ORDER BY created_at DESC LIMIT $3`, roomID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	r.decryptAll(messages)
	return messages, nil
}

// ListReplies returns threaded replies to a parent message, oldest-first.
func (r *MessageRepository) ListReplies(ctx context.Context, parentID string) ([]*Message, error) {
	var messages []*Message
	err := r.db.SelectContext(ctx, &messages,
		`SELECT * FROM chat_messages WHERE parent_message_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at ASC`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	r.decryptAll(messages)
	return messages, nil
}

// Edit updates a message body and stamps edited_at.
func (r *MessageRepository) Edit(ctx context.Context, id, body string) error {
	encrypted, err := r.encryptBody(r.roomIDFor(ctx, id), body)
	if err != nil {
		return fmt.Errorf("encrypt message: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_messages SET body = $1, edited_at = now() WHERE id = $2 AND deleted_at IS NULL`,
		encrypted, id)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return requireAffected(res, "message", id)
}

// roomIDFor looks up the room a message belongs to, needed because the
// envelope binds ciphertext to its room id as additional authenticated
// data and Edit only receives the message id and new body.
func (r *MessageRepository) roomIDFor(ctx context.Context, id string) string {
	var roomID string
	_ = r.db.GetContext(ctx, &roomID, `SELECT room_id FROM chat_messages WHERE id = $1`, id)
	return roomID
}

// SetPinned toggles the pinned flag on a message.
func (r *MessageRepository) SetPinned(ctx context.Context, id string, pinned bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_messages SET pinned = $1 WHERE id = $2`, pinned, id)
	if err != nil {
		return fmt.Errorf("set pinned: %w", err)
	}
	return requireAffected(res, "message", id)
}

// SoftDelete marks a message deleted without removing history.
func (r *MessageRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_messages SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	return requireAffected(res, "message", id)
}

// ReactionRepository persists message reactions.
type ReactionRepository struct {
	db *sqlx.DB
}

// NewReactionRepository wraps a sqlx connection for reaction persistence.
func NewReactionRepository(db *sqlx.DB) *ReactionRepository {
	return &ReactionRepository{db: db}
}

// Add inserts a reaction, ignoring duplicates for the same user/emoji pair.
func (r *ReactionRepository) Add(ctx context.Context, reaction *Reaction) error {
	const q = `INSERT INTO chat_reactions (id, message_id, user_id, emoji, created_at)
		VALUES (:id, :message_id, :user_id, :emoji, :created_at)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING`
	_, err := r.db.NamedExecContext(ctx, q, reaction)
	if err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

// Remove deletes a reaction.
func (r *ReactionRepository) Remove(ctx context.Context, messageID, userID, emoji string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji)
	if err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	return nil
}

// ListByMessage returns every reaction on a message.
func (r *ReactionRepository) ListByMessage(ctx context.Context, messageID string) ([]*Reaction, error) {
	var reactions []*Reaction
	err := r.db.SelectContext(ctx, &reactions,
		`SELECT * FROM chat_reactions WHERE message_id = $1 ORDER BY created_at ASC`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	return reactions, nil
}

// RateLimitLogRepository persists rejected-send audit records.
type RateLimitLogRepository struct {
	db *sqlx.DB
}

// NewRateLimitLogRepository wraps a sqlx connection for rate limit audit logging.
func NewRateLimitLogRepository(db *sqlx.DB) *RateLimitLogRepository {
	return &RateLimitLogRepository{db: db}
}

// Record inserts one log row, either a rolling-window attempt counted
// towards a (room, user, kind) budget or a rejected-send audit entry.
func (r *RateLimitLogRepository) Record(ctx context.Context, entry *RateLimitLog) error {
	const q = `INSERT INTO chat_rate_limit_log (id, room_id, user_id, kind, reason, created_at)
		VALUES (:id, :room_id, :user_id, :kind, :reason, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, entry)
	if err != nil {
		return fmt.Errorf("record rate limit entry: %w", err)
	}
	return nil
}

// CountRecent returns how many log rows exist for a (room, user, kind)
// within the rolling window starting at since. This backs the per-command
// rolling-window rate check: the caller logs one row per attempt of a given
// kind and compares the count in the window against that kind's budget.
func (r *RateLimitLogRepository) CountRecent(ctx context.Context, roomID, userID, kind string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM chat_rate_limit_log WHERE room_id = $1 AND user_id = $2 AND kind = $3 AND created_at >= $4`,
		roomID, userID, kind, since)
	if err != nil {
		return 0, fmt.Errorf("count rate limit entries: %w", err)
	}
	return count, nil
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errors.NotFound(kind, id)
	}
	return nil
}
