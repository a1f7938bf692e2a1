package chat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/partshub/runtime/infrastructure/cache"
	"github.com/partshub/runtime/infrastructure/errors"
	"github.com/partshub/runtime/infrastructure/logging"
	"github.com/partshub/runtime/system/framework"
)

// Service implements the chat command protocol: it validates a command
// against room membership and the permission manager, applies it through
// the repositories, and fans the resulting event out through the connection
// manager.
type Service struct {
	rooms       *RoomRepository
	members     *MemberRepository
	messages    *MessageRepository
	reactions   *ReactionRepository
	rateLimits  *RateLimitLogRepository
	permissions *framework.Manager
	conns       *ConnectionManager
	filter      *wordFilter
	log         *logging.Logger
}

// NewService wires the chat command handler to its repositories, the
// permission manager, and the connection manager. Command throughput is
// throttled by the per-(room, user, kind) rolling-window check backed by
// rateLimits, not by a separate limiter instance.
func NewService(
	rooms *RoomRepository,
	members *MemberRepository,
	messages *MessageRepository,
	reactions *ReactionRepository,
	rateLimits *RateLimitLogRepository,
	permissions *framework.Manager,
	conns *ConnectionManager,
	prohibited *cache.Cache,
	log *logging.Logger,
) *Service {
	return &Service{
		rooms:       rooms,
		members:     members,
		messages:    messages,
		reactions:   reactions,
		rateLimits:  rateLimits,
		permissions: permissions,
		conns:       conns,
		filter:      newWordFilter(prohibited),
		log:         log,
	}
}

// rateLimitRule is a (max_count, window_seconds) budget for one command
// kind, checked per (room, user, kind) against a rolling window of prior
// attempts logged in chat_rate_limit_log.
type rateLimitRule struct {
	kind       string
	maxCount   int
	windowSecs int
}

// frameLimitRule throttles the rate of inbound frames of any kind within a
// room, independently of the per-kind budgets below.
var frameLimitRule = rateLimitRule{kind: "frame", maxCount: 50, windowSecs: 60}

// commandRateLimits maps a command to the rolling-window budget it must
// additionally satisfy, on top of the frame-level limit. Commands absent
// from this map are only subject to the frame limit.
var commandRateLimits = map[CommandType]rateLimitRule{
	CommandSendMessage: {kind: "send_message", maxCount: 10, windowSecs: 60},
}

// HandleCommand processes one inbound command for userID on connID and
// returns the direct response to send back to the caller. Broadcasts to
// other room members happen as a side effect through the connection
// manager.
func (s *Service) HandleCommand(ctx context.Context, connID, userID string, cmd *Command) Response {
	roomID := cmd.roomID()

	allowed, remaining, reset := s.enforceRateLimit(ctx, roomID, userID, frameLimitRule)
	if !allowed {
		resp := errResponse("rate limit exceeded")
		resp.RateLimitRemaining = intPtr(remaining)
		resp.RateLimitResetSeconds = intPtr(reset)
		return resp
	}

	if rule, ok := commandRateLimits[cmd.Command]; ok {
		allowed, remaining, reset = s.enforceRateLimit(ctx, roomID, userID, rule)
		if !allowed {
			resp := errResponse("rate limit exceeded")
			resp.RateLimitRemaining = intPtr(remaining)
			resp.RateLimitResetSeconds = intPtr(reset)
			return resp
		}
	}

	return s.dispatch(ctx, connID, userID, cmd)
}

// enforceRateLimit logs this attempt against rule's (room, user, kind)
// budget and reports whether the caller is within the limit, along with the
// remaining budget and the window's reset time in seconds. Logging happens
// whether or not the command ultimately succeeds, matching a token-bucket's
// behavior of consuming budget per attempt.
func (s *Service) enforceRateLimit(ctx context.Context, roomID, userID string, rule rateLimitRule) (bool, int, int) {
	if s.rateLimits == nil || roomID == "" {
		return true, rule.maxCount, rule.windowSecs
	}
	since := time.Now().Add(-time.Duration(rule.windowSecs) * time.Second)
	count, err := s.rateLimits.CountRecent(ctx, roomID, userID, rule.kind, since)
	if err != nil {
		if s.log != nil {
			s.log.WithError(err).WithField("kind", rule.kind).Warn("rate limit check failed open")
		}
		return true, rule.maxCount, rule.windowSecs
	}

	remaining := rule.maxCount - count
	allowed := count < rule.maxCount
	if allowed {
		_ = s.rateLimits.Record(ctx, &RateLimitLog{
			ID: uuid.NewString(), RoomID: roomID, UserID: userID,
			Kind: rule.kind, Reason: "attempt", CreatedAt: time.Now(),
		})
		remaining--
	} else {
		_ = s.rateLimits.Record(ctx, &RateLimitLog{
			ID: uuid.NewString(), RoomID: roomID, UserID: userID,
			Kind: rule.kind, Reason: rule.kind + "_rate_exceeded", CreatedAt: time.Now(),
		})
	}
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, rule.windowSecs
}

func (s *Service) dispatch(ctx context.Context, connID, userID string, cmd *Command) Response {
	switch cmd.Command {
	case CommandJoinRoom:
		return s.handleJoinRoom(ctx, connID, userID, cmd)
	case CommandLeaveRoom:
		return s.handleLeaveRoom(ctx, connID, userID, cmd)
	case CommandSendMessage:
		return s.handleSendMessage(ctx, connID, userID, cmd)
	case CommandEditMessage:
		return s.handleEditMessage(ctx, connID, userID, cmd)
	case CommandDeleteMessage:
		return s.handleDeleteMessage(ctx, connID, userID, cmd)
	case CommandReadMessages:
		return s.handleReadMessages(ctx, userID, cmd)
	case CommandTypingStart:
		return s.handleTyping(ctx, connID, userID, cmd, ResponseUserTyping)
	case CommandTypingStop:
		return s.handleTyping(ctx, connID, userID, cmd, ResponseTypingStopped)
	case CommandFetchHistory:
		return s.handleFetchHistory(ctx, userID, cmd)
	case CommandAddReaction:
		return s.handleReaction(ctx, connID, userID, cmd, true)
	case CommandRemoveReaction:
		return s.handleReaction(ctx, connID, userID, cmd, false)
	case CommandFindDirectRoom:
		return s.handleFindDirectRoom(ctx, userID, cmd)
	case CommandCreateDirectRoom:
		return s.handleCreateDirectRoom(ctx, userID, cmd)
	case CommandCreateGroupRoom:
		return s.handleCreateGroupRoom(ctx, userID, cmd)
	case CommandUpdateMemberRole:
		return s.handleUpdateMemberRole(ctx, roomIDFromCmd(cmd), userID, cmd)
	case CommandRemoveMember:
		return s.handleRemoveMember(ctx, connID, roomIDFromCmd(cmd), userID, cmd)
	default:
		return errResponse("unknown command")
	}
}

func roomIDFromCmd(cmd *Command) string { return cmd.roomID() }

// requireMember loads the caller's membership, rejecting both non-members
// and members who have been removed (soft-deactivated) from the room.
func (s *Service) requireMember(ctx context.Context, roomID, userID string) (*Member, error) {
	member, err := s.members.Get(ctx, roomID, userID)
	if err != nil || !member.Active {
		return nil, errors.PermissionDenied("room")
	}
	return member, nil
}

func (s *Service) checkPermission(ctx context.Context, roomID string, member *Member, permission string) bool {
	role, ok := framework.ParseRoomRole(member.Role)
	if !ok {
		role = framework.RoleGuest
	}
	return s.permissions.CheckPermission(ctx, roomID, member.UserID, role, permission) == framework.PermissionGranted
}

func (s *Service) handleJoinRoom(ctx context.Context, connID, userID string, cmd *Command) Response {
	roomID := cmd.roomID()
	if roomID == "" {
		return errResponse("room_id is required")
	}

	member, err := s.requireMember(ctx, roomID, userID)
	if err != nil {
		return errResponse("access denied to room")
	}

	s.conns.JoinRoom(connID, roomID)

	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return errResponse("room not found")
	}

	s.conns.BroadcastToRoom(ctx, roomID, ok(ResponseUserJoined, map[string]interface{}{
		"room_id": roomID,
		"user_id": member.UserID,
	}), connID)

	return ok(ResponseRoomJoined, room)
}

func (s *Service) handleLeaveRoom(ctx context.Context, connID, userID string, cmd *Command) Response {
	roomID := cmd.roomID()
	if roomID == "" {
		return errResponse("room_id is required")
	}

	s.conns.LeaveRoom(connID, roomID)
	s.conns.BroadcastToRoom(ctx, roomID, ok(ResponseUserLeft, map[string]interface{}{
		"room_id": roomID,
		"user_id": userID,
	}), connID)

	return ok(ResponseRoomLeft, map[string]interface{}{"room_id": roomID})
}

func (s *Service) handleSendMessage(ctx context.Context, connID, userID string, cmd *Command) Response {
	roomID := cmd.roomID()
	body := cmd.stringField("content")
	if roomID == "" || body == "" {
		return errResponse("room_id and content are required")
	}

	if _, err := s.requireMember(ctx, roomID, userID); err != nil {
		return errResponse("access denied to room")
	}

	var parent *string
	if p := cmd.stringField("parent_message_id"); p != "" {
		parent = &p
	}

	msg := &Message{
		ID:              uuid.NewString(),
		RoomID:          roomID,
		AuthorID:        userID,
		Body:            s.filter.clean(body),
		ParentMessageID: parent,
		CreatedAt:       time.Now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		if s.log != nil {
			s.log.WithError(err).WithField("room_id", roomID).Warn("failed to persist chat message")
		}
		return errResponse("failed to send message")
	}
	if err := s.rooms.TouchLastMessage(ctx, roomID, msg.CreatedAt); err != nil && s.log != nil {
		s.log.WithError(err).WithField("room_id", roomID).Warn("failed to bump room last_message_at")
	}

	s.conns.BroadcastToRoom(ctx, roomID, ok(ResponseNewMessage, msg), connID)
	return ok(ResponseMessageSent, msg)
}

func (s *Service) handleEditMessage(ctx context.Context, connID, userID string, cmd *Command) Response {
	roomID := cmd.roomID()
	messageID := cmd.stringField("message_id")
	body := cmd.stringField("content")
	if roomID == "" || messageID == "" || body == "" {
		return errResponse("room_id, message_id and content are required")
	}

	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return errResponse("message not found")
	}

	member, err := s.requireMember(ctx, roomID, userID)
	if err != nil {
		return errResponse("access denied to room")
	}
	if msg.AuthorID != userID && !s.checkPermission(ctx, roomID, member, framework.PermissionDeleteMessage) {
		return errResponse("permission denied to edit message")
	}

	if err := s.messages.Edit(ctx, messageID, s.filter.clean(body)); err != nil {
		return errResponse("failed to edit message")
	}

	updated, _ := s.messages.Get(ctx, messageID)
	s.conns.BroadcastToRoom(ctx, roomID, ok(ResponseMessageEdited, updated), connID)
	return ok(ResponseMessageEdited, updated)
}

func (s *Service) handleDeleteMessage(ctx context.Context, connID, userID string, cmd *Command) Response {
	roomID := cmd.roomID()
	messageID := cmd.stringField("message_id")
	if roomID == "" || messageID == "" {
		return errResponse("room_id and message_id are required")
	}

	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return errResponse("message not found")
	}

	member, err := s.requireMember(ctx, roomID, userID)
	if err != nil {
		return errResponse("access denied to room")
	}
	if msg.AuthorID != userID && !s.checkPermission(ctx, roomID, member, framework.PermissionDeleteMessage) {
		return errResponse("permission denied to delete message")
	}

	if err := s.messages.SoftDelete(ctx, messageID); err != nil {
		return errResponse("failed to delete message")
	}

	data := map[string]interface{}{"room_id": roomID, "message_id": messageID}
	s.conns.BroadcastToRoom(ctx, roomID, ok(ResponseMessageDeleted, data), connID)
	return ok(ResponseMessageDeleted, data)
}

func (s *Service) handleReadMessages(ctx context.Context, userID string, cmd *Command) Response {
	roomID := cmd.roomID()
	lastReadID := cmd.stringField("last_read_id")
	if roomID == "" || lastReadID == "" {
		return errResponse("room_id and last_read_id are required")
	}

	if err := s.members.MarkRead(ctx, roomID, userID, lastReadID); err != nil {
		return errResponse("failed to mark messages read")
	}

	return ok(ResponseMessagesRead, map[string]interface{}{"room_id": roomID, "last_read_id": lastReadID})
}

func (s *Service) handleTyping(ctx context.Context, connID, userID string, cmd *Command, responseType ResponseType) Response {
	roomID := cmd.roomID()
	if roomID == "" {
		return errResponse("room_id is required")
	}

	s.conns.BroadcastToRoom(ctx, roomID, ok(responseType, map[string]interface{}{
		"room_id": roomID,
		"user_id": userID,
	}), connID)

	return ok(responseType, map[string]interface{}{"room_id": roomID})
}

func (s *Service) handleFetchHistory(ctx context.Context, userID string, cmd *Command) Response {
	roomID := cmd.roomID()
	if roomID == "" {
		return errResponse("room_id is required")
	}
	if _, err := s.requireMember(ctx, roomID, userID); err != nil {
		return errResponse("access denied to room")
	}

	before := time.Now()
	limit := cmd.intField("limit", 50)
	messages, err := s.messages.ListByRoom(ctx, roomID, before, limit)
	if err != nil {
		return errResponse("failed to fetch history")
	}

	return ok(ResponseMessageHistory, map[string]interface{}{"room_id": roomID, "messages": messages})
}

// handleFindDirectRoom looks up the active direct room between the caller
// and another user, without creating one.
func (s *Service) handleFindDirectRoom(ctx context.Context, userID string, cmd *Command) Response {
	tenantID := cmd.stringField("tenant_id")
	otherUserID := cmd.stringField("user_id")
	if tenantID == "" || otherUserID == "" {
		return errResponse("tenant_id and user_id are required")
	}

	room, err := s.rooms.FindDirect(ctx, tenantID, userID, otherUserID)
	if err != nil {
		return errResponse("no direct room exists for these users")
	}
	return ok(ResponseDirectRoomFound, room)
}

// handleCreateDirectRoom finds or idempotently creates the direct room
// between the caller and another user, adding both as active members on
// first creation.
func (s *Service) handleCreateDirectRoom(ctx context.Context, userID string, cmd *Command) Response {
	tenantID := cmd.stringField("tenant_id")
	otherUserID := cmd.stringField("user_id")
	if tenantID == "" || otherUserID == "" {
		return errResponse("tenant_id and user_id are required")
	}
	if otherUserID == userID {
		return errResponse("cannot create a direct room with yourself")
	}

	now := time.Now()
	key := DirectRoomKey(userID, otherUserID)
	room := &Room{
		ID: uuid.NewString(), TenantID: tenantID, Type: RoomTypeDirect,
		Slug: "dm-" + uuid.NewString(), OwnerID: userID, IsPrivate: true, Active: true,
		DirectKey: &key, CreatedAt: now, UpdatedAt: now, LastMessageAt: now,
	}

	got, created, err := s.rooms.FindOrCreateDirect(ctx, room)
	if err != nil {
		return errResponse("failed to create direct room")
	}
	if created {
		for _, participant := range []string{userID, otherUserID} {
			if err := s.members.Add(ctx, &Member{
				ID: uuid.NewString(), RoomID: got.ID, UserID: participant,
				Role: framework.RoleMember.String(), JoinedAt: now, LastSeenAt: now,
			}); err != nil && s.log != nil {
				s.log.WithError(err).WithField("room_id", got.ID).Warn("failed to add direct room member")
			}
		}
	}

	return ok(ResponseRoomCreated, map[string]interface{}{"room": got, "created": created})
}

// handleCreateGroupRoom creates a group room owned by the caller, optionally
// seeding it with additional members from the command payload.
func (s *Service) handleCreateGroupRoom(ctx context.Context, userID string, cmd *Command) Response {
	tenantID := cmd.stringField("tenant_id")
	name := cmd.stringField("name")
	if tenantID == "" || name == "" {
		return errResponse("tenant_id and name are required")
	}

	slug := cmd.stringField("slug")
	if slug == "" {
		slug = uuid.NewString()
	}
	isPrivate, _ := cmd.Data["is_private"].(bool)

	now := time.Now()
	room := &Room{
		ID: uuid.NewString(), TenantID: tenantID, Type: RoomTypeGroup,
		Name: name, Slug: slug, Description: cmd.stringField("description"),
		OwnerID: userID, IsPrivate: isPrivate, Active: true,
		CreatedAt: now, UpdatedAt: now, LastMessageAt: now,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return errResponse("failed to create room")
	}

	if err := s.members.Add(ctx, &Member{
		ID: uuid.NewString(), RoomID: room.ID, UserID: userID,
		Role: framework.RoleOwner.String(), JoinedAt: now, LastSeenAt: now,
	}); err != nil && s.log != nil {
		s.log.WithError(err).WithField("room_id", room.ID).Warn("failed to add room owner as member")
	}

	if rawMembers, ok := cmd.Data["member_ids"].([]interface{}); ok {
		for _, raw := range rawMembers {
			memberID, ok := raw.(string)
			if !ok || memberID == "" || memberID == userID {
				continue
			}
			if err := s.members.Add(ctx, &Member{
				ID: uuid.NewString(), RoomID: room.ID, UserID: memberID,
				Role: framework.RoleMember.String(), JoinedAt: now, LastSeenAt: now,
			}); err != nil && s.log != nil {
				s.log.WithError(err).WithField("room_id", room.ID).Warn("failed to add seeded group member")
			}
		}
	}

	return ok(ResponseRoomCreated, map[string]interface{}{"room": room, "created": true})
}

// handleUpdateMemberRole changes a target member's role, enforcing that an
// actor may only act on members strictly below their own role and may only
// grant roles strictly below their own, unless the actor is the room owner.
func (s *Service) handleUpdateMemberRole(ctx context.Context, roomID, userID string, cmd *Command) Response {
	targetUserID := cmd.stringField("user_id")
	roleRaw := cmd.stringField("role")
	if roomID == "" || targetUserID == "" || roleRaw == "" {
		return errResponse("room_id, user_id and role are required")
	}

	actor, err := s.requireMember(ctx, roomID, userID)
	if err != nil {
		return errResponse("access denied to room")
	}
	if !s.checkPermission(ctx, roomID, actor, framework.PermissionManageMembers) {
		return errResponse("permission denied to manage members")
	}

	newRole, ok := framework.ParseRoomRole(roleRaw)
	if !ok {
		return errResponse("unknown role")
	}

	target, err := s.members.Get(ctx, roomID, targetUserID)
	if err != nil || !target.Active {
		return errResponse("member not found")
	}

	actorRole, _ := framework.ParseRoomRole(actor.Role)
	targetRole, _ := framework.ParseRoomRole(target.Role)
	if actorRole != framework.RoleOwner && (targetRole.AtLeast(actorRole) || newRole.AtLeast(actorRole)) {
		return errResponse("cannot assign a role at or above your own")
	}
	if newRole == framework.RoleOwner && !s.checkPermission(ctx, roomID, actor, framework.PermissionTransferOwnership) {
		return errResponse("permission denied to transfer ownership")
	}

	if err := s.members.UpdateRole(ctx, roomID, targetUserID, newRole.String()); err != nil {
		return errResponse("failed to update member role")
	}

	data := map[string]interface{}{"room_id": roomID, "user_id": targetUserID, "role": newRole.String()}
	s.conns.BroadcastToRoom(ctx, roomID, ok(ResponseMemberRoleUpdated, data), "")
	return ok(ResponseMemberRoleUpdated, data)
}

// handleRemoveMember soft-removes a member from the room. A member may
// always remove themselves; removing someone else requires the
// REMOVE_MEMBER permission and that the target not outrank the actor, and
// the owner can never be removed this way (ownership must transfer first).
func (s *Service) handleRemoveMember(ctx context.Context, connID, roomID, userID string, cmd *Command) Response {
	targetUserID := cmd.stringField("user_id")
	if roomID == "" || targetUserID == "" {
		return errResponse("room_id and user_id are required")
	}

	actor, err := s.requireMember(ctx, roomID, userID)
	if err != nil {
		return errResponse("access denied to room")
	}

	if targetUserID != userID {
		if !s.checkPermission(ctx, roomID, actor, framework.PermissionRemoveMember) {
			return errResponse("permission denied to remove member")
		}
		target, err := s.members.Get(ctx, roomID, targetUserID)
		if err != nil || !target.Active {
			return errResponse("member not found")
		}
		targetRole, _ := framework.ParseRoomRole(target.Role)
		if targetRole == framework.RoleOwner {
			return errResponse("cannot remove the room owner")
		}
		actorRole, _ := framework.ParseRoomRole(actor.Role)
		if actorRole != framework.RoleOwner && targetRole.AtLeast(actorRole) {
			return errResponse("cannot remove a member at or above your own role")
		}
	}

	if err := s.members.Remove(ctx, roomID, targetUserID); err != nil {
		return errResponse("failed to remove member")
	}

	data := map[string]interface{}{"room_id": roomID, "user_id": targetUserID}
	s.conns.LeaveRoom(connID, roomID)
	s.conns.BroadcastToRoom(ctx, roomID, ok(ResponseMemberRemoved, data), connID)
	return ok(ResponseMemberRemoved, data)
}

func (s *Service) handleReaction(ctx context.Context, connID, userID string, cmd *Command, add bool) Response {
	roomID := cmd.roomID()
	messageID := cmd.stringField("message_id")
	emoji := cmd.stringField("reaction")
	if roomID == "" || messageID == "" || emoji == "" {
		return errResponse("room_id, message_id and reaction are required")
	}

	if _, err := s.requireMember(ctx, roomID, userID); err != nil {
		return errResponse("access denied to room")
	}

	responseType := ResponseReactionAdded
	var opErr error
	if add {
		opErr = s.reactions.Add(ctx, &Reaction{
			ID: uuid.NewString(), MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: time.Now(),
		})
	} else {
		responseType = ResponseReactionRemoved
		opErr = s.reactions.Remove(ctx, messageID, userID, emoji)
	}
	if opErr != nil {
		return errResponse("failed to update reaction")
	}

	data := map[string]interface{}{
		"room_id": roomID, "message_id": messageID, "reaction": emoji, "user_id": userID,
	}
	s.conns.BroadcastToRoom(ctx, roomID, ok(responseType, data), connID)
	return ok(responseType, data)
}
