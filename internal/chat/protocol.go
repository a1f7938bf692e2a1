package chat

// CommandType names an inbound WebSocket command.
type CommandType string

const (
	CommandJoinRoom       CommandType = "join_room"
	CommandLeaveRoom      CommandType = "leave_room"
	CommandSendMessage    CommandType = "send_message"
	CommandEditMessage    CommandType = "edit_message"
	CommandDeleteMessage  CommandType = "delete_message"
	CommandReadMessages   CommandType = "read_messages"
	CommandTypingStart    CommandType = "typing_start"
	CommandTypingStop     CommandType = "typing_stop"
	CommandFetchHistory   CommandType = "fetch_history"
	CommandAddReaction    CommandType = "add_reaction"
	CommandRemoveReaction CommandType = "remove_reaction"

	CommandFindDirectRoom   CommandType = "find_direct_room"
	CommandCreateDirectRoom CommandType = "create_direct_room"
	CommandCreateGroupRoom  CommandType = "create_group_room"
	CommandUpdateMemberRole CommandType = "update_member_role"
	CommandRemoveMember     CommandType = "remove_member"
)

// Command is a single inbound frame from a WebSocket client.
type Command struct {
	Command CommandType            `json:"command"`
	RoomID  string                 `json:"room_id,omitempty"`
	Data    map[string]interface{} `json:"data"`
}

// stringField reads a string value out of the command's data payload,
// returning "" when the key is absent or not a string. roomID adds the
// fallback to the top-level room_id.
func (c *Command) stringField(key string) string {
	if c.Data == nil {
		return ""
	}
	if v, ok := c.Data[key].(string); ok {
		return v
	}
	return ""
}

func (c *Command) roomID() string {
	if v := c.stringField("room_id"); v != "" {
		return v
	}
	return c.RoomID
}

func (c *Command) intField(key string, fallback int) int {
	if c.Data == nil {
		return fallback
	}
	switch v := c.Data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// ResponseType names an outbound WebSocket frame.
type ResponseType string

const (
	ResponseConnected       ResponseType = "connected"
	ResponseRoomList        ResponseType = "room_list"
	ResponseRoomJoined      ResponseType = "room_joined"
	ResponseRoomLeft        ResponseType = "room_left"
	ResponseUserJoined      ResponseType = "user_joined"
	ResponseUserLeft        ResponseType = "user_left"
	ResponseMessageSent     ResponseType = "message_sent"
	ResponseNewMessage      ResponseType = "new_message"
	ResponseMessageEdited   ResponseType = "message_edited"
	ResponseMessageDeleted  ResponseType = "message_deleted"
	ResponseMessagesRead    ResponseType = "messages_read"
	ResponseUserTyping      ResponseType = "user_typing"
	ResponseTypingStopped   ResponseType = "user_typing_stopped"
	ResponseMessageHistory  ResponseType = "message_history"
	ResponseReactionAdded   ResponseType = "reaction_added"
	ResponseReactionRemoved ResponseType = "reaction_removed"
	ResponseDirectRoomFound   ResponseType = "direct_room_found"
	ResponseRoomCreated       ResponseType = "room_created"
	ResponseMemberRoleUpdated ResponseType = "member_role_updated"
	ResponseMemberRemoved     ResponseType = "member_removed"
	ResponseError           ResponseType = "error"
)

// Response is a single outbound frame to a WebSocket client. RateLimit*
// fields stand in for the X-RateLimit-Remaining/Reset headers an HTTP API
// would carry; they are populated only on responses to a rate-limited
// command.
type Response struct {
	Type                  ResponseType `json:"type"`
	Success               bool         `json:"success"`
	Data                  interface{}  `json:"data,omitempty"`
	Error                 string       `json:"error,omitempty"`
	RateLimitRemaining    *int         `json:"rate_limit_remaining,omitempty"`
	RateLimitResetSeconds *int         `json:"rate_limit_reset_seconds,omitempty"`
}

func ok(t ResponseType, data interface{}) Response {
	return Response{Type: t, Success: true, Data: data}
}

func errResponse(message string) Response {
	return Response{Type: ResponseError, Success: false, Error: message}
}

func intPtr(n int) *int { return &n }
