package chat

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/partshub/runtime/system/framework"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	db := sqlx.NewDb(raw, "postgres")

	perms := framework.NewManager()
	conns := NewConnectionManager(nil, nil, nil)

	service := NewService(
		NewRoomRepository(db),
		NewMemberRepository(db),
		NewMessageRepository(db, testMasterKey()),
		NewReactionRepository(db),
		NewRateLimitLogRepository(db),
		perms,
		conns,
		nil,
		nil,
	)
	return service, mock
}

func TestService_SendMessage_DeniedWithoutMembership(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectQuery("SELECT \\* FROM chat_members").
		WithArgs("room-1", "user-1").
		WillReturnRows(sqlmock.NewRows(nil))

	resp := service.HandleCommand(context.Background(), "conn-1", "user-1", &Command{
		Command: CommandSendMessage,
		Data:    map[string]interface{}{"room_id": "room-1", "content": "hello"},
	})

	if resp.Type != ResponseError {
		t.Fatalf("expected error response, got %+v", resp)
	}
}

func TestService_SendMessage_Succeeds(t *testing.T) {
	service, mock := newTestService(t)

	cols := []string{"id", "room_id", "user_id", "role", "active", "notifications_muted",
		"joined_at", "last_read_message_id", "last_seen_at"}
	now := time.Now()
	rows := sqlmock.NewRows(cols).AddRow("m-1", "room-1", "user-1", "member", true, false, now, nil, now)
	mock.ExpectQuery("SELECT \\* FROM chat_members").WithArgs("room-1", "user-1").WillReturnRows(rows)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chat_messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE chat_rooms SET last_message_at").WillReturnResult(sqlmock.NewResult(1, 1))

	resp := service.HandleCommand(context.Background(), "conn-1", "user-1", &Command{
		Command: CommandSendMessage,
		Data:    map[string]interface{}{"room_id": "room-1", "content": "hello"},
	})

	if resp.Type != ResponseMessageSent {
		t.Fatalf("expected message_sent response, got %+v", resp)
	}
}

func TestService_DeleteMessage_DeniedForNonAuthorMember(t *testing.T) {
	service, mock := newTestService(t)

	msgCols := []string{"id", "room_id", "author_id", "body", "parent_message_id",
		"reply_count", "pinned", "edited_at", "deleted_at", "created_at"}
	now := time.Now()
	mock.ExpectQuery("SELECT \\* FROM chat_messages").WithArgs("msg-1").
		WillReturnRows(sqlmock.NewRows(msgCols).AddRow("msg-1", "room-1", "author-1", "hi", nil, 0, false, nil, nil, now))

	memberCols := []string{"id", "room_id", "user_id", "role", "active", "notifications_muted",
		"joined_at", "last_read_message_id", "last_seen_at"}
	mock.ExpectQuery("SELECT \\* FROM chat_members").WithArgs("room-1", "user-2").
		WillReturnRows(sqlmock.NewRows(memberCols).AddRow("m-2", "room-1", "user-2", "member", true, false, now, nil, now))

	resp := service.HandleCommand(context.Background(), "conn-1", "user-2", &Command{
		Command: CommandDeleteMessage,
		Data:    map[string]interface{}{"room_id": "room-1", "message_id": "msg-1"},
	})

	if resp.Type != ResponseError {
		t.Fatalf("expected permission denied error, got %+v", resp)
	}
}

func TestService_UnknownCommand(t *testing.T) {
	service, _ := newTestService(t)

	resp := service.HandleCommand(context.Background(), "conn-1", "user-1", &Command{Command: "bogus"})
	if resp.Type != ResponseError {
		t.Fatalf("expected error response for unknown command, got %+v", resp)
	}
}

func TestService_SendMessage_DeniedForInactiveMember(t *testing.T) {
	service, mock := newTestService(t)

	cols := []string{"id", "room_id", "user_id", "role", "active", "notifications_muted",
		"joined_at", "last_read_message_id", "last_seen_at"}
	now := time.Now()
	rows := sqlmock.NewRows(cols).AddRow("m-1", "room-1", "user-1", "member", false, false, now, nil, now)
	mock.ExpectQuery("SELECT \\* FROM chat_members").WithArgs("room-1", "user-1").WillReturnRows(rows)

	resp := service.HandleCommand(context.Background(), "conn-1", "user-1", &Command{
		Command: CommandSendMessage,
		Data:    map[string]interface{}{"room_id": "room-1", "content": "hello"},
	})

	if resp.Type != ResponseError {
		t.Fatalf("expected error response for a removed member, got %+v", resp)
	}
}

func TestService_CreateDirectRoom_AddsBothMembers(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectExec("INSERT INTO chat_rooms").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO chat_members").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO chat_members").WillReturnResult(sqlmock.NewResult(1, 1))

	resp := service.HandleCommand(context.Background(), "conn-1", "user-1", &Command{
		Command: CommandCreateDirectRoom,
		Data:    map[string]interface{}{"tenant_id": "tenant-1", "user_id": "user-2"},
	})

	if resp.Type != ResponseRoomCreated {
		t.Fatalf("expected room_created response, got %+v", resp)
	}
}

func TestService_UpdateMemberRole_DeniedWhenActorOutranked(t *testing.T) {
	service, mock := newTestService(t)

	actorCols := []string{"id", "room_id", "user_id", "role", "active", "notifications_muted",
		"joined_at", "last_read_message_id", "last_seen_at"}
	now := time.Now()
	mock.ExpectQuery("SELECT \\* FROM chat_members").WithArgs("room-1", "admin-1").
		WillReturnRows(sqlmock.NewRows(actorCols).AddRow("m-1", "room-1", "admin-1", "admin", true, false, now, nil, now))
	mock.ExpectQuery("SELECT \\* FROM chat_members").WithArgs("room-1", "owner-1").
		WillReturnRows(sqlmock.NewRows(actorCols).AddRow("m-2", "room-1", "owner-1", "owner", true, false, now, nil, now))

	resp := service.HandleCommand(context.Background(), "conn-1", "admin-1", &Command{
		Command: CommandUpdateMemberRole,
		RoomID:  "room-1",
		Data:    map[string]interface{}{"user_id": "owner-1", "role": "owner"},
	})

	if resp.Type != ResponseError {
		t.Fatalf("expected permission denied error, got %+v", resp)
	}
}

func TestService_RemoveMember_SelfRemovalAllowedWithoutManagePermission(t *testing.T) {
	service, mock := newTestService(t)

	memberCols := []string{"id", "room_id", "user_id", "role", "active", "notifications_muted",
		"joined_at", "last_read_message_id", "last_seen_at"}
	now := time.Now()
	mock.ExpectQuery("SELECT \\* FROM chat_members").WithArgs("room-1", "user-1").
		WillReturnRows(sqlmock.NewRows(memberCols).AddRow("m-1", "room-1", "user-1", "member", true, false, now, nil, now))
	mock.ExpectExec("UPDATE chat_members SET active = false").
		WithArgs("room-1", "user-1").WillReturnResult(sqlmock.NewResult(0, 1))

	resp := service.HandleCommand(context.Background(), "conn-1", "user-1", &Command{
		Command: CommandRemoveMember,
		RoomID:  "room-1",
		Data:    map[string]interface{}{"user_id": "user-1"},
	})

	if resp.Type != ResponseMemberRemoved {
		t.Fatalf("expected member_removed response, got %+v", resp)
	}
}
