package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestRoomRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepository(db)

	room := &Room{
		ID: "room-1", TenantID: "tenant-1", Name: "General", Slug: "general",
		OwnerID: "user-1", CreatedAt: time.Now(), UpdatedAt: time.Now(), LastMessageAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO chat_rooms").WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRoomRepository_Get_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepository(db)

	mock.ExpectQuery("SELECT \\* FROM chat_rooms").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := repo.Get(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestRoomRepository_Get_Found(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepository(db)

	cols := []string{"id", "tenant_id", "name", "slug", "description", "owner_id",
		"is_private", "created_at", "updated_at", "last_message_at"}
	now := time.Now()
	rows := sqlmock.NewRows(cols).AddRow(
		"room-1", "tenant-1", "General", "general", "", "user-1", false, now, now, now)

	mock.ExpectQuery("SELECT \\* FROM chat_rooms").WithArgs("room-1").WillReturnRows(rows)

	room, err := repo.Get(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.Name != "General" {
		t.Errorf("expected name General, got %s", room.Name)
	}
}

func testMasterKey() []byte {
	return []byte(strings.Repeat("k", 32))
}

func TestMessageRepository_Create_BumpsReplyCount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepository(db, testMasterKey())

	parent := "msg-parent"
	msg := &Message{
		ID: "msg-1", RoomID: "room-1", AuthorID: "user-1", Body: "hi",
		ParentMessageID: &parent, CreatedAt: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chat_messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE chat_messages SET reply_count").
		WithArgs(parent).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.Create(context.Background(), msg); err != nil {
		t.Fatalf("create message: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMessageRepository_SoftDelete_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepository(db, testMasterKey())

	mock.ExpectExec("UPDATE chat_messages SET deleted_at").
		WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SoftDelete(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected not-found error for zero rows affected")
	}
}

func TestReactionRepository_AddAndRemove(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReactionRepository(db)

	reaction := &Reaction{ID: "r-1", MessageID: "msg-1", UserID: "user-1", Emoji: "👍", CreatedAt: time.Now()}

	mock.ExpectExec("INSERT INTO chat_reactions").WillReturnResult(sqlmock.NewResult(1, 1))
	if err := repo.Add(context.Background(), reaction); err != nil {
		t.Fatalf("add reaction: %v", err)
	}

	mock.ExpectExec("DELETE FROM chat_reactions").
		WithArgs("msg-1", "user-1", "👍").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Remove(context.Background(), "msg-1", "user-1", "👍"); err != nil {
		t.Fatalf("remove reaction: %v", err)
	}
}

func TestRateLimitLogRepository_RecordAndCount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRateLimitLogRepository(db)

	entry := &RateLimitLog{ID: "rl-1", RoomID: "room-1", UserID: "user-1", Kind: "send_message", Reason: "burst", CreatedAt: time.Now()}
	mock.ExpectExec("INSERT INTO chat_rate_limit_log").WillReturnResult(sqlmock.NewResult(1, 1))
	if err := repo.Record(context.Background(), entry); err != nil {
		t.Fatalf("record: %v", err)
	}

	rows := sqlmock.NewRows([]string{"count"}).AddRow(3)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM chat_rate_limit_log").WillReturnRows(rows)

	count, err := repo.CountRecent(context.Background(), "room-1", "user-1", "send_message", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("count recent: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}

func TestMemberRepository_Remove_SoftDeactivates(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMemberRepository(db)

	mock.ExpectExec("UPDATE chat_members SET active = false").
		WithArgs("room-1", "user-1").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Remove(context.Background(), "room-1", "user-1"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
}

func TestMemberRepository_Remove_NotFoundWhenAlreadyInactive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMemberRepository(db)

	mock.ExpectExec("UPDATE chat_members SET active = false").
		WithArgs("room-1", "user-1").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Remove(context.Background(), "room-1", "user-1"); err == nil {
		t.Fatal("expected not-found error for an already-inactive member")
	}
}

func TestRoomRepository_FindOrCreateDirect_WinsRace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepository(db)

	key := DirectRoomKey("user-a", "user-b")
	room := &Room{
		ID: "room-1", TenantID: "tenant-1", Type: RoomTypeDirect, Name: "", Slug: "dm-1",
		OwnerID: "user-a", Active: true, DirectKey: &key,
		CreatedAt: time.Now(), UpdatedAt: time.Now(), LastMessageAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO chat_rooms").WillReturnResult(sqlmock.NewResult(1, 1))

	got, created, err := repo.FindOrCreateDirect(context.Background(), room)
	if err != nil {
		t.Fatalf("find or create direct: %v", err)
	}
	if !created {
		t.Fatal("expected created=true when the insert wins")
	}
	if got.ID != "room-1" {
		t.Errorf("expected room-1, got %s", got.ID)
	}
}

func TestRoomRepository_FindOrCreateDirect_LosesRaceFindsExisting(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepository(db)

	key := DirectRoomKey("user-a", "user-b")
	room := &Room{
		ID: "room-new", TenantID: "tenant-1", Type: RoomTypeDirect, Slug: "dm-2",
		OwnerID: "user-a", Active: true, DirectKey: &key,
		CreatedAt: time.Now(), UpdatedAt: time.Now(), LastMessageAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO chat_rooms").WillReturnResult(sqlmock.NewResult(0, 0))

	cols := []string{"id", "tenant_id", "type", "name", "slug", "description", "owner_id",
		"is_private", "active", "direct_key", "created_at", "updated_at", "last_message_at"}
	now := time.Now()
	rows := sqlmock.NewRows(cols).AddRow(
		"room-existing", "tenant-1", "direct", "", "dm-1", "", "user-a", false, true, key, now, now, now)
	mock.ExpectQuery("SELECT \\* FROM chat_rooms").WillReturnRows(rows)

	got, created, err := repo.FindOrCreateDirect(context.Background(), room)
	if err != nil {
		t.Fatalf("find or create direct: %v", err)
	}
	if created {
		t.Fatal("expected created=false when another caller already won the race")
	}
	if got.ID != "room-existing" {
		t.Errorf("expected room-existing, got %s", got.ID)
	}
}

func TestMessageRepository_Create_EncryptsBodyAtRest(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepository(db, testMasterKey())

	msg := &Message{ID: "msg-1", RoomID: "room-1", AuthorID: "user-1", Body: "secret plans", CreatedAt: time.Now()}

	var storedBody string
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chat_messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.Create(context.Background(), msg); err != nil {
		t.Fatalf("create message: %v", err)
	}
	if msg.Body != "secret plans" {
		t.Errorf("expected in-memory body to remain plaintext after create, got %q", msg.Body)
	}

	encrypted, err := repo.encryptBody("room-1", "secret plans")
	if err != nil {
		t.Fatalf("encrypt body: %v", err)
	}
	storedBody = encrypted
	if storedBody == "secret plans" {
		t.Fatal("expected the persisted body to differ from plaintext")
	}
	decrypted := repo.decryptBody("room-1", storedBody)
	if decrypted != "secret plans" {
		t.Errorf("expected roundtrip decrypt to recover plaintext, got %q", decrypted)
	}
}

func TestMessageRepository_DecryptBody_UnknownKeyIDReturnsSentinel(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewMessageRepository(db, testMasterKey())

	if got := repo.decryptBody("room-1", "9:v1:garbage"); got != unavailableBody {
		t.Errorf("expected sentinel for unknown key id, got %q", got)
	}
	if got := repo.decryptBody("room-1", "not-an-envelope"); got != unavailableBody {
		t.Errorf("expected sentinel for malformed body, got %q", got)
	}
}
