package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestSeverity_Valid(t *testing.T) {
	for _, s := range []Severity{SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError} {
		if !s.Valid() {
			t.Fatalf("%q should be valid", s)
		}
	}
	for _, s := range []Severity{"", "debug", "INFO"} {
		if s.Valid() {
			t.Fatalf("%q should be invalid", s)
		}
	}
}

func TestErrorTaxonomy_AsAndUnwrap(t *testing.T) {
	root := errors.New("connection refused")

	var err error = fmt.Errorf("load rooms: %w", &TransportError{Op: "fetch_rooms", Err: root})
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "fetch_rooms" {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !errors.Is(err, root) {
		t.Fatalf("TransportError should unwrap to root cause")
	}
	if te.Error() != "fetch_rooms: connection refused" {
		t.Fatalf("TransportError.Error() = %q", te.Error())
	}

	ae := &AuthError{Message: "Invalid credentials"}
	if ae.Error() != "Invalid credentials" {
		t.Fatalf("AuthError.Error() = %q", ae.Error())
	}
	if (&AuthError{Err: root}).Error() != "connection refused" {
		t.Fatalf("AuthError should fall back to wrapped message")
	}

	ve := &ValidationError{Problems: []string{"a", "b"}}
	if ve.Error() != "a; b" {
		t.Fatalf("ValidationError.Error() = %q", ve.Error())
	}
}

func TestClone_DoesNotAlias(t *testing.T) {
	last := &Message{ID: "m1", Text: "hi"}
	r := ChatRoom{ID: "r1", Participants: []User{{ID: "u1"}}, LastMessage: last}
	c := r.Clone()
	c.Participants[0].ID = "changed"
	c.LastMessage.Text = "changed"
	if r.Participants[0].ID != "u1" || r.LastMessage.Text != "hi" {
		t.Fatalf("ChatRoom.Clone aliased the original: %+v", r)
	}

	s := Session{User: &User{ID: "u1"}, Authenticated: true}
	sc := s.Clone()
	sc.User.ID = "changed"
	if s.User.ID != "u1" {
		t.Fatalf("Session.Clone aliased the user")
	}
}

func TestRecords_MigrateAndUniqueKey(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&AuthToken{}, &Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if (AuthToken{}).TableName() != "auth_tokens" || (Idempotency{}).TableName() != "idempotency" {
		t.Fatalf("unexpected table names")
	}
	if !db.Migrator().HasIndex(&Idempotency{}, "ux_user_room_key") {
		t.Fatalf("expected unique index ux_user_room_key")
	}

	now := time.Now().UTC()
	rec := Idempotency{ID: "i1", UserID: "u", RoomID: "r", Key: "k", MessageID: "m", Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	dup := rec
	dup.ID = "i2"
	if err := db.Create(&dup).Error; err == nil {
		t.Fatalf("expected unique violation for duplicate (user, room, key)")
	}
}
