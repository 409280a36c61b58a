package repo

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/chatverse/internal/domain"
)

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "nope", "chatverse.db")
	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error for %q, got db=%v err=%v", bad, db, err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDSN("/tmp/x.db")
	if !strings.HasPrefix(dsn, "/tmp/x.db?") {
		t.Fatalf("dsn = %q", dsn)
	}
	if n := strings.Count(dsn, "_pragma="); n != len(pragmas) {
		t.Fatalf("dsn has %d pragmas, want %d: %s", n, len(pragmas), dsn)
	}
}

func TestOpenSQLite_PragmasOnEveryConnection(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "chatverse.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if got := sqlDB.Stats().MaxOpenConnections; got != 10 {
		t.Fatalf("MaxOpenConnections = %d", got)
	}

	ctx := context.Background()
	// Hold two connections at once so the second one is freshly dialed.
	c1, err := sqlDB.Conn(ctx)
	if err != nil {
		t.Fatalf("conn 1: %v", err)
	}
	defer c1.Close()
	c2, err := sqlDB.Conn(ctx)
	if err != nil {
		t.Fatalf("conn 2: %v", err)
	}
	defer c2.Close()

	for i, conn := range []*sql.Conn{c1, c2} {
		var (
			journal string
			syncVal int
			fk      int
			busy    int
		)
		pragma(t, conn, "journal_mode", &journal)
		pragma(t, conn, "synchronous", &syncVal)
		pragma(t, conn, "foreign_keys", &fk)
		pragma(t, conn, "busy_timeout", &busy)
		if strings.ToLower(journal) != "wal" || syncVal != 1 || fk != 1 || busy != 5000 {
			t.Fatalf("conn %d: journal=%q sync=%d fk=%d busy=%d", i+1, journal, syncVal, fk, busy)
		}
	}
}

func pragma(t *testing.T, conn *sql.Conn, name string, dest any) {
	t.Helper()
	if err := conn.QueryRowContext(context.Background(), "PRAGMA "+name+";").Scan(dest); err != nil {
		t.Fatalf("PRAGMA %s: %v", name, err)
	}
}

func TestAutoMigrate_CreatesUsableTables(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "chatverse.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, tbl := range []any{&domain.AuthToken{}, &domain.Idempotency{}} {
		if !db.Migrator().HasTable(tbl) {
			t.Fatalf("missing table for %T", tbl)
		}
	}
	// Running it again is a no-op.
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("second AutoMigrate: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()
	if err := SaveToken(ctx, db, domain.AuthToken{UserID: "1", Username: "alice", Token: "t", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "1", "2", "k", "m1", 200, time.Hour); err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	got, err := LoadToken(ctx, db, now)
	if err != nil || got.Username != "alice" {
		t.Fatalf("LoadToken: %+v %v", got, err)
	}
}
