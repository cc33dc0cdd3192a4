package services

import (
	"context"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-messaging-backend/internal/domain"
	"github.com/tbourn/go-messaging-backend/internal/lifecycle"
	"github.com/tbourn/go-messaging-backend/internal/repo"
)

// ---------- test helpers ----------

// newEngineDB opens a file-backed SQLite database with foreign keys enforced
// on every pooled connection, migrates it, and wires an Engine on top.
func newEngineDB(t *testing.T, cfg EngineConfig) (*gorm.DB, *Engine) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "svc.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db, NewEngine(db, cfg)
}

func mkUser(t *testing.T, e *Engine, name, role string) *domain.User {
	t.Helper()
	u, err := e.Users.Create(context.Background(), name, role)
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func count(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// ---------- NewEngine ----------

func TestNewEngine_RegistersOneReactionPerEvent(t *testing.T) {
	_, e := newEngineDB(t, EngineConfig{ThreadMaxDepth: 3, MaxContentRunes: 10, EditMaxRetries: 2})

	cases := map[lifecycle.Kind]string{
		lifecycle.MessageCreated:        "notify_receiver",
		lifecycle.MessageContentChanged: "record_history",
		lifecycle.UserDeleted:           "cascade_cleanup",
	}
	for kind, want := range cases {
		got := e.Dispatcher.Reactions(kind)
		if len(got) != 1 || got[0] != want {
			t.Fatalf("reactions for %s = %v; want [%s]", kind, got, want)
		}
	}
	if e.Threads.MaxDepth != 3 || e.Messages.MaxContentRunes != 10 || e.Messages.EditMaxRetries != 2 {
		t.Fatalf("config not propagated: %+v %+v", e.Threads, e.Messages)
	}
	if e.Messages.Dispatcher != e.Dispatcher || e.Users.Dispatcher != e.Dispatcher {
		t.Fatalf("services must share the engine dispatcher")
	}
}
