package services

import (
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-backend/internal/lifecycle"
)

// EngineConfig tunes the services built by NewEngine. Zero values select
// the package defaults.
type EngineConfig struct {
	MaxContentRunes int
	EditMaxRetries  int
	ThreadMaxDepth  int
}

// Engine bundles the services sharing one dispatcher.
type Engine struct {
	Dispatcher    *lifecycle.Dispatcher
	Messages      *MessageService
	Users         *UserService
	Notifications *NotificationService
	History       *HistoryService
	Cascade       *CascadeCleaner
	Threads       *ThreadBuilder
	Unread        *UnreadIndex
}

// NewEngine wires every service onto db and registers the lifecycle
// reactions. Each event kind has exactly one reaction.
func NewEngine(db *gorm.DB, cfg EngineConfig) *Engine {
	d := lifecycle.NewDispatcher()

	notifications := &NotificationService{DB: db}
	history := &HistoryService{DB: db}
	cascade := &CascadeCleaner{}

	d.Register(lifecycle.MessageCreated, "notify_receiver", notifications.OnMessageCreated)
	d.Register(lifecycle.MessageContentChanged, "record_history", history.OnContentChanged)
	d.Register(lifecycle.UserDeleted, "cascade_cleanup", cascade.OnUserDeleted)

	return &Engine{
		Dispatcher:    d,
		Notifications: notifications,
		History:       history,
		Cascade:       cascade,
		Messages: &MessageService{
			DB:              db,
			Dispatcher:      d,
			MaxContentRunes: cfg.MaxContentRunes,
			EditMaxRetries:  cfg.EditMaxRetries,
		},
		Users:   &UserService{DB: db, Dispatcher: d},
		Threads: &ThreadBuilder{DB: db, MaxDepth: cfg.ThreadMaxDepth},
		Unread:  &UnreadIndex{DB: db},
	}
}
