package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"debate_room/internal/models"
	"debate_room/internal/storage"
)

// RoomStore 房間與訊息紀錄的持久化介面
//
// 每次呼叫都是原子的；同一房間的 AppendMessage 依呼叫完成順序分配連續序號。
type RoomStore interface {
	CreateRoom(ctx context.Context, kind models.RoomKind, participants []string, topic string) (*models.Room, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	ListActiveRooms(ctx context.Context) ([]models.Room, error)
	Deactivate(ctx context.Context, roomID string) error

	AppendMessage(ctx context.Context, roomID, speaker, content string, kind models.MessageKind) (*models.Message, error)
	ListMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error)
	ListMessagesAfter(ctx context.Context, roomID string, afterSeq int64, limit int) ([]models.Message, error)
	CountMessages(ctx context.Context, roomID string, kind models.MessageKind) (int64, error)
}

// IDGenerator 產生新的房間 ID
type IDGenerator func() string

// ShortID 取 UUID 前 8 碼作為房間 ID
func ShortID() string {
	return uuid.NewString()[:8]
}

type roomStore struct {
	db     *storage.DB
	clock  clockwork.Clock
	newID  IDGenerator
	logger *slog.Logger
}

// Option 調整 RoomStore 的行為
type Option func(*roomStore)

// WithClock 指定時間來源
func WithClock(clock clockwork.Clock) Option {
	return func(s *roomStore) { s.clock = clock }
}

// WithIDGenerator 指定房間 ID 產生器
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *roomStore) { s.newID = gen }
}

// NewRoomStore 建立以 gorm 實作的 RoomStore
func NewRoomStore(db *storage.DB, logger *slog.Logger, opts ...Option) RoomStore {
	s := &roomStore{
		db:     db,
		clock:  clockwork.NewRealClock(),
		newID:  ShortID,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Repositories struct {
	Rooms RoomStore
}

func NewRepositories(db *storage.DB, logger *slog.Logger, opts ...Option) *Repositories {
	return &Repositories{
		Rooms: NewRoomStore(db, logger, opts...),
	}
}
