package service

import (
	"log/slog"

	"github.com/jonboulle/clockwork"

	"debate_room/internal/feedback"
	"debate_room/internal/repository"
)

// Options 建立 Services 所需的設定與協作者
type Options struct {
	Topics                feedback.TopicProvider
	Facilitator           feedback.Provider
	Analyzer              feedback.Analyzer // 可為 nil
	Feedback              feedback.Options
	MaxConnectionsPerRoom int
	MessagesPerSecond     float64
	Burst                 int
	Clock                 clockwork.Clock
	Logger                *slog.Logger
}

type Services struct {
	RoomService      *RoomService
	WebSocketService *WebSocketService
	Sessions         *SessionManager
	Hub              *Hub
}

func NewServices(repos *repository.Repositories, opts Options) *Services {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hub := NewHub(opts.MaxConnectionsPerRoom, logger)
	sessions := NewSessionManager(ManagerDeps{
		Store:       repos.Rooms,
		Publisher:   hub,
		Topics:      opts.Topics,
		Facilitator: opts.Facilitator,
		Analyzer:    opts.Analyzer,
		Options:     opts.Feedback,
		Clock:       opts.Clock,
		Logger:      logger,
	})

	return &Services{
		RoomService:      NewRoomService(repos.Rooms, sessions),
		WebSocketService: NewWebSocketService(hub, sessions, opts.MessagesPerSecond, opts.Burst, logger),
		Sessions:         sessions,
		Hub:              hub,
	}
}
