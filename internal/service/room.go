package service

import (
	"context"

	"debate_room/internal/models"
	"debate_room/internal/repository"
)

// RoomDetail 房間、最近的訊息與即時狀態
type RoomDetail struct {
	Room     models.RoomSummary `json:"room"`
	Messages []models.Message   `json:"messages"`
	Session  SessionView        `json:"session"`
}

// CreatedRoom 建立房間的結果
type CreatedRoom struct {
	RoomID       string          `json:"room_id"`
	RoomType     models.RoomKind `json:"room_type"`
	Participants []string        `json:"participants"`
	Topic        string          `json:"topic"`
	Message      string          `json:"message"`
}

// RoomService HTTP 層使用的房間操作
type RoomService struct {
	rooms    repository.RoomStore
	sessions *SessionManager
}

func NewRoomService(rooms repository.RoomStore, sessions *SessionManager) *RoomService {
	return &RoomService{
		rooms:    rooms,
		sessions: sessions,
	}
}

func (s *RoomService) CreateRoom(ctx context.Context, input CreateRoomInput) (*CreatedRoom, error) {
	session, err := s.sessions.CreateRoom(ctx, input)
	if err != nil {
		return nil, err
	}

	room, err := s.rooms.GetRoom(ctx, session.RoomID())
	if err != nil {
		return nil, err
	}
	return &CreatedRoom{
		RoomID:       room.RoomID,
		RoomType:     room.RoomType,
		Participants: room.Participants,
		Topic:        room.Topic,
		Message:      "Room created. Connect via WebSocket to start the " + string(room.RoomType) + ".",
	}, nil
}

// GetRoom limit <= 0 回傳完整的訊息紀錄
func (s *RoomService) GetRoom(ctx context.Context, roomID string, limit int) (*RoomDetail, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	messages, err := s.rooms.ListMessages(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.GetOrRehydrate(ctx, roomID)
	if err != nil {
		return nil, err
	}

	return &RoomDetail{
		Room:     room.Summary(),
		Messages: messages,
		Session:  session.Snapshot(),
	}, nil
}

// ListRooms 只列出啟用中的房間
func (s *RoomService) ListRooms(ctx context.Context) ([]models.RoomSummary, error) {
	rooms, err := s.rooms.ListActiveRooms(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.RoomSummary, 0, len(rooms))
	for i := range rooms {
		summaries = append(summaries, rooms[i].Summary())
	}
	return summaries, nil
}

func (s *RoomService) RequestFeedback(ctx context.Context, roomID string) (Result, error) {
	session, err := s.sessions.GetOrRehydrate(ctx, roomID)
	if err != nil {
		return Result{}, err
	}
	return session.RequestFeedback(ctx)
}

func (s *RoomService) Finalize(ctx context.Context, roomID string) (Result, error) {
	session, err := s.sessions.GetOrRehydrate(ctx, roomID)
	if err != nil {
		return Result{}, err
	}
	return session.Finalize(ctx)
}

func (s *RoomService) CloseRoom(ctx context.Context, roomID string) error {
	return s.sessions.CloseRoom(ctx, roomID)
}
