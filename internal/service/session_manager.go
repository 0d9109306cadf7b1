package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"debate_room/internal/apperror"
	"debate_room/internal/feedback"
	"debate_room/internal/metrics"
	"debate_room/internal/models"
	"debate_room/internal/repository"
)

const (
	createRoomAttempts = 3
	restoreWindow      = 200 // 重建時讀取的最近訊息數
)

// CreateRoomInput 建立房間的參數
type CreateRoomInput struct {
	RoomType     string   `validate:"required,oneof=debate discussion"`
	Participants []string `validate:"min=1,max=6,dive,required"`
	Category     string
}

// ManagerDeps SessionManager 的協作者
type ManagerDeps struct {
	Store       repository.RoomStore
	Publisher   Publisher
	Topics      feedback.TopicProvider
	Facilitator feedback.Provider
	Analyzer    feedback.Analyzer
	Options     feedback.Options
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// SessionManager 以房間 ID 管理常駐記憶體的 Session
//
// 只有啟用中的房間會常駐；停用的房間每次都從儲存層重建為唯讀 Session。
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group
	jobs     sync.WaitGroup // 包含已移除 (關閉) 的 Session 的回饋
	validate *validator.Validate
	deps     ManagerDeps
}

func NewSessionManager(deps ManagerDeps) *SessionManager {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Topics == nil {
		deps.Topics = feedback.NewTopicCatalog(nil)
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		validate: validator.New(),
		deps:     deps,
	}
}

// CreateRoom 驗證輸入、選題、建立房間並啟用 Session
func (m *SessionManager) CreateRoom(ctx context.Context, input CreateRoomInput) (*Session, error) {
	input.RoomType = strings.TrimSpace(input.RoomType)
	input.Participants = lo.Map(input.Participants, func(name string, _ int) string {
		return strings.TrimSpace(name)
	})
	if err := m.validateInput(input); err != nil {
		return nil, err
	}

	kind := models.RoomKind(input.RoomType)
	topic := m.deps.Topics.SelectTopic(ctx, input.Category)

	var room *models.Room
	var err error
	for attempt := 1; attempt <= createRoomAttempts; attempt++ {
		room, err = m.deps.Store.CreateRoom(ctx, kind, input.Participants, topic)
		if !errors.Is(err, apperror.ErrDuplicateRoomID) {
			break
		}
		m.deps.Logger.Warn("room id collision, retrying", "attempt", attempt)
	}
	if err != nil {
		return nil, err
	}

	session := m.newSession(room)
	if err := session.Setup(room.Participants); err != nil {
		return nil, err
	}
	if err := session.AssignTopic(room.Topic); err != nil {
		return nil, err
	}
	if err := session.Activate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[room.RoomID] = session
	metrics.ResidentSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	m.deps.Logger.Info("room created", "room_id", room.RoomID, "room_type", kind, "participants", len(room.Participants))
	return session, nil
}

// GetOrRehydrate 取得常駐的 Session，必要時從儲存層重建
//
// 回合索引由 user 訊息數對參與者人數取餘數還原；只有啟用中的房間會回到 Live。
func (m *SessionManager) GetOrRehydrate(ctx context.Context, roomID string) (*Session, error) {
	if session, ok := m.lookup(roomID); ok {
		return session, nil
	}

	v, err, _ := m.group.Do(roomID, func() (interface{}, error) {
		if session, ok := m.lookup(roomID); ok {
			return session, nil
		}
		return m.rehydrate(ctx, roomID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// CloseRoom 停用房間
func (m *SessionManager) CloseRoom(ctx context.Context, roomID string) error {
	session, err := m.GetOrRehydrate(ctx, roomID)
	if err != nil {
		return err
	}
	return session.Deactivate(ctx)
}

// Resident 常駐的 Session 數
func (m *SessionManager) Resident() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown 等待所有回饋完成，或 ctx 結束
//
// 已關閉並移出快取的房間，其進行中的回饋也會被等待。
func (m *SessionManager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for feedback jobs: %w", ctx.Err())
	}
}

func (m *SessionManager) lookup(roomID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[roomID]
	return session, ok
}

func (m *SessionManager) evict(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, roomID)
	metrics.ResidentSessions.Set(float64(len(m.sessions)))
}

func (m *SessionManager) newSession(room *models.Room) *Session {
	return NewSession(room.RoomID, room.RoomType, SessionDeps{
		Store:       m.deps.Store,
		Publisher:   m.deps.Publisher,
		Facilitator: m.deps.Facilitator,
		Analyzer:    m.deps.Analyzer,
		Options:     m.deps.Options,
		Clock:       m.deps.Clock,
		Logger:      m.deps.Logger,
		OnClose:     m.evict,
		Jobs:        &m.jobs,
	})
}

func (m *SessionManager) rehydrate(ctx context.Context, roomID string) (*Session, error) {
	room, err := m.deps.Store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	session := m.newSession(room)
	if err := session.Setup(room.Participants); err != nil {
		return nil, fmt.Errorf("rehydrate room %s: %w", roomID, err)
	}
	if err := session.AssignTopic(room.Topic); err != nil {
		return nil, fmt.Errorf("rehydrate room %s: %w", roomID, err)
	}

	statements, err := m.deps.Store.CountMessages(ctx, roomID, models.MessageKindUser)
	if err != nil {
		return nil, err
	}
	tail, err := m.deps.Store.ListMessages(ctx, roomID, restoreWindow)
	if err != nil {
		return nil, err
	}
	since, recent := replayTail(tail)
	session.restore(int(statements), since, recent)

	if !room.IsActive {
		session.markClosed()
		return session, nil
	}
	if err := session.Activate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[roomID] = session
	metrics.ResidentSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	m.deps.Logger.Info("session rehydrated", "room_id", roomID, "statements", statements)
	return session, nil
}

// replayTail 從最近的訊息計算上次主持人回饋之後的發言數與最近的發言
func replayTail(tail []models.Message) (sinceFeedback int, recent []feedback.Statement) {
	for i := len(tail) - 1; i >= 0; i-- {
		msg := tail[i]
		if msg.Kind == models.MessageKindAgent && msg.Speaker == feedback.FacilitatorName {
			break
		}
		if msg.Kind == models.MessageKindUser {
			sinceFeedback++
		}
	}
	recent = lo.FilterMap(tail, func(msg models.Message, _ int) (feedback.Statement, bool) {
		return feedback.Statement{Speaker: msg.Speaker, Content: msg.Content}, msg.Kind == models.MessageKindUser
	})
	return sinceFeedback, recent
}

func (m *SessionManager) validateInput(input CreateRoomInput) error {
	err := m.validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.Validation(err.Error())
	}
	fe := fieldErrs[0]
	switch {
	case fe.Field() == "RoomType":
		return apperror.Validation("room type must be 'debate' or 'discussion'")
	case fe.Field() == "Participants":
		return apperror.Validation(fmt.Sprintf("participant count must be between %d and %d",
			models.MinParticipants, models.MaxParticipants))
	case strings.HasPrefix(fe.Field(), "Participants["):
		return apperror.Validation("participant names must not be empty")
	default:
		return apperror.Validation(fe.Error())
	}
}
