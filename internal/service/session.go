package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"

	"debate_room/internal/apperror"
	"debate_room/internal/feedback"
	"debate_room/internal/metrics"
	"debate_room/internal/models"
	"debate_room/internal/repository"
	"debate_room/internal/turn"
)

// SummaryUnavailableText 總結提供者無法使用時的回覆
const SummaryUnavailableText = "A summary is not available right now. Thank you all for the conversation."

// State Session 的生命週期狀態
type State int

const (
	StateUninitialized State = iota
	StateConfigured          // 已設定參與者 (與主題)
	StateLive                // 接受發言
	StateClosed              // 唯讀
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionDeps Session 需要的協作者
type SessionDeps struct {
	Store       repository.RoomStore
	Publisher   Publisher
	Facilitator feedback.Provider
	Analyzer    feedback.Analyzer // 可為 nil
	Options     feedback.Options
	Clock       clockwork.Clock
	Logger      *slog.Logger
	OnClose     func(roomID string)
	Jobs        *sync.WaitGroup // 可為 nil；由擁有者追蹤所有 Session 的回饋
}

// Result 手動回饋或總結請求的結果
type Result struct {
	Text      string `json:"text"`
	Scheduled bool   `json:"scheduled"` // 回饋已排程，稍後以 message 事件送出
}

// SessionView Session 的唯讀快照
type SessionView struct {
	RoomID         string `json:"room_id"`
	State          string `json:"state"`
	CurrentSpeaker string `json:"current_speaker"`
	NextSpeaker    string `json:"next_speaker"`
	Round          int    `json:"round"`
	Statements     int    `json:"statements"`
}

// Session 單一房間的即時協調者
//
// 所有狀態變更都在 mu 之下進行，同一房間只有一個寫入者；
// 回饋在獨立的 goroutine 中產生，不會延遲發言的廣播。
type Session struct {
	mu sync.Mutex

	roomID    string
	kind      models.RoomKind
	topic     string
	state     State
	sequencer *turn.Sequencer

	statements        int // 已接受的 user 發言數
	sinceFeedback     int
	recent            []feedback.Statement
	notes             map[string][]string
	secondaryDisabled bool
	closing           bool

	scheduler *feedback.Scheduler
	deps      SessionDeps
	jobs      sync.WaitGroup
}

// NewSession 建立一個尚未設定的 Session
func NewSession(roomID string, kind models.RoomKind, deps SessionDeps) *Session {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Session{
		roomID:    roomID,
		kind:      kind,
		state:     StateUninitialized,
		notes:     make(map[string][]string),
		scheduler: feedback.NewScheduler(deps.Options),
		deps:      deps,
	}
}

func (s *Session) RoomID() string { return s.roomID }

func (s *Session) logger() *slog.Logger {
	return s.deps.Logger.With("room_id", s.roomID)
}

// Setup 設定參與者順序：Uninitialized -> Configured
func (s *Session) Setup(participants []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return apperror.State("participants already configured")
	}
	if err := validateParticipants(participants); err != nil {
		return err
	}
	seq, err := turn.NewSequencer(participants)
	if err != nil {
		return err
	}
	s.sequencer = seq
	s.state = StateConfigured
	return nil
}

// AssignTopic 設定主題，只能設定一次
func (s *Session) AssignTopic(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfigured {
		return apperror.State("topic can only be assigned while configuring")
	}
	if s.topic != "" {
		return apperror.State("topic already assigned")
	}
	if strings.TrimSpace(topic) == "" {
		return apperror.Validation("topic must not be empty")
	}
	s.topic = topic
	return nil
}

// Activate Configured -> Live
func (s *Session) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfigured {
		return apperror.State("session must be configured before activation")
	}
	if s.topic == "" {
		return apperror.State("topic must be assigned before activation")
	}
	s.state = StateLive
	return nil
}

// Deactivate Live -> Closed；已關閉時不做任何事
//
// 已排程的回饋不會被取消，完成後仍會寫入並廣播。
func (s *Session) Deactivate(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return nil
	case StateLive:
	default:
		s.mu.Unlock()
		return apperror.ErrNotLive
	}

	if err := s.deps.Store.Deactivate(ctx, s.roomID); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = StateClosed
	s.publishLocked(Event{Type: EventClosed, RoomID: s.roomID, Timestamp: s.deps.Clock.Now()})
	s.mu.Unlock()

	s.logger().Info("room closed")
	if s.deps.OnClose != nil {
		s.deps.OnClose(s.roomID)
	}
	return nil
}

// Ingest 接受一則發言
//
// 任何參與者都可以在非自己的回合發言；發言順序只作為提示。
// 保留的代理身分 (Facilitator 等) 的發言以 agent 類型寫入，不推進回合。
func (s *Session) Ingest(ctx context.Context, speaker, content string) (*models.Message, error) {
	speaker = strings.TrimSpace(speaker)
	if speaker == "" || strings.TrimSpace(content) == "" {
		return nil, apperror.Validation("speaker and content are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLive {
		return nil, apperror.ErrNotLive
	}

	kind := models.MessageKindUser
	if isReservedAgent(speaker) {
		kind = models.MessageKindAgent
	} else if !lo.Contains(s.sequencer.Participants(), speaker) {
		return nil, apperror.ErrUnknownSpeaker
	}

	msg, err := s.deps.Store.AppendMessage(ctx, s.roomID, speaker, content, kind)
	if err != nil {
		if errors.Is(err, apperror.ErrRoomInactive) {
			s.closedElsewhereLocked()
			return nil, apperror.ErrNotLive
		}
		return nil, err
	}
	metrics.MessagesAppendedTotal.WithLabelValues(string(kind)).Inc()

	if kind == models.MessageKindAgent {
		s.publishLocked(MessageEvent(msg, s.sequencer.Current(), s.sequencer.Rounds()))
		return msg, nil
	}

	roundCompleted := s.sequencer.Advance()
	s.statements++
	s.sinceFeedback++
	s.pushRecentLocked(feedback.Statement{Speaker: speaker, Content: content})

	fireRound := s.scheduler.ShouldFireRound(feedback.State{
		StatementsSinceFeedback: s.sinceFeedback,
		RoundCompleted:          roundCompleted,
	})
	firePerStatement := s.scheduler.ShouldFirePerStatement() && s.deps.Analyzer != nil && !s.secondaryDisabled
	exhausted := roundCompleted && s.scheduler.RoundsExhausted(s.sequencer.Rounds())

	// 先廣播發言，再排程由它觸發的回饋
	s.publishLocked(MessageEvent(msg, s.sequencer.Current(), s.sequencer.Rounds()))

	jobCtx := context.WithoutCancel(ctx)
	if firePerStatement {
		s.spawn(jobCtx, func(ctx context.Context) { s.runAnalysis(ctx, speaker, content) })
	}
	switch {
	case exhausted && !s.closing:
		s.closing = true
		s.sinceFeedback = 0
		s.spawn(jobCtx, s.closeAfterFinalRound)
	case fireRound:
		req := s.roundRequestLocked()
		s.sinceFeedback = 0
		s.spawn(jobCtx, func(ctx context.Context) { s.runRoundFeedback(ctx, req) })
	}

	return msg, nil
}

// RequestFeedback 手動請求一次回合回饋
func (s *Session) RequestFeedback(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLive {
		return Result{}, apperror.ErrNotLive
	}
	if s.statements == 0 {
		return Result{Text: feedback.EmptyHistoryText}, nil
	}

	req := s.roundRequestLocked()
	s.sinceFeedback = 0
	s.spawn(context.WithoutCancel(ctx), func(ctx context.Context) { s.runRoundFeedback(ctx, req) })
	return Result{Scheduled: true}, nil
}

// Finalize 以完整的發言紀錄請求總結，Live 與 Closed 狀態都可以呼叫
//
// 提供者失敗時回傳 SummaryUnavailableText，不視為錯誤。
func (s *Session) Finalize(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.state != StateLive && s.state != StateClosed {
		s.mu.Unlock()
		return Result{}, apperror.ErrNotLive
	}
	req := feedback.Request{
		Purpose:      feedback.PurposeSummary,
		RoomKind:     string(s.kind),
		Topic:        s.topic,
		Participants: s.sequencer.Participants(),
		Notes:        s.notesLocked(),
	}
	s.mu.Unlock()

	history, err := s.deps.Store.ListMessages(ctx, s.roomID, 0)
	if err != nil {
		return Result{}, err
	}
	req.Statements = lo.FilterMap(history, func(m models.Message, _ int) (feedback.Statement, bool) {
		return feedback.Statement{Speaker: m.Speaker, Content: m.Content}, m.Kind == models.MessageKindUser
	})
	if len(req.Statements) == 0 {
		return Result{Text: feedback.EmptyHistoryText}, nil
	}

	resp, err := s.generate(ctx, "summary", req)
	if err != nil {
		s.logger().Warn("summary unavailable", "error", err)
		return Result{Text: SummaryUnavailableText}, nil
	}
	s.appendAgent(ctx, feedback.FacilitatorName, resp.Text)
	return Result{Text: resp.Text}, nil
}

// Snapshot 目前狀態的唯讀快照
func (s *Session) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := SessionView{RoomID: s.roomID, State: s.state.String(), Statements: s.statements}
	if s.sequencer != nil {
		view.CurrentSpeaker = s.sequencer.Current()
		view.NextSpeaker = s.sequencer.Next()
		view.Round = s.sequencer.Rounds()
	}
	return view
}

// State 目前的生命週期狀態
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Topic 房間主題
func (s *Session) Topic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topic
}

// Wait 等待所有已排程的回饋完成
func (s *Session) Wait() {
	s.jobs.Wait()
}

// restore 由持久化的紀錄重建計數，只在 Activate 之前呼叫
func (s *Session) restore(statements, sinceFeedback int, recent []feedback.Statement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequencer.Restore(statements)
	s.statements = statements
	s.sinceFeedback = sinceFeedback
	s.recent = nil
	for _, stmt := range recent {
		s.pushRecentLocked(stmt)
	}
}

// markClosed 讓從已停用房間重建的 Session 進入唯讀狀態
func (s *Session) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

// closedElsewhereLocked 房間已在其他地方停用；與 Deactivate 走同一條移除路徑
//
// OnClose 不可再取得 s.mu。
func (s *Session) closedElsewhereLocked() {
	s.state = StateClosed
	s.publishLocked(Event{Type: EventClosed, RoomID: s.roomID, Timestamp: s.deps.Clock.Now()})
	s.logger().Info("room was closed elsewhere")
	if s.deps.OnClose != nil {
		s.deps.OnClose(s.roomID)
	}
}

func (s *Session) spawn(ctx context.Context, job func(ctx context.Context)) {
	s.jobs.Add(1)
	if s.deps.Jobs != nil {
		s.deps.Jobs.Add(1)
	}
	go func() {
		defer func() {
			if s.deps.Jobs != nil {
				s.deps.Jobs.Done()
			}
			s.jobs.Done()
		}()
		job(ctx)
	}()
}

func (s *Session) runRoundFeedback(ctx context.Context, req feedback.Request) {
	resp, err := s.generate(ctx, "round", req)
	if err != nil {
		s.logger().Warn("no feedback this cycle", "error", err)
		return
	}
	s.appendAgent(ctx, feedback.FacilitatorName, resp.Text)
}

func (s *Session) runAnalysis(ctx context.Context, speaker, content string) {
	start := s.deps.Clock.Now()
	resp, err := s.deps.Analyzer.Analyze(ctx, speaker, content)
	metrics.FeedbackDuration.WithLabelValues("secondary").Observe(s.deps.Clock.Since(start).Seconds())
	if err != nil {
		metrics.FeedbackRequestsTotal.WithLabelValues("secondary", "unavailable").Inc()
		s.mu.Lock()
		s.secondaryDisabled = true
		s.mu.Unlock()
		s.logger().Warn("secondary feedback disabled for this session", "error", err)
		return
	}
	metrics.FeedbackRequestsTotal.WithLabelValues("secondary", "ok").Inc()

	s.mu.Lock()
	s.notes[speaker] = append(s.notes[speaker], resp.Text)
	s.mu.Unlock()

	s.appendAgent(ctx, feedback.LanguageCoachName, fmt.Sprintf("%s: %s", speaker, resp.Text))
}

func (s *Session) closeAfterFinalRound(ctx context.Context) {
	if _, err := s.Finalize(ctx); err != nil {
		s.logger().Warn("final summary failed", "error", err)
	}
	if err := s.Deactivate(ctx); err != nil {
		s.logger().Error("failed to close room after final round", "error", err)
	}
}

func (s *Session) generate(ctx context.Context, capability string, req feedback.Request) (feedback.Response, error) {
	start := s.deps.Clock.Now()
	resp, err := s.deps.Facilitator.Generate(ctx, req)
	metrics.FeedbackDuration.WithLabelValues(capability).Observe(s.deps.Clock.Since(start).Seconds())
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = apperror.ErrProviderUnavailable
	}
	if err != nil {
		metrics.FeedbackRequestsTotal.WithLabelValues(capability, "unavailable").Inc()
		return feedback.Response{}, err
	}
	metrics.FeedbackRequestsTotal.WithLabelValues(capability, "ok").Inc()
	return resp, nil
}

// appendAgent 寫入並廣播代理訊息；房間剛停用時仍會寫入
func (s *Session) appendAgent(ctx context.Context, speaker, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.deps.Store.AppendMessage(ctx, s.roomID, speaker, text, models.MessageKindAgent)
	if err != nil {
		s.logger().Error("failed to persist agent message", "speaker", speaker, "error", err)
		return
	}
	metrics.MessagesAppendedTotal.WithLabelValues(string(models.MessageKindAgent)).Inc()
	s.publishLocked(MessageEvent(msg, s.sequencer.Current(), s.sequencer.Rounds()))
}

func (s *Session) publishLocked(ev Event) {
	if s.deps.Publisher == nil {
		return
	}
	s.deps.Publisher.Broadcast(s.roomID, ev)
}

func (s *Session) pushRecentLocked(stmt feedback.Statement) {
	s.recent = append(s.recent, stmt)
	if size := s.scheduler.Options().ContextSize; len(s.recent) > size {
		s.recent = s.recent[len(s.recent)-size:]
	}
}

func (s *Session) roundRequestLocked() feedback.Request {
	statements := make([]feedback.Statement, len(s.recent))
	copy(statements, s.recent)
	return feedback.Request{
		Purpose:      feedback.PurposeRound,
		RoomKind:     string(s.kind),
		Topic:        s.topic,
		Participants: s.sequencer.Participants(),
		Statements:   statements,
	}
}

func (s *Session) notesLocked() map[string][]string {
	out := make(map[string][]string, len(s.notes))
	for name, notes := range s.notes {
		out[name] = append([]string(nil), notes...)
	}
	return out
}

func isReservedAgent(speaker string) bool {
	return speaker == feedback.FacilitatorName || speaker == feedback.LanguageCoachName
}

func validateParticipants(participants []string) error {
	if len(participants) < models.MinParticipants || len(participants) > models.MaxParticipants {
		return apperror.Validation(fmt.Sprintf("participant count must be between %d and %d",
			models.MinParticipants, models.MaxParticipants))
	}
	for _, name := range participants {
		if strings.TrimSpace(name) == "" {
			return apperror.Validation("participant names must not be empty")
		}
	}
	return nil
}
