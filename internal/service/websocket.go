package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"debate_room/internal/apperror"
	"debate_room/internal/feedback"
	"debate_room/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 256
	replayLimit    = 500
)

// 客戶端送來的訊息類型
const (
	inboundMessage         = "message"
	inboundRequestFeedback = "request_feedback"
)

// inboundFrame 客戶端送來的 JSON 訊息
type inboundFrame struct {
	Type    string `json:"type"`
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// Client 代表一個 WebSocket 客戶端連接
type Client struct {
	id      string
	conn    *websocket.Conn
	roomID  string
	send    chan Event // 緩衝的發送佇列，由 writePump 消化
	limiter *rate.Limiter

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, roomID string, limiter *rate.Limiter) *Client {
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		roomID:  roomID,
		send:    make(chan Event, sendBufferSize),
		limiter: limiter,
		done:    make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send 不阻塞；佇列已滿時回傳 ErrSlowConsumer，由 Hub 移除這條連線
func (c *Client) Send(ev Event) error {
	select {
	case <-c.done:
		return apperror.ErrConnectionClosed
	default:
	}

	select {
	case c.send <- ev:
		return nil
	case <-c.done:
		return apperror.ErrConnectionClosed
	default:
		return apperror.ErrSlowConsumer
	}
}

// write 直接寫出一個事件；同一時間只能有一個 goroutine 寫入連線
func (c *Client) write(ev Event) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(ev)
}

// Close 可重複呼叫
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// WebSocketService 管理 WebSocket 連接與房間之間的訊息往來
type WebSocketService struct {
	hub      *Hub
	sessions *SessionManager
	limit    rate.Limit
	burst    int
	logger   *slog.Logger
}

// NewWebSocketService messagesPerSecond <= 0 表示不限制客戶端送訊速率
func NewWebSocketService(hub *Hub, sessions *SessionManager, messagesPerSecond float64, burst int, logger *slog.Logger) *WebSocketService {
	limit := rate.Inf
	if messagesPerSecond > 0 {
		limit = rate.Limit(messagesPerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &WebSocketService{
		hub:      hub,
		sessions: sessions,
		limit:    limit,
		burst:    burst,
		logger:   logger,
	}
}

// HandleConnection 處理一條已升級的 WebSocket 連接，直到連線結束才返回
//
// 訂閱後先直接寫出 connected 與 seq > since 的歷史訊息，之後才啟動 writePump；
// 這段期間的廣播留在佇列中，因此 connected 一定是第一個事件。
func (s *WebSocketService) HandleConnection(ctx context.Context, conn *websocket.Conn, roomID string, since int64) {
	session, err := s.sessions.GetOrRehydrate(ctx, roomID)
	if err != nil {
		s.rejectConnection(conn, roomID, err)
		return
	}

	client := newClient(conn, roomID, rate.NewLimiter(s.limit, s.burst))
	logger := s.logger.With("room_id", roomID, "connection_id", client.id)

	if err := s.hub.Subscribe(client, roomID); err != nil {
		logger.Warn("connection rejected", "error", err)
		s.rejectConnection(conn, roomID, err)
		return
	}

	// 確保連接關閉時清理資源
	defer func() {
		s.hub.Unsubscribe(client, roomID)
		_ = client.Close()
		logger.Info("websocket disconnected")
	}()

	view := session.Snapshot()
	if err := client.write(Event{
		Type:        EventConnected,
		RoomID:      roomID,
		Topic:       session.Topic(),
		NextSpeaker: view.CurrentSpeaker,
		Round:       view.Round,
		Timestamp:   time.Now(),
	}); err != nil {
		logger.Debug("websocket write failed", "error", err)
		return
	}
	replayed, err := s.replay(ctx, client, since)
	if err != nil {
		logger.Warn("replay failed", "since", since, "error", err)
		return
	}
	logger.Info("websocket connected", "since", since)

	go s.writePump(client, replayed, logger)
	s.readPump(ctx, client, session, logger)
}

// replay 補送斷線期間錯過的訊息，回傳最後補送的 seq
//
// 直接寫入連線，每一則都等待寫出完成。
func (s *WebSocketService) replay(ctx context.Context, client *Client, since int64) (int64, error) {
	var last int64
	if since < 0 {
		return last, nil
	}
	for {
		msgs, err := s.sessions.deps.Store.ListMessagesAfter(ctx, client.roomID, since, replayLimit)
		if err != nil {
			return last, err
		}
		for i := range msgs {
			if err := client.write(MessageEvent(&msgs[i], "", 0)); err != nil {
				return last, err
			}
			last = msgs[i].Seq
		}
		if len(msgs) < replayLimit {
			return last, nil
		}
		since = last
	}
}

// readPump 持續監聽並處理從客戶端接收的消息
func (s *WebSocketService) readPump(ctx context.Context, client *Client, session *Session, logger *slog.Logger) {
	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket unexpected close", "error", err)
			}
			return
		}

		if !client.limiter.Allow() {
			s.replyError(client, "rate limit exceeded, slow down")
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.replyError(client, "invalid message format")
			continue
		}

		switch frame.Type {
		case inboundMessage:
			if _, err := session.Ingest(ctx, frame.Speaker, frame.Content); err != nil {
				s.replyError(client, clientMessage(err))
			}
		case inboundRequestFeedback:
			result, err := session.RequestFeedback(ctx)
			if err != nil {
				s.replyError(client, clientMessage(err))
				continue
			}
			// 沒有發言時直接回覆固定文字給請求者
			if !result.Scheduled && result.Text != "" {
				_ = client.Send(Event{
					Type:        EventMessage,
					RoomID:      client.roomID,
					Speaker:     feedback.FacilitatorName,
					Content:     result.Text,
					MessageType: models.MessageKindAgent,
					Timestamp:   time.Now(),
				})
			}
		default:
			s.replyError(client, "unknown message type: "+frame.Type)
		}
	}
}

// writePump 處理向客戶端發送消息的邏輯
//
// seq <= replayed 的訊息已經由 replay 送過，不再重複送出。
func (s *WebSocketService) writePump(client *Client, replayed int64, logger *slog.Logger) {
	// 設置心跳檢查計時器
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.Close()
	}()

	for {
		select {
		case <-client.done:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case ev := <-client.send:
			if ev.Type == EventMessage && ev.Seq > 0 && ev.Seq <= replayed {
				continue
			}
			if err := client.write(ev); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			// 發送心跳包
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketService) replyError(client *Client, message string) {
	if err := client.Send(ErrorEvent(client.roomID, message, time.Now())); err != nil {
		s.logger.Debug("could not deliver error event", "connection_id", client.id, "error", err)
	}
}

// rejectConnection 在訂閱前就失敗時，送出錯誤後關閉
func (s *WebSocketService) rejectConnection(conn *websocket.Conn, roomID string, err error) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(ErrorEvent(roomID, clientMessage(err), time.Now()))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, clientMessage(err)))
	_ = conn.Close()
}

// clientMessage 只把可公開的錯誤訊息送給客戶端
func clientMessage(err error) string {
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Type != apperror.TypeInternal {
		return appErr.Message
	}
	return "internal error"
}
