package service

import (
	"fmt"
	"log/slog"
	"sync"

	"debate_room/internal/apperror"
	"debate_room/internal/metrics"
)

// Connection 一條可推送事件的即時連線
type Connection interface {
	ID() string
	Send(ev Event) error
	Close() error
}

// Hub 記錄每個房間的訂閱連線並負責廣播
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]map[Connection]struct{} // roomID -> 連線集合
	maxPerRoom int
	logger     *slog.Logger
}

// NewHub maxPerRoom <= 0 表示不限制
func NewHub(maxPerRoom int, logger *slog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[Connection]struct{}),
		maxPerRoom: maxPerRoom,
		logger:     logger,
	}
}

// Subscribe 將連線加入房間
func (h *Hub) Subscribe(conn Connection, roomID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.rooms[roomID]
	if !ok {
		conns = make(map[Connection]struct{})
		h.rooms[roomID] = conns
	}
	if _, exists := conns[conn]; exists {
		return nil
	}
	if h.maxPerRoom > 0 && len(conns) >= h.maxPerRoom {
		return apperror.State(fmt.Sprintf("room %s reached max connections (%d)", roomID, h.maxPerRoom))
	}
	conns[conn] = struct{}{}
	metrics.WebSocketConnections.Inc()
	return nil
}

// Unsubscribe 將連線移出房間；已移除的連線再次呼叫沒有任何效果
func (h *Hub) Unsubscribe(conn Connection, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(conn, roomID)
}

func (h *Hub) removeLocked(conn Connection, roomID string) bool {
	conns, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	if _, exists := conns[conn]; !exists {
		return false
	}
	delete(conns, conn)
	metrics.WebSocketConnections.Dec()
	// 房間沒有連線時刪除
	if len(conns) == 0 {
		delete(h.rooms, roomID)
	}
	return true
}

// Broadcast 送給呼叫當下所有訂閱的連線
//
// 先在讀鎖下複製連線集合再逐一送出；送出失敗的連線會被移除並關閉，其餘連線照常送達。
func (h *Hub) Broadcast(roomID string, ev Event) int {
	h.mu.RLock()
	snapshot := make([]Connection, 0, len(h.rooms[roomID]))
	for conn := range h.rooms[roomID] {
		snapshot = append(snapshot, conn)
	}
	h.mu.RUnlock()

	if len(snapshot) == 0 {
		return 0
	}
	metrics.BroadcastsTotal.Inc()

	delivered := 0
	for _, conn := range snapshot {
		if err := conn.Send(ev); err != nil {
			h.logger.Warn("pruning connection after failed send",
				"room_id", roomID, "connection_id", conn.ID(), "error", err)
			metrics.BroadcastSendFailuresTotal.Inc()

			h.mu.Lock()
			h.removeLocked(conn, roomID)
			h.mu.Unlock()
			_ = conn.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// Count 房間目前的連線數
func (h *Hub) Count(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
