package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"debate_room/internal/repository"
	"debate_room/internal/service"
)

// 定義 WebSocket 升級器
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 信任的內部網路，不檢查 origin
	},
}

// WebSocketHandler 處理 WebSocket 連接
type WebSocketHandler struct {
	wsService *service.WebSocketService
	rooms     repository.RoomStore
	logger    *slog.Logger
}

// NewWebSocketHandler 創建一個新的 WebSocketHandler 實例
func NewWebSocketHandler(wsService *service.WebSocketService, rooms repository.RoomStore, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		wsService: wsService,
		rooms:     rooms,
		logger:    logger,
	}
}

// HandleWebSocket 處理 WebSocket 連接請求
//
// 沒有 since 參數時不補送歷史訊息；房間不存在或 since 不合法時以一般 HTTP 錯誤回應，不會升級連線。
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	roomID := c.Param("id")

	since := int64(-1)
	if raw := c.Query("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a non-negative sequence number"})
			return
		}
		since = n
	}

	if _, err := h.rooms.GetRoom(c.Request.Context(), roomID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	// 升級 HTTP 連接為 WebSocket 連接
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失敗時已經回應了客戶端
		h.logger.Warn("websocket upgrade failed", "room_id", roomID, "error", err)
		return
	}

	h.wsService.HandleConnection(c.Request.Context(), conn, roomID, since)
}
