package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"debate_room/internal/service"
)

// RoomHandler 處理與房間相關的請求
type RoomHandler struct {
	roomService *service.RoomService
	logger      *slog.Logger
}

// NewRoomHandler 創建一個新的 RoomHandler 實例
func NewRoomHandler(roomService *service.RoomService, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{roomService: roomService, logger: logger}
}

// CreateRoom 處理創建新房間的請求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var input struct {
		RoomType         string   `json:"room_type" binding:"required"`
		ParticipantNames []string `json:"participant_names"`
		Category         string   `json:"category"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), service.CreateRoomInput{
		RoomType:     input.RoomType,
		Participants: input.ParticipantNames,
		Category:     input.Category,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

// ListRooms 列出啟用中的房間
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.roomService.ListRooms(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// GetRoom 回傳房間資訊、訊息紀錄與即時狀態；limit 指定只取最近幾則
func (h *RoomHandler) GetRoom(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	detail, err := h.roomService.GetRoom(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// RequestFeedback 手動請求一次主持人回饋
func (h *RoomHandler) RequestFeedback(c *gin.Context) {
	result, err := h.roomService.RequestFeedback(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.Scheduled {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

// Finalize 產生總結
func (h *RoomHandler) Finalize(c *gin.Context) {
	result, err := h.roomService.Finalize(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CloseRoom 停用房間
func (h *RoomHandler) CloseRoom(c *gin.Context) {
	if err := h.roomService.CloseRoom(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "room closed"})
}
