package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"debate_room/internal/api/handlers"
	"debate_room/internal/middleware"
	"debate_room/internal/repository"
	"debate_room/internal/service"
)

// Deps 路由需要的服務與設定
type Deps struct {
	Services    *service.Services
	Rooms       repository.RoomStore
	Health      *handlers.HealthHandler
	CORSOrigins []string
	Logger      *slog.Logger
}

func SetupRoutes(r *gin.Engine, deps Deps) {
	// 初始化 handlers
	roomHandler := handlers.NewRoomHandler(deps.Services.RoomService, deps.Logger)
	wsHandler := handlers.NewWebSocketHandler(deps.Services.WebSocketService, deps.Rooms, deps.Logger)

	r.Use(middleware.RequestLogger(deps.Logger), middleware.CORS(deps.CORSOrigins))

	// 處理 404 錯誤
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "path not found",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API 路由群組
	api := r.Group("/api")
	{
		// 健康檢查
		api.GET("/health", deps.Health.Health)
		api.GET("/ready", deps.Health.Ready)

		rooms := api.Group("/rooms")
		{
			rooms.GET("", roomHandler.ListRooms)   // 獲取啟用中的房間
			rooms.POST("", roomHandler.CreateRoom) // 創建房間
			rooms.GET("/:id", roomHandler.GetRoom) // 房間資訊與訊息紀錄

			rooms.POST("/:id/feedback", roomHandler.RequestFeedback)
			rooms.POST("/:id/finalize", roomHandler.Finalize)
			rooms.POST("/:id/close", roomHandler.CloseRoom)

			// WebSocket 連接點
			rooms.GET("/:id/ws", wsHandler.HandleWebSocket)
		}
	}

	// 相容舊客戶端的 WebSocket 路徑
	r.GET("/ws/:id", wsHandler.HandleWebSocket)
}
