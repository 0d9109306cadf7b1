package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"debate_room/internal/apperror"
)

// respondError 依錯誤類別回應狀態碼；內部錯誤不把細節回給客戶端
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Type != apperror.TypeInternal {
		c.JSON(appErr.HTTPStatus(), gin.H{"error": appErr.Message})
		return
	}

	logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
