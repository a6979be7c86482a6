package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/manimstudio-backend/internal/types"
)

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthResponse{
		Status:  "healthy",
		Message: "ManimStudio API is running",
	})
}
