package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/manimstudio-backend/internal/logger"
)

// Recovery converts any unhandled panic into a generic 500 response. Full
// detail is always logged server-side; the response carries it only when the
// debug flag is set.
func Recovery(log *logger.Logger, debug bool) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("Unhandled panic in request",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"panic", fmt.Sprint(recovered),
		)
		message := "An error occurred"
		if debug {
			message = fmt.Sprint(recovered)
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"message": message,
		})
	})
}
