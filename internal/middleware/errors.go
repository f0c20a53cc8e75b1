package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/dealroom-chat/pkg/apperrors"
)

// Abort records err for ErrorHandler and stops the chain.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ErrorHandler turns the last error recorded on the context into a JSON
// response. Internal errors are logged and never shown to the client.
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := apperrors.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Request.Method, "path", c.FullPath(), "error", err)
		}

		c.JSON(status, gin.H{"error": apperrors.PublicMessage(err)})
	}
}
