package middleware

import (
	"errors"
	"net/http"

	"taskmarket-ledger/pkg/errutil"
	"taskmarket-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached to the context as a BaseError.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			if be.Code.HTTPStatus() >= http.StatusInternalServerError {
				logger.FromContext(c.Request.Context()).Error("request failed", zap.Error(last.Err), zap.String("path", c.FullPath()))
			}
			c.JSON(be.Code.HTTPStatus(), be)
			return
		}

		logger.FromContext(c.Request.Context()).Error("unhandled error", zap.Error(last.Err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, errutil.BaseError{
			Code:    errutil.StatusInternal,
			Message: "internal error",
		})
	}
}
