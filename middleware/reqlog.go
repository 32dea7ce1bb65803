package middleware

import (
	"time"

	"PPGateway/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReqLog logs one line per HTTP request. Upgraded websocket requests are
// logged when the connection ends.
func ReqLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("[http] request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("cost", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// Recovery turns handler panics into 500 and logs them through zap.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err any) {
		logger.Error("[http] panic", zap.Any("panic", err), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatus(500)
	})
}
