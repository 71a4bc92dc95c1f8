package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/logging"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/metrics"
	"github.com/kidoxdavid/eazyfoods-sub000/utils"
)

const requestIDHeader = "X-Request-ID"

// RequestContext gives every request an id and a scoped logger, then
// records the access log line and HTTP metrics.
func RequestContext(log *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(rid); err != nil {
			rid = uuid.NewString()
		}
		c.Header(requestIDHeader, rid)
		utils.SetRequestID(c, rid)

		reqLog := log.With(zap.String("request_id", rid))
		c.Request = c.Request.WithContext(logging.ContextWithLogger(c.Request.Context(), reqLog))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		m.ObserveHTTP(c.Request.Method, route, status, elapsed)
		reqLog.Info("http_request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("role", utils.CurrentRole(c)))
	}
}

// Recovery turns a handler panic into a 500 with the same error envelope.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		logging.FromContext(c.Request.Context(), log).Error("handler_panic", zap.Any("panic", rec))
		c.AbortWithStatusJSON(500, gin.H{"error": gin.H{"kind": "internal", "code": "Internal", "message": "internal error"}})
	})
}
