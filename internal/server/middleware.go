package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/azurecost/internal/observability/logger"
	"go.uber.org/zap"
)

// recoveryMiddleware turns handler panics into a 500 through the normal
// error path instead of gin's plain-text response.
func recoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.FromContext(c.Request.Context()).Error("http handler panicked",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"),
		)
		AbortWithError(c, ErrInternal)
	})
}

func noRoute(c *gin.Context) {
	AbortWithError(c, ErrNotFound)
}
