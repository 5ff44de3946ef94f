package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cppla/geopost/utils"
)

const requestIDHeaderName = "X-Request-ID"

// RequestID propagates the caller's X-Request-ID or assigns a fresh one.
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestID := normalizeRequestID(ctx.GetHeader(requestIDHeaderName))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx.Set(utils.RequestIDKey, requestID)
		ctx.Writer.Header().Set(requestIDHeaderName, requestID)
		ctx.Next()
	}
}

// RequestIDFromContext returns a request ID or an empty string when unavailable.
func RequestIDFromContext(ctx *gin.Context) string {
	return ctx.GetString(utils.RequestIDKey)
}

func normalizeRequestID(raw string) string {
	candidate := strings.TrimSpace(raw)
	if len(candidate) > 128 {
		candidate = candidate[:128]
	}
	return candidate
}
