package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/icees-go/icees-api/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"

	maxRequestIDLen = 128
)

// AttachTraceContext gives every request a request id (the caller's
// X-Request-Id when usable) and the otel trace id, echoes both as response
// headers and stores them with the route's table in the request context.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if !validRequestID(reqID) {
			reqID = uuid.NewString()
		}
		traceID := ""
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}

		info := &ctxutil.RequestInfo{RequestID: reqID, TraceID: traceID, Table: c.Param("table")}
		c.Request = c.Request.WithContext(ctxutil.WithRequestInfo(c.Request.Context(), info))
		c.Set("request_id", reqID)
		c.Header(headerRequestID, reqID)
		if traceID != "" {
			c.Header(headerTraceID, traceID)
		}
		c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}
