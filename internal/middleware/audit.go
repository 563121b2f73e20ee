package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rdychk/rdychk/internal/services"
	"github.com/rdychk/rdychk/pkg/logger"
)

// AuditLog logs every write that reaches a member-gated route. Bodies are not
// logged.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			c.Next()
			return
		}

		c.Next()

		event := logger.Info()
		status := c.Writer.Status()
		if status >= http.StatusBadRequest {
			event = logger.Warn()
		}
		event = event.
			Str("audit", auditAction(c.FullPath(), method)).
			Str("group", c.Param("slug")).
			Str("member_id", c.Param("memberId")).
			Int("status", status).
			Str("request_id", c.GetString("request_id"))

		if v, ok := c.Get(ContextCaller); ok {
			caller := v.(*services.Caller)
			event = event.Bool("admin", caller.IsAdmin())
		}
		event.Msg("member action")
	}
}

// auditAction names the action from the route pattern, e.g.
// "POST /api/groups/:slug/members/:memberId/kick" gives "kick".
func auditAction(fullPath, method string) string {
	last := fullPath[strings.LastIndex(fullPath, "/")+1:]
	if last == "" || strings.HasPrefix(last, ":") {
		return strings.ToLower(method)
	}
	return last
}
