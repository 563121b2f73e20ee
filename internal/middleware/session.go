package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rdychk/rdychk/internal/services"
	"github.com/rdychk/rdychk/internal/session"
	"github.com/rdychk/rdychk/pkg/response"
)

const ContextCaller = "caller"

const msgInvalidSession = "Unauthorized: invalid or missing session for this member"

// RequireMember guards every route under /groups/:slug/members/:memberId.
// The group's session cookie must prove exactly the member named in the path
// and that member must still belong to the group. The verified caller is
// stored for handlers; nothing else in the request can change who acts.
func RequireMember(sessions *session.Manager, authz *services.AuthzService) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := sessions.Authenticate(c, c.Param("slug"), c.Param("memberId"))
		if !ok {
			response.Unauthorized(c, msgInvalidSession)
			c.Abort()
			return
		}

		caller, err := authz.ResolveCaller(c.Request.Context(), principal)
		if err != nil {
			response.Abort(c, err)
			return
		}

		c.Set(ContextCaller, caller)
		c.Next()
	}
}

// GetCaller returns the caller verified by RequireMember. It panics when the
// guard is missing from the route, which is a wiring bug.
func GetCaller(c *gin.Context) *services.Caller {
	return c.MustGet(ContextCaller).(*services.Caller)
}
