package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rdychk/rdychk/internal/middleware"
	"github.com/rdychk/rdychk/internal/models"
	"github.com/rdychk/rdychk/internal/services"
	"github.com/rdychk/rdychk/internal/session"
	"github.com/rdychk/rdychk/pkg/logger"
	"github.com/rdychk/rdychk/pkg/response"
)

// GroupHandler serves the public group endpoints: creation, the group page,
// and the two ways a browser obtains a member session.
type GroupHandler struct {
	groups   *services.GroupService
	members  *services.MemberService
	authz    *services.AuthzService
	sessions *session.Manager
}

func NewGroupHandler(groups *services.GroupService, members *services.MemberService, authz *services.AuthzService, sessions *session.Manager) *GroupHandler {
	return &GroupHandler{groups: groups, members: members, authz: authz, sessions: sessions}
}

// SessionResponse is returned by join, reclaim and whoami.
type SessionResponse struct {
	Member *models.Member `json:"member"`
	Slug   string         `json:"slug"`
}

func (h *GroupHandler) Create(c *gin.Context) {
	var req services.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	group, err := h.groups.Create(c.Request.Context(), &req, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

func (h *GroupHandler) Get(c *gin.Context) {
	view, err := h.groups.View(c.Request.Context(), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// Whoami returns the member this browser's group cookie proves, or null.
func (h *GroupHandler) Whoami(c *gin.Context) {
	slug := c.Param("slug")
	resp := SessionResponse{Slug: slug}

	principal, ok := h.sessions.Current(c, slug)
	if ok {
		caller, err := h.authz.ResolveCaller(c.Request.Context(), principal)
		switch {
		case err == nil:
			m := caller.Member()
			resp.Member = &m
		case response.IsCode(err, response.CodeUnauthorized):
			// The member is gone; drop the dead cookie.
			h.sessions.Clear(c, slug)
		default:
			response.Error(c, err)
			return
		}
	}
	response.Success(c, resp)
}

func (h *GroupHandler) Join(c *gin.Context) {
	var req services.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	slug := c.Param("slug")
	member, err := h.members.Join(c.Request.Context(), slug, req.Name, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.issue(c, slug, member)
}

func (h *GroupHandler) Reclaim(c *gin.Context) {
	var req services.ReclaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	slug := c.Param("slug")
	member, err := h.members.Reclaim(c.Request.Context(), slug, req.MemberID, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.issue(c, slug, member)
}

func (h *GroupHandler) issue(c *gin.Context, slug string, member *models.Member) {
	if err := h.sessions.Issue(c, slug, member.ID); err != nil {
		logger.Error().Err(err).Str("slug", slug).Msg("issue session cookie")
		response.Error(c, response.NewServerError(err.Error()))
		return
	}
	response.Success(c, SessionResponse{Member: member, Slug: slug})
}
