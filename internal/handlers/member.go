package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rdychk/rdychk/internal/middleware"
	"github.com/rdychk/rdychk/internal/services"
	"github.com/rdychk/rdychk/internal/session"
	"github.com/rdychk/rdychk/pkg/response"
)

// MemberHandler serves the member-gated mutations. Every route is mounted
// behind middleware.RequireMember, so the caller is always verified.
type MemberHandler struct {
	members  *services.MemberService
	groups   *services.GroupService
	sessions *session.Manager
}

func NewMemberHandler(members *services.MemberService, groups *services.GroupService, sessions *session.Manager) *MemberHandler {
	return &MemberHandler{members: members, groups: groups, sessions: sessions}
}

func (h *MemberHandler) ToggleReady(c *gin.Context) {
	var req services.ToggleReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	member, err := h.members.ToggleReady(c.Request.Context(), middleware.GetCaller(c), *req.IsReady)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, member)
}

func (h *MemberHandler) Update(c *gin.Context) {
	var req services.UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	member, err := h.members.UpdateReadiness(c.Request.Context(), middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, member)
}

func (h *MemberHandler) Leave(c *gin.Context) {
	caller := middleware.GetCaller(c)
	if err := h.members.Leave(c.Request.Context(), caller); err != nil {
		response.Error(c, err)
		return
	}
	h.sessions.Clear(c, caller.Slug())
	response.Success(c, nil)
}

func (h *MemberHandler) Promote(c *gin.Context) {
	var req services.TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	target, err := h.members.Promote(c.Request.Context(), middleware.GetCaller(c), req.TargetID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, target)
}

func (h *MemberHandler) Kick(c *gin.Context) {
	var req services.TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.members.Kick(c.Request.Context(), middleware.GetCaller(c), req.TargetID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *MemberHandler) UpdateSettings(c *gin.Context) {
	var req services.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	group, err := h.groups.UpdateSettings(c.Request.Context(), middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, group)
}
