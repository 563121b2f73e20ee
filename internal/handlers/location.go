package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rdychk/rdychk/internal/middleware"
	"github.com/rdychk/rdychk/internal/services"
	"github.com/rdychk/rdychk/pkg/response"
)

type LocationHandler struct {
	locations *services.LocationService
}

func NewLocationHandler(locations *services.LocationService) *LocationHandler {
	return &LocationHandler{locations: locations}
}

func (h *LocationHandler) Update(c *gin.Context) {
	var req services.LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	group, err := h.locations.UpdateLocation(c.Request.Context(), middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, group)
}

func (h *LocationHandler) Vote(c *gin.Context) {
	var req services.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.locations.Vote(c.Request.Context(), middleware.GetCaller(c), req.Vote)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
