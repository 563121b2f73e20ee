package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rdychk/rdychk/internal/services"
	"github.com/rdychk/rdychk/pkg/response"
)

type PreviewHandler struct {
	previews *services.LinkPreviewService
}

func NewPreviewHandler(previews *services.LinkPreviewService) *PreviewHandler {
	return &PreviewHandler{previews: previews}
}

// Get returns preview metadata for ?url=. Unsafe targets are rejected before
// any request is made.
func (h *PreviewHandler) Get(c *gin.Context) {
	raw := c.Query("url")
	if raw == "" {
		response.BadRequest(c, "url is required")
		return
	}

	preview, err := h.previews.Get(c.Request.Context(), raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, preview)
}
