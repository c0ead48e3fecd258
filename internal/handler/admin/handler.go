package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/repairhub/notify/internal/handler"
	"github.com/repairhub/notify/internal/middleware"
	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/service/template"
	"github.com/repairhub/notify/pkg/queue"
)

// Handler exposes operator controls: pausing a channel stops workers from
// claiming its tasks without touching in-flight sends.
type Handler struct {
	deliveryQ queue.Queue
	resolver  *template.Resolver
	auth      *middleware.AuthMiddleware
}

func NewHandler(deliveryQ queue.Queue, resolver *template.Resolver, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{deliveryQ: deliveryQ, resolver: resolver, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin", h.auth.RequireServiceKey())
	{
		admin.POST("/channels/:channel/pause", h.PauseChannel)
		admin.POST("/channels/:channel/resume", h.ResumeChannel)
		admin.GET("/channels/:channel/status", h.ChannelStatus)
		admin.POST("/templates/:name/invalidate", h.InvalidateTemplate)
	}
}

func (h *Handler) PauseChannel(c *gin.Context) {
	ch, ok := parseChannel(c)
	if !ok {
		return
	}
	if err := h.deliveryQ.Pause(c.Request.Context(), ch); err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to pause channel"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"channel": ch, "paused": true}))
}

func (h *Handler) ResumeChannel(c *gin.Context) {
	ch, ok := parseChannel(c)
	if !ok {
		return
	}
	if err := h.deliveryQ.Resume(c.Request.Context(), ch); err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to resume channel"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"channel": ch, "paused": false}))
}

func (h *Handler) ChannelStatus(c *gin.Context) {
	ch, ok := parseChannel(c)
	if !ok {
		return
	}

	paused, err := h.deliveryQ.Paused(c.Request.Context(), ch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to read channel status"))
		return
	}
	depth, err := h.deliveryQ.Depth(c.Request.Context(), ch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to read queue depth"))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"channel": ch,
		"paused":  paused,
		"depth":   depth,
	}))
}

func (h *Handler) InvalidateTemplate(c *gin.Context) {
	name := c.Param("name")
	h.resolver.Invalidate(name)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"template": name}))
}

func parseChannel(c *gin.Context) (model.Channel, bool) {
	ch := model.Channel(c.Param("channel"))
	switch ch {
	case model.ChannelEmail, model.ChannelSMS:
		return ch, true
	}
	c.JSON(http.StatusBadRequest, handler.NewErrorResponse("unknown channel"))
	return "", false
}
