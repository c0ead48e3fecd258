package notification

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/repairhub/notify/internal/handler"
	"github.com/repairhub/notify/internal/middleware"
	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/service/notification"
	apperrors "github.com/repairhub/notify/pkg/errors"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
			return model.Priority(fl.Field().String()).Valid()
		})
	}
}

type Handler struct {
	svc  notification.Service
	auth *middleware.AuthMiddleware
}

func NewHandler(svc notification.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	service := r.Group("/notifications", h.auth.RequireServiceKey())
	{
		service.POST("", h.Create)
		service.GET("/:id/deliveries", h.DeliveryHistory)
	}

	recipient := r.Group("/notifications", h.auth.RequireRecipientToken())
	{
		recipient.GET("", h.List)
		recipient.GET("/unread-count", h.UnreadCount)
		recipient.POST("/read-all", h.MarkAllRead)
		recipient.POST("/:id/read", h.MarkRead)
	}
}

type recipientRef struct {
	Type string    `json:"type" binding:"required,oneof=customer technician staff"`
	ID   uuid.UUID `json:"id" binding:"required"`
}

type entityRef struct {
	Type string    `json:"type" binding:"required"`
	ID   uuid.UUID `json:"id" binding:"required"`
}

type createRequest struct {
	EventID       string                 `json:"event_id" binding:"required"`
	Recipient     recipientRef           `json:"recipient" binding:"required"`
	Template      string                 `json:"template" binding:"required"`
	Context       map[string]interface{} `json:"context"`
	Priority      *model.Priority        `json:"priority,omitempty" binding:"omitempty,priority"`
	RelatedEntity *entityRef             `json:"related_entity,omitempty"`
	ActionURL     *string                `json:"action_url,omitempty"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	svcReq := notification.CreateRequest{
		EventID: req.EventID,
		Recipient: model.Recipient{
			Type: model.RecipientType(req.Recipient.Type),
			ID:   req.Recipient.ID,
		},
		TemplateName:     req.Template,
		Context:          convertContext(req.Context),
		PriorityOverride: req.Priority,
		ActionURL:        req.ActionURL,
	}
	if req.RelatedEntity != nil {
		svcReq.RelatedEntityType = &req.RelatedEntity.Type
		svcReq.RelatedEntityID = &req.RelatedEntity.ID
	}

	n, err := h.svc.Create(c.Request.Context(), svcReq)
	if err != nil {
		status, msg := mapError(err)
		c.JSON(status, handler.NewErrorResponse(msg))
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(n))
}

func (h *Handler) List(c *gin.Context) {
	recipient := contextRecipient(c)
	if recipient == nil {
		return
	}

	filter := model.ListFilter{
		Category:   model.Category(c.Query("category")),
		UnreadOnly: c.Query("unread") == "true",
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = limit
	}
	// Clamp here so the paging meta reports the limit actually applied.
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	notifications, err := h.svc.List(c.Request.Context(), *recipient, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to list notifications"))
		return
	}

	c.JSON(http.StatusOK, handler.NewPagedResponse(notifications, filter.Limit, filter.Offset, len(notifications)))
}

func (h *Handler) UnreadCount(c *gin.Context) {
	recipient := contextRecipient(c)
	if recipient == nil {
		return
	}

	count, err := h.svc.UnreadCount(c.Request.Context(), *recipient)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to count notifications"))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"unread": count}))
}

func (h *Handler) MarkRead(c *gin.Context) {
	recipient := contextRecipient(c)
	if recipient == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid notification id"))
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), id, *recipient); err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to mark notification read"))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	recipient := contextRecipient(c)
	if recipient == nil {
		return
	}

	updated, err := h.svc.MarkAllRead(c.Request.Context(), *recipient)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to mark notifications read"))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"updated": updated}))
}

func (h *Handler) DeliveryHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid notification id"))
		return
	}

	logs, err := h.svc.DeliveryHistory(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to load delivery history"))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}

// convertContext maps loosely-typed JSON context values onto the closed
// ContextValue kinds. Nested objects become entity snapshots with their
// values stringified.
func convertContext(raw map[string]interface{}) model.TemplateContext {
	tctx := make(model.TemplateContext, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case float64:
			tctx[key] = model.NumberValue(v)
		case map[string]interface{}:
			fields := make(map[string]string, len(v))
			for fk, fv := range v {
				if s, ok := fv.(string); ok {
					fields[fk] = s
				} else {
					fields[fk] = fmt.Sprintf("%v", fv)
				}
			}
			tctx[key] = model.EntityValue(fields)
		case string:
			tctx[key] = model.StringValue(v)
		default:
			tctx[key] = model.StringValue(fmt.Sprintf("%v", v))
		}
	}
	return tctx
}

func contextRecipient(c *gin.Context) *model.Recipient {
	value, exists := c.Get(middleware.ContextRecipient)
	if !exists {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing recipient"))
		return nil
	}
	recipient, ok := value.(*model.Recipient)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing recipient"))
		return nil
	}
	return recipient
}

func mapError(err error) (int, string) {
	switch apperrors.Code(err) {
	case apperrors.ErrTemplateNotFound, apperrors.ErrTemplateInactive:
		return http.StatusNotFound, err.Error()
	case apperrors.ErrMissingContext, apperrors.ErrBadRequest:
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "failed to create notification"
}
