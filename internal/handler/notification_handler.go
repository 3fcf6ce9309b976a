package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/internal/service"
	"github.com/bookon/bookon-api/pkg/response"
)

type notificationService interface {
	List(ctx context.Context, actor service.Actor, filter models.NotificationFilter) (*service.ListResult[models.Notification], error)
	Transition(ctx context.Context, actor service.Actor, id, action string) (*models.Notification, error)
}

// NotificationHandler serves the caller's notification feed.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(svc notificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List godoc
// @Summary List my notifications
// @Tags Notifications
// @Produce json
// @Param search query string false "Search title and body"
// @Param status query string false "unread, read or archived"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	lf, _ := listQuery(c)
	res, err := h.service.List(c.Request.Context(), actor, models.NotificationFilter{ListFilter: lf})
	if err != nil {
		response.Error(c, err)
		return
	}
	respondList(c, res)
}

// Transition godoc
// @Summary Mark a notification read, unread or archived
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Param action path string true "read, unread or archive"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /notifications/{id}/{action} [patch]
func (h *NotificationHandler) Transition(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	n, err := h.service.Transition(c.Request.Context(), actor, c.Param("id"), c.Param("action"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, n, nil)
}
