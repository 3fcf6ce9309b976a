package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/internal/service"
	"github.com/bookon/bookon-api/pkg/forms"
	"github.com/bookon/bookon-api/pkg/response"
)

type broadcastService interface {
	List(ctx context.Context, actor service.Actor, filter models.BroadcastFilter) (*service.ListResult[models.Broadcast], error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.Broadcast, error)
	PreviewAudience(ctx context.Context, audience models.Audience) (*models.AudiencePreview, error)
	Create(ctx context.Context, actor service.Actor, form forms.BroadcastForm) (*models.Broadcast, error)
	Update(ctx context.Context, actor service.Actor, id string, form forms.BroadcastForm) (*models.Broadcast, error)
	Transition(ctx context.Context, actor service.Actor, id, action string, opts service.TransitionOptions) (*models.Broadcast, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
}

// BroadcastHandler exposes broadcast endpoints.
type BroadcastHandler struct {
	service broadcastService
}

// NewBroadcastHandler constructs a broadcast handler.
func NewBroadcastHandler(svc broadcastService) *BroadcastHandler {
	return &BroadcastHandler{service: svc}
}

// List godoc
// @Summary List broadcasts
// @Tags Broadcasts
// @Produce json
// @Param search query string false "Search name and subject"
// @Param status query string false "Broadcast status"
// @Param channel query string false "email, sms or push"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /broadcasts [get]
func (h *BroadcastHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	lf, state := listQuery(c, "channel")
	res, err := h.service.List(c.Request.Context(), actor, models.BroadcastFilter{ListFilter: lf, Channel: first(state.Values("channel"))})
	if err != nil {
		response.Error(c, err)
		return
	}
	respondList(c, res)
}

// Get godoc
// @Summary Get broadcast
// @Tags Broadcasts
// @Produce json
// @Param id path string true "Broadcast ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /broadcasts/{id} [get]
func (h *BroadcastHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	b, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, b, nil)
}

// PreviewAudience godoc
// @Summary Count broadcast recipients
// @Tags Broadcasts
// @Accept json
// @Produce json
// @Param payload body models.Audience true "Audience"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /broadcasts/audience/preview [post]
func (h *BroadcastHandler) PreviewAudience(c *gin.Context) {
	if _, ok := actorFromContext(c); !ok {
		return
	}
	var audience models.Audience
	if !bindJSON(c, &audience, "audience") {
		return
	}
	preview, err := h.service.PreviewAudience(c.Request.Context(), audience)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// Create godoc
// @Summary Create broadcast
// @Description Sends immediately when sendNow is set, otherwise schedules for scheduledFor
// @Tags Broadcasts
// @Accept json
// @Produce json
// @Param payload body forms.BroadcastForm true "Broadcast payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /broadcasts [post]
func (h *BroadcastHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var form forms.BroadcastForm
	if !bindJSON(c, &form, "broadcast") {
		return
	}
	b, err := h.service.Create(c.Request.Context(), actor, form)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, b)
}

// Update godoc
// @Summary Update a draft or scheduled broadcast
// @Tags Broadcasts
// @Accept json
// @Produce json
// @Param id path string true "Broadcast ID"
// @Param payload body forms.BroadcastForm true "Broadcast payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /broadcasts/{id} [put]
func (h *BroadcastHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var form forms.BroadcastForm
	if !bindJSON(c, &form, "broadcast") {
		return
	}
	b, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), form)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, b, nil)
}

// Transition godoc
// @Summary Change broadcast status
// @Description schedule accepts an optional {"scheduledFor": "2025-01-01T10:00"} body
// @Tags Broadcasts
// @Accept json
// @Produce json
// @Param id path string true "Broadcast ID"
// @Param action path string true "schedule, unschedule, send, pause or resume"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /broadcasts/{id}/{action} [patch]
func (h *BroadcastHandler) Transition(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var opts service.TransitionOptions
	if c.Request.ContentLength > 0 && !bindJSON(c, &opts, "transition") {
		return
	}
	b, err := h.service.Transition(c.Request.Context(), actor, c.Param("id"), c.Param("action"), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, b, nil)
}

// Delete godoc
// @Summary Delete a draft or scheduled broadcast
// @Tags Broadcasts
// @Param id path string true "Broadcast ID"
// @Success 204
// @Failure 412 {object} response.Envelope
// @Router /broadcasts/{id} [delete]
func (h *BroadcastHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
