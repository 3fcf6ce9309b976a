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

type templateService interface {
	List(ctx context.Context, actor service.Actor, filter models.TemplateFilter) (*service.ListResult[models.Template], error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.Template, error)
	Create(ctx context.Context, actor service.Actor, form forms.TemplateForm) (*models.Template, error)
	Update(ctx context.Context, actor service.Actor, id string, form forms.TemplateForm) (*models.Template, error)
	Transition(ctx context.Context, actor service.Actor, id, action string) (*models.Template, error)
	Duplicate(ctx context.Context, actor service.Actor, id string) (*models.Template, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
}

// TemplateHandler exposes message template endpoints.
type TemplateHandler struct {
	service templateService
}

// NewTemplateHandler constructs a template handler.
func NewTemplateHandler(svc templateService) *TemplateHandler {
	return &TemplateHandler{service: svc}
}

// List godoc
// @Summary List templates
// @Description List message templates with per-status counts in meta.stats
// @Tags Templates
// @Produce json
// @Param search query string false "Search name, subject and tags"
// @Param type query string false "email, sms or push"
// @Param status query string false "active, inactive or archived"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /templates [get]
func (h *TemplateHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	lf, state := listQuery(c, "type")
	res, err := h.service.List(c.Request.Context(), actor, models.TemplateFilter{ListFilter: lf, Type: first(state.Values("type"))})
	if err != nil {
		response.Error(c, err)
		return
	}
	respondList(c, res)
}

// Get godoc
// @Summary Get template
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /templates/{id} [get]
func (h *TemplateHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	tpl, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}

// Create godoc
// @Summary Create template
// @Tags Templates
// @Accept json
// @Produce json
// @Param payload body forms.TemplateForm true "Template payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /templates [post]
func (h *TemplateHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var form forms.TemplateForm
	if !bindJSON(c, &form, "template") {
		return
	}
	tpl, err := h.service.Create(c.Request.Context(), actor, form)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tpl)
}

// Update godoc
// @Summary Update template
// @Tags Templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body forms.TemplateForm true "Template payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /templates/{id} [put]
func (h *TemplateHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var form forms.TemplateForm
	if !bindJSON(c, &form, "template") {
		return
	}
	tpl, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), form)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}

// Transition godoc
// @Summary Change template status
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Param action path string true "activate, deactivate, archive or unarchive"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /templates/{id}/{action} [patch]
func (h *TemplateHandler) Transition(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	tpl, err := h.service.Transition(c.Request.Context(), actor, c.Param("id"), c.Param("action"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}

// Duplicate godoc
// @Summary Duplicate template
// @Description Creates an active copy named "Copy of ..."
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 201 {object} response.Envelope
// @Router /templates/{id}/duplicate [post]
func (h *TemplateHandler) Duplicate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	tpl, err := h.service.Duplicate(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tpl)
}

// Delete godoc
// @Summary Delete template
// @Tags Templates
// @Param id path string true "Template ID"
// @Success 204
// @Failure 412 {object} response.Envelope
// @Router /templates/{id} [delete]
func (h *TemplateHandler) Delete(c *gin.Context) {
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
