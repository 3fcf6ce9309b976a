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

type venueService interface {
	List(ctx context.Context, actor service.Actor, filter models.VenueFilter) (*service.ListResult[models.Venue], error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.Venue, error)
	Create(ctx context.Context, actor service.Actor, form forms.VenueForm) (*models.Venue, error)
	Update(ctx context.Context, actor service.Actor, id string, form forms.VenueForm) (*models.Venue, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
}

// VenueHandler exposes venue endpoints.
type VenueHandler struct {
	service venueService
}

// NewVenueHandler constructs a venue handler.
func NewVenueHandler(svc venueService) *VenueHandler {
	return &VenueHandler{service: svc}
}

// List godoc
// @Summary List venues
// @Tags Venues
// @Produce json
// @Param search query string false "Search name, city and postcode"
// @Param city query string false "City"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /venues [get]
func (h *VenueHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	lf, state := listQuery(c, "city")
	res, err := h.service.List(c.Request.Context(), actor, models.VenueFilter{ListFilter: lf, City: first(state.Values("city"))})
	if err != nil {
		response.Error(c, err)
		return
	}
	respondList(c, res)
}

// Get godoc
// @Summary Get venue
// @Tags Venues
// @Produce json
// @Param id path string true "Venue ID"
// @Success 200 {object} response.Envelope
// @Router /venues/{id} [get]
func (h *VenueHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	venue, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, venue, nil)
}

// Create godoc
// @Summary Create venue
// @Tags Venues
// @Accept json
// @Produce json
// @Param payload body forms.VenueForm true "Venue payload"
// @Success 201 {object} response.Envelope
// @Router /venues [post]
func (h *VenueHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var form forms.VenueForm
	if !bindJSON(c, &form, "venue") {
		return
	}
	venue, err := h.service.Create(c.Request.Context(), actor, form)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, venue)
}

// Update godoc
// @Summary Update venue
// @Tags Venues
// @Accept json
// @Produce json
// @Param id path string true "Venue ID"
// @Param payload body forms.VenueForm true "Venue payload"
// @Success 200 {object} response.Envelope
// @Router /venues/{id} [put]
func (h *VenueHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var form forms.VenueForm
	if !bindJSON(c, &form, "venue") {
		return
	}
	venue, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), form)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, venue, nil)
}

// Delete godoc
// @Summary Delete venue
// @Description Refused while courses or registers use the venue
// @Tags Venues
// @Param id path string true "Venue ID"
// @Success 204
// @Failure 412 {object} response.Envelope
// @Router /venues/{id} [delete]
func (h *VenueHandler) Delete(c *gin.Context) {
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
