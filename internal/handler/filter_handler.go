package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bookon/bookon-api/internal/service"
	"github.com/bookon/bookon-api/pkg/filter"
	"github.com/bookon/bookon-api/pkg/response"
)

type filterService interface {
	Load(ctx context.Context, actor service.Actor, page string) (filter.State, error)
	Save(ctx context.Context, actor service.Actor, page string, state filter.State) (filter.State, error)
}

// FilterHandler persists list filter state per user and page.
type FilterHandler struct {
	service filterService
}

// NewFilterHandler constructs a filter handler.
func NewFilterHandler(svc filterService) *FilterHandler {
	return &FilterHandler{service: svc}
}

// Get godoc
// @Summary Load saved filters
// @Tags Filters
// @Produce json
// @Param page path string true "List page key, e.g. courses"
// @Success 200 {object} response.Envelope
// @Router /filters/{page} [get]
func (h *FilterHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	state, err := h.service.Load(c.Request.Context(), actor, c.Param("page"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Put godoc
// @Summary Save filters
// @Tags Filters
// @Accept json
// @Produce json
// @Param page path string true "List page key, e.g. courses"
// @Param payload body filter.State true "Filter state"
// @Success 200 {object} response.Envelope
// @Router /filters/{page} [put]
func (h *FilterHandler) Put(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var state filter.State
	if !bindJSON(c, &state, "filter") {
		return
	}
	saved, err := h.service.Save(c.Request.Context(), actor, c.Param("page"), state)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, saved, nil)
}
