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

type courseService interface {
	List(ctx context.Context, actor service.Actor, filter models.CourseFilter) (*service.ListResult[models.Course], error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.Course, error)
	Create(ctx context.Context, actor service.Actor, form forms.CourseForm) (*models.Course, error)
	Update(ctx context.Context, actor service.Actor, id string, form forms.CourseForm) (*models.Course, error)
	Transition(ctx context.Context, actor service.Actor, id, action string) (*models.Course, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
}

// CourseHandler exposes course endpoints.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler constructs a course handler.
func NewCourseHandler(svc courseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// List godoc
// @Summary List courses
// @Description Multi-select filters (type, years) take comma separated values
// @Tags Courses
// @Produce json
// @Param search query string false "Search title and venue"
// @Param type query string false "Course types"
// @Param years query string false "School years"
// @Param status query string false "draft, published or archived"
// @Param venueId query string false "Venue ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	lf, state := listQuery(c, "type", "years", "venueId")
	filter := models.CourseFilter{
		ListFilter: lf,
		Types:      state.Values("type"),
		Years:      state.Values("years"),
		VenueID:    first(state.Values("venueId")),
	}
	res, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondList(c, res)
}

// Get godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	course, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create course
// @Description New courses start as drafts
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body forms.CourseForm true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var form forms.CourseForm
	if !bindJSON(c, &form, "course") {
		return
	}
	course, err := h.service.Create(c.Request.Context(), actor, form)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body forms.CourseForm true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var form forms.CourseForm
	if !bindJSON(c, &form, "course") {
		return
	}
	course, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), form)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Transition godoc
// @Summary Publish or archive a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Param action path string true "publish or archive"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/{action} [patch]
func (h *CourseHandler) Transition(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	course, err := h.service.Transition(c.Request.Context(), actor, c.Param("id"), c.Param("action"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete a draft course
// @Tags Courses
// @Param id path string true "Course ID"
// @Success 204
// @Failure 412 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
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
