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

type registerService interface {
	List(ctx context.Context, actor service.Actor, filter models.RegisterFilter) (*service.ListResult[models.Register], error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.RegisterDetail, error)
	Create(ctx context.Context, actor service.Actor, form forms.RegisterForm) (*models.RegisterDetail, error)
	Update(ctx context.Context, actor service.Actor, id string, form forms.RegisterForm) (*models.Register, error)
	Transition(ctx context.Context, actor service.Actor, id, action string) (*models.Register, error)
	MarkAttendance(ctx context.Context, actor service.Actor, id string, form forms.AttendanceForm) (*models.RegisterDetail, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
	Export(ctx context.Context, actor service.Actor, id, format string) (*service.RegisterExport, error)
}

// RegisterHandler exposes session register endpoints.
type RegisterHandler struct {
	service registerService
}

// NewRegisterHandler constructs a register handler.
func NewRegisterHandler(svc registerService) *RegisterHandler {
	return &RegisterHandler{service: svc}
}

// List godoc
// @Summary List registers
// @Tags Registers
// @Produce json
// @Param search query string false "Search course and venue"
// @Param status query string false "upcoming, in-progress, completed or cancelled"
// @Param venueId query string false "Venue ID"
// @Param courseId query string false "Course ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /registers [get]
func (h *RegisterHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	lf, state := listQuery(c, "venueId", "courseId")
	filter := models.RegisterFilter{
		ListFilter: lf,
		VenueID:    first(state.Values("venueId")),
		CourseID:   first(state.Values("courseId")),
	}
	res, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondList(c, res)
}

// Get godoc
// @Summary Get register with attendees
// @Tags Registers
// @Produce json
// @Param id path string true "Register ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registers/{id} [get]
func (h *RegisterHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Open a register for a course session
// @Tags Registers
// @Accept json
// @Produce json
// @Param payload body forms.RegisterForm true "Register payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registers [post]
func (h *RegisterHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var form forms.RegisterForm
	if !bindJSON(c, &form, "register") {
		return
	}
	detail, err := h.service.Create(c.Request.Context(), actor, form)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// Update godoc
// @Summary Update an upcoming register
// @Tags Registers
// @Accept json
// @Produce json
// @Param id path string true "Register ID"
// @Param payload body forms.RegisterForm true "Register payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /registers/{id} [put]
func (h *RegisterHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var form forms.RegisterForm
	if !bindJSON(c, &form, "register") {
		return
	}
	reg, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), form)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// Transition godoc
// @Summary Start, complete or cancel a register
// @Tags Registers
// @Produce json
// @Param id path string true "Register ID"
// @Param action path string true "start, complete or cancel"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registers/{id}/{action} [patch]
func (h *RegisterHandler) Transition(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	reg, err := h.service.Transition(c.Request.Context(), actor, c.Param("id"), c.Param("action"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// MarkAttendance godoc
// @Summary Mark attendees present or absent
// @Tags Registers
// @Accept json
// @Produce json
// @Param id path string true "Register ID"
// @Param payload body forms.AttendanceForm true "Attendance marks"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /registers/{id}/attendance [put]
func (h *RegisterHandler) MarkAttendance(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var form forms.AttendanceForm
	if !bindJSON(c, &form, "attendance") {
		return
	}
	detail, err := h.service.MarkAttendance(c.Request.Context(), actor, c.Param("id"), form)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Export godoc
// @Summary Download the attendance sheet
// @Tags Registers
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Register ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /registers/{id}/export [get]
func (h *RegisterHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	out, err := h.service.Export(c.Request.Context(), actor, c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, out.Filename, out.ContentType, out.Body)
}

// Delete godoc
// @Summary Delete an upcoming register
// @Tags Registers
// @Param id path string true "Register ID"
// @Success 204
// @Failure 412 {object} response.Envelope
// @Router /registers/{id} [delete]
func (h *RegisterHandler) Delete(c *gin.Context) {
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
