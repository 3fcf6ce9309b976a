package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bookon/bookon-api/internal/models"
	appErrors "github.com/bookon/bookon-api/pkg/errors"
	"github.com/bookon/bookon-api/pkg/forms"
	"github.com/bookon/bookon-api/pkg/lifecycle"
)

const courseResource = "courses"

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Stats(ctx context.Context, filter models.CourseFilter) (models.StatusStats, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	UpdateStatus(ctx context.Context, id, from, to string) error
	Delete(ctx context.Context, id string) error
}

type venueReader interface {
	FindByID(ctx context.Context, id string) (*models.Venue, error)
}

type templateReader interface {
	FindByID(ctx context.Context, id string) (*models.Template, error)
}

// CourseService manages bookable courses.
type CourseService struct {
	repo      courseRepository
	venues    venueReader
	templates templateReader
	validator *forms.Validator
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, venues venueReader, templates templateReader, validate *forms.Validator, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = forms.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, venues: venues, templates: templates, validator: validate, cache: cache, metrics: metrics, logger: logger}
}

// List returns courses with status counts.
func (s *CourseService) List(ctx context.Context, actor Actor, filter models.CourseFilter) (*ListResult[models.Course], error) {
	filter.OwnerID = actor.scope()
	return cachedList(ctx, s.cache, courseResource, filter, func() (*ListResult[models.Course], error) {
		items, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, internalError(err, "failed to list courses")
		}
		stats, err := s.repo.Stats(ctx, filter)
		if err != nil {
			return nil, internalError(err, "failed to count courses")
		}
		return &ListResult[models.Course]{Items: items, Pagination: filter.Paginate(total), Stats: stats}, nil
	})
}

// Get returns a course the actor can access.
func (s *CourseService) Get(ctx context.Context, actor Actor, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "course")
	}
	if !actor.canAccess(course.CreatedBy) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return course, nil
}

// Create stores a draft course.
func (s *CourseService) Create(ctx context.Context, actor Actor, form forms.CourseForm) (*models.Course, error) {
	course := &models.Course{Status: lifecycle.CourseDraft, CreatedBy: actor.UserID}
	if err := s.apply(ctx, actor, course, form); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, internalError(err, "failed to create course")
	}
	invalidateList(ctx, s.cache, courseResource)
	return course, nil
}

// Update edits a draft or published course.
func (s *CourseService) Update(ctx context.Context, actor Actor, id string, form forms.CourseForm) (*models.Course, error) {
	course, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if course.Status == lifecycle.CourseArchived {
		return nil, preconditionFailed("archived courses cannot be edited")
	}
	if err := s.apply(ctx, actor, course, form); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, internalError(err, "failed to update course")
	}
	invalidateList(ctx, s.cache, courseResource, registerResource)
	return course, nil
}

// Transition applies publish or archive.
func (s *CourseService) Transition(ctx context.Context, actor Actor, id, action string) (*models.Course, error) {
	course, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	next, err := resolveAction(lifecycle.KindCourse, course.Status, action)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, course.ID, course.Status, next); err != nil {
		return nil, statusUpdateError(err, "course")
	}
	s.metrics.RecordTransition(string(lifecycle.KindCourse), action)
	invalidateList(ctx, s.cache, courseResource)
	if next == lifecycle.CoursePublished && course.PublishedAt == nil {
		now := time.Now().UTC()
		course.PublishedAt = &now
	}
	course.Status = next
	return course, nil
}

// Delete removes a draft course. Published courses are archived instead.
func (s *CourseService) Delete(ctx context.Context, actor Actor, id string) error {
	course, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if course.Status != lifecycle.CourseDraft {
		return preconditionFailed("only draft courses can be deleted, archive it instead")
	}
	if err := s.repo.Delete(ctx, course.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return internalError(err, "failed to delete course")
	}
	invalidateList(ctx, s.cache, courseResource)
	return nil
}

func (s *CourseService) apply(ctx context.Context, actor Actor, course *models.Course, form forms.CourseForm) error {
	if errs := s.validator.Struct(form); !errs.Valid() {
		return invalidForm("course", errs)
	}
	venue, err := s.venues.FindByID(ctx, form.VenueID)
	if err != nil || !actor.canAccess(venue.CreatedBy) {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return internalError(err, "failed to load venue")
		}
		return fieldError("venueId", "Selected venue does not exist")
	}
	course.TemplateID = nil
	if id := strings.TrimSpace(form.TemplateID); id != "" {
		tpl, err := s.templates.FindByID(ctx, id)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return internalError(err, "failed to load template")
			}
			return fieldError("templateId", "Selected template does not exist")
		}
		if tpl.Status == lifecycle.TemplateArchived {
			return fieldError("templateId", "Selected template is archived")
		}
		course.TemplateID = &tpl.ID
	}

	start, _ := time.Parse(forms.DateLayout, form.StartDate)
	end, _ := time.Parse(forms.DateLayout, form.EndDate)
	course.Title = strings.TrimSpace(form.Title)
	course.Description = optional(form.Description)
	course.Type = form.Type
	course.Years = trimAll(form.Years)
	course.VenueID = venue.ID
	course.VenueName = &venue.Name
	course.StartDate = start
	course.EndDate = end
	course.Capacity = form.Capacity
	course.Price = form.Price
	return nil
}
