package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bookon/bookon-api/internal/models"
	appErrors "github.com/bookon/bookon-api/pkg/errors"
	"github.com/bookon/bookon-api/pkg/forms"
	"github.com/bookon/bookon-api/pkg/lifecycle"
	"github.com/bookon/bookon-api/pkg/richtext"
)

const templateResource = "templates"

// maxCopySuffix bounds the "Copy of X (n)" search when duplicating.
const maxCopySuffix = 50

type templateRepository interface {
	List(ctx context.Context, filter models.TemplateFilter) ([]models.Template, int, error)
	Stats(ctx context.Context, filter models.TemplateFilter) (models.StatusStats, error)
	FindByID(ctx context.Context, id string) (*models.Template, error)
	ExistsByName(ctx context.Context, ownerID, name, excludeID string) (bool, error)
	CountReferences(ctx context.Context, id string) (int, error)
	Create(ctx context.Context, tpl *models.Template) error
	Update(ctx context.Context, tpl *models.Template) error
	UpdateStatus(ctx context.Context, id, from, to string) error
	Delete(ctx context.Context, id string) error
}

// TemplateService manages reusable message templates.
type TemplateService struct {
	repo      templateRepository
	validator *forms.Validator
	renderer  *richtext.Renderer
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewTemplateService constructs a TemplateService.
func NewTemplateService(repo templateRepository, validate *forms.Validator, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *TemplateService {
	if validate == nil {
		validate = forms.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateService{repo: repo, validator: validate, renderer: richtext.New(), cache: cache, metrics: metrics, logger: logger}
}

// List returns the caller's templates with status counts.
func (s *TemplateService) List(ctx context.Context, actor Actor, filter models.TemplateFilter) (*ListResult[models.Template], error) {
	filter.OwnerID = actor.scope()
	return cachedList(ctx, s.cache, templateResource, filter, func() (*ListResult[models.Template], error) {
		items, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, internalError(err, "failed to list templates")
		}
		stats, err := s.repo.Stats(ctx, filter)
		if err != nil {
			return nil, internalError(err, "failed to count templates")
		}
		return &ListResult[models.Template]{Items: items, Pagination: filter.Paginate(total), Stats: stats}, nil
	})
}

// Get returns a template the actor can access.
func (s *TemplateService) Get(ctx context.Context, actor Actor, id string) (*models.Template, error) {
	tpl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "template")
	}
	if !actor.canAccess(tpl.CreatedBy) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
	}
	return tpl, nil
}

// Create stores a new active template.
func (s *TemplateService) Create(ctx context.Context, actor Actor, form forms.TemplateForm) (*models.Template, error) {
	if errs := s.validator.Struct(form); !errs.Valid() {
		return nil, invalidForm("template", errs)
	}
	if err := s.ensureUniqueName(ctx, actor.UserID, form.Name, ""); err != nil {
		return nil, err
	}

	tpl := &models.Template{Status: lifecycle.TemplateActive, CreatedBy: actor.UserID}
	if err := s.apply(tpl, form); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, tpl); err != nil {
		return nil, internalError(err, "failed to create template")
	}
	invalidateList(ctx, s.cache, templateResource)
	return tpl, nil
}

// Update edits a template. Archived templates must be unarchived first.
func (s *TemplateService) Update(ctx context.Context, actor Actor, id string, form forms.TemplateForm) (*models.Template, error) {
	if errs := s.validator.Struct(form); !errs.Valid() {
		return nil, invalidForm("template", errs)
	}
	tpl, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if tpl.Status == lifecycle.TemplateArchived {
		return nil, preconditionFailed("archived templates cannot be edited, unarchive it first")
	}
	if err := s.ensureUniqueName(ctx, tpl.CreatedBy, form.Name, tpl.ID); err != nil {
		return nil, err
	}
	if err := s.apply(tpl, form); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, tpl); err != nil {
		return nil, internalError(err, "failed to update template")
	}
	invalidateList(ctx, s.cache, templateResource)
	return tpl, nil
}

// Transition applies activate, deactivate, archive or unarchive.
func (s *TemplateService) Transition(ctx context.Context, actor Actor, id, action string) (*models.Template, error) {
	tpl, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	next, err := resolveAction(lifecycle.KindTemplate, tpl.Status, action)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, tpl.ID, tpl.Status, next); err != nil {
		return nil, statusUpdateError(err, "template")
	}
	s.metrics.RecordTransition(string(lifecycle.KindTemplate), action)
	invalidateList(ctx, s.cache, templateResource)
	tpl.Status = next
	return tpl, nil
}

// Duplicate copies a template as a new active template named "Copy of ...".
func (s *TemplateService) Duplicate(ctx context.Context, actor Actor, id string) (*models.Template, error) {
	src, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	name, err := s.copyName(ctx, actor.UserID, src.Name)
	if err != nil {
		return nil, err
	}

	dup := *src
	dup.ID = ""
	dup.Name = name
	dup.Status = lifecycle.TemplateActive
	dup.CreatedBy = actor.UserID
	dup.Tags = append([]string(nil), src.Tags...)
	if err := s.repo.Create(ctx, &dup); err != nil {
		return nil, internalError(err, "failed to duplicate template")
	}
	invalidateList(ctx, s.cache, templateResource)
	return &dup, nil
}

// Delete removes a template that no course or broadcast references.
func (s *TemplateService) Delete(ctx context.Context, actor Actor, id string) error {
	tpl, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	refs, err := s.repo.CountReferences(ctx, tpl.ID)
	if err != nil {
		return internalError(err, "failed to check template usage")
	}
	if refs > 0 {
		return preconditionFailed(fmt.Sprintf("template is used by %d course(s) or broadcast(s), archive it instead", refs))
	}
	if err := s.repo.Delete(ctx, tpl.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return internalError(err, "failed to delete template")
	}
	invalidateList(ctx, s.cache, templateResource)
	return nil
}

func (s *TemplateService) apply(tpl *models.Template, form forms.TemplateForm) error {
	html, err := s.renderer.HTML(form.Body)
	if err != nil {
		return fieldError("body", "Template content could not be rendered")
	}
	tpl.Name = strings.TrimSpace(form.Name)
	tpl.Type = form.Type
	tpl.Subject = optional(form.Subject)
	tpl.Body = form.Body
	tpl.BodyHTML = html
	tpl.Description = optional(form.Description)
	tpl.Tags = trimAll(form.Tags)
	return nil
}

func (s *TemplateService) ensureUniqueName(ctx context.Context, ownerID, name, excludeID string) error {
	exists, err := s.repo.ExistsByName(ctx, ownerID, strings.TrimSpace(name), excludeID)
	if err != nil {
		return internalError(err, "failed to check template name")
	}
	if exists {
		conflict := appErrors.Clone(appErrors.ErrConflict, "a template with this name already exists")
		conflict.Fields = map[string]string{"name": "A template with this name already exists"}
		return conflict
	}
	return nil
}

func (s *TemplateService) copyName(ctx context.Context, ownerID, name string) (string, error) {
	base := "Copy of " + name
	for n := 1; n <= maxCopySuffix; n++ {
		candidate := base
		if n > 1 {
			candidate = fmt.Sprintf("%s (%d)", base, n)
		}
		exists, err := s.repo.ExistsByName(ctx, ownerID, candidate, "")
		if err != nil {
			return "", internalError(err, "failed to check template name")
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrConflict, "too many copies of this template")
}
