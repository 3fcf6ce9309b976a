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
)

const venueResource = "venues"

type venueRepository interface {
	List(ctx context.Context, filter models.VenueFilter) ([]models.Venue, int, error)
	FindByID(ctx context.Context, id string) (*models.Venue, error)
	CountReferences(ctx context.Context, id string) (int, error)
	Create(ctx context.Context, venue *models.Venue) error
	Update(ctx context.Context, venue *models.Venue) error
	Delete(ctx context.Context, id string) error
}

// VenueService manages the sites courses run at.
type VenueService struct {
	repo      venueRepository
	validator *forms.Validator
	cache     *CacheService
	logger    *zap.Logger
}

// NewVenueService constructs a VenueService.
func NewVenueService(repo venueRepository, validate *forms.Validator, cache *CacheService, logger *zap.Logger) *VenueService {
	if validate == nil {
		validate = forms.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VenueService{repo: repo, validator: validate, cache: cache, logger: logger}
}

// List returns the caller's venues.
func (s *VenueService) List(ctx context.Context, actor Actor, filter models.VenueFilter) (*ListResult[models.Venue], error) {
	filter.OwnerID = actor.scope()
	return cachedList(ctx, s.cache, venueResource, filter, func() (*ListResult[models.Venue], error) {
		items, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, internalError(err, "failed to list venues")
		}
		return &ListResult[models.Venue]{Items: items, Pagination: filter.Paginate(total)}, nil
	})
}

// Get returns a venue the actor can access.
func (s *VenueService) Get(ctx context.Context, actor Actor, id string) (*models.Venue, error) {
	venue, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "venue")
	}
	if !actor.canAccess(venue.CreatedBy) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "venue not found")
	}
	return venue, nil
}

// Create stores a venue.
func (s *VenueService) Create(ctx context.Context, actor Actor, form forms.VenueForm) (*models.Venue, error) {
	if errs := s.validator.Struct(form); !errs.Valid() {
		return nil, invalidForm("venue", errs)
	}
	venue := &models.Venue{CreatedBy: actor.UserID}
	applyVenueForm(venue, form)
	if err := s.repo.Create(ctx, venue); err != nil {
		return nil, internalError(err, "failed to create venue")
	}
	invalidateList(ctx, s.cache, venueResource)
	return venue, nil
}

// Update edits a venue.
func (s *VenueService) Update(ctx context.Context, actor Actor, id string, form forms.VenueForm) (*models.Venue, error) {
	if errs := s.validator.Struct(form); !errs.Valid() {
		return nil, invalidForm("venue", errs)
	}
	venue, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	applyVenueForm(venue, form)
	if err := s.repo.Update(ctx, venue); err != nil {
		return nil, internalError(err, "failed to update venue")
	}
	// course and register rows carry the venue name
	invalidateList(ctx, s.cache, venueResource, courseResource, registerResource)
	return venue, nil
}

// Delete removes a venue nothing is scheduled at.
func (s *VenueService) Delete(ctx context.Context, actor Actor, id string) error {
	venue, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	refs, err := s.repo.CountReferences(ctx, venue.ID)
	if err != nil {
		return internalError(err, "failed to check venue usage")
	}
	if refs > 0 {
		return preconditionFailed(fmt.Sprintf("venue is used by %d course(s) or register(s)", refs))
	}
	if err := s.repo.Delete(ctx, venue.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "venue not found")
		}
		return internalError(err, "failed to delete venue")
	}
	invalidateList(ctx, s.cache, venueResource)
	return nil
}

func applyVenueForm(venue *models.Venue, form forms.VenueForm) {
	venue.Name = strings.TrimSpace(form.Name)
	venue.AddressLine1 = strings.TrimSpace(form.AddressLine1)
	venue.AddressLine2 = optional(form.AddressLine2)
	venue.City = strings.TrimSpace(form.City)
	venue.Postcode = strings.ToUpper(strings.TrimSpace(form.Postcode))
	venue.Capacity = form.Capacity
	venue.ContactEmail = optional(form.ContactEmail)
	venue.ContactPhone = optional(form.ContactPhone)
}
