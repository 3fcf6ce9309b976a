package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bookon/bookon-api/internal/models"
)

const venueColumns = "id, name, address_line1, address_line2, city, postcode, capacity, contact_email, contact_phone, created_by, created_at, updated_at"

// VenueRepository manages persistence for venues.
type VenueRepository struct {
	db *sqlx.DB
}

// NewVenueRepository constructs a VenueRepository.
func NewVenueRepository(db *sqlx.DB) *VenueRepository {
	return &VenueRepository{db: db}
}

// List returns venues matching filters along with total count.
func (r *VenueRepository) List(ctx context.Context, filter models.VenueFilter) ([]models.Venue, int, error) {
	w := &whereBuilder{}
	if filter.OwnerID != "" {
		w.add("created_by = $%d", filter.OwnerID)
	}
	if filter.City != "" {
		w.add("LOWER(city) = LOWER($%d)", filter.City)
	}
	w.search(filter.Search, "name", "city", "postcode", "address_line1")
	base := "FROM venues WHERE 1=1" + w.sql()

	order := orderClause(filter.ListFilter, map[string]string{
		"name":       "name",
		"city":       "city",
		"capacity":   "capacity",
		"created_at": "created_at",
	}, "created_at")

	query := fmt.Sprintf("SELECT %s %s%s%s", venueColumns, base, order, pageClause(filter.ListFilter))
	var venues []models.Venue
	if err := r.db.SelectContext(ctx, &venues, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("list venues: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, w.args...); err != nil {
		return nil, 0, fmt.Errorf("count venues: %w", err)
	}
	return venues, total, nil
}

// FindByID fetches a venue by ID.
func (r *VenueRepository) FindByID(ctx context.Context, id string) (*models.Venue, error) {
	query := fmt.Sprintf("SELECT %s FROM venues WHERE id = $1", venueColumns)
	var venue models.Venue
	if err := r.db.GetContext(ctx, &venue, query, id); err != nil {
		return nil, err
	}
	return &venue, nil
}

// CountReferences returns the number of courses and registers held at the venue.
func (r *VenueRepository) CountReferences(ctx context.Context, id string) (int, error) {
	const query = `SELECT (SELECT COUNT(*) FROM courses WHERE venue_id = $1) + (SELECT COUNT(*) FROM registers WHERE venue_id = $1)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count venue references: %w", err)
	}
	return count, nil
}

// Create inserts a new venue record.
func (r *VenueRepository) Create(ctx context.Context, venue *models.Venue) error {
	if venue.ID == "" {
		venue.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if venue.CreatedAt.IsZero() {
		venue.CreatedAt = now
	}
	venue.UpdatedAt = now

	const query = `INSERT INTO venues (id, name, address_line1, address_line2, city, postcode, capacity, contact_email, contact_phone, created_by, created_at, updated_at)
		VALUES (:id, :name, :address_line1, :address_line2, :city, :postcode, :capacity, :contact_email, :contact_phone, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, venue); err != nil {
		return fmt.Errorf("create venue: %w", err)
	}
	return nil
}

// Update modifies an existing venue record.
func (r *VenueRepository) Update(ctx context.Context, venue *models.Venue) error {
	venue.UpdatedAt = time.Now().UTC()
	const query = `UPDATE venues SET name = :name, address_line1 = :address_line1, address_line2 = :address_line2, city = :city,
		postcode = :postcode, capacity = :capacity, contact_email = :contact_email, contact_phone = :contact_phone, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, venue); err != nil {
		return fmt.Errorf("update venue: %w", err)
	}
	return nil
}

// Delete removes a venue.
func (r *VenueRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "venues", id)
}
