package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/pkg/forms"
)

// AudienceRepository resolves broadcast audiences into parent accounts.
type AudienceRepository struct {
	db *sqlx.DB
}

// NewAudienceRepository constructs an AudienceRepository.
func NewAudienceRepository(db *sqlx.DB) *AudienceRepository {
	return &AudienceRepository{db: db}
}

// audienceSource returns the FROM/WHERE clause selecting the distinct parents
// of an audience.
func audienceSource(a models.Audience) (string, []interface{}, error) {
	const parents = " FROM users u WHERE u.role = 'PARENT' AND u.active"
	switch a.Type {
	case forms.AudienceAllParents:
		return parents, nil, nil
	case forms.AudienceCourse:
		return parents + ` AND EXISTS (SELECT 1 FROM bookings b WHERE b.parent_id = u.id AND b.status = 'confirmed' AND b.course_id = ANY($1))`,
			[]interface{}{pq.Array(a.IDs)}, nil
	case forms.AudienceVenue:
		return parents + ` AND EXISTS (SELECT 1 FROM bookings b JOIN courses c ON c.id = b.course_id
			WHERE b.parent_id = u.id AND b.status = 'confirmed' AND c.venue_id = ANY($1))`,
			[]interface{}{pq.Array(a.IDs)}, nil
	case forms.AudienceYear:
		return parents + ` AND EXISTS (SELECT 1 FROM bookings b WHERE b.parent_id = u.id AND b.status = 'confirmed' AND b.child_year = ANY($1))`,
			[]interface{}{pq.Array(a.IDs)}, nil
	default:
		return "", nil, fmt.Errorf("unknown audience type %q", a.Type)
	}
}

// Count returns the number of parents an audience resolves to.
func (r *AudienceRepository) Count(ctx context.Context, a models.Audience) (int, error) {
	source, args, err := audienceSource(a)
	if err != nil {
		return 0, err
	}
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*)"+source, args...); err != nil {
		return 0, fmt.Errorf("count audience: %w", err)
	}
	return count, nil
}

// Recipients returns one page of the audience in a stable order.
func (r *AudienceRepository) Recipients(ctx context.Context, a models.Audience, offset, limit int) ([]models.Recipient, error) {
	source, args, err := audienceSource(a)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT u.id, u.email, u.full_name, u.phone%s ORDER BY u.id LIMIT %d OFFSET %d", source, limit, offset)
	var recipients []models.Recipient
	if err := r.db.SelectContext(ctx, &recipients, query, args...); err != nil {
		return nil, fmt.Errorf("list audience: %w", err)
	}
	return recipients, nil
}
