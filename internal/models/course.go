package models

import (
	"time"

	"github.com/lib/pq"
)

// Course is a bookable programme (holiday club, after-school club, ...).
type Course struct {
	ID          string         `db:"id" json:"id"`
	Title       string         `db:"title" json:"title"`
	Description *string        `db:"description" json:"description,omitempty"`
	Type        string         `db:"type" json:"type"`
	Years       pq.StringArray `db:"years" json:"years"`
	VenueID     string         `db:"venue_id" json:"venueId"`
	VenueName   *string        `db:"venue_name" json:"venueName,omitempty"`
	TemplateID  *string        `db:"template_id" json:"templateId,omitempty"`
	StartDate   time.Time      `db:"start_date" json:"startDate"`
	EndDate     time.Time      `db:"end_date" json:"endDate"`
	Capacity    int            `db:"capacity" json:"capacity"`
	Price       float64        `db:"price" json:"price"`
	Status      string         `db:"status" json:"status"`
	PublishedAt *time.Time     `db:"published_at" json:"publishedAt,omitempty"`
	CreatedBy   string         `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
}

// CourseFilter narrows course listings. Types and Years match when the course
// carries any of the listed values.
type CourseFilter struct {
	ListFilter
	Types   []string
	Years   []string
	VenueID string
}
