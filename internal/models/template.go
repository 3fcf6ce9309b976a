package models

import (
	"time"

	"github.com/lib/pq"
)

// Template is a reusable message body for broadcasts and course emails.
type Template struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Type        string         `db:"type" json:"type"`
	Subject     *string        `db:"subject" json:"subject,omitempty"`
	Body        string         `db:"body" json:"body"`
	BodyHTML    string         `db:"body_html" json:"bodyHtml"`
	Description *string        `db:"description" json:"description,omitempty"`
	Tags        pq.StringArray `db:"tags" json:"tags"`
	Status      string         `db:"status" json:"status"`
	CreatedBy   string         `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
}

// TemplateFilter narrows template listings.
type TemplateFilter struct {
	ListFilter
	Type string
}
