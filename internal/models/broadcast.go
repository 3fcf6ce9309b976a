package models

import (
	"time"

	"github.com/lib/pq"
)

// Broadcast is a one-off message sent to an audience of parents.
type Broadcast struct {
	ID              string         `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	Subject         string         `db:"subject" json:"subject"`
	Body            string         `db:"body" json:"body"`
	BodyHTML        string         `db:"body_html" json:"bodyHtml"`
	TemplateID      *string        `db:"template_id" json:"templateId,omitempty"`
	Channels        pq.StringArray `db:"channels" json:"channels"`
	AudienceType    string         `db:"audience_type" json:"audienceType"`
	AudienceIDs     pq.StringArray `db:"audience_ids" json:"audienceIds"`
	ScheduledFor    *time.Time     `db:"scheduled_for" json:"scheduledFor,omitempty"`
	Status          string         `db:"status" json:"status"`
	RecipientCount  int            `db:"recipient_count" json:"recipientCount"`
	SentCount       int            `db:"sent_count" json:"sentCount"`
	FailedCount     int            `db:"failed_count" json:"failedCount"`
	DeliveredOffset int            `db:"delivered_offset" json:"-"`
	LastError       *string        `db:"last_error" json:"lastError,omitempty"`
	SentAt          *time.Time     `db:"sent_at" json:"sentAt,omitempty"`
	CreatedBy       string         `db:"created_by" json:"createdBy"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updatedAt"`
}

// BroadcastFilter narrows broadcast listings.
type BroadcastFilter struct {
	ListFilter
	Channel string
}

// DeliveryProgress is written after every delivered batch.
type DeliveryProgress struct {
	BroadcastID string
	Offset      int
	Sent        int
	Failed      int
	LastError   *string
}
