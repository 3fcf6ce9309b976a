package models

import "time"

// Notification is an in-app message addressed to a single user.
type Notification struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"userId"`
	Title     string     `db:"title" json:"title"`
	Body      string     `db:"body" json:"body"`
	Link      *string    `db:"link" json:"link,omitempty"`
	Status    string     `db:"status" json:"status"`
	ReadAt    *time.Time `db:"read_at" json:"readAt,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// NotificationFilter narrows a user's notification feed.
type NotificationFilter struct {
	ListFilter
	UserID string
}
