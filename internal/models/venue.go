package models

import "time"

// Venue is a site where courses and registers take place.
type Venue struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	AddressLine1 string    `db:"address_line1" json:"addressLine1"`
	AddressLine2 *string   `db:"address_line2" json:"addressLine2,omitempty"`
	City         string    `db:"city" json:"city"`
	Postcode     string    `db:"postcode" json:"postcode"`
	Capacity     int       `db:"capacity" json:"capacity"`
	ContactEmail *string   `db:"contact_email" json:"contactEmail,omitempty"`
	ContactPhone *string   `db:"contact_phone" json:"contactPhone,omitempty"`
	CreatedBy    string    `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// VenueFilter narrows venue listings.
type VenueFilter struct {
	ListFilter
	City string
}
