package models

// Recipient is one resolved member of a broadcast audience.
type Recipient struct {
	UserID   string  `db:"id" json:"userId"`
	Email    string  `db:"email" json:"email"`
	FullName string  `db:"full_name" json:"fullName"`
	Phone    *string `db:"phone" json:"phone,omitempty"`
}

// Audience describes who a broadcast targets.
type Audience struct {
	Type string   `json:"audienceType" validate:"required,oneof=all_parents course venue year"`
	IDs  []string `json:"audienceIds"`
}

// AudiencePreview is returned by the audience preview endpoint.
type AudiencePreview struct {
	Count int `json:"count"`
}
