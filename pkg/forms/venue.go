package forms

// VenueForm is the create/edit payload of a venue.
type VenueForm struct {
	Name         string `json:"name" validate:"notblank,max=120"`
	AddressLine1 string `json:"addressLine1" validate:"notblank,max=200"`
	AddressLine2 string `json:"addressLine2" validate:"max=200"`
	City         string `json:"city" validate:"notblank,max=80"`
	Postcode     string `json:"postcode" validate:"notblank,max=12"`
	Capacity     int    `json:"capacity" validate:"gte=1,lte=2000"`
	ContactEmail string `json:"contactEmail" validate:"omitempty,email"`
	ContactPhone string `json:"contactPhone" validate:"max=30"`
}

// DefaultVenueForm is the blank venue draft.
func DefaultVenueForm() VenueForm {
	return VenueForm{Capacity: 30}
}

// FieldMessages implements messageProvider.
func (VenueForm) FieldMessages() map[string]string {
	return map[string]string{
		"name.notblank":         "Venue name is required",
		"addressLine1.notblank": "Address is required",
		"postcode.notblank":     "Postcode is required",
	}
}
