package models

import "time"

// Register is the attendance sheet for one session of a course.
type Register struct {
	ID            string     `db:"id" json:"id"`
	CourseID      string     `db:"course_id" json:"courseId"`
	CourseTitle   *string    `db:"course_title" json:"courseTitle,omitempty"`
	VenueID       string     `db:"venue_id" json:"venueId"`
	VenueName     *string    `db:"venue_name" json:"venueName,omitempty"`
	Date          time.Time  `db:"session_date" json:"date"`
	StartTime     string     `db:"start_time" json:"startTime"`
	EndTime       string     `db:"end_time" json:"endTime"`
	Capacity      int        `db:"capacity" json:"capacity"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	Status        string     `db:"status" json:"status"`
	AttendeeCount int        `db:"attendee_count" json:"attendeeCount"`
	PresentCount  int        `db:"present_count" json:"presentCount"`
	StartedAt     *time.Time `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CreatedBy     string     `db:"created_by" json:"createdBy"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// RegisterAttendee is one booked child on a register.
type RegisterAttendee struct {
	ID         string     `db:"id" json:"id"`
	RegisterID string     `db:"register_id" json:"registerId"`
	BookingID  *string    `db:"booking_id" json:"bookingId,omitempty"`
	ChildName  string     `db:"child_name" json:"childName"`
	ParentID   *string    `db:"parent_id" json:"parentId,omitempty"`
	Present    bool       `db:"present" json:"present"`
	ArrivedAt  *time.Time `db:"arrived_at" json:"arrivedAt,omitempty"`
	Note       *string    `db:"note" json:"note,omitempty"`
	MarkedAt   *time.Time `db:"marked_at" json:"markedAt,omitempty"`
}

// RegisterDetail is a register with its attendee list.
type RegisterDetail struct {
	Register
	Attendees []RegisterAttendee `json:"attendees"`
}

// RegisterFilter narrows register listings.
type RegisterFilter struct {
	ListFilter
	VenueID  string
	CourseID string
}
