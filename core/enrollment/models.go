package enrollment

import (
	"time"

	"github.com/volatiletech/null/v8"
)

type Status string

const (
	StatusPending  Status = "pendiente"
	StatusApproved Status = "aprobada"
	StatusRejected Status = "rechazada"
)

// Request is a learner's application to join a course.
type Request struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	CourseID  int       `json:"course_id" db:"course_id"`
	Status    Status    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	DecidedAt null.Time `json:"decided_at" db:"decided_at"`
	DecidedBy null.Int  `json:"decided_by" db:"decided_by"`

	// requester details, filled by listings
	UserName  string `json:"user_name,omitempty" db:"user_name"`
	UserEmail string `json:"user_email,omitempty" db:"user_email"`
}

type QueryFilter struct {
	CourseID int
	UserID   int
	Status   Status
}
