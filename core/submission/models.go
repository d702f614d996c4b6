package submission

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/aula/core"
)

type Status string

const (
	StatusSubmitted Status = "entregado"
	StatusGraded    Status = "calificado"

	MinGrade float64 = 0
	MaxGrade float64 = 20
)

var (
	errNothingSubmitted = errors.New("attach a file or a link")
	errGradeRange       = errors.New("grade must be between 0 and 20")
)

// Task is the gradable side of a "tarea" subsection.
type Task struct {
	ID           int       `json:"id" db:"id"`
	SubsectionID int       `json:"subsection_id" db:"subsection_id"`
	CourseID     int       `json:"course_id" db:"course_id"`
	Title        string    `json:"title" db:"title"`
	DueAt        null.Time `json:"due_at" db:"due_at"`
	Published    bool      `json:"published" db:"published"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type Submission struct {
	ID          int          `json:"id" db:"id"`
	TaskID      int          `json:"task_id" db:"task_id"`
	UserID      int          `json:"user_id" db:"user_id"`
	FileKey     null.String  `json:"-" db:"file_key"`
	FileName    null.String  `json:"file_name" db:"file_name"`
	LinkURL     null.String  `json:"link_url" db:"link_url"`
	Grade       null.Float64 `json:"grade" db:"grade"`
	Feedback    null.String  `json:"feedback" db:"feedback"`
	Status      Status       `json:"status" db:"status"`
	SubmittedAt time.Time    `json:"submitted_at" db:"submitted_at"`
	GradedAt    null.Time    `json:"graded_at" db:"graded_at"`

	UserName string `json:"user_name,omitempty" db:"user_name"`
}

// IsGraded is true once a grade was recorded, whatever the status says.
func (s Submission) IsGraded() bool {
	return s.Status == StatusGraded || s.Grade.Valid
}

type SubmitInput struct {
	LinkURL string `json:"link_url" form:"link_url" validate:"omitempty,url,max=2000"`
}

type GradeInput struct {
	Grade    *float64 `json:"grade" form:"grade" validate:"required"`
	Feedback string   `json:"feedback" form:"feedback" validate:"max=4000"`
}

func (in *GradeInput) Validate(validate *validator.Validate) error {
	in.Feedback = core.CleanString(in.Feedback)
	if err := validate.Struct(in); err != nil {
		return err
	}
	return CheckGrade(*in.Grade)
}

// CheckGrade fails with ErrGradeOutOfRange unless MinGrade <= g <= MaxGrade.
func CheckGrade(g float64) error {
	if !(g >= MinGrade && g <= MaxGrade) {
		return ErrGradeOutOfRange
	}
	return nil
}

// CheckWritable reports whether a learner may still (re)submit: the current submission (if any) must not be
// graded and the deadline (if any) must not be passed.
func CheckWritable(current *Submission, due null.Time, now time.Time) error {
	if current != nil && current.IsGraded() {
		return ErrAlreadyGraded
	}
	if due.Valid && now.After(due.Time) {
		return ErrDeadlinePassed
	}
	return nil
}
