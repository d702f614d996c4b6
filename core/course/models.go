package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/user"
)

type State string

const (
	StateDraft     State = "borrador"
	StatePublished State = "publicado"
)

// Roster is one of the two course membership lists.
type Roster string

const (
	RosterPracticantes  Roster = "practicantes"
	RosterColaboradores Roster = "colaboradores"
)

// RosterFor picks the roster a learner of role r belongs to: colaboradores go to their own roster,
// anyone else to the practicantes roster.
func RosterFor(r user.Role) Roster {
	if r == user.RoleColaborador {
		return RosterColaboradores
	}
	return RosterPracticantes
}

type Course struct {
	ID          int       `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	State       State     `json:"state" db:"state"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

func (c Course) IsPublished() bool { return c.State == StatePublished }

// Member is a learner on one of the course rosters.
type Member struct {
	UserID   int       `json:"user_id" db:"user_id"`
	Name     string    `json:"name" db:"name"`
	Email    string    `json:"email" db:"email"`
	Role     user.Role `json:"role" db:"role"`
	Roster   Roster    `json:"roster" db:"roster"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}

type NewCourse struct {
	Title       string `json:"title" form:"title" validate:"required,notblank,max=200"`
	Description string `json:"description" form:"description"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

type UpdateCourse struct {
	Title       string `json:"title" form:"title" validate:"omitempty,max=200"`
	Description string `json:"description" form:"description"`
}

func (uc *UpdateCourse) Validate(orig Course, validate *validator.Validate) error {
	if title := core.CleanString(uc.Title); title != "" {
		uc.Title = title
	} else {
		uc.Title = orig.Title
	}
	if desc := core.CleanString(uc.Description); desc != "" {
		uc.Description = desc
	} else {
		uc.Description = orig.Description
	}
	return validate.Struct(uc)
}

type QueryFilter struct {
	Search      string `query:"search"`
	State       State  `query:"state"`
	ProfessorID int    `query:"-"`
	MemberID    int    `query:"-"`
}
