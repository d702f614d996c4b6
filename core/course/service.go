package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/user"
	"github.com/trezcool/aula/core/workflow"
)

var (
	// errors
	ErrNotFound     = core.NewNotFound("course not found")
	ErrNotProfessor = errors.New("user is not a professor")

	stateMachine = workflow.NewMachine(
		"course",
		workflow.Transition{Event: "publish", Src: []string{string(StateDraft), string(StatePublished)}, Dst: string(StatePublished)},
		workflow.Transition{Event: "unpublish", Src: []string{string(StatePublished), string(StateDraft)}, Dst: string(StateDraft)},
	)
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, exec core.DBExecutor, c Course) (Course, error)
		GetCourseByID(ctx context.Context, exec core.DBExecutor, id int) (Course, error)
		FilterCourses(ctx context.Context, exec core.DBExecutor, filter QueryFilter) ([]Course, error)
		UpdateCourse(ctx context.Context, exec core.DBExecutor, c Course) (Course, error)
		DeleteCourse(ctx context.Context, exec core.DBExecutor, id int) error

		AddProfessor(ctx context.Context, exec core.DBExecutor, courseID, userID int) error
		RemoveProfessor(ctx context.Context, exec core.DBExecutor, courseID, userID int) error
		ListProfessors(ctx context.Context, exec core.DBExecutor, courseID int) ([]user.User, error)
		IsProfessor(ctx context.Context, exec core.DBExecutor, courseID, userID int) (bool, error)

		RosterRepository
		RemoveMember(ctx context.Context, exec core.DBExecutor, courseID, userID int) error
		ListMembers(ctx context.Context, exec core.DBExecutor, courseID int) ([]Member, error)
		IsMember(ctx context.Context, exec core.DBExecutor, courseID, userID int) (bool, error)
	}

	// RosterRepository adds learners to a course roster.
	RosterRepository interface {
		// AddMember is idempotent: an existing membership is left untouched.
		AddMember(ctx context.Context, exec core.DBExecutor, roster Roster, courseID, userID int, at time.Time) error
	}

	Service struct {
		db   core.DB
		repo Repository
	}
)

func NewService(db core.DB, repo Repository) *Service {
	return &Service{db: db, repo: repo}
}

func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	now := core.NowFunc()
	return svc.repo.CreateCourse(ctx, svc.db, Course{
		Title:       nc.Title,
		Description: nc.Description,
		State:       StateDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) GetByID(ctx context.Context, id int) (Course, error) {
	return svc.repo.GetCourseByID(ctx, svc.db, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Course, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.FilterCourses(ctx, svc.db, filter)
}

func (svc *Service) Update(ctx context.Context, id int, uc UpdateCourse) (Course, error) {
	c, err := svc.repo.GetCourseByID(ctx, svc.db, id)
	if err != nil {
		return Course{}, err
	}
	c.Title = uc.Title
	c.Description = uc.Description
	c.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateCourse(ctx, svc.db, c)
}

func (svc *Service) transition(ctx context.Context, id int, event string) (Course, error) {
	c, err := svc.repo.GetCourseByID(ctx, svc.db, id)
	if err != nil {
		return Course{}, err
	}
	next, err := stateMachine.Fire(ctx, string(c.State), event)
	if err != nil {
		return Course{}, err
	}
	if State(next) == c.State {
		return c, nil
	}
	c.State = State(next)
	c.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateCourse(ctx, svc.db, c)
}

// Publish makes a course visible to learners.
func (svc *Service) Publish(ctx context.Context, id int) (Course, error) {
	return svc.transition(ctx, id, "publish")
}

// Unpublish hides a course from learners again.
func (svc *Service) Unpublish(ctx context.Context, id int) (Course, error) {
	return svc.transition(ctx, id, "unpublish")
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	if _, err := svc.repo.GetCourseByID(ctx, svc.db, id); err != nil {
		return err
	}
	return svc.repo.DeleteCourse(ctx, svc.db, id)
}

// AssignProfessor links a Profesor to a course.
func (svc *Service) AssignProfessor(ctx context.Context, courseID int, prof user.User) error {
	if prof.Role != user.RoleProfesor {
		return core.NewFieldError(ErrNotProfessor, "user_id")
	}
	if _, err := svc.repo.GetCourseByID(ctx, svc.db, courseID); err != nil {
		return err
	}
	return svc.repo.AddProfessor(ctx, svc.db, courseID, prof.ID)
}

func (svc *Service) UnassignProfessor(ctx context.Context, courseID, userID int) error {
	return svc.repo.RemoveProfessor(ctx, svc.db, courseID, userID)
}

func (svc *Service) Professors(ctx context.Context, courseID int) ([]user.User, error) {
	return svc.repo.ListProfessors(ctx, svc.db, courseID)
}

func (svc *Service) IsProfessor(ctx context.Context, courseID, userID int) (bool, error) {
	return svc.repo.IsProfessor(ctx, svc.db, courseID, userID)
}

// CanTeach reports whether usr manages the course: admins manage every course, professors their own.
func (svc *Service) CanTeach(ctx context.Context, courseID int, usr user.User) (bool, error) {
	switch {
	case usr.Role.CanAdminister():
		return true, nil
	case usr.Role == user.RoleProfesor:
		return svc.repo.IsProfessor(ctx, svc.db, courseID, usr.ID)
	}
	return false, nil
}

func (svc *Service) Members(ctx context.Context, courseID int) ([]Member, error) {
	return svc.repo.ListMembers(ctx, svc.db, courseID)
}

func (svc *Service) IsMember(ctx context.Context, courseID, userID int) (bool, error) {
	return svc.repo.IsMember(ctx, svc.db, courseID, userID)
}

func (svc *Service) RemoveMember(ctx context.Context, courseID, userID int) error {
	return svc.repo.RemoveMember(ctx, svc.db, courseID, userID)
}
