package sqlxrepos

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/course"
	"github.com/trezcool/aula/core/user"
)

const courseColumns = "id, title, description, state, created_at, updated_at"

// rosterTables maps each roster to its join table.
var rosterTables = map[course.Roster]string{
	course.RosterPracticantes:  "curso_practicantes",
	course.RosterColaboradores: "curso_colaboradores",
}

type courseRepository struct{}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository() *courseRepository {
	return &courseRepository{}
}

func (repo courseRepository) CreateCourse(ctx context.Context, exec core.DBExecutor, c course.Course) (course.Course, error) {
	id, err := insertReturningID(ctx, exec, `
		INSERT INTO cursos (title, description, state, created_at, updated_at)
		VALUES (:title, :description, :state, :created_at, :updated_at)
		RETURNING id`, c)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	c.ID = id
	return c, nil
}

func (repo courseRepository) GetCourseByID(ctx context.Context, exec core.DBExecutor, id int) (course.Course, error) {
	var c course.Course
	err := get(ctx, exec, &c, "SELECT "+courseColumns+" FROM cursos WHERE id = ?", id)
	return c, trapNoRowsErr(err, course.ErrNotFound, "getting course by id")
}

func (repo courseRepository) FilterCourses(ctx context.Context, exec core.DBExecutor, filter course.QueryFilter) ([]course.Course, error) {
	w := where{}
	if filter.Search != "" {
		val := likePattern(filter.Search)
		w.add("("+likeExpr("title")+" OR "+likeExpr("description")+")", val, val)
	}
	if filter.State != "" {
		w.add("state = ?", filter.State)
	}
	if filter.ProfessorID != 0 {
		w.add("id IN (SELECT course_id FROM curso_profesores WHERE user_id = ?)", filter.ProfessorID)
	}
	if filter.MemberID != 0 {
		w.add(
			"(id IN (SELECT course_id FROM curso_practicantes WHERE user_id = ?) OR id IN (SELECT course_id FROM curso_colaboradores WHERE user_id = ?))",
			filter.MemberID, filter.MemberID,
		)
	}

	courses := make([]course.Course, 0)
	if err := selectAll(ctx, exec, &courses, "SELECT "+courseColumns+" FROM cursos"+w.String()+" ORDER BY title ASC, id ASC", w.args...); err != nil {
		return nil, errors.Wrap(err, "filtering courses")
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, exec core.DBExecutor, c course.Course) (course.Course, error) {
	n, err := execNamed(ctx, exec, `
		UPDATE cursos SET title = :title, description = :description, state = :state, updated_at = :updated_at
		WHERE id = :id`, c)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return c, nil
}

func (repo courseRepository) DeleteCourse(ctx context.Context, exec core.DBExecutor, id int) error {
	_, err := execute(ctx, exec, "DELETE FROM cursos WHERE id = ?", id)
	return errors.Wrap(err, "deleting course")
}

// Professors

func (repo courseRepository) AddProfessor(ctx context.Context, exec core.DBExecutor, courseID, userID int) error {
	_, err := execute(ctx, exec, `
		INSERT INTO curso_profesores (course_id, user_id) VALUES (?, ?)
		ON CONFLICT (course_id, user_id) DO NOTHING`, courseID, userID)
	return errors.Wrap(err, "adding professor")
}

func (repo courseRepository) RemoveProfessor(ctx context.Context, exec core.DBExecutor, courseID, userID int) error {
	_, err := execute(ctx, exec, "DELETE FROM curso_profesores WHERE course_id = ? AND user_id = ?", courseID, userID)
	return errors.Wrap(err, "removing professor")
}

func (repo courseRepository) ListProfessors(ctx context.Context, exec core.DBExecutor, courseID int) ([]user.User, error) {
	users := make([]user.User, 0)
	err := selectAll(ctx, exec, &users, `
		SELECT `+userColumns+` FROM usuarios
		WHERE id IN (SELECT user_id FROM curso_profesores WHERE course_id = ?)
		ORDER BY name ASC, id ASC`, courseID)
	return users, errors.Wrap(err, "listing professors")
}

func (repo courseRepository) IsProfessor(ctx context.Context, exec core.DBExecutor, courseID, userID int) (bool, error) {
	var count int
	err := get(ctx, exec, &count, "SELECT COUNT(*) FROM curso_profesores WHERE course_id = ? AND user_id = ?", courseID, userID)
	return count > 0, errors.Wrap(err, "checking professor")
}

// Roster

func (repo courseRepository) AddMember(ctx context.Context, exec core.DBExecutor, roster course.Roster, courseID, userID int, at time.Time) error {
	table, ok := rosterTables[roster]
	if !ok {
		return fmt.Errorf("unknown roster %q", roster)
	}
	_, err := execute(ctx, exec, `
		INSERT INTO `+table+` (course_id, user_id, joined_at) VALUES (?, ?, ?)
		ON CONFLICT (course_id, user_id) DO NOTHING`, courseID, userID, at)
	return errors.Wrap(err, "adding member")
}

func (repo courseRepository) RemoveMember(ctx context.Context, exec core.DBExecutor, courseID, userID int) error {
	for _, table := range rosterTables {
		if _, err := execute(ctx, exec, "DELETE FROM "+table+" WHERE course_id = ? AND user_id = ?", courseID, userID); err != nil {
			return errors.Wrap(err, "removing member")
		}
	}
	return nil
}

func (repo courseRepository) ListMembers(ctx context.Context, exec core.DBExecutor, courseID int) ([]course.Member, error) {
	members := make([]course.Member, 0)
	for roster, table := range rosterTables {
		var part []course.Member
		err := selectAll(ctx, exec, &part, `
			SELECT u.id AS user_id, u.name, u.email, u.role, m.joined_at
			FROM `+table+` m JOIN usuarios u ON u.id = m.user_id
			WHERE m.course_id = ?`, courseID)
		if err != nil {
			return nil, errors.Wrap(err, "listing members")
		}
		for _, m := range part {
			m.Roster = roster
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].UserID < members[j].UserID
	})
	return members, nil
}

func (repo courseRepository) IsMember(ctx context.Context, exec core.DBExecutor, courseID, userID int) (bool, error) {
	var count int
	err := get(ctx, exec, &count, `
		SELECT (SELECT COUNT(*) FROM curso_practicantes WHERE course_id = ? AND user_id = ?)
		     + (SELECT COUNT(*) FROM curso_colaboradores WHERE course_id = ? AND user_id = ?)`,
		courseID, userID, courseID, userID)
	return count > 0, errors.Wrap(err, "checking membership")
}
