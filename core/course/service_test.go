package course_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/course"
	"github.com/trezcool/aula/core/user"
	"github.com/trezcool/aula/storage/database/sqlx"
	"github.com/trezcool/aula/tests"
)

func setup(t *testing.T) (core.DB, *course.Service) {
	db := testutil.PrepareDB(t)
	return db, course.NewService(db, sqlxrepos.NewCourseRepository())
}

func TestService_Lifecycle(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, course.NewCourse{Title: "Álgebra", Description: "Curso base"})
	require.NoError(t, err)
	assert.Equal(t, course.StateDraft, c.State)

	c, err = svc.Publish(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, c.IsPublished())

	// idempotent
	c, err = svc.Publish(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, c.IsPublished())

	c, err = svc.Unpublish(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, course.StateDraft, c.State)

	c, err = svc.Update(ctx, c.ID, course.UpdateCourse{Title: "Álgebra I", Description: "Curso base"})
	require.NoError(t, err)
	stored, err := svc.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Álgebra I", stored.Title)

	require.NoError(t, svc.Delete(ctx, c.ID))
	_, err = svc.GetByID(ctx, c.ID)
	assert.Equal(t, course.ErrNotFound, err)
	assert.Equal(t, course.ErrNotFound, svc.Delete(ctx, c.ID))
}

func TestService_Professors(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()
	c := testutil.CreateCourse(t, db, "Física", course.StatePublished)
	prof := testutil.CreateUser(t, db, "Rosa Vega", "rosa@aula.pe", user.RoleProfesor, true)
	admin := testutil.CreateUser(t, db, "Admin", "admin@aula.pe", user.RoleAdmin, true)
	ana := testutil.CreateUser(t, db, "Ana Torres", "ana@aula.pe", user.RolePracticante, true)

	err := svc.AssignProfessor(ctx, c.ID, ana)
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))

	require.NoError(t, svc.AssignProfessor(ctx, c.ID, prof))
	require.NoError(t, svc.AssignProfessor(ctx, c.ID, prof)) // idempotent

	profs, err := svc.Professors(ctx, c.ID)
	require.NoError(t, err)
	if assert.Len(t, profs, 1) {
		assert.Equal(t, prof.ID, profs[0].ID)
	}

	tests := []struct {
		name string
		usr  user.User
		want bool
	}{
		{name: "assigned professor", usr: prof, want: true},
		{name: "admin", usr: admin, want: true},
		{name: "learner", usr: ana},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.CanTeach(ctx, c.ID, tt.usr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	require.NoError(t, svc.UnassignProfessor(ctx, c.ID, prof.ID))
	ok, err := svc.CanTeach(ctx, c.ID, prof)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_Members(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()
	c := testutil.CreateCourse(t, db, "Química", course.StatePublished)
	ana := testutil.CreateUser(t, db, "Ana Torres", "ana@aula.pe", user.RolePracticante, true)
	bruno := testutil.CreateUser(t, db, "Bruno Díaz", "bruno@aula.pe", user.RoleColaborador, true)
	testutil.AddMember(t, db, c.ID, bruno)
	testutil.AddMember(t, db, c.ID, ana)
	testutil.AddMember(t, db, c.ID, ana) // idempotent

	members, err := svc.Members(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, ana.ID, members[0].UserID)
	assert.Equal(t, course.RosterPracticantes, members[0].Roster)
	assert.Equal(t, course.RosterColaboradores, members[1].Roster)

	courses, err := svc.Query(ctx, course.QueryFilter{MemberID: bruno.ID})
	require.NoError(t, err)
	assert.Len(t, courses, 1)

	require.NoError(t, svc.RemoveMember(ctx, c.ID, ana.ID))
	ok, err := svc.IsMember(ctx, c.ID, ana.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRosterFor(t *testing.T) {
	assert.Equal(t, course.RosterColaboradores, course.RosterFor(user.RoleColaborador))
	assert.Equal(t, course.RosterPracticantes, course.RosterFor(user.RolePracticante))
}
