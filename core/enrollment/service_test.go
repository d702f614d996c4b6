package enrollment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/course"
	"github.com/trezcool/aula/core/enrollment"
	"github.com/trezcool/aula/core/user"
	"github.com/trezcool/aula/storage/database/sqlx"
	"github.com/trezcool/aula/tests"
)

func setup(t *testing.T) (core.DB, *enrollment.Service, *course.Service) {
	db := testutil.PrepareDB(t)
	courseRepo := sqlxrepos.NewCourseRepository()
	svc := enrollment.NewService(db, sqlxrepos.NewEnrollmentRepository(), sqlxrepos.NewUserRepository(), courseRepo)
	return db, svc, course.NewService(db, courseRepo)
}

func TestService_RequestEnrollment(t *testing.T) {
	db, svc, _ := setup(t)
	ctx := context.Background()
	published := testutil.CreateCourse(t, db, "Historia", course.StatePublished)
	draft := testutil.CreateCourse(t, db, "Geografía", course.StateDraft)
	ana := testutil.CreateUser(t, db, "Ana Torres", "ana@aula.pe", user.RolePracticante, true)
	prof := testutil.CreateUser(t, db, "Rosa Vega", "rosa@aula.pe", user.RoleProfesor, true)

	t.Run("not a learner", func(t *testing.T) {
		_, err := svc.RequestEnrollment(ctx, prof, published.ID)
		assert.Equal(t, core.ErrForbidden, err)
	})

	t.Run("unknown course", func(t *testing.T) {
		_, err := svc.RequestEnrollment(ctx, ana, published.ID+100)
		assert.Equal(t, course.ErrNotFound, err)
	})

	t.Run("draft course", func(t *testing.T) {
		_, err := svc.RequestEnrollment(ctx, ana, draft.ID)
		assert.IsType(t, &core.Conflict{}, err)
	})

	t.Run("published course", func(t *testing.T) {
		req, err := svc.RequestEnrollment(ctx, ana, published.ID)
		require.NoError(t, err)
		assert.Equal(t, enrollment.StatusPending, req.Status)
		assert.False(t, req.DecidedAt.Valid)

		pending, err := svc.PendingForCourse(ctx, published.ID)
		require.NoError(t, err)
		if assert.Len(t, pending, 1) {
			assert.Equal(t, "Ana Torres", pending[0].UserName)
		}
	})
}

func TestService_ApproveEnrollment(t *testing.T) {
	db, svc, courseSvc := setup(t)
	ctx := context.Background()
	c := testutil.CreateCourse(t, db, "Historia", course.StatePublished)
	prof := testutil.CreateUser(t, db, "Rosa Vega", "rosa@aula.pe", user.RoleProfesor, true)
	ana := testutil.CreateUser(t, db, "Ana Torres", "ana@aula.pe", user.RolePracticante, true)
	bruno := testutil.CreateUser(t, db, "Bruno Díaz", "bruno@aula.pe", user.RoleColaborador, true)

	tests := []struct {
		name   string
		usr    user.User
		roster course.Roster
	}{
		{name: "practicante", usr: ana, roster: course.RosterPracticantes},
		{name: "colaborador", usr: bruno, roster: course.RosterColaboradores},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := svc.RequestEnrollment(ctx, tt.usr, c.ID)
			require.NoError(t, err)

			req, err = svc.ApproveEnrollment(ctx, req.ID, prof.ID)
			require.NoError(t, err)
			assert.Equal(t, enrollment.StatusApproved, req.Status)
			assert.Equal(t, prof.ID, req.DecidedBy.Int)

			members, err := courseSvc.Members(ctx, c.ID)
			require.NoError(t, err)
			var found *course.Member
			for i := range members {
				if members[i].UserID == tt.usr.ID {
					found = &members[i]
				}
			}
			if assert.NotNil(t, found) {
				assert.Equal(t, tt.roster, found.Roster)
			}

			_, err = svc.ApproveEnrollment(ctx, req.ID, prof.ID)
			assert.IsType(t, &core.Conflict{}, err)
		})
	}

	t.Run("member requesting again", func(t *testing.T) {
		req, err := svc.RequestEnrollment(ctx, ana, c.ID)
		require.NoError(t, err)
		_, err = svc.ApproveEnrollment(ctx, req.ID, prof.ID)
		require.NoError(t, err)

		members, err := courseSvc.Members(ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, members, 2)
	})

	t.Run("unknown request", func(t *testing.T) {
		_, err := svc.ApproveEnrollment(ctx, 999, prof.ID)
		assert.Equal(t, enrollment.ErrNotFound, err)
	})
}

// failingRoster rejects every roster insert.
type failingRoster struct {
	course.Repository
}

var errRosterDown = errors.New("roster unavailable")

func (failingRoster) AddMember(context.Context, core.DBExecutor, course.Roster, int, int, time.Time) error {
	return errRosterDown
}

func TestService_ApproveEnrollment_rollback(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	courseRepo := sqlxrepos.NewCourseRepository()
	svc := enrollment.NewService(db, sqlxrepos.NewEnrollmentRepository(), sqlxrepos.NewUserRepository(), failingRoster{courseRepo})
	courseSvc := course.NewService(db, courseRepo)

	c := testutil.CreateCourse(t, db, "Historia", course.StatePublished)
	prof := testutil.CreateUser(t, db, "Rosa Vega", "rosa@aula.pe", user.RoleProfesor, true)
	ana := testutil.CreateUser(t, db, "Ana Torres", "ana@aula.pe", user.RolePracticante, true)

	req, err := svc.RequestEnrollment(ctx, ana, c.ID)
	require.NoError(t, err)

	_, err = svc.ApproveEnrollment(ctx, req.ID, prof.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errRosterDown), err)

	stored, err := svc.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusPending, stored.Status)
	assert.False(t, stored.DecidedAt.Valid)
	assert.False(t, stored.DecidedBy.Valid)

	member, err := courseSvc.IsMember(ctx, c.ID, ana.ID)
	require.NoError(t, err)
	assert.False(t, member)

	pending, err := svc.PendingForCourse(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestService_RejectEnrollment(t *testing.T) {
	db, svc, courseSvc := setup(t)
	ctx := context.Background()
	c := testutil.CreateCourse(t, db, "Historia", course.StatePublished)
	admin := testutil.CreateUser(t, db, "Admin", "admin@aula.pe", user.RoleAdmin, true)
	ana := testutil.CreateUser(t, db, "Ana Torres", "ana@aula.pe", user.RolePracticante, true)

	req, err := svc.RequestEnrollment(ctx, ana, c.ID)
	require.NoError(t, err)

	req, err = svc.RejectEnrollment(ctx, req.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusRejected, req.Status)

	member, err := courseSvc.IsMember(ctx, c.ID, ana.ID)
	require.NoError(t, err)
	assert.False(t, member)

	_, err = svc.ApproveEnrollment(ctx, req.ID, admin.ID)
	assert.IsType(t, &core.Conflict{}, err)

	pending, err := svc.PendingForCourse(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	mine, err := svc.ForUser(ctx, ana.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}
