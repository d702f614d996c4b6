package echoapi_test

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/aula/core/course"
	"github.com/trezcool/aula/core/enrollment"
	"github.com/trezcool/aula/core/user"
	"github.com/trezcool/aula/tests"
)

func TestCourseAPI_lifecycle(t *testing.T) {
	app := setup(t)
	admin := app.session(t, app.member(t, "Admin", "admin@aula.pe", user.RoleAdmin))
	prof := app.member(t, "Carla Ríos", "carla@aula.pe", user.RoleProfesor)
	profSession := app.session(t, prof)
	other := app.session(t, app.member(t, "Diego Luna", "diego@aula.pe", user.RoleProfesor))
	ana := app.member(t, "Ana Torres", "ana@aula.pe", user.RolePracticante)
	anaSession := app.session(t, ana)

	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	rec := app.do(http.MethodPost, "/courses", admin, url.Values{"title": {"  Algoritmos  "}, "description": {"Intro"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c course.Course
	unmarshal(t, rec, &c)
	assert.Equal(t, "Algoritmos", c.Title)
	assert.Equal(t, course.StateDraft, c.State)
	coursePath := fmt.Sprintf("/courses/%d", c.ID)

	tests := []httpTest{
		{name: "create: admin only", method: http.MethodPost, path: "/courses", form: url.Values{"title": {"X"}}, session: profSession, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "create: title required", method: http.MethodPost, path: "/courses", form: url.Values{"title": {" "}}, session: admin, wantCode: http.StatusBadRequest},
		{name: "unknown course", path: "/courses/999", session: admin, wantCode: http.StatusNotFound},
		{name: "malformed id", path: "/courses/lol", session: admin, wantCode: http.StatusNotFound},
		{name: "draft hidden from learners", path: coursePath, session: anaSession, wantCode: http.StatusForbidden},
		{name: "publish: not assigned", method: http.MethodPost, path: coursePath + "/publish", session: profSession, wantCode: http.StatusForbidden},
		{name: "enroll: draft course", method: http.MethodPost, path: coursePath + "/enroll", session: anaSession, wantCode: http.StatusConflict},
		{
			name: "assign: unknown user", method: http.MethodPost, path: coursePath + "/professors",
			form: url.Values{"user_id": {"999"}}, session: admin, wantCode: http.StatusBadRequest,
		},
		{
			name: "assign: learner", method: http.MethodPost, path: coursePath + "/professors",
			form: url.Values{"user_id": {fmt.Sprint(ana.ID)}}, session: admin, wantCode: http.StatusBadRequest,
		},
		{
			name: "assign", method: http.MethodPost, path: coursePath + "/professors",
			form: url.Values{"user_id": {fmt.Sprint(prof.ID)}}, session: admin, wantCode: http.StatusNoContent,
		},
		{name: "publish", method: http.MethodPost, path: coursePath + "/publish", session: profSession, wantCode: http.StatusOK},
		{name: "publish again", method: http.MethodPost, path: coursePath + "/publish", session: profSession, wantCode: http.StatusOK},
		{name: "update: other professor", method: http.MethodPost, path: coursePath, form: url.Values{"title": {"Mine"}}, session: other, wantCode: http.StatusForbidden},
		{name: "delete: professor", method: http.MethodPost, path: coursePath + "/delete", session: profSession, wantCode: http.StatusForbidden, wantData: forbidden},
	}
	app.run(t, tests)

	t.Run("update", func(t *testing.T) {
		rec := app.do(http.MethodPost, coursePath, profSession, url.Values{"title": {"Algoritmos II"}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshal(t, rec, &c)
		assert.Equal(t, "Algoritmos II", c.Title)
		assert.Equal(t, course.StatePublished, c.State)
	})

	t.Run("catalog", func(t *testing.T) {
		testutil.CreateCourse(t, app.db, "Borrador", course.StateDraft)

		var got []course.Course
		unmarshal(t, app.do(http.MethodGet, "/courses", admin, nil), &got)
		assert.Len(t, got, 2)

		unmarshal(t, app.do(http.MethodGet, "/courses", anaSession, nil), &got)
		require.Len(t, got, 1)
		assert.Equal(t, c.ID, got[0].ID)

		unmarshal(t, app.do(http.MethodGet, "/courses", anaSession, url.Values{"mine": {"true"}}), &got)
		assert.Empty(t, got)

		unmarshal(t, app.do(http.MethodGet, "/courses", profSession, url.Values{"mine": {"true"}}), &got)
		require.Len(t, got, 1)
		assert.Equal(t, c.ID, got[0].ID)
	})

	t.Run("delete", func(t *testing.T) {
		rec := app.do(http.MethodPost, coursePath+"/delete", admin, nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		rec = app.do(http.MethodGet, coursePath, admin, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCourseAPI_enrollment(t *testing.T) {
	app := setup(t)
	prof := app.member(t, "Carla Ríos", "carla@aula.pe", user.RoleProfesor)
	profSession := app.session(t, prof)
	other := app.session(t, app.member(t, "Diego Luna", "diego@aula.pe", user.RoleProfesor))
	ana := app.member(t, "Ana Torres", "ana@aula.pe", user.RolePracticante)
	anaSession := app.session(t, ana)
	bruno := app.member(t, "Bruno Díaz", "bruno@aula.pe", user.RoleColaborador)
	brunoSession := app.session(t, bruno)

	c := testutil.CreateCourse(t, app.db, "Redes", course.StatePublished)
	testutil.AddProfessor(t, app.db, c.ID, prof)
	coursePath := fmt.Sprintf("/courses/%d", c.ID)

	request := func(t *testing.T, session *http.Cookie) enrollment.Request {
		rec := app.do(http.MethodPost, coursePath+"/enroll", session, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var req enrollment.Request
		unmarshal(t, rec, &req)
		return req
	}
	anaReq := request(t, anaSession)
	brunoReq := request(t, brunoSession)
	anaPath := fmt.Sprintf("/requests/%d", anaReq.ID)

	tests := []httpTest{
		{name: "enroll: professors cannot", method: http.MethodPost, path: coursePath + "/enroll", session: profSession, wantCode: http.StatusForbidden},
		{name: "requests: learners cannot list", path: coursePath + "/requests", session: anaSession, wantCode: http.StatusForbidden},
		{name: "approve: learner", method: http.MethodPost, path: anaPath + "/approve", session: anaSession, wantCode: http.StatusForbidden},
		{name: "approve: other professor", method: http.MethodPost, path: anaPath + "/approve", session: other, wantCode: http.StatusForbidden},
		{name: "approve: unknown request", method: http.MethodPost, path: "/requests/999/approve", session: profSession, wantCode: http.StatusNotFound},
		{name: "members: learner", path: coursePath + "/members", session: anaSession, wantCode: http.StatusForbidden},
	}
	app.run(t, tests)

	t.Run("pending", func(t *testing.T) {
		var got []enrollment.Request
		unmarshal(t, app.do(http.MethodGet, coursePath+"/requests", profSession, nil), &got)
		require.Len(t, got, 2)
		assert.ElementsMatch(t, []string{"Ana Torres", "Bruno Díaz"}, []string{got[0].UserName, got[1].UserName})

		unmarshal(t, app.do(http.MethodGet, "/me/requests", anaSession, nil), &got)
		require.Len(t, got, 1)
		assert.Equal(t, anaReq.ID, got[0].ID)
	})

	t.Run("decide", func(t *testing.T) {
		rec := app.do(http.MethodPost, anaPath+"/approve", profSession, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got enrollment.Request
		unmarshal(t, rec, &got)
		assert.Equal(t, prof.ID, int(got.DecidedBy.Int))

		rec = app.do(http.MethodPost, anaPath+"/approve", profSession, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		rec = app.do(http.MethodPost, fmt.Sprintf("/requests/%d/reject", brunoReq.ID), profSession, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var members []course.Member
		unmarshal(t, app.do(http.MethodGet, coursePath+"/members", profSession, nil), &members)
		require.Len(t, members, 1)
		assert.Equal(t, ana.ID, members[0].UserID)
		assert.Equal(t, course.RosterPracticantes, members[0].Roster)

		var mine []course.Course
		unmarshal(t, app.do(http.MethodGet, "/courses", anaSession, url.Values{"mine": {"true"}}), &mine)
		assert.Len(t, mine, 1)
		unmarshal(t, app.do(http.MethodGet, "/courses", brunoSession, url.Values{"mine": {"true"}}), &mine)
		assert.Empty(t, mine)
	})

	t.Run("remove member", func(t *testing.T) {
		rec := app.do(http.MethodPost, fmt.Sprintf("%s/members/%d/remove", coursePath, ana.ID), profSession, nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		var members []course.Member
		unmarshal(t, app.do(http.MethodGet, coursePath+"/members", profSession, nil), &members)
		assert.Empty(t, members)
	})
}
