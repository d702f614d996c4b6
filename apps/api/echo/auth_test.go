package echoapi_test

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/aula/apps/api/echo"
	"github.com/trezcool/aula/core/user"
	"github.com/trezcool/aula/tests"
)

func TestAuth_login(t *testing.T) {
	app := setup(t)
	ana := testutil.CreateUser(t, app.db, "Ana Torres", "ana@aula.pe", user.RolePracticante, true)
	testutil.CreateUser(t, app.db, "Inés Paz", "ines@aula.pe", user.RoleColaborador, false)

	form := func(email, pwd string) url.Values {
		return url.Values{"email": {email}, "password": {pwd}}
	}
	failed := marchallObj(t, httpErr{Error: "authentication failed"})

	tests := []httpTest{
		{name: "unknown email", method: http.MethodPost, path: "/auth/login", form: form("nobody@aula.pe", testutil.Password), wantCode: http.StatusBadRequest, wantData: failed},
		{name: "wrong password", method: http.MethodPost, path: "/auth/login", form: form("ana@aula.pe", "nope"), wantCode: http.StatusBadRequest, wantData: failed},
		{
			name: "deactivated", method: http.MethodPost, path: "/auth/login", form: form("ines@aula.pe", testutil.Password),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "invalid email", method: http.MethodPost, path: "/auth/login", form: form("ana", testutil.Password), wantCode: http.StatusBadRequest},
	}
	app.run(t, tests)

	t.Run("success", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/auth/login", nil, form(" ANA@aula.pe ", testutil.Password))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got user.User
		unmarshal(t, rec, &got)
		assert.Equal(t, ana.ID, got.ID)
		assert.True(t, got.LastLogin.Valid)

		cookie := app.sessionCookie(rec)
		require.NotNil(t, cookie)
		assert.True(t, cookie.HttpOnly)
		assert.NotEmpty(t, cookie.Value)

		rec = app.do(http.MethodGet, "/me", cookie, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing CSRF token", func(t *testing.T) {
		req := newFormRequest("/auth/login", form("ana@aula.pe", testutil.Password))
		rec := app.send(req, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuth_session(t *testing.T) {
	app := setup(t)
	newcomer := testutil.CreateUser(t, app.db, "Ana Torres", "ana@aula.pe", user.RolePracticante, true)
	prof := app.member(t, "Carla Ríos", "carla@aula.pe", user.RoleProfesor)
	gone := app.member(t, "Luis Vega", "luis@aula.pe", user.RoleColaborador)
	goneSession := app.session(t, gone)
	_, err := app.db.Exec(app.db.Rebind("UPDATE usuarios SET is_active = ? WHERE id = ?"), false, gone.ID)
	require.NoError(t, err)

	unauthorized := marchallObj(t, httpErr{Error: "user not authenticated"})
	expired := NewClaims(prof, app.conf)
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()

	tests := []httpTest{
		{name: "no session", path: "/me", wantCode: http.StatusUnauthorized, wantData: unauthorized},
		{name: "garbage session", path: "/me", session: &http.Cookie{Name: app.conf.Server.SessionCookie, Value: "lol"}, wantCode: http.StatusUnauthorized},
		{name: "expired session", path: "/me", session: app.sessionFrom(t, expired), wantCode: http.StatusUnauthorized},
		{
			name: "deactivated since login", path: "/me", session: goneSession,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "first login: me", path: "/me", session: app.session(t, newcomer), wantCode: http.StatusOK},
		{
			name: "first login: gated", path: "/courses", session: app.session(t, newcomer),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "password change required"}),
		},
		{name: "onboarded", path: "/courses", session: app.session(t, prof), wantCode: http.StatusOK, wantData: []byte("[]")},
	}
	app.run(t, tests)

	t.Run("change password lifts the gate", func(t *testing.T) {
		session := app.session(t, newcomer)

		rec := app.do(http.MethodPost, "/me/password", session, url.Values{
			"current_password": {"wrong"},
			"password":         {"Zq7!mVw#42pL"},
			"password_confirm": {"Zq7!mVw#42pL"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		rec = app.do(http.MethodPost, "/me/password", session, url.Values{
			"current_password": {testutil.Password},
			"password":         {"Zq7!mVw#42pL"},
			"password_confirm": {"Zq7!mVw#42pL"},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got user.User
		unmarshal(t, rec, &got)
		assert.False(t, got.FirstLogin)

		renewed := app.sessionCookie(rec)
		require.NotNil(t, renewed)
		rec = app.do(http.MethodGet, "/courses", renewed, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("sliding expiration", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/me", app.session(t, prof), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, app.sessionCookie(rec), "fresh sessions are kept")

		old := NewClaims(prof, app.conf)
		issued := time.Now().Add(-app.conf.Server.SessionTTL/2 - time.Minute)
		old.IssuedAt = issued.Unix()
		old.ExpiresAt = issued.Add(app.conf.Server.SessionTTL).Unix()
		rec = app.do(http.MethodGet, "/me", app.sessionFrom(t, old), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		renewed := app.sessionCookie(rec)
		require.NotNil(t, renewed)
		assert.True(t, renewed.Expires.After(time.Unix(old.ExpiresAt, 0)))
	})

	t.Run("logout", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/auth/logout", app.session(t, prof), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		cookie := app.sessionCookie(rec)
		require.NotNil(t, cookie)
		assert.Empty(t, cookie.Value)
	})
}

func TestAuth_verificationCode(t *testing.T) {
	app := setup(t)
	app.member(t, "Ana Torres", "ana@aula.pe", user.RolePracticante)

	success := "If the email address supplied is associated with an active account, " +
		"a verification code will arrive in your inbox shortly."

	tests := []httpTest{
		{
			name: "known email", method: http.MethodPost, path: "/auth/code", form: url.Values{"email": {"ana@aula.pe"}},
			wantCode: http.StatusOK, wantData: marchallObj(t, SuccessResponse{Success: success}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/auth/code", form: url.Values{"email": {"nobody@aula.pe"}},
			wantCode: http.StatusOK, wantData: marchallObj(t, SuccessResponse{Success: success}),
		},
		{
			name: "wrong code", method: http.MethodPost, path: "/auth/code/confirm",
			form: url.Values{
				"email":            {"ana@aula.pe"},
				"code":             {"000000"},
				"password":         {"Zq7!mVw#42pL"},
				"password_confirm": {"Zq7!mVw#42pL"},
			},
			wantCode: http.StatusBadRequest,
		},
	}
	app.run(t, tests)
}
