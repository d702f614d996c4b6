package echoapi_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/aula/apps/api/echo"
	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/attendance"
	"github.com/trezcool/aula/core/content"
	"github.com/trezcool/aula/core/course"
	"github.com/trezcool/aula/core/enrollment"
	"github.com/trezcool/aula/core/submission"
	"github.com/trezcool/aula/core/user"
	"github.com/trezcool/aula/services/email"
	"github.com/trezcool/aula/services/storage"
	"github.com/trezcool/aula/storage/database/sqlx"
	"github.com/trezcool/aula/tests"
)

const testCSRF = "test-csrf-token"

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	form     url.Values
	session  *http.Cookie
	wantCode int
	wantData []byte
}

type testApp struct {
	*Server
	db    *sqlx.DB
	conf  *core.Config
	store *storagesvc.MemoryStore
}

func setup(t *testing.T) *testApp {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	db := testutil.PrepareDB(t)

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)
	core.ParseEmailTemplates(conf, logger)

	store := storagesvc.NewMemoryStore()
	usrRepo := sqlxrepos.NewUserRepository()
	courseRepo := sqlxrepos.NewCourseRepository()

	srv := NewServer(ServerDeps{
		Conf:          conf,
		Logger:        logger,
		UserSvc:       user.NewService(db, usrRepo, emailsvc.NewConsoleServiceMock(conf), conf, logger),
		CourseSvc:     course.NewService(db, courseRepo),
		EnrollmentSvc: enrollment.NewService(db, sqlxrepos.NewEnrollmentRepository(), usrRepo, courseRepo),
		ContentSvc:    content.NewService(db, sqlxrepos.NewContentRepository(), store, conf, logger),
		AttendanceSvc: attendance.NewService(db, sqlxrepos.NewAttendanceRepository()),
		SubmissionSvc: submission.NewService(db, sqlxrepos.NewSubmissionRepository(), store, conf, logger),
		Validate:      validate,
		Translator:    translator,
	})
	t.Cleanup(func() { _ = srv.Close() })

	return &testApp{Server: srv, db: db, conf: conf, store: store}
}

// member creates a user past the first login.
func (app *testApp) member(t *testing.T, name, email string, role user.Role) user.User {
	return testutil.Onboard(t, app.db, testutil.CreateUser(t, app.db, name, email, role, true))
}

func (app *testApp) session(t *testing.T, usr user.User) *http.Cookie {
	return app.sessionFrom(t, NewClaims(usr, app.conf))
}

func (app *testApp) sessionFrom(t *testing.T, claims *Claims) *http.Cookie {
	token, err := GenerateToken(claims, app.conf)
	require.NoError(t, err)
	return &http.Cookie{Name: app.conf.Server.SessionCookie, Value: token}
}

// do sends a form request; unsafe methods carry a valid CSRF token.
func (app *testApp) do(method, path string, session *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	var req *http.Request
	if method == http.MethodGet {
		if len(form) > 0 {
			path += "?" + form.Encode()
		}
		req = httptest.NewRequest(method, path, nil)
	} else {
		form.Set("_csrf", testCSRF)
		req = newFormRequest(path, form)
		req.Method = method
	}
	return app.send(req, session)
}

// upload sends a multipart POST with a single "file" part.
func (app *testApp) upload(t *testing.T, path string, session *http.Cookie, filename, body string, fields url.Values) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("_csrf", testCSRF))
	for k, vals := range fields {
		for _, v := range vals {
			require.NoError(t, w.WriteField(k, v))
		}
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return app.send(req, session)
}

func newFormRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (app *testApp) send(req *http.Request, session *http.Cookie) *httptest.ResponseRecorder {
	req.AddCookie(&http.Cookie{Name: app.conf.Server.CSRFCookie, Value: testCSRF})
	if session != nil {
		req.AddCookie(session)
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

// sessionCookie returns the session cookie set by the response, if any.
func (app *testApp) sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == app.conf.Server.SessionCookie {
			return c
		}
	}
	return nil
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := app.do(method, tt.path, tt.session, tt.form)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), obj), rec.Body.String())
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}
