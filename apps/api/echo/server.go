package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/bytes"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/attendance"
	"github.com/trezcool/aula/core/content"
	"github.com/trezcool/aula/core/course"
	"github.com/trezcool/aula/core/enrollment"
	"github.com/trezcool/aula/core/submission"
	"github.com/trezcool/aula/core/user"
)

type ServerDeps struct {
	Conf          *core.Config
	Logger        core.Logger
	UserSvc       *user.Service
	CourseSvc     *course.Service
	EnrollmentSvc *enrollment.Service
	ContentSvc    *content.Service
	AttendanceSvc *attendance.Service
	SubmissionSvc *submission.Service
	Validate      *validator.Validate
	Translator    ut.Translator
}

type Server struct {
	ServerDeps
	app      *echo.Echo
	errors   chan error
	shutdown chan os.Signal
}

var _ http.Handler = (*Server)(nil)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		ServerDeps: deps,
		app:        echo.New(),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.BodyLimit(bytes.Format(conf.Server.MaxUploadBytes)))
	s.app.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "form:" + csrfField,
		CookieName:     conf.Server.CSRFCookie,
		CookiePath:     "/",
		CookieMaxAge:   int(conf.Server.SessionTTL.Seconds()),
		CookieSecure:   conf.Server.SecureCookies,
		CookieHTTPOnly: true,
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.Logger, s.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	public := router{app: s.app}
	authed := public.with(middleware.JWTWithConfig(s.jwtConfig()), s.sessionMiddleware)
	gated := authed.with(s.firstLoginGate)

	s.registerAuthAPI(public, authed)
	s.registerUserAPI(gated)
	s.registerCourseAPI(gated)
	s.registerContentAPI(gated)
	s.registerAttendanceAPI(gated)
	s.registerSubmissionAPI(gated)
}

// Start listens on the configured address; listener failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.Conf.AppName+" API!")
}
