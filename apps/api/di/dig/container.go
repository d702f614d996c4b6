package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/aula/apps/api/echo"
	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/attendance"
	"github.com/trezcool/aula/core/content"
	"github.com/trezcool/aula/core/course"
	"github.com/trezcool/aula/core/enrollment"
	"github.com/trezcool/aula/core/submission"
	"github.com/trezcool/aula/core/user"
	emailsvc "github.com/trezcool/aula/services/email"
	logsvc "github.com/trezcool/aula/services/logger"
	storagesvc "github.com/trezcool/aula/services/storage"
	"github.com/trezcool/aula/storage/database"
	sqlxrepos "github.com/trezcool/aula/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type ServerParams struct {
	dig.In
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

func newRoleLogger(role logsvc.Role, conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(role, os.Stdout, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newLogger(conf *core.Config) core.Logger {
	return newRoleLogger(logsvc.RoleAPI, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return newRoleLogger(logsvc.RoleDB, conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	mailSvc, err := emailsvc.New(conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up email service: %v", err), err)
	}
	return mailSvc
}

func newObjectStore(conf *core.Config, logger core.Logger) core.ObjectStore {
	store, err := storagesvc.New(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up object store: %v", err), err)
	}
	return store
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	return validate, translator
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		UserSvc:       p.UserSvc,
		CourseSvc:     p.CourseSvc,
		EnrollmentSvc: p.EnrollmentSvc,
		ContentSvc:    p.ContentSvc,
		AttendanceSvc: p.AttendanceSvc,
		SubmissionSvc: p.SubmissionSvc,
		Validate:      p.Validate,
		Translator:    p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newObjectStore))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewCourseRepository, dig.As(new(course.Repository))))
	must(c.Provide(sqlxrepos.NewEnrollmentRepository, dig.As(new(enrollment.Repository))))
	must(c.Provide(sqlxrepos.NewContentRepository, dig.As(new(content.Repository))))
	must(c.Provide(sqlxrepos.NewAttendanceRepository, dig.As(new(attendance.Repository))))
	must(c.Provide(sqlxrepos.NewSubmissionRepository, dig.As(new(submission.Repository))))

	// services
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(enrollment.NewService))
	must(c.Provide(content.NewService))
	must(c.Provide(attendance.NewService))
	must(c.Provide(submission.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
