// Package testutil sets up in-memory databases and fixtures for package tests.
package testutil

import (
	"context"
	"io/ioutil"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/course"
	"github.com/trezcool/aula/core/user"
	"github.com/trezcool/aula/services/logger"
	"github.com/trezcool/aula/storage/database"
	"github.com/trezcool/aula/storage/database/sqlx"
)

// Password passes the password policy.
const Password = "Xv9#kT2!mq"

// NewConfig returns the default config tuned for tests: in-memory sqlite, memory object store, silent email.
func NewConfig() *core.Config {
	conf := core.NewConfig()
	conf.TestMode = true
	conf.Database.Engine = database.SQLite
	conf.Database.Name = ":memory:"
	conf.Storage.Backend = "memory"
	conf.Email.Backend = "console"
	conf.Server.DisableReqLogs = true
	return conf
}

func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.RoleAPI, ioutil.Discard, conf)
}

// PrepareDB opens a migrated in-memory database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(NewConfig())
	if err != nil {
		t.Fatalf("PrepareDB() open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, "up"); err != nil {
		t.Fatalf("PrepareDB() migrate failed: %v", err)
	}
	return db
}

func CreateUser(t *testing.T, db core.DBExecutor, name, email string, role user.Role, isActive bool, createdAt ...time.Time) user.User {
	t.Helper()
	tstamp := core.NowFunc()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:       name,
		Email:      email,
		Role:       role,
		IsActive:   isActive,
		FirstLogin: true,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	if err := usr.SetPassword(Password); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := sqlxrepos.NewUserRepository().CreateUser(context.Background(), db, usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// Onboard clears the first login flag of usr, as if the initial password had been changed.
func Onboard(t *testing.T, db core.DBExecutor, usr user.User) user.User {
	t.Helper()
	usr.FirstLogin = false
	usr, err := sqlxrepos.NewUserRepository().UpdateUser(context.Background(), db, usr)
	if err != nil {
		t.Fatalf("Onboard() failed: %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, db core.DBExecutor, title string, state course.State) course.Course {
	t.Helper()
	now := core.NowFunc()
	c, err := sqlxrepos.NewCourseRepository().CreateCourse(context.Background(), db, course.Course{
		Title:     title,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

// AddMember puts usr on the roster matching their role.
func AddMember(t *testing.T, db core.DBExecutor, courseID int, usr user.User) {
	t.Helper()
	err := sqlxrepos.NewCourseRepository().AddMember(context.Background(), db, course.RosterFor(usr.Role), courseID, usr.ID, core.NowFunc())
	if err != nil {
		t.Fatalf("AddMember() failed: %v", err)
	}
}

func AddProfessor(t *testing.T, db core.DBExecutor, courseID int, prof user.User) {
	t.Helper()
	if err := sqlxrepos.NewCourseRepository().AddProfessor(context.Background(), db, courseID, prof.ID); err != nil {
		t.Fatalf("AddProfessor() failed: %v", err)
	}
}

// NewValidator returns a validator with every custom validator registered.
func NewValidator(logger core.Logger) *validator.Validate {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)
	return validate
}
