package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/aula/core"
)

// Role is the closed set of user roles.
type Role string

const (
	RoleAdmin       Role = "Administrador"
	RoleProfesor    Role = "Profesor"
	RoleColaborador Role = "Colaborador"
	RolePracticante Role = "Practicante"
)

var (
	AllRoles = []Role{RoleAdmin, RoleProfesor, RoleColaborador, RolePracticante}

	errInvalidRole = errors.New("invalid role")
)

// ParseRole matches s against the known roles, ignoring case and surrounding whitespace.
func ParseRole(s string) (Role, error) {
	s = core.CleanString(s)
	for _, r := range AllRoles {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", errInvalidRole
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// CanAdminister reports whether r manages users and the course catalog.
func (r Role) CanAdminister() bool { return r == RoleAdmin }

// CanTeach reports whether r may manage course content, attendance and grading.
func (r Role) CanTeach() bool { return r == RoleAdmin || r == RoleProfesor }

// IsLearner reports whether r enrolls in courses and submits assignments.
func (r Role) IsLearner() bool { return r == RoleColaborador || r == RolePracticante }

type User struct {
	ID           int         `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Email        string      `json:"email" db:"email"`
	Role         Role        `json:"role" db:"role"`
	Area         null.String `json:"area" db:"area"`
	IsActive     bool        `json:"is_active" db:"is_active"`
	FirstLogin   bool        `json:"first_login" db:"first_login"`
	PasswordHash []byte      `json:"-" db:"password_hash"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"` // UTC
	LastLogin    null.Time   `json:"last_login" db:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsAdmin() bool { return u.Role.CanAdminister() }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" form:"name" validate:"required"`
	Email           string `json:"email" form:"email" validate:"required,email"`
	Role            Role   `json:"role" form:"role" validate:"required,role"`
	Area            string `json:"area" form:"area"`
	Password        string `json:"password" form:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Area = core.CleanString(nu.Area)
	if r, err := ParseRole(string(nu.Role)); err == nil {
		nu.Role = r
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string `json:"name" form:"name"`
	Email           string `json:"email" form:"email" validate:"omitempty,email"`
	Role            Role   `json:"role" form:"role" validate:"omitempty,role"`
	Area            string `json:"area" form:"area"`
	IsActive        *bool  `json:"is_active" form:"is_active"`
	Password        string `json:"password" form:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if uu.Role == "" {
		uu.Role = origUsr.Role
	} else if r, err := ParseRole(string(uu.Role)); err == nil {
		uu.Role = r
	}

	if area := core.CleanString(uu.Area); area != "" {
		uu.Area = area
	} else {
		uu.Area = origUsr.Area.String
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Email, origUsr)
}

// ChangePassword is submitted by an authenticated user, mandatory on first login.
type ChangePassword struct {
	CurrentPassword string `json:"current_password" form:"current_password" validate:"required"`
	Password        string `json:"password" form:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm" validate:"required,eqfield=Password"`

	// user attributes the new password is compared against
	name, email string
}

func (cp *ChangePassword) Validate(usr User, validate *validator.Validate) error {
	cp.name = usr.Name
	cp.email = usr.Email
	return validate.Struct(cp)
}

// ResetPassword resets a forgotten password with an emailed verification code.
type ResetPassword struct {
	Email           string `json:"email" form:"email" validate:"required,email"`
	Code            string `json:"code" form:"code" validate:"required,numeric"`
	Password        string `json:"password" form:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm" validate:"required,eqfield=Password"`
}

func (rp *ResetPassword) Validate(validate *validator.Validate) error {
	rp.Email = core.CleanString(rp.Email, true /* lower */)
	rp.Code = core.CleanString(rp.Code)
	return validate.Struct(rp)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Roles    []Role `query:"role"`
	IsActive *bool  `query:"is_active"`
	Area     string `query:"area"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.Area == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Area = core.CleanString(qf.Area)
}
