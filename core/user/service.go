package user

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/aula/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFound("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidCurrentPass = errors.New("current password is incorrect")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, exec core.DBExecutor, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, exec core.DBExecutor, usr User) (User, error)
		GetUserByID(ctx context.Context, exec core.DBExecutor, id int) (User, error)
		GetUserByEmail(ctx context.Context, exec core.DBExecutor, email string) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		FilterUsers(ctx context.Context, exec core.DBExecutor, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, exec core.DBExecutor, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, exec core.DBExecutor, ids ...int) error
	}

	Service struct {
		db      core.DB
		repo    Repository
		mailSvc core.EmailService
		logger  core.Logger
		codes   *cache.Cache
		codeTTL time.Duration
		codeLen int
	}
)

func NewService(db core.DB, repo Repository, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Service {
	ttl := conf.Server.VerificationTTL
	return &Service{
		db:      db,
		repo:    repo,
		mailSvc: mailSvc,
		logger:  logger,
		codes:   cache.New(ttl, 2*ttl),
		codeTTL: ttl,
		codeLen: conf.Server.VerificationCodeLen,
	}
}

// CheckUniqueness reports ErrEmailExists as a field error.
func (svc *Service) CheckUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, svc.db, email, exclUsers...); err != nil {
		if err == ErrEmailExists {
			return core.NewFieldError(err, "email")
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := core.NowFunc()
	usr := User{
		Name:       nu.Name,
		Email:      nu.Email,
		Role:       nu.Role,
		IsActive:   true,
		FirstLogin: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if nu.Area != "" {
		usr.Area = null.StringFrom(nu.Area)
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, svc.db, usr)
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUserByID(ctx, svc.db, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, svc.db, core.CleanString(email, true /* lower */))
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	return svc.repo.FilterUsers(ctx, svc.db, filter, ordering...)
}

func (svc *Service) Update(ctx context.Context, id int, uu UpdateUser) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, svc.db, id)
	if err != nil {
		return User{}, err
	}
	usr.Name = uu.Name
	usr.Email = uu.Email
	usr.Role = uu.Role
	usr.Area = null.NewString(uu.Area, uu.Area != "")
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	usr.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateUser(ctx, svc.db, usr)
}

func (svc *Service) Delete(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteUsersByID(ctx, svc.db, ids...)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	now := core.NowFunc()
	usr.LastLogin = null.TimeFrom(now)
	usr.UpdatedAt = now
	return svc.repo.UpdateUser(ctx, svc.db, usr)
}

// SetPassword sets a new password without any check; used by operators.
func (svc *Service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateUser(ctx, svc.db, usr)
}

// ChangePassword replaces the password of an authenticated user and clears the first login flag.
func (svc *Service) ChangePassword(ctx context.Context, usr User, cp ChangePassword) (User, error) {
	if err := usr.CheckPassword(cp.CurrentPassword); err != nil {
		return User{}, core.NewFieldError(ErrInvalidCurrentPass, "current_password")
	}
	usr.FirstLogin = false
	return svc.SetPassword(ctx, usr, cp.Password)
}
