package sqlxrepos

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/user"
)

const userColumns = "id, name, email, role, area, is_active, first_login, password_hash, created_at, updated_at, last_login"

// userOrderings lists the columns users can be sorted by.
var userOrderings = map[string]bool{"name": true, "email": true, "role": true, "created_at": true, "last_login": true}

type userRepository struct{}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository() *userRepository {
	return &userRepository{}
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, exec core.DBExecutor, email string, excludedUsers ...user.User) error {
	w := where{}
	w.add("LOWER(email) = ?", strings.ToLower(email))
	if len(excludedUsers) > 0 {
		ids := make([]int, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		w.add("id NOT IN (?)", ids)
	}

	q, args, err := expandIn("SELECT COUNT(*) FROM usuarios"+w.String(), w.args...)
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}
	var count int
	if err = get(ctx, exec, &count, q, args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, exec core.DBExecutor, usr user.User) (user.User, error) {
	id, err := insertReturningID(ctx, exec, `
		INSERT INTO usuarios (name, email, role, area, is_active, first_login, password_hash, created_at, updated_at, last_login)
		VALUES (:name, :email, :role, :area, :is_active, :first_login, :password_hash, :created_at, :updated_at, :last_login)
		RETURNING id`, usr)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	usr.ID = id
	return usr, nil
}

func (repo userRepository) GetUserByID(ctx context.Context, exec core.DBExecutor, id int) (user.User, error) {
	var usr user.User
	err := get(ctx, exec, &usr, "SELECT "+userColumns+" FROM usuarios WHERE id = ?", id)
	return usr, trapNoRowsErr(err, user.ErrNotFound, "getting user by id")
}

func (repo userRepository) GetUserByEmail(ctx context.Context, exec core.DBExecutor, email string) (user.User, error) {
	var usr user.User
	err := get(ctx, exec, &usr, "SELECT "+userColumns+" FROM usuarios WHERE LOWER(email) = ?", strings.ToLower(email))
	return usr, trapNoRowsErr(err, user.ErrNotFound, "getting user by email")
}

func (repo userRepository) FilterUsers(ctx context.Context, exec core.DBExecutor, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	w := where{}
	if filter.Search != "" {
		val := likePattern(filter.Search)
		w.add("("+likeExpr("name")+" OR "+likeExpr("email")+")", val, val)
	}
	if len(filter.Roles) > 0 {
		w.add("role IN (?)", filter.Roles)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	if filter.Area != "" {
		w.add("LOWER(area) = ?", strings.ToLower(filter.Area))
	}

	orderBy := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if userOrderings[ord.Field] {
			orderBy = append(orderBy, ord.String())
		}
	}
	orderBy = append(orderBy, "id ASC")

	q, args, err := expandIn("SELECT "+userColumns+" FROM usuarios"+w.String()+" ORDER BY "+strings.Join(orderBy, ", "), w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "building users query")
	}
	users := make([]user.User, 0)
	if err = selectAll(ctx, exec, &users, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, exec core.DBExecutor, usr user.User) (user.User, error) {
	res, err := execNamed(ctx, exec, `
		UPDATE usuarios SET
			name = :name, email = :email, role = :role, area = :area, is_active = :is_active,
			first_login = :first_login, password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`, usr)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if res == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, exec core.DBExecutor, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := expandIn("DELETE FROM usuarios WHERE id IN (?)", ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = execute(ctx, exec, q, args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
