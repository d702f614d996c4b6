package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/aula/core/user"
)

var contextObjectKey = "object"

func (s *Server) registerUserAPI(r router) {
	r = r.with(adminOnly)

	r.GET("/users", s.queryUsers)
	r.POST("/users", s.createUser)
	r.GET("/users/roles", s.queryRoles)

	// detail endpoints
	r.GET("/users/:id", s.retrieveUser, s.userMiddleware)
	r.POST("/users/:id", s.updateUser, s.userMiddleware)
	r.POST("/users/:id/delete", s.destroyUser, s.userMiddleware)
}

func (s *Server) userMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := paramID(ctx, "id")
		if err != nil {
			return err
		}
		usr, err := s.UserSvc.GetByID(ctx.Request().Context(), id)
		if err != nil {
			return err
		}
		ctx.Set(contextObjectKey, usr)
		return next(ctx)
	}
}

func (s *Server) createUser(ctx echo.Context) error {
	var data user.NewUser
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, s.Validate, s.UserSvc); err != nil {
		return err
	}

	usr, err := s.UserSvc.Create(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (s *Server) queryUsers(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := s.UserSvc.Query(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (s *Server) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.AllRoles)
}

func (s *Server) retrieveUser(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ctx.Get(contextObjectKey))
}

func (s *Server) updateUser(ctx echo.Context) error {
	usr, _ := ctx.Get(contextObjectKey).(user.User)

	var data user.UpdateUser
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, usr, s.Validate, s.UserSvc); err != nil {
		return err
	}

	// admins cannot lock themselves out
	if usr.ID == getContextUser(ctx).ID && (data.Role != usr.Role || (data.IsActive != nil && !*data.IsActive)) {
		return errHttpForbidden
	}

	usr, err := s.UserSvc.Update(rctx, usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (s *Server) destroyUser(ctx echo.Context) error {
	usr, _ := ctx.Get(contextObjectKey).(user.User)

	// Say No to Suicide! ctxUser cannot delete themselves
	if usr.ID == getContextUser(ctx).ID {
		return errHttpForbidden
	}
	if err := s.UserSvc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}
