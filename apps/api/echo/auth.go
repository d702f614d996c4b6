package echoapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/user"
)

func (s *Server) registerAuthAPI(public, authed router) {
	// un-authed endpoints
	public.GET("/auth/csrf", s.csrfToken)
	public.POST("/auth/login", s.login)
	public.POST("/auth/logout", s.logout)
	public.POST("/auth/code", s.requestCode)
	public.POST("/auth/code/confirm", s.confirmCode)

	// allowed before the initial password is changed
	authed.GET("/me", s.me)
	authed.POST("/me/password", s.changePassword)
}

type (
	LoginRequest struct {
		Email    string `json:"email" form:"email" validate:"required,email"`
		Password string `json:"password" form:"password" validate:"required"`
	}

	CodeRequest struct {
		Email string `json:"email" form:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (cr *CodeRequest) Validate(validate *validator.Validate) error {
	cr.Email = core.CleanString(cr.Email, true /* lower */)
	return validate.Struct(cr)
}

func (s *Server) authenticate(ctx context.Context, email, pwd string) (user.User, error) {
	usr, err := s.UserSvc.GetByEmail(ctx, email)
	if err != nil {
		if err == user.ErrNotFound {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	usr, err = s.UserSvc.SetLastLogin(ctx, usr)
	return usr, errors.Wrap(err, "setting last login")
}

func (s *Server) csrfToken(ctx echo.Context) error {
	token, _ := ctx.Get("csrf").(string)
	return ctx.JSON(http.StatusOK, echo.Map{"csrf": token})
}

func (s *Server) login(ctx echo.Context) error {
	var data LoginRequest
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.Validate); err != nil {
		return err
	}

	usr, err := s.authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return err
	}
	if err = s.setSession(ctx, usr); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (s *Server) logout(ctx echo.Context) error {
	s.clearSession(ctx)
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) requestCode(ctx echo.Context) error {
	var data CodeRequest
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.Validate); err != nil {
		return err
	}

	if err := s.UserSvc.RequestVerificationCode(ctx.Request().Context(), data.Email); err != nil {
		// do not return errors to attackers
		s.Logger.Error(fmt.Sprintf("requesting verification code: %v", err), err)
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account, " +
			"a verification code will arrive in your inbox shortly.",
	})
}

func (s *Server) confirmCode(ctx echo.Context) error {
	var data user.ResetPassword
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.Validate); err != nil {
		return err
	}

	if err := s.UserSvc.ResetPasswordWithCode(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (s *Server) me(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, getContextUser(ctx))
}

// changePassword also lifts the first login gate, so the session is re-issued right away.
func (s *Server) changePassword(ctx echo.Context) error {
	usr := getContextUser(ctx)

	var data user.ChangePassword
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(usr, s.Validate); err != nil {
		return err
	}

	usr, err := s.UserSvc.ChangePassword(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "changing password")
	}
	if err = s.setSession(ctx, usr); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}
