package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/user"
)

var (
	sessionTokenKey = "sessionToken"
	contextUserKey  = "user"
	csrfField       = "_csrf"
	sessionAudience = "aula-web"
)

// Claims represents the session claims carried by the session cookie.
type Claims struct {
	jwt.StandardClaims
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       user.Role `json:"role"`
	FirstLogin bool      `json:"first_login"`
}

// UserID returns the id of the user the session belongs to.
func (c Claims) UserID() (int, error) {
	return strconv.Atoi(c.Subject)
}

// NewClaims returns the claims of a session of usr starting now.
func NewClaims(usr user.User, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   strconv.Itoa(usr.ID),
			Audience:  sessionAudience,
			ExpiresAt: now.Add(conf.Server.SessionTTL).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:       usr.Name,
		Email:      usr.Email,
		Role:       usr.Role,
		FirstLogin: usr.FirstLogin,
	}
}

// GenerateToken signs claims with the app secret key.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	return ss, errors.Wrap(err, "signing token")
}

func (s *Server) jwtConfig() middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(s.Conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    sessionTokenKey,
		Claims:        new(Claims),
		TokenLookup:   "cookie:" + s.Conf.Server.SessionCookie,
	}
}

func (s *Server) sessionCookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     s.Conf.Server.SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		Secure:   s.Conf.Server.SecureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// setSession (re)issues the session cookie of usr.
func (s *Server) setSession(ctx echo.Context, usr user.User) error {
	claims := NewClaims(usr, s.Conf)
	token, err := GenerateToken(claims, s.Conf)
	if err != nil {
		return err
	}
	ctx.SetCookie(s.sessionCookie(token, time.Unix(claims.ExpiresAt, 0)))
	return nil
}

func (s *Server) clearSession(ctx echo.Context) {
	cookie := s.sessionCookie("", time.Unix(0, 0))
	cookie.MaxAge = -1
	ctx.SetCookie(cookie)
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(sessionTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextUser returns the user loaded by sessionMiddleware.
func getContextUser(ctx echo.Context) user.User {
	usr, _ := ctx.Get(contextUserKey).(user.User)
	return usr
}

// sessionMiddleware loads the session user and slides the session expiration once past its half life.
// Sessions of deleted or deactivated users are closed.
func (s *Server) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		id, err := claims.UserID()
		if err != nil {
			return errUnauthorized
		}

		usr, err := s.UserSvc.GetByID(ctx.Request().Context(), id)
		if err != nil {
			if err == user.ErrNotFound {
				s.clearSession(ctx)
				return errUnauthorized
			}
			return errors.Wrap(err, "finding session user")
		}
		if !usr.IsActive {
			s.clearSession(ctx)
			return errAccountDeactivated
		}
		ctx.Set(contextUserKey, usr)

		issuedAt := time.Unix(claims.IssuedAt, 0)
		if time.Since(issuedAt) > s.Conf.Server.SessionTTL/2 {
			if err = s.setSession(ctx, usr); err != nil {
				return errors.Wrap(err, "refreshing session")
			}
		}
		return next(ctx)
	}
}

// firstLoginGate only lets users who changed their initial password through.
func (s *Server) firstLoginGate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if getContextUser(ctx).FirstLogin {
			return errPasswordChangeRequired
		}
		return next(ctx)
	}
}
