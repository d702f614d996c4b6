package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/course"
	"github.com/trezcool/aula/core/user"
)

// router registers routes behind a fixed middleware chain.
// Unlike echo.Group, it adds no catch-all routes.
type router struct {
	app *echo.Echo
	mws []echo.MiddlewareFunc
}

func (r router) with(mws ...echo.MiddlewareFunc) router {
	chain := make([]echo.MiddlewareFunc, 0, len(r.mws)+len(mws))
	chain = append(chain, r.mws...)
	return router{app: r.app, mws: append(chain, mws...)}
}

func (r router) GET(path string, h echo.HandlerFunc, mws ...echo.MiddlewareFunc) {
	r.app.GET(path, h, r.with(mws...).mws...)
}

func (r router) POST(path string, h echo.HandlerFunc, mws ...echo.MiddlewareFunc) {
	r.app.POST(path, h, r.with(mws...).mws...)
}

func roleMiddleware(allowed func(user.Role) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if allowed(getContextUser(ctx).Role) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

var (
	adminOnly   = roleMiddleware(user.Role.CanAdminister)
	teacherOnly = roleMiddleware(user.Role.CanTeach)
	learnerOnly = roleMiddleware(user.Role.IsLearner)
)

// requireTeacher fails with core.ErrForbidden unless the session user manages the course.
func (s *Server) requireTeacher(ctx echo.Context, courseID int) error {
	ok, err := s.CourseSvc.CanTeach(ctx.Request().Context(), courseID, getContextUser(ctx))
	if err != nil {
		return errors.Wrap(err, "checking course teacher")
	}
	if !ok {
		return core.ErrForbidden
	}
	return nil
}

// requireViewer lets in the teachers of a course and the learners on its roster while it is published.
// It reports whether the session user teaches the course.
func (s *Server) requireViewer(ctx echo.Context, c course.Course) (bool, error) {
	rctx := ctx.Request().Context()
	usr := getContextUser(ctx)

	teaches, err := s.CourseSvc.CanTeach(rctx, c.ID, usr)
	if err != nil {
		return false, errors.Wrap(err, "checking course teacher")
	}
	if teaches {
		return true, nil
	}
	if !(usr.Role.IsLearner() && c.IsPublished()) {
		return false, core.ErrForbidden
	}
	member, err := s.CourseSvc.IsMember(rctx, c.ID, usr.ID)
	if err != nil {
		return false, errors.Wrap(err, "checking course member")
	}
	if !member {
		return false, core.ErrForbidden
	}
	return false, nil
}

// courseMiddleware loads the course named by the :id param into the context.
func (s *Server) courseMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := paramID(ctx, "id")
		if err != nil {
			return err
		}
		if err = s.setContextCourse(ctx, id); err != nil {
			return err
		}
		return next(ctx)
	}
}

// courseTeacherMiddleware loads the :id course and requires the session user to manage it.
func (s *Server) courseTeacherMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return s.courseMiddleware(s.teacherMiddleware(next))
}

// teacherMiddleware requires the session user to manage the context course.
func (s *Server) teacherMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if err := s.requireTeacher(ctx, getContextCourse(ctx).ID); err != nil {
			return err
		}
		return next(ctx)
	}
}

// viewerMiddleware runs requireViewer on the context course.
func (s *Server) viewerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		teaches, err := s.requireViewer(ctx, getContextCourse(ctx))
		if err != nil {
			return err
		}
		ctx.Set(contextTeachesKey, teaches)
		return next(ctx)
	}
}

func (s *Server) setContextCourse(ctx echo.Context, id int) error {
	c, err := s.CourseSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	ctx.Set(contextCourseKey, c)
	return nil
}

var (
	contextCourseKey  = "course"
	contextTeachesKey = "teaches"
)

func getContextCourse(ctx echo.Context) course.Course {
	c, _ := ctx.Get(contextCourseKey).(course.Course)
	return c
}

func getContextTeaches(ctx echo.Context) bool {
	teaches, _ := ctx.Get(contextTeachesKey).(bool)
	return teaches
}
