package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/course"
	"github.com/trezcool/aula/core/enrollment"
	"github.com/trezcool/aula/core/user"
)

func (s *Server) registerCourseAPI(r router) {
	r.GET("/courses", s.queryCourses)
	r.POST("/courses", s.createCourse, adminOnly)
	r.GET("/courses/:id", s.retrieveCourse, s.courseMiddleware)
	r.POST("/courses/:id", s.updateCourse, s.courseTeacherMiddleware)
	r.POST("/courses/:id/publish", s.publishCourse, s.courseTeacherMiddleware)
	r.POST("/courses/:id/unpublish", s.unpublishCourse, s.courseTeacherMiddleware)
	r.POST("/courses/:id/delete", s.destroyCourse, adminOnly, s.courseMiddleware)

	// staff
	r.GET("/courses/:id/professors", s.queryProfessors, s.courseMiddleware)
	r.POST("/courses/:id/professors", s.assignProfessor, adminOnly, s.courseMiddleware)
	r.POST("/courses/:id/professors/:userId/remove", s.unassignProfessor, adminOnly, s.courseMiddleware)
	r.GET("/courses/:id/members", s.queryMembers, s.courseTeacherMiddleware)
	r.POST("/courses/:id/members/:userId/remove", s.removeMember, s.courseTeacherMiddleware)

	// enrollment
	r.POST("/courses/:id/enroll", s.requestEnrollment, learnerOnly)
	r.GET("/courses/:id/requests", s.queryPendingRequests, s.courseTeacherMiddleware)
	r.POST("/requests/:id/approve", s.approveRequest, teacherOnly)
	r.POST("/requests/:id/reject", s.rejectRequest, teacherOnly)
	r.GET("/me/requests", s.queryMyRequests, learnerOnly)
}

type (
	CourseQuery struct {
		Search string       `query:"search"`
		State  course.State `query:"state"`
		Mine   bool         `query:"mine"`
	}

	AssignProfessorRequest struct {
		UserID int `json:"user_id" form:"user_id" validate:"required"`
	}
)

// queryCourses lists the catalog: admins see every course, professors and learners see their own
// courses with mine=true, learners only ever see published courses.
func (s *Server) queryCourses(ctx echo.Context) error {
	var q CourseQuery
	if err := ctx.Bind(&q); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	usr := getContextUser(ctx)

	filter := course.QueryFilter{Search: q.Search, State: q.State}
	switch {
	case usr.Role.IsLearner():
		filter.State = course.StatePublished
		if q.Mine {
			filter.MemberID = usr.ID
		}
	case usr.Role == user.RoleProfesor && q.Mine:
		filter.ProfessorID = usr.ID
	}

	courses, err := s.CourseSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (s *Server) createCourse(ctx echo.Context) error {
	var data course.NewCourse
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.Validate); err != nil {
		return err
	}

	c, err := s.CourseSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (s *Server) retrieveCourse(ctx echo.Context) error {
	c := getContextCourse(ctx)
	usr := getContextUser(ctx)
	if usr.Role.IsLearner() && !c.IsPublished() {
		return core.ErrForbidden
	}
	if usr.Role == user.RoleProfesor && !c.IsPublished() {
		if err := s.requireTeacher(ctx, c.ID); err != nil {
			return err
		}
	}
	return ctx.JSON(http.StatusOK, c)
}

func (s *Server) updateCourse(ctx echo.Context) error {
	orig := getContextCourse(ctx)

	var data course.UpdateCourse
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(orig, s.Validate); err != nil {
		return err
	}

	c, err := s.CourseSvc.Update(ctx.Request().Context(), orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (s *Server) publishCourse(ctx echo.Context) error {
	c, err := s.CourseSvc.Publish(ctx.Request().Context(), getContextCourse(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "publishing course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (s *Server) unpublishCourse(ctx echo.Context) error {
	c, err := s.CourseSvc.Unpublish(ctx.Request().Context(), getContextCourse(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "unpublishing course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (s *Server) destroyCourse(ctx echo.Context) error {
	if err := s.CourseSvc.Delete(ctx.Request().Context(), getContextCourse(ctx).ID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Staff

func (s *Server) queryProfessors(ctx echo.Context) error {
	profs, err := s.CourseSvc.Professors(ctx.Request().Context(), getContextCourse(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "listing professors")
	}
	return ctx.JSON(http.StatusOK, profs)
}

func (s *Server) assignProfessor(ctx echo.Context) error {
	var data AssignProfessorRequest
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	if err := s.Validate.Struct(data); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	prof, err := s.UserSvc.GetByID(rctx, data.UserID)
	if err != nil {
		if err == user.ErrNotFound {
			return core.NewFieldError(err, "user_id")
		}
		return errors.Wrap(err, "finding professor")
	}
	if err = s.CourseSvc.AssignProfessor(rctx, getContextCourse(ctx).ID, prof); err != nil {
		return errors.Wrap(err, "assigning professor")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) unassignProfessor(ctx echo.Context) error {
	userID, err := paramID(ctx, "userId")
	if err != nil {
		return err
	}
	if err = s.CourseSvc.UnassignProfessor(ctx.Request().Context(), getContextCourse(ctx).ID, userID); err != nil {
		return errors.Wrap(err, "unassigning professor")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) queryMembers(ctx echo.Context) error {
	members, err := s.CourseSvc.Members(ctx.Request().Context(), getContextCourse(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "listing members")
	}
	return ctx.JSON(http.StatusOK, members)
}

func (s *Server) removeMember(ctx echo.Context) error {
	userID, err := paramID(ctx, "userId")
	if err != nil {
		return err
	}
	if err = s.CourseSvc.RemoveMember(ctx.Request().Context(), getContextCourse(ctx).ID, userID); err != nil {
		return errors.Wrap(err, "removing member")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Enrollment

func (s *Server) requestEnrollment(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	req, err := s.EnrollmentSvc.RequestEnrollment(ctx.Request().Context(), getContextUser(ctx), id)
	if err != nil {
		return errors.Wrap(err, "requesting enrollment")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (s *Server) queryPendingRequests(ctx echo.Context) error {
	reqs, err := s.EnrollmentSvc.PendingForCourse(ctx.Request().Context(), getContextCourse(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "listing pending requests")
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (s *Server) queryMyRequests(ctx echo.Context) error {
	reqs, err := s.EnrollmentSvc.ForUser(ctx.Request().Context(), getContextUser(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "listing requests")
	}
	return ctx.JSON(http.StatusOK, reqs)
}

// decideRequest loads the :id request and checks the session user manages its course.
func (s *Server) decideRequest(ctx echo.Context, decide func(id, deciderID int) (enrollment.Request, error)) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	req, err := s.EnrollmentSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	if err = s.requireTeacher(ctx, req.CourseID); err != nil {
		return err
	}

	req, err = decide(id, getContextUser(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "deciding enrollment request")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (s *Server) approveRequest(ctx echo.Context) error {
	return s.decideRequest(ctx, func(id, deciderID int) (enrollment.Request, error) {
		return s.EnrollmentSvc.ApproveEnrollment(ctx.Request().Context(), id, deciderID)
	})
}

func (s *Server) rejectRequest(ctx echo.Context) error {
	return s.decideRequest(ctx, func(id, deciderID int) (enrollment.Request, error) {
		return s.EnrollmentSvc.RejectEnrollment(ctx.Request().Context(), id, deciderID)
	})
}
