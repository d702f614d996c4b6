package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/submission"
)

var (
	contextTaskKey       = "task"
	contextSubmissionKey = "submission"
)

func (s *Server) registerSubmissionAPI(r router) {
	learner := r.with(learnerOnly, s.taskMiddleware, s.viewerMiddleware)
	learner.POST("/tasks/:id/submit", s.submit)
	learner.GET("/tasks/:id/submission", s.ownSubmission)

	r.GET("/tasks/:id/submissions", s.queryTaskSubmissions, s.taskMiddleware, s.teacherMiddleware)
	r.POST("/submissions/:id/grade", s.gradeSubmission, s.submissionMiddleware, s.teacherMiddleware)
	r.GET("/submissions/:id/file", s.submissionFileURL, s.submissionMiddleware)
}

// taskMiddleware loads the :id task and its course.
func (s *Server) taskMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := paramID(ctx, "id")
		if err != nil {
			return err
		}
		task, err := s.SubmissionSvc.GetTask(ctx.Request().Context(), id)
		if err != nil {
			return err
		}
		if err = s.setContextCourse(ctx, task.CourseID); err != nil {
			return err
		}
		ctx.Set(contextTaskKey, task)
		return next(ctx)
	}
}

// submissionMiddleware loads the :id submission, its task and course.
func (s *Server) submissionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := paramID(ctx, "id")
		if err != nil {
			return err
		}
		rctx := ctx.Request().Context()
		sub, err := s.SubmissionSvc.GetByID(rctx, id)
		if err != nil {
			return err
		}
		task, err := s.SubmissionSvc.GetTask(rctx, sub.TaskID)
		if err != nil {
			return err
		}
		if err = s.setContextCourse(ctx, task.CourseID); err != nil {
			return err
		}
		ctx.Set(contextTaskKey, task)
		ctx.Set(contextSubmissionKey, sub)
		return next(ctx)
	}
}

func getContextTask(ctx echo.Context) submission.Task {
	task, _ := ctx.Get(contextTaskKey).(submission.Task)
	return task
}

func getContextSubmission(ctx echo.Context) submission.Submission {
	sub, _ := ctx.Get(contextSubmissionKey).(submission.Submission)
	return sub
}

// visibleTask hides unpublished tasks from learners.
func visibleTask(ctx echo.Context) (submission.Task, error) {
	task := getContextTask(ctx)
	if !task.Published {
		return submission.Task{}, submission.ErrTaskNotFound
	}
	return task, nil
}

func (s *Server) submit(ctx echo.Context) error {
	task, err := visibleTask(ctx)
	if err != nil {
		return err
	}

	var data submission.SubmitInput
	if err = bindForm(ctx, &data); err != nil {
		return err
	}
	data.LinkURL = core.CleanString(data.LinkURL)
	if err = s.Validate.Struct(data); err != nil {
		return err
	}
	up, done, err := formUpload(ctx, "file")
	defer done()
	if err != nil {
		return err
	}

	sub, err := s.SubmissionSvc.UpsertSubmission(ctx.Request().Context(), task.ID, getContextUser(ctx).ID, up, data.LinkURL)
	if err != nil {
		return errors.Wrap(err, "submitting")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (s *Server) ownSubmission(ctx echo.Context) error {
	task, err := visibleTask(ctx)
	if err != nil {
		return err
	}
	sub, err := s.SubmissionSvc.GetForUser(ctx.Request().Context(), task.ID, getContextUser(ctx).ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (s *Server) queryTaskSubmissions(ctx echo.Context) error {
	subs, err := s.SubmissionSvc.ListByTask(ctx.Request().Context(), getContextTask(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (s *Server) gradeSubmission(ctx echo.Context) error {
	var data submission.GradeInput
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.Validate); err != nil {
		return err
	}

	sub, err := s.SubmissionSvc.GradeSubmission(ctx.Request().Context(), getContextSubmission(ctx).ID, *data.Grade, data.Feedback)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

// submissionFileURL signs the submitted file for its owner and the teachers of the course.
func (s *Server) submissionFileURL(ctx echo.Context) error {
	sub := getContextSubmission(ctx)
	if sub.UserID != getContextUser(ctx).ID {
		if err := s.requireTeacher(ctx, getContextCourse(ctx).ID); err != nil {
			return err
		}
	}

	u, err := s.SubmissionSvc.FileURL(ctx.Request().Context(), sub)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, URLResponse{URL: u})
}
