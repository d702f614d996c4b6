package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/attendance"
)

var contextRecordKey = "attendance"

func (s *Server) registerAttendanceAPI(r router) {
	r.GET("/courses/:id/schedule", s.weeklySchedule, s.courseMiddleware, s.viewerMiddleware)
	r.POST("/courses/:id/schedule", s.replaceWeeklySchedule, s.courseTeacherMiddleware)

	r.GET("/courses/:id/attendance", s.queryRecords, s.courseTeacherMiddleware)
	r.POST("/courses/:id/attendance", s.upsertRecord, s.courseTeacherMiddleware)
	r.GET("/courses/:id/attendance/summary", s.summarizeAttendance, s.courseMiddleware, s.viewerMiddleware)

	record := r.with(s.recordMiddleware, s.teacherMiddleware)
	record.GET("/attendance/:id", s.retrieveRecord)
	record.POST("/attendance/:id/details", s.setDetails)
	record.POST("/attendance/:id/details/:userId", s.setDetail)
}

type (
	// DetailsRequest carries a whole attendance sheet as parallel arrays.
	DetailsRequest struct {
		UserIDs        []int    `json:"user_id" form:"user_id"`
		Statuses       []string `json:"status" form:"status"`
		Justifications []string `json:"justification" form:"justification"`
	}

	SummaryQuery struct {
		UserID int `query:"user_id"`
	}
)

var errSheetMismatch = errors.New("user_id and status must have the same length")

func (dr DetailsRequest) inputs() ([]attendance.DetailInput, error) {
	if len(dr.UserIDs) != len(dr.Statuses) || len(dr.Justifications) > len(dr.UserIDs) {
		return nil, core.NewFieldError(errSheetMismatch, "status")
	}
	inputs := make([]attendance.DetailInput, len(dr.UserIDs))
	for i, id := range dr.UserIDs {
		inputs[i] = attendance.DetailInput{UserID: id, Status: dr.Statuses[i]}
		if i < len(dr.Justifications) {
			inputs[i].Justification = dr.Justifications[i]
		}
	}
	return inputs, nil
}

// recordMiddleware loads the :id attendance record and its course.
func (s *Server) recordMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := paramID(ctx, "id")
		if err != nil {
			return err
		}
		rec, err := s.AttendanceSvc.GetRecord(ctx.Request().Context(), id)
		if err != nil {
			return err
		}
		if err = s.setContextCourse(ctx, rec.CourseID); err != nil {
			return err
		}
		ctx.Set(contextRecordKey, rec)
		return next(ctx)
	}
}

func getContextRecord(ctx echo.Context) attendance.Record {
	rec, _ := ctx.Get(contextRecordKey).(attendance.Record)
	return rec
}

// roster returns the user ids of every member of the context course.
func (s *Server) roster(ctx echo.Context) ([]int, error) {
	members, err := s.CourseSvc.Members(ctx.Request().Context(), getContextCourse(ctx).ID)
	if err != nil {
		return nil, errors.Wrap(err, "listing members")
	}
	ids := make([]int, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	return ids, nil
}

// Schedule

func (s *Server) weeklySchedule(ctx echo.Context) error {
	slots, err := s.AttendanceSvc.WeeklySchedule(ctx.Request().Context(), getContextCourse(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "listing weekly schedule")
	}
	return ctx.JSON(http.StatusOK, slots)
}

func (s *Server) replaceWeeklySchedule(ctx echo.Context) error {
	var data attendance.ScheduleInput
	if err := bindForm(ctx, &data); err != nil {
		return err
	}

	slots, err := s.AttendanceSvc.ReplaceWeeklySchedule(ctx.Request().Context(), getContextCourse(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "replacing weekly schedule")
	}
	return ctx.JSON(http.StatusOK, slots)
}

// Records

func (s *Server) queryRecords(ctx echo.Context) error {
	recs, err := s.AttendanceSvc.Records(ctx.Request().Context(), getContextCourse(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "listing attendance records")
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (s *Server) upsertRecord(ctx echo.Context) error {
	var data attendance.RecordInput
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.Validate); err != nil {
		return err
	}

	rec, err := s.AttendanceSvc.UpsertAttendanceRecord(
		ctx.Request().Context(), getContextCourse(ctx).ID, getContextUser(ctx).ID, data,
	)
	if err != nil {
		return errors.Wrap(err, "saving attendance record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (s *Server) retrieveRecord(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, getContextRecord(ctx))
}

func (s *Server) setDetails(ctx echo.Context) error {
	var data DetailsRequest
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	inputs, err := data.inputs()
	if err != nil {
		return err
	}
	roster, err := s.roster(ctx)
	if err != nil {
		return err
	}

	details, err := s.AttendanceSvc.SetAttendanceDetails(ctx.Request().Context(), getContextRecord(ctx).ID, roster, inputs)
	if err != nil {
		return errors.Wrap(err, "saving attendance sheet")
	}
	return ctx.JSON(http.StatusOK, details)
}

func (s *Server) setDetail(ctx echo.Context) error {
	userID, err := paramID(ctx, "userId")
	if err != nil {
		return err
	}
	var data attendance.DetailInput
	if err = bindForm(ctx, &data); err != nil {
		return err
	}
	data.UserID = userID // the binder also matches the param name against the field

	rctx := ctx.Request().Context()
	member, err := s.CourseSvc.IsMember(rctx, getContextCourse(ctx).ID, userID)
	if err != nil {
		return errors.Wrap(err, "checking course member")
	}
	if !member {
		return core.NewFieldError(fmt.Errorf("user %d is not on the course roster", userID), "user_id")
	}

	d, err := s.AttendanceSvc.SetAttendanceDetail(rctx, getContextRecord(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "saving attendance detail")
	}
	return ctx.JSON(http.StatusOK, d)
}

// summarizeAttendance reports the counts of the session user; teachers pick the learner with ?user_id.
func (s *Server) summarizeAttendance(ctx echo.Context) error {
	userID := getContextUser(ctx).ID
	if getContextTeaches(ctx) {
		var q SummaryQuery
		if err := ctx.Bind(&q); err != nil || q.UserID <= 0 {
			return core.NewFieldError(errors.New("user_id is required"), "user_id")
		}
		userID = q.UserID
	}

	sum, err := s.AttendanceSvc.SummarizeAttendance(ctx.Request().Context(), getContextCourse(ctx).ID, userID)
	if err != nil {
		return errors.Wrap(err, "summarizing attendance")
	}
	return ctx.JSON(http.StatusOK, sum)
}
