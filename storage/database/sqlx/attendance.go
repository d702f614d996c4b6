package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/attendance"
)

const (
	slotColumns   = "course_id, weekday, start_time, end_time"
	recordColumns = "id, course_id, professor_id, date, start_time, end_time, created_at, updated_at"
)

type attendanceRepository struct{}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository() *attendanceRepository {
	return &attendanceRepository{}
}

// Schedule

func (repo attendanceRepository) ListSlots(ctx context.Context, exec core.DBExecutor, courseID int) ([]attendance.Slot, error) {
	slots := make([]attendance.Slot, 0)
	err := selectAll(ctx, exec, &slots, "SELECT "+slotColumns+" FROM curso_horarios WHERE course_id = ? ORDER BY weekday ASC", courseID)
	return slots, errors.Wrap(err, "listing slots")
}

func (repo attendanceRepository) GetSlot(ctx context.Context, exec core.DBExecutor, courseID int, day attendance.Weekday) (attendance.Slot, error) {
	var s attendance.Slot
	err := get(ctx, exec, &s, "SELECT "+slotColumns+" FROM curso_horarios WHERE course_id = ? AND weekday = ?", courseID, day)
	return s, trapNoRowsErr(err, attendance.ErrNoSchedule, "getting slot")
}

func (repo attendanceRepository) ReplaceSlots(ctx context.Context, exec core.DBExecutor, courseID int, slots []attendance.Slot) error {
	if _, err := execute(ctx, exec, "DELETE FROM curso_horarios WHERE course_id = ?", courseID); err != nil {
		return errors.Wrap(err, "clearing slots")
	}
	for _, s := range slots {
		_, err := execute(ctx, exec,
			"INSERT INTO curso_horarios ("+slotColumns+") VALUES (?, ?, ?, ?)",
			courseID, s.Weekday, s.StartTime, s.EndTime)
		if err != nil {
			return errors.Wrap(err, "inserting slot")
		}
	}
	return nil
}

// Records

func (repo attendanceRepository) UpsertRecord(ctx context.Context, exec core.DBExecutor, r attendance.Record) (attendance.Record, error) {
	var id int
	err := get(ctx, exec, &id, `
		INSERT INTO asistencias (course_id, professor_id, date, start_time, end_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (course_id, date) DO UPDATE SET
			professor_id = excluded.professor_id, start_time = excluded.start_time,
			end_time = excluded.end_time, updated_at = excluded.updated_at
		RETURNING id`,
		r.CourseID, r.ProfessorID, core.DateOnly(r.Date), r.StartTime, r.EndTime, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting attendance record")
	}
	return repo.GetRecordByID(ctx, exec, id)
}

func (repo attendanceRepository) GetRecordByID(ctx context.Context, exec core.DBExecutor, id int) (attendance.Record, error) {
	var r attendance.Record
	err := get(ctx, exec, &r, "SELECT "+recordColumns+" FROM asistencias WHERE id = ?", id)
	r.Date = core.DateOnly(r.Date)
	return r, trapNoRowsErr(err, attendance.ErrNotFound, "getting attendance record")
}

func (repo attendanceRepository) ListRecords(ctx context.Context, exec core.DBExecutor, courseID int) ([]attendance.Record, error) {
	records := make([]attendance.Record, 0)
	if err := selectAll(ctx, exec, &records, "SELECT "+recordColumns+" FROM asistencias WHERE course_id = ? ORDER BY date ASC", courseID); err != nil {
		return nil, errors.Wrap(err, "listing attendance records")
	}
	for i := range records {
		records[i].Date = core.DateOnly(records[i].Date)
	}
	return records, nil
}

func (repo attendanceRepository) ListRecordDates(ctx context.Context, exec core.DBExecutor, courseID int) ([]time.Time, error) {
	dates := make([]time.Time, 0)
	if err := selectAll(ctx, exec, &dates, "SELECT date FROM asistencias WHERE course_id = ? ORDER BY date ASC", courseID); err != nil {
		return nil, errors.Wrap(err, "listing attendance dates")
	}
	for i := range dates {
		dates[i] = core.DateOnly(dates[i])
	}
	return dates, nil
}

// Details

func (repo attendanceRepository) UpsertDetail(ctx context.Context, exec core.DBExecutor, d attendance.Detail) error {
	_, err := execute(ctx, exec, `
		INSERT INTO asistencias_detalle (attendance_id, user_id, status, justification, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (attendance_id, user_id) DO UPDATE SET
			status = excluded.status, justification = excluded.justification, updated_at = excluded.updated_at`,
		d.AttendanceID, d.UserID, d.Status, d.Justification, d.UpdatedAt)
	return errors.Wrap(err, "upserting attendance detail")
}

func (repo attendanceRepository) ListDetails(ctx context.Context, exec core.DBExecutor, attendanceID int) ([]attendance.Detail, error) {
	details := make([]attendance.Detail, 0)
	err := selectAll(ctx, exec, &details, `
		SELECT d.attendance_id, d.user_id, d.status, d.justification, d.updated_at, u.name AS user_name
		FROM asistencias_detalle d JOIN usuarios u ON u.id = d.user_id
		WHERE d.attendance_id = ?
		ORDER BY u.name ASC, d.user_id ASC`, attendanceID)
	return details, errors.Wrap(err, "listing attendance details")
}

func (repo attendanceRepository) ListUserStatuses(ctx context.Context, exec core.DBExecutor, courseID, userID int) ([]null.String, error) {
	statuses := make([]null.String, 0)
	err := selectAll(ctx, exec, &statuses, `
		SELECT d.status
		FROM asistencias a LEFT JOIN asistencias_detalle d ON d.attendance_id = a.id AND d.user_id = ?
		WHERE a.course_id = ?
		ORDER BY a.date ASC`, userID, courseID)
	return statuses, errors.Wrap(err, "listing user statuses")
}
