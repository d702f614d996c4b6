package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/aula/core"
)

var (
	// errors
	ErrNotFound      = core.NewNotFound("attendance record not found")
	ErrNoSchedule    = core.NewNotFound("no class scheduled on that weekday")
	errSlotsMismatch = errors.New("days, start and end times must have the same length")
	errDuplicateDay  = "%s is listed more than once"
	errInvalidTime   = "%q is not a valid time (HH:MM)"
	errTimeOrder     = errors.New("end time must be after start time")
	errNotOnRoster   = "user %d is not on the course roster"
	errScheduleInUse = "cannot remove %s from the schedule: attendance already recorded on that weekday"
	errNoSlots       = errors.New("at least one weekly slot is required")
)

type (
	Repository interface {
		ListSlots(ctx context.Context, exec core.DBExecutor, courseID int) ([]Slot, error)
		GetSlot(ctx context.Context, exec core.DBExecutor, courseID int, day Weekday) (Slot, error)
		// ReplaceSlots deletes every slot of the course and inserts slots.
		ReplaceSlots(ctx context.Context, exec core.DBExecutor, courseID int, slots []Slot) error

		// UpsertRecord creates or updates the record of (course, date) and returns it.
		UpsertRecord(ctx context.Context, exec core.DBExecutor, r Record) (Record, error)
		GetRecordByID(ctx context.Context, exec core.DBExecutor, id int) (Record, error)
		ListRecords(ctx context.Context, exec core.DBExecutor, courseID int) ([]Record, error)
		ListRecordDates(ctx context.Context, exec core.DBExecutor, courseID int) ([]time.Time, error)

		UpsertDetail(ctx context.Context, exec core.DBExecutor, d Detail) error
		ListDetails(ctx context.Context, exec core.DBExecutor, attendanceID int) ([]Detail, error)
		// ListUserStatuses returns one entry per record of the course; null when the user has no detail.
		ListUserStatuses(ctx context.Context, exec core.DBExecutor, courseID, userID int) ([]null.String, error)
	}

	Service struct {
		db   core.DB
		repo Repository
	}
)

func NewService(db core.DB, repo Repository) *Service {
	return &Service{db: db, repo: repo}
}

func checkTimes(start, end string) error {
	if !core.IsValidTime(start) {
		return core.NewFieldError(fmt.Errorf(errInvalidTime, start), "start_time")
	}
	if !core.IsValidTime(end) {
		return core.NewFieldError(fmt.Errorf(errInvalidTime, end), "end_time")
	}
	if end <= start { // "HH:MM" strings sort chronologically
		return core.NewFieldError(errTimeOrder, "end_time")
	}
	return nil
}

// UpsertAttendanceRecord creates or updates the record of a course for a date.
// Missing start/end times are taken from the weekly schedule slot of that weekday.
func (svc *Service) UpsertAttendanceRecord(ctx context.Context, courseID, professorID int, in RecordInput) (Record, error) {
	date := in.ParsedDate()
	start, end := in.StartTime, in.EndTime

	if start == "" || end == "" {
		slot, err := svc.repo.GetSlot(ctx, svc.db, courseID, WeekdayOf(date))
		if err != nil {
			if err == ErrNoSchedule {
				return Record{}, core.NewFieldError(
					fmt.Errorf("no class scheduled on %s", WeekdayOf(date)), "date",
				)
			}
			return Record{}, errors.Wrap(err, "finding schedule slot")
		}
		if start == "" {
			start = slot.StartTime
		}
		if end == "" {
			end = slot.EndTime
		}
	}
	if err := checkTimes(start, end); err != nil {
		return Record{}, err
	}

	now := core.NowFunc()
	return svc.repo.UpsertRecord(ctx, svc.db, Record{
		CourseID:    courseID,
		ProfessorID: professorID,
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) GetRecord(ctx context.Context, id int) (Record, error) {
	r, err := svc.repo.GetRecordByID(ctx, svc.db, id)
	if err != nil {
		return Record{}, err
	}
	if r.Details, err = svc.repo.ListDetails(ctx, svc.db, id); err != nil {
		return Record{}, errors.Wrap(err, "listing details")
	}
	return r, nil
}

func (svc *Service) Records(ctx context.Context, courseID int) ([]Record, error) {
	return svc.repo.ListRecords(ctx, svc.db, courseID)
}

func newDetail(attendanceID int, in DetailInput, at time.Time) Detail {
	justification := core.CleanString(in.Justification)
	return Detail{
		AttendanceID:  attendanceID,
		UserID:        in.UserID,
		Status:        NormalizeStatus(in.Status),
		Justification: null.NewString(justification, justification != ""),
		UpdatedAt:     at,
	}
}

// SetAttendanceDetail records the status of one learner; unrecognized statuses become "ausente".
func (svc *Service) SetAttendanceDetail(ctx context.Context, attendanceID int, in DetailInput) (Detail, error) {
	if _, err := svc.repo.GetRecordByID(ctx, svc.db, attendanceID); err != nil {
		return Detail{}, err
	}
	d := newDetail(attendanceID, in, core.NowFunc())
	if err := svc.repo.UpsertDetail(ctx, svc.db, d); err != nil {
		return Detail{}, errors.Wrap(err, "saving detail")
	}
	return d, nil
}

// SetAttendanceDetails records a whole sheet in one transaction.
// When roster is given, every member gets a detail ("ausente" unless listed in inputs) and inputs for
// anyone else are refused.
func (svc *Service) SetAttendanceDetails(ctx context.Context, attendanceID int, roster []int, inputs []DetailInput) ([]Detail, error) {
	byUser := make(map[int]DetailInput, len(inputs))
	for _, in := range inputs {
		byUser[in.UserID] = in
	}

	if roster != nil {
		onRoster := make(map[int]bool, len(roster))
		for _, id := range roster {
			onRoster[id] = true
		}
		for _, in := range inputs {
			if !onRoster[in.UserID] {
				return nil, core.NewFieldError(fmt.Errorf(errNotOnRoster, in.UserID), "user_id")
			}
		}
		for _, id := range roster {
			if _, ok := byUser[id]; !ok {
				byUser[id] = DetailInput{UserID: id, Status: string(DefaultStatus)}
			}
		}
	}

	now := core.NowFunc()
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if _, err := svc.repo.GetRecordByID(ctx, tx, attendanceID); err != nil {
			return err
		}
		for _, in := range byUser {
			d := newDetail(attendanceID, in, now)
			if err := svc.repo.UpsertDetail(ctx, tx, d); err != nil {
				return errors.Wrap(err, fmt.Sprintf("saving detail of user %d", in.UserID))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return svc.repo.ListDetails(ctx, svc.db, attendanceID)
}

// Schedule

func (svc *Service) WeeklySchedule(ctx context.Context, courseID int) ([]Slot, error) {
	return svc.repo.ListSlots(ctx, svc.db, courseID)
}

// parseSlots validates the parallel arrays of a ScheduleInput.
func parseSlots(courseID int, in ScheduleInput) ([]Slot, error) {
	if len(in.Days) != len(in.StartTimes) || len(in.Days) != len(in.EndTimes) {
		return nil, core.NewFieldError(errSlotsMismatch, "days")
	}
	if len(in.Days) == 0 {
		return nil, core.NewFieldError(errNoSlots, "days")
	}

	seen := make(map[Weekday]bool, len(in.Days))
	slots := make([]Slot, 0, len(in.Days))
	for i, name := range in.Days {
		day, err := ParseWeekday(name)
		if err != nil {
			return nil, core.NewFieldError(fmt.Errorf("%q: %v", name, err), "days")
		}
		if seen[day] {
			return nil, core.NewFieldError(fmt.Errorf(errDuplicateDay, day), "days")
		}
		seen[day] = true

		start, end := core.CleanString(in.StartTimes[i]), core.CleanString(in.EndTimes[i])
		if err := checkTimes(start, end); err != nil {
			return nil, err
		}
		slots = append(slots, Slot{CourseID: courseID, Weekday: day, StartTime: start, EndTime: end})
	}
	return slots, nil
}

// ReplaceWeeklySchedule atomically swaps the weekly slots of a course.
// Removing a weekday on which attendance was already recorded is refused.
func (svc *Service) ReplaceWeeklySchedule(ctx context.Context, courseID int, in ScheduleInput) ([]Slot, error) {
	slots, err := parseSlots(courseID, in)
	if err != nil {
		return nil, err
	}
	kept := make(map[Weekday]bool, len(slots))
	for _, s := range slots {
		kept[s.Weekday] = true
	}

	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		current, err := svc.repo.ListSlots(ctx, tx, courseID)
		if err != nil {
			return errors.Wrap(err, "listing slots")
		}
		removed := make(map[Weekday]bool)
		for _, s := range current {
			if !kept[s.Weekday] {
				removed[s.Weekday] = true
			}
		}

		if len(removed) > 0 {
			dates, err := svc.repo.ListRecordDates(ctx, tx, courseID)
			if err != nil {
				return errors.Wrap(err, "listing attendance dates")
			}
			for _, d := range dates {
				if day := WeekdayOf(d); removed[day] {
					return core.NewConflict(fmt.Sprintf(errScheduleInUse, day))
				}
			}
		}

		return errors.Wrap(svc.repo.ReplaceSlots(ctx, tx, courseID, slots), "replacing slots")
	})
	if err != nil {
		return nil, err
	}
	return svc.repo.ListSlots(ctx, svc.db, courseID)
}

// SummarizeAttendance counts the statuses of a learner over every record of a course.
// Records without a detail for the learner count as "ausente".
func (svc *Service) SummarizeAttendance(ctx context.Context, courseID, userID int) (Summary, error) {
	statuses, err := svc.repo.ListUserStatuses(ctx, svc.db, courseID, userID)
	if err != nil {
		return Summary{}, errors.Wrap(err, "listing statuses")
	}
	sum := Summary{CourseID: courseID, UserID: userID}
	for _, st := range statuses {
		sum.add(NormalizeStatus(st.String))
	}
	return sum, nil
}
