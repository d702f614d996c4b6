package attendance

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/aula/core"
)

type Status string

const (
	StatusPresent Status = "presente"
	StatusLate    Status = "tardanza"
	StatusAbsent  Status = "ausente"
	StatusExcused Status = "justificado"
)

// DefaultStatus applies to learners without a recorded status.
const DefaultStatus = StatusAbsent

var AllStatuses = []Status{StatusPresent, StatusLate, StatusAbsent, StatusExcused}

// NormalizeStatus maps free-form input to a Status; anything unrecognized is "ausente".
func NormalizeStatus(s string) Status {
	s = core.CleanString(s, true /* lower */)
	for _, st := range AllStatuses {
		if s == string(st) {
			return st
		}
	}
	return DefaultStatus
}

// Weekday numbers days Monday = 1 ... Sunday = 7.
type Weekday int

var (
	weekdayNames = [...]string{"lunes", "martes", "miércoles", "jueves", "viernes", "sábado", "domingo"}

	ErrUnknownWeekday = errors.New("unknown weekday")
)

func (d Weekday) Valid() bool { return d >= 1 && d <= 7 }

func (d Weekday) String() string {
	if !d.Valid() {
		return ""
	}
	return weekdayNames[d-1]
}

func stripAccents(s string) string {
	return strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u").Replace(s)
}

// ParseWeekday maps a Spanish day name (accents and case optional) or its number to a Weekday.
func ParseWeekday(name string) (Weekday, error) {
	name = stripAccents(core.CleanString(name, true /* lower */))
	for i, n := range weekdayNames {
		if name == stripAccents(n) {
			return Weekday(i + 1), nil
		}
	}
	if len(name) == 1 && name[0] >= '1' && name[0] <= '7' {
		return Weekday(name[0] - '0'), nil
	}
	return 0, ErrUnknownWeekday
}

// WeekdayOf returns the Weekday of a date.
func WeekdayOf(t time.Time) Weekday {
	wd := int(t.Weekday()) // Sunday = 0
	if wd == 0 {
		return 7
	}
	return Weekday(wd)
}

// Slot is one weekly class of a course.
type Slot struct {
	CourseID  int     `json:"course_id" db:"course_id"`
	Weekday   Weekday `json:"weekday" db:"weekday"`
	StartTime string  `json:"start_time" db:"start_time"`
	EndTime   string  `json:"end_time" db:"end_time"`
}

func (s Slot) DayName() string { return s.Weekday.String() }

// Record is the attendance sheet of a course on a date.
type Record struct {
	ID          int       `json:"id" db:"id"`
	CourseID    int       `json:"course_id" db:"course_id"`
	ProfessorID int       `json:"professor_id" db:"professor_id"`
	Date        time.Time `json:"date" db:"date"`
	StartTime   string    `json:"start_time" db:"start_time"`
	EndTime     string    `json:"end_time" db:"end_time"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	Details []Detail `json:"details,omitempty" db:"-"`
}

type Detail struct {
	AttendanceID  int         `json:"attendance_id" db:"attendance_id"`
	UserID        int         `json:"user_id" db:"user_id"`
	Status        Status      `json:"status" db:"status"`
	Justification null.String `json:"justification" db:"justification"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`

	UserName string `json:"user_name,omitempty" db:"user_name"`
}

// Summary counts statuses of one learner over all the records of a course.
type Summary struct {
	CourseID int `json:"course_id"`
	UserID   int `json:"user_id"`
	Present  int `json:"presente"`
	Late     int `json:"tardanza"`
	Absent   int `json:"ausente"`
	Excused  int `json:"justificado"`
	Total    int `json:"total"`
}

func (s *Summary) add(st Status) {
	switch st {
	case StatusPresent:
		s.Present++
	case StatusLate:
		s.Late++
	case StatusExcused:
		s.Excused++
	default:
		s.Absent++
	}
	s.Total++
}

type RecordInput struct {
	Date      string `json:"date" form:"date" validate:"required,isodate"`
	StartTime string `json:"start_time" form:"start_time" validate:"omitempty,hhmm"`
	EndTime   string `json:"end_time" form:"end_time" validate:"omitempty,hhmm"`
}

func (in *RecordInput) Validate(validate *validator.Validate) error {
	in.Date = core.CleanString(in.Date)
	in.StartTime = core.CleanString(in.StartTime)
	in.EndTime = core.CleanString(in.EndTime)
	return validate.Struct(in)
}

// ParsedDate returns the record date at midnight UTC.
func (in RecordInput) ParsedDate() time.Time {
	t, _ := time.Parse(core.DateLayout, in.Date)
	return core.DateOnly(t)
}

type DetailInput struct {
	UserID        int    `json:"user_id" form:"user_id"`
	Status        string `json:"status" form:"status"`
	Justification string `json:"justification" form:"justification"`
}

// ScheduleInput carries parallel arrays, one entry per weekly slot.
type ScheduleInput struct {
	Days       []string `json:"days" form:"days"`
	StartTimes []string `json:"start_times" form:"start_times"`
	EndTimes   []string `json:"end_times" form:"end_times"`
}
