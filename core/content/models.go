package content

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/course"
)

type (
	// State is shared with courses: "borrador" or "publicado".
	State = course.State

	SubsectionType string
)

const (
	TypeContent SubsectionType = "contenido"
	TypeVideo   SubsectionType = "video"
	TypeTask    SubsectionType = "tarea"

	// DefaultMaxScore applies to "tarea" subsections created without a max score.
	DefaultMaxScore = 20

	MaxFileSize  int64 = 50 << 20
	MaxVideoSize int64 = 200 << 20
)

var (
	VideoMIMETypes = []string{"video/mp4", "video/webm"}

	deadlineLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", core.DateLayout}

	errInvalidDeadline = errors.New("enter a valid deadline (YYYY-MM-DDTHH:MM)")
	errInvalidLink     = errors.New("enter a valid http(s) URL")
	errFileTooLarge    = "file exceeds the %d MB limit"
	errVideoType       = errors.New("only mp4 and webm videos are allowed")
	errEmptyFile       = errors.New("file is empty")
)

type Session struct {
	ID        int       `json:"id" db:"id"`
	CourseID  int       `json:"course_id" db:"course_id"`
	Title     string    `json:"title" db:"title"`
	Position  int       `json:"position" db:"position"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Subsections []Subsection `json:"subsections" db:"-"`
}

type Subsection struct {
	ID        int            `json:"id" db:"id"`
	SessionID int            `json:"session_id" db:"session_id"`
	CourseID  int            `json:"course_id" db:"course_id"`
	Title     string         `json:"title" db:"title"`
	Body      string         `json:"body" db:"body"`
	Type      SubsectionType `json:"type" db:"type"`
	State     State          `json:"state" db:"state"`
	Position  int            `json:"position" db:"position"`
	Deadline  null.Time      `json:"deadline" db:"deadline"`
	MaxScore  null.Float64   `json:"max_score" db:"max_score"`
	TaskID    null.Int       `json:"task_id" db:"task_id"`

	// primary asset: an uploaded object or an external link
	AssetKey  null.String `json:"-" db:"asset_key"`
	AssetName null.String `json:"asset_name" db:"asset_name"`
	AssetMIME null.String `json:"asset_mime" db:"asset_mime"`
	AssetSize null.Int64  `json:"asset_size" db:"asset_size"`
	LinkURL   null.String `json:"link_url" db:"link_url"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (s Subsection) IsPublished() bool { return s.State == course.StatePublished }

func (s Subsection) HasAsset() bool { return s.AssetKey.Valid || s.LinkURL.Valid }

func (s *Subsection) clearAsset() {
	s.AssetKey = null.String{}
	s.AssetName = null.String{}
	s.AssetMIME = null.String{}
	s.AssetSize = null.Int64{}
	s.LinkURL = null.String{}
}

// Attachment is a secondary file of a subsection.
type Attachment struct {
	ID           int       `json:"id" db:"id"`
	SubsectionID int       `json:"subsection_id" db:"subsection_id"`
	Name         string    `json:"name" db:"name"`
	ObjectKey    string    `json:"-" db:"object_key"`
	MIMEType     string    `json:"mime_type" db:"mime_type"`
	Size         int64     `json:"size" db:"size"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type SessionInput struct {
	Title string `json:"title" form:"title" validate:"required,notblank,max=200"`
}

func (in *SessionInput) Validate(validate *validator.Validate) error {
	in.Title = core.CleanString(in.Title)
	return validate.Struct(in)
}

type SubsectionInput struct {
	Title    string         `json:"title" form:"title" validate:"required,notblank,max=200"`
	Body     string         `json:"body" form:"body"`
	Type     SubsectionType `json:"type" form:"type" validate:"required,oneof=contenido video tarea"`
	Deadline string         `json:"deadline" form:"deadline"`
	MaxScore float64        `json:"max_score" form:"max_score" validate:"gte=0"`

	deadline null.Time
}

func (in *SubsectionInput) Validate(validate *validator.Validate) error {
	in.Title = core.CleanString(in.Title)
	in.Type = SubsectionType(core.CleanString(string(in.Type), true /* lower */))
	if err := validate.Struct(in); err != nil {
		return err
	}
	deadline, err := ParseDeadline(in.Deadline)
	if err != nil {
		return core.NewFieldError(err, "deadline")
	}
	in.deadline = deadline
	return nil
}

// ParseDeadline parses an optional deadline; times without a zone are UTC.
func ParseDeadline(s string) (null.Time, error) {
	s = core.CleanString(s)
	if s == "" {
		return null.Time{}, nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if layout == core.DateLayout { // whole day
				t = t.Add(24*time.Hour - time.Second)
			}
			return null.TimeFrom(t.UTC()), nil
		}
	}
	return null.Time{}, errInvalidDeadline
}

// NormalizeTaskFields applies the per-type rules: "tarea" keeps its deadline and gets a max score
// (DefaultMaxScore when unset); other types never carry either.
func NormalizeTaskFields(typ SubsectionType, deadline null.Time, maxScore float64) (null.Time, null.Float64) {
	if typ != TypeTask {
		return null.Time{}, null.Float64{}
	}
	if maxScore <= 0 {
		maxScore = DefaultMaxScore
	}
	return deadline, null.Float64From(maxScore)
}

// CheckPrimaryAsset enforces the size and type caps of a primary asset upload.
func CheckPrimaryAsset(typ SubsectionType, up core.Upload) error {
	if up.Size <= 0 {
		return core.NewFieldError(errEmptyFile, "file")
	}
	if typ == TypeVideo {
		if up.Size > MaxVideoSize {
			return core.NewFieldError(fmt.Errorf(errFileTooLarge, MaxVideoSize>>20), "file")
		}
		for _, mt := range VideoMIMETypes {
			if up.ContentType == mt {
				return nil
			}
		}
		return core.NewFieldError(errVideoType, "file")
	}
	return CheckFile(up)
}

// CheckFile enforces the generic file cap.
func CheckFile(up core.Upload) error {
	if up.Size <= 0 {
		return core.NewFieldError(errEmptyFile, "file")
	}
	if up.Size > MaxFileSize {
		return core.NewFieldError(fmt.Errorf(errFileTooLarge, MaxFileSize>>20), "file")
	}
	return nil
}

// CheckLink validates an external asset link.
func CheckLink(link string) error {
	u, err := url.ParseRequestURI(core.CleanString(link))
	if err != nil || !(u.Scheme == "http" || u.Scheme == "https") || u.Host == "" {
		return core.NewFieldError(errInvalidLink, "link_url")
	}
	return nil
}
