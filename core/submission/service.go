package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/content"
	"github.com/trezcool/aula/core/workflow"
)

var (
	// errors
	ErrTaskNotFound     = core.NewNotFound("task not found")
	ErrNotFound         = core.NewNotFound("submission not found")
	ErrNoFile           = core.NewNotFound("submission has no file")
	ErrAlreadyGraded    = core.NewConflict("submission already graded")
	ErrDeadlinePassed   = core.NewConflict("the deadline has passed")
	ErrGradeOutOfRange  = core.NewFieldError(errGradeRange, "grade")
	ErrTaskNotPublished = core.NewConflict("task is not published")

	gradingMachine = workflow.NewMachine(
		"submission",
		workflow.Transition{Event: "grade", Src: []string{string(StatusSubmitted)}, Dst: string(StatusGraded)},
	)
)

type (
	Repository interface {
		GetTaskByID(ctx context.Context, exec core.DBExecutor, id int) (Task, error)
		GetSubmissionByID(ctx context.Context, exec core.DBExecutor, id int) (Submission, error)
		// GetUserSubmission returns ErrNotFound when the user has not submitted yet.
		GetUserSubmission(ctx context.Context, exec core.DBExecutor, taskID, userID int) (Submission, error)
		ListTaskSubmissions(ctx context.Context, exec core.DBExecutor, taskID int) ([]Submission, error)
		// UpsertSubmission inserts or updates the (task, user) submission unless it is graded,
		// in which case ErrAlreadyGraded is returned and nothing is written.
		UpsertSubmission(ctx context.Context, exec core.DBExecutor, s Submission) (Submission, error)
		// GradeSubmission grades an ungraded submission; false when it was graded meanwhile.
		GradeSubmission(ctx context.Context, exec core.DBExecutor, id int, grade float64, feedback null.String, at time.Time) (bool, error)
	}

	Service struct {
		db        core.DB
		repo      Repository
		store     core.ObjectStore
		logger    core.Logger
		signedTTL time.Duration
	}
)

func NewService(db core.DB, repo Repository, store core.ObjectStore, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		store:     store,
		logger:    logger,
		signedTTL: conf.Storage.SignedURLTTL,
	}
}

func (svc *Service) GetTask(ctx context.Context, id int) (Task, error) {
	return svc.repo.GetTaskByID(ctx, svc.db, id)
}

func (svc *Service) GetByID(ctx context.Context, id int) (Submission, error) {
	return svc.repo.GetSubmissionByID(ctx, svc.db, id)
}

// GetForUser returns the submission of a user for a task.
func (svc *Service) GetForUser(ctx context.Context, taskID, userID int) (Submission, error) {
	return svc.repo.GetUserSubmission(ctx, svc.db, taskID, userID)
}

func (svc *Service) ListByTask(ctx context.Context, taskID int) ([]Submission, error) {
	return svc.repo.ListTaskSubmissions(ctx, svc.db, taskID)
}

func filePrefix(task Task, userID int) string {
	return fmt.Sprintf("courses/%d/tasks/%d/users/%d", task.CourseID, task.ID, userID)
}

// UpsertSubmission creates or replaces the submission of a user for a task.
// The deadline comes from the task. A file replaces the previously stored one; the grading lock is
// enforced again by the upsert statement so a grade recorded meanwhile is never overwritten.
func (svc *Service) UpsertSubmission(ctx context.Context, taskID, userID int, file *core.Upload, link string) (Submission, error) {
	link = core.CleanString(link)
	if file == nil && link == "" {
		return Submission{}, core.NewFieldError(errNothingSubmitted, "file")
	}
	if file != nil {
		if err := content.CheckFile(*file); err != nil {
			return Submission{}, err
		}
	}
	if link != "" {
		if err := content.CheckLink(link); err != nil {
			return Submission{}, err
		}
	}

	task, err := svc.repo.GetTaskByID(ctx, svc.db, taskID)
	if err != nil {
		return Submission{}, err
	}
	if !task.Published {
		return Submission{}, ErrTaskNotPublished
	}

	var current *Submission
	prev, err := svc.repo.GetUserSubmission(ctx, svc.db, taskID, userID)
	switch {
	case err == nil:
		current = &prev
	case err != ErrNotFound:
		return Submission{}, errors.Wrap(err, "finding current submission")
	}
	now := core.NowFunc()
	if err = CheckWritable(current, task.DueAt, now); err != nil {
		return Submission{}, err
	}

	next := Submission{
		TaskID:      taskID,
		UserID:      userID,
		Status:      StatusSubmitted,
		SubmittedAt: now,
		LinkURL:     null.NewString(link, link != ""),
	}
	if file != nil {
		key := core.ObjectKey(filePrefix(task, userID), file.Filename)
		if err = svc.store.Upload(ctx, key, file.Content, file.Size, file.ContentType); err != nil {
			return Submission{}, errors.Wrap(err, "uploading submission")
		}
		next.FileKey = null.StringFrom(key)
		next.FileName = null.StringFrom(file.Filename)
	} else if current != nil {
		// a link-only resubmission keeps the stored file
		next.FileKey, next.FileName = current.FileKey, current.FileName
	}

	saved, err := svc.repo.UpsertSubmission(ctx, svc.db, next)
	if err != nil {
		if file != nil {
			_ = svc.store.Delete(ctx, next.FileKey.String)
		}
		if err == ErrAlreadyGraded {
			return Submission{}, err
		}
		return Submission{}, errors.Wrap(err, "saving submission")
	}

	if current != nil && current.FileKey.Valid && current.FileKey != saved.FileKey {
		if err := svc.store.Delete(ctx, current.FileKey.String); err != nil {
			svc.logger.Error(
				fmt.Sprintf("submission %d: previous file not deleted: %v", saved.ID, err),
				errors.Wrap(err, "deleting previous submission file"),
				map[string]interface{}{"submission_id": saved.ID, "object_key": current.FileKey.String},
			)
		}
	}
	return saved, nil
}

// GradeSubmission records a grade (0 to 20) and locks the submission. There is no way back.
func (svc *Service) GradeSubmission(ctx context.Context, id int, grade float64, feedback string) (Submission, error) {
	if err := CheckGrade(grade); err != nil {
		return Submission{}, err
	}
	sub, err := svc.repo.GetSubmissionByID(ctx, svc.db, id)
	if err != nil {
		return Submission{}, err
	}
	if sub.IsGraded() {
		return Submission{}, ErrAlreadyGraded
	}
	if _, err = gradingMachine.Fire(ctx, string(sub.Status), "grade"); err != nil {
		return Submission{}, err
	}

	feedback = core.CleanString(feedback)
	ok, err := svc.repo.GradeSubmission(ctx, svc.db, id, grade, null.NewString(feedback, feedback != ""), core.NowFunc())
	if err != nil {
		return Submission{}, errors.Wrap(err, "grading submission")
	}
	if !ok {
		return Submission{}, ErrAlreadyGraded
	}
	return svc.repo.GetSubmissionByID(ctx, svc.db, id)
}

// FileURL returns a signed URL of the submitted file.
func (svc *Service) FileURL(ctx context.Context, sub Submission) (string, error) {
	if !sub.FileKey.Valid {
		return "", ErrNoFile
	}
	u, err := svc.store.SignedURL(ctx, sub.FileKey.String, svc.signedTTL)
	return u, errors.Wrap(err, "signing submission URL")
}
