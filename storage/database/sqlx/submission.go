package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/course"
	"github.com/trezcool/aula/core/submission"
)

const submissionSelect = `
	SELECT e.id, e.task_id, e.user_id, e.file_key, e.file_name, e.link_url, e.grade, e.feedback, e.status,
	       e.submitted_at, e.graded_at, u.name AS user_name
	FROM entregas_tareas e JOIN usuarios u ON u.id = e.user_id`

type submissionRepository struct{}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository() *submissionRepository {
	return &submissionRepository{}
}

func (repo submissionRepository) GetTaskByID(ctx context.Context, exec core.DBExecutor, id int) (submission.Task, error) {
	var t submission.Task
	err := get(ctx, exec, &t, `
		SELECT t.id, t.subsection_id, s.course_id, t.title, t.due_at, s.state = ? AS published, t.created_at, t.updated_at
		FROM tareas t JOIN subsecciones s ON s.id = t.subsection_id
		WHERE t.id = ?`, course.StatePublished, id)
	return t, trapNoRowsErr(err, submission.ErrTaskNotFound, "getting task")
}

func (repo submissionRepository) GetSubmissionByID(ctx context.Context, exec core.DBExecutor, id int) (submission.Submission, error) {
	var s submission.Submission
	err := get(ctx, exec, &s, submissionSelect+" WHERE e.id = ?", id)
	return s, trapNoRowsErr(err, submission.ErrNotFound, "getting submission")
}

func (repo submissionRepository) GetUserSubmission(ctx context.Context, exec core.DBExecutor, taskID, userID int) (submission.Submission, error) {
	var s submission.Submission
	err := get(ctx, exec, &s, submissionSelect+" WHERE e.task_id = ? AND e.user_id = ?", taskID, userID)
	return s, trapNoRowsErr(err, submission.ErrNotFound, "getting user submission")
}

func (repo submissionRepository) ListTaskSubmissions(ctx context.Context, exec core.DBExecutor, taskID int) ([]submission.Submission, error) {
	subs := make([]submission.Submission, 0)
	err := selectAll(ctx, exec, &subs, submissionSelect+" WHERE e.task_id = ? ORDER BY u.name ASC, e.id ASC", taskID)
	return subs, errors.Wrap(err, "listing submissions")
}

func (repo submissionRepository) UpsertSubmission(ctx context.Context, exec core.DBExecutor, s submission.Submission) (submission.Submission, error) {
	var id int
	err := get(ctx, exec, &id, `
		INSERT INTO entregas_tareas (task_id, user_id, file_key, file_name, link_url, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_id, user_id) DO UPDATE SET
			file_key = excluded.file_key, file_name = excluded.file_name, link_url = excluded.link_url,
			status = excluded.status, submitted_at = excluded.submitted_at
		WHERE entregas_tareas.status <> ? AND entregas_tareas.grade IS NULL
		RETURNING id`,
		s.TaskID, s.UserID, s.FileKey, s.FileName, s.LinkURL, submission.StatusSubmitted, s.SubmittedAt,
		submission.StatusGraded)
	if err != nil {
		// the guarded update matched no row: graded meanwhile
		return submission.Submission{}, trapNoRowsErr(err, submission.ErrAlreadyGraded, "upserting submission")
	}
	return repo.GetSubmissionByID(ctx, exec, id)
}

func (repo submissionRepository) GradeSubmission(ctx context.Context, exec core.DBExecutor, id int, grade float64, feedback null.String, at time.Time) (bool, error) {
	n, err := execute(ctx, exec, `
		UPDATE entregas_tareas SET grade = ?, feedback = ?, status = ?, graded_at = ?
		WHERE id = ? AND status = ? AND grade IS NULL`,
		grade, feedback, submission.StatusGraded, at, id, submission.StatusSubmitted)
	if err != nil {
		return false, errors.Wrap(err, "grading submission")
	}
	return n == 1, nil
}

