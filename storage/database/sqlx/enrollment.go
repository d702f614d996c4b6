package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/enrollment"
)

const requestSelect = `
	SELECT r.id, r.user_id, r.course_id, r.status, r.created_at, r.decided_at, r.decided_by,
	       u.name AS user_name, u.email AS user_email
	FROM solicitudes r JOIN usuarios u ON u.id = r.user_id`

type enrollmentRepository struct{}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository() *enrollmentRepository {
	return &enrollmentRepository{}
}

func (repo enrollmentRepository) CreateRequest(ctx context.Context, exec core.DBExecutor, req enrollment.Request) (enrollment.Request, error) {
	id, err := insertReturningID(ctx, exec, `
		INSERT INTO solicitudes (user_id, course_id, status, created_at)
		VALUES (:user_id, :course_id, :status, :created_at)
		RETURNING id`, req)
	if err != nil {
		return enrollment.Request{}, errors.Wrap(err, "inserting enrollment request")
	}
	return repo.GetRequestByID(ctx, exec, id)
}

func (repo enrollmentRepository) GetRequestByID(ctx context.Context, exec core.DBExecutor, id int) (enrollment.Request, error) {
	var req enrollment.Request
	err := get(ctx, exec, &req, requestSelect+" WHERE r.id = ?", id)
	return req, trapNoRowsErr(err, enrollment.ErrNotFound, "getting enrollment request")
}

func (repo enrollmentRepository) FilterRequests(ctx context.Context, exec core.DBExecutor, filter enrollment.QueryFilter) ([]enrollment.Request, error) {
	w := where{}
	if filter.CourseID != 0 {
		w.add("r.course_id = ?", filter.CourseID)
	}
	if filter.UserID != 0 {
		w.add("r.user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		w.add("r.status = ?", filter.Status)
	}

	reqs := make([]enrollment.Request, 0)
	err := selectAll(ctx, exec, &reqs, requestSelect+w.String()+" ORDER BY r.created_at ASC, r.id ASC", w.args...)
	return reqs, errors.Wrap(err, "filtering enrollment requests")
}

func (repo enrollmentRepository) DecideRequest(ctx context.Context, exec core.DBExecutor, id int, status enrollment.Status, decidedBy int, at time.Time) (bool, error) {
	n, err := execute(ctx, exec, `
		UPDATE solicitudes SET status = ?, decided_by = ?, decided_at = ?
		WHERE id = ? AND status = ?`, status, decidedBy, at, id, enrollment.StatusPending)
	if err != nil {
		return false, errors.Wrap(err, "deciding enrollment request")
	}
	return n == 1, nil
}
