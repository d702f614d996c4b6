package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/course"
	"github.com/trezcool/aula/core/user"
	"github.com/trezcool/aula/core/workflow"
)

var (
	// errors
	ErrNotFound     = core.NewNotFound("enrollment request not found")
	ErrNotPublished = errors.New("course is not open for enrollment")

	decisionMachine = workflow.NewMachine(
		"enrollment request",
		workflow.Transition{Event: "approve", Src: []string{string(StatusPending)}, Dst: string(StatusApproved)},
		workflow.Transition{Event: "reject", Src: []string{string(StatusPending)}, Dst: string(StatusRejected)},
	)
)

type (
	Repository interface {
		CreateRequest(ctx context.Context, exec core.DBExecutor, req Request) (Request, error)
		GetRequestByID(ctx context.Context, exec core.DBExecutor, id int) (Request, error)
		FilterRequests(ctx context.Context, exec core.DBExecutor, filter QueryFilter) ([]Request, error)
		// DecideRequest moves a pending request to status; it reports false when the request was no longer pending.
		DecideRequest(ctx context.Context, exec core.DBExecutor, id int, status Status, decidedBy int, at time.Time) (bool, error)
	}

	Service struct {
		db         core.DB
		repo       Repository
		usrRepo    user.Repository
		courseRepo course.Repository
	}
)

func NewService(db core.DB, repo Repository, usrRepo user.Repository, courseRepo course.Repository) *Service {
	return &Service{db: db, repo: repo, usrRepo: usrRepo, courseRepo: courseRepo}
}

// RequestEnrollment files a pending request of usr for courseID; only learners may request.
// Repeated requests are not deduplicated.
func (svc *Service) RequestEnrollment(ctx context.Context, usr user.User, courseID int) (Request, error) {
	if !usr.Role.IsLearner() {
		return Request{}, core.ErrForbidden
	}
	c, err := svc.courseRepo.GetCourseByID(ctx, svc.db, courseID)
	if err != nil {
		return Request{}, err
	}
	if !c.IsPublished() {
		return Request{}, core.NewConflict(ErrNotPublished.Error())
	}
	return svc.repo.CreateRequest(ctx, svc.db, Request{
		UserID:    usr.ID,
		CourseID:  courseID,
		Status:    StatusPending,
		CreatedAt: core.NowFunc(),
	})
}

func (svc *Service) GetByID(ctx context.Context, id int) (Request, error) {
	return svc.repo.GetRequestByID(ctx, svc.db, id)
}

// PendingForCourse lists the requests still awaiting a decision for a course.
func (svc *Service) PendingForCourse(ctx context.Context, courseID int) ([]Request, error) {
	return svc.repo.FilterRequests(ctx, svc.db, QueryFilter{CourseID: courseID, Status: StatusPending})
}

func (svc *Service) ForUser(ctx context.Context, userID int) ([]Request, error) {
	return svc.repo.FilterRequests(ctx, svc.db, QueryFilter{UserID: userID})
}

func (svc *Service) decide(ctx context.Context, exec core.DBExecutor, id int, event string, deciderID int) (Request, error) {
	req, err := svc.repo.GetRequestByID(ctx, exec, id)
	if err != nil {
		return Request{}, err
	}
	next, err := decisionMachine.Fire(ctx, string(req.Status), event)
	if err != nil {
		return Request{}, err
	}

	now := core.NowFunc()
	ok, err := svc.repo.DecideRequest(ctx, exec, id, Status(next), deciderID, now)
	if err != nil {
		return Request{}, errors.Wrap(err, "updating request status")
	}
	if !ok { // decided concurrently
		return Request{}, core.NewConflict(fmt.Sprintf("enrollment request: cannot %s when already decided", event))
	}
	req.Status = Status(next)
	req.DecidedAt.SetValid(now)
	req.DecidedBy.SetValid(deciderID)
	return req, nil
}

// ApproveEnrollment approves a pending request and adds the requester to the roster matching their role,
// in a single transaction.
func (svc *Service) ApproveEnrollment(ctx context.Context, id, deciderID int) (Request, error) {
	var req Request
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if req, err = svc.decide(ctx, tx, id, "approve", deciderID); err != nil {
			return err
		}

		requester, err := svc.usrRepo.GetUserByID(ctx, tx, req.UserID)
		if err != nil {
			return errors.Wrap(err, "finding requester")
		}
		roster := course.RosterFor(requester.Role)
		if err = svc.courseRepo.AddMember(ctx, tx, roster, req.CourseID, req.UserID, req.DecidedAt.Time); err != nil {
			return errors.Wrap(err, "adding course member")
		}
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// RejectEnrollment rejects a pending request; rosters are left untouched.
func (svc *Service) RejectEnrollment(ctx context.Context, id, deciderID int) (Request, error) {
	return svc.decide(ctx, svc.db, id, "reject", deciderID)
}
