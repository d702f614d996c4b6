package content

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/course"
	"github.com/trezcool/aula/core/workflow"
)

var (
	// errors
	ErrSessionNotFound    = core.NewNotFound("session not found")
	ErrSubsectionNotFound = core.NewNotFound("subsection not found")
	ErrAttachmentNotFound = core.NewNotFound("attachment not found")
	ErrNoAsset            = core.NewNotFound("subsection has no asset")
	ErrTaskHasSubmissions = core.NewConflict("assignment already has submissions")

	stateMachine = workflow.NewMachine(
		"subsection",
		workflow.Transition{Event: "publish", Src: []string{string(course.StateDraft), string(course.StatePublished)}, Dst: string(course.StatePublished)},
		workflow.Transition{Event: "unpublish", Src: []string{string(course.StatePublished), string(course.StateDraft)}, Dst: string(course.StateDraft)},
	)
)

type (
	Repository interface {
		CreateSession(ctx context.Context, exec core.DBExecutor, s Session) (Session, error)
		GetSessionByID(ctx context.Context, exec core.DBExecutor, id int) (Session, error)
		ListSessions(ctx context.Context, exec core.DBExecutor, courseID int) ([]Session, error)
		UpdateSession(ctx context.Context, exec core.DBExecutor, s Session) (Session, error)
		DeleteSession(ctx context.Context, exec core.DBExecutor, id int) error

		CreateSubsection(ctx context.Context, exec core.DBExecutor, s Subsection) (Subsection, error)
		GetSubsectionByID(ctx context.Context, exec core.DBExecutor, id int) (Subsection, error)
		// ListSubsections lists the subsections of a course, ordered by session and position.
		ListSubsections(ctx context.Context, exec core.DBExecutor, courseID int) ([]Subsection, error)
		ListSessionSubsections(ctx context.Context, exec core.DBExecutor, sessionID int) ([]Subsection, error)
		UpdateSubsection(ctx context.Context, exec core.DBExecutor, s Subsection) (Subsection, error)
		DeleteSubsection(ctx context.Context, exec core.DBExecutor, id int) error

		// UpsertTask keeps the task row of a "tarea" subsection in sync and returns its ID.
		UpsertTask(ctx context.Context, exec core.DBExecutor, subsectionID int, title string, due null.Time, at time.Time) (int, error)
		DeleteTask(ctx context.Context, exec core.DBExecutor, subsectionID int) error
		CountTaskSubmissions(ctx context.Context, exec core.DBExecutor, subsectionID int) (int, error)

		CreateAttachment(ctx context.Context, exec core.DBExecutor, a Attachment) (Attachment, error)
		GetAttachmentByID(ctx context.Context, exec core.DBExecutor, id int) (Attachment, error)
		ListAttachments(ctx context.Context, exec core.DBExecutor, subsectionID int) ([]Attachment, error)
		DeleteAttachment(ctx context.Context, exec core.DBExecutor, id int) error
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

// Sessions

func (svc *Service) CreateSession(ctx context.Context, courseID int, in SessionInput) (Session, error) {
	now := core.NowFunc()
	return svc.repo.CreateSession(ctx, svc.db, Session{CourseID: courseID, Title: in.Title, CreatedAt: now, UpdatedAt: now})
}

func (svc *Service) GetSession(ctx context.Context, id int) (Session, error) {
	return svc.repo.GetSessionByID(ctx, svc.db, id)
}

// Tree returns the ordered sessions of a course with their subsections.
// Draft subsections are left out unless withDrafts is set.
func (svc *Service) Tree(ctx context.Context, courseID int, withDrafts bool) ([]Session, error) {
	sessions, err := svc.repo.ListSessions(ctx, svc.db, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "listing sessions")
	}
	subs, err := svc.repo.ListSubsections(ctx, svc.db, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "listing subsections")
	}

	idx := make(map[int]int, len(sessions))
	for i := range sessions {
		sessions[i].Subsections = []Subsection{}
		idx[sessions[i].ID] = i
	}
	for _, sub := range subs {
		if !(withDrafts || sub.IsPublished()) {
			continue
		}
		if i, ok := idx[sub.SessionID]; ok {
			sessions[i].Subsections = append(sessions[i].Subsections, sub)
		}
	}
	return sessions, nil
}

func (svc *Service) RenameSession(ctx context.Context, id int, in SessionInput) (Session, error) {
	s, err := svc.repo.GetSessionByID(ctx, svc.db, id)
	if err != nil {
		return Session{}, err
	}
	s.Title = in.Title
	s.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateSession(ctx, svc.db, s)
}

// DeleteSession deletes a session, its subsections and all their stored objects.
func (svc *Service) DeleteSession(ctx context.Context, id int) error {
	if _, err := svc.repo.GetSessionByID(ctx, svc.db, id); err != nil {
		return err
	}
	subs, err := svc.repo.ListSessionSubsections(ctx, svc.db, id)
	if err != nil {
		return errors.Wrap(err, "listing subsections")
	}
	for _, sub := range subs {
		if err := svc.deleteStoredObjects(ctx, sub); err != nil {
			return err
		}
	}
	return svc.repo.DeleteSession(ctx, svc.db, id)
}

// Subsections

func (svc *Service) CreateSubsection(ctx context.Context, sessionID int, in SubsectionInput) (Subsection, error) {
	sess, err := svc.repo.GetSessionByID(ctx, svc.db, sessionID)
	if err != nil {
		return Subsection{}, err
	}

	now := core.NowFunc()
	sub := Subsection{
		SessionID: sessionID,
		CourseID:  sess.CourseID,
		Title:     in.Title,
		Body:      in.Body,
		Type:      in.Type,
		State:     course.StateDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sub.Deadline, sub.MaxScore = NormalizeTaskFields(in.Type, in.deadline, in.MaxScore)

	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if sub, err = svc.repo.CreateSubsection(ctx, tx, sub); err != nil {
			return errors.Wrap(err, "creating subsection")
		}
		if sub.Type == TypeTask {
			taskID, err := svc.repo.UpsertTask(ctx, tx, sub.ID, sub.Title, sub.Deadline, now)
			if err != nil {
				return errors.Wrap(err, "creating task")
			}
			sub.TaskID = null.IntFrom(taskID)
		}
		return nil
	})
	if err != nil {
		return Subsection{}, err
	}
	return sub, nil
}

func (svc *Service) GetSubsection(ctx context.Context, id int) (Subsection, error) {
	return svc.repo.GetSubsectionByID(ctx, svc.db, id)
}

// UpdateSubsection rewrites a subsection; turning an assignment with submissions into another type is refused.
func (svc *Service) UpdateSubsection(ctx context.Context, id int, in SubsectionInput) (Subsection, error) {
	var sub Subsection
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if sub, err = svc.repo.GetSubsectionByID(ctx, tx, id); err != nil {
			return err
		}

		if sub.Type == TypeTask && in.Type != TypeTask {
			n, err := svc.repo.CountTaskSubmissions(ctx, tx, id)
			if err != nil {
				return errors.Wrap(err, "counting submissions")
			}
			if n > 0 {
				return ErrTaskHasSubmissions
			}
			if err = svc.repo.DeleteTask(ctx, tx, id); err != nil {
				return errors.Wrap(err, "deleting task")
			}
			sub.TaskID = null.Int{}
		}

		now := core.NowFunc()
		sub.Title = in.Title
		sub.Body = in.Body
		sub.Type = in.Type
		sub.Deadline, sub.MaxScore = NormalizeTaskFields(in.Type, in.deadline, in.MaxScore)
		sub.UpdatedAt = now
		if sub, err = svc.repo.UpdateSubsection(ctx, tx, sub); err != nil {
			return errors.Wrap(err, "updating subsection")
		}

		if sub.Type == TypeTask {
			taskID, err := svc.repo.UpsertTask(ctx, tx, sub.ID, sub.Title, sub.Deadline, now)
			if err != nil {
				return errors.Wrap(err, "syncing task")
			}
			sub.TaskID = null.IntFrom(taskID)
		}
		return nil
	})
	if err != nil {
		return Subsection{}, err
	}
	return sub, nil
}

func (svc *Service) transition(ctx context.Context, id int, event string) (Subsection, error) {
	sub, err := svc.repo.GetSubsectionByID(ctx, svc.db, id)
	if err != nil {
		return Subsection{}, err
	}
	next, err := stateMachine.Fire(ctx, string(sub.State), event)
	if err != nil {
		return Subsection{}, err
	}
	if State(next) == sub.State {
		return sub, nil
	}
	sub.State = State(next)
	sub.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateSubsection(ctx, svc.db, sub)
}

func (svc *Service) PublishSubsection(ctx context.Context, id int) (Subsection, error) {
	return svc.transition(ctx, id, "publish")
}

func (svc *Service) UnpublishSubsection(ctx context.Context, id int) (Subsection, error) {
	return svc.transition(ctx, id, "unpublish")
}

// DeleteSubsection deletes the stored objects of a subsection, then the subsection itself.
func (svc *Service) DeleteSubsection(ctx context.Context, id int) error {
	sub, err := svc.repo.GetSubsectionByID(ctx, svc.db, id)
	if err != nil {
		return err
	}
	if err = svc.deleteStoredObjects(ctx, sub); err != nil {
		return err
	}
	return svc.repo.DeleteSubsection(ctx, svc.db, id)
}

func (svc *Service) deleteStoredObjects(ctx context.Context, sub Subsection) error {
	if sub.AssetKey.Valid {
		if err := svc.store.Delete(ctx, sub.AssetKey.String); err != nil {
			return errors.Wrap(err, "deleting primary asset")
		}
	}
	atts, err := svc.repo.ListAttachments(ctx, svc.db, sub.ID)
	if err != nil {
		return errors.Wrap(err, "listing attachments")
	}
	for _, att := range atts {
		if err := svc.store.Delete(ctx, att.ObjectKey); err != nil {
			return errors.Wrap(err, "deleting attachment")
		}
	}
	return nil
}

// Primary asset

func assetPrefix(sub Subsection) string {
	return fmt.Sprintf("courses/%d/subsections/%d", sub.CourseID, sub.ID)
}

// replaceAsset moves a subsection from prev to next: the new object (if any) is uploaded, the previous
// stored object is deleted, then the new metadata is written.
// A metadata failure after the objects changed is logged, never rolled back.
func (svc *Service) replaceAsset(ctx context.Context, prev, next Subsection, upload func() error) (Subsection, error) {
	if upload != nil {
		if err := upload(); err != nil {
			return Subsection{}, errors.Wrap(err, "uploading asset")
		}
	}
	if prev.AssetKey.Valid && prev.AssetKey != next.AssetKey {
		if err := svc.store.Delete(ctx, prev.AssetKey.String); err != nil {
			if upload != nil {
				_ = svc.store.Delete(ctx, next.AssetKey.String)
			}
			return Subsection{}, errors.Wrap(err, "deleting previous asset")
		}
	}

	next.UpdatedAt = core.NowFunc()
	saved, err := svc.repo.UpdateSubsection(ctx, svc.db, next)
	if err != nil {
		svc.logger.Error(
			fmt.Sprintf("subsection %d: asset changed but metadata not saved: %v", next.ID, err),
			errors.Wrap(err, "saving asset metadata"),
			map[string]interface{}{"subsection_id": next.ID, "asset_key": next.AssetKey.String},
		)
		return Subsection{}, errors.Wrap(err, "saving asset metadata")
	}
	return saved, nil
}

// AttachPrimaryFile uploads the primary file of a subsection, replacing any previous asset.
// Size and type caps are checked before the object store is reached.
func (svc *Service) AttachPrimaryFile(ctx context.Context, id int, up core.Upload) (Subsection, error) {
	sub, err := svc.repo.GetSubsectionByID(ctx, svc.db, id)
	if err != nil {
		return Subsection{}, err
	}
	if err = CheckPrimaryAsset(sub.Type, up); err != nil {
		return Subsection{}, err
	}

	newSub := sub
	newSub.clearAsset()
	key := core.ObjectKey(assetPrefix(sub), up.Filename)
	newSub.AssetKey = null.StringFrom(key)
	newSub.AssetName = null.StringFrom(up.Filename)
	newSub.AssetMIME = null.StringFrom(up.ContentType)
	newSub.AssetSize = null.Int64From(up.Size)

	return svc.replaceAsset(ctx, sub, newSub, func() error {
		return svc.store.Upload(ctx, key, up.Content, up.Size, up.ContentType)
	})
}

// SetPrimaryLink points the primary asset of a subsection to an external URL, deleting any stored object.
func (svc *Service) SetPrimaryLink(ctx context.Context, id int, link string) (Subsection, error) {
	if err := CheckLink(link); err != nil {
		return Subsection{}, err
	}
	sub, err := svc.repo.GetSubsectionByID(ctx, svc.db, id)
	if err != nil {
		return Subsection{}, err
	}
	newSub := sub
	newSub.clearAsset()
	newSub.LinkURL = null.StringFrom(core.CleanString(link))
	return svc.replaceAsset(ctx, sub, newSub, nil)
}

// RemovePrimaryAsset deletes the stored object (if any) and clears the asset metadata.
func (svc *Service) RemovePrimaryAsset(ctx context.Context, id int) (Subsection, error) {
	sub, err := svc.repo.GetSubsectionByID(ctx, svc.db, id)
	if err != nil {
		return Subsection{}, err
	}
	if !sub.HasAsset() {
		return sub, nil
	}
	newSub := sub
	newSub.clearAsset()
	return svc.replaceAsset(ctx, sub, newSub, nil)
}

// PrimaryAssetURL returns the external link or a signed URL of the stored object.
func (svc *Service) PrimaryAssetURL(ctx context.Context, sub Subsection) (string, error) {
	switch {
	case sub.LinkURL.Valid:
		return sub.LinkURL.String, nil
	case sub.AssetKey.Valid:
		u, err := svc.store.SignedURL(ctx, sub.AssetKey.String, svc.signedTTL)
		return u, errors.Wrap(err, "signing asset URL")
	}
	return "", ErrNoAsset
}

// Attachments

// AddAttachment stores a secondary file of a subsection.
func (svc *Service) AddAttachment(ctx context.Context, subsectionID int, up core.Upload) (Attachment, error) {
	sub, err := svc.repo.GetSubsectionByID(ctx, svc.db, subsectionID)
	if err != nil {
		return Attachment{}, err
	}
	if err = CheckFile(up); err != nil {
		return Attachment{}, err
	}

	key := core.ObjectKey(assetPrefix(sub)+"/attachments", up.Filename)
	if err = svc.store.Upload(ctx, key, up.Content, up.Size, up.ContentType); err != nil {
		return Attachment{}, errors.Wrap(err, "uploading attachment")
	}
	att, err := svc.repo.CreateAttachment(ctx, svc.db, Attachment{
		SubsectionID: subsectionID,
		Name:         up.Filename,
		ObjectKey:    key,
		MIMEType:     up.ContentType,
		Size:         up.Size,
		CreatedAt:    core.NowFunc(),
	})
	if err != nil {
		svc.logger.Error(
			fmt.Sprintf("subsection %d: attachment stored but metadata not saved: %v", subsectionID, err),
			errors.Wrap(err, "saving attachment"),
			map[string]interface{}{"subsection_id": subsectionID, "object_key": key},
		)
		return Attachment{}, errors.Wrap(err, "saving attachment")
	}
	return att, nil
}

func (svc *Service) Attachments(ctx context.Context, subsectionID int) ([]Attachment, error) {
	return svc.repo.ListAttachments(ctx, svc.db, subsectionID)
}

func (svc *Service) GetAttachment(ctx context.Context, id int) (Attachment, error) {
	return svc.repo.GetAttachmentByID(ctx, svc.db, id)
}

// RemoveAttachment deletes the stored object, then the attachment row.
func (svc *Service) RemoveAttachment(ctx context.Context, id int) error {
	att, err := svc.repo.GetAttachmentByID(ctx, svc.db, id)
	if err != nil {
		return err
	}
	if err = svc.store.Delete(ctx, att.ObjectKey); err != nil {
		return errors.Wrap(err, "deleting attachment object")
	}
	return svc.repo.DeleteAttachment(ctx, svc.db, id)
}

func (svc *Service) AttachmentURL(ctx context.Context, att Attachment) (string, error) {
	u, err := svc.store.SignedURL(ctx, att.ObjectKey, svc.signedTTL)
	return u, errors.Wrap(err, "signing attachment URL")
}
