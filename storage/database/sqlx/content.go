package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/content"
)

const (
	sessionColumns = "id, course_id, title, position, created_at, updated_at"

	subsectionSelect = `
	SELECT s.id, s.session_id, s.course_id, s.title, s.body, s.type, s.state, s.position, s.deadline, s.max_score,
	       t.id AS task_id, s.asset_key, s.asset_name, s.asset_mime, s.asset_size, s.link_url, s.created_at, s.updated_at
	FROM subsecciones s LEFT JOIN tareas t ON t.subsection_id = s.id`

	attachmentColumns = "id, subsection_id, name, object_key, mime_type, size, created_at"
)

type contentRepository struct{}

var _ content.Repository = (*contentRepository)(nil) // interface compliance check

func NewContentRepository() *contentRepository {
	return &contentRepository{}
}

// Sessions

func (repo contentRepository) CreateSession(ctx context.Context, exec core.DBExecutor, s content.Session) (content.Session, error) {
	id, err := insertReturningID(ctx, exec, `
		INSERT INTO sesiones (course_id, title, position, created_at, updated_at)
		VALUES (:course_id, :title, (SELECT COALESCE(MAX(position), 0) + 1 FROM sesiones WHERE course_id = :course_id), :created_at, :updated_at)
		RETURNING id`, s)
	if err != nil {
		return content.Session{}, errors.Wrap(err, "inserting session")
	}
	return repo.GetSessionByID(ctx, exec, id)
}

func (repo contentRepository) GetSessionByID(ctx context.Context, exec core.DBExecutor, id int) (content.Session, error) {
	var s content.Session
	err := get(ctx, exec, &s, "SELECT "+sessionColumns+" FROM sesiones WHERE id = ?", id)
	return s, trapNoRowsErr(err, content.ErrSessionNotFound, "getting session")
}

func (repo contentRepository) ListSessions(ctx context.Context, exec core.DBExecutor, courseID int) ([]content.Session, error) {
	sessions := make([]content.Session, 0)
	err := selectAll(ctx, exec, &sessions, "SELECT "+sessionColumns+" FROM sesiones WHERE course_id = ? ORDER BY position ASC, id ASC", courseID)
	return sessions, errors.Wrap(err, "listing sessions")
}

func (repo contentRepository) UpdateSession(ctx context.Context, exec core.DBExecutor, s content.Session) (content.Session, error) {
	n, err := execNamed(ctx, exec, "UPDATE sesiones SET title = :title, position = :position, updated_at = :updated_at WHERE id = :id", s)
	if err != nil {
		return content.Session{}, errors.Wrap(err, "updating session")
	}
	if n == 0 {
		return content.Session{}, content.ErrSessionNotFound
	}
	return s, nil
}

func (repo contentRepository) DeleteSession(ctx context.Context, exec core.DBExecutor, id int) error {
	_, err := execute(ctx, exec, "DELETE FROM sesiones WHERE id = ?", id)
	return errors.Wrap(err, "deleting session")
}

// Subsections

func (repo contentRepository) CreateSubsection(ctx context.Context, exec core.DBExecutor, s content.Subsection) (content.Subsection, error) {
	id, err := insertReturningID(ctx, exec, `
		INSERT INTO subsecciones (
			session_id, course_id, title, body, type, state, position, deadline, max_score,
			asset_key, asset_name, asset_mime, asset_size, link_url, created_at, updated_at
		) VALUES (
			:session_id, :course_id, :title, :body, :type, :state,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM subsecciones WHERE session_id = :session_id),
			:deadline, :max_score, :asset_key, :asset_name, :asset_mime, :asset_size, :link_url, :created_at, :updated_at
		) RETURNING id`, s)
	if err != nil {
		return content.Subsection{}, errors.Wrap(err, "inserting subsection")
	}
	return repo.GetSubsectionByID(ctx, exec, id)
}

func (repo contentRepository) GetSubsectionByID(ctx context.Context, exec core.DBExecutor, id int) (content.Subsection, error) {
	var s content.Subsection
	err := get(ctx, exec, &s, subsectionSelect+" WHERE s.id = ?", id)
	return s, trapNoRowsErr(err, content.ErrSubsectionNotFound, "getting subsection")
}

func (repo contentRepository) ListSubsections(ctx context.Context, exec core.DBExecutor, courseID int) ([]content.Subsection, error) {
	subs := make([]content.Subsection, 0)
	err := selectAll(ctx, exec, &subs, subsectionSelect+`
		JOIN sesiones ss ON ss.id = s.session_id
		WHERE s.course_id = ?
		ORDER BY ss.position ASC, s.position ASC, s.id ASC`, courseID)
	return subs, errors.Wrap(err, "listing subsections")
}

func (repo contentRepository) ListSessionSubsections(ctx context.Context, exec core.DBExecutor, sessionID int) ([]content.Subsection, error) {
	subs := make([]content.Subsection, 0)
	err := selectAll(ctx, exec, &subs, subsectionSelect+" WHERE s.session_id = ? ORDER BY s.position ASC, s.id ASC", sessionID)
	return subs, errors.Wrap(err, "listing session subsections")
}

func (repo contentRepository) UpdateSubsection(ctx context.Context, exec core.DBExecutor, s content.Subsection) (content.Subsection, error) {
	n, err := execNamed(ctx, exec, `
		UPDATE subsecciones SET
			title = :title, body = :body, type = :type, state = :state, position = :position,
			deadline = :deadline, max_score = :max_score, asset_key = :asset_key, asset_name = :asset_name,
			asset_mime = :asset_mime, asset_size = :asset_size, link_url = :link_url, updated_at = :updated_at
		WHERE id = :id`, s)
	if err != nil {
		return content.Subsection{}, errors.Wrap(err, "updating subsection")
	}
	if n == 0 {
		return content.Subsection{}, content.ErrSubsectionNotFound
	}
	return s, nil
}

func (repo contentRepository) DeleteSubsection(ctx context.Context, exec core.DBExecutor, id int) error {
	_, err := execute(ctx, exec, "DELETE FROM subsecciones WHERE id = ?", id)
	return errors.Wrap(err, "deleting subsection")
}

// Tasks

func (repo contentRepository) UpsertTask(ctx context.Context, exec core.DBExecutor, subsectionID int, title string, due null.Time, at time.Time) (int, error) {
	var id int
	err := get(ctx, exec, &id, `
		INSERT INTO tareas (subsection_id, title, due_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (subsection_id) DO UPDATE SET title = excluded.title, due_at = excluded.due_at, updated_at = excluded.updated_at
		RETURNING id`, subsectionID, title, due, at, at)
	return id, errors.Wrap(err, "upserting task")
}

func (repo contentRepository) DeleteTask(ctx context.Context, exec core.DBExecutor, subsectionID int) error {
	_, err := execute(ctx, exec, "DELETE FROM tareas WHERE subsection_id = ?", subsectionID)
	return errors.Wrap(err, "deleting task")
}

func (repo contentRepository) CountTaskSubmissions(ctx context.Context, exec core.DBExecutor, subsectionID int) (int, error) {
	var count int
	err := get(ctx, exec, &count, `
		SELECT COUNT(*) FROM entregas_tareas e JOIN tareas t ON t.id = e.task_id
		WHERE t.subsection_id = ?`, subsectionID)
	return count, errors.Wrap(err, "counting submissions")
}

// Attachments

func (repo contentRepository) CreateAttachment(ctx context.Context, exec core.DBExecutor, a content.Attachment) (content.Attachment, error) {
	id, err := insertReturningID(ctx, exec, `
		INSERT INTO subseccion_adjuntos (subsection_id, name, object_key, mime_type, size, created_at)
		VALUES (:subsection_id, :name, :object_key, :mime_type, :size, :created_at)
		RETURNING id`, a)
	if err != nil {
		return content.Attachment{}, errors.Wrap(err, "inserting attachment")
	}
	a.ID = id
	return a, nil
}

func (repo contentRepository) GetAttachmentByID(ctx context.Context, exec core.DBExecutor, id int) (content.Attachment, error) {
	var a content.Attachment
	err := get(ctx, exec, &a, "SELECT "+attachmentColumns+" FROM subseccion_adjuntos WHERE id = ?", id)
	return a, trapNoRowsErr(err, content.ErrAttachmentNotFound, "getting attachment")
}

func (repo contentRepository) ListAttachments(ctx context.Context, exec core.DBExecutor, subsectionID int) ([]content.Attachment, error) {
	atts := make([]content.Attachment, 0)
	err := selectAll(ctx, exec, &atts, "SELECT "+attachmentColumns+" FROM subseccion_adjuntos WHERE subsection_id = ? ORDER BY id ASC", subsectionID)
	return atts, errors.Wrap(err, "listing attachments")
}

func (repo contentRepository) DeleteAttachment(ctx context.Context, exec core.DBExecutor, id int) error {
	_, err := execute(ctx, exec, "DELETE FROM subseccion_adjuntos WHERE id = ?", id)
	return errors.Wrap(err, "deleting attachment")
}
