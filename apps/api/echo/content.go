package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/content"
)

var (
	contextSessionKey    = "contentSession"
	contextSubsectionKey = "subsection"
	contextAttachmentKey = "attachment"

	errFileRequired = errors.New("a file is required")
)

func (s *Server) registerContentAPI(r router) {
	// sessions
	r.GET("/courses/:id/sessions", s.courseTree, s.courseMiddleware, s.viewerMiddleware)
	r.POST("/courses/:id/sessions", s.createSession, s.courseTeacherMiddleware)
	r.POST("/sessions/:id", s.renameSession, s.classSessionMiddleware, s.teacherMiddleware)
	r.POST("/sessions/:id/delete", s.destroySession, s.classSessionMiddleware, s.teacherMiddleware)
	r.POST("/sessions/:id/subsections", s.createSubsection, s.classSessionMiddleware, s.teacherMiddleware)

	// subsections
	viewer := r.with(s.subsectionMiddleware, s.viewerMiddleware)
	viewer.GET("/subsections/:id", s.retrieveSubsection)
	viewer.GET("/subsections/:id/asset", s.primaryAssetURL)
	viewer.GET("/subsections/:id/attachments", s.queryAttachments)

	teacher := r.with(s.subsectionMiddleware, s.teacherMiddleware)
	teacher.POST("/subsections/:id", s.updateSubsection)
	teacher.POST("/subsections/:id/publish", s.publishSubsection)
	teacher.POST("/subsections/:id/unpublish", s.unpublishSubsection)
	teacher.POST("/subsections/:id/delete", s.destroySubsection)
	teacher.POST("/subsections/:id/asset", s.attachPrimaryFile)
	teacher.POST("/subsections/:id/link", s.setPrimaryLink)
	teacher.POST("/subsections/:id/asset/delete", s.removePrimaryAsset)
	teacher.POST("/subsections/:id/attachments", s.addAttachment)

	// attachments
	r.GET("/attachments/:id/url", s.attachmentURL, s.attachmentMiddleware, s.viewerMiddleware)
	r.POST("/attachments/:id/delete", s.destroyAttachment, s.attachmentMiddleware, s.teacherMiddleware)
}

type LinkRequest struct {
	LinkURL string `json:"link_url" form:"link_url"`
}

type URLResponse struct {
	URL string `json:"url"`
}

// classSessionMiddleware loads the :id content session and its course.
func (s *Server) classSessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := paramID(ctx, "id")
		if err != nil {
			return err
		}
		sess, err := s.ContentSvc.GetSession(ctx.Request().Context(), id)
		if err != nil {
			return err
		}
		if err = s.setContextCourse(ctx, sess.CourseID); err != nil {
			return err
		}
		ctx.Set(contextSessionKey, sess)
		return next(ctx)
	}
}

// subsectionMiddleware loads the :id subsection and its course.
func (s *Server) subsectionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := paramID(ctx, "id")
		if err != nil {
			return err
		}
		sub, err := s.ContentSvc.GetSubsection(ctx.Request().Context(), id)
		if err != nil {
			return err
		}
		if err = s.setContextCourse(ctx, sub.CourseID); err != nil {
			return err
		}
		ctx.Set(contextSubsectionKey, sub)
		return next(ctx)
	}
}

// attachmentMiddleware loads the :id attachment with its subsection and course.
func (s *Server) attachmentMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := paramID(ctx, "id")
		if err != nil {
			return err
		}
		rctx := ctx.Request().Context()
		att, err := s.ContentSvc.GetAttachment(rctx, id)
		if err != nil {
			return err
		}
		sub, err := s.ContentSvc.GetSubsection(rctx, att.SubsectionID)
		if err != nil {
			return err
		}
		if err = s.setContextCourse(ctx, sub.CourseID); err != nil {
			return err
		}
		ctx.Set(contextSubsectionKey, sub)
		ctx.Set(contextAttachmentKey, att)
		return next(ctx)
	}
}

func getContextSession(ctx echo.Context) content.Session {
	sess, _ := ctx.Get(contextSessionKey).(content.Session)
	return sess
}

func getContextSubsection(ctx echo.Context) content.Subsection {
	sub, _ := ctx.Get(contextSubsectionKey).(content.Subsection)
	return sub
}

// visibleSubsection hides draft subsections from learners.
func visibleSubsection(ctx echo.Context) (content.Subsection, error) {
	sub := getContextSubsection(ctx)
	if !(sub.IsPublished() || getContextTeaches(ctx)) {
		return content.Subsection{}, content.ErrSubsectionNotFound
	}
	return sub, nil
}

// Sessions

func (s *Server) courseTree(ctx echo.Context) error {
	tree, err := s.ContentSvc.Tree(ctx.Request().Context(), getContextCourse(ctx).ID, getContextTeaches(ctx))
	if err != nil {
		return errors.Wrap(err, "building course tree")
	}
	return ctx.JSON(http.StatusOK, tree)
}

func (s *Server) createSession(ctx echo.Context) error {
	var data content.SessionInput
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.Validate); err != nil {
		return err
	}

	sess, err := s.ContentSvc.CreateSession(ctx.Request().Context(), getContextCourse(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (s *Server) renameSession(ctx echo.Context) error {
	var data content.SessionInput
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.Validate); err != nil {
		return err
	}

	sess, err := s.ContentSvc.RenameSession(ctx.Request().Context(), getContextSession(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "renaming session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (s *Server) destroySession(ctx echo.Context) error {
	if err := s.ContentSvc.DeleteSession(ctx.Request().Context(), getContextSession(ctx).ID); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Subsections

func (s *Server) createSubsection(ctx echo.Context) error {
	var data content.SubsectionInput
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.Validate); err != nil {
		return err
	}

	sub, err := s.ContentSvc.CreateSubsection(ctx.Request().Context(), getContextSession(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "creating subsection")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (s *Server) retrieveSubsection(ctx echo.Context) error {
	sub, err := visibleSubsection(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (s *Server) updateSubsection(ctx echo.Context) error {
	var data content.SubsectionInput
	if err := bindForm(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(s.Validate); err != nil {
		return err
	}

	sub, err := s.ContentSvc.UpdateSubsection(ctx.Request().Context(), getContextSubsection(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "updating subsection")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (s *Server) publishSubsection(ctx echo.Context) error {
	sub, err := s.ContentSvc.PublishSubsection(ctx.Request().Context(), getContextSubsection(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "publishing subsection")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (s *Server) unpublishSubsection(ctx echo.Context) error {
	sub, err := s.ContentSvc.UnpublishSubsection(ctx.Request().Context(), getContextSubsection(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "unpublishing subsection")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (s *Server) destroySubsection(ctx echo.Context) error {
	if err := s.ContentSvc.DeleteSubsection(ctx.Request().Context(), getContextSubsection(ctx).ID); err != nil {
		return errors.Wrap(err, "deleting subsection")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Primary asset

func (s *Server) attachPrimaryFile(ctx echo.Context) error {
	up, done, err := formUpload(ctx, "file")
	defer done()
	if err != nil {
		return err
	}
	if up == nil {
		return core.NewFieldError(errFileRequired, "file")
	}

	sub, err := s.ContentSvc.AttachPrimaryFile(ctx.Request().Context(), getContextSubsection(ctx).ID, *up)
	if err != nil {
		return errors.Wrap(err, "attaching primary file")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (s *Server) setPrimaryLink(ctx echo.Context) error {
	var data LinkRequest
	if err := bindForm(ctx, &data); err != nil {
		return err
	}

	sub, err := s.ContentSvc.SetPrimaryLink(ctx.Request().Context(), getContextSubsection(ctx).ID, data.LinkURL)
	if err != nil {
		return errors.Wrap(err, "setting primary link")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (s *Server) removePrimaryAsset(ctx echo.Context) error {
	sub, err := s.ContentSvc.RemovePrimaryAsset(ctx.Request().Context(), getContextSubsection(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "removing primary asset")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (s *Server) primaryAssetURL(ctx echo.Context) error {
	sub, err := visibleSubsection(ctx)
	if err != nil {
		return err
	}
	u, err := s.ContentSvc.PrimaryAssetURL(ctx.Request().Context(), sub)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, URLResponse{URL: u})
}

// Attachments

func (s *Server) addAttachment(ctx echo.Context) error {
	up, done, err := formUpload(ctx, "file")
	defer done()
	if err != nil {
		return err
	}
	if up == nil {
		return core.NewFieldError(errFileRequired, "file")
	}

	att, err := s.ContentSvc.AddAttachment(ctx.Request().Context(), getContextSubsection(ctx).ID, *up)
	if err != nil {
		return errors.Wrap(err, "adding attachment")
	}
	return ctx.JSON(http.StatusCreated, att)
}

func (s *Server) queryAttachments(ctx echo.Context) error {
	sub, err := visibleSubsection(ctx)
	if err != nil {
		return err
	}
	atts, err := s.ContentSvc.Attachments(ctx.Request().Context(), sub.ID)
	if err != nil {
		return errors.Wrap(err, "listing attachments")
	}
	return ctx.JSON(http.StatusOK, atts)
}

func (s *Server) attachmentURL(ctx echo.Context) error {
	if _, err := visibleSubsection(ctx); err != nil {
		return err
	}
	att, _ := ctx.Get(contextAttachmentKey).(content.Attachment)
	u, err := s.ContentSvc.AttachmentURL(ctx.Request().Context(), att)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, URLResponse{URL: u})
}

func (s *Server) destroyAttachment(ctx echo.Context) error {
	att, _ := ctx.Get(contextAttachmentKey).(content.Attachment)
	if err := s.ContentSvc.RemoveAttachment(ctx.Request().Context(), att.ID); err != nil {
		return errors.Wrap(err, "removing attachment")
	}
	return ctx.NoContent(http.StatusNoContent)
}
