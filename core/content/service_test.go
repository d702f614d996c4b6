package content_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/content"
	"github.com/trezcool/aula/core/course"
	"github.com/trezcool/aula/core/submission"
	"github.com/trezcool/aula/core/user"
	"github.com/trezcool/aula/services/storage"
	"github.com/trezcool/aula/storage/database/sqlx"
	"github.com/trezcool/aula/tests"
)

type fixture struct {
	db     core.DB
	svc    *content.Service
	store  *storagesvc.MemoryStore
	course course.Course
	conf   *core.Config
	logger core.Logger
}

func setup(t *testing.T) fixture {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	db := testutil.PrepareDB(t)
	store := storagesvc.NewMemoryStore()
	return fixture{
		db:     db,
		svc:    content.NewService(db, sqlxrepos.NewContentRepository(), store, conf, logger),
		store:  store,
		course: testutil.CreateCourse(t, db, "Biología", course.StatePublished),
		conf:   conf,
		logger: logger,
	}
}

func upload(name, contentType, body string) core.Upload {
	return core.Upload{Filename: name, ContentType: contentType, Size: int64(len(body)), Content: strings.NewReader(body)}
}

func (f fixture) subsection(t *testing.T, sessionID int, title string, typ content.SubsectionType) content.Subsection {
	t.Helper()
	sub, err := f.svc.CreateSubsection(context.Background(), sessionID, content.SubsectionInput{Title: title, Type: typ})
	require.NoError(t, err)
	return sub
}

func TestService_Tree(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	s1, err := f.svc.CreateSession(ctx, f.course.ID, content.SessionInput{Title: "Semana 1"})
	require.NoError(t, err)
	s2, err := f.svc.CreateSession(ctx, f.course.ID, content.SessionInput{Title: "Semana 2"})
	require.NoError(t, err)
	assert.Equal(t, 1, s1.Position)
	assert.Equal(t, 2, s2.Position)

	intro := f.subsection(t, s1.ID, "Introducción", content.TypeContent)
	f.subsection(t, s1.ID, "Borrador", content.TypeContent)
	cell := f.subsection(t, s2.ID, "La célula", content.TypeVideo)
	_, err = f.svc.PublishSubsection(ctx, intro.ID)
	require.NoError(t, err)
	_, err = f.svc.PublishSubsection(ctx, cell.ID)
	require.NoError(t, err)

	tests := []struct {
		name       string
		withDrafts bool
		want       [][]string
	}{
		{name: "learner view", want: [][]string{{"Introducción"}, {"La célula"}}},
		{name: "teacher view", withDrafts: true, want: [][]string{{"Introducción", "Borrador"}, {"La célula"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := f.svc.Tree(ctx, f.course.ID, tt.withDrafts)
			require.NoError(t, err)
			require.Len(t, tree, 2)
			for i, sess := range tree {
				titles := make([]string, 0, len(sess.Subsections))
				for _, sub := range sess.Subsections {
					titles = append(titles, sub.Title)
				}
				assert.Equal(t, tt.want[i], titles)
			}
		})
	}

	t.Run("publish is idempotent", func(t *testing.T) {
		sub, err := f.svc.PublishSubsection(ctx, intro.ID)
		require.NoError(t, err)
		assert.True(t, sub.IsPublished())
		sub, err = f.svc.UnpublishSubsection(ctx, intro.ID)
		require.NoError(t, err)
		assert.False(t, sub.IsPublished())
	})

	t.Run("rename", func(t *testing.T) {
		sess, err := f.svc.RenameSession(ctx, s2.ID, content.SessionInput{Title: "Semana dos"})
		require.NoError(t, err)
		assert.Equal(t, "Semana dos", sess.Title)
	})
}

func TestService_TaskSync(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	validate := testutil.NewValidator(f.logger)

	sess, err := f.svc.CreateSession(ctx, f.course.ID, content.SessionInput{Title: "Semana 1"})
	require.NoError(t, err)

	in := content.SubsectionInput{Title: "Informe", Type: "Tarea", Deadline: "2030-05-10T23:59"}
	require.NoError(t, in.Validate(validate))
	task, err := f.svc.CreateSubsection(ctx, sess.ID, in)
	require.NoError(t, err)
	assert.True(t, task.TaskID.Valid)
	assert.True(t, task.Deadline.Valid)
	assert.Equal(t, float64(content.DefaultMaxScore), task.MaxScore.Float64)

	t.Run("invalid deadline", func(t *testing.T) {
		bad := content.SubsectionInput{Title: "Informe", Type: content.TypeTask, Deadline: "mañana"}
		var vErr *core.ValidationError
		assert.True(t, errors.As(bad.Validate(validate), &vErr))
	})

	t.Run("type change with submissions", func(t *testing.T) {
		_, err := f.svc.PublishSubsection(ctx, task.ID)
		require.NoError(t, err)
		ana := testutil.CreateUser(t, f.db, "Ana Torres", "ana@aula.pe", user.RolePracticante, true)
		subSvc := submission.NewService(f.db, sqlxrepos.NewSubmissionRepository(), f.store, f.conf, f.logger)
		_, err = subSvc.UpsertSubmission(ctx, task.TaskID.Int, ana.ID, nil, "https://docs.example.com/informe")
		require.NoError(t, err)

		_, err = f.svc.UpdateSubsection(ctx, task.ID, content.SubsectionInput{Title: "Informe", Type: content.TypeContent})
		assert.Equal(t, content.ErrTaskHasSubmissions, err)

		// still an assignment: renaming is fine
		renamed, err := f.svc.UpdateSubsection(ctx, task.ID, content.SubsectionInput{Title: "Informe final", Type: content.TypeTask})
		require.NoError(t, err)
		assert.Equal(t, task.TaskID, renamed.TaskID)
	})

	t.Run("type change without submissions", func(t *testing.T) {
		other := f.subsection(t, sess.ID, "Práctica", content.TypeTask)
		require.True(t, other.TaskID.Valid)

		updated, err := f.svc.UpdateSubsection(ctx, other.ID, content.SubsectionInput{Title: "Práctica", Type: content.TypeContent})
		require.NoError(t, err)
		assert.False(t, updated.TaskID.Valid)
		assert.False(t, updated.MaxScore.Valid)

		stored, err := f.svc.GetSubsection(ctx, other.ID)
		require.NoError(t, err)
		assert.False(t, stored.TaskID.Valid)
	})
}

func TestService_PrimaryAsset(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, f.course.ID, content.SessionInput{Title: "Semana 1"})
	require.NoError(t, err)
	sub := f.subsection(t, sess.ID, "Lectura", content.TypeContent)

	first, err := f.svc.AttachPrimaryFile(ctx, sub.ID, upload("Lectura.PDF", "application/pdf", "v1"))
	require.NoError(t, err)
	require.True(t, first.AssetKey.Valid)
	assert.True(t, strings.HasSuffix(first.AssetKey.String, ".pdf"))
	assert.True(t, f.store.Has(first.AssetKey.String))

	second, err := f.svc.AttachPrimaryFile(ctx, sub.ID, upload("lectura-v2.pdf", "application/pdf", "v2"))
	require.NoError(t, err)
	assert.False(t, f.store.Has(first.AssetKey.String))
	data, ok := f.store.Content(second.AssetKey.String)
	require.True(t, ok)
	assert.Equal(t, "v2", string(data))

	u, err := f.svc.PrimaryAssetURL(ctx, second)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "memory://"))

	t.Run("delete failure keeps the previous asset", func(t *testing.T) {
		f.store.DeleteErr = errors.New("boom")
		defer func() { f.store.DeleteErr = nil }()

		_, err := f.svc.AttachPrimaryFile(ctx, sub.ID, upload("v3.pdf", "application/pdf", "v3"))
		assert.Error(t, err)
		assert.True(t, f.store.Has(second.AssetKey.String))

		stored, err := f.svc.GetSubsection(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, second.AssetKey, stored.AssetKey)
	})

	t.Run("upload failure", func(t *testing.T) {
		f.store.UploadErr = errors.New("boom")
		defer func() { f.store.UploadErr = nil }()

		_, err := f.svc.AttachPrimaryFile(ctx, sub.ID, upload("v3.pdf", "application/pdf", "v3"))
		var extErr *core.ExternalError
		assert.True(t, errors.As(err, &extErr))
		assert.True(t, f.store.Has(second.AssetKey.String))
	})

	t.Run("link replaces the stored file", func(t *testing.T) {
		linked, err := f.svc.SetPrimaryLink(ctx, sub.ID, "https://www.youtube.com/watch?v=abc")
		require.NoError(t, err)
		assert.False(t, linked.AssetKey.Valid)
		assert.False(t, f.store.Has(second.AssetKey.String))

		u, err := f.svc.PrimaryAssetURL(ctx, linked)
		require.NoError(t, err)
		assert.Equal(t, "https://www.youtube.com/watch?v=abc", u)
	})

	t.Run("remove", func(t *testing.T) {
		removed, err := f.svc.RemovePrimaryAsset(ctx, sub.ID)
		require.NoError(t, err)
		assert.False(t, removed.HasAsset())
		_, err = f.svc.PrimaryAssetURL(ctx, removed)
		assert.Equal(t, content.ErrNoAsset, err)
	})
}

func TestCheckPrimaryAsset(t *testing.T) {
	tests := []struct {
		name    string
		typ     content.SubsectionType
		up      core.Upload
		wantErr bool
	}{
		{name: "empty file", typ: content.TypeContent, up: core.Upload{ContentType: "application/pdf"}, wantErr: true},
		{name: "file too large", typ: content.TypeContent, up: core.Upload{Size: content.MaxFileSize + 1}, wantErr: true},
		{name: "file", typ: content.TypeContent, up: core.Upload{Size: content.MaxFileSize}},
		{name: "video too large", typ: content.TypeVideo, up: core.Upload{Size: content.MaxVideoSize + 1, ContentType: "video/mp4"}, wantErr: true},
		{name: "video wrong type", typ: content.TypeVideo, up: core.Upload{Size: 10, ContentType: "video/quicktime"}, wantErr: true},
		{name: "large video", typ: content.TypeVideo, up: core.Upload{Size: content.MaxFileSize + 1, ContentType: "video/webm"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := content.CheckPrimaryAsset(tt.typ, tt.up)
			if tt.wantErr {
				assert.IsType(t, &core.ValidationError{}, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckLink(t *testing.T) {
	assert.NoError(t, content.CheckLink("https://example.com/a"))
	assert.Error(t, content.CheckLink("ftp://example.com/a"))
	assert.Error(t, content.CheckLink("example.com"))
}

func TestService_Attachments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, f.course.ID, content.SessionInput{Title: "Semana 1"})
	require.NoError(t, err)
	sub := f.subsection(t, sess.ID, "Lectura", content.TypeContent)

	att, err := f.svc.AddAttachment(ctx, sub.ID, upload("anexo.docx", "application/msword", "anexo"))
	require.NoError(t, err)
	assert.True(t, f.store.Has(att.ObjectKey))

	atts, err := f.svc.Attachments(ctx, sub.ID)
	require.NoError(t, err)
	assert.Len(t, atts, 1)

	_, err = f.svc.AttachPrimaryFile(ctx, sub.ID, upload("lectura.pdf", "application/pdf", "pdf"))
	require.NoError(t, err)
	require.Len(t, f.store.Keys(), 2)

	require.NoError(t, f.svc.DeleteSession(ctx, sess.ID))
	assert.Empty(t, f.store.Keys())
	_, err = f.svc.GetSubsection(ctx, sub.ID)
	assert.Equal(t, content.ErrSubsectionNotFound, err)
}

func TestService_oversizedUpload(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, f.course.ID, content.SessionInput{Title: "Semana 1"})
	require.NoError(t, err)
	sub := f.subsection(t, sess.ID, "Lectura", content.TypeContent)

	_, err = f.svc.AttachPrimaryFile(ctx, sub.ID, upload("lectura.pdf", "application/pdf", "v1"))
	require.NoError(t, err)
	keys := f.store.Keys()

	big := core.Upload{Filename: "tesis.pdf", ContentType: "application/pdf", Size: 60 << 20, Content: strings.NewReader("")}
	tests := []struct {
		name string
		run  func() error
	}{
		{
			name: "primary file",
			run: func() error {
				_, err := f.svc.AttachPrimaryFile(ctx, sub.ID, big)
				return err
			},
		},
		{
			name: "attachment",
			run: func() error {
				_, err := f.svc.AddAttachment(ctx, sub.ID, big)
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var vErr *core.ValidationError
			assert.True(t, errors.As(tt.run(), &vErr))
			assert.ElementsMatch(t, keys, f.store.Keys())
		})
	}

	stored, err := f.svc.GetSubsection(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "lectura.pdf", stored.AssetName.String)
	atts, err := f.svc.Attachments(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, atts)
}
