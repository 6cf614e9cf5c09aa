package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/core"
	"github.com/plays3000/ai-server/internal/core/extractor"
	"github.com/plays3000/ai-server/internal/core/intent"
	"github.com/plays3000/ai-server/internal/core/materializer"
	objectclient "github.com/plays3000/ai-server/internal/core/object-client"
	"github.com/plays3000/ai-server/internal/core/oracle"
	"github.com/plays3000/ai-server/internal/core/sheet"
	"github.com/plays3000/ai-server/internal/core/uploads"
	"github.com/plays3000/ai-server/internal/models"
	"github.com/plays3000/ai-server/internal/testhelpers"
)

const (
	bucket = "test-bucket"
	tenant = "t1"
	docMsg = "fill the daily sheet for Kim, total 1200"
)

type env struct {
	p       *Pipeline
	llm     *testhelpers.FakeLLM
	store   *testhelpers.MemoryStore
	storage *objectclient.LocalClient
}

func newEnv(t *testing.T, embedder core.EmbeddingProvider, defaultName string) *env {
	t.Helper()
	storage, err := objectclient.NewLocalClient(t.TempDir())
	require.NoError(t, err)
	store := testhelpers.NewMemoryStore()

	llm := testhelpers.NewFakeLLM()
	llm.Respond = func(prompt string) (string, error) {
		switch {
		case strings.HasPrefix(prompt, "Classify"):
			if strings.Contains(prompt, "daily sheet") {
				return "DOCUMENT", nil
			}
			return "CHAT", nil
		case strings.HasPrefix(prompt, "[Goal]"):
			return `{"name":"Kim","total":1200}`, nil
		}
		return "Sure, here you go.", nil
	}

	logger := zap.NewNop()
	orc := oracle.New(llm, oracle.Config{}, logger)
	p := New(Deps{
		DB:           store,
		Oracle:       orc,
		Classifier:   intent.New(orc, logger),
		Preparer:     extractor.NewPreparer(sheet.NewReader(30, 1000), false, logger),
		Extractor:    extractor.New(orc, logger),
		Materializer: materializer.New(storage, bucket, logger),
		Resolver:     NewResolver(store, embedder, defaultName, logger),
	}, "", logger)
	return &env{p: p, llm: llm, store: store, storage: storage}
}

func (e *env) seedTemplate(t *testing.T, tenantID, name string, embedding []float32) {
	t.Helper()
	_, err := e.store.CreateTemplateVersion(context.Background(), tenantID, name, func(ctx context.Context, version int) (*models.Template, error) {
		key := objectclient.TemplateKey(tenantID, name, version, ".xlsx")
		data := testhelpers.WorkbookBytes(t, testhelpers.Sheet{Cells: map[string]any{"A1": "Name", "A2": "Total"}})
		if _, err := e.storage.UploadFile(ctx, bucket, key, bytes.NewReader(data), ""); err != nil {
			return nil, err
		}
		return &models.Template{
			FilePath: key,
			Schema: models.TemplateSchema{Mappings: []models.FieldMapping{
				{Key: "name", Cell: "B1", Description: "writer"},
				{Key: "total", Cell: "B2", Description: "amount"},
				{Key: "note", Cell: "B3", Description: "remarks"},
			}},
			Embedding: embedding,
		}, nil
	})
	require.NoError(t, err)
}

func scopeWithImage(t *testing.T) (*uploads.Scope, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload-1")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o600))
	s := uploads.NewScope()
	require.NoError(t, s.Add(uploads.File{Path: path, FileName: "photo.png", MIMEType: "image/png", Size: 9}))
	return s, path
}

func TestRun_ChatAnswer(t *testing.T) {
	e := newEnv(t, nil, "")
	scope, path := scopeWithImage(t)

	res, err := e.p.Run(context.Background(), Request{TenantID: tenant, ActorName: "Kim", Message: "what is in this photo?", Uploads: scope})
	require.NoError(t, err)

	assert.Equal(t, "Sure, here you go.", res.Reply)
	assert.Nil(t, res.DownloadURL)
	assert.Equal(t, []State{Idle, Classifying, Answering, Recording, Idle}, res.Trail)

	calls := e.llm.Calls()
	require.Len(t, calls, 2)
	require.Len(t, calls[1].Attachments, 1)
	assert.Equal(t, "image/png", calls[1].Attachments[0].MIMEType)

	recs := e.store.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "what is in this photo?", recs[0].UserMsg)
	assert.Equal(t, "Sure, here you go.", recs[0].AIReply)

	assert.NoFileExists(t, path)
	assert.Zero(t, scope.Len())
}

func TestRun_DocumentGenerated(t *testing.T) {
	e := newEnv(t, nil, "")
	e.seedTemplate(t, tenant, "daily", nil)

	res, err := e.p.Run(context.Background(), Request{TenantID: tenant, ActorName: "Kim", Message: docMsg})
	require.NoError(t, err)

	assert.Equal(t, []State{Idle, Classifying, Extracting, Materializing, Recording, Idle}, res.Trail)
	assert.Equal(t, "daily", res.Template)
	assert.Equal(t, []string{"name", "total"}, res.FilledKeys)
	require.NotNil(t, res.DownloadURL)
	assert.True(t, strings.HasPrefix(*res.DownloadURL, DefaultDownloadPath))
	assert.True(t, strings.HasSuffix(*res.DownloadURL, "_Kim_daily.xlsx"))
	assert.Contains(t, res.Reply, "filled 2 of 3 fields")

	fileName := strings.TrimPrefix(*res.DownloadURL, DefaultDownloadPath)
	raw, err := e.storage.GetFile(context.Background(), bucket, objectclient.GeneratedKey(tenant, fileName))
	require.NoError(t, err)
	f := testhelpers.OpenWorkbook(t, raw)
	v, err := f.GetCellValue("Sheet1", "B1")
	require.NoError(t, err)
	assert.Equal(t, "Kim", v)
	v, err = f.GetCellValue("Sheet1", "B2")
	require.NoError(t, err)
	assert.Equal(t, "1200", v)

	assert.Len(t, e.store.Records(), 1)
}

func TestRun_DocumentWithoutTemplateFallsBackToAnswer(t *testing.T) {
	e := newEnv(t, nil, "")
	e.seedTemplate(t, "other-tenant", "daily", nil)

	res, err := e.p.Run(context.Background(), Request{TenantID: tenant, ActorName: "Kim", Message: docMsg})
	require.NoError(t, err)

	assert.Equal(t, []State{Idle, Classifying, Answering, Recording, Idle}, res.Trail)
	assert.Nil(t, res.DownloadURL)
	assert.Equal(t, "Sure, here you go.", res.Reply)
	assert.Len(t, e.store.Records(), 1)
}

func TestRun_EmptyRequest(t *testing.T) {
	e := newEnv(t, nil, "")

	_, err := e.p.Run(context.Background(), Request{TenantID: tenant, Message: "  "})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, e.llm.Calls())
	assert.Empty(t, e.store.Records())
}

func TestRun_UploadsOnlyIsAnswered(t *testing.T) {
	e := newEnv(t, nil, "")
	scope, path := scopeWithImage(t)

	res, err := e.p.Run(context.Background(), Request{TenantID: tenant, Uploads: scope})
	require.NoError(t, err)
	assert.Equal(t, "Sure, here you go.", res.Reply)

	calls := e.llm.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Summarize the attached files.", calls[0].Prompt)
	assert.NoFileExists(t, path)
}

func TestRun_ClassifierFailureReleasesUploads(t *testing.T) {
	e := newEnv(t, nil, "")
	e.llm.Respond = func(string) (string, error) { return "", apperrors.ErrUnavailable }
	scope, path := scopeWithImage(t)

	_, err := e.p.Run(context.Background(), Request{TenantID: tenant, Message: "hello", Uploads: scope})
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)

	var se *apperrors.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "classify", se.Stage)
	assert.NoFileExists(t, path)
	assert.Empty(t, e.store.Records())
}

func TestRun_CancelledBeforeRecording(t *testing.T) {
	e := newEnv(t, nil, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.llm.Respond = func(prompt string) (string, error) {
		if strings.HasPrefix(prompt, "Classify") {
			return "CHAT", nil
		}
		cancel()
		return "late answer", nil
	}
	scope, path := scopeWithImage(t)

	res, err := e.p.Run(ctx, Request{TenantID: tenant, Message: "hello", Uploads: scope})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, "late answer", res.Reply)
	assert.Empty(t, e.store.Records())
	assert.NoFileExists(t, path)
}

func TestRun_RecordFailureKeepsReply(t *testing.T) {
	e := newEnv(t, nil, "")
	e.store.FailAppend = errors.Join(apperrors.ErrPersistFailure, errors.New("db down"))

	res, err := e.p.Run(context.Background(), Request{TenantID: tenant, Message: "hello"})
	assert.ErrorIs(t, err, apperrors.ErrPersistFailure)
	require.NotNil(t, res)
	assert.Equal(t, "Sure, here you go.", res.Reply)
}

func TestRun_MaterializeFailure(t *testing.T) {
	e := newEnv(t, nil, "")
	e.seedTemplate(t, tenant, "daily", nil)
	tpl, err := e.store.GetActiveTemplate(context.Background(), tenant, "daily")
	require.NoError(t, err)
	require.NoError(t, e.storage.DeleteFile(context.Background(), bucket, tpl.FilePath))

	res, err := e.p.Run(context.Background(), Request{TenantID: tenant, ActorName: "Kim", Message: docMsg})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NotNil(t, res)
	assert.Equal(t, Materializing, res.Trail[len(res.Trail)-1])
	assert.Empty(t, e.store.Records())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "classifying", Classifying.String())
	assert.Equal(t, "materializing", Materializing.String())
	assert.Equal(t, "unknown", State(42).String())
}
