package materializer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/apperrors"
	objectclient "github.com/plays3000/ai-server/internal/core/object-client"
	"github.com/plays3000/ai-server/internal/core/sheet"
	"github.com/plays3000/ai-server/internal/models"
	"github.com/plays3000/ai-server/internal/testhelpers"
)

const bucket = "test-bucket"

func setup(t *testing.T, s testhelpers.Sheet) (*Materializer, *objectclient.LocalClient, *models.Template) {
	t.Helper()
	storage, err := objectclient.NewLocalClient(t.TempDir())
	require.NoError(t, err)

	key := objectclient.TemplateKey("t1", "daily", 1, ".xlsx")
	_, err = storage.UploadFile(context.Background(), bucket, key, bytes.NewReader(testhelpers.WorkbookBytes(t, s)), xlsxMIME)
	require.NoError(t, err)

	m := New(storage, bucket, zap.NewNop())
	m.now = func() time.Time { return time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC) }
	tpl := &models.Template{
		TenantID: "t1",
		Name:     "daily",
		Version:  1,
		FilePath: key,
		Schema: models.TemplateSchema{Mappings: []models.FieldMapping{
			{Key: "name", Cell: "A2", Description: "writer"},
			{Key: "task", Cell: "B3", Description: "task"},
			{Key: "total", Cell: "c4", Description: "amount"},
			{Key: "broken", Cell: "??", Description: "bad cell"},
		}},
	}
	return m, storage, tpl
}

func TestMaterialize_FillsKnownFieldsAndKeepsMerges(t *testing.T) {
	m, storage, tpl := setup(t, testhelpers.Sheet{
		Cells:  map[string]any{"A1": "Daily report", "A3": "Task"},
		Merges: [][2]string{{"A2", "C2"}},
	})

	out, err := m.Materialize(context.Background(), tpl, models.ExtractedData{
		"name":   "Kim",
		"task":   "   ",
		"total":  float64(1200),
		"broken": "x",
	}, "Kim")
	require.NoError(t, err)
	assert.Equal(t, "20260304_Kim_daily.xlsx", out.FileName)
	assert.Equal(t, objectclient.GeneratedKey("t1", "20260304_Kim_daily.xlsx"), out.Key)
	assert.Equal(t, []string{"name", "total"}, out.FilledKeys)

	raw, err := storage.GetFile(context.Background(), bucket, out.Key)
	require.NoError(t, err)
	f := testhelpers.OpenWorkbook(t, raw)

	v, err := f.GetCellValue("Sheet1", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Kim", v)
	v, err = f.GetCellValue("Sheet1", "C4")
	require.NoError(t, err)
	assert.Equal(t, "1200", v)
	v, err = f.GetCellValue("Sheet1", "B3")
	require.NoError(t, err)
	assert.Empty(t, v)
	v, err = f.GetCellValue("Sheet1", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Daily report", v)

	merges, err := sheet.Merges(f, "Sheet1")
	require.NoError(t, err)
	assert.Equal(t, []models.MergeRegion{{Row: 2, Col: 1, RowSpan: 1, ColSpan: 3}}, merges)

	styleID, err := f.GetCellStyle("Sheet1", "A2")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Alignment)
	assert.True(t, style.Alignment.WrapText)
	assert.Equal(t, "center", style.Alignment.Vertical)
}

func TestMaterialize_TemplateObjectUnchanged(t *testing.T) {
	m, storage, tpl := setup(t, testhelpers.Sheet{Cells: map[string]any{"A1": "Daily report"}})
	before, err := storage.GetFile(context.Background(), bucket, tpl.FilePath)
	require.NoError(t, err)

	_, err = m.Materialize(context.Background(), tpl, models.ExtractedData{"name": "Lee"}, "Lee")
	require.NoError(t, err)

	after, err := storage.GetFile(context.Background(), bucket, tpl.FilePath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMaterialize_MissingTemplateObject(t *testing.T) {
	m, _, tpl := setup(t, testhelpers.Sheet{})
	tpl.FilePath = "templates/t1/gone.xlsx"

	_, err := m.Materialize(context.Background(), tpl, models.ExtractedData{"name": "Kim"}, "Kim")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	var se *apperrors.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "materialize", se.Stage)
}

func TestMaterialize_CorruptTemplate(t *testing.T) {
	m, storage, tpl := setup(t, testhelpers.Sheet{})
	_, err := storage.UploadFile(context.Background(), bucket, tpl.FilePath, bytes.NewReader([]byte("not a workbook")), xlsxMIME)
	require.NoError(t, err)

	_, err = m.Materialize(context.Background(), tpl, models.ExtractedData{"name": "Kim"}, "Kim")
	assert.ErrorIs(t, err, apperrors.ErrCorrupt)
}

func TestCellValue(t *testing.T) {
	cases := []struct {
		in   any
		want any
		ok   bool
	}{
		{nil, nil, false},
		{"", nil, false},
		{"hi", "hi", true},
		{float64(3), int64(3), true},
		{1.5, 1.5, true},
		{float64(0), int64(0), true},
		{false, false, true},
		{[]any{"a", nil, "b"}, "a\nb", true},
		{[]any{}, nil, false},
		{map[string]any{"k": "v"}, `{"k":"v"}`, true},
		{map[string]any{}, nil, false},
	}
	for _, c := range cases {
		got, ok := cellValue(c.in)
		assert.Equal(t, c.ok, ok, "%v", c.in)
		assert.Equal(t, c.want, got, "%v", c.in)
	}
}

func TestFileName_Defaults(t *testing.T) {
	m := New(nil, bucket, zap.NewNop())
	m.now = func() time.Time { return time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC) }
	assert.Equal(t, "20261231_user_report.xlsx", m.FileName(" ", ""))
	assert.Equal(t, "20261231_a_b_c.xlsx", m.FileName("a/b", "c"))
}
