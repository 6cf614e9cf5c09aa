package objectclient

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plays3000/ai-server/internal/apperrors"
)

func TestLocalClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := NewLocalClient(t.TempDir())
	require.NoError(t, err)

	key := TemplateKey("acme", "weekly report", 2, ".xlsx")
	_, err = c.UploadFile(ctx, "files", key, strings.NewReader("payload"), "application/octet-stream")
	require.NoError(t, err)

	got, err := c.GetFile(ctx, "files", key)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	rc, err := c.GetObjectReader(ctx, "files", key)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "payload", string(b))

	require.NoError(t, c.DeleteFile(ctx, "files", key))
	_, err = c.GetFile(ctx, "files", key)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// deleting twice is fine
	require.NoError(t, c.DeleteFile(ctx, "files", key))
}

func TestLocalClient_KeysStayInsideBucket(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	c, err := NewLocalClient(root)
	require.NoError(t, err)

	_, err = c.UploadFile(ctx, "files", "../../escape.txt", strings.NewReader("x"), "")
	require.NoError(t, err)

	got, err := c.GetFile(ctx, "files", "escape.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))

	_, err = c.GetFile(ctx, "files", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestKeys(t *testing.T) {
	key := TemplateKey("acme", "weekly report", 3, ".xlsx")
	assert.Regexp(t, `^templates/acme-[0-9a-f]{12}/weekly_report-[0-9a-f]{12}_v3\.xlsx$`, key)
	assert.Regexp(t, `^samples/acme-[0-9a-f]{12}/weekly_report-[0-9a-f]{12}_v3_sample_1\.xlsx$`, SampleKey("acme", "weekly report", 3, 1, ".xlsx"))
	assert.Regexp(t, `^generated/acme-[0-9a-f]{12}/20260101_kim_보고서\.xlsx$`, GeneratedKey("acme", "20260101_kim_보고서.xlsx"))
	assert.Equal(t, key, TemplateKey("acme", "weekly report", 3, ".xlsx"))

	traversal := GeneratedKey("a/b", "../x")
	assert.True(t, strings.HasPrefix(traversal, "generated/a_b-"), traversal)
	assert.True(t, strings.HasSuffix(traversal, "/_x"), traversal)
	assert.Equal(t, "_", SafeName(" .. "))
}

func TestKeys_DistinctInputsDoNotCollide(t *testing.T) {
	names := []string{"sales/daily", "sales daily", "sales_daily", "sales:daily", ".sales_daily."}
	seen := map[string]string{}
	for _, n := range names {
		k := TemplateKey("acme", n, 1, ".xlsx")
		prev, dup := seen[k]
		assert.False(t, dup, "%q and %q share key %s", prev, n, k)
		seen[k] = n
	}

	assert.NotEqual(t,
		GeneratedKey("acme corp", "20260101_Kim_daily.xlsx"),
		GeneratedKey("acme_corp", "20260101_Kim_daily.xlsx"))
	assert.NotEqual(t,
		SampleKey("acme", "a b", 1, 1, ".xlsx"),
		SampleKey("acme", "a_b", 1, 1, ".xlsx"))
}
