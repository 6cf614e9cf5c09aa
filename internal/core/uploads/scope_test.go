package uploads

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempFile(t *testing.T, dir, name string) File {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	return File{Path: p, FileName: name}
}

func TestRelease_RemovesOnceAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := NewScope()
	a := tempFile(t, dir, "a.xlsx")
	b := tempFile(t, dir, "b.png")
	require.NoError(t, s.Add(a))
	require.NoError(t, s.Add(b))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Release())
		}()
	}
	wg.Wait()

	assert.NoFileExists(t, a.Path)
	assert.NoFileExists(t, b.Path)
	assert.Equal(t, 0, s.Len())
	assert.NoError(t, s.Release())
}

func TestRelease_NilScope(t *testing.T) {
	var s *Scope
	assert.NoError(t, s.Release())
	assert.Nil(t, s.Files())
	assert.Equal(t, 0, s.Len())
	s.Detach("anything")

	f := tempFile(t, t.TempDir(), "orphan.txt")
	require.NoError(t, s.Add(f))
	assert.NoFileExists(t, f.Path)
}

func TestRelease_MissingFileIsNotAnError(t *testing.T) {
	s := NewScope()
	require.NoError(t, s.Add(File{Path: filepath.Join(t.TempDir(), "gone")}))
	assert.NoError(t, s.Release())
}

func TestAddAfterRelease_RemovesImmediately(t *testing.T) {
	dir := t.TempDir()
	s := NewScope()
	require.NoError(t, s.Release())

	late := tempFile(t, dir, "late.txt")
	require.NoError(t, s.Add(late))
	assert.NoFileExists(t, late.Path)
}

func TestDetach_KeepsFile(t *testing.T) {
	dir := t.TempDir()
	s := NewScope()
	keep := tempFile(t, dir, "keep.xlsx")
	drop := tempFile(t, dir, "drop.xlsx")
	require.NoError(t, s.Add(keep))
	require.NoError(t, s.Add(drop))

	s.Detach(keep.Path)
	require.NoError(t, s.Release())

	assert.FileExists(t, keep.Path)
	assert.NoFileExists(t, drop.Path)
}

func TestSaveMultipart(t *testing.T) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("mediaFile", "photo.PNG")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))

	dir := t.TempDir()
	s := NewScope()
	files, err := s.SaveMultipart(dir, req.MultipartForm.File["mediaFile"])
	require.NoError(t, err)
	require.Len(t, files, 1)

	f := files[0]
	assert.Equal(t, "photo.PNG", f.FileName)
	assert.Equal(t, ".png", f.Ext())
	assert.Equal(t, "image/png", f.MIMEType)
	assert.EqualValues(t, len("png-bytes"), f.Size)
	assert.FileExists(t, f.Path)

	require.NoError(t, s.Release())
	assert.NoFileExists(t, f.Path)
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectMIME("a.pdf", ""))
	assert.Equal(t, "image/jpeg", DetectMIME("a.bin", "image/jpeg; charset=binary"))
	assert.Equal(t, "application/octet-stream", DetectMIME("a.unknownext", ""))
}
