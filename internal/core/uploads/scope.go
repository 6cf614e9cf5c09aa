// Package uploads tracks the temporary files received with one request so they are
// removed exactly once, whichever way the request ends.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File is one uploaded file on local disk.
type File struct {
	Path     string
	FileName string
	MIMEType string
	Size     int64
}

// Ext returns the lower-cased extension of the original file name.
func (f File) Ext() string {
	return strings.ToLower(filepath.Ext(f.FileName))
}

// Scope owns a set of temp files. A nil *Scope is valid and empty.
type Scope struct {
	mu       sync.Mutex
	files    []File
	released bool
	once     sync.Once
	err      error
}

func NewScope() *Scope {
	return &Scope{}
}

// Add registers f for removal on Release. Files added after Release, or to a nil
// Scope, are removed immediately.
func (s *Scope) Add(f File) error {
	if s == nil {
		return remove(f.Path)
	}
	s.mu.Lock()
	if !s.released {
		s.files = append(s.files, f)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return remove(f.Path)
}

// Files returns the registered files in upload order.
func (s *Scope) Files() []File {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]File, len(s.files))
	copy(out, s.files)
	return out
}

// Len is the number of files still owned by the scope.
func (s *Scope) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Release removes every file once. Later calls return the first result.
func (s *Scope) Release() error {
	if s == nil {
		return nil
	}
	s.once.Do(func() {
		s.mu.Lock()
		files := s.files
		s.files = nil
		s.released = true
		s.mu.Unlock()

		var errs []error
		for _, f := range files {
			if err := remove(f.Path); err != nil {
				errs = append(errs, err)
			}
		}
		s.err = errors.Join(errs...)
	})
	return s.err
}

// Detach hands a file over to the caller; Release no longer removes it.
func (s *Scope) Detach(path string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.files {
		if f.Path == path {
			s.files = append(s.files[:i], s.files[i+1:]...)
			return
		}
	}
}

func remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove temp file: %w", err)
	}
	return nil
}

// SaveMultipart copies every part to a temp file in dir and registers it with s.
// On error the files saved so far stay in the scope and are removed by Release.
func (s *Scope) SaveMultipart(dir string, headers []*multipart.FileHeader) ([]File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	out := make([]File, 0, len(headers))
	for _, h := range headers {
		f, err := saveOne(dir, h)
		if err != nil {
			return out, err
		}
		if err := s.Add(f); err != nil {
			return out, err
		}
		out = append(out, f)
	}
	return out, nil
}

func saveOne(dir string, h *multipart.FileHeader) (File, error) {
	src, err := h.Open()
	if err != nil {
		return File{}, fmt.Errorf("open upload %q: %w", h.Filename, err)
	}
	defer src.Close()

	name := filepath.Base(h.Filename)
	dst, err := os.CreateTemp(dir, "upload-*"+strings.ToLower(filepath.Ext(name)))
	if err != nil {
		return File{}, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst.Name())
		return File{}, fmt.Errorf("save upload %q: %w", h.Filename, err)
	}

	return File{
		Path:     dst.Name(),
		FileName: name,
		MIMEType: DetectMIME(name, h.Header.Get("Content-Type")),
		Size:     n,
	}, nil
}

// DetectMIME prefers the declared type and falls back to the extension.
func DetectMIME(name, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return mt
		}
	}
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); mt != "" {
		if base, _, err := mime.ParseMediaType(mt); err == nil {
			return base
		}
	}
	return "application/octet-stream"
}
