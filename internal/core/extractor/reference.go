package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/core"
	"github.com/plays3000/ai-server/internal/core/sheet"
	"github.com/plays3000/ai-server/internal/core/uploads"
)

const maxDocumentRunes = 20000

// Reference is the material a request brings besides its message: text rendered
// from spreadsheets and documents, and binary parts the model reads natively.
type Reference struct {
	Text        string
	Attachments []core.Attachment
}

// Empty reports whether the reference carries nothing.
func (r *Reference) Empty() bool {
	return r == nil || (r.Text == "" && len(r.Attachments) == 0)
}

// Preparer turns uploaded files into a Reference.
type Preparer struct {
	sheets         *sheet.Reader
	useReadability bool
	logger         *zap.Logger
}

func NewPreparer(sheets *sheet.Reader, useReadability bool, logger *zap.Logger) *Preparer {
	return &Preparer{sheets: sheets, useReadability: useReadability, logger: logger.Named("reference")}
}

// Prepare reads every file. A file that cannot be read is logged and skipped so one
// bad attachment does not fail the request.
func (p *Preparer) Prepare(ctx context.Context, files []uploads.File) (*Reference, error) {
	ref := &Reference{}
	var text strings.Builder
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger := p.logger.With(zap.String("file", f.FileName), zap.String("mime_type", f.MIMEType))

		switch kindOf(f) {
		case kindSheet:
			proj, err := p.sheets.Read(f.Path)
			if err != nil {
				logger.Warn("skipping unreadable spreadsheet", zap.Error(err))
				continue
			}
			if proj.Text == "" {
				continue
			}
			fmt.Fprintf(&text, "\n[Reference file (%s)]:\n%s\n", f.FileName, proj.Text)

		case kindBinary:
			data, err := os.ReadFile(f.Path)
			if err != nil {
				logger.Warn("skipping unreadable attachment", zap.Error(err))
				continue
			}
			ref.Attachments = append(ref.Attachments, core.Attachment{MIMEType: f.MIMEType, Data: data, Name: f.FileName})

		case kindDocument:
			body, err := p.convert(f)
			if err != nil {
				logger.Warn("skipping document, text extraction failed", zap.Error(err))
				continue
			}
			if body == "" {
				logger.Debug("document has no text")
				continue
			}
			fmt.Fprintf(&text, "\n[Reference file (%s)]:\n%s\n", f.FileName, body)

		default:
			logger.Info("skipping unsupported file type")
		}
	}
	ref.Text = text.String()
	return ref, nil
}

func (p *Preparer) convert(f uploads.File) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", err
	}
	mimeType := f.MIMEType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = docconv.MimeTypeByExtension(f.FileName)
	}
	res, err := docconv.Convert(bytes.NewReader(data), mimeType, p.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv %s: %w", mimeType, err)
	}

	var lines []string
	for _, line := range strings.Split(res.Body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return clip(strings.Join(lines, "\n"), maxDocumentRunes), nil
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

type fileKind int

const (
	kindUnsupported fileKind = iota
	kindSheet
	kindBinary
	kindDocument
)

func kindOf(f uploads.File) fileKind {
	switch {
	case f.Ext() == ".xlsx" || f.Ext() == ".xlsm" ||
		f.MIMEType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return kindSheet
	case strings.HasPrefix(f.MIMEType, "image/") || f.MIMEType == "application/pdf":
		return kindBinary
	}
	switch f.Ext() {
	case ".docx", ".doc", ".odt", ".rtf", ".txt", ".md", ".html", ".htm", ".xml", ".pages":
		return kindDocument
	}
	return kindUnsupported
}
