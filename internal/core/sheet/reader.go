// Package sheet renders the first worksheet of a workbook as compact addressed text
// for prompts and exposes its merged regions.
package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/models"
)

const (
	DefaultMaxRows    = 40
	DefaultMaxCellLen = 50
)

// Projection is the text rendering of one worksheet.
type Projection struct {
	Sheet  string
	Text   string
	Merges []models.MergeRegion
}

// Reader projects workbooks. Zero values use the defaults.
type Reader struct {
	MaxRows    int
	MaxCellLen int
}

func NewReader(maxRows, maxCellLen int) *Reader {
	return &Reader{MaxRows: maxRows, MaxCellLen: maxCellLen}
}

// Read projects the workbook at path.
func (r *Reader) Read(path string) (*Projection, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read sheet: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w: %v", apperrors.ErrCorrupt, err)
	}
	defer func() { _ = f.Close() }()
	return r.project(f)
}

// ReadBytes projects an in-memory workbook.
func (r *Reader) ReadBytes(data []byte) (*Projection, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w: %v", apperrors.ErrCorrupt, err)
	}
	defer func() { _ = f.Close() }()
	return r.project(f)
}

func (r *Reader) project(f *excelize.File) (*Projection, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Projection{}, nil
	}
	name := sheets[0]

	rows, err := f.Rows(name)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w: %v", apperrors.ErrCorrupt, err)
	}
	defer func() { _ = rows.Close() }()

	// Rows streams the sheet, so nothing past the cap is decoded.
	maxRows, maxLen := r.limits()
	var b strings.Builder
	for i := 0; i < maxRows && rows.Next(); i++ {
		row, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w: %v", i+1, apperrors.ErrCorrupt, err)
		}
		var line strings.Builder
		for j, val := range row {
			if val == "" {
				continue
			}
			addr, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				continue
			}
			line.WriteString("[" + addr + "]: " + truncate(val, maxLen) + ", ")
		}
		if line.Len() == 0 {
			continue
		}
		b.WriteString(line.String())
		b.WriteString("\n")
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read rows: %w: %v", apperrors.ErrCorrupt, err)
	}

	merges, err := Merges(f, name)
	if err != nil {
		return nil, err
	}
	return &Projection{Sheet: name, Text: b.String(), Merges: merges}, nil
}

func (r *Reader) limits() (int, int) {
	maxRows, maxLen := DefaultMaxRows, DefaultMaxCellLen
	if r != nil && r.MaxRows > 0 {
		maxRows = r.MaxRows
	}
	if r != nil && r.MaxCellLen > 0 {
		maxLen = r.MaxCellLen
	}
	return maxRows, maxLen
}

func truncate(val string, n int) string {
	runes := []rune(val)
	if len(runes) <= n {
		return val
	}
	return string(runes[:n]) + "..."
}
