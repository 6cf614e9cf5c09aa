package testhelpers

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// Sheet describes the first worksheet of a test workbook.
type Sheet struct {
	Cells  map[string]any
	Merges [][2]string
}

// NewWorkbook builds an in-memory workbook with one sheet named Sheet1.
func NewWorkbook(t *testing.T, s Sheet) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	const name = "Sheet1"
	for cell, v := range s.Cells {
		require.NoError(t, f.SetCellValue(name, cell, v))
	}
	for _, m := range s.Merges {
		require.NoError(t, f.MergeCell(name, m[0], m[1]))
	}
	return f
}

// WorkbookBytes returns the xlsx encoding of s.
func WorkbookBytes(t *testing.T, s Sheet) []byte {
	t.Helper()
	f := NewWorkbook(t, s)
	defer func() { _ = f.Close() }()
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// WriteWorkbook saves s as name inside a fresh temp dir and returns the path.
func WriteWorkbook(t *testing.T, dir, name string, s Sheet) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	path := filepath.Join(dir, name)
	f := NewWorkbook(t, s)
	defer func() { _ = f.Close() }()
	require.NoError(t, f.SaveAs(path))
	return path
}

// OpenWorkbook parses xlsx bytes for assertions.
func OpenWorkbook(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}
