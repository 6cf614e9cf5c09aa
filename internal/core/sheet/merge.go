package sheet

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/models"
)

// Merges lists the merged regions of a worksheet.
func Merges(f *excelize.File, sheetName string) ([]models.MergeRegion, error) {
	cells, err := f.GetMergeCells(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read merges: %w: %v", apperrors.ErrCorrupt, err)
	}
	out := make([]models.MergeRegion, 0, len(cells))
	for _, mc := range cells {
		m, err := ParseMerge(mc.GetStartAxis(), mc.GetEndAxis())
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// ParseMerge converts a start/end cell pair such as A2, C2 into a region.
func ParseMerge(start, end string) (models.MergeRegion, error) {
	c1, r1, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return models.MergeRegion{}, err
	}
	c2, r2, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return models.MergeRegion{}, err
	}
	if c2 < c1 {
		c1, c2 = c2, c1
	}
	if r2 < r1 {
		r1, r2 = r2, r1
	}
	return models.MergeRegion{Row: r1, Col: c1, RowSpan: r2 - r1 + 1, ColSpan: c2 - c1 + 1}, nil
}

// Range renders a region back to A1:C2 form.
func Range(m models.MergeRegion) string {
	start, _ := excelize.CoordinatesToCellName(m.Col, m.Row)
	end, _ := excelize.CoordinatesToCellName(m.Col+m.ColSpan-1, m.Row+m.RowSpan-1)
	return start + ":" + end
}

// NormalizeCell upper-cases and validates an A1 reference.
func NormalizeCell(cell string) (string, bool) {
	cell = strings.ToUpper(strings.TrimSpace(cell))
	col, row, err := excelize.CellNameToCoordinates(cell)
	if err != nil {
		return "", false
	}
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", false
	}
	return name, true
}

// SnapToMerge moves a cell that falls inside a merged region to the region's
// top-left cell, the only cell of a merge that holds a value.
func SnapToMerge(cell string, merges []models.MergeRegion) string {
	col, row, err := excelize.CellNameToCoordinates(cell)
	if err != nil {
		return cell
	}
	for _, m := range merges {
		if m.Contains(col, row) {
			name, err := excelize.CoordinatesToCellName(m.Col, m.Row)
			if err != nil {
				return cell
			}
			return name
		}
	}
	return cell
}
