package learner

import (
	"strings"

	"github.com/plays3000/ai-server/internal/core/sheet"
	"github.com/plays3000/ai-server/internal/models"
)

func buildLearnPrompt(blank, sample *sheet.Projection) string {
	var b strings.Builder
	b.WriteString("You analyse spreadsheet templates. Compare the BLANK template with the filled SAMPLE and find the data-entry fields.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. A value that appears only in the sample is a data field.\n")
	b.WriteString("2. For a run of consecutive list cells (for example C10, C11, C12) map only the first cell and ignore the rest.\n")
	b.WriteString("3. Keep each desc under five words.\n")
	b.WriteString("4. Output only a JSON array, nothing else.\n")
	if len(blank.Merges) > 0 {
		b.WriteString("5. These ranges are merged. A field inside one must use the range's first cell: ")
		for i, m := range blank.Merges {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(sheet.Range(m))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n[BLANK]:\n")
	b.WriteString(blank.Text)
	b.WriteString("\n[SAMPLE]:\n")
	b.WriteString(sample.Text)
	b.WriteString("\n[OUTPUT EXAMPLE]:\n")
	b.WriteString(`[{"key":"user_name","cell":"C4","desc":"name"},{"key":"morning_task","cell":"B10","desc":"morning work"}]`)
	b.WriteString("\n")
	return b.String()
}

// Normalize drops mappings without a key or with an unusable cell, moves cells that
// fall inside a merged region to its top-left cell, and keeps the first mapping of
// any repeated key or cell.
func Normalize(in []models.FieldMapping, merges []models.MergeRegion) []models.FieldMapping {
	out := make([]models.FieldMapping, 0, len(in))
	keys := make(map[string]bool, len(in))
	cells := make(map[string]bool, len(in))
	for _, m := range in {
		m.Key = strings.TrimSpace(m.Key)
		if m.Key == "" || keys[m.Key] {
			continue
		}
		cell, ok := sheet.NormalizeCell(m.Cell)
		if !ok {
			continue
		}
		cell = sheet.SnapToMerge(cell, merges)
		if cells[cell] {
			continue
		}
		m.Cell = cell
		keys[m.Key] = true
		cells[cell] = true
		out = append(out, m)
	}
	return out
}

// mergeMappings appends mappings from a later sample whose key and cell are both new.
func mergeMappings(base, more []models.FieldMapping) []models.FieldMapping {
	keys := make(map[string]bool, len(base))
	cells := make(map[string]bool, len(base))
	for _, m := range base {
		keys[m.Key] = true
		cells[m.Cell] = true
	}
	for _, m := range more {
		if keys[m.Key] || cells[m.Cell] {
			continue
		}
		keys[m.Key] = true
		cells[m.Cell] = true
		base = append(base, m)
	}
	return base
}
