// Package materializer writes extracted values into a copy of a stored template.
package materializer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/core"
	objectclient "github.com/plays3000/ai-server/internal/core/object-client"
	"github.com/plays3000/ai-server/internal/core/repair"
	"github.com/plays3000/ai-server/internal/core/sheet"
	"github.com/plays3000/ai-server/internal/models"
)

const (
	stage    = "materialize"
	xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Materializer struct {
	storage core.ObjectClient
	bucket  string
	logger  *zap.Logger
	now     func() time.Time
}

func New(storage core.ObjectClient, bucket string, logger *zap.Logger) *Materializer {
	return &Materializer{storage: storage, bucket: bucket, logger: logger.Named("materializer"), now: time.Now}
}

// Output describes a generated document in file storage.
type Output struct {
	FileName   string
	Key        string
	FilledKeys []string
}

// Materialize fills the first worksheet of the template and stores the result under
// the generated prefix. The stored template itself is never modified.
func (m *Materializer) Materialize(ctx context.Context, tpl *models.Template, data models.ExtractedData, actorName string) (*Output, error) {
	if tpl == nil {
		return nil, apperrors.Wrap(stage, "", "", fmt.Errorf("%w: nil template", apperrors.ErrInvalidInput))
	}
	wrap := func(err error) error { return apperrors.Wrap(stage, tpl.TenantID, tpl.Name, err) }

	raw, err := m.storage.GetFile(ctx, m.bucket, tpl.FilePath)
	if err != nil {
		return nil, wrap(fmt.Errorf("load template: %w", err))
	}
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, wrap(fmt.Errorf("open template: %w: %v", apperrors.ErrCorrupt, err))
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, wrap(apperrors.ErrNoWorksheet)
	}
	ws := sheets[0]

	filled, err := m.fill(f, ws, tpl.Schema.Mappings, data)
	if err != nil {
		return nil, wrap(err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, wrap(fmt.Errorf("encode workbook: %w", err))
	}

	name := m.FileName(actorName, tpl.Name)
	key := objectclient.GeneratedKey(tpl.TenantID, name)
	if _, err := m.storage.UploadFile(ctx, m.bucket, key, buf, xlsxMIME); err != nil {
		return nil, wrap(fmt.Errorf("store document: %w: %v", apperrors.ErrPersistFailure, err))
	}

	m.logger.Info("document generated",
		zap.String("tenant_id", tpl.TenantID),
		zap.String("template", tpl.Name),
		zap.Int("version", tpl.Version),
		zap.Int("filled", len(filled)),
		zap.Int("fields", len(tpl.Schema.Mappings)))
	return &Output{FileName: name, Key: key, FilledKeys: filled}, nil
}

// fill writes every mapping that has a usable value and returns the keys written.
func (m *Materializer) fill(f *excelize.File, ws string, mappings []models.FieldMapping, data models.ExtractedData) ([]string, error) {
	styles := map[int]int{}
	filled := []string{}
	for _, mp := range mappings {
		v, ok := cellValue(data[mp.Key])
		if !ok {
			continue
		}
		cell, ok := sheet.NormalizeCell(mp.Cell)
		if !ok {
			m.logger.Warn("skipping mapping with invalid cell", zap.String("key", mp.Key), zap.String("cell", mp.Cell))
			continue
		}
		if err := f.SetCellValue(ws, cell, v); err != nil {
			return nil, fmt.Errorf("write %s: %w", cell, err)
		}
		if err := wrapStyle(f, ws, cell, styles); err != nil {
			return nil, fmt.Errorf("style %s: %w", cell, err)
		}
		filled = append(filled, mp.Key)
	}
	return filled, nil
}

// wrapStyle keeps the cell's existing style and turns on wrapping with vertical
// centering. Derived styles are cached per source style.
func wrapStyle(f *excelize.File, ws, cell string, cache map[int]int) error {
	src, err := f.GetCellStyle(ws, cell)
	if err != nil {
		return err
	}
	id, ok := cache[src]
	if !ok {
		style, err := f.GetStyle(src)
		if err != nil {
			return err
		}
		if style == nil {
			style = &excelize.Style{}
		}
		if style.Alignment == nil {
			style.Alignment = &excelize.Alignment{}
		}
		style.Alignment.WrapText = true
		style.Alignment.Vertical = "center"
		if id, err = f.NewStyle(style); err != nil {
			return err
		}
		cache[src] = id
	}
	return f.SetCellStyle(ws, cell, cell, id)
}

// cellValue converts an extracted JSON value into something to write. Null, blank
// strings and empty lists count as absent. Lists are joined one item per line at
// the anchor cell; objects are written as JSON.
func cellValue(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, false
		}
		return t, true
	case float64:
		return repair.Value(t), true
	case bool:
		return t, true
	case []any:
		var parts []string
		for _, item := range t {
			if s, ok := cellValue(item); ok {
				parts = append(parts, fmt.Sprint(s))
			}
		}
		if len(parts) == 0 {
			return nil, false
		}
		return strings.Join(parts, "\n"), true
	case map[string]any:
		if len(t) == 0 {
			return nil, false
		}
		b, err := json.Marshal(t)
		if err != nil {
			return nil, false
		}
		return string(b), true
	default:
		return v, true
	}
}

// FileName is {yyyymmdd}_{actor}_{label}.xlsx with each part made safe for a key.
func (m *Materializer) FileName(actorName, label string) string {
	if strings.TrimSpace(actorName) == "" {
		actorName = "user"
	}
	if strings.TrimSpace(label) == "" {
		label = "report"
	}
	return fmt.Sprintf("%s_%s_%s.xlsx",
		m.now().Format("20060102"),
		objectclient.SafeName(actorName),
		objectclient.SafeName(label))
}
