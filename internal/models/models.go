package models

import (
	"encoding/json"
	"time"
)

// Template is one immutable version of a learned spreadsheet template.
type Template struct {
	ID        string         `db:"id" json:"id"`
	TenantID  string         `db:"tenant_id" json:"tenant_id"`
	Name      string         `db:"name" json:"name"`
	Version   int            `db:"version" json:"version"`
	FilePath  string         `db:"file_path" json:"-"` // storage key of the stored template file
	Schema    TemplateSchema `db:"schema_def" json:"schema_def"`
	IsActive  bool           `db:"is_active" json:"is_active"`
	Embedding []float32      `db:"name_embedding" json:"-"` // optional, used for template routing
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// TemplateSchema is the persisted schema_def column.
type TemplateSchema struct {
	Mappings    []FieldMapping `json:"mappings"`
	SampleFiles []string       `json:"sample_files"`
}

// FieldMapping anchors one data field to a cell.
type FieldMapping struct {
	Key         string `json:"key"`
	Cell        string `json:"cell"`
	Description string `json:"desc"`
}

// UnmarshalJSON accepts both "desc" and "description".
func (m *FieldMapping) UnmarshalJSON(b []byte) error {
	var raw struct {
		Key         string `json:"key"`
		Cell        string `json:"cell"`
		Desc        string `json:"desc"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	m.Key = raw.Key
	m.Cell = raw.Cell
	m.Description = raw.Desc
	if m.Description == "" {
		m.Description = raw.Description
	}
	return nil
}

// MergeRegion is a merged block of cells, 1-based.
type MergeRegion struct {
	Row     int `json:"row"`
	Col     int `json:"col"`
	RowSpan int `json:"rowspan"`
	ColSpan int `json:"colspan"`
}

// Contains reports whether the 1-based (col, row) lies inside the region.
func (m MergeRegion) Contains(col, row int) bool {
	return row >= m.Row && row < m.Row+m.RowSpan && col >= m.Col && col < m.Col+m.ColSpan
}

// ExtractedData maps FieldMapping keys to extracted values. Request scoped.
type ExtractedData map[string]any

// ChatRecord is the append-only audit row written once per completed request.
type ChatRecord struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	ActorName string    `db:"actor_name" json:"actor_name"`
	UserMsg   string    `db:"user_msg" json:"user_msg"`
	AIReply   string    `db:"ai_reply" json:"ai_reply"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
