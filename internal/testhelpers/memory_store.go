package testhelpers

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/plays3000/ai-server/internal/core"
	"github.com/plays3000/ai-server/internal/models"
)

// MemoryStore is an in-memory core.DbClient with the same activation rules as
// the Postgres store. A single mutex stands in for the advisory lock.
type MemoryStore struct {
	mu        sync.Mutex
	templates []models.Template
	records   []models.ChatRecord

	// FailAppend makes AppendChatRecord return this error.
	FailAppend error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) CreateTemplateVersion(ctx context.Context, tenantID, name string, build core.BuildTemplateFunc) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := 1
	for _, t := range s.templates {
		if t.TenantID == tenantID && t.Name == name && t.Version >= version {
			version = t.Version + 1
		}
	}

	tpl, err := build(ctx, version)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	tpl.TenantID, tpl.Name, tpl.Version, tpl.IsActive = tenantID, name, version, true
	now := time.Now()
	tpl.CreatedAt, tpl.UpdatedAt = now, now

	for i := range s.templates {
		t := &s.templates[i]
		if t.TenantID == tenantID && t.Name == name && t.IsActive {
			t.IsActive = false
			t.UpdatedAt = now
		}
	}
	s.templates = append(s.templates, *tpl)
	return tpl, nil
}

func (s *MemoryStore) GetActiveTemplate(ctx context.Context, tenantID, name string) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.templates {
		if t.TenantID == tenantID && t.Name == name && t.IsActive {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListActiveTemplates(ctx context.Context, tenantID string) ([]models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Template
	for i := len(s.templates) - 1; i >= 0; i-- {
		t := s.templates[i]
		if t.TenantID == tenantID && t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListTemplateVersions(ctx context.Context, tenantID, name string) ([]models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Template
	for _, t := range s.templates {
		if t.TenantID == tenantID && t.Name == name {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (s *MemoryStore) DeactivateTemplate(ctx context.Context, tenantID, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.templates {
		t := &s.templates[i]
		if t.TenantID == tenantID && t.Name == name && t.IsActive {
			t.IsActive = false
			t.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SearchActiveTemplates(ctx context.Context, tenantID string, queryVec []float32, limit int) ([]models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Template
	for _, t := range s.templates {
		if t.TenantID == tenantID && t.IsActive && len(t.Embedding) == len(queryVec) && len(queryVec) > 0 {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return l2(out[i].Embedding, queryVec) < l2(out[j].Embedding, queryVec)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendChatRecord(ctx context.Context, rec *models.ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend != nil {
		return s.FailAppend
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now()
	s.records = append(s.records, *rec)
	return nil
}

func (s *MemoryStore) ListChatRecords(ctx context.Context, tenantID string, limit int) ([]models.ChatRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChatRecord
	for i := len(s.records) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.records[i].TenantID == tenantID {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

// Records returns every stored chat record, oldest first.
func (s *MemoryStore) Records() []models.ChatRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Templates returns every stored template row in insertion order.
func (s *MemoryStore) Templates() []models.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Template, len(s.templates))
	copy(out, s.templates)
	return out
}

func (s *MemoryStore) Close() error { return nil }

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

var _ core.DbClient = (*MemoryStore)(nil)
