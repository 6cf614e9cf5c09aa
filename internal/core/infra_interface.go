package core

import (
	"context"
	"io"

	"github.com/plays3000/ai-server/internal/models"
)

// BuildTemplateFunc persists the files of a new template version and returns the
// row to insert. It runs inside the activation transaction, after the version is allocated.
type BuildTemplateFunc func(ctx context.Context, version int) (*models.Template, error)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	// CreateTemplateVersion allocates the next version for (tenantID, name), deactivates the
	// previous active row and inserts the built row as the only active one, atomically.
	CreateTemplateVersion(ctx context.Context, tenantID, name string, build BuildTemplateFunc) (*models.Template, error)
	// GetActiveTemplate returns nil, nil when no version is active.
	GetActiveTemplate(ctx context.Context, tenantID, name string) (*models.Template, error)
	ListActiveTemplates(ctx context.Context, tenantID string) ([]models.Template, error)
	ListTemplateVersions(ctx context.Context, tenantID, name string) ([]models.Template, error)
	DeactivateTemplate(ctx context.Context, tenantID, name string) (int64, error)
	SearchActiveTemplates(ctx context.Context, tenantID string, queryVec []float32, limit int) ([]models.Template, error)

	AppendChatRecord(ctx context.Context, rec *models.ChatRecord) error
	ListChatRecords(ctx context.Context, tenantID string, limit int) ([]models.ChatRecord, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)

	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
