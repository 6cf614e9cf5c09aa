package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/config"
	"github.com/plays3000/ai-server/internal/core"
	"github.com/plays3000/ai-server/internal/models"
)

type DatabaseClient struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return NewFromDB(ctx, db, logger)
}

// NewFromDB wraps an open pool and makes sure the schema exists.
func NewFromDB(ctx context.Context, db *sql.DB, logger *zap.Logger) (*DatabaseClient, error) {
	logger = logger.Named("database")
	if err := EnsureBootstrapped(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &DatabaseClient{db: db, logger: logger}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// CreateTemplateVersion serializes on a transaction-scoped advisory lock keyed by
// tenant and name, so concurrent learns of one template get distinct versions and
// leave exactly one active row.
func (c *DatabaseClient) CreateTemplateVersion(ctx context.Context, tenantID, name string, build core.BuildTemplateFunc) (*models.Template, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w: %v", apperrors.ErrPersistFailure, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, tenantID+"/"+name); err != nil {
		return nil, fmt.Errorf("lock template: %w: %v", apperrors.ErrPersistFailure, err)
	}

	var version int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1
		FROM templates
		WHERE tenant_id = $1 AND name = $2
	`, tenantID, name).Scan(&version); err != nil {
		return nil, fmt.Errorf("next version: %w: %v", apperrors.ErrPersistFailure, err)
	}

	tpl, err := build(ctx, version)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, fmt.Errorf("build template: %w: nil template", apperrors.ErrPersistFailure)
	}
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	tpl.TenantID, tpl.Name, tpl.Version, tpl.IsActive = tenantID, name, version, true

	if _, err := tx.ExecContext(ctx, `
		UPDATE templates
		SET is_active = false, updated_at = now()
		WHERE tenant_id = $1 AND name = $2 AND is_active
	`, tenantID, name); err != nil {
		return nil, fmt.Errorf("deactivate previous: %w: %v", apperrors.ErrPersistFailure, err)
	}

	schema, err := json.Marshal(tpl.Schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w: %v", apperrors.ErrPersistFailure, err)
	}
	var embedding any
	if len(tpl.Embedding) > 0 {
		embedding = pgvector.NewVector(tpl.Embedding)
	}

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO templates
			(id, tenant_id, name, version, file_path, schema_def, is_active, name_embedding)
		VALUES ($1, $2, $3, $4, $5, $6, true, $7)
		RETURNING created_at, updated_at
	`, tpl.ID, tenantID, name, version, tpl.FilePath, string(schema), embedding).Scan(&tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert template: %w: %v", apperrors.ErrPersistFailure, err)
	}

	// A request cancelled while the row was being written commits nothing.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit template: %w: %v", apperrors.ErrPersistFailure, err)
	}
	return tpl, nil
}

const templateColumns = `id, tenant_id, name, version, file_path, schema_def, is_active, created_at, updated_at`

func scanTemplate(row interface{ Scan(...any) error }) (*models.Template, error) {
	var (
		t      models.Template
		schema []byte
	)
	if err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.Version, &t.FilePath, &schema, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if len(schema) > 0 {
		if err := json.Unmarshal(schema, &t.Schema); err != nil {
			return nil, fmt.Errorf("decode schema_def of %s v%d: %w", t.Name, t.Version, err)
		}
	}
	return &t, nil
}

func (c *DatabaseClient) GetActiveTemplate(ctx context.Context, tenantID, name string) (*models.Template, error) {
	q := `SELECT ` + templateColumns + `
		FROM templates
		WHERE tenant_id = $1 AND name = $2 AND is_active`
	t, err := scanTemplate(c.db.QueryRowContext(ctx, q, tenantID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active template: %w: %v", apperrors.ErrPersistFailure, err)
	}
	return t, nil
}

func (c *DatabaseClient) ListActiveTemplates(ctx context.Context, tenantID string) ([]models.Template, error) {
	q := `SELECT ` + templateColumns + `
		FROM templates
		WHERE tenant_id = $1 AND is_active
		ORDER BY created_at DESC`
	return c.queryTemplates(ctx, q, tenantID)
}

func (c *DatabaseClient) ListTemplateVersions(ctx context.Context, tenantID, name string) ([]models.Template, error) {
	q := `SELECT ` + templateColumns + `
		FROM templates
		WHERE tenant_id = $1 AND name = $2
		ORDER BY version DESC`
	return c.queryTemplates(ctx, q, tenantID, name)
}

func (c *DatabaseClient) queryTemplates(ctx context.Context, q string, args ...any) ([]models.Template, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w: %v", apperrors.ErrPersistFailure, err)
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// DeactivateTemplate flips every version of name to inactive. Rows are kept.
func (c *DatabaseClient) DeactivateTemplate(ctx context.Context, tenantID, name string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE templates
		SET is_active = false, updated_at = now()
		WHERE tenant_id = $1 AND name = $2 AND is_active
	`, tenantID, name)
	if err != nil {
		return 0, fmt.Errorf("deactivate template: %w: %v", apperrors.ErrPersistFailure, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SearchActiveTemplates finds the tenant's active templates whose name embedding is
// closest to queryVec.
func (c *DatabaseClient) SearchActiveTemplates(ctx context.Context, tenantID string, queryVec []float32, limit int) ([]models.Template, error) {
	if len(queryVec) == 0 {
		return nil, nil
	}
	q := `SELECT ` + templateColumns + `
		FROM templates
		WHERE tenant_id = $1 AND is_active
		  AND name_embedding IS NOT NULL
		  AND vector_dims(name_embedding) = $3
		ORDER BY name_embedding <-> $2
		LIMIT $4`
	return c.queryTemplates(ctx, q, tenantID, pgvector.NewVector(queryVec), len(queryVec), limit)
}

func (c *DatabaseClient) AppendChatRecord(ctx context.Context, rec *models.ChatRecord) error {
	if rec == nil {
		return errors.New("nil chat record")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO chat_records (id, tenant_id, actor_name, user_msg, ai_reply)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	if err := c.db.QueryRowContext(ctx, q, rec.ID, rec.TenantID, rec.ActorName, rec.UserMsg, rec.AIReply).Scan(&rec.CreatedAt); err != nil {
		return fmt.Errorf("append chat record: %w: %v", apperrors.ErrPersistFailure, err)
	}
	return nil
}

func (c *DatabaseClient) ListChatRecords(ctx context.Context, tenantID string, limit int) ([]models.ChatRecord, error) {
	const q = `
		SELECT id, tenant_id, actor_name, user_msg, ai_reply, created_at
		FROM chat_records
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat records: %w: %v", apperrors.ErrPersistFailure, err)
	}
	defer rows.Close()

	var out []models.ChatRecord
	for rows.Next() {
		var r models.ChatRecord
		if err := rows.Scan(&r.ID, &r.TenantID, &r.ActorName, &r.UserMsg, &r.AIReply, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ core.DbClient = (*DatabaseClient)(nil)
