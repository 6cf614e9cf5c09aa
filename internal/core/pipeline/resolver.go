package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/core"
	"github.com/plays3000/ai-server/internal/models"
)

// Resolver picks the active template a document request targets.
type Resolver struct {
	db          core.DbClient
	embedder    core.EmbeddingProvider
	defaultName string
	logger      *zap.Logger
}

// NewResolver builds a Resolver. embedder may be nil, which disables routing by
// name similarity.
func NewResolver(db core.DbClient, embedder core.EmbeddingProvider, defaultName string, logger *zap.Logger) *Resolver {
	return &Resolver{db: db, embedder: embedder, defaultName: strings.TrimSpace(defaultName), logger: logger.Named("resolver")}
}

// Resolve tries, in order: the name given with the request, the configured default,
// the tenant's only active template, and the active template whose name embedding is
// nearest to the message. It returns nil when nothing matches. Only store errors
// are returned; embedding failures count as no match.
func (r *Resolver) Resolve(ctx context.Context, tenantID, requested, message string) (*models.Template, error) {
	if name := strings.TrimSpace(requested); name != "" {
		tpl, err := r.db.GetActiveTemplate(ctx, tenantID, name)
		if err != nil || tpl != nil {
			return tpl, err
		}
		r.logger.Info("requested template has no active version", zap.String("tenant_id", tenantID), zap.String("template", name))
		return nil, nil
	}

	if r.defaultName != "" {
		tpl, err := r.db.GetActiveTemplate(ctx, tenantID, r.defaultName)
		if err != nil || tpl != nil {
			return tpl, err
		}
	}

	active, err := r.db.ListActiveTemplates(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	switch len(active) {
	case 0:
		return nil, nil
	case 1:
		return &active[0], nil
	}

	return r.nearest(ctx, tenantID, message)
}

func (r *Resolver) nearest(ctx context.Context, tenantID, message string) (*models.Template, error) {
	if r.embedder == nil || strings.TrimSpace(message) == "" {
		return nil, nil
	}
	vecs, err := r.embedder.EmbedTexts(ctx, []string{message})
	if err != nil || len(vecs) == 0 || len(vecs[0]) == 0 {
		r.logger.Warn("message embedding failed, no template routed", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, nil
	}
	found, err := r.db.SearchActiveTemplates(ctx, tenantID, vecs[0], 1)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	r.logger.Debug("template routed by name similarity", zap.String("tenant_id", tenantID), zap.String("template", found[0].Name))
	return &found[0], nil
}
