package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/core"
	"github.com/plays3000/ai-server/internal/core/learner"
	"github.com/plays3000/ai-server/internal/models"
)

type templateLearner interface {
	Learn(ctx context.Context, in learner.LearnInput) (*learner.Result, error)
}

type TemplateService struct {
	db      core.DbClient
	learner templateLearner
}

func NewTemplateService(db core.DbClient, l templateLearner) *TemplateService {
	return &TemplateService{db: db, learner: l}
}

func (s *TemplateService) Learn(ctx context.Context, in learner.LearnInput) (*learner.Result, error) {
	return s.learner.Learn(ctx, in)
}

// ListActive returns the tenant's active templates, newest first.
func (s *TemplateService) ListActive(ctx context.Context, tenantID string) ([]models.Template, error) {
	tpls, err := s.db.ListActiveTemplates(ctx, tenantID)
	if err != nil {
		return nil, apperrors.Wrap("list", tenantID, "", err)
	}
	if tpls == nil {
		tpls = []models.Template{}
	}
	return tpls, nil
}

func (s *TemplateService) Versions(ctx context.Context, tenantID, name string) ([]models.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: template name is required", apperrors.ErrInvalidInput)
	}
	tpls, err := s.db.ListTemplateVersions(ctx, tenantID, name)
	if err != nil {
		return nil, apperrors.Wrap("versions", tenantID, name, err)
	}
	if len(tpls) == 0 {
		return nil, apperrors.Wrap("versions", tenantID, name, apperrors.ErrNotFound)
	}
	return tpls, nil
}

// Deactivate retires every version of name. Rows and files are kept.
func (s *TemplateService) Deactivate(ctx context.Context, tenantID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: template name is required", apperrors.ErrInvalidInput)
	}
	n, err := s.db.DeactivateTemplate(ctx, tenantID, name)
	if err != nil {
		return apperrors.Wrap("deactivate", tenantID, name, err)
	}
	if n == 0 {
		return apperrors.Wrap("deactivate", tenantID, name, apperrors.ErrNotFound)
	}
	return nil
}
